package rpcclient

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	. "github.com/alexdcox/rnode-go"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNodeHttpClient_GetStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/status", r.URL.Path)
		_, _ = io.WriteString(w, `{
			"address": "rnode://1e780e5dfbe0a3d9470a2b414f502d59402e09c2@rnode.validator1?protocol=40400&discovery=40404",
			"version": {"api": "1", "node": "RChain Node 0.13.0"},
			"peers": 3,
			"nodes": 4,
			"minPhloPrice": 1,
			"networkId": "testnet",
			"shardId": "root"
		}`)
	}))
	defer server.Close()

	client := NewNodeHttpClient(server.URL)

	status, err := client.GetStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, &NodeStatus{
		Version:      NodeVersion{Api: "1", Node: "RChain Node 0.13.0"},
		Address:      "rnode://1e780e5dfbe0a3d9470a2b414f502d59402e09c2@rnode.validator1?protocol=40400&discovery=40404",
		NetworkId:    "testnet",
		ShardId:      "root",
		Peers:        3,
		Nodes:        4,
		MinPhloPrice: 1,
	}, status)
}

func TestNodeHttpClient_GetBlocks(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/blocks/2" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, "not found")
			return
		}
		_, _ = io.WriteString(w, `[
			{"blockHash": "b2", "blockNumber": 2, "parentsHashList": ["b1"], "faultTolerance": 0.5, "deployCount": 1},
			{"blockHash": "b1", "blockNumber": 1, "parentsHashList": ["b0"], "faultTolerance": 1, "deployCount": 0}
		]`)
	}))
	defer server.Close()

	client := NewNodeHttpClient(server.URL)

	blocks, err := client.GetBlocks(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, blocks, 2)
	assert.Equal(t, "b2", blocks[0].BlockHash)
	assert.Equal(t, int64(2), blocks[0].BlockNumber)
	assert.Equal(t, []string{"b1"}, blocks[0].ParentsHashList)
	assert.Equal(t, float32(0.5), blocks[0].FaultTolerance)

	_, err = client.GetBlocks(context.Background(), 3)
	assert.ErrorIs(t, err, ErrRpcFailed)

	_, err = client.GetBlocks(context.Background(), 0)
	assert.Error(t, err)
}

func TestNodeHttpClient_ForHost(t *testing.T) {
	params, err := NetworkLocalNet.Params()
	require.NoError(t, err)

	urls, err := params.Validator(0)
	require.NoError(t, err)

	client, err := NewNodeHttpClientForHost(urls)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:40403", client.HostPort)

	_, err = NewNodeHttpClientForHost(NodeUrls{GrpcUrl: "node:1"})
	assert.ErrorIs(t, err, ErrNetworkInvalid)
}

func TestRpcClient_Requests(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/propose":
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

			in := &ProposeIn{}
			assert.NoError(t, json.NewDecoder(r.Body).Decode(in))
			assert.True(t, in.IsAsync)

			_ = json.NewEncoder(w).Encode(&ProposeOut{Result: "Success! Block b1 created and added.", BlockHash: "b1"})

		case r.Method == http.MethodGet && r.URL.Path == "/deploy/abc":
			w.WriteHeader(http.StatusNotFound)
			_ = json.NewEncoder(w).Encode(&RpcError{
				Err:     ErrDeployNotFound.Error(),
				Details: "deploy abc",
			})

		case r.Method == http.MethodGet && r.URL.Path == "/status":
			w.WriteHeader(http.StatusBadGateway)
			_ = json.NewEncoder(w).Encode(&RpcError{Err: "node offline", Details: "dial tcp"})

		default:
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = io.WriteString(w, "boom")
		}
	}))
	defer server.Close()

	client, err := NewRpcClient(server.URL, NetworkLocalNet)
	require.NoError(t, err)

	propose, err := client.Propose(&ProposeIn{IsAsync: true})
	require.NoError(t, err)
	assert.Equal(t, "b1", propose.BlockHash)

	_, err = client.GetDeploy("abc")
	assert.ErrorIs(t, err, ErrDeployNotFound)

	_, err = client.GetStatus()
	rpcErr := &RpcError{}
	require.True(t, errors.As(err, &rpcErr))
	assert.Equal(t, "node offline", rpcErr.Error())

	_, err = client.GetLatestBlock()
	assert.ErrorIs(t, err, ErrRpcFailed)

	_, err = NewRpcClient(server.URL, "devnet")
	assert.ErrorIs(t, err, ErrNetworkInvalid)
}
