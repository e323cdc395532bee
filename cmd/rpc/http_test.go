package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	. "github.com/alexdcox/rnode-go"
	"github.com/alexdcox/rnode-go/rpcclient"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testPrivateKeyHex = "5f668a7ee96d944a4494cc947e4005e172d7ab3461ee5538f1f2a45a835e9657"
	testPublicKeyHex  = "04ffc016579a68050d655d55df4e09f04605164543e257c8e6df10361e6068a533" +
		"6588e9b355ea859c5ab4285a5ef0efdf62bc28b80320ce99e26bb1607b3ad93d"
	testBlockHash = "9d2a7c0e5e3f4b1a8c6d2e0f1a3b5c7d9e1f2a4b6c8d0e2f4a6b8c0d2e4f6a8b"
)

type fakeNodeClient struct {
	mu        sync.Mutex
	deploys   []*SignedDeploy
	finalized map[string]bool
	proposed  bool
}

func (f *fakeNodeClient) DoDeploy(_ context.Context, deploy *SignedDeploy) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deploys = append(f.deploys, deploy)
	return "Success!\nDeployId is: " + deploy.Id(), nil
}

func (f *fakeNodeClient) Propose(_ context.Context, isAsync bool) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.deploys) == 0 {
		return "", errors.Wrap(ErrProposeFailed, "Error: NoNewDeploys")
	}
	f.proposed = true
	if isAsync {
		return "Propose started", nil
	}
	return fmt.Sprintf("Success! Block %s created and added.", testBlockHash), nil
}

func (f *fakeNodeClient) IsFinalized(_ context.Context, blockHash string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.finalized[blockHash], nil
}

func (f *fakeNodeClient) GetBlocks(_ context.Context, depth int) ([]rpcclient.LightBlockInfo, error) {
	blocks := []rpcclient.LightBlockInfo{}
	for i := 0; i < depth; i++ {
		blocks = append(blocks, rpcclient.LightBlockInfo{BlockHash: fmt.Sprintf("b%d", i), BlockNumber: int64(i)})
	}
	return blocks, nil
}

func (f *fakeNodeClient) LastFinalizedBlock(context.Context) (*rpcclient.BlockInfo, error) {
	return nil, errors.Wrap(ErrRpcFailed, "node unreachable")
}

type fakeStatusClient struct{}

func (fakeStatusClient) GetStatus(context.Context) (*rpcclient.NodeStatus, error) {
	return &rpcclient.NodeStatus{Version: rpcclient.NodeVersion{Api: "1"}, ShardId: "root"}, nil
}

func newTestServer(t *testing.T) (*HttpRpcServer, *fakeNodeClient, DeployStore) {
	t.Helper()

	cfg := &_config{Network: string(NetworkLocalNet)}
	require.NoError(t, cfg.resolve())

	client := &fakeNodeClient{finalized: map[string]bool{}}
	db := NewInMemoryDeployStore()

	server, err := NewHttpRpcServer(cfg, db, client, fakeStatusClient{})
	require.NoError(t, err)

	return server, client, db
}

func doRequest(t *testing.T, server *HttpRpcServer, method string, path string, in any, out any) int {
	t.Helper()

	var body io.Reader
	if in != nil {
		jsn, err := json.Marshal(in)
		require.NoError(t, err)
		body = bytes.NewReader(jsn)
	}

	req := httptest.NewRequest(method, path, body)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	rsp, err := server.app.Test(req, -1)
	require.NoError(t, err)
	defer func() {
		_ = rsp.Body.Close()
	}()

	data, err := io.ReadAll(rsp.Body)
	require.NoError(t, err)

	if out != nil {
		require.NoError(t, json.Unmarshal(data, out), "body: %s", string(data))
	}

	return rsp.StatusCode
}

func TestConfig_Resolve(t *testing.T) {
	cfg := &_config{Network: string(NetworkTestNet)}
	require.NoError(t, cfg.resolve())
	assert.Equal(t, "146.235.215.215:30001", cfg.GrpcHostPort)
	assert.Equal(t, "146.235.215.215:30002", cfg.InternalHostPort)
	assert.Equal(t, "https://146.235.215.215:443", cfg.NodeHttpUrl)
	assert.Equal(t, "testnet6", cfg.shardId)

	cfg = &_config{Network: string(NetworkLocalNet), GrpcHostPort: "node:50401"}
	require.NoError(t, cfg.resolve())
	assert.Equal(t, "node:50401", cfg.GrpcHostPort)
	assert.Empty(t, cfg.InternalHostPort, "internal port is derived by the client")

	cfg = &_config{Network: "devnet"}
	assert.ErrorIs(t, cfg.resolve(), ErrNetworkInvalid)
}

func TestHttpRpcServer_DeployFlow(t *testing.T) {
	server, client, db := newTestServer(t)

	// Sign, the shard defaults to the configured network.
	signed := &SignedDeploy{}
	code := doRequest(t, server, http.MethodPost, "/deploy/sign", &rpcclient.SignDeployIn{
		PrivateKeyHex: testPrivateKeyHex,
		Deploy:        UnsignedDeploy{Term: "1110", PhloLimit: 50_000, PhloPrice: 1},
	}, signed)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "root", signed.ShardId)
	assert.Equal(t, testPublicKeyHex, signed.Deployer.String())

	// Verify

	verified := &rpcclient.VerifyDeployOut{}
	code = doRequest(t, server, http.MethodPost, "/deploy/verify", signed, verified)
	require.Equal(t, http.StatusOK, code)
	assert.True(t, verified.Valid)

	tampered := *signed
	tampered.Term = "1111"
	code = doRequest(t, server, http.MethodPost, "/deploy/verify", &tampered, verified)
	require.Equal(t, http.StatusOK, code)
	assert.False(t, verified.Valid)

	// Submit

	rpcErr := &rpcclient.RpcError{}
	code = doRequest(t, server, http.MethodPost, "/deploy", &tampered, rpcErr)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, ErrInvalidSignature.Error(), rpcErr.Err)

	submitted := &rpcclient.SubmitDeployOut{}
	code = doRequest(t, server, http.MethodPost, "/deploy", signed, submitted)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, signed.Id(), submitted.Id)
	assert.Len(t, client.deploys, 1)

	// Propose

	proposed := &rpcclient.ProposeOut{}
	code = doRequest(t, server, http.MethodPost, "/propose", nil, proposed)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, testBlockHash, proposed.BlockHash)

	record, err := db.GetDeploy(signed.Id())
	require.NoError(t, err)
	assert.Equal(t, testBlockHash, record.BlockHash)
	assert.False(t, record.Finalized)

	// Finalize

	out := &rpcclient.DeployRecordOut{}
	code = doRequest(t, server, http.MethodGet, "/deploy/"+signed.Id(), nil, out)
	require.Equal(t, http.StatusOK, code)
	assert.False(t, out.Finalized)

	client.mu.Lock()
	client.finalized[testBlockHash] = true
	client.mu.Unlock()

	block := &rpcclient.BlockFinalizedOut{}
	code = doRequest(t, server, http.MethodGet, "/block/"+testBlockHash+"/finalized", nil, block)
	require.Equal(t, http.StatusOK, code)
	assert.True(t, block.Finalized)
	require.Len(t, block.Deploys, 1)
	assert.Equal(t, signed.Id(), block.Deploys[0].Id)
	assert.True(t, block.Deploys[0].Finalized)

	code = doRequest(t, server, http.MethodGet, "/deploy/"+signed.Id(), nil, out)
	require.Equal(t, http.StatusOK, code)
	assert.True(t, out.Finalized)
	assert.Equal(t, signed, out.Deploy)

	status := &rpcclient.GetStatusOut{}
	code = doRequest(t, server, http.MethodGet, "/status", nil, status)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 0, status.Pending)
	assert.Equal(t, NetworkLocalNet, status.Network)
	require.NotNil(t, status.Node)
	assert.Equal(t, "root", status.Node.ShardId)
}

func TestHttpRpcServer_WatchPending(t *testing.T) {
	server, client, db := newTestServer(t)

	signed, err := SignDeploy(HexKey(testPrivateKeyHex), UnsignedDeploy{Term: "1110", ShardId: "root"})
	require.NoError(t, err)
	require.NoError(t, db.AddDeploy(DeployRecord{Deploy: signed}))
	require.NoError(t, db.SetDeployBlock(signed.Id(), testBlockHash))

	client.finalized[testBlockHash] = true

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		server.WatchPending(ctx, 5*time.Millisecond)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		record, err := db.GetDeploy(signed.Id())
		return err == nil && record.Finalized
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	<-done
}

func TestHttpRpcServer_Errors(t *testing.T) {
	server, _, _ := newTestServer(t)

	testCases := []struct {
		name   string
		method string
		path   string
		in     any
		status int
		err    error
	}{
		{
			name:   "empty term",
			method: http.MethodPost,
			path:   "/deploy/sign",
			in:     &rpcclient.SignDeployIn{PrivateKeyHex: testPrivateKeyHex},
			status: http.StatusBadRequest,
			err:    ErrEmptyTerm,
		},
		{
			name:   "bad private key",
			method: http.MethodPost,
			path:   "/deploy/sign",
			in:     &rpcclient.SignDeployIn{PrivateKeyHex: "zz", Deploy: UnsignedDeploy{Term: "1"}},
			status: http.StatusBadRequest,
			err:    ErrInvalidPrivateKey,
		},
		{
			name:   "unsupported algorithm",
			method: http.MethodPost,
			path:   "/deploy/verify",
			in:     &SignedDeploy{SigAlgorithm: "ed25519"},
			status: http.StatusBadRequest,
			err:    ErrUnsupportedAlgorithm,
		},
		{
			name:   "unknown deploy",
			method: http.MethodGet,
			path:   "/deploy/abcdef",
			status: http.StatusNotFound,
			err:    ErrDeployNotFound,
		},
		{
			name:   "nothing to propose",
			method: http.MethodPost,
			path:   "/propose",
			status: http.StatusBadGateway,
			err:    ErrProposeFailed,
		},
		{
			name:   "node unreachable",
			method: http.MethodGet,
			path:   "/block/latest",
			status: http.StatusBadGateway,
			err:    ErrRpcFailed,
		},
		{
			name:   "bad depth",
			method: http.MethodGet,
			path:   "/blocks/zero",
			status: http.StatusBadRequest,
			err:    ErrInvalidRequest,
		},
		{
			name:   "bad public key",
			method: http.MethodPost,
			path:   "/tools/pubkey-to-address",
			in:     &rpcclient.PublicKeyToAddress{PublicKeyHex: "04ffc016"},
			status: http.StatusBadRequest,
			err:    ErrInvalidPublicKey,
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			rpcErr := &rpcclient.RpcError{}
			code := doRequest(t, server, testCase.method, testCase.path, testCase.in, rpcErr)
			assert.Equal(t, testCase.status, code)
			assert.ErrorIs(t, rpcErr.StdErr(), testCase.err)
		})
	}
}

func TestHttpRpcServer_Tools(t *testing.T) {
	server, _, _ := newTestServer(t)

	out := &rpcclient.PublicKeyToAddressOut{}
	code := doRequest(t, server, http.MethodPost, "/tools/pubkey-to-address", &rpcclient.PublicKeyToAddress{
		PublicKeyHex: "0x" + testPublicKeyHex,
	}, out)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "fac7dde9d0fa1df6355bd1382fe75ba0c50e8840", out.EthAddress)
	assert.Equal(t, "1111AtahZeefej4tvVR6ti9TJtv8yxLebT31SCEVDCKMNikBk5r3g", out.RevAddress)

	var blocks []rpcclient.LightBlockInfo
	code = doRequest(t, server, http.MethodGet, "/blocks/3", nil, &blocks)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, blocks, 3)
}
