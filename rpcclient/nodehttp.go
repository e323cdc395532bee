package rpcclient

import (
	"context"
	"fmt"
	"net/http"

	. "github.com/alexdcox/rnode-go"
	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
)

// NodeHttpClient reads from the public HTTP API of a node.
type NodeHttpClient struct {
	httpClient
}

func NewNodeHttpClient(httpUrl string) *NodeHttpClient {
	return &NodeHttpClient{httpClient: newHttpClient(httpUrl)}
}

// NewNodeHttpClientForHost uses the HTTP endpoint of a network host.
func NewNodeHttpClientForHost(urls NodeUrls) (client *NodeHttpClient, err error) {
	if urls.HttpUrl == "" {
		return nil, errors.Wrapf(ErrNetworkInvalid, "host %s has no http endpoint", urls.GrpcUrl)
	}
	return NewNodeHttpClient(urls.HttpUrl), nil
}

type NodeVersion struct {
	Api  string `json:"api"`
	Node string `json:"node"`
}

type NodeStatus struct {
	Version      NodeVersion `json:"version"`
	Address      string      `json:"address"`
	NetworkId    string      `json:"networkId"`
	ShardId      string      `json:"shardId"`
	Peers        int64       `json:"peers"`
	Nodes        int64       `json:"nodes"`
	MinPhloPrice int64       `json:"minPhloPrice"`
}

func (c *NodeHttpClient) GetStatus(ctx context.Context) (status *NodeStatus, err error) {
	_, body, err := c.req(ctx, http.MethodGet, "/api/status", nil)
	if err != nil {
		return
	}

	if !gjson.ValidBytes(body) {
		return nil, errors.Wrapf(ErrRpcFailed, "invalid status response: %s", string(body))
	}

	jsn := gjson.ParseBytes(body)
	status = &NodeStatus{
		Version: NodeVersion{
			Api:  jsn.Get("version.api").String(),
			Node: jsn.Get("version.node").String(),
		},
		Address:      jsn.Get("address").String(),
		NetworkId:    jsn.Get("networkId").String(),
		ShardId:      jsn.Get("shardId").String(),
		Peers:        jsn.Get("peers").Int(),
		Nodes:        jsn.Get("nodes").Int(),
		MinPhloPrice: jsn.Get("minPhloPrice").Int(),
	}

	return
}

func (c *NodeHttpClient) GetBlocks(ctx context.Context, depth int) (blocks []LightBlockInfo, err error) {
	if depth < 1 {
		return nil, errors.Errorf("block depth must be positive, got %d", depth)
	}
	blocks = []LightBlockInfo{}
	err = c.get(ctx, fmt.Sprintf("/api/blocks/%d", depth), &blocks)
	return
}
