package rpcclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	. "github.com/alexdcox/rnode-go"
	"github.com/pkg/errors"
)

// httpClient holds the request helpers shared by the gateway and node HTTP
// clients.
type httpClient struct {
	HostPort string
	client   *http.Client
}

func newHttpClient(hostPort string) httpClient {
	if !strings.HasPrefix(hostPort, "http://") && !strings.HasPrefix(hostPort, "https://") {
		hostPort = "http://" + hostPort
	}
	return httpClient{
		HostPort: strings.TrimSuffix(hostPort, "/"),
		client:   &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *httpClient) req(ctx context.Context, method string, path string, body io.Reader) (rsp *http.Response, out []byte, err error) {
	req, err2 := http.NewRequestWithContext(ctx, method, c.HostPort+path, body)
	if err2 != nil {
		err = err2
		return
	}

	if method == http.MethodPost {
		req.Header.Set("Content-Type", "application/json")
	}

	rsp, err = c.client.Do(req)
	if err != nil {
		err = errors.Wrap(ErrRpcFailed, err.Error())
		return
	}
	defer func() {
		_ = rsp.Body.Close()
	}()

	out, err = io.ReadAll(rsp.Body)
	if err != nil {
		err = errors.WithStack(err)
		return
	}

	if rsp.Status[0] != '2' {
		errRsp := &RpcError{}
		if decodeErr := json.Unmarshal(out, errRsp); decodeErr == nil && errRsp.Err != "" {
			err = errRsp

			if stdErr := errRsp.StdErr(); stdErr != nil {
				err = stdErr
			}

			return
		}

		err = errors.Wrapf(ErrRpcFailed, "rpc response code %d with body %s", rsp.StatusCode, string(out))
		return
	}

	return
}

func (c *httpClient) reqUnmarshal(ctx context.Context, method string, path string, body io.Reader, target any) (err error) {
	_, rspBody, err := c.req(ctx, method, path, body)
	if err != nil {
		return
	}

	err = json.Unmarshal(rspBody, target)
	if err != nil {
		err = errors.Wrapf(err, "unable to unmarshal body: %s", string(rspBody))
		return
	}

	return
}

func (c *httpClient) get(ctx context.Context, path string, target any) (err error) {
	return c.reqUnmarshal(ctx, http.MethodGet, path, nil, target)
}

func (c *httpClient) post(ctx context.Context, path string, in any, target any) (err error) {
	jsn, err := json.Marshal(in)
	if err != nil {
		err = errors.WithStack(err)
		return
	}

	return c.reqUnmarshal(ctx, http.MethodPost, path, bytes.NewReader(jsn), target)
}

// NewRpcClient returns a client for the rnode-rpc HTTP gateway.
func NewRpcClient(hostPort string, network Network) (client *RpcClient, err error) {
	if err = network.Validate(); err != nil {
		return
	}
	client = &RpcClient{
		httpClient: newHttpClient(hostPort),
		Network:    network,
	}
	return
}

type RpcClient struct {
	httpClient
	Network Network
}

type SignDeployIn struct {
	PrivateKeyHex string         `json:"privateKeyHex"`
	Deploy        UnsignedDeploy `json:"deploy"`
}

func (c *RpcClient) SignDeploy(in *SignDeployIn) (out *SignedDeploy, err error) {
	out = &SignedDeploy{}
	err = c.post(context.Background(), "/deploy/sign", in, out)
	return
}

type VerifyDeployOut struct {
	Valid bool `json:"valid"`
}

func (c *RpcClient) VerifyDeploy(deploy *SignedDeploy) (out *VerifyDeployOut, err error) {
	out = &VerifyDeployOut{}
	err = c.post(context.Background(), "/deploy/verify", deploy, out)
	return
}

type SubmitDeployOut struct {
	Id     string `json:"id"`
	Result string `json:"result"`
}

func (c *RpcClient) SubmitDeploy(deploy *SignedDeploy) (out *SubmitDeployOut, err error) {
	out = &SubmitDeployOut{}
	err = c.post(context.Background(), "/deploy", deploy, out)
	return
}

type ProposeIn struct {
	IsAsync bool `json:"isAsync"`
}

type ProposeOut struct {
	Result    string `json:"result"`
	BlockHash string `json:"blockHash"`
}

func (c *RpcClient) Propose(in *ProposeIn) (out *ProposeOut, err error) {
	out = &ProposeOut{}
	err = c.post(context.Background(), "/propose", in, out)
	return
}

func (c *RpcClient) GetLatestBlock() (out *BlockInfo, err error) {
	out = &BlockInfo{}
	err = c.get(context.Background(), "/block/latest", out)
	return
}

func (c *RpcClient) GetBlocks(depth int) (out []LightBlockInfo, err error) {
	out = []LightBlockInfo{}
	err = c.get(context.Background(), fmt.Sprintf("/blocks/%d", depth), &out)
	return
}

type DeployRecordOut struct {
	Id        string        `json:"id"`
	Deploy    *SignedDeploy `json:"deploy"`
	Submitted time.Time     `json:"submitted"`
	BlockHash string        `json:"blockHash"`
	Finalized bool          `json:"finalized"`
}

func NewDeployRecordOut(record DeployRecord) DeployRecordOut {
	return DeployRecordOut{
		Id:        record.Id(),
		Deploy:    record.Deploy,
		Submitted: record.Submitted,
		BlockHash: record.BlockHash,
		Finalized: record.Finalized,
	}
}

type BlockFinalizedOut struct {
	BlockHash string            `json:"blockHash"`
	Finalized bool              `json:"finalized"`
	Deploys   []DeployRecordOut `json:"deploys"`
}

func (c *RpcClient) IsBlockFinalized(hash string) (out *BlockFinalizedOut, err error) {
	out = &BlockFinalizedOut{}
	err = c.get(context.Background(), fmt.Sprintf("/block/%s/finalized", hash), out)
	return
}

func (c *RpcClient) GetDeploy(sig string) (out *DeployRecordOut, err error) {
	out = &DeployRecordOut{}
	err = c.get(context.Background(), fmt.Sprintf("/deploy/%s", sig), out)
	return
}

type PublicKeyToAddress struct {
	PublicKeyHex string `json:"publicKeyHex"`
}

type PublicKeyToAddressOut struct {
	EthAddress string `json:"ethAddress"`
	RevAddress string `json:"revAddress"`
}

func (c *RpcClient) PublicKeyToAddress(in *PublicKeyToAddress) (out *PublicKeyToAddressOut, err error) {
	out = &PublicKeyToAddressOut{}
	err = c.post(context.Background(), "/tools/pubkey-to-address", in, out)
	return
}

type GetStatusOut struct {
	Network          Network     `json:"network"`
	ShardId          string      `json:"shardId"`
	GrpcHostPort     string      `json:"grpcHostPort"`
	InternalHostPort string      `json:"internalHostPort"`
	Pending          int         `json:"pending"`
	Node             *NodeStatus `json:"node,omitempty"`
}

func (c *RpcClient) GetStatus() (out *GetStatusOut, err error) {
	out = &GetStatusOut{}
	err = c.get(context.Background(), "/status", out)
	return
}

type RpcError struct {
	Err     string `json:"error"`
	Details string `json:"details"`
}

func (r *RpcError) Error() string {
	return r.Err
}

func (r *RpcError) StdErr() error {
	for _, a := range AllErrors {
		if r.Err == a.Error() {
			return errors.Wrap(a, r.Details)
		}
	}
	return nil
}
