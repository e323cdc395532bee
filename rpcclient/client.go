package rpcclient

import (
	"context"
	"crypto/tls"
	"io"
	"net"
	"regexp"
	"strconv"
	"time"

	. "github.com/alexdcox/rnode-go"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
)

var log = Log()

const eventDrainTimeout = 5 * time.Second

const (
	DeployServiceName  = "casper.v1.DeployService"
	ProposeServiceName = "casper.v1.ProposeService"
)

func fullMethod(service, method string) string {
	return "/" + service + "/" + method
}

type ClientOptions struct {
	// HostPort is the external (deploy) gRPC endpoint.
	HostPort string
	// InternalHostPort serves propose. Defaults to the external port + 1.
	InternalHostPort string
	Network          Network
	Params           *NetworkParams
	Validator        int
	TLS              bool
	DialOptions      []grpc.DialOption
	Store            DeployStore
	PollInterval     time.Duration
}

func (o *ClientOptions) setDefaults() (err error) {
	if o.Params == nil && o.HostPort == "" {
		if o.Network == "" {
			o.Network = NetworkLocalNet
		}
		if o.Params, err = o.Network.Params(); err != nil {
			return
		}
	}

	if o.HostPort == "" {
		urls, err2 := o.Params.Validator(o.Validator)
		if err2 != nil {
			return err2
		}
		o.HostPort = urls.GrpcUrl
		if o.InternalHostPort == "" {
			o.InternalHostPort = urls.InternalUrl
		}
	}

	if o.InternalHostPort == "" {
		if o.InternalHostPort, err = internalHostPort(o.HostPort); err != nil {
			return
		}
	}

	if len(o.DialOptions) == 0 {
		creds := insecure.NewCredentials()
		if o.TLS {
			creds = credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS12})
		}
		o.DialOptions = []grpc.DialOption{grpc.WithTransportCredentials(creds)}
	}

	if o.PollInterval == 0 {
		o.PollInterval = time.Second * 2
	}

	return
}

func internalHostPort(hostPort string) (string, error) {
	host, port, err := net.SplitHostPort(hostPort)
	if err != nil {
		return "", errors.Wrapf(err, "invalid grpc host/port '%s'", hostPort)
	}
	p, err := strconv.Atoi(port)
	if err != nil {
		return "", errors.Wrapf(err, "invalid grpc port '%s'", port)
	}
	return net.JoinHostPort(host, strconv.Itoa(p+1)), nil
}

// Client talks to the deploy and propose services of a single node.
type Client struct {
	options  *ClientOptions
	external *grpc.ClientConn
	internal *grpc.ClientConn
	store    DeployStore
	events   PubSubQueue[DeployEvent]
	log      *zerolog.Logger
}

// Dial connects to the external and internal gRPC endpoints of a node.
// Connections are established lazily so Dial does not block on the node.
func Dial(ctx context.Context, options *ClientOptions) (client *Client, err error) {
	if options == nil {
		options = &ClientOptions{}
	}
	if err = options.setDefaults(); err != nil {
		return
	}

	dialOptions := append([]grpc.DialOption{
		grpc.WithDefaultCallOptions(grpc.ForceCodec(ProtoCodec{})),
	}, options.DialOptions...)

	external, err := grpc.DialContext(ctx, options.HostPort, dialOptions...)
	if err != nil {
		err = errors.Wrapf(err, "failed to dial %s", options.HostPort)
		return
	}

	internal, err := grpc.DialContext(ctx, options.InternalHostPort, dialOptions...)
	if err != nil {
		_ = external.Close()
		err = errors.Wrapf(err, "failed to dial %s", options.InternalHostPort)
		return
	}

	log.Info().Msgf("rnode grpc client | external %s | internal %s", options.HostPort, options.InternalHostPort)

	client = &Client{
		options:  options,
		external: external,
		internal: internal,
		store:    options.Store,
		events:   NewQueue[DeployEvent](),
		log:      log,
	}

	return
}

func (c *Client) Options() ClientOptions {
	return *c.options
}

// OnDeployEvent registers fn for the deploys this client submits, proposes
// and sees finalized. Call cleanup to unsubscribe.
func (c *Client) OnDeployEvent(fn func(event DeployEvent)) (cleanup func()) {
	return c.events.On(fn)
}

func (c *Client) emit(kind DeployEventKind, deployId string, blockHash string) {
	c.events.Broadcast(DeployEvent{
		Kind:      kind,
		DeployId:  deployId,
		BlockHash: blockHash,
		Time:      time.Now(),
	})
}

// Close delivers outstanding deploy events, waiting up to
// eventDrainTimeout, then closes both connections.
func (c *Client) Close() (err error) {
	if err2 := c.events.Wait(eventDrainTimeout); err2 != nil {
		c.log.Warn().Msgf("deploy events not delivered before close: %v", err2)
	}
	c.events.Close()
	err = c.external.Close()
	if err2 := c.internal.Close(); err == nil {
		err = err2
	}
	return errors.WithStack(err)
}

func rpcErr(method string, err error) error {
	return errors.Wrapf(ErrRpcFailed, "%s: %v", method, err)
}

// DoDeploy submits a signed deploy and returns the node's result message.
func (c *Client) DoDeploy(ctx context.Context, deploy *SignedDeploy) (result string, err error) {
	if deploy == nil {
		return "", errors.Wrap(ErrInvalidDeployData, "deploy is nil")
	}

	rsp := &ResultResponse{}
	if err = c.external.Invoke(ctx, fullMethod(DeployServiceName, "doDeploy"), &DeployRequest{Deploy: deploy}, rsp); err != nil {
		return "", rpcErr("doDeploy", err)
	}
	if rsp.Error != nil {
		return "", rsp.Error.Err()
	}

	c.log.Debug().Msgf("deploy %s accepted: %s", deploy.Id(), rsp.Result)
	c.emit(DeployEventSubmitted, deploy.Id(), "")

	if c.store != nil {
		err2 := c.store.AddDeploy(DeployRecord{Deploy: deploy, Submitted: time.Now()})
		if err2 != nil && !errors.Is(err2, ErrDeployExists) {
			c.log.Warn().Msgf("failed to record deploy %s: %v", deploy.Id(), err2)
		}
	}

	return rsp.Result, nil
}

// Propose asks the node to create a block from its pending deploys.
func (c *Client) Propose(ctx context.Context, isAsync bool) (result string, err error) {
	rsp := &ResultResponse{}
	if err = c.internal.Invoke(ctx, fullMethod(ProposeServiceName, "propose"), &ProposeQuery{IsAsync: isAsync}, rsp); err != nil {
		return "", rpcErr("propose", err)
	}
	if rsp.Error != nil {
		return "", errors.Wrap(ErrProposeFailed, rsp.Error.Error())
	}
	return rsp.Result, nil
}

func (c *Client) IsFinalized(ctx context.Context, blockHash string) (finalized bool, err error) {
	rsp := &IsFinalizedResponse{}
	if err = c.external.Invoke(ctx, fullMethod(DeployServiceName, "isFinalized"), &IsFinalizedQuery{Hash: blockHash}, rsp); err != nil {
		return false, rpcErr("isFinalized", err)
	}
	if rsp.Error != nil {
		return false, rsp.Error.Err()
	}
	return rsp.IsFinalized, nil
}

// GetBlocks returns the blocks of the top depth levels of the DAG.
func (c *Client) GetBlocks(ctx context.Context, depth int) (blocks []LightBlockInfo, err error) {
	if depth < 1 {
		return nil, errors.Errorf("block depth must be positive, got %d", depth)
	}

	method := fullMethod(DeployServiceName, "getBlocks")
	stream, err := c.external.NewStream(ctx, &grpc.StreamDesc{
		StreamName:    "getBlocks",
		ServerStreams: true,
	}, method)
	if err != nil {
		return nil, rpcErr("getBlocks", err)
	}
	if err = stream.SendMsg(&BlocksQuery{Depth: int32(depth)}); err != nil {
		return nil, rpcErr("getBlocks", err)
	}
	if err = stream.CloseSend(); err != nil {
		return nil, rpcErr("getBlocks", err)
	}

	blocks = []LightBlockInfo{}
	for {
		rsp := &BlockInfoResponse{}
		if err = stream.RecvMsg(rsp); err != nil {
			if errors.Is(err, io.EOF) {
				return blocks, nil
			}
			return nil, rpcErr("getBlocks", err)
		}
		if rsp.Error != nil {
			return nil, rsp.Error.Err()
		}
		if rsp.BlockInfo != nil {
			blocks = append(blocks, *rsp.BlockInfo)
		}
	}
}

func (c *Client) LastFinalizedBlock(ctx context.Context) (block *BlockInfo, err error) {
	rsp := &LastFinalizedBlockResponse{}
	if err = c.external.Invoke(ctx, fullMethod(DeployServiceName, "lastFinalizedBlock"), &LastFinalizedBlockQuery{}, rsp); err != nil {
		return nil, rpcErr("lastFinalizedBlock", err)
	}
	if rsp.Error != nil {
		return nil, rsp.Error.Err()
	}
	if rsp.BlockInfo == nil {
		return nil, errors.Wrap(ErrRpcFailed, "lastFinalizedBlock: empty response")
	}
	return rsp.BlockInfo, nil
}

var proposeResultRegex = regexp.MustCompile(`Success! Block (\w+) created and added\.`)

// ParseProposeResult extracts the block hash from a propose result message.
func ParseProposeResult(result string) (blockHash string, err error) {
	if result == "" {
		return "", errors.Wrap(ErrProposeFailed, "empty propose result")
	}
	matches := proposeResultRegex.FindStringSubmatch(result)
	if len(matches) != 2 {
		return "", errors.Wrapf(ErrProposeFailed, "no block hash in propose result: %s", result)
	}
	return matches[1], nil
}

// WaitFinalized polls the node until the block is finalized or the context
// is done.
func (c *Client) WaitFinalized(ctx context.Context, blockHash string) (err error) {
	ticker := time.NewTicker(c.options.PollInterval)
	defer ticker.Stop()

	for {
		finalized, err2 := c.IsFinalized(ctx, blockHash)
		if err2 != nil && ctx.Err() == nil {
			return err2
		}
		if finalized {
			return nil
		}

		select {
		case <-ctx.Done():
			return errors.Wrapf(ErrBlockNotFinalized, "block %s", blockHash)
		case <-ticker.C:
		}
	}
}

type DeployResult struct {
	Deploy        *SignedDeploy `json:"deploy"`
	DeployResult  string        `json:"deployResult"`
	ProposeResult string        `json:"proposeResult"`
	BlockHash     string        `json:"blockHash"`
	Finalized     bool          `json:"finalized"`
}

// DeployAndPropose signs, verifies and submits the deploy then proposes a
// block containing it.
func (c *Client) DeployAndPropose(ctx context.Context, key PrivateKeyInput, deploy UnsignedDeploy) (result *DeployResult, err error) {
	signed, err := SignDeploy(key, deploy)
	if err != nil {
		return
	}

	valid, err := VerifyDeploy(signed)
	if err != nil {
		return
	}
	if !valid {
		return nil, errors.Wrap(ErrInvalidSignature, "signed deploy failed verification")
	}

	result = &DeployResult{Deploy: signed}

	if result.DeployResult, err = c.DoDeploy(ctx, signed); err != nil {
		return
	}

	if result.ProposeResult, err = c.Propose(ctx, false); err != nil {
		return
	}

	if result.BlockHash, err = ParseProposeResult(result.ProposeResult); err != nil {
		return
	}

	c.log.Info().Msgf("deploy %s proposed in block %s", signed.Id(), result.BlockHash)
	c.emit(DeployEventProposed, signed.Id(), result.BlockHash)

	if c.store != nil {
		if err2 := c.store.SetDeployBlock(signed.Id(), result.BlockHash); err2 != nil {
			c.log.Warn().Msgf("failed to record block for deploy %s: %v", signed.Id(), err2)
		}
	}

	return
}

// DeployAndWait runs DeployAndPropose and then waits for the block to be
// finalized.
func (c *Client) DeployAndWait(ctx context.Context, key PrivateKeyInput, deploy UnsignedDeploy) (result *DeployResult, err error) {
	result, err = c.DeployAndPropose(ctx, key, deploy)
	if err != nil {
		return
	}

	if err = c.WaitFinalized(ctx, result.BlockHash); err != nil {
		return
	}
	result.Finalized = true
	c.emit(DeployEventFinalized, result.Deploy.Id(), result.BlockHash)

	if c.store != nil {
		if err2 := c.store.SetDeployFinalized(result.Deploy.Id(), true); err2 != nil {
			c.log.Warn().Msgf("failed to record finalization for deploy %s: %v", result.Deploy.Id(), err2)
		}
	}

	return
}

// RefreshPending checks the pending deploys in the client's store.
func (c *Client) RefreshPending(ctx context.Context) (finalized int, err error) {
	if c.store == nil {
		return
	}
	return RefreshPending(ctx, c, c.store)
}

type FinalityChecker interface {
	IsFinalized(ctx context.Context, blockHash string) (bool, error)
}

// RefreshPending checks every stored deploy that has been included in a
// block but not yet seen finalized and returns how many became final.
func RefreshPending(ctx context.Context, checker FinalityChecker, store DeployStore) (finalized int, err error) {
	pending, err := store.ListPending()
	if err != nil {
		return
	}

	checked := map[string]bool{}
	for _, record := range pending {
		if record.BlockHash == "" {
			continue
		}

		isFinal, ok := checked[record.BlockHash]
		if !ok {
			if isFinal, err = checker.IsFinalized(ctx, record.BlockHash); err != nil {
				return
			}
			checked[record.BlockHash] = isFinal
		}
		if !isFinal {
			continue
		}

		if err = store.SetDeployFinalized(record.Id(), true); err != nil {
			return
		}
		finalized++
	}

	if finalized > 0 {
		log.Info().Msgf("%d pending deploy(s) finalized", finalized)
	}

	return
}
