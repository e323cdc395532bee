package rpcclient

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	. "github.com/alexdcox/rnode-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
)

const testPrivateKeyHex = "5f668a7ee96d944a4494cc947e4005e172d7ab3461ee5538f1f2a45a835e9657"

var testDeploy = UnsignedDeploy{
	Term:      "1110",
	PhloLimit: 50_000,
	PhloPrice: 1,
	ShardId:   "root",
}

// fakeNode answers the deploy and propose services the way a node does.
type fakeNode struct {
	mu            sync.Mutex
	pending       []*SignedDeploy
	blocks        map[string][]*SignedDeploy
	finalized     map[string]bool
	finalizeAfter int
	checks        map[string]int
	dag           []LightBlockInfo
	lastBlockHash string
}

func newFakeNode() *fakeNode {
	return &fakeNode{
		blocks:    map[string][]*SignedDeploy{},
		finalized: map[string]bool{},
		checks:    map[string]int{},
	}
}

func (n *fakeNode) handler(internal bool) grpc.StreamHandler {
	return func(srv any, stream grpc.ServerStream) error {
		method, _ := grpc.MethodFromServerStream(stream)

		n.mu.Lock()
		defer n.mu.Unlock()

		switch {
		case !internal && method == fullMethod(DeployServiceName, "doDeploy"):
			req := &DeployRequest{}
			if err := stream.RecvMsg(req); err != nil {
				return err
			}
			return stream.SendMsg(n.doDeploy(req.Deploy))

		case internal && method == fullMethod(ProposeServiceName, "propose"):
			req := &ProposeQuery{}
			if err := stream.RecvMsg(req); err != nil {
				return err
			}
			return stream.SendMsg(n.propose())

		case !internal && method == fullMethod(DeployServiceName, "isFinalized"):
			req := &IsFinalizedQuery{}
			if err := stream.RecvMsg(req); err != nil {
				return err
			}
			return stream.SendMsg(n.isFinalized(req.Hash))

		case !internal && method == fullMethod(DeployServiceName, "getBlocks"):
			req := &BlocksQuery{}
			if err := stream.RecvMsg(req); err != nil {
				return err
			}
			for i, block := range n.dag {
				if i >= int(req.Depth) {
					break
				}
				if err := stream.SendMsg(&BlockInfoResponse{BlockInfo: &block}); err != nil {
					return err
				}
			}
			return nil

		case !internal && method == fullMethod(DeployServiceName, "lastFinalizedBlock"):
			req := &LastFinalizedBlockQuery{}
			if err := stream.RecvMsg(req); err != nil {
				return err
			}
			return stream.SendMsg(n.lastFinalizedBlock())
		}

		return status.Errorf(codes.Unimplemented, "unknown method %s", method)
	}
}

func (n *fakeNode) doDeploy(deploy *SignedDeploy) *ResultResponse {
	valid, err := VerifyDeploy(deploy)
	if err != nil || !valid {
		return &ResultResponse{Error: &ServiceError{Messages: []string{"Invalid deploy signature"}}}
	}
	n.pending = append(n.pending, deploy)
	return &ResultResponse{Result: "Success!\nDeployId is: " + deploy.Id()}
}

func (n *fakeNode) propose() *ResultResponse {
	if len(n.pending) == 0 {
		return &ResultResponse{Error: &ServiceError{Messages: []string{"Error: NoNewDeploys"}}}
	}

	var sigs []byte
	for _, deploy := range n.pending {
		sigs = append(sigs, deploy.Sig...)
	}
	hash := fmt.Sprintf("%x", Blake2bSum256(sigs))

	n.blocks[hash] = n.pending
	n.pending = nil

	return &ResultResponse{Result: fmt.Sprintf("Success! Block %s created and added.", hash)}
}

func (n *fakeNode) isFinalized(hash string) *IsFinalizedResponse {
	if _, ok := n.blocks[hash]; !ok {
		return &IsFinalizedResponse{Error: &ServiceError{Messages: []string{"Block not found"}}}
	}
	n.checks[hash]++
	if n.checks[hash] > n.finalizeAfter {
		n.finalized[hash] = true
		n.lastBlockHash = hash
	}
	return &IsFinalizedResponse{IsFinalized: n.finalized[hash]}
}

func (n *fakeNode) lastFinalizedBlock() *LastFinalizedBlockResponse {
	if n.lastBlockHash == "" {
		return &LastFinalizedBlockResponse{Error: &ServiceError{Messages: []string{"No finalized block"}}}
	}
	info := &BlockInfo{
		BlockInfo: LightBlockInfo{
			BlockHash:   n.lastBlockHash,
			ShardId:     "root",
			DeployCount: int32(len(n.blocks[n.lastBlockHash])),
		},
	}
	for _, deploy := range n.blocks[n.lastBlockHash] {
		info.Deploys = append(info.Deploys, DeployInfoFromSigned(deploy))
	}
	return &LastFinalizedBlockResponse{BlockInfo: info}
}

func startNode(t *testing.T, node *fakeNode, internal bool) string {
	t.Helper()

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := grpc.NewServer(
		grpc.ForceServerCodec(ProtoCodec{}),
		grpc.UnknownServiceHandler(node.handler(internal)),
	)

	go func() {
		_ = s.Serve(lis)
	}()
	t.Cleanup(s.Stop)

	return lis.Addr().String()
}

func dialNode(t *testing.T, node *fakeNode, store DeployStore) *Client {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := Dial(ctx, &ClientOptions{
		HostPort:         startNode(t, node, false),
		InternalHostPort: startNode(t, node, true),
		DialOptions:      []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())},
		Store:            store,
		PollInterval:     10 * time.Millisecond,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = client.Close()
	})

	return client
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestClient_DeployAndWait(t *testing.T) {
	node := newFakeNode()
	node.finalizeAfter = 2
	store := NewInMemoryDeployStore()
	client := dialNode(t, node, store)
	ctx := testContext(t)

	var mu sync.Mutex
	var events []DeployEvent
	cleanup := client.OnDeployEvent(func(event DeployEvent) {
		mu.Lock()
		events = append(events, event)
		mu.Unlock()
	})
	defer cleanup()

	result, err := client.DeployAndWait(ctx, HexKey(testPrivateKeyHex), testDeploy)
	require.NoError(t, err)

	require.NoError(t, client.events.Wait(time.Second))
	mu.Lock()
	require.Len(t, events, 3)
	assert.Equal(t, DeployEventSubmitted, events[0].Kind)
	assert.Equal(t, DeployEventProposed, events[1].Kind)
	assert.Equal(t, DeployEventFinalized, events[2].Kind)
	assert.Equal(t, result.BlockHash, events[2].BlockHash)
	assert.Equal(t, result.Deploy.Id(), events[2].DeployId)
	mu.Unlock()

	assert.True(t, result.Finalized)
	assert.Equal(t, testDeploy, result.Deploy.UnsignedDeploy)
	assert.Contains(t, result.DeployResult, result.Deploy.Id())
	assert.Len(t, result.BlockHash, 64)

	node.mu.Lock()
	checks := node.checks[result.BlockHash]
	included := node.blocks[result.BlockHash]
	node.mu.Unlock()

	assert.Equal(t, 3, checks, "expected polling until the block finalized")
	require.Len(t, included, 1)
	assert.Equal(t, result.Deploy, included[0])

	record, err := store.GetDeploy(result.Deploy.Id())
	require.NoError(t, err)
	assert.Equal(t, result.BlockHash, record.BlockHash)
	assert.True(t, record.Finalized)

	last, err := client.LastFinalizedBlock(ctx)
	require.NoError(t, err)
	assert.Equal(t, result.BlockHash, last.BlockInfo.BlockHash)
	assert.Equal(t, int32(1), last.BlockInfo.DeployCount)
	require.Len(t, last.Deploys, 1)
	assert.Equal(t, DeployInfoFromSigned(result.Deploy), last.Deploys[0])
}

func TestClient_CloseDeliversEvents(t *testing.T) {
	node := newFakeNode()
	client := dialNode(t, node, nil)
	ctx := testContext(t)

	var mu sync.Mutex
	var kinds []DeployEventKind
	client.OnDeployEvent(func(event DeployEvent) {
		time.Sleep(20 * time.Millisecond)
		mu.Lock()
		kinds = append(kinds, event.Kind)
		mu.Unlock()
	})

	_, err := client.DeployAndWait(ctx, HexKey(testPrivateKeyHex), testDeploy)
	require.NoError(t, err)
	require.NoError(t, client.Close())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []DeployEventKind{DeployEventSubmitted, DeployEventProposed, DeployEventFinalized}, kinds)
}

func TestClient_DoDeployRejected(t *testing.T) {
	node := newFakeNode()
	client := dialNode(t, node, nil)
	ctx := testContext(t)

	signed, err := SignDeploy(HexKey(testPrivateKeyHex), testDeploy)
	require.NoError(t, err)
	signed.Term = "1111"

	_, err = client.DoDeploy(ctx, signed)
	assert.ErrorIs(t, err, ErrServiceError)
	assert.Contains(t, err.Error(), "Invalid deploy signature")

	_, err = client.DoDeploy(ctx, nil)
	assert.ErrorIs(t, err, ErrInvalidDeployData)
}

func TestClient_ProposeWithoutDeploys(t *testing.T) {
	client := dialNode(t, newFakeNode(), nil)

	_, err := client.Propose(testContext(t), false)
	assert.ErrorIs(t, err, ErrProposeFailed)
	assert.Contains(t, err.Error(), "NoNewDeploys")
}

func TestClient_LastFinalizedBlockError(t *testing.T) {
	client := dialNode(t, newFakeNode(), nil)

	_, err := client.LastFinalizedBlock(testContext(t))
	assert.ErrorIs(t, err, ErrServiceError)
}

func TestClient_GetBlocks(t *testing.T) {
	node := newFakeNode()
	for i := 0; i < 3; i++ {
		node.dag = append(node.dag, LightBlockInfo{
			BlockHash:       strings.Repeat(fmt.Sprint(i), 64),
			Sender:          "04ffc016",
			SeqNum:          int64(i),
			ShardId:         "root",
			Timestamp:       1_700_000_000_000 + int64(i),
			ParentsHashList: []string{"aa", "bb"},
			BlockNumber:     int64(10 + i),
			Bonds:           []BondInfo{{Validator: "04ffc016", Stake: 100}},
			BlockSize:       "1024",
			DeployCount:     int32(i),
			FaultTolerance:  0.5,
		})
	}
	client := dialNode(t, node, nil)
	ctx := testContext(t)

	blocks, err := client.GetBlocks(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, node.dag[:2], blocks)

	blocks, err = client.GetBlocks(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, blocks, 3)

	_, err = client.GetBlocks(ctx, 0)
	assert.Error(t, err)
}

func TestClient_WaitFinalizedTimeout(t *testing.T) {
	node := newFakeNode()
	node.finalizeAfter = 1_000_000
	client := dialNode(t, node, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	result, err := client.DeployAndWait(ctx, HexKey(testPrivateKeyHex), testDeploy)
	assert.ErrorIs(t, err, ErrBlockNotFinalized)
	require.NotNil(t, result)
	assert.False(t, result.Finalized)
	assert.NotEmpty(t, result.BlockHash)
}

func TestClient_RefreshPending(t *testing.T) {
	node := newFakeNode()
	node.finalizeAfter = 1_000_000
	store := NewInMemoryDeployStore()
	client := dialNode(t, node, store)
	ctx := testContext(t)

	result, err := client.DeployAndPropose(ctx, HexKey(testPrivateKeyHex), testDeploy)
	require.NoError(t, err)

	finalized, err := client.RefreshPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, finalized)

	node.mu.Lock()
	node.finalizeAfter = 0
	node.mu.Unlock()

	finalized, err = client.RefreshPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, finalized)

	record, err := store.GetDeploy(result.Deploy.Id())
	require.NoError(t, err)
	assert.True(t, record.Finalized)

	pending, err := store.ListPending()
	require.NoError(t, err)
	assert.Len(t, pending, 0)
}

func TestClient_NodeUnavailable(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := lis.Addr().String()
	require.NoError(t, lis.Close())

	client, err := Dial(context.Background(), &ClientOptions{HostPort: addr})
	require.NoError(t, err)
	defer func() {
		_ = client.Close()
	}()

	_, err = client.IsFinalized(testContext(t), "abc")
	assert.ErrorIs(t, err, ErrRpcFailed)
}

func TestParseProposeResult(t *testing.T) {
	hash, err := ParseProposeResult("Success! Block 3f2a9c created and added.")
	require.NoError(t, err)
	assert.Equal(t, "3f2a9c", hash)

	for _, result := range []string{
		"",
		"Error: NoNewDeploys",
		"Success! Block created and added.",
	} {
		_, err = ParseProposeResult(result)
		assert.ErrorIs(t, err, ErrProposeFailed, "result %q", result)
	}
}

func TestClientOptions_Defaults(t *testing.T) {
	options := &ClientOptions{}
	require.NoError(t, options.setDefaults())
	assert.Equal(t, "localhost:40401", options.HostPort)
	assert.Equal(t, "localhost:40402", options.InternalHostPort)
	assert.Len(t, options.DialOptions, 1)
	assert.Equal(t, 2*time.Second, options.PollInterval)

	options = &ClientOptions{Network: NetworkTestNet}
	require.NoError(t, options.setDefaults())
	assert.Equal(t, "146.235.215.215:30001", options.HostPort)
	assert.Equal(t, "146.235.215.215:30002", options.InternalHostPort)

	options = &ClientOptions{HostPort: "node3.example:40401"}
	require.NoError(t, options.setDefaults())
	assert.Equal(t, "node3.example:40402", options.InternalHostPort)

	options = &ClientOptions{HostPort: "no-port"}
	assert.Error(t, options.setDefaults())

	options = &ClientOptions{Network: "devnet"}
	assert.ErrorIs(t, options.setDefaults(), ErrNetworkInvalid)
}
