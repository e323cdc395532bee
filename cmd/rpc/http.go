package main

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	. "github.com/alexdcox/rnode-go"
	"github.com/alexdcox/rnode-go/rpcclient"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/pkg/errors"
)

type nodeClient interface {
	DoDeploy(ctx context.Context, deploy *SignedDeploy) (string, error)
	Propose(ctx context.Context, isAsync bool) (string, error)
	IsFinalized(ctx context.Context, blockHash string) (bool, error)
	GetBlocks(ctx context.Context, depth int) ([]rpcclient.LightBlockInfo, error)
	LastFinalizedBlock(ctx context.Context) (*rpcclient.BlockInfo, error)
}

type nodeStatusClient interface {
	GetStatus(ctx context.Context) (*rpcclient.NodeStatus, error)
}

func NewHttpRpcServer(config *_config, db DeployStore, client nodeClient, status nodeStatusClient) (server *HttpRpcServer, err error) {
	if db == nil || client == nil {
		err = errors.New("http rpc server requires a deploy store and node client")
		return
	}

	server = &HttpRpcServer{
		config: config,
		client: client,
		status: status,
		db:     db,
	}
	server.setup()

	return
}

type HttpRpcServer struct {
	app    *fiber.App
	client nodeClient
	status nodeStatusClient
	config *_config
	db     DeployStore
}

func (s *HttpRpcServer) setup() {
	s.app = fiber.New(fiber.Config{
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          30 * time.Second,
		IdleTimeout:           120 * time.Second,
		DisableStartupMessage: true,
	})
	s.app.Use(recover.New())
	s.app.Use(func(c *fiber.Ctx) error {
		rsp := c.Next()
		log.Info().Msgf("http response: [%d] %s - %s %s", c.Response().StatusCode(), c.IP(), c.Method(), c.Path())
		return rsp
	})

	s.app.Post("/deploy/sign", s.postDeploySign)
	s.app.Post("/deploy/verify", s.postDeployVerify)
	s.app.Post("/deploy", s.postDeploy)
	s.app.Get("/deploy/:sig", s.getDeploy)
	s.app.Post("/propose", s.postPropose)
	s.app.Get("/block/latest", s.getLatestBlock)
	s.app.Get("/block/:hash/finalized", s.getBlockFinalized)
	s.app.Get("/blocks/:depth", s.getBlocks)
	s.app.Post("/tools/pubkey-to-address", s.postPubkeyToAddress)
	s.app.Get("/status", s.getStatus)
}

func (s *HttpRpcServer) Start() (err error) {
	log.Info().Msgf("http/rpc server listening on %s", s.config.RpcHostPort)

	err = errors.WithStack(s.app.Listen(s.config.RpcHostPort))

	return
}

func (s *HttpRpcServer) Stop() (err error) {
	return errors.WithStack(s.app.Shutdown())
}

// WatchPending marks stored deploys finalized as the node finalizes their
// blocks. It returns when ctx is done.
func (s *HttpRpcServer) WatchPending(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := rpcclient.RefreshPending(ctx, s.client, s.db); err != nil && ctx.Err() == nil {
				log.Warn().Msgf("failed to refresh pending deploys: %v", err)
			}
		}
	}
}

var errorStatusCodes = []struct {
	status int
	errs   []error
}{
	{
		status: http.StatusNotFound,
		errs:   []error{ErrDeployNotFound},
	},
	{
		status: http.StatusConflict,
		errs:   []error{ErrDeployExists},
	},
	{
		status: http.StatusBadRequest,
		errs: []error{
			ErrInvalidRequest,
			ErrInvalidPrivateKey,
			ErrInvalidPublicKey,
			ErrInvalidSignature,
			ErrUnsupportedAlgorithm,
			ErrInvalidDeployData,
			ErrEmptyTerm,
			ErrInvalidRevAddress,
			ErrNetworkInvalid,
		},
	},
	{
		status: http.StatusBadGateway,
		errs:   []error{ErrRpcFailed, ErrServiceError, ErrProposeFailed},
	},
}

func (s *HttpRpcServer) errorResponse(c *fiber.Ctx, err error) error {
	statusCode := http.StatusInternalServerError

	reportedErr := err

outer:
	for _, class := range errorStatusCodes {
		for _, match := range class.errs {
			if errors.Is(err, match) {
				reportedErr = match
				statusCode = class.status
				break outer
			}
		}
	}

	log.Debug().Msgf("http error response [%d]: %v", statusCode, err)

	return c.Status(statusCode).JSON(map[string]any{
		"error":   reportedErr.Error(),
		"details": fmt.Sprintf("%+v", err),
	})
}

func (s *HttpRpcServer) unmarshalJson(c *fiber.Ctx, target any) (err error) {
	if !strings.HasPrefix(c.Get("Content-Type"), "application/json") {
		return errors.Wrap(ErrInvalidRequest, "expected content type application/json")
	}
	if err = c.BodyParser(target); err != nil {
		return errors.Wrap(ErrInvalidRequest, err.Error())
	}
	return
}

func (s *HttpRpcServer) postDeploySign(c *fiber.Ctx) error {
	in := &rpcclient.SignDeployIn{}
	if err := s.unmarshalJson(c, in); err != nil {
		return s.errorResponse(c, err)
	}

	if in.Deploy.Term == "" {
		return s.errorResponse(c, errors.WithStack(ErrEmptyTerm))
	}

	if in.Deploy.ShardId == "" {
		in.Deploy.ShardId = s.config.shardId
	}

	signed, err := SignDeploy(HexKey(in.PrivateKeyHex), in.Deploy)
	if err != nil {
		return s.errorResponse(c, err)
	}

	return c.JSON(signed)
}

func (s *HttpRpcServer) postDeployVerify(c *fiber.Ctx) error {
	deploy := &SignedDeploy{}
	if err := s.unmarshalJson(c, deploy); err != nil {
		return s.errorResponse(c, err)
	}

	valid, err := VerifyDeploy(deploy)
	if err != nil {
		return s.errorResponse(c, err)
	}

	return c.JSON(&rpcclient.VerifyDeployOut{Valid: valid})
}

func (s *HttpRpcServer) postDeploy(c *fiber.Ctx) error {
	deploy := &SignedDeploy{}
	if err := s.unmarshalJson(c, deploy); err != nil {
		return s.errorResponse(c, err)
	}

	if deploy.Term == "" {
		return s.errorResponse(c, errors.WithStack(ErrEmptyTerm))
	}

	valid, err := VerifyDeploy(deploy)
	if err != nil {
		return s.errorResponse(c, err)
	}
	if !valid {
		return s.errorResponse(c, errors.Wrap(ErrInvalidSignature, "deploy signature does not match its content"))
	}

	result, err := s.client.DoDeploy(c.UserContext(), deploy)
	if err != nil {
		return s.errorResponse(c, err)
	}

	err = s.db.AddDeploy(DeployRecord{Deploy: deploy, Submitted: time.Now()})
	if err != nil && !errors.Is(err, ErrDeployExists) {
		return s.errorResponse(c, err)
	}

	return c.JSON(&rpcclient.SubmitDeployOut{
		Id:     deploy.Id(),
		Result: result,
	})
}

func (s *HttpRpcServer) getDeploy(c *fiber.Ctx) error {
	record, err := s.db.GetDeploy(strings.ToLower(c.Params("sig")))
	if err != nil {
		return s.errorResponse(c, err)
	}

	if record.BlockHash != "" && !record.Finalized {
		finalized, err := s.client.IsFinalized(c.UserContext(), record.BlockHash)
		if err != nil {
			return s.errorResponse(c, err)
		}
		if finalized {
			if err = s.db.SetDeployFinalized(record.Id(), true); err != nil {
				return s.errorResponse(c, err)
			}
			record.Finalized = true
		}
	}

	return c.JSON(rpcclient.NewDeployRecordOut(record))
}

func (s *HttpRpcServer) postPropose(c *fiber.Ctx) error {
	in := &rpcclient.ProposeIn{}
	if len(c.Body()) > 0 {
		if err := s.unmarshalJson(c, in); err != nil {
			return s.errorResponse(c, err)
		}
	}

	result, err := s.client.Propose(c.UserContext(), in.IsAsync)
	if err != nil {
		return s.errorResponse(c, err)
	}

	out := &rpcclient.ProposeOut{Result: result}

	if !in.IsAsync {
		out.BlockHash, err = rpcclient.ParseProposeResult(result)
		if err != nil {
			return s.errorResponse(c, err)
		}

		if err = s.assignPendingToBlock(out.BlockHash); err != nil {
			return s.errorResponse(c, err)
		}
	}

	return c.JSON(out)
}

// assignPendingToBlock attributes every stored deploy without a block to
// the block that was just proposed.
func (s *HttpRpcServer) assignPendingToBlock(blockHash string) (err error) {
	pending, err := s.db.ListPending()
	if err != nil {
		return
	}

	for _, record := range pending {
		if record.BlockHash != "" {
			continue
		}
		if err = s.db.SetDeployBlock(record.Id(), blockHash); err != nil {
			return
		}
	}

	return
}

func (s *HttpRpcServer) getLatestBlock(c *fiber.Ctx) error {
	block, err := s.client.LastFinalizedBlock(c.UserContext())
	if err != nil {
		return s.errorResponse(c, err)
	}

	return c.JSON(block)
}

func (s *HttpRpcServer) getBlocks(c *fiber.Ctx) error {
	depth, err := strconv.Atoi(c.Params("depth"))
	if err != nil || depth < 1 {
		return s.errorResponse(c, errors.Wrapf(ErrInvalidRequest, "invalid block depth '%s'", c.Params("depth")))
	}

	blocks, err := s.client.GetBlocks(c.UserContext(), depth)
	if err != nil {
		return s.errorResponse(c, err)
	}

	return c.JSON(blocks)
}

func (s *HttpRpcServer) getBlockFinalized(c *fiber.Ctx) error {
	hash := c.Params("hash")

	finalized, err := s.client.IsFinalized(c.UserContext(), hash)
	if err != nil {
		return s.errorResponse(c, err)
	}

	records, err := s.db.ListByBlock(hash)
	if err != nil {
		return s.errorResponse(c, err)
	}

	out := &rpcclient.BlockFinalizedOut{
		BlockHash: hash,
		Finalized: finalized,
		Deploys:   []rpcclient.DeployRecordOut{},
	}

	for _, record := range records {
		if finalized && !record.Finalized {
			if err = s.db.SetDeployFinalized(record.Id(), true); err != nil {
				return s.errorResponse(c, err)
			}
			record.Finalized = true
		}
		out.Deploys = append(out.Deploys, rpcclient.NewDeployRecordOut(record))
	}

	return c.JSON(out)
}

func (s *HttpRpcServer) postPubkeyToAddress(c *fiber.Ctx) error {
	var req rpcclient.PublicKeyToAddress
	if err := s.unmarshalJson(c, &req); err != nil {
		return s.errorResponse(c, err)
	}

	log.Debug().Msgf("converting public key to address | public key hex '%s'", req.PublicKeyHex)

	publicKey, err := DecodeHex(req.PublicKeyHex)
	if err != nil {
		return s.errorResponse(c, errors.Wrap(ErrInvalidPublicKey, err.Error()))
	}

	ethAddress, err := EthAddressFromPublicKey(publicKey)
	if err != nil {
		return s.errorResponse(c, err)
	}

	revAddress, err := RevAddressFromEth(ethAddress)
	if err != nil {
		return s.errorResponse(c, err)
	}

	log.Debug().Msgf("encoded address: '%s'", revAddress)

	return c.JSON(&rpcclient.PublicKeyToAddressOut{
		EthAddress: ethAddress.String(),
		RevAddress: revAddress.String(),
	})
}

func (s *HttpRpcServer) getStatus(c *fiber.Ctx) error {
	pending, err := s.db.ListPending()
	if err != nil {
		return s.errorResponse(c, err)
	}

	out := &rpcclient.GetStatusOut{
		Network:          Network(s.config.Network),
		ShardId:          s.config.shardId,
		GrpcHostPort:     s.config.GrpcHostPort,
		InternalHostPort: s.config.InternalHostPort,
		Pending:          len(pending),
	}

	if s.status != nil {
		out.Node, err = s.status.GetStatus(c.UserContext())
		if err != nil {
			log.Warn().Msgf("node status unavailable: %v", err)
		}
	}

	return c.JSON(out)
}
