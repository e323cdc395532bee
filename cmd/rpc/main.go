package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	. "github.com/alexdcox/rnode-go"
	"github.com/alexdcox/rnode-go/rpcclient"
	"github.com/pkg/errors"
)

type _config struct {
	DatabasePath     string        `json:"databasepath"`
	Network          string        `json:"network"`
	NetworkConfig    string        `json:"networkconfig"`
	Validator        int           `json:"validator"`
	GrpcHostPort     string        `json:"grpchostport"`
	InternalHostPort string        `json:"internalhostport"`
	NodeHttpUrl      string        `json:"nodehttpurl"`
	RpcHostPort      string        `json:"rpchostport"`
	LogLevel         string        `json:"loglevel"`
	PollInterval     time.Duration `json:"pollinterval"`

	params  *NetworkParams
	shardId string
}

func (c *_config) Load() (err error) {
	flag.StringVar(&c.DatabasePath, "databasepath", "rnode-rpc.db", "Path to the rnode-rpc sqlite database")
	flag.StringVar(&c.Network, "network", string(NetworkLocalNet), "Set network (localnet|testnet|mainnet)")
	flag.StringVar(&c.NetworkConfig, "networkconfig", "", "Path to a network parameters json file, overrides -network")
	flag.IntVar(&c.Validator, "validator", 0, "Index of the validator host to connect to")
	flag.StringVar(&c.GrpcHostPort, "grpchostport", "", "Set host:port for the external node grpc api (default: from network)")
	flag.StringVar(&c.InternalHostPort, "internalhostport", "", "Set host:port for the internal node grpc api (default: external port + 1)")
	flag.StringVar(&c.NodeHttpUrl, "nodehttpurl", "", "Set url of the node http api (default: from network)")
	flag.StringVar(&c.RpcHostPort, "rpchostport", "localhost:3002", "Set host:port for the http/rpc listener")
	flag.StringVar(&c.LogLevel, "loglevel", "", "Set the log level (trace|debug|info|warn|error|fatal) Can also be set via the RNODE_LOG_LEVEL environment variable")
	flag.DurationVar(&c.PollInterval, "pollinterval", 5*time.Second, "Interval between finalization checks of pending deploys")
	flag.Parse()

	return c.resolve()
}

func (c *_config) resolve() (err error) {
	c.params, err = ResolveNetwork(Network(c.Network), c.NetworkConfig)
	if err != nil {
		return
	}

	urls, err := c.params.Validator(c.Validator)
	if err != nil {
		return
	}

	if c.GrpcHostPort == "" {
		c.GrpcHostPort = urls.GrpcUrl
		if c.InternalHostPort == "" {
			c.InternalHostPort = urls.InternalUrl
		}
	}

	if c.NodeHttpUrl == "" {
		c.NodeHttpUrl = urls.HttpUrl
	}

	c.shardId = urls.ShardId

	if c.GrpcHostPort == "" {
		return errors.New("node grpc host/port not configured")
	}

	return
}

var log = Log()

var config *_config

func main() {
	config = &_config{}

	if err := config.Load(); err != nil {
		log.Fatal().Msgf("%+v", err)
	}

	if config.LogLevel == "" {
		envLogLevel := os.Getenv("RNODE_LOG_LEVEL")
		if envLogLevel != "" {
			config.LogLevel = envLogLevel
		} else {
			config.LogLevel = "info"
		}
	}
	log.Info().Msgf("setting log level to: '%s'", config.LogLevel)
	if err := SetLogLevel(config.LogLevel); err != nil {
		log.Fatal().Msgf("%+v", err)
	}

	db, err := NewSqlLiteDeployStore(config.DatabasePath)
	if err != nil {
		log.Fatal().Msgf("%+v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client, err := rpcclient.Dial(ctx, &rpcclient.ClientOptions{
		HostPort:         config.GrpcHostPort,
		InternalHostPort: config.InternalHostPort,
		Params:           config.params,
		Validator:        config.Validator,
		PollInterval:     config.PollInterval,
	})
	if err != nil {
		log.Fatal().Msgf("%+v", err)
	}

	var status nodeStatusClient
	if config.NodeHttpUrl != "" {
		status = rpcclient.NewNodeHttpClient(config.NodeHttpUrl)
	}

	httpServer, err := NewHttpRpcServer(config, db, client, status)
	if err != nil {
		log.Fatal().Msgf("%+v", err)
	}

	go httpServer.WatchPending(ctx, config.PollInterval)

	go func() {
		if err := httpServer.Start(); err != nil {
			log.Fatal().Msgf("%+v", err)
		}
	}()

	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	<-c

	log.Info().Msg("caught interrupt/terminate signal, attempting graceful shutdown...")

	cancel()

	if err = httpServer.Stop(); err != nil {
		log.Fatal().Msgf("%+v", err)
	}

	if err = client.Close(); err != nil {
		log.Fatal().Msgf("%+v", err)
	}

	if err = db.Close(); err != nil {
		log.Fatal().Msgf("%+v", err)
	}

	log.Info().Msg("graceful shutdown complete")
}
