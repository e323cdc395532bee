package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	. "github.com/alexdcox/rnode-go"
	"github.com/alexdcox/rnode-go/rpcclient"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var log = Log()

var cmdMain = &cobra.Command{
	Use:               "rnode-rpc",
	Short:             "Sign deploys and talk to an rnode validator",
	Run:               printUsageAndExit1,
	PersistentPreRunE: setup,
}

var flagMain struct {
	Network       string
	NetworkConfig string
	Validator     int
	HostPort      string
	TLS           bool
	LogLevel      string
	Timeout       time.Duration
}

func init() {
	flags := cmdMain.PersistentFlags()
	flags.StringVarP(&flagMain.Network, "network", "n", string(NetworkLocalNet), "Network (localnet|testnet|mainnet)")
	flags.StringVar(&flagMain.NetworkConfig, "network-config", "", "Path to a network parameters json file, overrides --network")
	flags.IntVar(&flagMain.Validator, "validator", 0, "Index of the validator host to use")
	flags.StringVar(&flagMain.HostPort, "host", "", "Node grpc host:port (default: from network)")
	flags.BoolVar(&flagMain.TLS, "tls", false, "Use tls for the grpc connection")
	flags.StringVar(&flagMain.LogLevel, "log-level", "", "Log level, can also be set via RNODE_LOG_LEVEL")
	flags.DurationVar(&flagMain.Timeout, "timeout", 5*time.Minute, "Give up on node requests after this long")
}

func main() {
	check(cmdMain.Execute())
}

func setup(*cobra.Command, []string) error {
	level := flagMain.LogLevel
	if level == "" {
		level = os.Getenv("RNODE_LOG_LEVEL")
	}
	if level == "" {
		level = zerolog.WarnLevel.String()
	}

	return SetLogLevel(level)
}

func printUsageAndExit1(cmd *cobra.Command, _ []string) {
	_ = cmd.Usage()
	os.Exit(1)
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

func check(err error) {
	if err != nil {
		log.Debug().Msgf("%v\n%s", err, StackTracerMessage(err))
		fatalf("%v", err)
	}
}

func printJson(v any) {
	jsn, err := json.MarshalIndent(v, "", "  ")
	check(errors.WithStack(err))
	fmt.Println(string(jsn))
}

func networkParams() (params *NetworkParams, err error) {
	return ResolveNetwork(Network(flagMain.Network), flagMain.NetworkConfig)
}

func clientOptions() (options *rpcclient.ClientOptions, err error) {
	options = &rpcclient.ClientOptions{
		HostPort:  flagMain.HostPort,
		Network:   Network(flagMain.Network),
		Validator: flagMain.Validator,
		TLS:       flagMain.TLS,
	}

	if flagMain.HostPort == "" {
		options.Params, err = networkParams()
	}

	return
}

func dial(ctx context.Context, store DeployStore) (client *rpcclient.Client, err error) {
	options, err := clientOptions()
	if err != nil {
		return
	}
	options.Store = store

	return rpcclient.Dial(ctx, options)
}

func commandContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), flagMain.Timeout)
}
