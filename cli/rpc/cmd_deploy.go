package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	. "github.com/alexdcox/rnode-go"
	"github.com/alexdcox/rnode-go/rpcclient"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var cmdSign = &cobra.Command{
	Use:   "sign",
	Short: "Sign a deploy and print it as json",
	Args:  cobra.NoArgs,
	Run:   signDeploy,
}

var cmdVerify = &cobra.Command{
	Use:   "verify [file]",
	Short: "Verify a signed deploy read from a json file or stdin",
	Args:  cobra.MaximumNArgs(1),
	Run:   verifyDeploy,
}

var cmdDeploy = &cobra.Command{
	Use:   "deploy",
	Short: "Sign, submit and propose a deploy, then wait for its block to finalize",
	Args:  cobra.NoArgs,
	Run:   deploy,
}

type deployFlags struct {
	PrivateKey            string
	Term                  string
	TermFile              string
	Timestamp             int64
	PhloPrice             int64
	PhloLimit             int64
	ValidAfterBlockNumber int64
	ShardId               string
}

var flagSign deployFlags

var flagDeploy struct {
	deployFlags
	DatabasePath string
	NoWait       bool
}

func init() {
	cmdMain.AddCommand(cmdSign, cmdVerify, cmdDeploy)

	for _, c := range []struct {
		cmd   *cobra.Command
		flags *deployFlags
	}{
		{cmdSign, &flagSign},
		{cmdDeploy, &flagDeploy.deployFlags},
	} {
		f := c.cmd.Flags()
		f.StringVarP(&c.flags.PrivateKey, "key", "k", "", "Hex secp256k1 private key, can also be set via RNODE_PRIVATE_KEY")
		f.StringVarP(&c.flags.Term, "term", "t", "", "Rholang term")
		f.StringVarP(&c.flags.TermFile, "file", "f", "", "Read the rholang term from a file")
		f.Int64Var(&c.flags.Timestamp, "timestamp", 0, "Deploy timestamp in unix milliseconds (default: now)")
		f.Int64Var(&c.flags.PhloPrice, "phlo-price", 1, "Phlo price")
		f.Int64Var(&c.flags.PhloLimit, "phlo-limit", 500_000, "Phlo limit")
		f.Int64Var(&c.flags.ValidAfterBlockNumber, "valid-after", 0, "Valid after block number (default: latest finalized block for deploy)")
		f.StringVar(&c.flags.ShardId, "shard", "", "Shard id (default: from network)")
	}

	cmdDeploy.Flags().StringVar(&flagDeploy.DatabasePath, "db", "", "Record the deploy in this sqlite database")
	cmdDeploy.Flags().BoolVar(&flagDeploy.NoWait, "no-wait", false, "Return once the block is proposed")
}

func (f *deployFlags) key() (PrivateKeyInput, error) {
	key := f.PrivateKey
	if key == "" {
		key = os.Getenv("RNODE_PRIVATE_KEY")
	}
	if key == "" {
		return nil, errors.Wrap(ErrInvalidPrivateKey, "no private key given, use --key or RNODE_PRIVATE_KEY")
	}
	return HexKey(key), nil
}

// unsignedDeploy builds the deploy described by the flags. Unset shard and
// timestamp values are filled from the network and the clock.
func (f *deployFlags) unsignedDeploy(params *NetworkParams, now time.Time) (deploy UnsignedDeploy, err error) {
	term := f.Term
	if f.TermFile != "" {
		if term != "" {
			err = errors.New("--term and --file are mutually exclusive")
			return
		}
		var data []byte
		data, err = os.ReadFile(f.TermFile)
		if err != nil {
			err = errors.Wrapf(err, "failed to read term file: %s", f.TermFile)
			return
		}
		term = string(data)
	}

	if term == "" {
		err = errors.Wrap(ErrEmptyTerm, "use --term or --file")
		return
	}

	deploy = UnsignedDeploy{
		Term:                  term,
		Timestamp:             f.Timestamp,
		PhloPrice:             f.PhloPrice,
		PhloLimit:             f.PhloLimit,
		ValidAfterBlockNumber: f.ValidAfterBlockNumber,
		ShardId:               f.ShardId,
	}

	if deploy.Timestamp == 0 {
		deploy.Timestamp = now.UnixMilli()
	}

	if deploy.ShardId == "" && params != nil {
		urls, err2 := params.Validator(flagMain.Validator)
		if err2 != nil {
			err = err2
			return
		}
		deploy.ShardId = urls.ShardId
	}

	return
}

func signDeploy(*cobra.Command, []string) {
	key, err := flagSign.key()
	check(err)

	params, err := networkParams()
	check(err)

	unsigned, err := flagSign.unsignedDeploy(params, time.Now())
	check(err)

	signed, err := SignDeploy(key, unsigned)
	check(err)

	printJson(signed)
}

func readSignedDeploy(r io.Reader) (deploy *SignedDeploy, err error) {
	deploy = &SignedDeploy{}
	if err = json.NewDecoder(r).Decode(deploy); err != nil {
		err = errors.Wrap(ErrInvalidDeployData, err.Error())
	}
	return
}

func verifyDeploy(_ *cobra.Command, args []string) {
	valid, err := runVerify(args)
	check(err)
	if !valid {
		os.Exit(1)
	}
}

func runVerify(args []string) (valid bool, err error) {
	in := io.Reader(os.Stdin)
	if len(args) == 1 {
		f, err := os.Open(args[0])
		if err != nil {
			return false, errors.WithStack(err)
		}
		defer func() {
			_ = f.Close()
		}()
		in = f
	}

	signed, err := readSignedDeploy(in)
	if err != nil {
		return
	}

	valid, err = VerifyDeploy(signed)
	if err != nil {
		return
	}

	printJson(map[string]any{
		"id":    signed.Id(),
		"valid": valid,
	})

	return
}

func deploy(*cobra.Command, []string) {
	check(runDeploy())
}

// runDeploy returns instead of exiting so the store and client are closed,
// and the client's pending events printed, before the process ends.
func runDeploy() (err error) {
	key, err := flagDeploy.key()
	if err != nil {
		return
	}

	params, err := networkParams()
	if err != nil {
		return
	}

	unsigned, err := flagDeploy.unsignedDeploy(params, time.Now())
	if err != nil {
		return
	}

	var store DeployStore
	if flagDeploy.DatabasePath != "" {
		db, err := NewSqlLiteDeployStore(flagDeploy.DatabasePath)
		if err != nil {
			return err
		}
		defer func() {
			_ = db.Close()
		}()
		store = db
	}

	ctx, cancel := commandContext()
	defer cancel()

	client, err := dial(ctx, store)
	if err != nil {
		return
	}
	defer func() {
		_ = client.Close()
	}()

	client.OnDeployEvent(func(event DeployEvent) {
		fmt.Fprintf(os.Stderr, "%s  %-9s  %s %s\n", event.Time.Format(time.TimeOnly), event.Kind, event.DeployId, event.BlockHash)
	})

	if flagDeploy.ValidAfterBlockNumber == 0 {
		block, err := client.LastFinalizedBlock(ctx)
		if err != nil {
			return err
		}
		unsigned.ValidAfterBlockNumber = block.BlockInfo.BlockNumber
		log.Info().Msgf("valid after block %d", unsigned.ValidAfterBlockNumber)
	}

	var result *rpcclient.DeployResult
	if flagDeploy.NoWait {
		result, err = client.DeployAndPropose(ctx, key, unsigned)
	} else {
		result, err = client.DeployAndWait(ctx, key, unsigned)
	}
	if result != nil {
		printJson(result)
	}

	return
}
