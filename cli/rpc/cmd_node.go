package main

import (
	"strconv"

	"github.com/alexdcox/rnode-go/rpcclient"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var cmdPropose = &cobra.Command{
	Use:   "propose",
	Short: "Ask the validator to propose a block",
	Args:  cobra.NoArgs,
	Run:   propose,
}

var cmdFinalized = &cobra.Command{
	Use:   "finalized <block hash>",
	Short: "Check whether a block is finalized",
	Args:  cobra.ExactArgs(1),
	Run:   finalized,
}

var cmdBlocks = &cobra.Command{
	Use:   "blocks [depth]",
	Short: "List the most recent blocks",
	Args:  cobra.MaximumNArgs(1),
	Run:   blocks,
}

var cmdLastFinalized = &cobra.Command{
	Use:   "last-finalized",
	Short: "Show the last finalized block",
	Args:  cobra.NoArgs,
	Run:   lastFinalized,
}

var cmdStatus = &cobra.Command{
	Use:   "status",
	Short: "Show the node status from its http api",
	Args:  cobra.NoArgs,
	Run:   status,
}

var flagPropose struct {
	Async bool
}

var flagFinalized struct {
	Wait bool
}

func init() {
	cmdMain.AddCommand(cmdPropose, cmdFinalized, cmdBlocks, cmdLastFinalized, cmdStatus)

	cmdPropose.Flags().BoolVar(&flagPropose.Async, "async", false, "Do not wait for the block to be created")
	cmdFinalized.Flags().BoolVarP(&flagFinalized.Wait, "wait", "w", false, "Poll until the block is finalized or --timeout expires")
}

func propose(*cobra.Command, []string) {
	ctx, cancel := commandContext()
	defer cancel()

	client, err := dial(ctx, nil)
	check(err)
	defer func() {
		_ = client.Close()
	}()

	result, err := client.Propose(ctx, flagPropose.Async)
	check(err)

	out := &rpcclient.ProposeOut{Result: result}
	if !flagPropose.Async {
		out.BlockHash, err = rpcclient.ParseProposeResult(result)
		check(err)
	}

	printJson(out)
}

func finalized(_ *cobra.Command, args []string) {
	ctx, cancel := commandContext()
	defer cancel()

	client, err := dial(ctx, nil)
	check(err)
	defer func() {
		_ = client.Close()
	}()

	out := &rpcclient.BlockFinalizedOut{BlockHash: args[0]}

	if flagFinalized.Wait {
		check(client.WaitFinalized(ctx, args[0]))
		out.Finalized = true
	} else {
		out.Finalized, err = client.IsFinalized(ctx, args[0])
		check(err)
	}

	printJson(out)
}

func blocks(_ *cobra.Command, args []string) {
	depth := 1
	if len(args) == 1 {
		var err error
		depth, err = strconv.Atoi(args[0])
		if err != nil || depth < 1 {
			fatalf("invalid depth '%s'", args[0])
		}
	}

	ctx, cancel := commandContext()
	defer cancel()

	client, err := dial(ctx, nil)
	check(err)
	defer func() {
		_ = client.Close()
	}()

	blocks, err := client.GetBlocks(ctx, depth)
	check(err)

	printJson(blocks)
}

func lastFinalized(*cobra.Command, []string) {
	ctx, cancel := commandContext()
	defer cancel()

	client, err := dial(ctx, nil)
	check(err)
	defer func() {
		_ = client.Close()
	}()

	block, err := client.LastFinalizedBlock(ctx)
	check(err)

	printJson(block)
}

func status(*cobra.Command, []string) {
	params, err := networkParams()
	check(err)

	urls, err := params.Validator(flagMain.Validator)
	check(err)

	client, err := rpcclient.NewNodeHttpClientForHost(urls)
	check(errors.WithMessage(err, "node http api not configured"))

	ctx, cancel := commandContext()
	defer cancel()

	status, err := client.GetStatus(ctx)
	check(err)

	printJson(status)
}
