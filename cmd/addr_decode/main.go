package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	. "github.com/alexdcox/rnode-go"
	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
)

var log = Log()

var address string

func main() {
	flag.StringVar(&address, "address", "", "The REV address to decode")
	flag.Parse()

	if address == "" {
		fmt.Println("usage: addr_decode --address REV")
		os.Exit(1)
	}

	address = strings.Trim(address, " \"")

	fmt.Printf("\ndecoding address:  %s\n\n", address)

	if err := ValidateRevAddress(address); err != nil {
		fmt.Printf("failed / invalid: %v\n", err)
		os.Exit(1)
	}

	decoded, err := base58.Decode(address)
	if err != nil {
		log.Fatal().Msgf("%+v", errors.WithStack(err))
	}

	prefix := len(RevCoinId) + 1

	fmt.Printf("coin id:           %x\n", decoded[:len(RevCoinId)])
	fmt.Printf("version:           %x\n", decoded[len(RevCoinId)])
	fmt.Printf("eth hash:          %x\n", decoded[prefix:prefix+32])
	fmt.Printf("checksum:          %x\n", decoded[prefix+32:])
}
