package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	. "github.com/alexdcox/rnode-go"
	"github.com/btcsuite/btcd/btcec"
)

var log = Log()

var key string

func main() {
	flag.StringVar(&key, "key", "", "The private (32 byte) or uncompressed public (65 byte) key as hex")
	flag.Parse()

	if key == "" {
		fmt.Println("usage: addr_build --key KEY")
		os.Exit(1)
	}

	key = strings.Trim(key, " \"")

	fmt.Println("")
	fmt.Println("building addresses from existing key")
	fmt.Println("")

	switch {
	case attemptPrivateHex():
	case attemptPublicHex():
	default:
		fmt.Println("invalid key")
	}
}

func attemptPrivateHex() bool {
	keyBytes, err := DecodeHex(key)
	if err != nil || len(keyBytes) != btcec.PrivKeyBytesLen {
		return false
	}

	pk, err := ParsePrivateKey(keyBytes)
	if err != nil {
		return false
	}

	fmt.Println("key type:          private | hex")
	fmt.Printf("key hex:           %x\n", keyBytes)

	encodePubkey(pk.PubKey().SerializeUncompressed())

	return true
}

func attemptPublicHex() bool {
	keyBytes, err := DecodeHex(key)
	if err != nil {
		return false
	}

	if _, err = ParsePublicKey(keyBytes); err != nil {
		return false
	}

	fmt.Println("key type:          public | hex")

	encodePubkey(keyBytes)

	return true
}

func encodePubkey(pub []byte) {
	ethAddr, err := EthAddressFromPublicKey(pub)
	if err != nil {
		log.Fatal().Msgf("%+v", err)
	}

	revAddr, err := RevAddressFromEth(ethAddr)
	if err != nil {
		log.Fatal().Msgf("%+v", err)
	}

	fmt.Printf("public:            %x\n", pub)
	fmt.Printf("eth address:       %s\n", ethAddr)
	fmt.Printf("rev address:       %s\n", revAddr)
}
