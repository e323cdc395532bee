package main

import (
	"fmt"

	. "github.com/alexdcox/rnode-go"
)

var log = Log()

func main() {
	key, err := GenerateKey()
	if err != nil {
		log.Fatal().Msgf("%+v", err)
	}

	pub := key.PubKey().SerializeUncompressed()

	ethAddr, err := EthAddressFromPublicKey(pub)
	if err != nil {
		log.Fatal().Msgf("%+v", err)
	}

	revAddr, err := RevAddressFromEth(ethAddr)
	if err != nil {
		log.Fatal().Msgf("%+v", err)
	}

	fmt.Println("")
	fmt.Println("Generated new rnode key:")
	fmt.Println("")
	fmt.Printf("key type:       %s\n", SigAlgorithmSecp256k1)
	fmt.Printf("private:        %x\n", key.Serialize())
	fmt.Printf("public:         %x\n", pub)
	fmt.Printf("eth address:    %s\n", ethAddr)
	fmt.Printf("rev address:    %s\n", revAddr)
}
