package rnode

import (
	"bytes"
	"encoding/hex"
	"fmt"

	eth "github.com/ethereum/go-ethereum/crypto"
	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
)

// REV address layout: coin id (3 bytes) | version (1 byte) | keccak256 of the
// eth address (32 bytes) | first 4 bytes of the blake2b-256 of everything
// before it.
var (
	RevCoinId  = []byte{0x00, 0x00, 0x00}
	RevVersion = byte(0x00)
)

const (
	EthAddressLength  = 20
	revPayloadLength  = 3 + 1 + 32
	revChecksumLength = 4
)

type EthAddress []byte

func (a EthAddress) String() string {
	return hex.EncodeToString(a)
}

func (a EthAddress) MarshalJSON() ([]byte, error) {
	return []byte(fmt.Sprintf(`"%s"`, a)), nil
}

type RevAddress string

func (a RevAddress) String() string {
	return string(a)
}

// EthAddressFromPublicKey derives the ethereum style address of an
// uncompressed secp256k1 key: the last 20 bytes of keccak256(X | Y).
func EthAddressFromPublicKey(publicKey []byte) (addr EthAddress, err error) {
	if _, err = ParsePublicKey(publicKey); err != nil {
		return
	}

	hash := eth.Keccak256(publicKey[1:])
	addr = hash[len(hash)-EthAddressLength:]
	return
}

func RevAddressFromEth(ethAddr []byte) (addr RevAddress, err error) {
	if len(ethAddr) != EthAddressLength {
		err = errors.Errorf(
			"expected a %d byte eth address, got %d bytes",
			EthAddressLength,
			len(ethAddr))
		return
	}

	payload := make([]byte, 0, revPayloadLength+revChecksumLength)
	payload = append(payload, RevCoinId...)
	payload = append(payload, RevVersion)
	payload = append(payload, eth.Keccak256(ethAddr)...)

	checksum := Blake2bSum256(payload)[:revChecksumLength]

	addr = RevAddress(base58.Encode(append(payload, checksum...)))
	return
}

func RevAddressFromPublicKey(publicKey []byte) (addr RevAddress, err error) {
	ethAddr, err := EthAddressFromPublicKey(publicKey)
	if err != nil {
		return
	}
	return RevAddressFromEth(ethAddr)
}

// ValidateRevAddress checks the encoding, prefix and checksum of a REV
// address.
func ValidateRevAddress(addr string) (err error) {
	decoded, err := base58.Decode(addr)
	if err != nil {
		return errors.Wrapf(ErrInvalidRevAddress, "failed to decode base58: %v", err)
	}

	if len(decoded) != revPayloadLength+revChecksumLength {
		return errors.Wrapf(
			ErrInvalidRevAddress,
			"expected %d bytes, got %d",
			revPayloadLength+revChecksumLength,
			len(decoded))
	}

	payload, checksum := decoded[:revPayloadLength], decoded[revPayloadLength:]

	if !bytes.Equal(payload[:len(RevCoinId)], RevCoinId) || payload[len(RevCoinId)] != RevVersion {
		return errors.Wrapf(ErrInvalidRevAddress, "unexpected prefix %x", payload[:len(RevCoinId)+1])
	}

	if !bytes.Equal(Blake2bSum256(payload)[:revChecksumLength], checksum) {
		return errors.Wrap(ErrInvalidRevAddress, "checksum mismatch")
	}

	return
}
