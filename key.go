package rnode

import (
	"math/big"

	"github.com/btcsuite/btcd/btcec"
	"github.com/pkg/errors"
)

// KeyPair is a materialised secp256k1 key able to sign digests.
// *btcec.PrivateKey satisfies it.
type KeyPair interface {
	Sign(hash []byte) (*btcec.Signature, error)
	PubKey() *btcec.PublicKey
}

var _ KeyPair = (*btcec.PrivateKey)(nil)

// PrivateKeyInput is the key handed to SignDeploy. It is either raw key
// material that still has to be imported (RawKey, HexKey) or a key pair that
// is used as is (WithKeyPair).
type PrivateKeyInput interface {
	keyPair() (KeyPair, error)
}

// RawKey is a big endian secp256k1 scalar.
type RawKey []byte

func (k RawKey) keyPair() (KeyPair, error) {
	return ParsePrivateKey(k)
}

// HexKey is a hex encoded secp256k1 scalar.
type HexKey string

func (k HexKey) keyPair() (KeyPair, error) {
	return ParsePrivateKeyHex(string(k))
}

type keyPairInput struct {
	kp KeyPair
}

func (k keyPairInput) keyPair() (KeyPair, error) {
	if k.kp == nil {
		return nil, errors.Wrap(ErrInvalidPrivateKey, "nil key pair")
	}
	return k.kp, nil
}

// WithKeyPair wraps an already materialised key pair.
func WithKeyPair(kp KeyPair) PrivateKeyInput {
	return keyPairInput{kp}
}

// GenerateKey returns a fresh random secp256k1 key.
func GenerateKey() (key *btcec.PrivateKey, err error) {
	key, err = btcec.NewPrivateKey(btcec.S256())
	if err != nil {
		err = errors.Wrap(err, "failed to generate secp256k1 key")
	}
	return
}

// ParsePrivateKey imports a big endian scalar of at most 32 bytes. Shorter
// input is treated as having leading zeros.
func ParsePrivateKey(raw []byte) (key *btcec.PrivateKey, err error) {
	if len(raw) == 0 || len(raw) > btcec.PrivKeyBytesLen {
		err = errors.Wrapf(ErrInvalidPrivateKey, "expected up to %d bytes, got %d", btcec.PrivKeyBytesLen, len(raw))
		return
	}

	d := new(big.Int).SetBytes(raw)
	if d.Sign() == 0 || d.Cmp(btcec.S256().N) >= 0 {
		err = errors.Wrap(ErrInvalidPrivateKey, "scalar out of range for secp256k1")
		return
	}

	key, _ = btcec.PrivKeyFromBytes(btcec.S256(), raw)
	return
}

func ParsePrivateKeyHex(s string) (key *btcec.PrivateKey, err error) {
	raw, err := DecodeHex(s)
	if err != nil {
		err = errors.Wrap(ErrInvalidPrivateKey, err.Error())
		return
	}
	return ParsePrivateKey(raw)
}

// ParsePublicKey parses a 65 byte uncompressed secp256k1 point.
func ParsePublicKey(raw []byte) (key *btcec.PublicKey, err error) {
	if len(raw) != btcec.PubKeyBytesLenUncompressed || raw[0] != 0x04 {
		err = errors.Wrapf(ErrInvalidPublicKey, "expected %d byte uncompressed key, got %d bytes", btcec.PubKeyBytesLenUncompressed, len(raw))
		return
	}

	key, err = btcec.ParsePubKey(raw, btcec.S256())
	if err != nil {
		err = errors.Wrap(ErrInvalidPublicKey, err.Error())
		return
	}

	return
}

// PublicKeyBytes returns the uncompressed encoding of the key pair's public
// key.
func PublicKeyBytes(kp KeyPair) HexBytes {
	return kp.PubKey().SerializeUncompressed()
}
