package rnode

import (
	"encoding/hex"
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/crypto/blake2b"
)

// HexBytes is a byte slice that marshals to and from a lowercase hex string.
type HexBytes []byte

func (h HexBytes) String() string {
	return hex.EncodeToString(h)
}

func (h HexBytes) MarshalJSON() ([]byte, error) {
	return json.Marshal(h.String())
}

func (h *HexBytes) UnmarshalJSON(data []byte) (err error) {
	var s string
	if err = json.Unmarshal(data, &s); err != nil {
		return errors.WithStack(err)
	}

	decoded, err := DecodeHex(s)
	if err != nil {
		return
	}

	*h = decoded
	return
}

// DecodeHex decodes a hex string, tolerating surrounding whitespace and an
// optional 0x prefix.
func DecodeHex(s string) (out HexBytes, err error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")

	out, err = hex.DecodeString(s)
	if err != nil {
		err = errors.Wrapf(err, "failed to decode hex '%s'", s)
		return
	}

	return
}

// Blake2bSum256 returns the unkeyed 32 byte BLAKE2b digest of data.
func Blake2bSum256(data []byte) []byte {
	sum := blake2b.Sum256(data)
	return sum[:]
}
