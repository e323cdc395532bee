package rnode

import (
	"time"
)

const SigAlgorithmSecp256k1 = "secp256k1"

// UnsignedDeploy holds the deploy fields covered by the signature.
type UnsignedDeploy struct {
	// Rholang source to execute.
	Term string `json:"term"`
	// Milliseconds since the unix epoch.
	Timestamp             int64  `json:"timestamp"`
	PhloLimit             int64  `json:"phloLimit"`
	PhloPrice             int64  `json:"phloPrice"`
	ValidAfterBlockNumber int64  `json:"validAfterBlockNumber"`
	ShardId               string `json:"shardId"`
}

// Time returns the deploy timestamp as a time.Time.
func (d UnsignedDeploy) Time() time.Time {
	return time.UnixMilli(d.Timestamp)
}

// SignedDeploy is an UnsignedDeploy together with the signature binding it
// to a deployer. It is produced by SignDeploy and is never modified
// afterwards.
type SignedDeploy struct {
	UnsignedDeploy
	SigAlgorithm string   `json:"sigAlgorithm"`
	Deployer     HexBytes `json:"deployer"`
	Sig          HexBytes `json:"sig"`
}

// Unsigned returns a copy of the fields that take part in hashing.
func (d *SignedDeploy) Unsigned() UnsignedDeploy {
	return d.UnsignedDeploy
}

// Id returns the hex signature, which is how the node identifies a deploy.
func (d *SignedDeploy) Id() string {
	return d.Sig.String()
}
