package rnode

import (
	"time"
)

// DeployRecord tracks a deploy submitted to a node through to finalization.
type DeployRecord struct {
	Deploy    *SignedDeploy `json:"deploy"`
	Submitted time.Time     `json:"submitted"`
	// Hash of the block the deploy was proposed in, empty until known.
	BlockHash string `json:"blockHash,omitempty"`
	Finalized bool   `json:"finalized"`
}

// Id is the hex deploy signature.
func (r DeployRecord) Id() string {
	return r.Deploy.Id()
}

type DeployStore interface {
	AddDeploy(record DeployRecord) (err error)
	GetDeploy(id string) (record DeployRecord, err error)

	SetDeployBlock(id string, blockHash string) (err error)
	SetDeployFinalized(id string, finalized bool) (err error)

	// ListPending returns deploys that are not yet finalized, oldest first.
	ListPending() (records []DeployRecord, err error)
	// ListByBlock returns the deploys proposed in the given block.
	ListByBlock(blockHash string) (records []DeployRecord, err error)
}
