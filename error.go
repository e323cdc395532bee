package rnode

import (
	"fmt"
)

var (
	ErrInvalidPrivateKey    = fmt.Errorf("invalid private key")
	ErrInvalidPublicKey     = fmt.Errorf("invalid public key")
	ErrInvalidSignature     = fmt.Errorf("invalid signature")
	ErrUnsupportedAlgorithm = fmt.Errorf("unsupported signature algorithm")
	ErrInvalidDeployData    = fmt.Errorf("invalid deploy data")
	ErrEmptyTerm            = fmt.Errorf("deploy term is empty")
	ErrInvalidRevAddress    = fmt.Errorf("invalid rev address")
	ErrNetworkInvalid       = fmt.Errorf("invalid network")
	ErrDeployNotFound       = fmt.Errorf("deploy not found")
	ErrDeployExists         = fmt.Errorf("deploy already stored")
	ErrRpcFailed            = fmt.Errorf("rpc failed")
	ErrServiceError         = fmt.Errorf("node service error")
	ErrProposeFailed        = fmt.Errorf("propose failed")
	ErrBlockNotFinalized    = fmt.Errorf("block not finalized")
	ErrInvalidRequest       = fmt.Errorf("invalid request")
)

// AllErrors is used to map error strings received over the wire back onto
// the sentinel values above.
var AllErrors = []error{
	ErrInvalidPrivateKey,
	ErrInvalidPublicKey,
	ErrInvalidSignature,
	ErrUnsupportedAlgorithm,
	ErrInvalidDeployData,
	ErrEmptyTerm,
	ErrInvalidRevAddress,
	ErrNetworkInvalid,
	ErrDeployNotFound,
	ErrDeployExists,
	ErrRpcFailed,
	ErrServiceError,
	ErrProposeFailed,
	ErrBlockNotFinalized,
	ErrInvalidRequest,
}
