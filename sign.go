package rnode

import (
	"github.com/btcsuite/btcd/btcec"
	"github.com/pkg/errors"
)

// SignDeploy hashes the canonical encoding of deploy and signs the digest
// with key. The signature is DER encoded with a low S value and the
// deployer is the uncompressed public key.
func SignDeploy(key PrivateKeyInput, deploy UnsignedDeploy) (signed *SignedDeploy, err error) {
	if key == nil {
		err = errors.Wrap(ErrInvalidPrivateKey, "no key given")
		return
	}

	kp, err := key.keyPair()
	if err != nil {
		return
	}

	log.Debug().
		Int("termLength", len(deploy.Term)).
		Int64("timestamp", deploy.Timestamp).
		Int64("phloPrice", deploy.PhloPrice).
		Int64("phloLimit", deploy.PhloLimit).
		Int64("validAfterBlockNumber", deploy.ValidAfterBlockNumber).
		Str("shardId", deploy.ShardId).
		Msg("signing deploy")

	serialized := SerializeDeploy(deploy)
	log.Debug().Msgf("serialized deploy data [%d bytes]: %x", len(serialized), serialized)

	hash := Blake2bSum256(serialized)
	log.Debug().Msgf("deploy hash: %x", hash)

	sig, err := kp.Sign(hash)
	if err != nil {
		err = errors.Wrap(err, "failed to sign deploy hash")
		return
	}

	der := sig.Serialize()
	log.Debug().Msgf("deploy signature (der) [%d bytes]: %x", len(der), der)

	deployer := PublicKeyBytes(kp)
	log.Debug().Msgf("deployer public key [%d bytes]: %x", len(deployer), deployer)

	signed = &SignedDeploy{
		UnsignedDeploy: deploy,
		SigAlgorithm:   SigAlgorithmSecp256k1,
		Deployer:       deployer,
		Sig:            der,
	}

	return
}

// VerifyDeploy recomputes the deploy hash and checks the signature against
// the embedded deployer key. A well formed signature that does not match
// yields false with a nil error. An error is only returned when the
// algorithm, key or signature cannot be parsed.
func VerifyDeploy(deploy *SignedDeploy) (valid bool, err error) {
	if deploy == nil {
		err = errors.Wrap(ErrInvalidDeployData, "nil deploy")
		return
	}

	if deploy.SigAlgorithm != SigAlgorithmSecp256k1 {
		err = errors.Wrapf(ErrUnsupportedAlgorithm, "'%s'", deploy.SigAlgorithm)
		return
	}

	pub, err := ParsePublicKey(deploy.Deployer)
	if err != nil {
		return
	}

	sig, err := btcec.ParseDERSignature(deploy.Sig, btcec.S256())
	if err != nil {
		err = errors.Wrap(ErrInvalidSignature, err.Error())
		return
	}

	hash := HashDeploy(deploy.UnsignedDeploy)
	valid = sig.Verify(hash[:], pub)

	log.Debug().Bool("valid", valid).Str("sig", deploy.Id()).Msg("verified deploy")

	return
}
