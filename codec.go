package rnode

import (
	"github.com/pkg/errors"
	"google.golang.org/protobuf/encoding/protowire"
)

// DeployDataProto field numbers.
//
//	message DeployDataProto {
//	  bytes  deployer              = 1;
//	  string term                  = 2;
//	  int64  timestamp             = 3;
//	  bytes  sig                   = 4;
//	  string sigAlgorithm          = 5;
//	  int64  phloPrice             = 7;
//	  int64  phloLimit             = 8;
//	  int64  validAfterBlockNumber = 10;
//	  string shardId               = 11;
//	}
const (
	FieldDeployer              protowire.Number = 1
	FieldTerm                  protowire.Number = 2
	FieldTimestamp             protowire.Number = 3
	FieldSig                   protowire.Number = 4
	FieldSigAlgorithm          protowire.Number = 5
	FieldPhloPrice             protowire.Number = 7
	FieldPhloLimit             protowire.Number = 8
	FieldValidAfterBlockNumber protowire.Number = 10
	FieldShardId               protowire.Number = 11
)

// SerializeDeploy returns the canonical encoding of the unsigned deploy
// fields. Fields holding their default value are not written at all, so a
// deploy with every field at its default encodes to zero bytes.
func SerializeDeploy(d UnsignedDeploy) []byte {
	b := make([]byte, 0, len(d.Term)+len(d.ShardId)+48)
	b = AppendString(b, FieldTerm, d.Term)
	b = AppendInt64(b, FieldTimestamp, d.Timestamp)
	b = AppendInt64(b, FieldPhloPrice, d.PhloPrice)
	b = AppendInt64(b, FieldPhloLimit, d.PhloLimit)
	b = AppendInt64(b, FieldValidAfterBlockNumber, d.ValidAfterBlockNumber)
	b = AppendString(b, FieldShardId, d.ShardId)
	return b
}

// HashDeploy returns the BLAKE2b-256 digest of the canonical encoding.
func HashDeploy(d UnsignedDeploy) (hash [32]byte) {
	copy(hash[:], Blake2bSum256(SerializeDeploy(d)))
	return
}

// MarshalDeployData encodes the complete DeployDataProto message, signature
// fields included, in ascending field order. This is the form sent to the
// node and is never hashed.
func MarshalDeployData(d *SignedDeploy) []byte {
	b := make([]byte, 0, len(d.Term)+len(d.ShardId)+len(d.Deployer)+len(d.Sig)+64)
	b = AppendBytes(b, FieldDeployer, d.Deployer)
	b = AppendString(b, FieldTerm, d.Term)
	b = AppendInt64(b, FieldTimestamp, d.Timestamp)
	b = AppendBytes(b, FieldSig, d.Sig)
	b = AppendString(b, FieldSigAlgorithm, d.SigAlgorithm)
	b = AppendInt64(b, FieldPhloPrice, d.PhloPrice)
	b = AppendInt64(b, FieldPhloLimit, d.PhloLimit)
	b = AppendInt64(b, FieldValidAfterBlockNumber, d.ValidAfterBlockNumber)
	b = AppendString(b, FieldShardId, d.ShardId)
	return b
}

// UnmarshalDeployData decodes a DeployDataProto message. Unknown fields are
// skipped.
func UnmarshalDeployData(data []byte) (d *SignedDeploy, err error) {
	d = &SignedDeploy{}

	err = ConsumeFields(data, func(num protowire.Number, typ protowire.Type, b []byte) int {
		switch {
		case num == FieldDeployer && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			d.Deployer = append(HexBytes{}, v...)
			return n
		case num == FieldSig && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			d.Sig = append(HexBytes{}, v...)
			return n
		case num == FieldTerm && typ == protowire.BytesType:
			return ConsumeString(b, &d.Term)
		case num == FieldSigAlgorithm && typ == protowire.BytesType:
			return ConsumeString(b, &d.SigAlgorithm)
		case num == FieldShardId && typ == protowire.BytesType:
			return ConsumeString(b, &d.ShardId)
		case num == FieldTimestamp && typ == protowire.VarintType:
			return ConsumeInt64(b, &d.Timestamp)
		case num == FieldPhloPrice && typ == protowire.VarintType:
			return ConsumeInt64(b, &d.PhloPrice)
		case num == FieldPhloLimit && typ == protowire.VarintType:
			return ConsumeInt64(b, &d.PhloLimit)
		case num == FieldValidAfterBlockNumber && typ == protowire.VarintType:
			return ConsumeInt64(b, &d.ValidAfterBlockNumber)
		}
		return 0
	})
	if err != nil {
		err = errors.Wrap(ErrInvalidDeployData, err.Error())
		d = nil
		return
	}

	return
}

func AppendString(b []byte, num protowire.Number, v string) []byte {
	if v == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

func AppendBytes(b []byte, num protowire.Number, v []byte) []byte {
	if len(v) == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

// AppendInt64 writes v with protobuf int64 semantics: negative values take
// the full ten byte two's complement varint.
func AppendInt64(b []byte, num protowire.Number, v int64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, uint64(v))
}

func AppendBool(b []byte, num protowire.Number, v bool) []byte {
	if !v {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, protowire.EncodeBool(v))
}

// AppendMessage writes an embedded message. Unlike scalar fields a present
// but empty message is still written.
func AppendMessage(b []byte, num protowire.Number, v []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

// FieldFunc receives each field of a message with b positioned at the start
// of the field value. It returns the number of bytes of b it consumed, a
// negative protowire error code, or zero to have the field skipped.
type FieldFunc func(num protowire.Number, typ protowire.Type, b []byte) int

// ConsumeFields walks every field of an encoded message.
func ConsumeFields(data []byte, fn FieldFunc) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return errors.Wrap(protowire.ParseError(n), "failed to consume field tag")
		}
		data = data[n:]

		m := fn(num, typ, data)
		if m == 0 {
			m = protowire.ConsumeFieldValue(num, typ, data)
		}
		if m < 0 {
			return errors.Wrapf(protowire.ParseError(m), "failed to consume field %d", num)
		}
		data = data[m:]
	}
	return nil
}

func ConsumeString(b []byte, target *string) int {
	v, n := protowire.ConsumeString(b)
	if n > 0 {
		*target = v
	}
	return n
}

func ConsumeInt64(b []byte, target *int64) int {
	v, n := protowire.ConsumeVarint(b)
	if n > 0 {
		*target = int64(v)
	}
	return n
}

func ConsumeInt32(b []byte, target *int32) int {
	v, n := protowire.ConsumeVarint(b)
	if n > 0 {
		*target = int32(v)
	}
	return n
}

func ConsumeUint64(b []byte, target *uint64) int {
	v, n := protowire.ConsumeVarint(b)
	if n > 0 {
		*target = v
	}
	return n
}

func ConsumeBool(b []byte, target *bool) int {
	v, n := protowire.ConsumeVarint(b)
	if n > 0 {
		*target = protowire.DecodeBool(v)
	}
	return n
}
