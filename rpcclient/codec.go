package rpcclient

import (
	"github.com/pkg/errors"
)

const codecName = "proto"

// ProtoMessage is implemented by every message exchanged with a node. The
// encoding is plain protobuf so no generated stubs are required.
type ProtoMessage interface {
	MarshalProto() ([]byte, error)
	UnmarshalProto(data []byte) error
}

// ProtoCodec implements grpc/encoding.Codec for ProtoMessage values. It is
// forced per call rather than registered so it never replaces the global
// protobuf codec.
type ProtoCodec struct{}

func (ProtoCodec) Marshal(v any) ([]byte, error) {
	m, ok := v.(ProtoMessage)
	if !ok {
		return nil, errors.Errorf("proto codec: cannot marshal %T", v)
	}
	return m.MarshalProto()
}

func (ProtoCodec) Unmarshal(data []byte, v any) error {
	m, ok := v.(ProtoMessage)
	if !ok {
		return errors.Errorf("proto codec: cannot unmarshal into %T", v)
	}
	return m.UnmarshalProto(data)
}

func (ProtoCodec) Name() string { return codecName }
