package rpcclient

import (
	"math"
	"strings"

	. "github.com/alexdcox/rnode-go"
	"github.com/pkg/errors"
	"google.golang.org/protobuf/encoding/protowire"
)

// Every node response is a oneof over a ServiceError and the payload.
const (
	fieldError   protowire.Number = 1
	fieldPayload protowire.Number = 2
)

func consumeMessage(b []byte, m ProtoMessage, errp *error) int {
	v, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return n
	}
	if err := m.UnmarshalProto(v); err != nil && *errp == nil {
		*errp = err
	}
	return n
}

func appendRepeatedString(b []byte, num protowire.Number, values []string) []byte {
	for _, v := range values {
		b = protowire.AppendTag(b, num, protowire.BytesType)
		b = protowire.AppendString(b, v)
	}
	return b
}

func appendSubMessage(b []byte, num protowire.Number, m ProtoMessage) ([]byte, error) {
	data, err := m.MarshalProto()
	if err != nil {
		return b, err
	}
	return AppendMessage(b, num, data), nil
}

func unmarshalFields(data []byte, fn func(num protowire.Number, typ protowire.Type, b []byte, errp *error) int) error {
	var inner error
	err := ConsumeFields(data, func(num protowire.Number, typ protowire.Type, b []byte) int {
		return fn(num, typ, b, &inner)
	})
	if err != nil {
		return errors.Wrap(err, "failed to decode message")
	}
	return inner
}

// ServiceError carries the messages of a failed node call.
type ServiceError struct {
	Messages []string `json:"messages"`
}

func (e *ServiceError) Error() string {
	return strings.Join(e.Messages, "\n")
}

// Err converts the node failure into a wrapped ErrServiceError.
func (e *ServiceError) Err() error {
	return errors.Wrap(ErrServiceError, e.Error())
}

func (e *ServiceError) MarshalProto() ([]byte, error) {
	return appendRepeatedString(nil, 1, e.Messages), nil
}

func (e *ServiceError) UnmarshalProto(data []byte) error {
	return unmarshalFields(data, func(num protowire.Number, typ protowire.Type, b []byte, _ *error) int {
		if num == 1 && typ == protowire.BytesType {
			var s string
			n := ConsumeString(b, &s)
			e.Messages = append(e.Messages, s)
			return n
		}
		return 0
	})
}

func marshalResponse(serviceErr *ServiceError, payload func(b []byte) ([]byte, error)) ([]byte, error) {
	if serviceErr != nil {
		return appendSubMessage(nil, fieldError, serviceErr)
	}
	return payload(nil)
}

// DeployRequest is the DeployDataProto sent to doDeploy.
type DeployRequest struct {
	Deploy *SignedDeploy
}

func (r *DeployRequest) MarshalProto() ([]byte, error) {
	if r.Deploy == nil {
		return nil, errors.Wrap(ErrInvalidDeployData, "deploy request is empty")
	}
	return MarshalDeployData(r.Deploy), nil
}

func (r *DeployRequest) UnmarshalProto(data []byte) (err error) {
	r.Deploy, err = UnmarshalDeployData(data)
	return
}

// ResultResponse is returned by doDeploy and propose.
type ResultResponse struct {
	Error  *ServiceError
	Result string
}

func (r *ResultResponse) MarshalProto() ([]byte, error) {
	return marshalResponse(r.Error, func(b []byte) ([]byte, error) {
		return AppendString(b, fieldPayload, r.Result), nil
	})
}

func (r *ResultResponse) UnmarshalProto(data []byte) error {
	return unmarshalFields(data, func(num protowire.Number, typ protowire.Type, b []byte, errp *error) int {
		switch {
		case num == fieldError && typ == protowire.BytesType:
			r.Error = &ServiceError{}
			return consumeMessage(b, r.Error, errp)
		case num == fieldPayload && typ == protowire.BytesType:
			return ConsumeString(b, &r.Result)
		}
		return 0
	})
}

type ProposeQuery struct {
	IsAsync bool
}

func (q *ProposeQuery) MarshalProto() ([]byte, error) {
	return AppendBool(nil, 1, q.IsAsync), nil
}

func (q *ProposeQuery) UnmarshalProto(data []byte) error {
	return unmarshalFields(data, func(num protowire.Number, typ protowire.Type, b []byte, _ *error) int {
		if num == 1 && typ == protowire.VarintType {
			return ConsumeBool(b, &q.IsAsync)
		}
		return 0
	})
}

type IsFinalizedQuery struct {
	Hash string
}

func (q *IsFinalizedQuery) MarshalProto() ([]byte, error) {
	return AppendString(nil, 1, q.Hash), nil
}

func (q *IsFinalizedQuery) UnmarshalProto(data []byte) error {
	return unmarshalFields(data, func(num protowire.Number, typ protowire.Type, b []byte, _ *error) int {
		if num == 1 && typ == protowire.BytesType {
			return ConsumeString(b, &q.Hash)
		}
		return 0
	})
}

type IsFinalizedResponse struct {
	Error       *ServiceError
	IsFinalized bool
}

func (r *IsFinalizedResponse) MarshalProto() ([]byte, error) {
	return marshalResponse(r.Error, func(b []byte) ([]byte, error) {
		return AppendBool(b, fieldPayload, r.IsFinalized), nil
	})
}

func (r *IsFinalizedResponse) UnmarshalProto(data []byte) error {
	return unmarshalFields(data, func(num protowire.Number, typ protowire.Type, b []byte, errp *error) int {
		switch {
		case num == fieldError && typ == protowire.BytesType:
			r.Error = &ServiceError{}
			return consumeMessage(b, r.Error, errp)
		case num == fieldPayload && typ == protowire.VarintType:
			return ConsumeBool(b, &r.IsFinalized)
		}
		return 0
	})
}

type BlocksQuery struct {
	Depth int32
}

func (q *BlocksQuery) MarshalProto() ([]byte, error) {
	return AppendInt64(nil, 1, int64(q.Depth)), nil
}

func (q *BlocksQuery) UnmarshalProto(data []byte) error {
	return unmarshalFields(data, func(num protowire.Number, typ protowire.Type, b []byte, _ *error) int {
		if num == 1 && typ == protowire.VarintType {
			return ConsumeInt32(b, &q.Depth)
		}
		return 0
	})
}

// BlockInfoResponse is one element of the getBlocks stream.
type BlockInfoResponse struct {
	Error     *ServiceError
	BlockInfo *LightBlockInfo
}

func (r *BlockInfoResponse) MarshalProto() ([]byte, error) {
	return marshalResponse(r.Error, func(b []byte) ([]byte, error) {
		if r.BlockInfo == nil {
			return b, nil
		}
		return appendSubMessage(b, fieldPayload, r.BlockInfo)
	})
}

func (r *BlockInfoResponse) UnmarshalProto(data []byte) error {
	return unmarshalFields(data, func(num protowire.Number, typ protowire.Type, b []byte, errp *error) int {
		switch {
		case num == fieldError && typ == protowire.BytesType:
			r.Error = &ServiceError{}
			return consumeMessage(b, r.Error, errp)
		case num == fieldPayload && typ == protowire.BytesType:
			r.BlockInfo = &LightBlockInfo{}
			return consumeMessage(b, r.BlockInfo, errp)
		}
		return 0
	})
}

type LastFinalizedBlockQuery struct{}

func (q *LastFinalizedBlockQuery) MarshalProto() ([]byte, error) {
	return nil, nil
}

func (q *LastFinalizedBlockQuery) UnmarshalProto(data []byte) error {
	return unmarshalFields(data, func(protowire.Number, protowire.Type, []byte, *error) int {
		return 0
	})
}

type LastFinalizedBlockResponse struct {
	Error     *ServiceError
	BlockInfo *BlockInfo
}

func (r *LastFinalizedBlockResponse) MarshalProto() ([]byte, error) {
	return marshalResponse(r.Error, func(b []byte) ([]byte, error) {
		if r.BlockInfo == nil {
			return b, nil
		}
		return appendSubMessage(b, fieldPayload, r.BlockInfo)
	})
}

func (r *LastFinalizedBlockResponse) UnmarshalProto(data []byte) error {
	return unmarshalFields(data, func(num protowire.Number, typ protowire.Type, b []byte, errp *error) int {
		switch {
		case num == fieldError && typ == protowire.BytesType:
			r.Error = &ServiceError{}
			return consumeMessage(b, r.Error, errp)
		case num == fieldPayload && typ == protowire.BytesType:
			r.BlockInfo = &BlockInfo{}
			return consumeMessage(b, r.BlockInfo, errp)
		}
		return 0
	})
}

// BlockInfo is a block header together with the deploys it contains.
type BlockInfo struct {
	BlockInfo LightBlockInfo `json:"blockInfo"`
	Deploys   []DeployInfo   `json:"deploys"`
}

func (bi *BlockInfo) MarshalProto() (b []byte, err error) {
	if b, err = appendSubMessage(b, 1, &bi.BlockInfo); err != nil {
		return
	}
	for i := range bi.Deploys {
		if b, err = appendSubMessage(b, 2, &bi.Deploys[i]); err != nil {
			return
		}
	}
	return
}

func (bi *BlockInfo) UnmarshalProto(data []byte) error {
	return unmarshalFields(data, func(num protowire.Number, typ protowire.Type, b []byte, errp *error) int {
		if typ != protowire.BytesType {
			return 0
		}
		switch num {
		case 1:
			return consumeMessage(b, &bi.BlockInfo, errp)
		case 2:
			deploy := DeployInfo{}
			n := consumeMessage(b, &deploy, errp)
			bi.Deploys = append(bi.Deploys, deploy)
			return n
		}
		return 0
	})
}

type BondInfo struct {
	Validator string `json:"validator"`
	Stake     int64  `json:"stake"`
}

func (bi *BondInfo) MarshalProto() ([]byte, error) {
	b := AppendString(nil, 1, bi.Validator)
	return AppendInt64(b, 2, bi.Stake), nil
}

func (bi *BondInfo) UnmarshalProto(data []byte) error {
	return unmarshalFields(data, func(num protowire.Number, typ protowire.Type, b []byte, _ *error) int {
		switch {
		case num == 1 && typ == protowire.BytesType:
			return ConsumeString(b, &bi.Validator)
		case num == 2 && typ == protowire.VarintType:
			return ConsumeInt64(b, &bi.Stake)
		}
		return 0
	})
}

// LightBlockInfo is the block summary returned by getBlocks and the node's
// /api/blocks endpoint.
type LightBlockInfo struct {
	BlockHash       string     `json:"blockHash"`
	Sender          string     `json:"sender"`
	SeqNum          int64      `json:"seqNum"`
	Sig             string     `json:"sig"`
	SigAlgorithm    string     `json:"sigAlgorithm"`
	ShardId         string     `json:"shardId"`
	Version         int64      `json:"version"`
	Timestamp       int64      `json:"timestamp"`
	ParentsHashList []string   `json:"parentsHashList"`
	BlockNumber     int64      `json:"blockNumber"`
	PreStateHash    string     `json:"preStateHash"`
	PostStateHash   string     `json:"postStateHash"`
	Bonds           []BondInfo `json:"bonds"`
	BlockSize       string     `json:"blockSize"`
	DeployCount     int32      `json:"deployCount"`
	FaultTolerance  float32    `json:"faultTolerance"`
}

func (l *LightBlockInfo) MarshalProto() (b []byte, err error) {
	b = AppendString(b, 1, l.BlockHash)
	b = AppendString(b, 2, l.Sender)
	b = AppendInt64(b, 3, l.SeqNum)
	b = AppendString(b, 4, l.Sig)
	b = AppendString(b, 5, l.SigAlgorithm)
	b = AppendString(b, 6, l.ShardId)
	b = AppendInt64(b, 8, l.Version)
	b = AppendInt64(b, 9, l.Timestamp)
	b = appendRepeatedString(b, 11, l.ParentsHashList)
	b = AppendInt64(b, 12, l.BlockNumber)
	b = AppendString(b, 13, l.PreStateHash)
	b = AppendString(b, 14, l.PostStateHash)
	for i := range l.Bonds {
		if b, err = appendSubMessage(b, 16, &l.Bonds[i]); err != nil {
			return
		}
	}
	b = AppendString(b, 17, l.BlockSize)
	b = AppendInt64(b, 18, int64(l.DeployCount))
	if l.FaultTolerance != 0 {
		b = protowire.AppendTag(b, 19, protowire.Fixed32Type)
		b = protowire.AppendFixed32(b, math.Float32bits(l.FaultTolerance))
	}
	return
}

func (l *LightBlockInfo) UnmarshalProto(data []byte) error {
	return unmarshalFields(data, func(num protowire.Number, typ protowire.Type, b []byte, errp *error) int {
		switch typ {
		case protowire.BytesType:
			switch num {
			case 1:
				return ConsumeString(b, &l.BlockHash)
			case 2:
				return ConsumeString(b, &l.Sender)
			case 4:
				return ConsumeString(b, &l.Sig)
			case 5:
				return ConsumeString(b, &l.SigAlgorithm)
			case 6:
				return ConsumeString(b, &l.ShardId)
			case 11:
				var parent string
				n := ConsumeString(b, &parent)
				l.ParentsHashList = append(l.ParentsHashList, parent)
				return n
			case 13:
				return ConsumeString(b, &l.PreStateHash)
			case 14:
				return ConsumeString(b, &l.PostStateHash)
			case 16:
				bond := BondInfo{}
				n := consumeMessage(b, &bond, errp)
				l.Bonds = append(l.Bonds, bond)
				return n
			case 17:
				return ConsumeString(b, &l.BlockSize)
			}
		case protowire.VarintType:
			switch num {
			case 3:
				return ConsumeInt64(b, &l.SeqNum)
			case 8:
				return ConsumeInt64(b, &l.Version)
			case 9:
				return ConsumeInt64(b, &l.Timestamp)
			case 12:
				return ConsumeInt64(b, &l.BlockNumber)
			case 18:
				return ConsumeInt32(b, &l.DeployCount)
			}
		case protowire.Fixed32Type:
			if num == 19 {
				v, n := protowire.ConsumeFixed32(b)
				if n > 0 {
					l.FaultTolerance = math.Float32frombits(v)
				}
				return n
			}
		}
		return 0
	})
}

// DeployInfo describes a deploy included in a block.
type DeployInfo struct {
	Deployer              string `json:"deployer"`
	Term                  string `json:"term"`
	Timestamp             int64  `json:"timestamp"`
	Sig                   string `json:"sig"`
	SigAlgorithm          string `json:"sigAlgorithm"`
	PhloPrice             int64  `json:"phloPrice"`
	PhloLimit             int64  `json:"phloLimit"`
	ValidAfterBlockNumber int64  `json:"validAfterBlockNumber"`
	Cost                  uint64 `json:"cost"`
	Errored               bool   `json:"errored"`
	SystemDeployError     string `json:"systemDeployError"`
}

func (d *DeployInfo) MarshalProto() ([]byte, error) {
	b := AppendString(nil, 1, d.Deployer)
	b = AppendString(b, 2, d.Term)
	b = AppendInt64(b, 3, d.Timestamp)
	b = AppendString(b, 4, d.Sig)
	b = AppendString(b, 5, d.SigAlgorithm)
	b = AppendInt64(b, 7, d.PhloPrice)
	b = AppendInt64(b, 8, d.PhloLimit)
	b = AppendInt64(b, 9, d.ValidAfterBlockNumber)
	if d.Cost != 0 {
		b = protowire.AppendTag(b, 10, protowire.VarintType)
		b = protowire.AppendVarint(b, d.Cost)
	}
	b = AppendBool(b, 11, d.Errored)
	b = AppendString(b, 12, d.SystemDeployError)
	return b, nil
}

func (d *DeployInfo) UnmarshalProto(data []byte) error {
	return unmarshalFields(data, func(num protowire.Number, typ protowire.Type, b []byte, _ *error) int {
		switch typ {
		case protowire.BytesType:
			switch num {
			case 1:
				return ConsumeString(b, &d.Deployer)
			case 2:
				return ConsumeString(b, &d.Term)
			case 4:
				return ConsumeString(b, &d.Sig)
			case 5:
				return ConsumeString(b, &d.SigAlgorithm)
			case 12:
				return ConsumeString(b, &d.SystemDeployError)
			}
		case protowire.VarintType:
			switch num {
			case 3:
				return ConsumeInt64(b, &d.Timestamp)
			case 7:
				return ConsumeInt64(b, &d.PhloPrice)
			case 8:
				return ConsumeInt64(b, &d.PhloLimit)
			case 9:
				return ConsumeInt64(b, &d.ValidAfterBlockNumber)
			case 10:
				return ConsumeUint64(b, &d.Cost)
			case 11:
				return ConsumeBool(b, &d.Errored)
			}
		}
		return 0
	})
}

// DeployInfoFromSigned returns the DeployInfo a node reports once the signed
// deploy is included in a block.
func DeployInfoFromSigned(d *SignedDeploy) DeployInfo {
	return DeployInfo{
		Deployer:              d.Deployer.String(),
		Term:                  d.Term,
		Timestamp:             d.Timestamp,
		Sig:                   d.Sig.String(),
		SigAlgorithm:          d.SigAlgorithm,
		PhloPrice:             d.PhloPrice,
		PhloLimit:             d.PhloLimit,
		ValidAfterBlockNumber: d.ValidAfterBlockNumber,
	}
}
