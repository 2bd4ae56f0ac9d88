package verifier

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"google.golang.org/grpc/encoding"
	"google.golang.org/protobuf/encoding/protowire"
)

// BytesChunk is one slice of a receipt file.
//
//	message BytesChunk { bytes data = 1; }
type BytesChunk struct {
	Data []byte
}

// VerifyResponse is the verifier's verdict.
//
//	message VerifyResponse {
//	  bool valid = 1;
//	  string message = 2;
//	  optional string journal_value = 3;
//	}
type VerifyResponse struct {
	Valid        bool
	Message      string
	JournalValue *string
}

const (
	chunkDataField   protowire.Number = 1
	respValidField   protowire.Number = 1
	respMessageField protowire.Number = 2
	respJournalField protowire.Number = 3
)

// MarshalProto encodes the chunk in protobuf wire format.
func (c *BytesChunk) MarshalProto() []byte {
	if len(c.Data) == 0 {
		return nil
	}
	b := make([]byte, 0, len(c.Data)+protowire.SizeTag(chunkDataField)+protowire.SizeVarint(uint64(len(c.Data))))
	b = protowire.AppendTag(b, chunkDataField, protowire.BytesType)
	return protowire.AppendBytes(b, c.Data)
}

// UnmarshalProto decodes the chunk, skipping unknown fields.
func (c *BytesChunk) UnmarshalProto(b []byte) error {
	*c = BytesChunk{}
	return walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num == chunkDataField && typ == protowire.BytesType {
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return n, nil
			}
			c.Data = append([]byte(nil), v...)
			return n, nil
		}
		return protowire.ConsumeFieldValue(num, typ, b), nil
	})
}

// MarshalProto encodes the response in protobuf wire format.
func (r *VerifyResponse) MarshalProto() []byte {
	var b []byte
	if r.Valid {
		b = protowire.AppendTag(b, respValidField, protowire.VarintType)
		b = protowire.AppendVarint(b, protowire.EncodeBool(true))
	}
	if r.Message != "" {
		b = protowire.AppendTag(b, respMessageField, protowire.BytesType)
		b = protowire.AppendString(b, r.Message)
	}
	if r.JournalValue != nil {
		b = protowire.AppendTag(b, respJournalField, protowire.BytesType)
		b = protowire.AppendString(b, *r.JournalValue)
	}
	return b
}

// UnmarshalProto decodes the response, skipping unknown fields.
func (r *VerifyResponse) UnmarshalProto(b []byte) error {
	*r = VerifyResponse{}
	return walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == respValidField && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			r.Valid = protowire.DecodeBool(v)
			return n, nil
		case num == respMessageField && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			r.Message = v
			return n, nil
		case num == respJournalField && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			if n >= 0 {
				r.JournalValue = &v
			}
			return n, nil
		default:
			return protowire.ConsumeFieldValue(num, typ, b), nil
		}
	})
}

func walkFields(b []byte, field func(num protowire.Number, typ protowire.Type, b []byte) (int, error)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return errors.Wrap(protowire.ParseError(n), "decode tag")
		}
		b = b[n:]
		m, err := field(num, typ, b)
		if err != nil {
			return err
		}
		if m < 0 {
			return errors.Wrapf(protowire.ParseError(m), "decode field %d", num)
		}
		b = b[m:]
	}
	return nil
}

type protoMessage interface {
	MarshalProto() []byte
	UnmarshalProto([]byte) error
}

// codec is a grpc encoding.Codec for the hand-written messages above. It is
// forced per call and reports the "proto" name, so the content-subtype on
// the wire matches ordinary protobuf peers.
type codec struct{}

func (codec) Marshal(v any) ([]byte, error) {
	m, ok := v.(protoMessage)
	if !ok {
		return nil, fmt.Errorf("verifier codec: cannot marshal %T", v)
	}
	return m.MarshalProto(), nil
}

func (codec) Unmarshal(data []byte, v any) error {
	m, ok := v.(protoMessage)
	if !ok {
		return fmt.Errorf("verifier codec: cannot unmarshal into %T", v)
	}
	return m.UnmarshalProto(data)
}

func (codec) Name() string { return "proto" }

// Codec returns the wire codec for BytesChunk and VerifyResponse.
func Codec() encoding.Codec {
	return codec{}
}
