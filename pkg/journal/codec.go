package journal

import (
	"github.com/hashicorp/go-msgpack/v2/codec"
)

// Codec converts journal entries to and from their stored payload.
// Implementations must be deterministic and must not retain the slice passed
// to Decode.
type Codec[E any] interface {
	Encode(entry E) ([]byte, error)
	Decode(data []byte) (E, error)
}

// BytesCodec stores raw byte slices unchanged.
type BytesCodec struct{}

func (BytesCodec) Encode(entry []byte) ([]byte, error) { return entry, nil }

func (BytesCodec) Decode(data []byte) ([]byte, error) {
	return append([]byte(nil), data...), nil
}

// StringCodec stores strings as their UTF-8 bytes.
type StringCodec struct{}

func (StringCodec) Encode(entry string) ([]byte, error) { return []byte(entry), nil }

func (StringCodec) Decode(data []byte) (string, error) { return string(data), nil }

var msgpackHandle = &codec.MsgpackHandle{}

// MsgpackCodec encodes entries with MessagePack, the format hashicorp/raft
// uses for its own log entries.
type MsgpackCodec[E any] struct{}

func (MsgpackCodec[E]) Encode(entry E) ([]byte, error) {
	var out []byte
	if err := codec.NewEncoderBytes(&out, msgpackHandle).Encode(entry); err != nil {
		return nil, err
	}
	return out, nil
}

func (MsgpackCodec[E]) Decode(data []byte) (E, error) {
	var entry E
	err := codec.NewDecoderBytes(data, msgpackHandle).Decode(&entry)
	return entry, err
}
