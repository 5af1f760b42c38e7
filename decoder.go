package consumer

import (
	"encoding/json"

	"github.com/golang/snappy"
	"github.com/pkg/errors"
	"github.com/tinylib/msgp/msgp"
)

// Decoder turns the raw body of a record into a Payload.
type Decoder interface {
	Decode(data []byte) (Payload, error)
}

// DecoderFunc adapts a plain function to the Decoder interface.
type DecoderFunc func(data []byte) (Payload, error)

// Decode calls f(data).
func (f DecoderFunc) Decode(data []byte) (Payload, error) {
	return f(data)
}

// JSONDecoder decodes records holding a JSON object.
type JSONDecoder struct{}

// Decode implements Decoder.
func (JSONDecoder) Decode(data []byte) (Payload, error) {
	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, errors.Wrap(err, "decode json payload")
	}
	if p == nil {
		return nil, errors.New("decode json payload: not an object")
	}
	return p, nil
}

// MsgpackDecoder decodes records holding a msgpack map with string keys.
type MsgpackDecoder struct{}

// Decode implements Decoder.
func (MsgpackDecoder) Decode(data []byte) (Payload, error) {
	m, _, err := msgp.ReadMapStrIntfBytes(data, nil)
	if err != nil {
		return nil, errors.Wrap(err, "decode msgpack payload")
	}
	return Payload(m), nil
}

// SnappyDecoder decompresses a snappy block before handing it to Next.
type SnappyDecoder struct {
	Next Decoder
}

// Decode implements Decoder.
func (d SnappyDecoder) Decode(data []byte) (Payload, error) {
	raw, err := snappy.Decode(nil, data)
	if err != nil {
		return nil, errors.Wrap(err, "decompress snappy payload")
	}
	if d.Next == nil {
		return JSONDecoder{}.Decode(raw)
	}
	return d.Next.Decode(raw)
}

// RawDecoder leaves the payload undecoded; consumers read Record.Data.
type RawDecoder struct{}

// Decode implements Decoder.
func (RawDecoder) Decode([]byte) (Payload, error) { return nil, nil }
