package consumer

import (
	"testing"

	"github.com/golang/snappy"
	"github.com/tinylib/msgp/msgp"
)

func TestJSONDecoder(t *testing.T) {
	p, err := JSONDecoder{}.Decode([]byte(`{"order_id":"a1","total":12.5}`))
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if p["order_id"] != "a1" || p["total"] != 12.5 {
		t.Fatalf("unexpected payload %v", p)
	}

	for _, data := range []string{`{"order_id":`, `null`, `not json`} {
		if _, err := (JSONDecoder{}).Decode([]byte(data)); err == nil {
			t.Fatalf("expected an error for %q", data)
		}
	}
}

func TestMsgpackDecoder(t *testing.T) {
	data, err := msgp.AppendMapStrIntf(nil, map[string]interface{}{"order_id": "a1"})
	if err != nil {
		t.Fatalf("encode error: %v", err)
	}

	p, err := MsgpackDecoder{}.Decode(data)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if p["order_id"] != "a1" {
		t.Fatalf("unexpected payload %v", p)
	}

	if _, err := (MsgpackDecoder{}).Decode([]byte(`{"order_id":"a1"}`)); err == nil {
		t.Fatalf("expected an error for a JSON body")
	}
}

func TestSnappyDecoder(t *testing.T) {
	data := snappy.Encode(nil, []byte(`{"order_id":"a1"}`))

	p, err := SnappyDecoder{}.Decode(data)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if p["order_id"] != "a1" {
		t.Fatalf("unexpected payload %v", p)
	}

	next := DecoderFunc(func(raw []byte) (Payload, error) {
		return Payload{"raw": string(raw)}, nil
	})
	p, err = SnappyDecoder{Next: next}.Decode(data)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if p["raw"] != `{"order_id":"a1"}` {
		t.Fatalf("next decoder not called with the decompressed body: %v", p)
	}

	if _, err := (SnappyDecoder{}).Decode([]byte("plain")); err == nil {
		t.Fatalf("expected an error for an uncompressed body")
	}
}

func TestRawDecoder(t *testing.T) {
	p, err := RawDecoder{}.Decode([]byte("anything"))
	if p != nil || err != nil {
		t.Fatalf("raw decoder, want (nil, nil), got (%v, %v)", p, err)
	}
}
