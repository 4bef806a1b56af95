package codec

import (
	"bytes"
	"errors"
	"reflect"
	"testing"

	"github.com/somebottle/cooperation-daemon/entities"
	"google.golang.org/protobuf/encoding/protowire"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	cases := []*entities.Envelope{
		{Kind: entities.KindLoginInfo, JSON: `{"appName":"a","version":"1.0"}`},
		{Kind: entities.KindPing, JSON: `{}`},
		{Kind: entities.KindFSData, JSON: `{"job_id":"j","offset":0}`, Binary: []byte{0, 1, 2, 255}},
		{Kind: entities.KindFSData, JSON: `{"job_id":"j","offset":4}`, Binary: []byte{}},
		{Kind: entities.KindPing, JSON: `{}`, Binary: []byte{}},
		{Kind: entities.MessageKind(4242), JSON: `[1,2,3]`},
	}
	for _, want := range cases {
		raw, err := Encode(want)
		if err != nil {
			t.Fatalf("Encode(%s): %v", want.Kind, err)
		}
		got, err := Decode(raw)
		if err != nil {
			t.Fatalf("Decode(%s): %v", want.Kind, err)
		}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("round trip mismatch: got %+v, want %+v", got, want)
		}
	}
}

func rawEnvelope(kind uint64, jsonBody string, binary []byte) []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldKind, protowire.VarintType)
	b = protowire.AppendVarint(b, kind)
	b = protowire.AppendTag(b, fieldJSON, protowire.BytesType)
	b = protowire.AppendString(b, jsonBody)
	if binary != nil {
		b = protowire.AppendTag(b, fieldBinary, protowire.BytesType)
		b = protowire.AppendBytes(b, binary)
	}
	return b
}

func TestDecodeMalformed(t *testing.T) {
	inputs := map[string][]byte{
		"empty":        nil,
		"empty json":   rawEnvelope(uint64(entities.KindPing), "", nil),
		"invalid json": rawEnvelope(uint64(entities.KindPing), "{appName:", nil),
		"truncated":    rawEnvelope(uint64(entities.KindPing), `{"a":1}`, nil)[:5],
		"garbage":      {0xff, 0xff, 0xff},
	}
	for name, raw := range inputs {
		if _, err := Decode(raw); !errors.Is(err, ErrMalformed) {
			t.Errorf("%s: expected ErrMalformed, got %v", name, err)
		}
	}
}

func TestBinaryOnlyForFileData(t *testing.T) {
	env := &entities.Envelope{Kind: entities.KindPing, JSON: `{}`, Binary: []byte("x")}
	if _, err := Encode(env); !errors.Is(err, ErrUnexpectedBinary) {
		t.Fatalf("Encode: expected ErrUnexpectedBinary, got %v", err)
	}
	raw := rawEnvelope(uint64(entities.KindShareStart), `{}`, []byte("x"))
	if _, err := Decode(raw); !errors.Is(err, ErrUnexpectedBinary) {
		t.Fatalf("Decode: expected ErrUnexpectedBinary, got %v", err)
	}
}

func TestDecodePayload(t *testing.T) {
	env, err := NewEnvelope(entities.KindLoginInfo, &entities.LoginInfo{AppName: "peer", Version: "1.0"})
	if err != nil {
		t.Fatalf("NewEnvelope: %v", err)
	}
	payload, err := DecodePayload(env)
	if err != nil {
		t.Fatalf("DecodePayload: %v", err)
	}
	lo, ok := payload.(*entities.LoginInfo)
	if !ok {
		t.Fatalf("unexpected payload type %T", payload)
	}
	if lo.AppName != "peer" || lo.Version != "1.0" {
		t.Errorf("unexpected login payload %+v", lo)
	}

	// 结构不匹配的负载
	bad := NewRawEnvelope(entities.KindPing, `{"appName":123}`)
	if _, err := DecodePayload(bad); !errors.Is(err, ErrMalformed) {
		t.Errorf("expected ErrMalformed for mistyped payload, got %v", err)
	}

	// 未知类型
	unknown := NewRawEnvelope(entities.MessageKind(77), `{}`)
	if p, err := DecodePayload(unknown); p != nil || err != nil {
		t.Errorf("unknown kind: got %v, %v", p, err)
	}
}

func TestFrameReadWrite(t *testing.T) {
	var buf bytes.Buffer
	env := &entities.Envelope{Kind: entities.KindPing, JSON: `{"ip":"10.0.0.2"}`}
	if err := WriteHeartbeat(&buf); err != nil {
		t.Fatalf("WriteHeartbeat: %v", err)
	}
	if err := WriteEnvelope(&buf, env); err != nil {
		t.Fatalf("WriteEnvelope: %v", err)
	}

	frameType, payload, err := ReadFrame(&buf, 1024)
	if err != nil || frameType != FrameHeartbeat || payload != nil {
		t.Fatalf("expected heartbeat frame, got %x %v %v", frameType, payload, err)
	}
	frameType, payload, err = ReadFrame(&buf, 1024)
	if err != nil || frameType != FrameEnvelope {
		t.Fatalf("expected envelope frame, got %x %v", frameType, err)
	}
	got, err := Decode(payload)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !reflect.DeepEqual(got, env) {
		t.Errorf("got %+v, want %+v", got, env)
	}
}

func TestFrameTooLarge(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteFrame(&buf, make([]byte, 64)); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	if _, _, err := ReadFrame(&buf, 32); !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("expected ErrFrameTooLarge, got %v", err)
	}
	if _, _, err := ReadFrame(bytes.NewReader([]byte{0x7f}), 32); !errors.Is(err, ErrUnknownFrame) {
		t.Fatalf("expected ErrUnknownFrame, got %v", err)
	}
}
