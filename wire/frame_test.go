package wire_test

import (
	"bytes"
	"testing"

	"github.com/cortexide/lapc/api"
	"github.com/cortexide/lapc/wire"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	payload := []byte("ping")
	data, err := wire.Encode(wire.MsgData, payload, 1, wire.FlagTerminal)
	if err != nil {
		t.Fatal(err)
	}
	frame, err := wire.Decode(data)
	if err != nil {
		t.Fatal(err)
	}
	if frame.Header.MsgType != wire.MsgData {
		t.Errorf("msg type = %v, want Data", frame.Header.MsgType)
	}
	if frame.Header.MessageID != 1 {
		t.Errorf("message id = %d, want 1", frame.Header.MessageID)
	}
	if !bytes.Equal(frame.Payload, payload) {
		t.Errorf("payload = %q, want %q", frame.Payload, payload)
	}
	if !frame.Terminal() {
		t.Error("expected terminal flag set")
	}
}

func TestEncodeEmptyPayloadRoundTrips(t *testing.T) {
	data, err := wire.Encode(wire.MsgHeartbeat, nil, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	frame, err := wire.Decode(data)
	if err != nil {
		t.Fatal(err)
	}
	if len(frame.Payload) != 0 {
		t.Errorf("expected empty payload, got %d bytes", len(frame.Payload))
	}
}

func TestEncodePayloadTooLarge(t *testing.T) {
	big := make([]byte, wire.MaxPayload+1)
	_, err := wire.Encode(wire.MsgData, big, 1, 0)
	if err != api.ErrPayloadTooLarge {
		t.Errorf("err = %v, want ErrPayloadTooLarge", err)
	}
}

func TestDecodeBadMagic(t *testing.T) {
	data, err := wire.Encode(wire.MsgData, []byte("x"), 1, 0)
	if err != nil {
		t.Fatal(err)
	}
	data[0] ^= 0xFF
	if _, err := wire.Decode(data); err != api.ErrBadMagic {
		t.Errorf("err = %v, want ErrBadMagic", err)
	}
}

func TestDecodeUnsupportedVersion(t *testing.T) {
	data, err := wire.Encode(wire.MsgData, []byte("x"), 1, 0)
	if err != nil {
		t.Fatal(err)
	}
	data[4] = 2
	if _, err := wire.Decode(data); err != api.ErrUnsupportedVersion {
		t.Errorf("err = %v, want ErrUnsupportedVersion", err)
	}
}

func TestDecodeIncomplete(t *testing.T) {
	data, err := wire.Encode(wire.MsgData, []byte("hello"), 1, 0)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := wire.Decode(data[:len(data)-2]); err != api.ErrIncomplete {
		t.Errorf("err = %v, want ErrIncomplete", err)
	}
	if _, err := wire.Decode(data[:10]); err != api.ErrIncomplete {
		t.Errorf("short header: err = %v, want ErrIncomplete", err)
	}
}

func TestDecodeCorruptSingleByteFlip(t *testing.T) {
	data, err := wire.Encode(wire.MsgData, []byte("hello world"), 42, 0)
	if err != nil {
		t.Fatal(err)
	}
	// Bytes 0-3 (magic) and 8-11 (payload_len) are covered by dedicated
	// tests above, since flipping them can legitimately surface BadMagic,
	// UnsupportedVersion, Incomplete, or PayloadTooLarge instead of Corrupt.
	// Flags, msg_type, message_id, and crc32 bytes always surface Corrupt.
	for _, i := range []int{5, 6, 7, 12, 13, 14, 15, 16, 17, 18, 19, 20, 21, 22, 23} {
		mutated := append([]byte(nil), data...)
		mutated[i] ^= 0x01
		if _, err := wire.Decode(mutated); err != api.ErrCorrupt {
			t.Errorf("byte %d: err = %v, want Corrupt", i, err)
		}
	}
}

func TestDecodePayloadTooLarge(t *testing.T) {
	data, err := wire.Encode(wire.MsgData, []byte("x"), 1, 0)
	if err != nil {
		t.Fatal(err)
	}
	// Forge an oversized payload_len without the bytes to match.
	data[8], data[9], data[10], data[11] = 0xFF, 0xFF, 0xFF, 0x7F
	if _, err := wire.Decode(data); err != api.ErrPayloadTooLarge {
		t.Errorf("err = %v, want ErrPayloadTooLarge", err)
	}
}
