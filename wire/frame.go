// File: wire/frame.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Encode/decode the canonical 24-byte header and verify CRC32 over
// header-with-zeroed-crc concatenated with payload. A fixed header lets
// ring.Ring slice frames out without an intermediate allocation for the
// header fields themselves.

package wire

import (
	"encoding/binary"
	"hash/crc32"

	"github.com/cortexide/lapc/api"
)

var zeroCRC = [4]byte{}

// Header is the canonical 24-byte little-endian frame header.
type Header struct {
	Magic      uint32
	Version    uint8
	Flags      byte
	MsgType    MsgType
	PayloadLen uint32
	MessageID  uint64
	CRC32      uint32
}

// Frame is a decoded header paired with its payload slice.
type Frame struct {
	Header  Header
	Payload []byte
}

// Terminal reports whether this frame carries the terminal-chunk flag.
func (f Frame) Terminal() bool { return f.Header.Flags&FlagTerminal != 0 }

// Encode serialises a header+payload into a newly allocated frame, computing
// CRC32 over the header (with its CRC field zeroed) concatenated with the
// payload. Fails with api.ErrPayloadTooLarge when len(payload) > MaxPayload.
func Encode(msgType MsgType, payload []byte, messageID uint64, flags byte) ([]byte, error) {
	if len(payload) > MaxPayload {
		return nil, api.ErrPayloadTooLarge
	}
	buf := make([]byte, HeaderLen+len(payload))
	putHeader(buf, Header{
		Magic:      Magic,
		Version:    Version,
		Flags:      flags,
		MsgType:    msgType,
		PayloadLen: uint32(len(payload)),
		MessageID:  messageID,
	})
	copy(buf[HeaderLen:], payload)
	crc := crc32.ChecksumIEEE(buf)
	binary.LittleEndian.PutUint32(buf[20:24], crc)
	return buf, nil
}

// EncodeInto behaves like Encode but writes into dst, growing it if
// necessary, and returns the frame slice aliasing dst's backing array. Used
// by session to avoid a per-call allocation on the hot path.
func EncodeInto(dst []byte, msgType MsgType, payload []byte, messageID uint64, flags byte) ([]byte, error) {
	if len(payload) > MaxPayload {
		return nil, api.ErrPayloadTooLarge
	}
	total := HeaderLen + len(payload)
	if cap(dst) < total {
		dst = make([]byte, total)
	} else {
		dst = dst[:total]
	}
	putHeader(dst, Header{
		Magic:      Magic,
		Version:    Version,
		Flags:      flags,
		MsgType:    msgType,
		PayloadLen: uint32(len(payload)),
		MessageID:  messageID,
	})
	copy(dst[HeaderLen:], payload)
	crc := crc32.ChecksumIEEE(dst)
	binary.LittleEndian.PutUint32(dst[20:24], crc)
	return dst, nil
}

// Decode parses raw bytes into a Header and payload slice, enforcing
// magic, version, payload size, completeness, and CRC32 integrity checks.
// The returned Payload aliases raw.
func Decode(raw []byte) (Frame, error) {
	if len(raw) < HeaderLen {
		return Frame{}, api.ErrIncomplete
	}
	h := getHeader(raw)
	if h.Magic != Magic {
		return Frame{}, api.ErrBadMagic
	}
	if h.Version != Version {
		return Frame{}, api.ErrUnsupportedVersion
	}
	if h.PayloadLen > MaxPayload {
		return Frame{}, api.ErrPayloadTooLarge
	}
	total := HeaderLen + int(h.PayloadLen)
	if len(raw) < total {
		return Frame{}, api.ErrIncomplete
	}
	storedCRC := h.CRC32
	sum := crc32.NewIEEE()
	sum.Write(raw[0:20])
	sum.Write(zeroCRC[:])
	sum.Write(raw[HeaderLen:total])
	if sum.Sum32() != storedCRC {
		return Frame{}, api.ErrCorrupt
	}
	return Frame{Header: h, Payload: raw[HeaderLen:total]}, nil
}

func putHeader(dst []byte, h Header) {
	binary.LittleEndian.PutUint32(dst[0:4], h.Magic)
	dst[4] = h.Version
	dst[5] = h.Flags
	binary.LittleEndian.PutUint16(dst[6:8], uint16(h.MsgType))
	binary.LittleEndian.PutUint32(dst[8:12], h.PayloadLen)
	binary.LittleEndian.PutUint64(dst[12:20], h.MessageID)
	binary.LittleEndian.PutUint32(dst[20:24], h.CRC32)
}

func getHeader(src []byte) Header {
	return Header{
		Magic:      binary.LittleEndian.Uint32(src[0:4]),
		Version:    src[4],
		Flags:      src[5],
		MsgType:    MsgType(binary.LittleEndian.Uint16(src[6:8])),
		PayloadLen: binary.LittleEndian.Uint32(src[8:12]),
		MessageID:  binary.LittleEndian.Uint64(src[12:20]),
		CRC32:      binary.LittleEndian.Uint32(src[20:24]),
	}
}
