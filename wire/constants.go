// File: wire/constants.go
// Package wire implements the canonical 24-byte framed wire protocol
// shared by every ring in a slot.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package wire

// Magic identifies a canonical frame header. Spelled "LAPC" in ASCII,
// little-endian as a uint32.
const Magic uint32 = 0x4C415043

// Version is the only wire version this module speaks.
const Version uint8 = 1

// HeaderLen is the fixed size of the canonical header in bytes.
const HeaderLen = 24

// MaxPayload bounds a single frame's payload.
const MaxPayload = 10 << 20 // 10 MiB

// MsgType is a closed set of message types dispatched by exhaustive switch
// at the session boundary; there is no handler registry.
type MsgType uint16

const (
	MsgHeartbeat MsgType = iota
	MsgData
	MsgControl
	MsgResponse
)

func (t MsgType) String() string {
	switch t {
	case MsgHeartbeat:
		return "heartbeat"
	case MsgData:
		return "data"
	case MsgControl:
		return "control"
	case MsgResponse:
		return "response"
	default:
		return "unknown"
	}
}

// Flags bits within Header.Flags. Bit 0 is reserved for the terminal-chunk
// marker on streaming Data frames; the first-vs-last meaning of that bit
// is still an open question — FlagTerminal is the only bit callers may
// rely on today.
const (
	FlagTerminal byte = 1 << 0
	FlagError    byte = 1 << 1
)
