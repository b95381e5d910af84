// Package lineframe implements the SMP serial transport's line-framing
// envelope: base64 body chunks delimited by open/continuation markers and a
// trailing newline, carrying a length-prefixed, CRC-16/XMODEM-checked copy
// of an SMP frame's header+payload bytes.
package lineframe

import (
	"encoding/base64"
	"fmt"

	"github.com/go-smp/mcumgr/internal/crc"
)

// Marker bytes that open a transmission, per the Zephyr SMP serial transport.
var (
	openMarker = [2]byte{0x06, 0x09}
	contMarker = [2]byte{0x04, 0x14}
)

const terminator = 0x0A

// DefaultMaxLineLength is the conservative default maximum length, in bytes,
// of one base64-encoded line frame including its markers and terminator.
const DefaultMaxLineLength = 128

// Encode splits header+payload bytes into a sequence of line frames ready to
// write to a serial byte stream. maxLineLength bounds the length of each
// produced line, markers and terminator included.
func Encode(headerAndPayload []byte, maxLineLength int) ([]string, error) {
	if maxLineLength <= 8 {
		return nil, fmt.Errorf("max line length too small: %d", maxLineLength)
	}

	checksum := crc.XMODEM(headerAndPayload)
	withCRC := make([]byte, 0, len(headerAndPayload)+2)
	withCRC = append(withCRC, headerAndPayload...)
	withCRC = append(withCRC, byte(checksum>>8), byte(checksum))

	stream := make([]byte, 0, len(withCRC)+2)
	stream = append(stream, byte(len(withCRC)>>8), byte(len(withCRC)&0xFF))
	stream = append(stream, withCRC...)

	// base64 chars available per line, after the 2-byte marker and the
	// trailing newline.
	base64Budget := maxLineLength - 3
	if base64Budget < 4 {
		return nil, fmt.Errorf("max line length too small for any base64 payload: %d", maxLineLength)
	}

	// Raw bytes per non-final chunk must be a multiple of 3 so that its
	// base64 encoding needs no padding and quartets never straddle a line.
	rawPerChunk := (base64Budget / 4) * 3
	if rawPerChunk == 0 {
		return nil, fmt.Errorf("max line length too small for any base64 payload: %d", maxLineLength)
	}

	var lines []string
	for offset := 0; offset < len(stream); {
		end := min(offset+rawPerChunk, len(stream))
		chunk := stream[offset:end]

		marker := contMarker
		if offset == 0 {
			marker = openMarker
		}

		encoded := base64.StdEncoding.EncodeToString(chunk)

		line := make([]byte, 0, 2+len(encoded)+1)
		line = append(line, marker[0], marker[1])
		line = append(line, encoded...)
		line = append(line, terminator)

		lines = append(lines, string(line))

		offset = end
	}

	return lines, nil
}

// Assembler incrementally reassembles a sequence of line frames back into
// the original header+payload bytes, validating the CRC once the declared
// total length has been received.
type Assembler struct {
	started bool
	body    []byte
}

// Reset discards any in-progress reassembly state.
func (a *Assembler) Reset() {
	a.started = false
	a.body = a.body[:0]
}

// Feed consumes one line frame (markers and terminator included). It returns
// the reassembled header+payload bytes and ok=true once a complete,
// CRC-valid frame has been received; otherwise ok is false and the caller
// should keep feeding lines.
func (a *Assembler) Feed(line []byte) (data []byte, ok bool, err error) {
	line = trimTerminator(line)

	if len(line) < 2 {
		return nil, false, fmt.Errorf("line frame too short")
	}

	marker := [2]byte{line[0], line[1]}
	body := line[2:]

	switch marker {
	case openMarker:
		a.Reset()
		a.started = true
	case contMarker:
		if !a.started {
			return nil, false, fmt.Errorf("continuation frame received before open frame")
		}
	default:
		return nil, false, fmt.Errorf("unrecognized line frame marker: % x", marker)
	}

	decoded, err := base64.StdEncoding.DecodeString(string(body))
	if err != nil {
		a.Reset()
		return nil, false, fmt.Errorf("decode base64 body: %w", err)
	}

	a.body = append(a.body, decoded...)

	if len(a.body) < 2 {
		return nil, false, nil
	}

	total := int(a.body[0])<<8 | int(a.body[1])
	if len(a.body)-2 < total {
		return nil, false, nil
	}

	withCRC := a.body[2 : 2+total]
	a.Reset()

	if len(withCRC) < 2 {
		return nil, false, fmt.Errorf("reassembled frame too short for CRC")
	}

	payload := withCRC[:len(withCRC)-2]
	wantCRC := uint16(withCRC[len(withCRC)-2])<<8 | uint16(withCRC[len(withCRC)-1])
	gotCRC := crc.XMODEM(payload)

	if wantCRC != gotCRC {
		return nil, false, fmt.Errorf("crc mismatch: want %#04x, got %#04x", wantCRC, gotCRC)
	}

	return payload, true, nil
}

func trimTerminator(line []byte) []byte {
	if len(line) > 0 && line[len(line)-1] == terminator {
		return line[:len(line)-1]
	}
	return line
}
