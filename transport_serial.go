package smp

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"time"

	"github.com/go-smp/mcumgr/internal/lineframe"
)

// ByteStream is the minimal collaborator a serial transport needs: a byte
// stream with a settable read deadline. Opening and configuring the actual
// serial port (baud rate, device path, USB enumeration, ...) is a concern
// this module deliberately does not own; callers hand SerialTransport an
// already-connected stream.
type ByteStream interface {
	io.Reader
	io.Writer
	SetReadTimeout(timeout time.Duration) error
}

var _ Transport = (*SerialTransport)(nil)

// SerialTransport implements Transport over a generic byte stream using the
// base64 line-framing envelope described for the SMP serial backend.
type SerialTransport struct {
	stream        ByteStream
	reader        *bufio.Reader
	maxLineLength int
}

// NewSerialTransport wraps stream in a SerialTransport. maxLineLength bounds
// the length of each base64 line frame; pass 0 to use
// lineframe.DefaultMaxLineLength.
func NewSerialTransport(stream ByteStream, maxLineLength int) *SerialTransport {
	if maxLineLength <= 0 {
		maxLineLength = lineframe.DefaultMaxLineLength
	}

	return &SerialTransport{
		stream:        stream,
		reader:        bufio.NewReader(stream),
		maxLineLength: maxLineLength,
	}
}

// Connect is a no-op: SerialTransport receives an already-opened byte
// stream, so there is nothing left to establish here. params is accepted to
// satisfy Transport and is currently unused.
func (s *SerialTransport) Connect(_ context.Context, _ url.Values) error {
	return nil
}

// Close is a no-op: SerialTransport does not own the lifetime of its
// underlying stream.
func (s *SerialTransport) Close() error {
	return nil
}

// Send implements Transport.
func (s *SerialTransport) Send(ctx context.Context, frame SMPFrame) (SMPFrame, error) {
	// The line frame's 2-byte length prefix covers header, payload and CRC.
	if headerSize+len(frame.Data)+2 > 0xFFFF {
		return SMPFrame{}, newCodedError("smp.transport.send.data_too_big",
			fmt.Sprintf("frame too big for serial length prefix: %d payload bytes", len(frame.Data)))
	}

	if err := s.sendFrame(frame); err != nil {
		return SMPFrame{}, wrapCodedError("smp.transport.send", "send frame", err)
	}

	h := frame.Header
	resp, err := s.receiveFrame(ctx, h.SequenceNum, h.Op, h.GroupID, h.CommandID)
	if err != nil {
		return SMPFrame{}, wrapCodedError("smp.transport.receive", "receive frame", err)
	}

	return resp, nil
}

func (s *SerialTransport) sendFrame(frame SMPFrame) error {
	raw := encodeHeaderFrame(frame)

	lines, err := lineframe.Encode(raw, s.maxLineLength)
	if err != nil {
		return fmt.Errorf("line-frame encode: %w", err)
	}

	for _, line := range lines {
		if _, err := io.WriteString(s.stream, line); err != nil {
			return fmt.Errorf("write line frame: %w", err)
		}
	}

	return nil
}

// receiveFrame reads line frames until it finds one whose sequence number
// matches wantSeq, silently discarding any that don't (another exchange's
// late reply, a spurious notification) and continuing to wait. Once a frame
// with the right sequence arrives, its op/group/command must match what
// requestOp/wantGroup/wantCmd imply or the exchange fails outright: a
// sequence match with the wrong op/group/cmd means something is badly wrong
// with correlation and is not safe to wait through.
func (s *SerialTransport) receiveFrame(ctx context.Context, wantSeq, requestOp uint8, wantGroup uint16, wantCmd uint8) (SMPFrame, error) {
	req := SMPFrame{Header: SMPHeader{Op: requestOp, GroupID: wantGroup, CommandID: wantCmd}}
	var asm lineframe.Assembler

	for {
		if deadline, ok := ctx.Deadline(); ok {
			if err := s.stream.SetReadTimeout(time.Until(deadline)); err != nil {
				return SMPFrame{}, fmt.Errorf("set read timeout: %w", err)
			}
		}

		line, err := s.reader.ReadString('\n')
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) || isTimeoutError(err) {
				return SMPFrame{}, ErrWaitTimeout
			}
			return SMPFrame{}, fmt.Errorf("read line: %w", err)
		}

		slog.Debug("smp serial rx line", "line", line)

		raw, complete, err := asm.Feed([]byte(line))
		if err != nil {
			asm.Reset()
			return SMPFrame{}, fmt.Errorf("reassemble line frame: %w", err)
		}

		if !complete {
			select {
			case <-ctx.Done():
				return SMPFrame{}, ctx.Err()
			default:
				continue
			}
		}

		frame, err := decodeHeaderFrame(raw)
		if err != nil {
			return SMPFrame{}, err
		}

		if frame.Header.SequenceNum != wantSeq {
			continue
		}

		if err := validateResponseMatch(req, frame); err != nil {
			return SMPFrame{}, err
		}

		return frame, nil
	}
}

func isTimeoutError(err error) bool {
	var timeoutErr interface{ Timeout() bool }
	return errors.As(err, &timeoutErr) && timeoutErr.Timeout()
}
