package smp

import (
	"bufio"
	"context"
	"io"
	"net/url"
	"os"
	"testing"
	"time"

	"github.com/go-smp/mcumgr/internal/lineframe"
)

// loopbackByteStream is a fake ByteStream backed by in-process pipes, with a
// background goroutine standing in for "the device": it reads whatever
// SerialTransport writes and replies with a scripted response, exercising
// the full line-framing + header encode/decode stack without a real serial
// port.
type loopbackByteStream struct {
	toDevice   *io.PipeReader
	toDeviceW  *io.PipeWriter
	fromDevice *io.PipeReader
	fromDeviceW *io.PipeWriter
}

func newLoopbackByteStream(t *testing.T, respond func(req SMPFrame) SMPFrame) *loopbackByteStream {
	t.Helper()

	toDeviceR, toDeviceW := io.Pipe()
	fromDeviceR, fromDeviceW := io.Pipe()

	lb := &loopbackByteStream{toDevice: toDeviceR, toDeviceW: toDeviceW, fromDevice: fromDeviceR, fromDeviceW: fromDeviceW}

	go func() {
		reader := bufio.NewReader(toDeviceR)
		var asm lineframe.Assembler

		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				return
			}

			raw, ok, err := asm.Feed([]byte(line))
			if err != nil {
				return
			}
			if !ok {
				continue
			}

			reqFrame, err := decodeHeaderFrame(raw)
			if err != nil {
				return
			}

			respFrame := respond(reqFrame)
			respRaw := encodeHeaderFrame(respFrame)

			lines, err := lineframe.Encode(respRaw, lineframe.DefaultMaxLineLength)
			if err != nil {
				return
			}

			for _, l := range lines {
				if _, err := io.WriteString(fromDeviceW, l); err != nil {
					return
				}
			}
		}
	}()

	return lb
}

func (l *loopbackByteStream) Read(p []byte) (int, error)  { return l.fromDevice.Read(p) }
func (l *loopbackByteStream) Write(p []byte) (int, error) { return l.toDeviceW.Write(p) }
func (l *loopbackByteStream) SetReadTimeout(time.Duration) error { return nil }

func TestSerialTransportSendReceiveRoundTrip(t *testing.T) {
	stream := newLoopbackByteStream(t, func(req SMPFrame) SMPFrame {
		var echoReq echoRequest
		_ = DecodeCBOR(req.Data, &echoReq)

		data, _ := EncodeCBOR(echoResponse{R: echoReq.D})
		return SMPFrame{
			Header: SMPHeader{Op: SMPOpWriteResponse, SequenceNum: req.Header.SequenceNum, GroupID: req.Header.GroupID, CommandID: req.Header.CommandID, DataLength: uint16(len(data))},
			Data:   data,
		}
	})

	transport := NewSerialTransport(stream, 64)
	if err := transport.Connect(context.Background(), url.Values{}); err != nil {
		t.Fatalf("connect: %s", err.Error())
	}

	client := NewClient(transport)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	got, err := client.Echo(ctx, "hello over serial")
	if err != nil {
		t.Fatalf("echo: %s", err.Error())
	}

	if got != "hello over serial" {
		t.Fatalf("unexpected echo response: %q", got)
	}
}

// newLoopbackByteStreamMulti is like newLoopbackByteStream but lets the
// scripted device reply with a sequence of frames for a single request,
// letting tests exercise what SerialTransport does with frames it wasn't
// waiting for before the one it wants arrives.
func newLoopbackByteStreamMulti(t *testing.T, respond func(req SMPFrame) []SMPFrame) *loopbackByteStream {
	t.Helper()

	toDeviceR, toDeviceW := io.Pipe()
	fromDeviceR, fromDeviceW := io.Pipe()

	lb := &loopbackByteStream{toDevice: toDeviceR, toDeviceW: toDeviceW, fromDevice: fromDeviceR, fromDeviceW: fromDeviceW}

	go func() {
		reader := bufio.NewReader(toDeviceR)
		var asm lineframe.Assembler

		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				return
			}

			raw, ok, err := asm.Feed([]byte(line))
			if err != nil {
				return
			}
			if !ok {
				continue
			}

			reqFrame, err := decodeHeaderFrame(raw)
			if err != nil {
				return
			}

			for _, respFrame := range respond(reqFrame) {
				respRaw := encodeHeaderFrame(respFrame)

				lines, err := lineframe.Encode(respRaw, lineframe.DefaultMaxLineLength)
				if err != nil {
					return
				}

				for _, l := range lines {
					if _, err := io.WriteString(fromDeviceW, l); err != nil {
						return
					}
				}
			}
		}
	}()

	return lb
}

// TestSerialTransportDiscardsMismatchedSequence locks in the receive_frame
// contract: a frame whose sequence number doesn't match the outstanding
// request is discarded silently, not surfaced as an error, and the
// transport keeps waiting for the frame that does match.
func TestSerialTransportDiscardsMismatchedSequence(t *testing.T) {
	stream := newLoopbackByteStreamMulti(t, func(req SMPFrame) []SMPFrame {
		stale, _ := EncodeCBOR(echoResponse{R: "stale"})
		current, _ := EncodeCBOR(echoResponse{R: "current"})

		return []SMPFrame{
			{
				Header: SMPHeader{Op: SMPOpWriteResponse, SequenceNum: req.Header.SequenceNum - 1, GroupID: req.Header.GroupID, CommandID: req.Header.CommandID, DataLength: uint16(len(stale))},
				Data:   stale,
			},
			{
				Header: SMPHeader{Op: SMPOpWriteResponse, SequenceNum: req.Header.SequenceNum, GroupID: req.Header.GroupID, CommandID: req.Header.CommandID, DataLength: uint16(len(current))},
				Data:   current,
			},
		}
	})

	transport := NewSerialTransport(stream, 64)
	if err := transport.Connect(context.Background(), url.Values{}); err != nil {
		t.Fatalf("connect: %s", err.Error())
	}

	client := NewClient(transport)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	got, err := client.Echo(ctx, "hi")
	if err != nil {
		t.Fatalf("echo: %s", err.Error())
	}

	if got != "current" {
		t.Fatalf("expected the matched-sequence frame's payload, got %q", got)
	}
}

// TestSerialTransportFailsOnUnexpectedResponse locks in the other half of
// the receive_frame contract: a frame with the right sequence number but
// the wrong op/group/command is a hard error, not something to keep
// waiting through.
func TestSerialTransportFailsOnUnexpectedResponse(t *testing.T) {
	stream := newLoopbackByteStreamMulti(t, func(req SMPFrame) []SMPFrame {
		data, _ := EncodeCBOR(echoResponse{R: "wrong group"})
		return []SMPFrame{
			{
				Header: SMPHeader{Op: SMPOpWriteResponse, SequenceNum: req.Header.SequenceNum, GroupID: req.Header.GroupID + 1, CommandID: req.Header.CommandID, DataLength: uint16(len(data))},
				Data:   data,
			},
		}
	})

	transport := NewSerialTransport(stream, 64)
	if err := transport.Connect(context.Background(), url.Values{}); err != nil {
		t.Fatalf("connect: %s", err.Error())
	}

	client := NewClient(transport)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := client.Echo(ctx, "hi")
	if err == nil {
		t.Fatalf("expected unexpected-response error")
	}
}

// silentByteStream stands in for a device that never answers: every Read
// waits out the configured read timeout and then fails with a timeout error,
// as a stream with a read deadline does.
type silentByteStream struct {
	timeout time.Duration
}

func (s *silentByteStream) Read([]byte) (int, error) {
	time.Sleep(s.timeout)
	return 0, os.ErrDeadlineExceeded
}

func (s *silentByteStream) Write(p []byte) (int, error) { return len(p), nil }

func (s *silentByteStream) SetReadTimeout(timeout time.Duration) error {
	s.timeout = timeout
	return nil
}

func TestSerialTransportWaitTimeout(t *testing.T) {
	// No device ever responds, so Send must time out rather than block forever.
	stream := &silentByteStream{}

	transport := NewSerialTransport(stream, 64)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := transport.Send(ctx, newFrame(SMPOpReadRequest, SMPGroupOS, SMPCmdEcho, 1, nil))
	if err == nil {
		t.Fatalf("expected timeout error")
	}
}
