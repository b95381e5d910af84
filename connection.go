package smp

import (
	"context"
	"fmt"
	"sync"
)

// errorEnvelope mirrors the two SMP error encodings a response payload may
// carry: a bare legacy rc, or a v2 {group, rc} pair under "err". A response's
// CBOR bytes are decoded into this envelope first to check for a device
// error, then separately into the caller's concrete response type.
type errorEnvelope struct {
	Rc  *int32         `cbor:"rc,omitempty"`
	Err *v2ErrorFields `cbor:"err,omitempty"`
}

type v2ErrorFields struct {
	Group uint16 `cbor:"group"`
	Rc    int32  `cbor:"rc"`
}

func checkErrorEnvelope(data []byte) (*DeviceError, error) {
	var env errorEnvelope
	if err := DecodeCBOR(data, &env); err != nil {
		return nil, fmt.Errorf("decode error envelope: %w", err)
	}

	if env.Err != nil {
		return &DeviceError{Version2: true, Group: env.Err.Group, Rc: env.Err.Rc}, nil
	}

	if env.Rc != nil && *env.Rc != 0 {
		return &DeviceError{Version2: false, Rc: *env.Rc}, nil
	}

	return nil, nil
}

// Connection owns a Transport and serializes every request through a single
// mutex: the protocol never has more than one request in flight, and
// sequence-number generation is part of that same serialized state.
type Connection struct {
	mu        sync.Mutex
	transport Transport
	nextSeq   uint8
	scratch   []byte
}

// NewConnection wraps transport in a Connection ready to execute commands.
// transport.Connect must already have been called.
func NewConnection(transport Transport) *Connection {
	return &Connection{transport: transport}
}

// allocSeq returns the next sequence number. Caller must hold c.mu.
func (c *Connection) allocSeq() uint8 {
	// uint8 arithmetic wraps 255 to 0, so successive requests always get
	// successive sequence numbers modulo 256.
	c.nextSeq++
	return c.nextSeq
}

// Execute sends a single SMP request built from op/group/commandID and
// reqPayload (CBOR-encoded), and decodes the correlated response's payload
// into respPayload. respPayload may be nil if the caller doesn't need the
// decoded body (e.g. it will parse a device error and nothing else).
//
// Execute blocks for the duration of exactly one request/response exchange;
// it never leaves a request in flight past its own return. Matching the
// response to the request's sequence number, and discarding any frame with
// a different one, is the Transport's job (it's the only layer that sees
// the raw stream of frames arriving); by the time Send returns here, the
// response is guaranteed to belong to this request or Send has already
// failed with an error.
func (c *Connection) Execute(ctx context.Context, op uint8, group uint16, commandID uint8, reqPayload, respPayload any) error {
	data, err := EncodeCBOR(reqPayload)
	if err != nil {
		return wrapCodedError("smp.connection.execute.encode", "encode request payload", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	seq := c.allocSeq()
	req := newFrame(op, group, commandID, seq, data)

	resp, err := c.transport.Send(ctx, req)
	if err != nil {
		return wrapCodedError("smp.connection.execute.send", "send request", err)
	}

	if err := resp.ValidateFrame(); err != nil {
		return wrapCodedError("smp.connection.execute.receive", "invalid response frame", err)
	}

	// Some transports (the serial line-framing assembler in particular)
	// return a payload slice backed by a buffer they reuse on the next
	// receive. Copy it into our own scratch buffer before decoding so it
	// can't be clobbered out from under us.
	respData := c.copyIntoScratch(resp.Data)

	if devErr, err := checkErrorEnvelope(respData); err != nil {
		return wrapCodedError("smp.connection.execute.decode_envelope", "decode response error envelope", err)
	} else if devErr != nil {
		return devErr
	}

	if respPayload == nil {
		return nil
	}

	if err := DecodeCBOR(respData, respPayload); err != nil {
		return wrapCodedError("smp.connection.execute.decode", "decode response payload", err)
	}

	return nil
}

// copyIntoScratch copies data into the connection's reusable scratch buffer
// and returns the occupied portion. Caller must hold c.mu.
func (c *Connection) copyIntoScratch(data []byte) []byte {
	if cap(c.scratch) < len(data) {
		c.scratch = make([]byte, len(data))
	}
	c.scratch = c.scratch[:len(data)]
	copy(c.scratch, data)
	return c.scratch
}
