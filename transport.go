package smp

import (
	"context"
	"errors"
	"net/url"
)

// ErrWaitTimeout is returned when a transport gives up waiting for a
// response frame correlated to an outstanding request.
var ErrWaitTimeout = errors.New("wait timeout")

// Transport is the contract every SMP byte-stream backend implements. A
// Transport never interprets command payloads; it only frames, sends, and
// correlates raw SMP frames.
type Transport interface {
	Connect(ctx context.Context, params url.Values) error
	// Send transmits frame and returns its correlated response, blocking
	// until one arrives, the context is canceled, or the transport times out.
	// Even transports that are internally asynchronous present this
	// synchronous contract: the protocol never has more than one request in
	// flight at a time per connection.
	Send(ctx context.Context, frame SMPFrame) (SMPFrame, error)
	Close() error
}
