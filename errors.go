package smp

import "fmt"

// codedError is a dotted, machine-readable error code attached to a human
// message and an optional chained cause. It is this module's idiomatic-Go
// stand-in for the diagnostic codes the protocol's reference implementation
// expresses with a dedicated diagnostics crate.
type codedError struct {
	code    string
	message string
	cause   error
}

func newCodedError(code, message string) *codedError {
	return &codedError{code: code, message: message}
}

func wrapCodedError(code, message string, cause error) *codedError {
	return &codedError{code: code, message: message, cause: cause}
}

func (e *codedError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s", e.message, e.cause.Error())
	}
	return e.message
}

func (e *codedError) Unwrap() error {
	return e.cause
}

// Code returns the dotted machine-readable identifier for this error.
func (e *codedError) Code() string {
	return e.code
}

// newUnexpectedResponseError reports that a response matched the outstanding
// request's sequence number but not its op/group/command id: the
// transport-level signal that something other than the expected
// request/response pair got paired up, as distinct from a merely
// differently-sequenced frame (which is silently discarded, not an error).
func newUnexpectedResponseError(wantOp uint8, wantGroup uint16, wantCmd uint8, gotOp uint8, gotGroup uint16, gotCmd uint8) *codedError {
	return newCodedError("smp.transport.unexpected_response",
		fmt.Sprintf("unexpected response: want op=%d group=%d cmd=%d, got op=%d group=%d cmd=%d",
			wantOp, wantGroup, wantCmd, gotOp, gotGroup, gotCmd))
}

// DeviceError represents an error reported by the device itself, inside an
// SMP response's error envelope, as opposed to a transport or encoding
// failure on the host side.
type DeviceError struct {
	// Version2 is true if this error came from an SMP v2 {group, rc} envelope,
	// false if it came from a legacy v1 bare rc.
	Version2 bool
	Group    uint16
	Rc       int32
}

func (e *DeviceError) Error() string {
	if e.Version2 {
		return fmt.Sprintf("device error: group=%d rc=%d (%s)", e.Group, e.Rc, mgmtErrName(e.Rc))
	}
	return fmt.Sprintf("device error: rc=%d (%s)", e.Rc, mgmtErrName(e.Rc))
}

func (e *DeviceError) Code() string {
	return "smp.connection.device_error"
}

// CommandNotSupported reports whether this error is the device's way of
// saying the requested command id doesn't exist, matching the dual v1/v2
// encodings of ENOTSUP seen in practice:
//   - v1: bare rc == 8 (MGMT_ERR_ENOTSUP)
//   - v2: group == 0 (OS group), rc == 8
func (e *DeviceError) CommandNotSupported() bool {
	if e.Version2 {
		return e.Group == SMPGroupOS && e.Rc == 8
	}
	return e.Rc == 8
}
