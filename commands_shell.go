package smp

// ShellExecuteRequest runs argv as a single shell command on the device.
type ShellExecuteRequest struct {
	Argv []string `cbor:"argv"`
}

// ShellExecuteResponse carries the command's captured output and its exit
// code. Ret is a raw, negated errno rather than an MGMT return code; use
// Errno to format it.
type ShellExecuteResponse struct {
	Output string `cbor:"o"`
	Ret    int32  `cbor:"ret"`
}

// Errno formats Ret as its symbolic POSIX errno name, or "EOK" if the
// command exited successfully.
func (r ShellExecuteResponse) Errno() string {
	return shellExitCodeErrno(r.Ret)
}
