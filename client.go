package smp

import "context"

// frameOverhead is the worst-case number of bytes an Image/File
// upload/download chunk's surrounding CBOR map and SMP header consume,
// leaving the rest of a transport's MTU available for the chunk's raw
// "data" bytes. It is the sum of:
//   - 8:           SMP frame header
//   - 9+1:         CBOR map header plus the "data" key
//   - 1+3+8:       "off" key + value (worst-case uint32 encoding)
//   - 1+4+8:       "len" key + value (worst-case uint32 encoding, first chunk only)
//   - 1+2+1:       "upgrade" key + value (first chunk only)
//   - 1+3+8:       "sha" key + 32-byte value's length/type overhead (first chunk only)
const frameOverhead = 8 + (9 + 1) + (1 + 3 + 8) + (1 + 4 + 8) + (1 + 2 + 1) + (1 + 3 + 8)

// MaxDataChunkSize returns the largest number of raw payload bytes that can
// safely be included in a single chunk of a chunked upload/download, given a
// transport's maximum transmission unit in bytes.
func MaxDataChunkSize(mtu int) int {
	n := mtu - frameOverhead
	if n < 0 {
		return 0
	}
	return n
}

// Client is the high-level SMP/MCUmgr API: a Connection plus the full
// command catalogue and the chunked/orchestrated operations built on top of
// it.
type Client struct {
	conn *Connection
}

// NewClient wraps an already-connected Transport in a Client.
func NewClient(transport Transport) *Client {
	return &Client{conn: NewConnection(transport)}
}

// Echo sends msg to the device and returns what it echoes back.
func (c *Client) Echo(ctx context.Context, msg string) (string, error) {
	var resp echoResponse
	err := c.conn.Execute(ctx, SMPOpWriteRequest, SMPGroupOS, SMPCmdEcho, echoRequest{D: msg}, &resp)
	return resp.R, err
}

// Reset requests a device reboot. force bypasses the device's "is it safe to
// reboot now" check.
func (c *Client) Reset(ctx context.Context, force bool) error {
	return c.conn.Execute(ctx, SMPOpWriteRequest, SMPGroupOS, SMPCmdReset, ResetRequest{Force: force}, &resetResponse{})
}

// TaskStatistics returns the device's current RTOS task accounting table.
func (c *Client) TaskStatistics(ctx context.Context) (TaskStatisticsResponse, error) {
	var resp TaskStatisticsResponse
	err := c.conn.Execute(ctx, SMPOpReadRequest, SMPGroupOS, SMPCmdTaskStats, taskStatisticsRequest{}, &resp)
	return resp, err
}

// MCUmgrParameters returns the device's negotiated buffer limits.
func (c *Client) MCUmgrParameters(ctx context.Context) (MCUmgrParametersResponse, error) {
	var resp MCUmgrParametersResponse
	err := c.conn.Execute(ctx, SMPOpReadRequest, SMPGroupOS, SMPCmdMCUMgrParams, mcumgrParametersRequest{}, &resp)
	return resp, err
}

// BootloaderInfo queries the device's bootloader identity, and, when query
// is "mode", its MCUboot mode configuration.
func (c *Client) BootloaderInfo(ctx context.Context, query string) (BootloaderInfoResponse, error) {
	var resp BootloaderInfoResponse
	err := c.conn.Execute(ctx, SMPOpReadRequest, SMPGroupOS, SMPCmdBootloaderInfo, BootloaderInfoRequest{Query: query}, &resp)
	return resp, err
}

// ImageState fetches the state of every image slot known to the device.
func (c *Client) ImageState(ctx context.Context) (ImageStateResponse, error) {
	var resp ImageStateResponse
	err := c.conn.Execute(ctx, SMPOpReadRequest, SMPGroupImage, SMPCmdImageState, imageStateGetRequest{}, &resp)
	return resp, err
}

// SetImageState activates or confirms an image slot by its identity hash.
// An empty hash confirms the currently running image instead of swapping.
func (c *Client) SetImageState(ctx context.Context, hash []byte, confirm bool) (ImageStateResponse, error) {
	var resp ImageStateResponse
	err := c.conn.Execute(ctx, SMPOpWriteRequest, SMPGroupImage, SMPCmdImageState, ImageStateSetRequest{Hash: hash, Confirm: confirm}, &resp)
	return resp, err
}

// FileStatus returns the size, in bytes, of a file already present on the
// device's filesystem.
func (c *Client) FileStatus(ctx context.Context, name string) (FileStatusResponse, error) {
	var resp FileStatusResponse
	err := c.conn.Execute(ctx, SMPOpReadRequest, SMPGroupFS, SMPCmdFileStatus, FileStatusRequest{Name: name}, &resp)
	return resp, err
}

// FileHashChecksum computes a hash or checksum of name, optionally over just
// [off, off+length).
func (c *Client) FileHashChecksum(ctx context.Context, name string, typ FileHashChecksumType, off, length uint32) (FileHashChecksumResponse, error) {
	var resp FileHashChecksumResponse
	req := FileHashChecksumRequest{Name: name, Type: typ, Off: off, Len: length}
	err := c.conn.Execute(ctx, SMPOpReadRequest, SMPGroupFS, SMPCmdFileHashChecksum, req, &resp)
	return resp, err
}

// SupportedHashChecksumTypes lists the hash/checksum algorithms the device
// supports for FileHashChecksum.
func (c *Client) SupportedHashChecksumTypes(ctx context.Context) (SupportedHashChecksumTypesResponse, error) {
	var resp SupportedHashChecksumTypesResponse
	err := c.conn.Execute(ctx, SMPOpReadRequest, SMPGroupFS, SMPCmdFileSupportedTypes, supportedHashChecksumTypesRequest{}, &resp)
	return resp, err
}

// CloseFile closes any file left open on the device by an interrupted
// upload or download.
func (c *Client) CloseFile(ctx context.Context) error {
	return c.conn.Execute(ctx, SMPOpWriteRequest, SMPGroupFS, SMPCmdFileClose, FileCloseRequest{}, &fileCloseResponse{})
}

// ShellExecute runs argv as a single shell command and returns its captured
// output and exit code.
func (c *Client) ShellExecute(ctx context.Context, argv []string) (ShellExecuteResponse, error) {
	var resp ShellExecuteResponse
	err := c.conn.Execute(ctx, SMPOpWriteRequest, SMPGroupShell, SMPCmdShellExecute, ShellExecuteRequest{Argv: argv}, &resp)
	return resp, err
}
