package smp

import "context"

// FileProgressCallback is invoked after each chunk of a chunked file
// transfer completes. Returning false cancels the remainder of the
// transfer.
type FileProgressCallback func(transferred, total uint32) bool

// UploadFile writes the full contents of data to name on the device's
// filesystem, splitting it into chunks sized for the given transport MTU.
// Only the first chunk carries the file's total length.
func (c *Client) UploadFile(ctx context.Context, name string, data []byte, mtu int, progress FileProgressCallback) error {
	chunkSize := MaxDataChunkSize(mtu)
	if chunkSize <= 0 {
		return newCodedError("smp.client.file_upload.mtu_too_small", "mtu leaves no room for file data")
	}

	total := uint32(len(data))

	var offset uint32
	first := true
	for first || offset < total {
		first = false

		end := offset + uint32(chunkSize)
		if end > total {
			end = total
		}

		req := FileUploadRequest{
			Off:  offset,
			Data: data[offset:end],
			Name: name,
		}
		if offset == 0 {
			lenVal := total
			req.Len = &lenVal
		}

		var resp FileUploadResponse
		if err := c.conn.Execute(ctx, SMPOpWriteRequest, SMPGroupFS, SMPCmdFileDownloadUpload, req, &resp); err != nil {
			return wrapCodedError("smp.client.file_upload.send", "upload file chunk", err)
		}

		offset = resp.Off

		if progress != nil && !progress(offset, total) {
			return newCodedError("smp.client.file_upload.progress_cb_error", "progress callback canceled file upload")
		}
	}

	return nil
}

// DownloadFile reads the full contents of name from the device's
// filesystem, one device-sized chunk at a time; mtu is only checked to leave
// room for file data, and the requests carry no chunk size. The file's total
// size, which the device only reports on the first chunk's response,
// determines when the download is complete.
func (c *Client) DownloadFile(ctx context.Context, name string, mtu int, progress FileProgressCallback) ([]byte, error) {
	if MaxDataChunkSize(mtu) <= 0 {
		return nil, newCodedError("smp.client.file_download.mtu_too_small", "mtu leaves no room for file data")
	}

	var (
		offset uint32
		total  uint32
		data   []byte
	)

	for {
		req := FileDownloadRequest{Off: offset, Name: name}

		var resp FileDownloadResponse
		if err := c.conn.Execute(ctx, SMPOpReadRequest, SMPGroupFS, SMPCmdFileDownloadUpload, req, &resp); err != nil {
			return nil, wrapCodedError("smp.client.file_download.send", "download file chunk", err)
		}

		if offset == 0 {
			if resp.Len == nil {
				return nil, newCodedError("smp.client.file_download.missing_length", "first chunk response missing total length")
			}
			total = *resp.Len
			data = make([]byte, 0, total)
		}

		data = append(data, resp.Data...)
		offset = uint32(len(data))

		if progress != nil && !progress(offset, total) {
			return nil, newCodedError("smp.client.file_download.progress_cb_error", "progress callback canceled file download")
		}

		if offset >= total {
			return data, nil
		}
	}
}
