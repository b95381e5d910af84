package smp

import (
	"context"
	"crypto/sha256"
)

// ImageUploadProgressCallback is invoked after each chunk of UploadImage
// completes. Returning false cancels the remainder of the upload.
type ImageUploadProgressCallback func(uploaded, total uint32) bool

// UploadImage uploads the full contents of data to imageSlot, splitting it
// into chunks sized for the given transport MTU. Only the first chunk
// carries the image's total length, SHA-256, and upgrade flag; later chunks
// advance by the offset the device echoes back, which lets the device
// itself dictate the pace (and, if it already has some of the data, skip
// ahead).
func (c *Client) UploadImage(ctx context.Context, imageSlot uint32, data []byte, mtu int, upgradeOnly bool, progress ImageUploadProgressCallback) error {
	chunkSize := MaxDataChunkSize(mtu)
	if chunkSize <= 0 {
		return newCodedError("smp.client.image_upload.mtu_too_small", "mtu leaves no room for image data")
	}

	checksum := sha256.Sum256(data)
	total := uint32(len(data))

	var offset uint32
	for offset < total {
		end := offset + uint32(chunkSize)
		if end > total {
			end = total
		}

		req := buildImageUploadRequest(imageSlot, total, offset, checksum[:], data[offset:end], upgradeOnly)

		var resp ImageUploadResponse
		if err := c.conn.Execute(ctx, SMPOpWriteRequest, SMPGroupImage, SMPCmdImageUpload, req, &resp); err != nil {
			return wrapCodedError("smp.client.image_upload.send", "upload image chunk", err)
		}

		if resp.Match != nil && *resp.Match {
			// The device already has an image matching the identity hash we
			// sent on the first chunk; no point sending the rest of it.
			if progress != nil && !progress(total, total) {
				return newCodedError("smp.client.image_upload.progress_cb_error", "progress callback canceled image upload")
			}
			return nil
		}

		offset = resp.Off

		if progress != nil && !progress(offset, total) {
			return newCodedError("smp.client.image_upload.progress_cb_error", "progress callback canceled image upload")
		}
	}

	return nil
}
