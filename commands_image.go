package smp

// ImageStateResponse is the payload of both the Image State get response and
// the Image State set response.
type ImageStateResponse struct {
	Images      []ImageStateEntry `cbor:"images"`
	SplitStatus *int32            `cbor:"splitStatus,omitempty"`
}

// ImageStateEntry describes one image slot's version, hash, and flags.
type ImageStateEntry struct {
	Image     *uint32 `cbor:"image,omitempty"`
	Slot      uint32  `cbor:"slot"`
	Version   string  `cbor:"version"`
	Hash      []byte  `cbor:"hash,omitempty"`
	Bootable  *bool   `cbor:"bootable,omitempty"`
	Pending   *bool   `cbor:"pending,omitempty"`
	Confirmed *bool   `cbor:"confirmed,omitempty"`
	Active    *bool   `cbor:"active,omitempty"`
	Permanent *bool   `cbor:"permanent,omitempty"`
}

type imageStateGetRequest struct{}

// ImageStateSetRequest activates (or confirms) an image by its identity
// hash. Confirm, without Hash, confirms the currently running image.
type ImageStateSetRequest struct {
	Hash    []byte `cbor:"hash,omitempty"`
	Confirm bool   `cbor:"confirm,omitempty"`
}

// ImageUploadRequest is one chunk of a chunked image upload. Image, Len,
// SHA, and Upgrade are only meaningful (and only sent) on the first chunk of
// an upload, per the Image Upload command's protocol.
type ImageUploadRequest struct {
	Image   uint32 `cbor:"image,omitempty"`
	Len     uint32 `cbor:"len,omitempty"`
	Off     uint32 `cbor:"off"`
	SHA     []byte `cbor:"sha,omitempty"`
	Data    []byte `cbor:"data"`
	Upgrade bool   `cbor:"upgrade,omitempty"`
}

// ImageUploadResponse is the device's acknowledgement of one upload chunk:
// the next expected offset, and optionally whether the uploaded data matched
// an existing image (match is only reported by some bootloader builds).
type ImageUploadResponse struct {
	Off   uint32 `cbor:"off"`
	Match *bool  `cbor:"match,omitempty"`
}

// buildImageUploadRequest builds the request for one chunk. Only the first
// chunk (offset 0) carries the image identity/length/hash/upgrade-flag
// fields; later chunks carry only the running offset and the chunk's bytes.
func buildImageUploadRequest(imageSlot, totalLen, offset uint32, sha256 []byte, data []byte, upgrade bool) ImageUploadRequest {
	req := ImageUploadRequest{
		Off:  offset,
		Data: data,
	}

	if offset == 0 {
		req.Image = imageSlot
		req.Len = totalLen
		req.SHA = sha256
		req.Upgrade = upgrade
	}

	return req
}
