// Package mcuboot parses just enough of the MCUboot firmware image format
// to extract a build's version and identity hash, for comparison against a
// device's currently running image.
package mcuboot

import (
	"encoding/binary"
	"fmt"
)

const (
	imageMagic = 0x96f3b83d

	headerSize = 32

	tlvInfoMagic       = 0x6907
	tlvInfoHeaderSize  = 4
	tlvElementHeaderSize = 4

	tlvTypeSHA256 = 0x10
	sha256Size    = 32
)

// ImageInfo is the subset of an MCUboot image this package extracts:
// its version string and SHA-256 identity hash.
type ImageInfo struct {
	Version string
	Hash    [sha256Size]byte
}

// imageHeader mirrors struct image_header from MCUboot's bootutil, as far
// as the fields this package needs.
type imageHeader struct {
	Magic     uint32
	LoadAddr  uint32
	HdrSize   uint16
	ProtectTLVSize uint16
	ImageSize uint32
	Flags     uint32
	Version   imageVersion
}

type imageVersion struct {
	Major    uint8
	Minor    uint8
	Revision uint16
	Build    uint32
}

// ParseImageInfo parses an MCUboot-formatted image and returns its version
// and SHA-256 identity hash. It returns an error if the image header magic
// doesn't match, or if no SHA-256 identity TLV is found.
func ParseImageInfo(image []byte) (ImageInfo, error) {
	if len(image) < headerSize {
		return ImageInfo{}, fmt.Errorf("image too small for header: %d bytes", len(image))
	}

	hdr := imageHeader{
		Magic:          binary.LittleEndian.Uint32(image[0:4]),
		LoadAddr:       binary.LittleEndian.Uint32(image[4:8]),
		HdrSize:        binary.LittleEndian.Uint16(image[8:10]),
		ProtectTLVSize: binary.LittleEndian.Uint16(image[10:12]),
		ImageSize:      binary.LittleEndian.Uint32(image[12:16]),
		Flags:          binary.LittleEndian.Uint32(image[16:20]),
		Version: imageVersion{
			Major:    image[20],
			Minor:    image[21],
			Revision: binary.LittleEndian.Uint16(image[22:24]),
			Build:    binary.LittleEndian.Uint32(image[24:28]),
		},
	}

	if hdr.Magic != imageMagic {
		return ImageInfo{}, fmt.Errorf("not an mcuboot image: bad magic %#x", hdr.Magic)
	}

	version := fmt.Sprintf("%d.%d.%d+%d", hdr.Version.Major, hdr.Version.Minor, hdr.Version.Revision, hdr.Version.Build)

	tlvAreaStart := int(hdr.HdrSize) + int(hdr.ProtectTLVSize) + int(hdr.ImageSize)
	hash, err := findSHA256TLV(image, tlvAreaStart)
	if err != nil {
		return ImageInfo{}, err
	}

	return ImageInfo{Version: version, Hash: hash}, nil
}

// findSHA256TLV walks the TLV area starting at offset, looking for the
// SHA-256 identity hash TLV. It stops as soon as there isn't room left for
// another full TLV info header plus element header, rejecting any trailing
// garbage after the last well-formed TLV info block rather than attempting
// to interpret it.
func findSHA256TLV(image []byte, offset int) ([sha256Size]byte, error) {
	var zero [sha256Size]byte

	if offset+tlvInfoHeaderSize > len(image) {
		return zero, fmt.Errorf("image too small for tlv info header at offset %d", offset)
	}

	magic := binary.LittleEndian.Uint16(image[offset : offset+2])
	if magic != tlvInfoMagic {
		return zero, fmt.Errorf("bad tlv info magic: %#x", magic)
	}

	tlvTotal := int(binary.LittleEndian.Uint16(image[offset+2 : offset+4]))
	if offset+tlvTotal > len(image) {
		return zero, fmt.Errorf("tlv area extends past end of image")
	}

	tlvRead := tlvInfoHeaderSize
	for tlvRead+tlvElementHeaderSize <= tlvTotal {
		elemOffset := offset + tlvRead

		typ := image[elemOffset]
		length := int(binary.LittleEndian.Uint16(image[elemOffset+2 : elemOffset+4]))

		valueOffset := elemOffset + tlvElementHeaderSize
		if valueOffset+length > len(image) {
			return zero, fmt.Errorf("tlv element value extends past end of image")
		}

		if typ == tlvTypeSHA256 && length == sha256Size {
			copy(zero[:], image[valueOffset:valueOffset+sha256Size])
			return zero, nil
		}

		tlvRead += tlvElementHeaderSize + length
	}

	return zero, fmt.Errorf("no sha256 identity tlv found")
}
