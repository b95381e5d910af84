package smp

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// EncodeCBOR encodes v as the CBOR payload of an SMP frame.
func EncodeCBOR(v any) ([]byte, error) {
	encoded, err := cbor.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode cbor: %w", err)
	}

	return encoded, nil
}

// DecodeCBOR decodes an SMP frame's CBOR payload into v.
func DecodeCBOR(data []byte, v any) error {
	if err := cbor.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode cbor: %w", err)
	}

	return nil
}
