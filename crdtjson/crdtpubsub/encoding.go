package crdtpubsub

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/dman-os/townframe-sub000/crdtjson/crdtpatch"
)

// Encoder encodes a CRDT patch into a byte array using the specified format.
type Encoder interface {
	// Encode encodes a CRDT patch into a byte array.
	Encode(patch *crdtpatch.Patch) ([]byte, error)
}

// Decoder decodes a byte array into a CRDT patch using the specified format.
type Decoder interface {
	// Decode decodes a byte array into a CRDT patch.
	Decode(data []byte) (*crdtpatch.Patch, error)
}

// EncoderDecoder combines the Encoder and Decoder interfaces.
type EncoderDecoder interface {
	Encoder
	Decoder
}

// JSONEncoderDecoder implements the EncoderDecoder interface using JSON encoding.
type JSONEncoderDecoder struct{}

// Encode encodes a CRDT patch into a JSON byte array.
func (ed *JSONEncoderDecoder) Encode(patch *crdtpatch.Patch) ([]byte, error) {
	return json.Marshal(patch)
}

// Decode decodes a JSON byte array into a CRDT patch.
func (ed *JSONEncoderDecoder) Decode(data []byte) (*crdtpatch.Patch, error) {
	var patch crdtpatch.Patch
	if err := json.Unmarshal(data, &patch); err != nil {
		return nil, err
	}
	return &patch, nil
}

// Base64EncoderDecoder implements the EncoderDecoder interface using base64 encoding.
type Base64EncoderDecoder struct {
	// The underlying encoder/decoder to use before/after base64 encoding/decoding.
	underlying EncoderDecoder
}

// NewBase64EncoderDecoder creates a new Base64EncoderDecoder with the specified underlying encoder/decoder.
func NewBase64EncoderDecoder(underlying EncoderDecoder) *Base64EncoderDecoder {
	if underlying == nil {
		underlying = &JSONEncoderDecoder{}
	}
	return &Base64EncoderDecoder{
		underlying: underlying,
	}
}

// Encode encodes a CRDT patch into a base64 byte array.
func (ed *Base64EncoderDecoder) Encode(patch *crdtpatch.Patch) ([]byte, error) {
	data, err := ed.underlying.Encode(patch)
	if err != nil {
		return nil, err
	}
	encoded := make([]byte, base64.StdEncoding.EncodedLen(len(data)))
	base64.StdEncoding.Encode(encoded, data)
	return encoded, nil
}

// Decode decodes a base64 byte array into a CRDT patch.
func (ed *Base64EncoderDecoder) Decode(data []byte) (*crdtpatch.Patch, error) {
	decoded := make([]byte, base64.StdEncoding.DecodedLen(len(data)))
	n, err := base64.StdEncoding.Decode(decoded, data)
	if err != nil {
		return nil, err
	}
	return ed.underlying.Decode(decoded[:n])
}

// GetEncoderDecoder returns an EncoderDecoder for the specified format.
func GetEncoderDecoder(format EncodingFormat) (EncoderDecoder, error) {
	switch format {
	case EncodingFormatJSON:
		return &JSONEncoderDecoder{}, nil
	case EncodingFormatBase64:
		return NewBase64EncoderDecoder(&JSONEncoderDecoder{}), nil
	default:
		return nil, fmt.Errorf("unsupported encoding format: %s", format)
	}
}
