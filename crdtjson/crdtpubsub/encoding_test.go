package crdtpubsub

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncoderDecoder(t *testing.T) {
	_, patch := newTestPatch(t, "k", "v")

	for _, format := range []EncodingFormat{EncodingFormatJSON, EncodingFormatBase64} {
		t.Run(string(format), func(t *testing.T) {
			ed, err := GetEncoderDecoder(format)
			require.NoError(t, err)

			data, err := ed.Encode(patch)
			require.NoError(t, err)

			got, err := ed.Decode(data)
			require.NoError(t, err)
			assert.Equal(t, patch.ID(), got.ID())
			assert.Equal(t, patch.Operations(), got.Operations())
		})
	}
}

func TestBase64WrapsJSON(t *testing.T) {
	_, patch := newTestPatch(t, "k", "v")

	plain, err := (&JSONEncoderDecoder{}).Encode(patch)
	require.NoError(t, err)
	wrapped, err := NewBase64EncoderDecoder(nil).Encode(patch)
	require.NoError(t, err)

	assert.Equal(t, base64.StdEncoding.EncodeToString(plain), string(wrapped))
}

func TestUnsupportedFormat(t *testing.T) {
	_, err := GetEncoderDecoder("cbor")
	assert.Error(t, err)

	_, err = DecodePatch([]byte("{}"), "cbor")
	assert.Error(t, err)

	_, err = DecodePatch([]byte("not base64!"), EncodingFormatBase64)
	assert.Error(t, err)
}
