package reconcile

import (
	"encoding/base64"
	"strings"
)

// ByteFieldSuffix marks a map key whose string value travels as base64 in JSON and
// is stored as a byte-string scalar in the tree.
const ByteFieldSuffix = "Base64"

// IsByteField reports whether key follows the byte-field naming convention.
func IsByteField(key string) bool {
	return strings.HasSuffix(key, ByteFieldSuffix)
}

// DecodeByteField decodes a byte-field value, accepting padded and unpadded base64.
func DecodeByteField(s string) ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err == nil {
		return b, nil
	}
	b, rawErr := base64.RawStdEncoding.DecodeString(s)
	if rawErr == nil {
		return b, nil
	}
	return nil, err
}

// EncodeByteField encodes bytes for a byte-field value.
func EncodeByteField(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}
