package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"strings"
)

// Encoding selects how the computed HMAC digest is rendered before comparison.
// Shopify and WooCommerce send base64 digests; generic integrations send hex.
type Encoding string

const (
	EncodingBase64 Encoding = "base64"
	EncodingHex    Encoding = "hex"
)

// Verify reports whether signatureHeader is the HMAC-SHA256 of rawBody keyed
// with secret, rendered in the given encoding. Comparison is constant-time.
// The body must be the exact bytes received on the wire; re-serialized JSON
// produces a different digest and legitimately fails.
//
// Fails closed: a missing secret, empty header, or unknown encoding is false.
func Verify(rawBody []byte, signatureHeader, secret string, encoding Encoding) bool {
	if secret == "" || strings.TrimSpace(signatureHeader) == "" {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(rawBody)
	digest := mac.Sum(nil)

	var expected string
	switch encoding {
	case EncodingBase64:
		expected = base64.StdEncoding.EncodeToString(digest)
	case EncodingHex:
		expected = hex.EncodeToString(digest)
	default:
		return false
	}

	return hmac.Equal([]byte(expected), []byte(strings.TrimSpace(signatureHeader)))
}
