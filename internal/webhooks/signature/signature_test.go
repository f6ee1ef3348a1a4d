package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"testing"
)

func sign(body []byte, secret string, encoding Encoding) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	digest := mac.Sum(nil)
	if encoding == EncodingHex {
		return hex.EncodeToString(digest)
	}
	return base64.StdEncoding.EncodeToString(digest)
}

func TestVerifyAcceptsExactMatch(t *testing.T) {
	body := []byte(`{"id":123,"total":"9.99"}`)
	secret := "top-secret"

	for _, encoding := range []Encoding{EncodingBase64, EncodingHex} {
		if !Verify(body, sign(body, secret, encoding), secret, encoding) {
			t.Fatalf("%s: valid signature rejected", encoding)
		}
	}
}

func TestVerifyFlipsOnAnySingleByteChange(t *testing.T) {
	body := []byte(`{"id":123,"total":"9.99"}`)
	secret := "top-secret"
	header := sign(body, secret, EncodingBase64)

	for i := range body {
		mutated := append([]byte(nil), body...)
		mutated[i] ^= 0x01
		if Verify(mutated, header, secret, EncodingBase64) {
			t.Fatalf("accepted signature after flipping body byte %d", i)
		}
	}

	secretBytes := []byte(secret)
	for i := range secretBytes {
		mutated := append([]byte(nil), secretBytes...)
		mutated[i] ^= 0x01
		if Verify(body, header, string(mutated), EncodingBase64) {
			t.Fatalf("accepted signature after flipping secret byte %d", i)
		}
	}

	headerBytes := []byte(header)
	for i := range headerBytes {
		mutated := append([]byte(nil), headerBytes...)
		mutated[i] ^= 0x01
		if Verify(body, string(mutated), secret, EncodingBase64) {
			t.Fatalf("accepted signature after flipping header byte %d", i)
		}
	}
}

func TestVerifyRejectsReserializedBody(t *testing.T) {
	original := []byte(`{"id": 123, "total": "9.99"}`)
	reserialized := []byte(`{"id":123,"total":"9.99"}`)
	secret := "top-secret"

	header := sign(original, secret, EncodingBase64)
	if Verify(reserialized, header, secret, EncodingBase64) {
		t.Fatalf("signature over different bytes must not verify")
	}
}

func TestVerifyFailsClosed(t *testing.T) {
	body := []byte(`{}`)
	secret := "top-secret"
	header := sign(body, secret, EncodingBase64)

	if Verify(body, header, "", EncodingBase64) {
		t.Fatalf("empty secret must fail")
	}
	if Verify(body, "", secret, EncodingBase64) {
		t.Fatalf("empty header must fail")
	}
	if Verify(body, "   ", secret, EncodingBase64) {
		t.Fatalf("blank header must fail")
	}
	if Verify(body, header, secret, Encoding("rot13")) {
		t.Fatalf("unknown encoding must fail")
	}
}

func TestVerifyToleratesHeaderWhitespace(t *testing.T) {
	body := []byte(`{"ok":true}`)
	secret := "top-secret"
	header := " " + sign(body, secret, EncodingHex) + "\n"

	if !Verify(body, header, secret, EncodingHex) {
		t.Fatalf("surrounding whitespace in the header should be tolerated")
	}
}
