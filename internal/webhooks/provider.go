// Package webhooks orchestrates inbound webhook processing: signature
// verification, canonical normalization, site resolution and the durable
// publish, in that order.
package webhooks

import (
	"strings"

	"github.com/proofpulse/proofpulse-backend/internal/webhooks/signature"
	"github.com/proofpulse/proofpulse-backend/pkg/enums"
	"github.com/proofpulse/proofpulse-backend/pkg/errors"
)

// Descriptor captures the provider-specific wire conventions: which headers
// carry the signature and store key, and how the HMAC digest is encoded.
type Descriptor struct {
	Source          enums.EventSource
	SignatureHeader string
	StoreKeyHeader  string
	Encoding        signature.Encoding
}

var descriptors = map[enums.EventSource]Descriptor{
	enums.EventSourceShopify: {
		Source:          enums.EventSourceShopify,
		SignatureHeader: "X-Shopify-Hmac-Sha256",
		StoreKeyHeader:  "X-Shopify-Shop-Domain",
		Encoding:        signature.EncodingBase64,
	},
	enums.EventSourceWooCommerce: {
		Source:          enums.EventSourceWooCommerce,
		SignatureHeader: "X-WC-Webhook-Signature",
		StoreKeyHeader:  "X-WC-Webhook-Source",
		Encoding:        signature.EncodingBase64,
	},
	enums.EventSourceGeneric: {
		Source:          enums.EventSourceGeneric,
		SignatureHeader: "X-Webhook-Signature",
		StoreKeyHeader:  "X-Webhook-Store-Key",
		Encoding:        signature.EncodingHex,
	},
}

// DescriptorFor resolves a URL provider segment to its wire conventions.
func DescriptorFor(provider string) (Descriptor, error) {
	source, err := enums.ParseEventSource(strings.ToLower(strings.TrimSpace(provider)))
	if err != nil {
		return Descriptor{}, errors.New(errors.CodeNotFound, "unknown webhook provider").
			WithDetails(map[string]any{"provider": provider})
	}
	return descriptors[source], nil
}

// NormalizeStoreKey strips the URL decoration some providers put in their
// store header (WooCommerce sends a full site URL) down to a bare host key.
func NormalizeStoreKey(raw string) string {
	key := strings.TrimSpace(raw)
	key = strings.TrimPrefix(key, "https://")
	key = strings.TrimPrefix(key, "http://")
	key = strings.TrimSuffix(key, "/")
	return strings.ToLower(key)
}
