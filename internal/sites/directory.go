// Package sites exposes the site directory consumed by the delivery
// pipeline: shop-domain to site lookups and the verified-status gate, plus
// the admin registration write path that seeds the directory.
package sites

import (
	"context"

	"github.com/proofpulse/proofpulse-backend/pkg/enums"
)

// Entry is the minimal site record the pipeline needs.
type Entry struct {
	SiteID string
	Status enums.SiteStatus
}

// Verified reports whether the site may receive webhooks and stream
// connections.
func (e *Entry) Verified() bool {
	return e != nil && e.Status == enums.SiteStatusVerified
}

// Directory is the external-collaborator boundary for site lookups.
// Implementations return a pkg/errors NOT_FOUND error for definitive misses
// and any other error for transient failures, which callers may retry.
type Directory interface {
	LookupByDomain(ctx context.Context, provider enums.EventSource, shopDomain string) (*Entry, error)
	Get(ctx context.Context, siteID string) (*Entry, error)
}
