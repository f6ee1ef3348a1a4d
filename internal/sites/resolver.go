package sites

import (
	"context"
	"time"

	"github.com/sethvargo/go-retry"

	pkgerrors "github.com/proofpulse/proofpulse-backend/pkg/errors"
	"github.com/proofpulse/proofpulse-backend/pkg/enums"
)

const (
	defaultLookupAttempts = 3
	defaultLookupBackoff  = 50 * time.Millisecond
)

// Resolver maps provider store keys to verified site IDs. Directory lookups
// are the single external dependency consulted before publish, so transient
// failures are retried with bounded exponential backoff; definitive
// not-found results are not.
type Resolver struct {
	dir      Directory
	attempts uint64
	backoff  time.Duration
}

// NewResolver builds a resolver over the given directory.
func NewResolver(dir Directory) *Resolver {
	return &Resolver{
		dir:      dir,
		attempts: defaultLookupAttempts,
		backoff:  defaultLookupBackoff,
	}
}

// Resolve returns the site ID mapped to the provider's store key, failing
// with NOT_FOUND for unknown stores and FORBIDDEN for sites that exist but
// are not verified. An event for an unresolved site is never published.
func (r *Resolver) Resolve(ctx context.Context, provider enums.EventSource, storeKey string) (string, error) {
	entry, err := r.lookup(ctx, func(ctx context.Context) (*Entry, error) {
		return r.dir.LookupByDomain(ctx, provider, storeKey)
	})
	if err != nil {
		return "", err
	}
	if !entry.Verified() {
		return "", pkgerrors.New(pkgerrors.CodeForbidden, "site is not verified")
	}
	return entry.SiteID, nil
}

// VerifySite confirms a site exists and is verified, used by the stream
// server before any subscription is created.
func (r *Resolver) VerifySite(ctx context.Context, siteID string) error {
	entry, err := r.lookup(ctx, func(ctx context.Context) (*Entry, error) {
		return r.dir.Get(ctx, siteID)
	})
	if err != nil {
		return err
	}
	if !entry.Verified() {
		return pkgerrors.New(pkgerrors.CodeForbidden, "site is not verified")
	}
	return nil
}

func (r *Resolver) lookup(ctx context.Context, fn func(context.Context) (*Entry, error)) (*Entry, error) {
	var entry *Entry
	backoff := retry.WithMaxRetries(r.attempts-1, retry.NewExponential(r.backoff))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		found, err := fn(ctx)
		if err != nil {
			if isTransient(err) {
				return retry.RetryableError(err)
			}
			return err
		}
		entry = found
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func isTransient(err error) bool {
	typed := pkgerrors.As(err)
	if typed == nil {
		return true
	}
	return pkgerrors.MetadataFor(typed.Code()).Retryable
}
