package webhooks

import (
	"context"
	"fmt"

	"github.com/proofpulse/proofpulse-backend/internal/webhooks/normalize"
	"github.com/proofpulse/proofpulse-backend/internal/webhooks/signature"
	"github.com/proofpulse/proofpulse-backend/pkg/enums"
	"github.com/proofpulse/proofpulse-backend/pkg/errors"
	"github.com/proofpulse/proofpulse-backend/pkg/events"
	"github.com/proofpulse/proofpulse-backend/pkg/logger"
	"github.com/proofpulse/proofpulse-backend/pkg/metrics"
)

type siteResolver interface {
	Resolve(ctx context.Context, provider enums.EventSource, storeKey string) (string, error)
}

type eventPublisher interface {
	Publish(ctx context.Context, event *events.CommerceEvent) error
}

type idempotencyGuard interface {
	CheckAndMark(ctx context.Context, eventID string) (bool, error)
	Delete(ctx context.Context, eventID string) error
}

// Inbound is one webhook delivery after the transport layer has pulled the
// provider conventions apart: the exact raw body bytes the signature was
// computed over, plus the two provider headers.
type Inbound struct {
	Provider  enums.EventSource
	RawBody   []byte
	Signature string
	StoreKey  string
}

// Result is what the transport layer needs to answer the provider.
type Result struct {
	EventID   string
	SiteID    string
	Duplicate bool
}

type ServiceParams struct {
	Secrets   signature.SecretStore
	Resolver  siteResolver
	Publisher eventPublisher
	Guard     idempotencyGuard
	Logger    *logger.Logger
	Metrics   *metrics.PipelineMetrics
}

// Service runs the ingestion pipeline for one webhook delivery.
type Service struct {
	secrets   signature.SecretStore
	resolver  siteResolver
	publisher eventPublisher
	guard     idempotencyGuard
	logg      *logger.Logger
	metrics   *metrics.PipelineMetrics
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Secrets == nil {
		return nil, errors.New(errors.CodeInternal, "secret store required")
	}
	if params.Resolver == nil {
		return nil, errors.New(errors.CodeInternal, "site resolver required")
	}
	if params.Publisher == nil {
		return nil, errors.New(errors.CodeInternal, "event publisher required")
	}
	if params.Guard == nil {
		return nil, errors.New(errors.CodeInternal, "idempotency guard required")
	}
	if params.Logger == nil {
		return nil, errors.New(errors.CodeInternal, "logger required")
	}
	return &Service{
		secrets:   params.Secrets,
		resolver:  params.Resolver,
		publisher: params.Publisher,
		guard:     params.Guard,
		logg:      params.Logger,
		metrics:   params.Metrics,
	}, nil
}

// HandleWebhook verifies, normalizes, resolves and durably publishes one
// delivery. Verification runs before anything else touches the payload;
// an unverifiable request learns nothing beyond "unauthorized".
func (s *Service) HandleWebhook(ctx context.Context, in Inbound) (*Result, error) {
	provider := in.Provider.String()
	ctx = s.logg.WithProvider(ctx, provider)

	desc, ok := descriptors[in.Provider]
	if !ok {
		s.metrics.IncWebhook(provider, "unknown_provider")
		return nil, errors.New(errors.CodeNotFound, "unknown webhook provider")
	}

	secret := s.secrets.GetSecret(in.Provider)
	if !signature.Verify(in.RawBody, in.Signature, secret, desc.Encoding) {
		s.metrics.IncWebhook(provider, "unauthorized")
		return nil, errors.New(errors.CodeUnauthorized, "webhook signature verification failed")
	}

	event, err := normalize.Normalize(in.Provider, in.RawBody)
	if err != nil {
		s.metrics.IncWebhook(provider, "malformed")
		return nil, err
	}
	ctx = s.logg.WithEventID(ctx, event.EventID)

	siteID, err := s.resolver.Resolve(ctx, in.Provider, NormalizeStoreKey(in.StoreKey))
	if err != nil {
		s.metrics.IncWebhook(provider, "unresolved")
		return nil, err
	}
	event.SiteID = siteID
	ctx = s.logg.WithSiteID(ctx, siteID)

	duplicate, err := s.guard.CheckAndMark(ctx, event.EventID)
	if err != nil {
		s.metrics.IncWebhook(provider, "error")
		return nil, errors.Wrap(errors.CodeDependency, err, "check idempotency")
	}
	if duplicate {
		s.metrics.IncWebhook(provider, "duplicate")
		s.logg.Info(ctx, "duplicate webhook delivery suppressed")
		return &Result{EventID: event.EventID, SiteID: siteID, Duplicate: true}, nil
	}

	if err := s.publisher.Publish(ctx, event); err != nil {
		// Release the mark so the provider's redelivery can succeed.
		if delErr := s.guard.Delete(ctx, event.EventID); delErr != nil {
			s.logg.Error(ctx, "failed to release idempotency mark", delErr)
		}
		s.metrics.IncWebhook(provider, "publish_failed")
		return nil, err
	}

	s.metrics.IncWebhook(provider, "accepted")
	s.logg.Info(ctx, fmt.Sprintf("webhook event %s published", event.EventID))
	return &Result{EventID: event.EventID, SiteID: siteID}, nil
}
