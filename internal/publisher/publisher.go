// Package publisher appends canonical events to the durable commerce-events
// topic. Events are keyed by site so the bus preserves per-site order;
// ordering across sites is neither guaranteed nor required.
package publisher

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/proofpulse/proofpulse-backend/pkg/config"
	pkgerrors "github.com/proofpulse/proofpulse-backend/pkg/errors"
	"github.com/proofpulse/proofpulse-backend/pkg/events"
	"github.com/proofpulse/proofpulse-backend/pkg/logger"
	"github.com/proofpulse/proofpulse-backend/pkg/metrics"
)

const (
	defaultMaxAttempts    = 5
	defaultInitialBackoff = 100 * time.Millisecond
	defaultMaximumBackoff = 5 * time.Second
	defaultPublishTimeout = 15 * time.Second
	jitterWindow          = 50 * time.Millisecond
)

// ErrExhausted signals that every publish attempt failed; the webhook caller
// must answer 5xx so the provider's own retry mechanism redelivers.
var ErrExhausted = errors.New("publish retries exhausted")

// Bus is the minimal durable-topic surface the publisher needs. The GCP
// adapter in gcp.go implements it; tests substitute fakes.
type Bus interface {
	Publish(ctx context.Context, msg OutgoingMessage) Result
	ResumePublish(orderingKey string)
}

// OutgoingMessage is a transport-neutral bus message.
type OutgoingMessage struct {
	Data        []byte
	OrderingKey string
	Attributes  map[string]string
}

// Result resolves to the broker-assigned message ID.
type Result interface {
	Get(ctx context.Context) (string, error)
}

type ServiceParams struct {
	Bus     Bus
	Config  config.PublisherConfig
	Logger  *logger.Logger
	Metrics *metrics.PipelineMetrics
}

// Service publishes canonical events with bounded exponential backoff.
type Service struct {
	bus            Bus
	logg           *logger.Logger
	metrics        *metrics.PipelineMetrics
	maxAttempts    int
	initialBackoff time.Duration
	maximumBackoff time.Duration
	publishTimeout time.Duration
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Bus == nil {
		return nil, errors.New("bus is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}

	cfg := params.Config
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = defaultInitialBackoff
	}
	if cfg.MaximumBackoff <= 0 {
		cfg.MaximumBackoff = defaultMaximumBackoff
	}
	if cfg.MaximumBackoff < cfg.InitialBackoff {
		cfg.MaximumBackoff = cfg.InitialBackoff
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = defaultPublishTimeout
	}

	return &Service{
		bus:            params.Bus,
		logg:           params.Logger,
		metrics:        params.Metrics,
		maxAttempts:    cfg.MaxAttempts,
		initialBackoff: cfg.InitialBackoff,
		maximumBackoff: cfg.MaximumBackoff,
		publishTimeout: cfg.PublishTimeout,
	}, nil
}

// Publish appends the event to the topic, keyed by site. The wire payload is
// compressed; compression is an optimization, never part of the contract, so
// the encoding travels as a message attribute consumers inspect.
func (s *Service) Publish(ctx context.Context, event *events.CommerceEvent) error {
	data, err := event.Marshal()
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "event failed invariant check")
	}

	msg := OutgoingMessage{
		Data:        compress(data),
		OrderingKey: event.SiteID,
		Attributes: map[string]string{
			attrEventType: event.EventType.String(),
			attrSiteID:    event.SiteID,
			attrSource:    event.Source.String(),
			attrEncoding:  encodingSnappy,
		},
	}

	backoff := s.initialBackoff
	var lastErr error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "publish canceled")
		}

		lastErr = s.attempt(ctx, msg)
		if lastErr == nil {
			s.metrics.IncPublished(event.Source.String())
			return nil
		}

		// A failed ordered publish pauses the key until resumed.
		s.bus.ResumePublish(msg.OrderingKey)

		logCtx := s.logg.WithFields(ctx, map[string]any{
			"event_id": event.EventID,
			"site_id":  event.SiteID,
			"attempt":  attempt,
		})
		s.logg.Warn(logCtx, "publish attempt failed")

		if attempt == s.maxAttempts {
			break
		}
		if err := sleep(ctx, withJitter(backoff)); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "publish canceled")
		}
		backoff = minDuration(backoff*2, s.maximumBackoff)
	}

	return pkgerrors.Wrap(pkgerrors.CodeDependency, errors.Join(ErrExhausted, lastErr), "durable publish failed")
}

func (s *Service) attempt(ctx context.Context, msg OutgoingMessage) error {
	attemptCtx, cancel := context.WithTimeout(ctx, s.publishTimeout)
	defer cancel()
	result := s.bus.Publish(attemptCtx, msg)
	_, err := result.Get(attemptCtx)
	return err
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// withJitter uses the shared top-level source, which is safe under the
// concurrent publishes the webhook handlers drive.
func withJitter(d time.Duration) time.Duration {
	return d + time.Duration(rand.Int64N(int64(jitterWindow)))
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
