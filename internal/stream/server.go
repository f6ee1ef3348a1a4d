// Package stream holds the SSE fan-out server. Each client connection is
// scoped to one verified site and owns a dedicated channel subscription for
// that site; the connection lives until the client disconnects or the server
// drains.
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/multierr"

	"github.com/proofpulse/proofpulse-backend/pkg/config"
	"github.com/proofpulse/proofpulse-backend/pkg/errors"
	"github.com/proofpulse/proofpulse-backend/pkg/events"
	"github.com/proofpulse/proofpulse-backend/pkg/logger"
	"github.com/proofpulse/proofpulse-backend/pkg/metrics"
)

// SiteVerifier gates stream access: only verified sites may open a stream.
type SiteVerifier interface {
	VerifySite(ctx context.Context, siteID string) error
}

// ChannelSubscriber opens per-site pub/sub subscriptions. The Redis client
// satisfies this.
type ChannelSubscriber interface {
	SubscribeSite(ctx context.Context, siteID string) (*goredis.PubSub, error)
}

// ServerParams carries the dependencies for the fan-out server.
type ServerParams struct {
	Config   config.StreamConfig
	Verifier SiteVerifier
	Channels ChannelSubscriber
	Logger   *logger.Logger
	Metrics  *metrics.PipelineMetrics
}

func (p ServerParams) validate() error {
	if p.Verifier == nil {
		return fmt.Errorf("site verifier is required")
	}
	if p.Channels == nil {
		return fmt.Errorf("channel subscriber is required")
	}
	if p.Logger == nil {
		return fmt.Errorf("logger is required")
	}
	if p.Config.KeepAliveInterval <= 0 {
		return fmt.Errorf("keep-alive interval must be positive")
	}
	return nil
}

// Server fans site-channel messages out to open SSE connections.
type Server struct {
	cfg      config.StreamConfig
	verifier SiteVerifier
	channels ChannelSubscriber
	logg     *logger.Logger
	metrics  *metrics.PipelineMetrics

	mu      sync.Mutex
	closed  bool
	closing chan struct{}
	wg      sync.WaitGroup
}

// register claims a slot in the drain group. Both the shutdown flag and the
// counter are read under one lock so a connection cannot slip past a
// Shutdown that has already started waiting.
func (s *Server) register() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.wg.Add(1)
	return true
}

// NewServer builds the fan-out server.
func NewServer(params ServerParams) (*Server, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}
	return &Server{
		cfg:      params.Config,
		verifier: params.Verifier,
		channels: params.Channels,
		logg:     params.Logger,
		metrics:  params.Metrics,
		closing:  make(chan struct{}),
	}, nil
}

type connectedFrame struct {
	SiteID string `json:"siteId"`
}

// ServeNotifications streams the site's notifications to one client. It
// returns a taxonomy error only while nothing has been written yet, so the
// caller can still render a JSON error response; once the stream is open it
// always returns nil.
func (s *Server) ServeNotifications(w http.ResponseWriter, r *http.Request, siteID string) error {
	siteID = strings.TrimSpace(siteID)
	if len(siteID) < s.cfg.SiteIDMinLength {
		return errors.New(errors.CodeValidation, "site id is too short").
			WithDetails(map[string]any{"site_id": siteID, "min_length": s.cfg.SiteIDMinLength})
	}

	select {
	case <-s.closing:
		return errors.New(errors.CodeDependency, "server is shutting down")
	default:
	}

	ctx := s.logg.WithSiteID(r.Context(), siteID)

	if err := s.verifier.VerifySite(ctx, siteID); err != nil {
		return err
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		return errors.New(errors.CodeInternal, "streaming is not supported by this transport")
	}

	// Subscribe before committing to the SSE response so a broker failure
	// still surfaces as a JSON error.
	sub, err := s.channels.SubscribeSite(ctx, siteID)
	if err != nil {
		return errors.Wrap(errors.CodeDependency, err, "failed to subscribe to site channel")
	}

	if !s.register() {
		_ = sub.Close()
		return errors.New(errors.CodeDependency, "server is shutting down")
	}
	s.metrics.ConnOpened()
	ticker := time.NewTicker(s.cfg.KeepAliveInterval)
	defer func() {
		// Every teardown step runs even if an earlier one errors:
		// timer, subscription, pub/sub handle. The transport closes
		// when the handler returns.
		ticker.Stop()
		teardownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		errs := multierr.Append(
			sub.Unsubscribe(teardownCtx),
			sub.Close(),
		)
		cancel()
		if errs != nil {
			s.logg.Error(ctx, "stream teardown finished with errors", errs)
		}
		s.metrics.ConnClosed()
		s.wg.Done()
		s.logg.Info(ctx, "stream connection closed")
	}()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache, no-transform")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	greeting, _ := json.Marshal(connectedFrame{SiteID: siteID})
	if err := writeEventFrame(w, "connected", string(greeting)); err != nil {
		return nil
	}
	flusher.Flush()
	s.metrics.IncDelivered("connected")
	s.logg.Info(ctx, "stream connection opened")

	messages := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.closing:
			return nil
		case <-ticker.C:
			if err := writeEventFrame(w, "ping", time.Now().UTC().Format(time.RFC3339)); err != nil {
				return nil
			}
			flusher.Flush()
			s.metrics.IncDelivered("ping")
		case msg, open := <-messages:
			if !open {
				return nil
			}
			// A corrupt message is scoped to this one frame; the
			// connection stays open.
			if _, err := events.Unmarshal([]byte(msg.Payload)); err != nil {
				s.logg.Error(ctx, "dropping malformed notification", err)
				if werr := writeEventFrame(w, "error", "malformed notification payload"); werr != nil {
					return nil
				}
				flusher.Flush()
				s.metrics.IncDelivered("error")
				continue
			}
			if err := writeDataFrame(w, msg.Payload); err != nil {
				return nil
			}
			flusher.Flush()
			s.metrics.IncDelivered("data")
		}
	}
}

// Shutdown stops accepting connections, cancels the open ones and waits for
// their teardown to finish, bounded by the context.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.closing)
	}
	s.mu.Unlock()
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("stream shutdown: %w", ctx.Err())
	}
}

func writeEventFrame(w io.Writer, event, data string) error {
	_, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}

func writeDataFrame(w io.Writer, data string) error {
	_, err := fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}
