package stream

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/proofpulse/proofpulse-backend/pkg/config"
	"github.com/proofpulse/proofpulse-backend/pkg/enums"
	apperrors "github.com/proofpulse/proofpulse-backend/pkg/errors"
	"github.com/proofpulse/proofpulse-backend/pkg/events"
	"github.com/proofpulse/proofpulse-backend/pkg/logger"
	"github.com/proofpulse/proofpulse-backend/pkg/redis"
)

type fakeVerifier struct {
	err error
}

func (f *fakeVerifier) VerifySite(context.Context, string) error { return f.err }

type streamFixture struct {
	server  *Server
	redis   *redis.Client
	mini    *miniredis.Miniredis
	httpSrv *httptest.Server
}

func newFixture(t *testing.T, cfg config.StreamConfig, verifier SiteVerifier) *streamFixture {
	t.Helper()
	mini := miniredis.RunT(t)
	client := redis.NewFromAddr(mini.Addr())
	t.Cleanup(func() { _ = client.Close() })

	if cfg.KeepAliveInterval == 0 {
		cfg.KeepAliveInterval = time.Minute
	}
	if cfg.SiteIDMinLength == 0 {
		cfg.SiteIDMinLength = 3
	}
	server, err := NewServer(ServerParams{
		Config:   cfg,
		Verifier: verifier,
		Channels: client,
		Logger:   logger.New(logger.Options{ServiceName: "stream-test", Output: io.Discard}),
	})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/notifications/stream/", func(w http.ResponseWriter, r *http.Request) {
		siteID := strings.TrimPrefix(r.URL.Path, "/notifications/stream/")
		if err := server.ServeNotifications(w, r, siteID); err != nil {
			appErr := apperrors.As(err)
			http.Error(w, appErr.Message(), apperrors.MetadataFor(appErr.Code()).HTTPStatus)
		}
	})
	httpSrv := httptest.NewServer(mux)
	t.Cleanup(httpSrv.Close)

	return &streamFixture{server: server, redis: client, mini: mini, httpSrv: httpSrv}
}

// frame is one SSE frame: the optional event name plus the data line.
type frame struct {
	event string
	data  string
}

func openStream(t *testing.T, f *streamFixture, siteID string) (*http.Response, context.CancelFunc) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.httpSrv.URL+"/notifications/stream/"+siteID, nil)
	if err != nil {
		cancel()
		t.Fatalf("build request: %v", err)
	}
	resp, err := f.httpSrv.Client().Do(req)
	if err != nil {
		cancel()
		t.Fatalf("open stream: %v", err)
	}
	t.Cleanup(func() {
		cancel()
		_ = resp.Body.Close()
	})
	return resp, cancel
}

func readFrame(t *testing.T, reader *bufio.Reader) frame {
	t.Helper()
	var fr frame
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatalf("read frame: %v", err)
		}
		line = strings.TrimRight(line, "\n")
		if line == "" {
			if fr.data != "" || fr.event != "" {
				return fr
			}
			continue
		}
		if rest, ok := strings.CutPrefix(line, "event: "); ok {
			fr.event = rest
			continue
		}
		if rest, ok := strings.CutPrefix(line, "data: "); ok {
			fr.data = rest
		}
	}
}

func waitForSubscribers(t *testing.T, f *streamFixture, siteID string, want int64) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		count, err := f.redis.SiteSubscriberCount(context.Background(), siteID)
		if err == nil && count == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("site %s never reached %d subscribers", siteID, want)
}

func publishEvent(t *testing.T, f *streamFixture, siteID string) *events.CommerceEvent {
	t.Helper()
	event := &events.CommerceEvent{
		EventID:    "shopify:9001",
		EventType:  enums.EventTypeOrderCreated,
		Source:     enums.EventSourceShopify,
		SiteID:     siteID,
		OccurredAt: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
		Payload:    events.Payload{ProductTitle: "Trail Shoes", Price: "59.90", Currency: "USD"},
	}
	data, err := event.Marshal()
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	if _, err := f.redis.PublishSite(context.Background(), siteID, data); err != nil {
		t.Fatalf("publish: %v", err)
	}
	return event
}

func TestServeNotificationsRejectsShortSiteID(t *testing.T) {
	f := newFixture(t, config.StreamConfig{}, &fakeVerifier{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/notifications/stream/ab", nil)
	err := f.server.ServeNotifications(rec, req, "ab")
	appErr := apperrors.As(err)
	if appErr == nil || appErr.Code() != apperrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	if rec.Body.Len() != 0 {
		t.Fatalf("nothing should be written before validation passes")
	}
}

func TestServeNotificationsRejectsUnverifiedSite(t *testing.T) {
	f := newFixture(t, config.StreamConfig{}, &fakeVerifier{
		err: apperrors.New(apperrors.CodeForbidden, "site is not verified"),
	})

	resp, _ := openStream(t, f, "site-unverified")
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", resp.StatusCode)
	}
	count, err := f.redis.SiteSubscriberCount(context.Background(), "site-unverified")
	if err != nil {
		t.Fatalf("subscriber count: %v", err)
	}
	if count != 0 {
		t.Fatalf("no subscription may be opened for a rejected site, got %d", count)
	}
}

func TestServeNotificationsConnectedThenData(t *testing.T) {
	f := newFixture(t, config.StreamConfig{}, &fakeVerifier{})
	siteID := "site-happy"

	resp, cancel := openStream(t, f, siteID)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if got := resp.Header.Get("Content-Type"); got != "text/event-stream" {
		t.Fatalf("content type = %q", got)
	}
	if got := resp.Header.Get("Cache-Control"); got != "no-cache, no-transform" {
		t.Fatalf("cache control = %q", got)
	}

	reader := bufio.NewReader(resp.Body)
	first := readFrame(t, reader)
	if first.event != "connected" {
		t.Fatalf("first frame event = %q, want connected", first.event)
	}
	var greeting struct {
		SiteID string `json:"siteId"`
	}
	if err := json.Unmarshal([]byte(first.data), &greeting); err != nil || greeting.SiteID != siteID {
		t.Fatalf("connected frame data = %q (err %v)", first.data, err)
	}

	waitForSubscribers(t, f, siteID, 1)
	want := publishEvent(t, f, siteID)

	second := readFrame(t, reader)
	if second.event != "" {
		t.Fatalf("notification must be a default data frame, got event %q", second.event)
	}
	got, err := events.Unmarshal([]byte(second.data))
	if err != nil {
		t.Fatalf("data frame is not a canonical event: %v", err)
	}
	if got.EventID != want.EventID || got.SiteID != siteID || got.Payload.Price != "59.90" {
		t.Fatalf("delivered event mismatch: %+v", got)
	}

	// Disconnect and verify the subscription is torn down.
	cancel()
	waitForSubscribers(t, f, siteID, 0)
}

func TestServeNotificationsKeepAlive(t *testing.T) {
	f := newFixture(t, config.StreamConfig{KeepAliveInterval: 50 * time.Millisecond}, &fakeVerifier{})

	resp, _ := openStream(t, f, "site-idle")
	reader := bufio.NewReader(resp.Body)

	if fr := readFrame(t, reader); fr.event != "connected" {
		t.Fatalf("first frame = %q, want connected", fr.event)
	}
	ping := readFrame(t, reader)
	if ping.event != "ping" {
		t.Fatalf("idle stream must ping, got %q", ping.event)
	}
	if _, err := time.Parse(time.RFC3339, ping.data); err != nil {
		t.Fatalf("ping carries a timestamp, got %q: %v", ping.data, err)
	}
	// Connection survives the ping.
	if fr := readFrame(t, reader); fr.event != "ping" {
		t.Fatalf("expected a second ping, got %q", fr.event)
	}
}

func TestServeNotificationsIsolatesCorruptMessages(t *testing.T) {
	f := newFixture(t, config.StreamConfig{}, &fakeVerifier{})
	siteID := "site-corrupt"

	resp, _ := openStream(t, f, siteID)
	reader := bufio.NewReader(resp.Body)
	if fr := readFrame(t, reader); fr.event != "connected" {
		t.Fatalf("first frame = %q, want connected", fr.event)
	}
	waitForSubscribers(t, f, siteID, 1)

	if _, err := f.redis.PublishSite(context.Background(), siteID, []byte("{broken")); err != nil {
		t.Fatalf("publish garbage: %v", err)
	}
	errFrame := readFrame(t, reader)
	if errFrame.event != "error" {
		t.Fatalf("corrupt message must yield an error frame, got %q", errFrame.event)
	}

	// The connection is still live and delivers the next good event.
	publishEvent(t, f, siteID)
	data := readFrame(t, reader)
	if data.event != "" {
		t.Fatalf("expected data frame after error frame, got %q", data.event)
	}
	if _, err := events.Unmarshal([]byte(data.data)); err != nil {
		t.Fatalf("post-error data frame invalid: %v", err)
	}
}

func TestShutdownDrainsConnections(t *testing.T) {
	f := newFixture(t, config.StreamConfig{}, &fakeVerifier{})
	siteID := "site-drain"

	resp, _ := openStream(t, f, siteID)
	reader := bufio.NewReader(resp.Body)
	if fr := readFrame(t, reader); fr.event != "connected" {
		t.Fatalf("first frame = %q, want connected", fr.event)
	}
	waitForSubscribers(t, f, siteID, 1)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := f.server.Shutdown(shutdownCtx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	// Stream ends for the client and the subscription is released.
	if _, err := io.ReadAll(resp.Body); err != nil && !strings.Contains(err.Error(), "context canceled") {
		t.Fatalf("unexpected read error after shutdown: %v", err)
	}
	waitForSubscribers(t, f, siteID, 0)

	// New connections are refused while draining.
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/notifications/stream/"+siteID, nil)
	err := f.server.ServeNotifications(rec, req, siteID)
	appErr := apperrors.As(err)
	if appErr == nil || appErr.Code() != apperrors.CodeDependency {
		t.Fatalf("expected dependency error after shutdown, got %v", err)
	}
}

func TestTwoClientsSameSiteBothReceive(t *testing.T) {
	f := newFixture(t, config.StreamConfig{}, &fakeVerifier{})
	siteID := "site-fanout"

	respA, _ := openStream(t, f, siteID)
	respB, _ := openStream(t, f, siteID)
	readerA := bufio.NewReader(respA.Body)
	readerB := bufio.NewReader(respB.Body)
	if fr := readFrame(t, readerA); fr.event != "connected" {
		t.Fatalf("client A first frame = %q", fr.event)
	}
	if fr := readFrame(t, readerB); fr.event != "connected" {
		t.Fatalf("client B first frame = %q", fr.event)
	}
	waitForSubscribers(t, f, siteID, 2)

	want := publishEvent(t, f, siteID)
	for name, reader := range map[string]*bufio.Reader{"A": readerA, "B": readerB} {
		fr := readFrame(t, reader)
		got, err := events.Unmarshal([]byte(fr.data))
		if err != nil {
			t.Fatalf("client %s: bad data frame: %v", name, err)
		}
		if got.EventID != want.EventID {
			t.Fatalf("client %s: event_id = %q, want %q", name, got.EventID, want.EventID)
		}
	}
}

func TestEventsArriveInPublishOrder(t *testing.T) {
	f := newFixture(t, config.StreamConfig{}, &fakeVerifier{})
	siteID := "site-ordered"

	resp, _ := openStream(t, f, siteID)
	reader := bufio.NewReader(resp.Body)
	if fr := readFrame(t, reader); fr.event != "connected" {
		t.Fatalf("first frame = %q", fr.event)
	}
	waitForSubscribers(t, f, siteID, 1)

	ids := []string{"shopify:1", "shopify:2", "shopify:3", "shopify:4", "shopify:5"}
	for _, id := range ids {
		event := &events.CommerceEvent{
			EventID:    id,
			EventType:  enums.EventTypeOrderCreated,
			Source:     enums.EventSourceShopify,
			SiteID:     siteID,
			OccurredAt: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
			Payload:    events.Payload{ProductTitle: "Trail Shoes", Price: "59.90", Currency: "USD"},
		}
		data, err := event.Marshal()
		if err != nil {
			t.Fatalf("marshal %s: %v", id, err)
		}
		if _, err := f.redis.PublishSite(context.Background(), siteID, data); err != nil {
			t.Fatalf("publish %s: %v", id, err)
		}
	}

	for i, id := range ids {
		fr := readFrame(t, reader)
		got, err := events.Unmarshal([]byte(fr.data))
		if err != nil {
			t.Fatalf("frame %d: bad data: %v", i, err)
		}
		if got.EventID != id {
			t.Fatalf("frame %d: event_id = %q, want %q", i, got.EventID, id)
		}
	}
}

func TestRepeatedConnectionsLeaveNoSubscriptions(t *testing.T) {
	f := newFixture(t, config.StreamConfig{}, &fakeVerifier{})
	siteID := "site-churn"

	for i := 0; i < 5; i++ {
		resp, cancel := openStream(t, f, siteID)
		reader := bufio.NewReader(resp.Body)
		if fr := readFrame(t, reader); fr.event != "connected" {
			t.Fatalf("cycle %d: first frame = %q", i, fr.event)
		}
		waitForSubscribers(t, f, siteID, 1)
		cancel()
		_ = resp.Body.Close()
		waitForSubscribers(t, f, siteID, 0)
	}
}

func TestShutdownRacesWithIncomingConnections(t *testing.T) {
	f := newFixture(t, config.StreamConfig{}, &fakeVerifier{})
	siteID := "site-late"

	resp, _ := openStream(t, f, siteID)
	reader := bufio.NewReader(resp.Body)
	if fr := readFrame(t, reader); fr.event != "connected" {
		t.Fatalf("first frame = %q", fr.event)
	}
	waitForSubscribers(t, f, siteID, 1)

	// Hammer the endpoint while Shutdown runs; every attempt must either be
	// refused or be drained before Shutdown returns.
	stop := make(chan struct{})
	var churn sync.WaitGroup
	for i := 0; i < 4; i++ {
		churn.Add(1)
		go func() {
			defer churn.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				late, err := f.httpSrv.Client().Get(f.httpSrv.URL + "/notifications/stream/" + siteID)
				if err != nil {
					continue
				}
				_, _ = io.Copy(io.Discard, late.Body)
				_ = late.Body.Close()
			}
		}()
	}

	time.Sleep(20 * time.Millisecond)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := f.server.Shutdown(shutdownCtx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	close(stop)
	churn.Wait()

	waitForSubscribers(t, f, siteID, 0)

	refused, err := f.httpSrv.Client().Get(f.httpSrv.URL + "/notifications/stream/" + siteID)
	if err != nil {
		t.Fatalf("request after shutdown: %v", err)
	}
	defer refused.Body.Close()
	if refused.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status after shutdown = %d, want %d", refused.StatusCode, http.StatusServiceUnavailable)
	}
}
