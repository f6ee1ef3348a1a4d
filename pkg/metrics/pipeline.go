package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

// PipelineMetrics records webhook ingestion and stream fan-out activity.
type PipelineMetrics struct {
	webhooksTotal     *prometheus.CounterVec
	publishedTotal    *prometheus.CounterVec
	bridgedTotal      *prometheus.CounterVec
	droppedTotal      *prometheus.CounterVec
	deliveredTotal    *prometheus.CounterVec
	streamConnections prometheus.Gauge
}

// NewPipelineMetrics registers the pipeline metrics on the provided registerer.
func NewPipelineMetrics(reg prometheus.Registerer) *PipelineMetrics {
	if reg == nil {
		return &PipelineMetrics{}
	}
	webhooks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhooks_received_total",
		Help: "Webhook requests by provider and outcome.",
	}, []string{"provider", "outcome"})
	published := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "events_published_total",
		Help: "Canonical events appended to the durable bus.",
	}, []string{"provider"})
	bridged := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "events_bridged_total",
		Help: "Events republished from the bus onto site channels.",
	}, []string{"outcome"})
	dropped := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "events_dropped_total",
		Help: "Events published to a channel with zero subscribers.",
	}, []string{"reason"})
	delivered := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stream_events_delivered_total",
		Help: "Frames pushed to stream clients by frame type.",
	}, []string{"frame"})
	connections := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "stream_connections_active",
		Help: "Currently open notification stream connections.",
	})
	reg.MustRegister(webhooks, published, bridged, dropped, delivered, connections)
	return &PipelineMetrics{
		webhooksTotal:     webhooks,
		publishedTotal:    published,
		bridgedTotal:      bridged,
		droppedTotal:      dropped,
		deliveredTotal:    delivered,
		streamConnections: connections,
	}
}

// IncWebhook counts one webhook request.
func (m *PipelineMetrics) IncWebhook(provider, outcome string) {
	if m == nil || m.webhooksTotal == nil {
		return
	}
	m.webhooksTotal.WithLabelValues(normalizeLabel(provider), normalizeLabel(outcome)).Inc()
}

// IncPublished counts one durable publish.
func (m *PipelineMetrics) IncPublished(provider string) {
	if m == nil || m.publishedTotal == nil {
		return
	}
	m.publishedTotal.WithLabelValues(normalizeLabel(provider)).Inc()
}

// IncBridged counts one bus-to-channel republish attempt.
func (m *PipelineMetrics) IncBridged(outcome string) {
	if m == nil || m.bridgedTotal == nil {
		return
	}
	m.bridgedTotal.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// IncDropped counts one now-or-never drop.
func (m *PipelineMetrics) IncDropped(reason string) {
	if m == nil || m.droppedTotal == nil {
		return
	}
	m.droppedTotal.WithLabelValues(normalizeLabel(reason)).Inc()
}

// IncDelivered counts one frame written to a stream client.
func (m *PipelineMetrics) IncDelivered(frame string) {
	if m == nil || m.deliveredTotal == nil {
		return
	}
	m.deliveredTotal.WithLabelValues(normalizeLabel(frame)).Inc()
}

// ConnOpened bumps the active connection gauge.
func (m *PipelineMetrics) ConnOpened() {
	if m == nil || m.streamConnections == nil {
		return
	}
	m.streamConnections.Inc()
}

// ConnClosed decrements the active connection gauge.
func (m *PipelineMetrics) ConnClosed() {
	if m == nil || m.streamConnections == nil {
		return
	}
	m.streamConnections.Dec()
}

func normalizeLabel(value string) string {
	trimmed := strings.TrimSpace(strings.ToLower(value))
	if trimmed == "" {
		return "unknown"
	}
	return strings.ReplaceAll(trimmed, " ", "_")
}
