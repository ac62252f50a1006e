// Package metrics exposes broadcast counters to Prometheus.
package metrics

import (
	"context"
	"sync"
	"time"

	"wadio/core/radio"
	"wadio/model"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "wadio"

// Metrics collects listener and playback statistics. It is a radio.Observer.
type Metrics struct {
	listeners      prometheus.Gauge
	connections    prometheus.Counter
	tracksPlayed   prometheus.Counter
	trackFailures  *prometheus.CounterVec
	streamedBytes  prometheus.Counter
	playbackSecond prometheus.Counter

	mu        sync.Mutex
	startedAt time.Time
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		listeners: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "listeners",
			Help:      "Number of currently connected listeners.",
		}),
		connections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "listener_connections_total",
			Help:      "Listener connections accepted since start.",
		}),
		tracksPlayed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tracks_played_total",
			Help:      "Tracks streamed to the end or until shutdown.",
		}),
		trackFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "track_failures_total",
			Help:      "Tracks skipped because they could not be streamed.",
		}, []string{"op"}),
		streamedBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "streamed_bytes_total",
			Help:      "Audio bytes handed to the listener registry.",
		}),
		playbackSecond: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "playback_seconds_total",
			Help:      "Wall-clock seconds spent streaming tracks.",
		}),
	}

	for _, c := range []prometheus.Collector{
		m.listeners, m.connections, m.tracksPlayed, m.trackFailures, m.streamedBytes, m.playbackSecond,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// ListenerJoined records a new listener connection.
func (m *Metrics) ListenerJoined() {
	m.connections.Inc()
	m.listeners.Inc()
}

// ListenerLeft records a listener leaving the registry.
func (m *Metrics) ListenerLeft() {
	m.listeners.Dec()
}

func (m *Metrics) TrackStarted(_ context.Context, _ model.Track, startedAt time.Time) {
	m.mu.Lock()
	m.startedAt = startedAt
	m.mu.Unlock()
}

func (m *Metrics) TrackFinished(_ context.Context, _ model.Track, bytes int64) {
	m.mu.Lock()
	took := time.Since(m.startedAt)
	m.mu.Unlock()

	m.tracksPlayed.Inc()
	m.streamedBytes.Add(float64(bytes))
	if took > 0 {
		m.playbackSecond.Add(took.Seconds())
	}
}

func (m *Metrics) TrackFailed(_ context.Context, _ model.Track, err *radio.TrackError) {
	m.trackFailures.WithLabelValues(err.Op).Inc()
}
