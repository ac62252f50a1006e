package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"wadio/core/radio"
	"wadio/model"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsFollowPlayback(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(reg)
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	tr := model.Track{Path: "/music/a.mp3"}
	m.TrackStarted(ctx, tr, time.Now().Add(-2*time.Second))
	m.TrackFinished(ctx, tr, 4096)
	m.TrackFailed(ctx, tr, &radio.TrackError{Op: radio.OpAlign, Track: tr, Err: errors.New("no frames")})
	m.TrackFailed(ctx, tr, &radio.TrackError{Op: radio.OpAlign, Track: tr, Err: errors.New("no frames")})

	if got := testutil.ToFloat64(m.tracksPlayed); got != 1 {
		t.Errorf("tracks played = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.streamedBytes); got != 4096 {
		t.Errorf("streamed bytes = %v, want 4096", got)
	}
	if got := testutil.ToFloat64(m.playbackSecond); got < 2 {
		t.Errorf("playback seconds = %v, want at least 2", got)
	}
	if got := testutil.ToFloat64(m.trackFailures.WithLabelValues(radio.OpAlign)); got != 2 {
		t.Errorf("align failures = %v, want 2", got)
	}
}

func TestListenerGauge(t *testing.T) {
	m, err := New(prometheus.NewRegistry())
	if err != nil {
		t.Fatal(err)
	}

	m.ListenerJoined()
	m.ListenerJoined()
	m.ListenerLeft()

	if got := testutil.ToFloat64(m.listeners); got != 1 {
		t.Errorf("listeners = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.connections); got != 2 {
		t.Errorf("connections = %v, want 2", got)
	}
}

func TestNewRejectsDoubleRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := New(reg); err != nil {
		t.Fatal(err)
	}
	if _, err := New(reg); err == nil {
		t.Error("second New on the same registry succeeded")
	}
}
