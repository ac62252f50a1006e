package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"wadio/core/radio"
	"wadio/logger"
	"wadio/model"

	"github.com/go-redis/redis/v8"
)

const (
	// NowPlayingKey holds the JSON description of the playing track.
	NowPlayingKey = "wadio:now_playing"
	// NowPlayingChannel receives the same JSON whenever a track starts.
	NowPlayingChannel = "wadio:now_playing"
)

// NowPlayingEntry is the value stored under NowPlayingKey.
type NowPlayingEntry struct {
	Name      string `json:"name"`
	Artist    string `json:"artist"`
	Album     string `json:"album"`
	Length    uint64 `json:"length"`
	StartedAt int64  `json:"startedAt"` // unix milliseconds
}

type nowPlayingStore interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// NowPlaying mirrors the playing track into Redis so other services can
// show it without calling the HTTP API.
type NowPlaying struct {
	client nowPlayingStore
}

// NewNowPlaying creates a publisher on client.
func NewNowPlaying(client *redis.Client) *NowPlaying {
	return &NowPlaying{client: client}
}

// TrackStarted stores the track and announces it on NowPlayingChannel. The
// key expires one minute after the track should have ended.
func (p *NowPlaying) TrackStarted(ctx context.Context, track model.Track, startedAt time.Time) {
	data, err := json.Marshal(NowPlayingEntry{
		Name:      track.Title,
		Artist:    track.Artist,
		Album:     track.Album,
		Length:    track.Length,
		StartedAt: startedAt.UnixMilli(),
	})
	if err != nil {
		logger.Warn("failed to encode now playing", logger.ErrorField(err))
		return
	}

	ttl := time.Duration(track.Length)*time.Millisecond + time.Minute
	if err := p.client.Set(ctx, NowPlayingKey, data, ttl).Err(); err != nil {
		logger.Warn("failed to store now playing in Redis", logger.ErrorField(err))
		return
	}
	if err := p.client.Publish(ctx, NowPlayingChannel, data).Err(); err != nil {
		logger.Warn("failed to publish now playing", logger.ErrorField(err))
	}
}

// TrackFinished is a no-op: the next TrackStarted overwrites the key.
func (p *NowPlaying) TrackFinished(context.Context, model.Track, int64) {}

// TrackFailed is a no-op.
func (p *NowPlaying) TrackFailed(context.Context, model.Track, *radio.TrackError) {}

// Clear removes the now playing key, on shutdown.
func (p *NowPlaying) Clear(ctx context.Context) error {
	return p.client.Del(ctx, NowPlayingKey).Err()
}

// Get reads the stored entry. ok is false when nothing is playing.
func (p *NowPlaying) Get(ctx context.Context) (entry NowPlayingEntry, ok bool, err error) {
	data, err := p.client.Get(ctx, NowPlayingKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return NowPlayingEntry{}, false, nil
	}
	if err != nil {
		return NowPlayingEntry{}, false, fmt.Errorf("failed to get now playing: %w", err)
	}
	if err := json.Unmarshal(data, &entry); err != nil {
		return NowPlayingEntry{}, false, fmt.Errorf("failed to decode now playing: %w", err)
	}
	return entry, true, nil
}
