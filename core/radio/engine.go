// Package radio runs the broadcast loop: it takes tracks from the scheduler,
// aligns them to the first audio frame and pushes their bytes to every
// listener at roughly real-time pace.
package radio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"

	"wadio/core/align"
	"wadio/core/queue"
	"wadio/logger"
	"wadio/model"
)

const (
	// DefaultInterval is the pause after each chunk. One chunk carries one
	// interval worth of audio.
	DefaultInterval = time.Second
	// ChunkSlack is added to every chunk so listeners never starve on tracks
	// whose real bitrate is above the average.
	ChunkSlack = 1024
	// FallbackBitrate is assumed when a track's bitrate is unknown.
	FallbackBitrate = 128000
)

// Track operations reported in TrackError.
const (
	OpOpen  = "open"
	OpAlign = "align"
	OpRead  = "read"
)

// TrackError describes a track that could not be streamed. The engine logs it
// and moves on to the next track.
type TrackError struct {
	Op    string
	Track model.Track
	Err   error
}

func (e *TrackError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Track.Path, e.Err)
}

func (e *TrackError) Unwrap() error { return e.Err }

// Broadcaster receives every chunk the engine produces.
type Broadcaster interface {
	Broadcast(chunk []byte)
}

// Observer is told about playback progress. Calls happen on the engine
// goroutine and must return quickly.
type Observer interface {
	TrackStarted(ctx context.Context, track model.Track, startedAt time.Time)
	TrackFinished(ctx context.Context, track model.Track, bytes int64)
	TrackFailed(ctx context.Context, track model.Track, err *TrackError)
}

// Config controls pacing and library refresh.
type Config struct {
	// AutoRefresh rescans the library whenever the queue runs dry.
	AutoRefresh bool
	Interval    time.Duration
	// TrackGap is an extra pause between two tracks.
	TrackGap time.Duration
}

// trackFile is the part of *os.File the engine reads tracks through.
type trackFile interface {
	io.ReadSeekCloser
	Stat() (fs.FileInfo, error)
}

func openTrack(name string) (trackFile, error) {
	return os.Open(name)
}

// Engine is the single producer of audio chunks.
type Engine struct {
	scheduler *queue.Scheduler
	out       Broadcaster
	cfg       Config
	observers []Observer
	now       func() time.Time
	open      func(name string) (trackFile, error)
}

// New creates an engine streaming tracks from scheduler to out.
func New(scheduler *queue.Scheduler, out Broadcaster, cfg Config, observers ...Observer) *Engine {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	return &Engine{
		scheduler: scheduler,
		out:       out,
		cfg:       cfg,
		observers: observers,
		now:       time.Now,
		open:      openTrack,
	}
}

// ChunkSize returns the number of bytes sent per interval for a track.
func ChunkSize(bitrate uint64, interval time.Duration) int {
	if bitrate == 0 {
		bitrate = FallbackBitrate
	}
	perInterval := bitrate / 8 * uint64(interval) / uint64(time.Second)
	return int(perInterval) + ChunkSlack
}

// Run streams tracks until ctx is cancelled. Track failures are logged and
// skipped; Run only returns ctx.Err().
func (e *Engine) Run(ctx context.Context) error {
	logger.Info("broadcast engine started",
		logger.String("library", e.scheduler.Root()),
		logger.Bool("autoRefresh", e.cfg.AutoRefresh),
		logger.Duration("interval", e.cfg.Interval))

	for {
		if err := ctx.Err(); err != nil {
			logger.Info("broadcast engine stopped")
			return err
		}

		track, ok := e.next(ctx)
		if !ok {
			continue
		}

		err := e.play(ctx, track)
		var te *TrackError
		if errors.As(err, &te) {
			logger.Error("failed to play track",
				logger.String("track", track.DisplayName()),
				logger.String("path", track.Path),
				logger.String("op", te.Op),
				logger.ErrorField(te.Err))
			e.failed(ctx, te)
			continue
		}

		if e.cfg.TrackGap > 0 {
			sleep(ctx, e.cfg.TrackGap)
		}
	}
}

// next advances the scheduler, refilling the queue from the catalog when it
// is empty. With an empty catalog it waits one interval and reports false.
func (e *Engine) next(ctx context.Context) (model.Track, bool) {
	if e.scheduler.Advance() {
		return e.scheduler.Current()
	}

	if e.cfg.AutoRefresh {
		if err := e.scheduler.Refresh(); err != nil {
			logger.Error("failed to refresh library, replaying the previous catalog",
				logger.String("library", e.scheduler.Root()),
				logger.ErrorField(err))
		}
	}
	e.scheduler.Refill()

	if e.scheduler.Advance() {
		return e.scheduler.Current()
	}

	logger.Warn("library is empty, waiting for tracks",
		logger.String("library", e.scheduler.Root()))
	sleep(ctx, e.cfg.Interval)
	return model.Track{}, false
}

// play streams one track. It returns a *TrackError when the track could not
// be opened, aligned or read, and ctx.Err() when cancelled mid-track.
func (e *Engine) play(ctx context.Context, track model.Track) error {
	f, err := e.open(track.Path)
	if err != nil {
		return &TrackError{Op: OpOpen, Track: track, Err: err}
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return &TrackError{Op: OpOpen, Track: track, Err: err}
	}
	start, err := align.Align(f)
	if err != nil {
		return &TrackError{Op: OpAlign, Track: track, Err: err}
	}
	trailer, err := align.TrailingTagSize(f, info.Size())
	if err != nil {
		return &TrackError{Op: OpAlign, Track: track, Err: err}
	}
	audio := max(info.Size()-trailer-start, 0)

	startedAt := e.now()
	logger.Info("now playing",
		logger.String("track", track.DisplayName()),
		logger.String("album", track.Album),
		logger.Uint64("lengthMs", track.Length))
	for _, o := range e.observers {
		o.TrackStarted(ctx, track, startedAt)
	}

	sent, err := e.stream(ctx, io.LimitReader(f, audio), ChunkSize(track.Bitrate, e.cfg.Interval))

	// observers still get the finish when the process is shutting down
	done := context.WithoutCancel(ctx)
	for _, o := range e.observers {
		o.TrackFinished(done, track, sent)
	}
	logger.Info("finished playing",
		logger.String("track", track.DisplayName()),
		logger.Int64("bytes", sent),
		logger.Duration("took", e.now().Sub(startedAt)))

	if err != nil && ctx.Err() == nil {
		return &TrackError{Op: OpRead, Track: track, Err: err}
	}
	return err
}

// stream copies r to the broadcaster one chunk per interval. Each chunk is a
// fresh slice: listener buffers hold on to it after Broadcast returns.
func (e *Engine) stream(ctx context.Context, r io.Reader, size int) (int64, error) {
	var sent int64
	for {
		buf := make([]byte, size)
		n, readErr := io.ReadFull(r, buf)
		if n > 0 {
			e.out.Broadcast(buf[:n])
			sent += int64(n)
			if err := sleep(ctx, e.cfg.Interval); err != nil {
				return sent, err
			}
		}
		if errors.Is(readErr, io.EOF) || errors.Is(readErr, io.ErrUnexpectedEOF) {
			return sent, nil
		}
		if readErr != nil {
			return sent, readErr
		}
	}
}

func (e *Engine) failed(ctx context.Context, te *TrackError) {
	for _, o := range e.observers {
		o.TrackFailed(ctx, te.Track, te)
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
