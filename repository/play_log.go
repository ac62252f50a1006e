package repository

import (
	"context"
	"time"

	"wadio/core/radio"
	"wadio/logger"
	"wadio/model"
)

// PlayLog writes one row per broadcast track. Database errors are logged and
// never interrupt the stream.
type PlayLog struct {
	repo    PlayRepository
	now     func() time.Time
	current *model.Play
}

// NewPlayLog creates a play log observer backed by repo.
func NewPlayLog(repo PlayRepository) *PlayLog {
	return &PlayLog{repo: repo, now: time.Now}
}

func (l *PlayLog) TrackStarted(ctx context.Context, track model.Track, startedAt time.Time) {
	play := model.NewPlay(track, startedAt)
	if err := l.repo.Create(ctx, play); err != nil {
		logger.Warn("failed to record play",
			logger.String("track", track.DisplayName()),
			logger.ErrorField(err))
		l.current = nil
		return
	}
	l.current = play
}

func (l *PlayLog) TrackFinished(ctx context.Context, track model.Track, bytes int64) {
	play := l.current
	l.current = nil
	if play == nil || play.Path != track.Path {
		return
	}
	if err := l.repo.Finish(ctx, play.ID, l.now(), bytes); err != nil {
		logger.Warn("failed to finish play",
			logger.Int64("play", play.ID),
			logger.ErrorField(err))
	}
}

// TrackFailed is a no-op: failed tracks never reach TrackStarted.
func (l *PlayLog) TrackFailed(context.Context, model.Track, *radio.TrackError) {}
