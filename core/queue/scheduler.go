// Package queue owns the play queue, the history and the now-playing pointer.
package queue

import (
	"math/rand"
	"sync"
	"time"

	"wadio/core/catalog"
	"wadio/model"
)

// DefaultHistoryLimit is the number of played tracks kept by default.
const DefaultHistoryLimit = 100

// Scheduler decides what plays next. All methods are safe for concurrent use;
// accessors return copies so callers never share slices with the scheduler.
type Scheduler struct {
	root   string
	source catalog.Source

	mu           sync.RWMutex
	catalog      []model.Track
	queue        []model.Track // next to play is at the end
	history      []model.Track // newest last
	historyLimit int
	current      *model.Track
	songStart    time.Time

	now     func() time.Time
	shuffle func(n int, swap func(i, j int))
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithHistoryLimit caps the history; 0 keeps everything.
func WithHistoryLimit(n int) Option {
	return func(s *Scheduler) {
		if n >= 0 {
			s.historyLimit = n
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// WithShuffle replaces the permutation function, for tests.
func WithShuffle(fn func(n int, swap func(i, j int))) Option {
	return func(s *Scheduler) { s.shuffle = fn }
}

// New creates a scheduler for the library at root. The catalog stays empty
// until Init or Refresh succeeds.
func New(root string, source catalog.Source, opts ...Option) *Scheduler {
	s := &Scheduler{
		root:         root,
		source:       source,
		historyLimit: DefaultHistoryLimit,
		now:          time.Now,
		shuffle:      rand.Shuffle,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Init performs the first scan and fills the queue in random order.
func (s *Scheduler) Init() error {
	if err := s.Refresh(); err != nil {
		return err
	}
	s.Refill()
	return nil
}

// Refresh rescans the library root and replaces the catalog. On failure the
// previous catalog is kept. The queue is never touched.
func (s *Scheduler) Refresh() error {
	tracks, err := s.source.Scan(s.root)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.catalog = tracks
	s.mu.Unlock()
	return nil
}

// Load appends tracks to the queue without clearing what is already queued.
func (s *Scheduler) Load(tracks []model.Track) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = append(s.queue, tracks...)
}

// Shuffle permutes the queue uniformly at random.
func (s *Scheduler) Shuffle() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shuffle(len(s.queue), func(i, j int) {
		s.queue[i], s.queue[j] = s.queue[j], s.queue[i]
	})
}

// Refill queues the whole catalog again in a fresh random order.
func (s *Scheduler) Refill() {
	s.mu.Lock()
	s.queue = append(s.queue, s.catalog...)
	s.shuffle(len(s.queue), func(i, j int) {
		s.queue[i], s.queue[j] = s.queue[j], s.queue[i]
	})
	s.mu.Unlock()
}

// Advance makes the most recently queued track current and records it in the
// history. With an empty queue it clears the current track and returns false.
func (s *Scheduler) Advance() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.songStart = s.now()
	if len(s.queue) == 0 {
		s.current = nil
		return false
	}

	last := len(s.queue) - 1
	next := s.queue[last]
	s.queue[last] = model.Track{}
	s.queue = s.queue[:last]

	s.current = &next
	s.history = append(s.history, next)
	if s.historyLimit > 0 && len(s.history) > s.historyLimit {
		s.history = append([]model.Track(nil), s.history[len(s.history)-s.historyLimit:]...)
	}
	return true
}

// Current returns a copy of the playing track.
func (s *Scheduler) Current() (model.Track, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return model.Track{}, false
	}
	return *s.current, true
}

// Elapsed returns the milliseconds since the current track started, or 0
// when nothing is playing.
func (s *Scheduler) Elapsed() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return 0
	}
	d := s.now().Sub(s.songStart)
	if d < 0 {
		return 0
	}
	return uint64(d.Milliseconds())
}

// NowPlaying returns the current track and its elapsed time in one snapshot.
func (s *Scheduler) NowPlaying() (model.Track, uint64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return model.Track{}, 0, false
	}
	d := s.now().Sub(s.songStart)
	if d < 0 {
		d = 0
	}
	return *s.current, uint64(d.Milliseconds()), true
}

// Queue returns the pending tracks in play order, next first.
func (s *Scheduler) Queue() []model.Track {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Track, len(s.queue))
	for i, t := range s.queue {
		out[len(s.queue)-1-i] = t
	}
	return out
}

// History returns the played tracks, oldest first.
func (s *Scheduler) History() []model.Track {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.Track(nil), s.history...)
}

// Catalog returns the tracks found by the last successful scan.
func (s *Scheduler) Catalog() []model.Track {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.Track(nil), s.catalog...)
}

// Root returns the library directory being scheduled.
func (s *Scheduler) Root() string {
	return s.root
}
