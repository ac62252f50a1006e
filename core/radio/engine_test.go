package radio

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"wadio/core/align"
	"wadio/core/queue"
	"wadio/model"
)

type fakeSource struct {
	mu     sync.Mutex
	tracks []model.Track
	err    error
	scans  int
}

func (f *fakeSource) Scan(string) ([]model.Track, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scans++
	if f.err != nil {
		return nil, f.err
	}
	return append([]model.Track(nil), f.tracks...), nil
}

func (f *fakeSource) set(tracks []model.Track) {
	f.mu.Lock()
	f.tracks = tracks
	f.mu.Unlock()
}

func (f *fakeSource) fail(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

func (f *fakeSource) scanCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.scans
}

type recorder struct {
	mu     sync.Mutex
	chunks [][]byte
}

func (r *recorder) Broadcast(chunk []byte) {
	r.mu.Lock()
	r.chunks = append(r.chunks, chunk)
	r.mu.Unlock()
}

func (r *recorder) joined() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return bytes.Join(r.chunks, nil)
}

// playLog records observer calls and cancels the run once stop says so.
type playLog struct {
	started  []model.Track
	finished []int64
	failed   []*TrackError
	stop     func(l *playLog) bool
	cancel   context.CancelFunc
}

func (l *playLog) TrackStarted(_ context.Context, t model.Track, _ time.Time) {
	l.started = append(l.started, t)
}

func (l *playLog) TrackFinished(_ context.Context, _ model.Track, n int64) {
	l.finished = append(l.finished, n)
	l.check()
}

func (l *playLog) TrackFailed(_ context.Context, _ model.Track, err *TrackError) {
	l.failed = append(l.failed, err)
	l.check()
}

func (l *playLog) check() {
	if l.stop != nil && l.stop(l) {
		l.cancel()
	}
}

func noShuffle(int, func(i, j int)) {}

// writeTrack writes an ID3v2 tag, 20 bytes of padding, body and an ID3v1
// trailer, and returns the track pointing at it.
func writeTrack(t *testing.T, dir, name string, body []byte) model.Track {
	t.Helper()
	var buf bytes.Buffer
	buf.Write([]byte{'I', 'D', '3', 3, 0, 0, 0, 0, 0, 20})
	buf.Write(make([]byte, 20))
	buf.Write(body)
	trailer := make([]byte, 128)
	copy(trailer, "TAG")
	buf.Write(trailer)

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
	return model.Track{Path: path, Title: name, Artist: "test", Bitrate: 64000}
}

func audioBody(n int, seed byte) []byte {
	body := make([]byte, n)
	body[0], body[1] = 0xFF, 0xFB
	for i := 2; i < n; i++ {
		body[i] = byte(i) ^ seed
	}
	return body
}

func runEngine(t *testing.T, e *Engine, log *playLog) error {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	log.cancel = cancel

	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()
	select {
	case err := <-done:
		return err
	case <-time.After(10 * time.Second):
		t.Fatal("engine did not stop")
		return nil
	}
}

func TestEngineReplaysLibraryWithoutRefresh(t *testing.T) {
	dir := t.TempDir()
	bodies := map[string][]byte{}
	var tracks []model.Track
	for i, name := range []string{"a.mp3", "b.mp3"} {
		body := audioBody(2500, byte(i*7))
		tr := writeTrack(t, dir, name, body)
		bodies[tr.Path] = body
		tracks = append(tracks, tr)
	}

	src := &fakeSource{tracks: tracks}
	s := queue.New(dir, src)
	if err := s.Init(); err != nil {
		t.Fatal(err)
	}

	out := &recorder{}
	log := &playLog{stop: func(l *playLog) bool { return len(l.finished) == 4 }}
	e := New(s, out, Config{Interval: time.Millisecond}, log)

	if err := runEngine(t, e, log); !errors.Is(err, context.Canceled) {
		t.Fatalf("Run = %v, want context.Canceled", err)
	}

	if got := src.scanCount(); got != 1 {
		t.Errorf("library scanned %d times, want 1", got)
	}
	if len(log.started) != 4 {
		t.Fatalf("started %d tracks, want 4", len(log.started))
	}
	for round := 0; round < 2; round++ {
		a, b := log.started[2*round], log.started[2*round+1]
		if a.Path == b.Path {
			t.Errorf("round %d played %s twice", round, a.Path)
		}
	}

	var want []byte
	for i, tr := range log.started {
		want = append(want, bodies[tr.Path]...)
		if log.finished[i] != 2500 {
			t.Errorf("track %d sent %d bytes, want 2500", i, log.finished[i])
		}
	}
	if got := out.joined(); !bytes.Equal(got, want) {
		t.Errorf("listeners received %d bytes that do not match the aligned audio (%d bytes)", len(got), len(want))
	}

	limit := ChunkSize(64000, time.Millisecond)
	for i, c := range out.chunks {
		if len(c) == 0 || len(c) > limit {
			t.Errorf("chunk %d has %d bytes, limit %d", i, len(c), limit)
		}
	}
}

func TestEngineSkipsTrackThatCannotBeOpened(t *testing.T) {
	dir := t.TempDir()
	good := writeTrack(t, dir, "good.mp3", audioBody(100, 1))
	missing := model.Track{Path: filepath.Join(dir, "missing.mp3"), Title: "missing"}

	s := queue.New(dir, &fakeSource{tracks: []model.Track{missing, good}}, queue.WithShuffle(noShuffle))
	if err := s.Init(); err != nil {
		t.Fatal(err)
	}

	log := &playLog{stop: func(l *playLog) bool { return len(l.failed) == 1 }}
	runEngine(t, New(s, &recorder{}, Config{Interval: time.Millisecond}, log), log)

	if len(log.finished) != 1 || log.started[0].Path != good.Path {
		t.Fatalf("played %v, want only %s", log.started, good.Path)
	}
	te := log.failed[0]
	if te.Op != OpOpen || te.Track.Path != missing.Path {
		t.Errorf("failure = %+v, want open of %s", te, missing.Path)
	}
	if !errors.Is(te, os.ErrNotExist) {
		t.Errorf("failure %v does not wrap os.ErrNotExist", te)
	}
}

func TestEngineSkipsTrackWithoutFrames(t *testing.T) {
	dir := t.TempDir()
	good := writeTrack(t, dir, "good.mp3", audioBody(100, 1))
	bad := filepath.Join(dir, "bad.mp3")
	if err := os.WriteFile(bad, make([]byte, 4096), 0o644); err != nil {
		t.Fatal(err)
	}

	tracks := []model.Track{{Path: bad, Title: "bad"}, good}
	s := queue.New(dir, &fakeSource{tracks: tracks}, queue.WithShuffle(noShuffle))
	if err := s.Init(); err != nil {
		t.Fatal(err)
	}

	out := &recorder{}
	log := &playLog{stop: func(l *playLog) bool { return len(l.failed) == 1 }}
	runEngine(t, New(s, out, Config{Interval: time.Millisecond}, log), log)

	te := log.failed[0]
	if te.Op != OpAlign {
		t.Errorf("failure op = %q, want %q", te.Op, OpAlign)
	}
	var sre *align.ShortReadError
	if !errors.As(te, &sre) {
		t.Errorf("failure %v is not a *align.ShortReadError", te)
	}
	if got := out.joined(); !bytes.Equal(got, audioBody(100, 1)) {
		t.Errorf("listeners received %d bytes, want only the good track", len(got))
	}
}

func TestEngineRecyclesCatalogWhenRefreshFails(t *testing.T) {
	dir := t.TempDir()
	tr := writeTrack(t, dir, "only.mp3", audioBody(300, 3))
	src := &fakeSource{tracks: []model.Track{tr}}
	s := queue.New(dir, src)
	if err := s.Init(); err != nil {
		t.Fatal(err)
	}
	src.fail(errors.New("library unmounted"))

	log := &playLog{stop: func(l *playLog) bool { return len(l.finished) == 3 }}
	runEngine(t, New(s, &recorder{}, Config{AutoRefresh: true, Interval: time.Millisecond}, log), log)

	if got := src.scanCount(); got != 3 {
		t.Errorf("library scanned %d times, want 3", got)
	}
	for i, st := range log.started {
		if st.Path != tr.Path {
			t.Errorf("play %d = %s, want %s", i, st.Path, tr.Path)
		}
	}
	if got := len(s.History()); got != 3 {
		t.Errorf("history has %d tracks, want 3", got)
	}
}

func TestEngineRefreshPicksUpNewTracks(t *testing.T) {
	dir := t.TempDir()
	old := writeTrack(t, dir, "old.mp3", audioBody(200, 1))
	added := []model.Track{
		writeTrack(t, dir, "new1.mp3", audioBody(200, 2)),
		writeTrack(t, dir, "new2.mp3", audioBody(200, 3)),
	}
	src := &fakeSource{tracks: []model.Track{old}}
	s := queue.New(dir, src)
	if err := s.Init(); err != nil {
		t.Fatal(err)
	}

	log := &playLog{stop: func(l *playLog) bool {
		if len(l.finished) == 1 {
			src.set(added)
		}
		return len(l.finished) == 3
	}}
	runEngine(t, New(s, &recorder{}, Config{AutoRefresh: true, Interval: time.Millisecond}, log), log)

	if len(log.started) != 3 || log.started[0].Path != old.Path {
		t.Fatalf("played %v, want %s first", log.started, old.Path)
	}
	seen := map[string]bool{}
	for _, st := range log.started[1:] {
		if st.Path == old.Path {
			t.Errorf("removed track %s played after the refresh", old.Path)
		}
		seen[st.Path] = true
	}
	if !seen[added[0].Path] || !seen[added[1].Path] {
		t.Errorf("second cycle played %v, want both new tracks", log.started[1:])
	}
	if got := src.scanCount(); got != 2 {
		t.Errorf("library scanned %d times, want 2", got)
	}
}

var errDiskGone = errors.New("input/output error")

// failingFile fails every read that starts in [failFrom, failTo).
type failingFile struct {
	*os.File
	failFrom, failTo int64
}

func (f *failingFile) Read(p []byte) (int, error) {
	pos, err := f.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, err
	}
	if pos >= f.failFrom && pos < f.failTo {
		return 0, errDiskGone
	}
	return f.File.Read(p)
}

func TestEngineReportsReadFailure(t *testing.T) {
	dir := t.TempDir()
	tr := writeTrack(t, dir, "flaky.mp3", audioBody(3000, 4))
	s := queue.New(dir, &fakeSource{tracks: []model.Track{tr}})
	if err := s.Init(); err != nil {
		t.Fatal(err)
	}

	out := &recorder{}
	log := &playLog{stop: func(l *playLog) bool { return len(l.failed) == 1 }}
	e := New(s, out, Config{Interval: time.Millisecond}, log)
	// audio spans [30, 3030): a 10 byte header and 20 byte tag body come first,
	// the ID3v1 trailer after
	e.open = func(name string) (trackFile, error) {
		f, err := os.Open(name)
		if err != nil {
			return nil, err
		}
		return &failingFile{File: f, failFrom: 30 + 1500, failTo: 30 + 3000}, nil
	}
	runEngine(t, e, log)

	if len(log.failed) != 1 {
		t.Fatalf("got %d failures, want 1", len(log.failed))
	}
	te := log.failed[0]
	if te.Op != OpRead || !errors.Is(te, errDiskGone) {
		t.Errorf("failure = %v (op %q), want read failure wrapping %v", te, te.Op, errDiskGone)
	}
	if len(log.finished) != 1 || log.finished[0] == 0 || log.finished[0] >= 3000 {
		t.Errorf("finished = %v, want one partial track", log.finished)
	}
	if got := int64(len(out.joined())); got != log.finished[0] {
		t.Errorf("listeners received %d bytes, engine reported %d", got, log.finished[0])
	}
}

func TestEngineWaitsOnEmptyLibrary(t *testing.T) {
	src := &fakeSource{}
	s := queue.New(t.TempDir(), src)
	out := &recorder{}
	e := New(s, out, Config{AutoRefresh: true, Interval: 5 * time.Millisecond})

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	if err := e.Run(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Run = %v, want context.DeadlineExceeded", err)
	}

	scans := src.scanCount()
	if scans < 2 || scans > 20 {
		t.Errorf("library scanned %d times in 60ms with a 5ms interval", scans)
	}
	if len(out.joined()) != 0 {
		t.Error("engine broadcast audio from an empty library")
	}
}

func TestChunkSize(t *testing.T) {
	cases := []struct {
		bitrate  uint64
		interval time.Duration
		want     int
	}{
		{128000, time.Second, 16000 + ChunkSlack},
		{0, time.Second, 16000 + ChunkSlack},
		{320000, time.Second, 40000 + ChunkSlack},
		{64000, 500 * time.Millisecond, 4000 + ChunkSlack},
	}
	for _, c := range cases {
		if got := ChunkSize(c.bitrate, c.interval); got != c.want {
			t.Errorf("ChunkSize(%d, %s) = %d, want %d", c.bitrate, c.interval, got, c.want)
		}
	}
}
