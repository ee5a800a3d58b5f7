package poller

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spotifetch/spotifetch/internal/app/detector"
	"github.com/spotifetch/spotifetch/internal/domain/play"
	"github.com/spotifetch/spotifetch/internal/infra/spotify"
)

// fakeSource replays a scripted sequence of snapshots/errors.
type fakeSource struct {
	mu      sync.Mutex
	script  []sourceStep
	pos     int
	userErr error
}

type sourceStep struct {
	snap *play.Snapshot
	err  error
}

func (f *fakeSource) CurrentlyPlaying(ctx context.Context) (*play.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.pos >= len(f.script) {
		// Past the script: report stopped playback.
		return &play.Snapshot{ObservedAt: time.Now()}, nil
	}
	step := f.script[f.pos]
	f.pos++
	return step.snap, step.err
}

func (f *fakeSource) CurrentUserID(ctx context.Context) (string, error) {
	if f.userErr != nil {
		return "", f.userErr
	}
	return "u1", nil
}

// fakeStore records appended events.
type fakeStore struct {
	mu     sync.Mutex
	events []play.Event
	err    error
}

func (f *fakeStore) Append(ctx context.Context, ev play.Event) (play.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return play.Event{}, f.err
	}
	f.events = append(f.events, ev)
	return ev, nil
}

func (f *fakeStore) Events() []play.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]play.Event, len(f.events))
	copy(out, f.events)
	return out
}

func snapPlaying(trackID string) *play.Snapshot {
	return &play.Snapshot{
		Playing:    true,
		TrackID:    trackID,
		TrackName:  "Track " + trackID,
		Artists:    []string{"Artist"},
		AlbumName:  "Album",
		ObservedAt: time.Now(),
	}
}

func snapStopped() *play.Snapshot {
	return &play.Snapshot{ObservedAt: time.Now()}
}

func steps(snaps ...*play.Snapshot) []sourceStep {
	out := make([]sourceStep, len(snaps))
	for i, s := range snaps {
		out[i] = sourceStep{snap: s}
	}
	return out
}

func newTestPoller(source *fakeSource, store *fakeStore) *Poller {
	d := detector.New(detector.Config{TTL: time.Hour})
	return New(source, store, d, Config{
		BaseInterval: time.Millisecond,
		IdleInterval: time.Millisecond,
		MaxBackoff:   4 * time.Millisecond,
		GCEvery:      360,
	})
}

// runUntil runs the poller until cond holds or the deadline passes.
func runUntil(t *testing.T, p *Poller, cond func() bool) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		p.Run(ctx)
	}()

	deadline := time.After(2 * time.Second)
	for !cond() {
		select {
		case <-deadline:
			cancel()
			<-done
			t.Fatal("condition not reached before deadline")
		case <-time.After(time.Millisecond):
		}
	}
	cancel()
	<-done
}

func TestPoller_RecordsTransitions(t *testing.T) {
	// [A, A, A, B, B, A] with no stop records exactly three plays.
	source := &fakeSource{script: steps(
		snapPlaying("A"), snapPlaying("A"), snapPlaying("A"),
		snapPlaying("B"), snapPlaying("B"),
		snapPlaying("A"),
	)}
	store := &fakeStore{}
	p := newTestPoller(source, store)

	runUntil(t, p, func() bool {
		source.mu.Lock()
		defer source.mu.Unlock()
		return len(store.Events()) >= 3 && source.pos >= 6
	})

	events := store.Events()
	require.Len(t, events, 3)
	assert.Equal(t, "A", events[0].TrackID)
	assert.Equal(t, "B", events[1].TrackID)
	assert.Equal(t, "A", events[2].TrackID)
	for _, ev := range events {
		assert.Equal(t, "u1", ev.Identity)
	}
}

func TestPoller_StopResetsDedup(t *testing.T) {
	// [A, stopped, A] records two separate plays of A.
	source := &fakeSource{script: steps(snapPlaying("A"), snapStopped(), snapPlaying("A"))}
	store := &fakeStore{}
	p := newTestPoller(source, store)

	runUntil(t, p, func() bool { return len(store.Events()) >= 2 })

	events := store.Events()
	require.Len(t, events, 2)
	assert.Equal(t, "A", events[0].TrackID)
	assert.Equal(t, "A", events[1].TrackID)
}

func TestPoller_NilSnapshotResetsDedup(t *testing.T) {
	// A source returning a nil snapshot is treated like a stopped player:
	// the loop survives and the dedup state is evicted.
	source := &fakeSource{script: []sourceStep{
		{snap: snapPlaying("A")},
		{snap: nil},
		{snap: snapPlaying("A")},
	}}
	store := &fakeStore{}
	p := newTestPoller(source, store)

	runUntil(t, p, func() bool { return len(store.Events()) >= 2 })

	events := store.Events()
	require.Len(t, events, 2)
	assert.Equal(t, "A", events[0].TrackID)
	assert.Equal(t, "A", events[1].TrackID)
}

func TestPoller_SurvivesTransientErrors(t *testing.T) {
	source := &fakeSource{script: []sourceStep{
		{err: errors.New("dial tcp: connection refused")},
		{err: errors.New("spotify: HTTP 503")},
		{snap: snapPlaying("A")},
	}}
	store := &fakeStore{}
	p := newTestPoller(source, store)

	runUntil(t, p, func() bool { return len(store.Events()) >= 1 })

	assert.Equal(t, "A", store.Events()[0].TrackID)
}

func TestPoller_SurvivesStoreFailure(t *testing.T) {
	source := &fakeSource{script: steps(snapPlaying("A"), snapPlaying("B"))}
	store := &fakeStore{err: errors.New("database is locked")}
	p := newTestPoller(source, store)

	// The loop keeps polling through write failures; the events are
	// dropped but the process survives.
	runUntil(t, p, func() bool {
		source.mu.Lock()
		defer source.mu.Unlock()
		return source.pos >= 2
	})

	assert.Empty(t, store.Events())
}

func TestPoller_IdlesWhenNotAuthenticated(t *testing.T) {
	source := &fakeSource{script: []sourceStep{
		{err: spotify.ErrNotAuthenticated},
		{err: spotify.ErrNotAuthenticated},
		{snap: snapPlaying("A")},
	}}
	store := &fakeStore{}
	p := newTestPoller(source, store)

	runUntil(t, p, func() bool { return len(store.Events()) >= 1 })

	assert.Equal(t, "A", store.Events()[0].TrackID)
}

func TestPoller_CancellationStopsRun(t *testing.T) {
	source := &fakeSource{}
	p := newTestPoller(source, &fakeStore{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		p.Run(ctx)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("poller did not stop after cancellation")
	}
}

func TestBackoff_DoublesUpToCap(t *testing.T) {
	b := newBackoff(10*time.Second, 300*time.Second)

	assert.Equal(t, 10*time.Second, b.next())
	assert.Equal(t, 20*time.Second, b.next())
	assert.Equal(t, 40*time.Second, b.next())
	assert.Equal(t, 80*time.Second, b.next())
	assert.Equal(t, 160*time.Second, b.next())
	assert.Equal(t, 300*time.Second, b.next())
	assert.Equal(t, 300*time.Second, b.next())
}

func TestBackoff_ResetAfterSuccess(t *testing.T) {
	b := newBackoff(10*time.Second, 300*time.Second)

	b.next()
	b.next()
	b.reset()

	assert.Equal(t, 10*time.Second, b.next())
}
