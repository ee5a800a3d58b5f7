// Package detector converts sampled playback state into edge-triggered
// play events.
package detector

import (
	"sync"
	"time"

	zlog "github.com/rs/zerolog/log"

	"github.com/spotifetch/spotifetch/internal/domain/play"
)

// entry remembers the last recorded play for one identity.
type entry struct {
	lastTrackID string
	lastSeen    time.Time
}

// Detector decides whether a playback snapshot constitutes a new play.
// Polling samples the same playing track many times between two actual
// track changes; the detector keeps O(1) state per identity and only
// reports the transitions.
type Detector struct {
	mu      sync.Mutex
	entries map[string]entry
	ttl     time.Duration
	now     func() time.Time
}

// Config represents detector configuration.
type Config struct {
	TTL time.Duration    // Eviction age for idle entries
	Now func() time.Time // Clock, defaults to time.Now
}

// New creates a new Detector.
func New(cfg Config) *Detector {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Detector{
		entries: make(map[string]entry),
		ttl:     ttl,
		now:     now,
	}
}

// ShouldRecord reports whether the snapshot is a new play for the identity
// and, if so, returns the event to persist.
//
// A stopped snapshot evicts the identity's state, so a later resumption of
// the same track counts as a new play. A snapshot carrying the same track
// as the last recorded one is an ongoing play and is not recorded.
func (d *Detector) ShouldRecord(identity string, snap play.Snapshot) (play.Event, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !snap.HasTrack() {
		if _, ok := d.entries[identity]; ok {
			delete(d.entries, identity)
			zlog.Debug().Msgf("detector: playback stopped, state evicted: identity=%s", identity)
		}
		return play.Event{}, false
	}

	if e, ok := d.entries[identity]; ok && e.lastTrackID == snap.TrackID {
		return play.Event{}, false
	}

	d.entries[identity] = entry{
		lastTrackID: snap.TrackID,
		lastSeen:    d.now(),
	}
	return snap.Event(identity), true
}

// EvictExpired removes entries whose identity has not produced a transition
// within the TTL. It returns the number of evicted entries. This bounds
// memory when an identity stops being polled (e.g. a revoked token) without
// requiring an explicit unsubscribe.
func (d *Detector) EvictExpired() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	cutoff := d.now().Add(-d.ttl)
	evicted := 0
	for identity, e := range d.entries {
		if e.lastSeen.Before(cutoff) {
			delete(d.entries, identity)
			evicted++
		}
	}
	return evicted
}

// Size returns the number of tracked identities.
func (d *Detector) Size() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.entries)
}
