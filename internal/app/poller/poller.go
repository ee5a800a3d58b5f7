// Package poller drives the playback ingestion loop.
package poller

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"

	"github.com/spotifetch/spotifetch/internal/domain/play"
	"github.com/spotifetch/spotifetch/internal/infra/spotify"
)

// PlaybackSource samples what the user is currently playing.
type PlaybackSource interface {
	CurrentlyPlaying(ctx context.Context) (*play.Snapshot, error)
	CurrentUserID(ctx context.Context) (string, error)
}

// EventStore persists detected plays.
type EventStore interface {
	Append(ctx context.Context, ev play.Event) (play.Event, error)
}

// Detector converts snapshots into an edge-triggered event stream.
type Detector interface {
	ShouldRecord(identity string, snap play.Snapshot) (play.Event, bool)
	EvictExpired() int
}

// Config represents poller configuration.
type Config struct {
	BaseInterval time.Duration // Sleep after a clean iteration
	IdleInterval time.Duration // Sleep while no credential is configured
	MaxBackoff   time.Duration // Backoff ceiling for failing iterations
	GCEvery      int           // Detector eviction cadence, in iterations
}

// Poller is the single long-lived ingestion task: sample the playback
// source, run the change detector, write new plays through the event store,
// sleep, repeat. It runs single-instance; the detector's in-process state
// would be incoherent with parallel pollers for the same identity.
type Poller struct {
	source   PlaybackSource
	store    EventStore
	detector Detector
	cfg      Config

	runID    string
	identity string
}

// New creates a new Poller.
func New(source PlaybackSource, store EventStore, detector Detector, cfg Config) *Poller {
	if cfg.BaseInterval <= 0 {
		cfg.BaseInterval = 10 * time.Second
	}
	if cfg.IdleInterval <= 0 {
		cfg.IdleInterval = 30 * time.Second
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 5 * time.Minute
	}
	if cfg.GCEvery <= 0 {
		cfg.GCEvery = 360
	}
	return &Poller{
		source:   source,
		store:    store,
		detector: detector,
		cfg:      cfg,
		runID:    uuid.New().String(),
	}
}

// Run executes the ingestion loop until the context is cancelled.
// Individual iterations never terminate the loop: failures are classified,
// logged and absorbed into the backoff schedule.
func (p *Poller) Run(ctx context.Context) {
	zlog.Info().Msgf("poller started: run_id=%s base_interval=%v", p.runID, p.cfg.BaseInterval)
	defer zlog.Info().Msgf("poller stopped: run_id=%s", p.runID)

	b := newBackoff(p.cfg.BaseInterval, p.cfg.MaxBackoff)

	for iteration := 1; ; iteration++ {
		interval := p.iterate(ctx, b)

		// Housekeeping rides the poll loop; no separate goroutine.
		if iteration%p.cfg.GCEvery == 0 {
			if evicted := p.detector.EvictExpired(); evicted > 0 {
				zlog.Debug().Msgf("poller: evicted stale detector entries: run_id=%s count=%d", p.runID, evicted)
			}
		}

		if !sleepCtx(ctx, interval) {
			return
		}
	}
}

// iterate runs one poll cycle and returns the sleep before the next one.
func (p *Poller) iterate(ctx context.Context, b *backoff) time.Duration {
	snap, err := p.source.CurrentlyPlaying(ctx)
	if err != nil {
		switch {
		case errors.Is(err, spotify.ErrNotAuthenticated):
			// Not an error: the user simply has not authenticated yet.
			zlog.Debug().Msgf("poller: waiting for authentication: run_id=%s", p.runID)
			return p.cfg.IdleInterval
		case spotify.IsAuthError(err):
			// Distinct from flaky upstream: the operator must know the
			// user has to re-authenticate.
			delay := b.next()
			zlog.Warn().Msgf("poller: credential refresh rejected, re-auth required: run_id=%s backoff=%v error=%v",
				p.runID, delay, err)
			return delay
		default:
			delay := b.next()
			zlog.Warn().Msgf("poller: playback sample failed: run_id=%s failures=%d backoff=%v error=%v",
				p.runID, b.failures, delay, err)
			return delay
		}
	}

	if snap == nil {
		// Treat a nil snapshot like a stopped player.
		snap = &play.Snapshot{}
	}

	identity, err := p.resolveIdentity(ctx)
	if err != nil {
		delay := b.next()
		zlog.Warn().Msgf("poller: failed to resolve identity: run_id=%s backoff=%v error=%v", p.runID, delay, err)
		return delay
	}

	b.reset()

	if ev, ok := p.detector.ShouldRecord(identity, *snap); ok {
		if stored, err := p.store.Append(ctx, ev); err != nil {
			// Accepted data-loss mode: this transition is dropped, the
			// next distinct one is captured normally.
			zlog.Error().Msgf("poller: failed to record play, event dropped: run_id=%s track=%s error=%v",
				p.runID, ev.TrackName, err)
		} else {
			zlog.Info().Msgf("poller: recorded play: run_id=%s identity=%s track=%s artist=%s played_at=%s",
				p.runID, stored.Identity, stored.TrackName, stored.ArtistName, stored.PlayedAt.Format(time.RFC3339))
		}
	}

	return p.cfg.BaseInterval
}

// resolveIdentity looks up the polled user once and caches it for the
// lifetime of the poller. The credential is bound to a single user, so the
// identity cannot change without a process restart.
func (p *Poller) resolveIdentity(ctx context.Context) (string, error) {
	if p.identity != "" {
		return p.identity, nil
	}
	id, err := p.source.CurrentUserID(ctx)
	if err != nil {
		return "", err
	}
	p.identity = id
	return id, nil
}

// sleepCtx sleeps for d, returning false when the context is cancelled
// first. Cancellation aborts the sleep so shutdown is prompt.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
