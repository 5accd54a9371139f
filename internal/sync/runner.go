package sync

import (
	"context"
	"log/slog"
	gosync "sync"
	"sync/atomic"
	"time"

	"github.com/marcus/rxsync/internal/db"
	"github.com/marcus/rxsync/internal/remote"
	"github.com/marcus/rxsync/internal/watch"
)

const (
	DefaultDrainInterval = 5 * time.Second
	DefaultProbeInterval = 10 * time.Second

	probeTimeout   = 5 * time.Second
	feedBackoffMin = time.Second
	feedBackoffMax = time.Minute
)

// Probe tracks reachability of the remote store by pinging it.
type Probe struct {
	pinger     remote.Pinger
	interval   time.Duration
	online     atomic.Bool
	reconnects chan struct{}
}

// NewProbe creates a probe that starts out offline.
func NewProbe(p remote.Pinger, interval time.Duration) *Probe {
	if interval <= 0 {
		interval = DefaultProbeInterval
	}
	return &Probe{pinger: p, interval: interval, reconnects: make(chan struct{}, 1)}
}

// Online reports the result of the latest check.
func (p *Probe) Online() bool { return p.online.Load() }

// MarkOffline records a network failure seen outside the probe.
func (p *Probe) MarkOffline() {
	if p.online.Swap(false) {
		slog.Info("connectivity: offline")
	}
}

// Reconnected signals each offline to online transition.
func (p *Probe) Reconnected() <-chan struct{} { return p.reconnects }

// Check pings once and updates the state.
func (p *Probe) Check(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	if err := p.pinger.Ping(ctx); err != nil {
		slog.Debug("connectivity: ping failed", "err", err)
		p.MarkOffline()
		return false
	}
	if !p.online.Swap(true) {
		slog.Info("connectivity: online")
		select {
		case p.reconnects <- struct{}{}:
		default:
		}
	}
	return true
}

// Run checks on every interval until ctx ends.
func (p *Probe) Run(ctx context.Context) {
	t := time.NewTicker(p.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			p.Check(ctx)
		}
	}
}

// RunnerConfig selects which drain triggers a Runner uses.
type RunnerConfig struct {
	Interval time.Duration
	// Subscriber and Tables enable the inbound change feed.
	Subscriber remote.Subscriber
	Tables     []string
	// Watch drains when another process writes to the store file.
	Watch bool
}

// Runner hosts a Drainer: it drains on a timer, on reconnect, on request and
// on outside writes to the store, and applies the remote change feed.
type Runner struct {
	store   *db.DB
	drainer *Drainer
	probe   *Probe
	cfg     RunnerConfig
	trigger chan struct{}

	mu   gosync.Mutex
	last DrainResult
}

// NewRunner creates a runner. probe may be nil, in which case the remote is
// treated as always reachable.
func NewRunner(store *db.DB, drainer *Drainer, probe *Probe, cfg RunnerConfig) *Runner {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultDrainInterval
	}
	return &Runner{store: store, drainer: drainer, probe: probe, cfg: cfg, trigger: make(chan struct{}, 1)}
}

// Trigger requests a drain as soon as the runner is free. Requests made while
// one is already waiting are merged.
func (r *Runner) Trigger() {
	select {
	case r.trigger <- struct{}{}:
	default:
	}
}

// LastResult returns the result of the most recent drain.
func (r *Runner) LastResult() DrainResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

// Run blocks until ctx ends.
func (r *Runner) Run(ctx context.Context) error {
	var reconnects <-chan struct{}
	if r.probe != nil {
		r.probe.Check(ctx)
		reconnects = r.probe.Reconnected()
		go r.probe.Run(ctx)
	}

	var changes <-chan struct{}
	if r.cfg.Watch {
		sw, err := watch.New(r.store.Path())
		if err != nil {
			return err
		}
		if err := sw.Start(); err != nil {
			return err
		}
		defer sw.Stop()
		changes = sw.Changes()
	}

	if r.cfg.Subscriber != nil && len(r.cfg.Tables) > 0 {
		go r.follow(ctx)
	}

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	r.drain(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.drain(ctx)
		case <-r.trigger:
			r.drain(ctx)
		case <-reconnects:
			r.drain(ctx)
		case <-changes:
			if r.grew(ctx) {
				r.drain(ctx)
			}
		}
	}
}

func (r *Runner) drain(ctx context.Context) {
	res := r.drainer.Drain(ctx)
	if res.Skipped {
		return
	}
	r.mu.Lock()
	r.last = res
	r.mu.Unlock()
}

// grew reports whether the outbox holds more entries than the last drain
// left behind. Writes made by the drain itself never grow the outbox.
func (r *Runner) grew(ctx context.Context) bool {
	var n int
	err := r.store.View(ctx, func(tx *db.Tx) error {
		var err error
		n, err = tx.CountPending()
		return err
	})
	if err != nil {
		slog.Warn("runner: count outbox", "err", err)
		return false
	}
	return n > r.LastResult().Remaining
}

// follow keeps the remote change feed open, reconnecting with backoff.
func (r *Runner) follow(ctx context.Context) {
	backoff := feedBackoffMin
	for {
		started := time.Now()
		err := r.cfg.Subscriber.Subscribe(ctx, r.cfg.Tables, func(ch remote.Change) {
			if err := ApplyRemote(ctx, r.store, ch); err != nil {
				slog.Warn("runner: apply remote change", "err", err)
			}
		})
		if ctx.Err() != nil {
			return
		}
		if remote.IsRejected(err) {
			slog.Error("runner: change feed refused", "err", err)
			return
		}
		if time.Since(started) > feedBackoffMax {
			backoff = feedBackoffMin
		}
		slog.Warn("runner: change feed dropped", "err", err, "retry_in", backoff)
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, feedBackoffMax)
	}
}
