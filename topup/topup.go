// Package topup keeps the prefetch queue filled from the background.
//
// The loop computes a fill target with hysteresis: normally the configured
// minimum, raised to the fill-to level once the queue drops to the
// low-water mark. That way a queue hovering at the threshold gets one
// larger refill instead of a dribble of single-document cycles. Jobs run
// on a bounded worker pool; results that arrive after the target is
// already met are discarded so slow stragglers cannot overfill the queue.
package topup

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lesprgm/Roulette-sub000/document"
	"github.com/lesprgm/Roulette-sub000/metrics"
	"github.com/lesprgm/Roulette-sub000/queue"
)

// GenerateFunc produces one reviewed, dedup-admitted document ready for
// the queue. An error means this slot simply is not filled this cycle.
type GenerateFunc func(ctx context.Context) (*document.Document, error)

// Config configures the Loop.
type Config struct {
	// MinFill is the normal fill target. Default: 3.
	MinFill int
	// FillTo is the raised target used once the queue hits the low-water
	// mark. Default: 6.
	FillTo int
	// LowWater is the queue size at or below which the target is raised.
	// Default: 1.
	LowWater int
	// Concurrency bounds the worker pool. Default: 2.
	Concurrency int
	// Interval between idle re-evaluations. Default: 15s.
	Interval time.Duration

	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

func (c *Config) defaults() {
	if c.MinFill <= 0 {
		c.MinFill = 3
	}
	if c.FillTo <= 0 {
		c.FillTo = 6
	}
	if c.FillTo < c.MinFill {
		c.FillTo = c.MinFill
	}
	if c.LowWater <= 0 {
		c.LowWater = 1
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 2
	}
	if c.Interval <= 0 {
		c.Interval = 15 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Loop is the background top-up control loop.
type Loop struct {
	queue    queue.Queue
	generate GenerateFunc
	config   Config

	trigger  chan struct{}
	inflight atomic.Int64
	active   atomic.Bool

	// enqueueMu serializes the target re-check with the enqueue so two
	// workers cannot both squeeze past the target.
	enqueueMu sync.Mutex

	lastCycle atomic.Value // string: outcome of the last active cycle
}

// New creates a Loop. Run must be called for it to do anything.
func New(q queue.Queue, generate GenerateFunc, cfg Config) *Loop {
	cfg.defaults()
	l := &Loop{
		queue:    q,
		generate: generate,
		config:   cfg,
		trigger:  make(chan struct{}, 1),
	}
	l.lastCycle.Store("never")
	return l
}

// Trigger requests an immediate cycle. Idempotent: a no-op when a trigger
// is already pending or a cycle is running.
func (l *Loop) Trigger() {
	select {
	case l.trigger <- struct{}{}:
	default:
	}
}

// LastCycle reports the outcome of the most recent active cycle, for
// status introspection.
func (l *Loop) LastCycle() string {
	s, _ := l.lastCycle.Load().(string)
	return s
}

// Run blocks until ctx is cancelled, re-evaluating the queue level on a
// fixed interval and on Trigger. Cycle failures are logged and the slot
// left unfilled; they never crash the loop.
func (l *Loop) Run(ctx context.Context) {
	l.config.Logger.Info("topup: loop started",
		"min_fill", l.config.MinFill,
		"fill_to", l.config.FillTo,
		"low_water", l.config.LowWater,
		"concurrency", l.config.Concurrency,
		"interval", l.config.Interval)

	ticker := time.NewTicker(l.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.config.Logger.Info("topup: loop stopped")
			return
		case <-ticker.C:
			l.cycle(ctx)
		case <-l.trigger:
			l.cycle(ctx)
		}
	}
}

// cycle runs one top-up pass. Only one cycle runs at a time; overlapping
// triggers are dropped.
func (l *Loop) cycle(ctx context.Context) {
	if !l.active.CompareAndSwap(false, true) {
		return
	}
	defer l.active.Store(false)

	size, err := l.queue.Size(ctx)
	if err != nil {
		l.config.Logger.Warn("topup: size check failed", "error", err)
		l.lastCycle.Store("size check failed")
		return
	}
	l.config.Metrics.SetQueueSize(size)

	target := l.config.MinFill
	if size <= l.config.LowWater {
		target = l.config.FillTo
	}
	if size >= target {
		return
	}

	start := time.Now()
	l.config.Logger.Info("topup: cycle starting", "size", size, "target", target)

	sem := make(chan struct{}, l.config.Concurrency)
	var wg sync.WaitGroup

	// A failing generator never grows the queue, so the dispatch loop gets
	// a bounded attempt budget to guarantee the cycle terminates.
	attempts := 0
	budget := 2 * target

dispatch:
	for {
		if ctx.Err() != nil {
			break
		}
		if attempts >= budget {
			l.config.Logger.Warn("topup: attempt budget exhausted", "attempts", attempts, "target", target)
			break
		}
		size, err := l.queue.Size(ctx)
		if err != nil {
			l.config.Logger.Warn("topup: size check failed", "error", err)
			break
		}
		if size+int(l.inflight.Load()) >= target {
			break
		}

		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			break dispatch
		}

		attempts++
		l.inflight.Add(1)
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			defer l.inflight.Add(-1)
			l.work(ctx, target)
		}()
	}

	wg.Wait()

	final, err := l.queue.Size(ctx)
	if err == nil {
		l.config.Metrics.SetQueueSize(final)
	}
	l.config.Metrics.ObserveTopUpCycle(time.Since(start).Seconds())
	l.lastCycle.Store(time.Now().UTC().Format(time.RFC3339))
	l.config.Logger.Info("topup: cycle done", "size", final, "target", target,
		"elapsed", time.Since(start).Round(time.Millisecond))
}

// work generates one document and enqueues it immediately — unless the
// target was reached while the job was in flight, in which case the result
// is discarded.
func (l *Loop) work(ctx context.Context, target int) {
	doc, err := l.generate(ctx)
	if err != nil {
		l.config.Logger.Warn("topup: job failed, slot unfilled", "error", err)
		return
	}

	l.enqueueMu.Lock()
	defer l.enqueueMu.Unlock()

	size, err := l.queue.Size(ctx)
	if err != nil {
		l.config.Logger.Warn("topup: size check failed, discarding result", "error", err)
		return
	}
	if size >= target {
		l.config.Metrics.IncTopUpDiscard()
		l.config.Logger.Info("topup: target already reached, discarding late result", "size", size, "target", target)
		return
	}

	if _, err := l.queue.Enqueue(ctx, doc); err != nil {
		l.config.Logger.Warn("topup: enqueue failed", "error", err)
		return
	}
	l.config.Metrics.SetQueueSize(size + 1)
}
