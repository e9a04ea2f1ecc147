// Package roulette is the generation-and-prefetch orchestration core: it
// keeps ready-to-serve generated documents flowing to callers while hiding
// the latency, flakiness, and quota limits of the upstream generators.
//
// A request either dequeues a prefetched document (fast path) or, on an
// empty queue, runs the provider orchestrator directly (slow path). The
// background top-up loop runs the same orchestrate → review → dedupe →
// enqueue pipeline continuously.
package roulette

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lesprgm/Roulette-sub000/dedupe"
	"github.com/lesprgm/Roulette-sub000/document"
	"github.com/lesprgm/Roulette-sub000/gen"
	"github.com/lesprgm/Roulette-sub000/metrics"
	"github.com/lesprgm/Roulette-sub000/queue"
	"github.com/lesprgm/Roulette-sub000/review"
	"github.com/lesprgm/Roulette-sub000/topup"
)

// ServiceConfig wires the core together. Shared state — the queue and the
// dedupe registry — is injected once here and shared between the request
// path and the background loop.
type ServiceConfig struct {
	Orchestrator *gen.Orchestrator
	Queue        queue.Queue
	Registry     dedupe.Registry
	// Reviewer is optional; nil disables compliance review on the
	// background pipeline.
	Reviewer *review.Reviewer
	// Rotation is used for status introspection only; the orchestrator
	// owns advancement.
	Rotation gen.Rotation

	// TopUp configures the background loop; TopUpEnabled gates whether
	// Run starts it at all.
	TopUp        topup.Config
	TopUpEnabled bool

	// FirstDocTimeout bounds how long a slow-path caller waits for the
	// first document of a burst. Default: 2m.
	FirstDocTimeout time.Duration

	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

func (c *ServiceConfig) defaults() {
	if c.FirstDocTimeout <= 0 {
		c.FirstDocTimeout = 2 * time.Minute
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Service exposes the contract consumed by the HTTP layer.
type Service struct {
	config ServiceConfig
	loop   *topup.Loop
}

// NewService creates the service and its background loop.
func NewService(cfg ServiceConfig) *Service {
	cfg.defaults()
	s := &Service{config: cfg}
	s.loop = topup.New(cfg.Queue, s.generateForQueue, cfg.TopUp)
	return s
}

// Run blocks running the background top-up loop until ctx is cancelled.
// A no-op when top-up is disabled by configuration.
func (s *Service) Run(ctx context.Context) error {
	if !s.config.TopUpEnabled {
		s.config.Logger.Info("service: top-up disabled")
		<-ctx.Done()
		return nil
	}
	s.loop.Run(ctx)
	return nil
}

// TryDequeue returns the oldest prefetched document, or nil when the queue
// is empty. Emptiness is not an error — it is the trigger for the slow
// path.
func (s *Service) TryDequeue(ctx context.Context) (*document.Document, error) {
	entry, err := s.config.Queue.Dequeue(ctx)
	if err != nil {
		return nil, err
	}
	if n, err := s.config.Queue.Size(ctx); err == nil {
		s.config.Metrics.SetQueueSize(n)
	}
	if entry == nil {
		return nil, nil
	}
	return entry.Doc, nil
}

// GenerateOne runs the synchronous slow path: a burst is started, the
// first document is returned to the caller as fast as possible, and the
// rest of the burst drains into the prefetch queue in the background.
// Exhaustion of every provider/model surfaces as the error variant, never
// as an error value.
func (s *Service) GenerateOne(ctx context.Context, seed int64, brief string) *document.Document {
	// The burst keeps running even if this caller disconnects: the
	// generation cost is already being paid, so late documents still go
	// to the queue for future callers.
	burstCtx := context.WithoutCancel(ctx)
	ch := s.config.Orchestrator.GenerateBurst(burstCtx, seed, brief)

	timer := time.NewTimer(s.config.FirstDocTimeout)
	defer timer.Stop()

	select {
	case doc, ok := <-ch:
		go s.drainToQueue(burstCtx, ch)
		if !ok || doc == nil {
			return document.NewError("generation temporarily unavailable", 503)
		}
		return doc
	case <-timer.C:
		go s.drainToQueue(burstCtx, ch)
		s.config.Logger.Warn("service: slow path timed out waiting for first document")
		return document.NewError("generation timed out", 504)
	}
}

// GenerateStream exposes the burst as a lazy sequence: the first element
// arrives fast, the rest trickle in reviewed and deduplicated. If the
// caller goes away mid-burst, the remaining documents are enqueued for
// future callers instead of being discarded.
func (s *Service) GenerateStream(ctx context.Context, seed int64, brief string) <-chan *document.Document {
	burstCtx := context.WithoutCancel(ctx)
	inner := s.config.Orchestrator.GenerateBurst(burstCtx, seed, brief)

	// Unbuffered on purpose: a document parked in a buffer when the caller
	// disconnects would be lost. Blocking the forwarder keeps every
	// undelivered document on the enqueue path.
	out := make(chan *document.Document)

	go func() {
		defer close(out)
		for doc := range inner {
			select {
			case out <- doc:
			case <-ctx.Done():
				s.enqueueSurvivor(burstCtx, doc)
				s.drainToQueue(burstCtx, inner)
				return
			}
		}
	}()

	return out
}

// QueueSize reports the current prefetch depth for status endpoints.
func (s *Service) QueueSize(ctx context.Context) (int, error) {
	return s.config.Queue.Size(ctx)
}

// TriggerTopUp requests an immediate background refill. Idempotent: a
// no-op while a cycle is already running or when top-up is disabled.
func (s *Service) TriggerTopUp() {
	if !s.config.TopUpEnabled {
		return
	}
	s.loop.Trigger()
}

// Status is the introspection snapshot exposed by the status endpoint.
type Status struct {
	QueueSize     int    `json:"queueSize"`
	RotationIndex int    `json:"rotationIndex"`
	TopUpEnabled  bool   `json:"topUpEnabled"`
	LastTopUp     string `json:"lastTopUp"`
}

// Status reports queue depth, rotation position, and top-up state.
func (s *Service) Status(ctx context.Context) Status {
	st := Status{TopUpEnabled: s.config.TopUpEnabled, LastTopUp: s.loop.LastCycle()}
	if n, err := s.config.Queue.Size(ctx); err == nil {
		st.QueueSize = n
	}
	if s.config.Rotation != nil {
		if i, err := s.config.Rotation.Index(ctx); err == nil {
			st.RotationIndex = i
		}
	}
	return st
}

// generateForQueue is the background pipeline: orchestrate one document,
// review it under the configured policy, admit it through dedupe, and hand
// it back for enqueue. Any failure leaves the slot unfilled this cycle.
func (s *Service) generateForQueue(ctx context.Context) (*document.Document, error) {
	doc := s.config.Orchestrator.GenerateOne(ctx, 0, "")
	if doc.IsError() {
		return nil, fmt.Errorf("service: generation exhausted: %s", doc.Error)
	}

	if s.config.Reviewer != nil {
		reviewed := s.config.Reviewer.ReviewOne(ctx, doc, "")
		if reviewed == nil {
			return nil, fmt.Errorf("service: document rejected by review")
		}
		doc = reviewed
	}

	if s.config.Registry != nil {
		fresh, err := s.config.Registry.Admit(ctx, dedupe.Fingerprint(doc))
		if err != nil {
			s.config.Logger.Warn("service: dedupe registry error, admitting", "error", err)
		} else if !fresh {
			s.config.Metrics.IncDedupeRejected()
			return nil, fmt.Errorf("service: structural duplicate dropped")
		}
	}

	return doc, nil
}

// drainToQueue consumes the remainder of a burst and enqueues every
// surviving document. Burst documents are already reviewed and admitted by
// the orchestrator, so they go straight in.
func (s *Service) drainToQueue(ctx context.Context, ch <-chan *document.Document) {
	for doc := range ch {
		s.enqueueSurvivor(ctx, doc)
	}
}

func (s *Service) enqueueSurvivor(ctx context.Context, doc *document.Document) {
	if doc == nil || doc.IsError() {
		return
	}
	if _, err := s.config.Queue.Enqueue(ctx, doc); err != nil {
		s.config.Logger.Warn("service: enqueue of burst document failed", "error", err)
		return
	}
	if n, err := s.config.Queue.Size(ctx); err == nil {
		s.config.Metrics.SetQueueSize(n)
	}
}
