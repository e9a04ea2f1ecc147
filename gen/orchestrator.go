// Package gen orchestrates document generation across upstream providers.
//
// Providers are tried in a fixed priority order; each carries its own
// ordered model fallback chain. Every failure below this boundary —
// timeout, non-2xx, malformed output — is recovered by advancing the
// chain. Only total exhaustion crosses the boundary, and it crosses as an
// error-variant document, never as an error value or panic.
package gen

import (
	"context"
	"io"
	"log/slog"
	"math/rand"
	"time"

	"github.com/lesprgm/Roulette-sub000/burst"
	"github.com/lesprgm/Roulette-sub000/dedupe"
	"github.com/lesprgm/Roulette-sub000/document"
	"github.com/lesprgm/Roulette-sub000/metrics"
	"github.com/lesprgm/Roulette-sub000/provider"
	"github.com/lesprgm/Roulette-sub000/review"
)

// Config configures an Orchestrator.
type Config struct {
	// Providers in priority order. The first burst-capable one handles
	// burst generation.
	Providers []provider.Provider
	// Rotation draws one category per orchestration call.
	Rotation Rotation
	// Registry rejects structural duplicates on the burst path.
	Registry dedupe.Registry
	// Reviewer, when set, reviews burst documents after the first.
	Reviewer *review.Reviewer
	// BurstSize is the number of documents requested per burst. Default: 4.
	BurstSize int
	// CallTimeout bounds each upstream call. Default: 90s.
	CallTimeout time.Duration
	// MaxTokens forwarded to providers. 0 leaves the provider default.
	MaxTokens int

	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

func (c *Config) defaults() {
	if c.BurstSize <= 0 {
		c.BurstSize = 4
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = 90 * time.Second
	}
	if c.Rotation == nil {
		c.Rotation = NewMemoryRotation(document.Categories)
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Orchestrator generates documents by walking the provider/model fallback
// chains. Shared state (rotation, registry) is injected at construction;
// there are no package-level globals.
type Orchestrator struct {
	config Config
}

// New creates an Orchestrator.
func New(cfg Config) *Orchestrator {
	cfg.defaults()
	return &Orchestrator{config: cfg}
}

// GenerateOne produces a single document, or the error variant when every
// provider/model combination failed.
func (o *Orchestrator) GenerateOne(ctx context.Context, seed int64, brief string) *document.Document {
	category := o.nextCategory(ctx)
	if seed == 0 {
		seed = rand.Int63()
	}

	doc := o.generateSingle(ctx, category, seed, brief)
	o.config.Metrics.IncProduced(string(doc.Kind))
	return doc
}

// GenerateBurst produces a lazy sequence of documents on a bounded channel.
// The first document is emitted as soon as it closes in the stream and
// bypasses compliance review; subsequent documents are reviewed in batches
// and dedup-checked before emission. Rejected duplicates are dropped
// silently. The channel closes when the burst is exhausted.
func (o *Orchestrator) GenerateBurst(ctx context.Context, seed int64, brief string) <-chan *document.Document {
	ch := make(chan *document.Document, 1)

	go func() {
		defer close(ch)

		category := o.nextCategory(ctx)
		if seed == 0 {
			seed = rand.Int63()
		}

		emitted := o.runBurst(ctx, ch, category, seed, brief)
		if emitted > 0 {
			return
		}

		// No burst-capable provider produced anything: fall back to a
		// single-document walk so the caller still sees one document.
		doc := o.generateSingle(ctx, category, seed, brief)
		o.config.Metrics.IncProduced(string(doc.Kind))
		if doc.IsError() {
			o.emit(ctx, ch, doc)
			return
		}
		if o.admit(ctx, doc) {
			o.emit(ctx, ch, doc)
		}
	}()

	return ch
}

// runBurst walks burst-capable providers and their model chains, parsing
// the stream incrementally. Returns the number of documents emitted.
func (o *Orchestrator) runBurst(ctx context.Context, ch chan<- *document.Document, category string, seed int64, brief string) int {
	req := provider.Request{
		System:    systemPrompt,
		User:      userPrompt(category, brief, seed, o.config.BurstSize),
		Seed:      seed,
		MaxTokens: o.config.MaxTokens,
	}

	for _, p := range o.config.Providers {
		if !p.SupportsBurst() {
			continue
		}
		for _, model := range p.Models() {
			n := o.streamOnce(ctx, ch, p, model, req, category, seed, brief)
			if n > 0 {
				return n
			}
			if ctx.Err() != nil {
				return 0
			}
		}
	}
	return 0
}

// streamOnce runs one streamed call against one provider/model and pumps
// parsed documents through review → dedupe → emit.
func (o *Orchestrator) streamOnce(ctx context.Context, ch chan<- *document.Document, p provider.Provider, model string, req provider.Request, category string, seed int64, brief string) int {
	log := o.config.Logger.With("provider", p.Name(), "model", model)

	callCtx, cancel := context.WithTimeout(ctx, o.config.CallTimeout)
	defer cancel()

	rc, err := p.GenerateStream(callCtx, model, req)
	if err != nil {
		o.config.Metrics.IncAttempt(p.Name(), model, "error")
		log.Warn("gen: burst call failed, advancing chain", "error", err)
		return 0
	}
	defer rc.Close()

	parser := burst.New()
	emitted := 0
	first := true
	var pending []*document.Document

	flush := func() {
		if len(pending) == 0 {
			return
		}
		docs := pending
		pending = nil
		if o.config.Reviewer != nil {
			docs = o.config.Reviewer.ReviewBatch(ctx, docs, brief)
		}
		for _, d := range docs {
			if !o.admit(ctx, d) {
				continue
			}
			o.config.Metrics.IncProduced(string(d.Kind))
			if o.emit(ctx, ch, d) {
				emitted++
			}
		}
	}

	buf := make([]byte, 4096)
	for {
		n, readErr := rc.Read(buf)
		if n > 0 {
			for _, raw := range parser.Feed(string(buf[:n])) {
				doc, err := document.Normalize(raw)
				if err != nil {
					log.Warn("gen: discarding malformed burst object", "error", err)
					continue
				}
				o.stamp(doc, category, seed)

				if first {
					// Latency optimization: the caller must see
					// something fast, so the first document skips
					// review. It still goes through dedupe.
					first = false
					if o.admit(ctx, doc) {
						o.config.Metrics.IncProduced(string(doc.Kind))
						if o.emit(ctx, ch, doc) {
							emitted++
						}
					}
					continue
				}

				pending = append(pending, doc)
				if o.config.Reviewer != nil && len(pending) >= o.config.Reviewer.BatchSize() {
					flush()
				}
			}
		}
		if readErr != nil {
			if readErr != io.EOF {
				o.config.Metrics.IncAttempt(p.Name(), model, "error")
				log.Warn("gen: burst stream ended early", "error", readErr, "pending_bytes", parser.Pending())
			}
			break
		}
	}

	flush()

	if emitted > 0 {
		o.config.Metrics.IncAttempt(p.Name(), model, "ok")
	} else {
		o.config.Metrics.IncAttempt(p.Name(), model, "error")
		log.Warn("gen: burst produced no documents, advancing chain")
	}
	return emitted
}

// generateSingle walks every provider and model for one document. Never
// returns nil: exhaustion yields the error variant.
func (o *Orchestrator) generateSingle(ctx context.Context, category string, seed int64, brief string) *document.Document {
	req := provider.Request{
		System:    systemPrompt,
		User:      userPrompt(category, brief, seed, 1),
		Seed:      seed,
		MaxTokens: o.config.MaxTokens,
	}

	for _, p := range o.config.Providers {
		for _, model := range p.Models() {
			log := o.config.Logger.With("provider", p.Name(), "model", model)

			callCtx, cancel := context.WithTimeout(ctx, o.config.CallTimeout)
			text, err := p.Generate(callCtx, model, req)
			cancel()
			if err != nil {
				o.config.Metrics.IncAttempt(p.Name(), model, "error")
				log.Warn("gen: call failed, advancing chain", "error", err)
				continue
			}

			doc, err := parseSingle(text)
			if err != nil {
				// Malformed output is a transient failure: log the
				// classification, never the raw text to the caller.
				o.config.Metrics.IncAttempt(p.Name(), model, "error")
				log.Warn("gen: malformed output, advancing chain", "error", err)
				continue
			}

			o.config.Metrics.IncAttempt(p.Name(), model, "ok")
			o.stamp(doc, category, seed)
			return doc
		}
		if ctx.Err() != nil {
			break
		}
	}

	o.config.Logger.Error("gen: all providers exhausted", "category", category)
	return document.NewError("generation temporarily unavailable", 503)
}

// parseSingle extracts the first document object from a complete response.
// Running the burst parser over the full text tolerates wrapping arrays,
// stray prose, and trailing junk for free.
func parseSingle(text string) (*document.Document, error) {
	parser := burst.New()
	for _, raw := range parser.Feed(text) {
		doc, err := document.Normalize(raw)
		if err != nil {
			continue
		}
		return doc, nil
	}
	return nil, document.ErrUnknownShape
}

func (o *Orchestrator) stamp(doc *document.Document, category string, seed int64) {
	doc.Category = category
	doc.Seed = seed
	doc.CreatedAt = time.Now().UnixMilli()
	if doc.Title == "" && doc.HTML != "" {
		doc.Title = document.ExtractTitle(doc.HTML)
	}
}

// admit runs the atomic dedupe check-and-set. Registry errors fail open:
// a broken registry must not stop generation.
func (o *Orchestrator) admit(ctx context.Context, doc *document.Document) bool {
	if o.config.Registry == nil || doc.IsError() {
		return true
	}
	fresh, err := o.config.Registry.Admit(ctx, dedupe.Fingerprint(doc))
	if err != nil {
		o.config.Logger.Warn("gen: dedupe registry error, admitting", "error", err)
		return true
	}
	if !fresh {
		o.config.Metrics.IncDedupeRejected()
		o.config.Logger.Debug("gen: dropping structural duplicate", "category", doc.Category)
	}
	return fresh
}

func (o *Orchestrator) emit(ctx context.Context, ch chan<- *document.Document, doc *document.Document) bool {
	select {
	case ch <- doc:
		return true
	case <-ctx.Done():
		return false
	}
}

func (o *Orchestrator) nextCategory(ctx context.Context) string {
	category, err := o.config.Rotation.Next(ctx)
	if err != nil {
		o.config.Logger.Warn("gen: rotation advance failed", "error", err)
		return document.Categories[0]
	}
	return category
}
