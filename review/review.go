// Package review implements the asynchronous compliance review pass.
//
// Review is a secondary model call that receives candidate documents and
// returns, per document, an accept/reject verdict plus an optional
// corrected replacement. Reviewer outages are frequent and transient, so
// the default policy is fail-open: an unreachable reviewer implicitly
// accepts the original document. Fail-closed flips that to rejection for
// deployments that would rather drop output than serve it unreviewed.
package review

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/lesprgm/Roulette-sub000/document"
	"github.com/lesprgm/Roulette-sub000/metrics"
	"github.com/lesprgm/Roulette-sub000/provider"
)

// Policy decides what reviewer unavailability means.
type Policy string

const (
	// FailOpen treats an unreachable reviewer as an implicit accept.
	FailOpen Policy = "fail-open"
	// FailClosed treats an unreachable reviewer as a rejection.
	FailClosed Policy = "fail-closed"
)

// Verdict is the reviewer's judgement on one document of a batch.
type Verdict struct {
	Index     int                `json:"index"`
	OK        bool               `json:"ok"`
	Issues    []string           `json:"issues,omitempty"`
	Corrected *document.Document `json:"corrected,omitempty"`
}

// Config configures a Reviewer.
type Config struct {
	// Provider performs the review calls.
	Provider provider.Provider
	// Model to review with. Default: the provider's first model.
	Model string
	// BatchSize groups documents per call. Kept small deliberately:
	// larger batches raise the odds the reviewer's own response gets
	// truncated, failing the whole batch. Default: 3.
	BatchSize int
	// MaxAttempts is the retry ceiling per batch. Default: 3.
	MaxAttempts int
	// RetryDelay between attempts. Default: 500ms.
	RetryDelay time.Duration
	// Timeout bounds each review call. Default: 45s.
	Timeout time.Duration
	// Policy on reviewer unavailability. Default: FailOpen.
	Policy Policy

	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

func (c *Config) defaults() {
	if c.Model == "" && c.Provider != nil && len(c.Provider.Models()) > 0 {
		c.Model = c.Provider.Models()[0]
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 3
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 500 * time.Millisecond
	}
	if c.Timeout <= 0 {
		c.Timeout = 45 * time.Second
	}
	if c.Policy == "" {
		c.Policy = FailOpen
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Reviewer performs single- and batch-mode review calls.
type Reviewer struct {
	config Config
}

// New creates a Reviewer.
func New(cfg Config) *Reviewer {
	cfg.defaults()
	return &Reviewer{config: cfg}
}

// BatchSize exposes the configured grouping size for callers that collect
// documents before flushing.
func (r *Reviewer) BatchSize() int { return r.config.BatchSize }

// ReviewOne reviews a single document. It returns the accepted (possibly
// corrected) document, or nil when the document is rejected — by verdict or
// by fail-closed policy.
func (r *Reviewer) ReviewOne(ctx context.Context, doc *document.Document, brief string) *document.Document {
	out := r.ReviewBatch(ctx, []*document.Document{doc}, brief)
	if len(out) == 0 {
		return nil
	}
	return out[0]
}

// ReviewBatch reviews docs in one reviewer call and returns the surviving
// documents in input order, corrections applied wholesale. A batch that
// still fails after the retry ceiling falls back to the policy: fail-open
// returns the originals, fail-closed returns none.
func (r *Reviewer) ReviewBatch(ctx context.Context, docs []*document.Document, brief string) []*document.Document {
	if len(docs) == 0 {
		return nil
	}

	verdicts, err := r.callWithRetry(ctx, docs, brief)
	if err != nil {
		if r.config.Policy == FailOpen {
			r.config.Logger.Warn("review: reviewer unavailable, failing open",
				"docs", len(docs), "error", err)
			r.config.Metrics.IncVerdict("fail_open")
			return docs
		}
		r.config.Logger.Warn("review: reviewer unavailable, failing closed",
			"docs", len(docs), "error", err)
		r.config.Metrics.IncVerdict("fail_closed")
		return nil
	}

	byIndex := make(map[int]Verdict, len(verdicts))
	for _, v := range verdicts {
		byIndex[v.Index] = v
	}

	var out []*document.Document
	for i, doc := range docs {
		v, ok := byIndex[i]
		if !ok {
			// Verdict missing from an otherwise-parsable response:
			// same policy fallback as an unreachable reviewer.
			if r.config.Policy == FailOpen {
				r.config.Metrics.IncVerdict("fail_open")
				out = append(out, doc)
			} else {
				r.config.Metrics.IncVerdict("fail_closed")
			}
			continue
		}
		if !v.OK {
			r.config.Logger.Info("review: document rejected", "index", i, "issues", v.Issues)
			r.config.Metrics.IncVerdict("rejected")
			continue
		}
		if v.Corrected != nil {
			if err := v.Corrected.Validate(); err != nil {
				r.config.Logger.Warn("review: invalid correction, keeping original", "index", i, "error", err)
				r.config.Metrics.IncVerdict("accepted")
				out = append(out, doc)
				continue
			}
			// Replaced wholesale, metadata carried over.
			corrected := *v.Corrected
			corrected.Category = doc.Category
			corrected.Seed = doc.Seed
			corrected.CreatedAt = doc.CreatedAt
			r.config.Metrics.IncVerdict("corrected")
			out = append(out, &corrected)
			continue
		}
		r.config.Metrics.IncVerdict("accepted")
		out = append(out, doc)
	}
	return out
}

// callWithRetry runs the reviewer call up to MaxAttempts times, retrying
// the whole batch. Never retried indefinitely.
func (r *Reviewer) callWithRetry(ctx context.Context, docs []*document.Document, brief string) ([]Verdict, error) {
	var lastErr error
	for attempt := 1; attempt <= r.config.MaxAttempts; attempt++ {
		verdicts, err := r.call(ctx, docs, brief)
		if err == nil {
			return verdicts, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, lastErr
		}
		if attempt < r.config.MaxAttempts {
			r.config.Logger.Warn("review: batch failed, retrying",
				"attempt", attempt, "max_attempts", r.config.MaxAttempts, "error", err)
			select {
			case <-ctx.Done():
				return nil, lastErr
			case <-time.After(r.config.RetryDelay):
			}
		}
	}
	return nil, lastErr
}

func (r *Reviewer) call(ctx context.Context, docs []*document.Document, brief string) ([]Verdict, error) {
	if r.config.Provider == nil {
		return nil, fmt.Errorf("review: no provider configured")
	}

	payload, err := json.Marshal(docs)
	if err != nil {
		return nil, fmt.Errorf("review: marshal batch: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, r.config.Timeout)
	defer cancel()

	text, err := r.config.Provider.Generate(ctx, r.config.Model, provider.Request{
		System: reviewSystemPrompt,
		User:   reviewUserPrompt(brief, payload),
	})
	if err != nil {
		return nil, fmt.Errorf("review: call: %w", err)
	}

	var verdicts []Verdict
	if err := json.Unmarshal([]byte(text), &verdicts); err != nil {
		return nil, fmt.Errorf("review: unparsable verdicts: %w", err)
	}
	return verdicts, nil
}
