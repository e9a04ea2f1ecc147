// Package provider implements upstream text-generation clients behind a
// common interface.
//
// The orchestrator tries providers in priority order and walks each
// provider's model fallback chain on failure. Burst-capable providers can
// return several documents from a single streamed call, amortizing cost on
// upstreams with strict per-day quotas; fallback providers only support
// single-document calls.
package provider

import (
	"context"
	"fmt"
	"io"
)

// Request is one prompt pair sent upstream.
type Request struct {
	System    string
	User      string
	Seed      int64
	MaxTokens int
}

// Provider is one upstream generator with an ordered model fallback chain.
type Provider interface {
	// Name identifies the provider in logs and metrics.
	Name() string
	// Models returns the fallback chain, primary first.
	Models() []string
	// SupportsBurst reports whether GenerateStream may return several
	// documents in one response.
	SupportsBurst() bool
	// Generate performs a single blocking call and returns the full
	// response text.
	Generate(ctx context.Context, model string, req Request) (string, error)
	// GenerateStream returns an incremental reader over the response
	// text. The caller owns the reader and must close it.
	GenerateStream(ctx context.Context, model string, req Request) (io.ReadCloser, error)
}

// StatusError is a non-2xx upstream response. The orchestrator treats it
// like any transient failure: advance the fallback chain.
type StatusError struct {
	Provider string
	Model    string
	Code     int
	Body     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("provider %s/%s: http %d", e.Provider, e.Model, e.Code)
}
