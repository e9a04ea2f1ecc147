package review

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/lesprgm/Roulette-sub000/document"
	"github.com/lesprgm/Roulette-sub000/provider"
)

// scriptedProvider replays a fixed sequence of responses; steps with an
// empty text fail the call.
type scriptedProvider struct {
	mu    sync.Mutex
	steps []string
	calls int
}

func (p *scriptedProvider) Name() string        { return "scripted" }
func (p *scriptedProvider) Models() []string    { return []string{"judge"} }
func (p *scriptedProvider) SupportsBurst() bool { return false }

func (p *scriptedProvider) Generate(context.Context, string, provider.Request) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.calls > len(p.steps) || p.steps[p.calls-1] == "" {
		return "", errors.New("reviewer overloaded")
	}
	return p.steps[p.calls-1], nil
}

func (p *scriptedProvider) GenerateStream(context.Context, string, provider.Request) (io.ReadCloser, error) {
	return nil, errors.New("not streamable")
}

func (p *scriptedProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func pages(n int) []*document.Document {
	var docs []*document.Document
	for i := 0; i < n; i++ {
		docs = append(docs, &document.Document{
			Kind:     document.KindPage,
			HTML:     "<p>doc</p>",
			Category: "game",
			Seed:     int64(i + 1),
		})
	}
	return docs
}

func TestReviewBatchAccepts(t *testing.T) {
	p := &scriptedProvider{steps: []string{`[{"index":0,"ok":true},{"index":1,"ok":true}]`}}
	r := New(Config{Provider: p})

	out := r.ReviewBatch(context.Background(), pages(2), "")
	if len(out) != 2 {
		t.Fatalf("got %d docs, want 2", len(out))
	}
}

func TestReviewBatchRejects(t *testing.T) {
	p := &scriptedProvider{steps: []string{`[{"index":0,"ok":false,"issues":["broken layout"]},{"index":1,"ok":true}]`}}
	r := New(Config{Provider: p})

	docs := pages(2)
	out := r.ReviewBatch(context.Background(), docs, "")
	if len(out) != 1 {
		t.Fatalf("got %d docs, want 1", len(out))
	}
	if out[0] != docs[1] {
		t.Fatal("the surviving doc should be the accepted one")
	}
}

func TestReviewCorrectionReplacesWholesale(t *testing.T) {
	p := &scriptedProvider{steps: []string{
		`[{"index":0,"ok":true,"corrected":{"kind":"page","html":"<p>fixed</p>"}}]`,
	}}
	r := New(Config{Provider: p})

	docs := pages(1)
	out := r.ReviewBatch(context.Background(), docs, "")
	if len(out) != 1 {
		t.Fatalf("got %d docs, want 1", len(out))
	}
	if out[0].HTML != "<p>fixed</p>" {
		t.Fatalf("got %q, want the corrected body", out[0].HTML)
	}
	// Metadata travels with the correction.
	if out[0].Category != "game" || out[0].Seed != 1 {
		t.Fatalf("metadata not carried over: %+v", out[0])
	}
}

func TestReviewInvalidCorrectionKeepsOriginal(t *testing.T) {
	// Corrected document with an empty page body fails validation; the
	// original is kept instead.
	p := &scriptedProvider{steps: []string{
		`[{"index":0,"ok":true,"corrected":{"kind":"page","html":""}}]`,
	}}
	r := New(Config{Provider: p})

	docs := pages(1)
	out := r.ReviewBatch(context.Background(), docs, "")
	if len(out) != 1 || out[0] != docs[0] {
		t.Fatalf("got %+v, want the original document", out)
	}
}

func TestReviewMissingVerdictFollowsPolicy(t *testing.T) {
	steps := []string{`[{"index":0,"ok":true}]`}

	open := New(Config{Provider: &scriptedProvider{steps: steps}})
	if out := open.ReviewBatch(context.Background(), pages(2), ""); len(out) != 2 {
		t.Fatalf("fail-open: got %d docs, want 2", len(out))
	}

	closed := New(Config{Provider: &scriptedProvider{steps: steps}, Policy: FailClosed})
	if out := closed.ReviewBatch(context.Background(), pages(2), ""); len(out) != 1 {
		t.Fatalf("fail-closed: got %d docs, want 1", len(out))
	}
}

func TestReviewUnavailableFailsOpen(t *testing.T) {
	p := &scriptedProvider{}
	r := New(Config{Provider: p, MaxAttempts: 3, RetryDelay: time.Millisecond})

	docs := pages(2)
	out := r.ReviewBatch(context.Background(), docs, "")
	if len(out) != 2 {
		t.Fatalf("got %d docs, want the originals back", len(out))
	}
	if got := p.callCount(); got != 3 {
		t.Fatalf("got %d attempts, want exactly the retry ceiling of 3", got)
	}
}

func TestReviewUnavailableFailsClosed(t *testing.T) {
	p := &scriptedProvider{}
	r := New(Config{Provider: p, Policy: FailClosed, MaxAttempts: 2, RetryDelay: time.Millisecond})

	if out := r.ReviewBatch(context.Background(), pages(2), ""); out != nil {
		t.Fatalf("got %d docs, want none", len(out))
	}
}

func TestReviewRetriesThenSucceeds(t *testing.T) {
	p := &scriptedProvider{steps: []string{
		"",
		`not json`,
		`[{"index":0,"ok":true}]`,
	}}
	r := New(Config{Provider: p, RetryDelay: time.Millisecond})

	out := r.ReviewBatch(context.Background(), pages(1), "")
	if len(out) != 1 {
		t.Fatalf("got %d docs, want 1", len(out))
	}
	if got := p.callCount(); got != 3 {
		t.Fatalf("got %d attempts, want 3", got)
	}
}

func TestReviewOneRejectedReturnsNil(t *testing.T) {
	p := &scriptedProvider{steps: []string{`[{"index":0,"ok":false}]`}}
	r := New(Config{Provider: p})

	if doc := r.ReviewOne(context.Background(), pages(1)[0], ""); doc != nil {
		t.Fatalf("got %+v, want nil", doc)
	}
}

func TestReviewEmptyBatch(t *testing.T) {
	r := New(Config{Provider: &scriptedProvider{}})
	if out := r.ReviewBatch(context.Background(), nil, ""); out != nil {
		t.Fatal("empty batch should return nil without a reviewer call")
	}
}
