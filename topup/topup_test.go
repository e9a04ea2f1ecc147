package topup

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lesprgm/Roulette-sub000/document"
	"github.com/lesprgm/Roulette-sub000/queue"
)

// memQueue is a mutex-guarded in-process queue for loop tests.
type memQueue struct {
	mu      sync.Mutex
	entries []*document.Document
	nextID  int
}

func (q *memQueue) Enqueue(_ context.Context, doc *document.Document) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.nextID++
	q.entries = append(q.entries, doc)
	return fmt.Sprintf("e%d", q.nextID), nil
}

func (q *memQueue) Dequeue(context.Context) (*queue.Entry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.entries) == 0 {
		return nil, nil
	}
	doc := q.entries[0]
	q.entries = q.entries[1:]
	return &queue.Entry{ID: "e", Doc: doc}, nil
}

func (q *memQueue) Size(context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries), nil
}

func fill(q *memQueue, n int) {
	for i := 0; i < n; i++ {
		q.Enqueue(context.Background(), &document.Document{Kind: document.KindPage, HTML: "<p>seed</p>"})
	}
}

func okGenerator(calls *atomic.Int64) GenerateFunc {
	return func(context.Context) (*document.Document, error) {
		calls.Add(1)
		return &document.Document{Kind: document.KindPage, HTML: "<p>fresh</p>"}, nil
	}
}

func TestCycleFillsToTarget(t *testing.T) {
	q := &memQueue{}
	fill(q, 2)

	var calls atomic.Int64
	l := New(q, okGenerator(&calls), Config{MinFill: 4, FillTo: 6, LowWater: 1})
	l.cycle(context.Background())

	if n, _ := q.Size(context.Background()); n != 4 {
		t.Fatalf("got size %d, want the minimum fill of 4", n)
	}
	if calls.Load() != 2 {
		t.Fatalf("got %d generator calls, want 2", calls.Load())
	}
}

func TestCycleHysteresisRaisesTarget(t *testing.T) {
	q := &memQueue{}
	fill(q, 1)

	var calls atomic.Int64
	l := New(q, okGenerator(&calls), Config{MinFill: 2, FillTo: 5, LowWater: 1})
	l.cycle(context.Background())

	// At the low-water mark the target jumps to FillTo, not MinFill.
	if n, _ := q.Size(context.Background()); n != 5 {
		t.Fatalf("got size %d, want 5", n)
	}
}

func TestCycleNoopAboveTarget(t *testing.T) {
	q := &memQueue{}
	fill(q, 3)

	var calls atomic.Int64
	l := New(q, okGenerator(&calls), Config{MinFill: 3, FillTo: 6, LowWater: 1})
	l.cycle(context.Background())

	if calls.Load() != 0 {
		t.Fatalf("got %d generator calls, want 0", calls.Load())
	}
	if n, _ := q.Size(context.Background()); n != 3 {
		t.Fatalf("got size %d, want 3 untouched", n)
	}
}

// Slow jobs whose results arrive after the target is already met must be
// discarded, never enqueued past the target.
func TestCycleDiscardsLateResults(t *testing.T) {
	q := &memQueue{}
	entered := make(chan struct{}, 2)
	release := make(chan struct{})

	gen := func(context.Context) (*document.Document, error) {
		entered <- struct{}{}
		<-release
		return &document.Document{Kind: document.KindPage, HTML: "<p>late</p>"}, nil
	}
	l := New(q, gen, Config{MinFill: 2, FillTo: 2, LowWater: 1, Concurrency: 2})

	done := make(chan struct{})
	go func() {
		l.cycle(context.Background())
		close(done)
	}()

	// Wait for both workers to be in flight, then fill the queue behind
	// their backs before releasing them.
	<-entered
	<-entered
	fill(q, 2)
	close(release)
	<-done

	if n, _ := q.Size(context.Background()); n != 2 {
		t.Fatalf("got size %d, want exactly the target of 2", n)
	}
}

func TestCycleSurvivesGeneratorFailures(t *testing.T) {
	q := &memQueue{}
	var calls atomic.Int64
	gen := func(context.Context) (*document.Document, error) {
		calls.Add(1)
		return nil, errors.New("provider down")
	}
	l := New(q, gen, Config{MinFill: 2, FillTo: 2, LowWater: 1})

	done := make(chan struct{})
	go func() {
		l.cycle(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("cycle did not terminate with a permanently failing generator")
	}
	if calls.Load() == 0 {
		t.Fatal("generator never attempted")
	}
	if n, _ := q.Size(context.Background()); n != 0 {
		t.Fatalf("got size %d, want 0", n)
	}
	if l.LastCycle() == "never" {
		t.Fatal("cycle outcome not recorded")
	}
}

func TestTriggerIdempotent(t *testing.T) {
	l := New(&memQueue{}, okGenerator(new(atomic.Int64)), Config{})

	// Must not block however many times it is called before Run drains it.
	for i := 0; i < 10; i++ {
		l.Trigger()
	}
	if len(l.trigger) != 1 {
		t.Fatalf("got %d pending triggers, want 1", len(l.trigger))
	}
}

func TestRunRespondsToTrigger(t *testing.T) {
	q := &memQueue{}
	var calls atomic.Int64
	l := New(q, okGenerator(&calls), Config{MinFill: 1, FillTo: 1, Interval: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		l.Run(ctx)
		close(done)
	}()

	l.Trigger()
	deadline := time.After(5 * time.Second)
	for {
		if n, _ := q.Size(context.Background()); n == 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("trigger never produced a fill")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	<-done
}
