// Package queue implements the FIFO prefetch store of validated,
// deduplicated, reviewed documents.
//
// The queue exclusively owns entries from enqueue to dequeue; entries are
// immutable once enqueued. Dequeue is atomic — two concurrent calls never
// return the same entry — and always returns the oldest still-present
// entry. An empty queue is not an error: Dequeue returns (nil, nil) and
// the caller falls through to the synchronous slow path.
package queue

import (
	"context"
	"time"

	"github.com/lesprgm/Roulette-sub000/document"
)

// Entry is one queued document.
type Entry struct {
	ID         string
	EnqueuedAt time.Time
	Doc        *document.Document
}

// Queue is the FIFO prefetch store.
type Queue interface {
	// Enqueue appends doc and returns the entry ID. The write is durable
	// before Enqueue returns on persistent backends: a half-written entry
	// is never visible.
	Enqueue(ctx context.Context, doc *document.Document) (string, error)
	// Dequeue atomically removes and returns the oldest entry, or
	// (nil, nil) when the queue is empty.
	Dequeue(ctx context.Context) (*Entry, error)
	// Size returns the current number of entries.
	Size(ctx context.Context) (int, error)
}
