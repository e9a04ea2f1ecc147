package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lesprgm/Roulette-sub000/document"
	"github.com/lesprgm/Roulette-sub000/idgen"
)

// RedisConfig configures the key-value queue backend.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	// Prefix namespaces all keys. Default: "roulette".
	Prefix string
	// PayloadTTL expires payloads so an abandoned queue cannot grow
	// forever. Default: 24h.
	PayloadTTL time.Duration

	Logger *slog.Logger
}

func (c *RedisConfig) defaults() {
	if c.Prefix == "" {
		c.Prefix = "roulette"
	}
	if c.PayloadTTL <= 0 {
		c.PayloadTTL = 24 * time.Hour
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Redis is the split-storage queue: FIFO ordering lives in a list of entry
// IDs, payloads live in their own keys with a TTL. The split means a
// payload can be gone by the time its ID is popped — Dequeue skips such
// entries and moves on rather than surfacing a missing-payload error.
type Redis struct {
	rdb    *redis.Client
	config RedisConfig
	newID  idgen.Generator
}

// NewRedis creates the queue and verifies the connection with a PING.
func NewRedis(cfg RedisConfig) (*Redis, error) {
	cfg.defaults()
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("queue: redis ping: %w", err)
	}
	return &Redis{rdb: rdb, config: cfg, newID: idgen.Prefixed("doc_", idgen.Default)}, nil
}

func (q *Redis) listKey() string { return q.config.Prefix + ":queue" }

func (q *Redis) payloadKey(id string) string { return q.config.Prefix + ":doc:" + id }

// Enqueue implements Queue. The payload is written and committed before the
// ID becomes visible in the list, so a reader can never observe a
// half-written entry.
func (q *Redis) Enqueue(ctx context.Context, doc *document.Document) (string, error) {
	payload, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("queue: marshal: %w", err)
	}
	id := q.newID()

	if err := q.rdb.Set(ctx, q.payloadKey(id), payload, q.config.PayloadTTL).Err(); err != nil {
		return "", fmt.Errorf("queue: set payload: %w", err)
	}
	if err := q.rdb.LPush(ctx, q.listKey(), id).Err(); err != nil {
		return "", fmt.Errorf("queue: push id: %w", err)
	}
	return id, nil
}

// Dequeue implements Queue. RPOP against the LPUSH side gives FIFO; the pop
// itself is the atomicity guarantee — each ID is handed to exactly one
// caller.
func (q *Redis) Dequeue(ctx context.Context) (*Entry, error) {
	for {
		id, err := q.rdb.RPop(ctx, q.listKey()).Result()
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("queue: pop id: %w", err)
		}

		payload, err := q.rdb.GetDel(ctx, q.payloadKey(id)).Bytes()
		if errors.Is(err, redis.Nil) {
			// Payload expired or was never committed; skip to the
			// next entry.
			q.config.Logger.Warn("queue: skipping entry with missing payload", "id", id)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("queue: get payload: %w", err)
		}

		var doc document.Document
		if err := json.Unmarshal(payload, &doc); err != nil {
			q.config.Logger.Warn("queue: skipping undecodable entry", "id", id, "error", err)
			continue
		}
		return &Entry{ID: id, EnqueuedAt: time.UnixMilli(doc.CreatedAt), Doc: &doc}, nil
	}
}

// Size implements Queue. The list length may briefly overcount entries
// whose payloads have expired; Dequeue reconciles by skipping them.
func (q *Redis) Size(ctx context.Context) (int, error) {
	n, err := q.rdb.LLen(ctx, q.listKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("queue: llen: %w", err)
	}
	return int(n), nil
}

// Close releases the client connection pool.
func (q *Redis) Close() error {
	return q.rdb.Close()
}
