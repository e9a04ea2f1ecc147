// Command roulette runs the generation core as an HTTP service.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"
	_ "modernc.org/sqlite"

	roulette "github.com/lesprgm/Roulette-sub000"
	"github.com/lesprgm/Roulette-sub000/dbopen"
	"github.com/lesprgm/Roulette-sub000/dedupe"
	"github.com/lesprgm/Roulette-sub000/document"
	"github.com/lesprgm/Roulette-sub000/gen"
	"github.com/lesprgm/Roulette-sub000/metrics"
	"github.com/lesprgm/Roulette-sub000/provider"
	"github.com/lesprgm/Roulette-sub000/queue"
	"github.com/lesprgm/Roulette-sub000/review"
	"github.com/lesprgm/Roulette-sub000/topup"
)

func main() {
	port := env("PORT", "8080")
	configPath := env("CONFIG", "")
	logLevel := env("LOG_LEVEL", "info")

	var lvl slog.Level
	switch logLevel {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)

	cfg := roulette.DefaultConfig()
	if configPath != "" {
		loaded, err := roulette.LoadConfig(configPath)
		if err != nil {
			logger.Error("load config", "path", configPath, "error", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	if d := os.Getenv("DATA_DIR"); d != "" {
		cfg.DataDir = d
	}

	db, err := dbopen.Open(filepath.Join(cfg.DataDir, "roulette.db"), dbopen.WithMkdirAll())
	if err != nil {
		logger.Error("open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := dedupe.NewSQLiteRegistry(db, dedupe.Options{
		Capacity: cfg.Dedupe.Capacity,
		TTL:      cfg.Dedupe.TTL,
	})
	if err := registry.EnsureTable(ctx); err != nil {
		logger.Error("dedupe schema", "error", err)
		os.Exit(1)
	}

	rotation := gen.NewSQLiteRotation(db, document.Categories)
	if err := rotation.EnsureTable(ctx); err != nil {
		logger.Error("rotation schema", "error", err)
		os.Exit(1)
	}

	var q queue.Queue
	switch cfg.Queue.Backend {
	case "redis":
		rq, err := queue.NewRedis(queue.RedisConfig{
			Addr:     cfg.Queue.Redis.Addr,
			Password: cfg.Queue.Redis.Password,
			DB:       cfg.Queue.Redis.DB,
			Prefix:   cfg.Queue.Redis.Prefix,
			Logger:   logger,
		})
		if err != nil {
			logger.Error("redis queue", "error", err)
			os.Exit(1)
		}
		defer rq.Close()
		q = rq
	default:
		sq := queue.NewSQLite(db, queue.WithLogger(logger))
		if err := sq.EnsureTable(ctx); err != nil {
			logger.Error("queue schema", "error", err)
			os.Exit(1)
		}
		q = sq
	}

	providers, byName := buildProviders(cfg, logger)
	if len(providers) == 0 {
		logger.Warn("no provider API keys configured; every request will get the error document")
	}

	m := metrics.New()

	var reviewer *review.Reviewer
	if cfg.Review.Enabled {
		rp := pickReviewProvider(cfg, providers, byName)
		if rp == nil {
			logger.Warn("review enabled but no provider available; review disabled")
		} else {
			policy := review.FailOpen
			if cfg.Review.Policy == "fail-closed" {
				policy = review.FailClosed
			}
			reviewer = review.New(review.Config{
				Provider:  rp,
				Model:     cfg.Review.Model,
				BatchSize: cfg.Review.BatchSize,
				Policy:    policy,
				Metrics:   m,
				Logger:    logger,
			})
		}
	}

	orch := gen.New(gen.Config{
		Providers:   providers,
		Rotation:    rotation,
		Registry:    registry,
		Reviewer:    reviewer,
		BurstSize:   cfg.Gen.BurstSize,
		CallTimeout: cfg.Gen.CallTimeout,
		MaxTokens:   cfg.Gen.MaxTokens,
		Metrics:     m,
		Logger:      logger,
	})

	svc := roulette.NewService(roulette.ServiceConfig{
		Orchestrator: orch,
		Queue:        q,
		Registry:     registry,
		Reviewer:     reviewer,
		Rotation:     rotation,
		TopUpEnabled: cfg.TopUp.Enabled && len(providers) > 0,
		TopUp: topup.Config{
			MinFill:     cfg.TopUp.MinFill,
			FillTo:      cfg.TopUp.FillTo,
			LowWater:    cfg.TopUp.LowWater,
			Concurrency: cfg.TopUp.Concurrency,
			Interval:    cfg.TopUp.Interval,
			Metrics:     m,
			Logger:      logger,
		},
		Metrics: m,
		Logger:  logger,
	})

	r := chi.NewRouter()
	r.Mount("/", svc.Handler())
	r.Handle("/metrics", m.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	server := &http.Server{
		Addr:              ":" + port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("roulette: listening", "port", port, "queue_backend", cfg.Queue.Backend)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return svc.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("roulette: exited", "error", err)
		os.Exit(1)
	}
	logger.Info("roulette: stopped")
}

// buildProviders assembles the priority chain from configuration, skipping
// providers whose API key is absent from the environment.
func buildProviders(cfg *roulette.Config, logger *slog.Logger) ([]provider.Provider, map[string]provider.Provider) {
	var providers []provider.Provider
	byName := make(map[string]provider.Provider)

	if key := os.Getenv(cfg.Gemini.APIKeyEnv); key != "" {
		g := provider.NewGemini(provider.GeminiConfig{
			BaseURL: cfg.Gemini.BaseURL,
			APIKey:  key,
			Models:  cfg.Gemini.Models,
		})
		providers = append(providers, g)
		byName[g.Name()] = g
	} else {
		logger.Warn("gemini disabled: API key env not set", "env", cfg.Gemini.APIKeyEnv)
	}

	for _, fb := range cfg.Fallbacks {
		key := os.Getenv(fb.APIKeyEnv)
		if key == "" {
			logger.Warn("fallback disabled: API key env not set", "name", fb.Name, "env", fb.APIKeyEnv)
			continue
		}
		p := provider.NewOpenAI(provider.OpenAIConfig{
			Name:    fb.Name,
			BaseURL: fb.BaseURL,
			APIKey:  key,
			Models:  fb.Models,
		})
		providers = append(providers, p)
		byName[p.Name()] = p
	}

	return providers, byName
}

// pickReviewProvider resolves the reviewer by configured name, falling back
// to the last (cheapest) provider in the chain.
func pickReviewProvider(cfg *roulette.Config, providers []provider.Provider, byName map[string]provider.Provider) provider.Provider {
	if cfg.Review.Provider != "" {
		return byName[cfg.Review.Provider]
	}
	if len(providers) == 0 {
		return nil
	}
	return providers[len(providers)-1]
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
