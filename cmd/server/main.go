package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/jarvis-network/synthereum-sub002/internal/config"
	"github.com/jarvis-network/synthereum-sub002/internal/metrics"
	"github.com/jarvis-network/synthereum-sub002/internal/model"
	"github.com/jarvis-network/synthereum-sub002/internal/quote"
	"github.com/jarvis-network/synthereum-sub002/internal/store"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"), os.Getenv)
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	// --- Initialize store ---
	var st store.Store
	var cleanup []func()

	if cfg.DatabaseURL != "" {
		dbPool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, dbPool.Close)
		pg := store.NewPostgresStore(dbPool)
		if err := pg.Migrate(context.Background()); err != nil {
			slog.Error("database migration failed", "err", err)
			os.Exit(1)
		}
		st = pg
		slog.Info("connected to PostgreSQL")

		// Wrap with Redis read-through cache if configured.
		if cfg.RedisURL != "" {
			opt, err := redis.ParseURL(cfg.RedisURL)
			if err != nil {
				slog.Error("invalid REDIS_URL", "err", err)
				os.Exit(1)
			}
			rdb := redis.NewClient(opt)
			cleanup = append(cleanup, func() { rdb.Close() })
			st = store.NewCachedStore(st, rdb, cfg.CacheTTL.Duration)
			slog.Info("Redis cache enabled", "ttl", cfg.CacheTTL.String())
		}
	} else {
		slog.Warn("DATABASE_URL not set, using in-memory store (data will not persist)")
		st = store.NewMemoryStore()
	}

	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	// --- WebSocket hub ---
	wsHub := quote.NewWSHub()
	go wsHub.Run()

	// --- Quote service ---
	quoteSvc := quote.NewService(st, wsHub)

	seeds := make([]*model.Pool, 0, len(cfg.Pools))
	now := time.Now().UTC()
	for _, p := range cfg.Pools {
		seeds = append(seeds, p.Model(now))
	}
	if err := quoteSvc.SeedPools(context.Background(), seeds); err != nil {
		slog.Error("pool seeding failed", "err", err)
		os.Exit(1)
	}

	limiter := quote.NewRateLimiter(cfg.Quote.RatePerMinute, cfg.Quote.Burst)

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)

	// CORS middleware for frontend cross-origin requests.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"risk-quote"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// WebSocket endpoint for snapshot change notifications.
		r.Get("/ws", wsHub.HandleWS)

		// Pool snapshots.
		r.Get("/pools", quoteSvc.ListPools)
		r.Post("/pools", quoteSvc.CreatePool)
		r.Get("/pools/{poolID}", quoteSvc.GetPool)
		r.Put("/pools/{poolID}/price", quoteSvc.UpdatePrice)

		// Sponsor positions.
		r.Put("/pools/{poolID}/positions/{sponsor}", quoteSvc.UpsertPosition)
		r.Get("/pools/{poolID}/positions/{sponsor}", quoteSvc.GetPosition)
		r.Get("/pools/{poolID}/positions/{sponsor}/quotes", quoteSvc.GetQuotes)

		// Quotes.
		r.With(limiter.Middleware).Post("/pools/{poolID}/quote", quoteSvc.Quote)
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("risk-quote listening", "port", cfg.Port, "pools", len(seeds))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	slog.Info("shutting down risk-quote...")
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("risk-quote stopped")
}
