// Package main implements the HTTP API server for the buffer.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dsjohal14/ledgerbuf/internal/diskbuf"
	apihttp "github.com/dsjohal14/ledgerbuf/internal/http"
	"github.com/dsjohal14/ledgerbuf/internal/janitor"
	"github.com/dsjohal14/ledgerbuf/internal/libs/config"
	"github.com/dsjohal14/ledgerbuf/internal/libs/obs"
	"github.com/dsjohal14/ledgerbuf/internal/usage"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	obs.InitLogger(cfg.LogLevel)
	logger := obs.Logger("api")

	opts := diskbuf.Options{
		DataDir:        cfg.DataDir,
		MaxBufferSize:  cfg.MaxBufferSize,
		MaxSegmentSize: cfg.MaxSegmentSize,
		FlushInterval:  cfg.FlushInterval,
		WhenFull:       whenFullFromString(cfg.WhenFull),
	}

	buf, err := diskbuf.Open(opts)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open buffer")
	}
	defer func() { _ = buf.Close() }()

	recorder := initUsageRecorder(ctx, cfg.DatabaseURL, logger)

	j := janitor.New(buf, recorder, janitor.Config{SweepInterval: cfg.JanitorInterval}, logger)
	if err := j.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to start janitor")
	}
	defer j.Stop()

	handler := apihttp.NewHandler(buf, logger)
	r := setupRouter(handler)

	addr := fmt.Sprintf("%s:%s", cfg.APIHost, cfg.APIPort)
	server := &http.Server{Addr: addr, Handler: r}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.Info().Str("addr", addr).Str("data_dir", cfg.DataDir).Msg("starting API server")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal().Err(err).Msg("server failed")
	}
}

func setupRouter(h *apihttp.Handler) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)

	r.Get("/health", h.HandleHealth)
	r.Get("/stats", h.HandleStats)
	r.Post("/append", h.HandleAppend)
	r.Post("/drain", h.HandleDrain)
	r.Post("/ack", h.HandleAck)

	return r
}

func whenFullFromString(s string) diskbuf.WhenFull {
	if strings.EqualFold(s, "drop_newest") {
		return diskbuf.WhenFullDropNewest
	}
	return diskbuf.WhenFullBlock
}

// initUsageRecorder connects to Postgres if a URL is configured,
// falling back to an in-memory recorder otherwise so the janitor
// always has something to report snapshots to.
func initUsageRecorder(ctx context.Context, dbURL string, logger zerolog.Logger) usage.Recorder {
	if dbURL == "" {
		logger.Info().Msg("no usage recorder URL configured, using in-memory recorder")
		return usage.NewInMemoryRecorder()
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(connectCtx, dbURL)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to connect usage recorder, falling back to in-memory")
		return usage.NewInMemoryRecorder()
	}
	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		logger.Warn().Err(err).Msg("failed to ping usage recorder database, falling back to in-memory")
		return usage.NewInMemoryRecorder()
	}

	logger.Info().Msg("using Postgres-backed usage recorder")
	return usage.NewPostgresRecorder(pool)
}
