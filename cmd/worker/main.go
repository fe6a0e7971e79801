// Package main implements a background consumer that drains the buffer
// in FIFO order, logging each record at debug level and acknowledging
// it immediately.
package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/dsjohal14/ledgerbuf/internal/diskbuf"
	"github.com/dsjohal14/ledgerbuf/internal/janitor"
	"github.com/dsjohal14/ledgerbuf/internal/libs/config"
	"github.com/dsjohal14/ledgerbuf/internal/libs/obs"
	"github.com/dsjohal14/ledgerbuf/internal/usage"
	"github.com/rs/zerolog"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		panic(err.Error())
	}

	obs.InitLogger(cfg.LogLevel)
	logger := obs.Logger("worker")

	buf, err := diskbuf.Open(diskbuf.Options{
		DataDir:        cfg.DataDir,
		MaxBufferSize:  cfg.MaxBufferSize,
		MaxSegmentSize: cfg.MaxSegmentSize,
		FlushInterval:  cfg.FlushInterval,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open buffer")
	}
	defer func() { _ = buf.Close() }()

	j := janitor.New(buf, usage.NewInMemoryRecorder(), janitor.Config{SweepInterval: cfg.JanitorInterval}, logger)
	if err := j.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to start janitor")
	}
	defer j.Stop()

	logger.Info().Str("data_dir", cfg.DataDir).Msg("worker started, draining buffer")
	drainLoop(ctx, buf.Reader(), logger)
	logger.Info().Msg("worker shutting down")
}

// drainLoop reads records in order and acknowledges each one
// immediately after it is handed off. A real sink would replace the
// log line below with an outbound call and Resolve(AckSuccess) once
// that call confirms delivery. Resolve(AckFailed) advances the
// checkpoint the same way, so a failed record is not redelivered.
func drainLoop(ctx context.Context, r *diskbuf.Reader, logger zerolog.Logger) {
	for {
		rec, ack, err := r.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error().Err(err).Msg("read failed")
			return
		}
		if rec == nil {
			return
		}

		logger.Debug().
			Uint64("first_record_id", rec.FirstRecordID).
			Uint64("event_count", rec.EventCount).
			Int("payload_len", len(rec.Payload)).
			Msg("delivering record")

		ack.Resolve(diskbuf.AckSuccess)
	}
}
