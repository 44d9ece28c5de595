// Command realtime は固定グリッドで追記モードのインジェストを繰り返し実行し、
// その状態を /status で公開します。
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ohlcv_ingest/internal/app/config"
	"ohlcv_ingest/internal/app/di"
	"ohlcv_ingest/internal/app/router"
	"ohlcv_ingest/internal/feature/candles/domain"
	"ohlcv_ingest/internal/feature/candles/transport/handler"
	"ohlcv_ingest/internal/feature/candles/usecase"
	"ohlcv_ingest/internal/platform/logging"
	"ohlcv_ingest/internal/shared/scheduler"
)

const shutdownTimeout = 10 * time.Second

func main() {
	config.LoadDotEnv()
	cfg, err := config.Load(os.Getenv("INGEST_CONFIG"))
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	logging.Setup(os.Stderr, "realtime", cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := di.NewApp(ctx, cfg)
	if err != nil {
		slog.Error("failed to initialize", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	tracker := usecase.NewRunTracker()
	sched := scheduler.NewRecurring("ingest", cfg.Schedule.Interval, cfg.Schedule.Offset)
	sched.RunImmediately = cfg.Schedule.RunImmediately

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router.NewRealtimeRouter(handler.NewStatusHandler(sched, tracker), app.Checks()...),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		slog.Info("status server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("status server failed", "error", err)
			stop()
		}
	}()

	if err := sched.Run(ctx, cycle(app, cfg, tracker)); err != nil {
		slog.Error("scheduler failed", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("failed to shut down status server", "error", err)
	}
	slog.Info("realtime stopped")
}

// cycle は1サイクル分のタスクを返します。銘柄は毎サイクル解決するため、
// 実行中にレジストリへ追加された銘柄も次のサイクルから対象になります。
func cycle(app *di.App, cfg *config.Ingest, tracker *usecase.RunTracker) scheduler.Task {
	return func(ctx context.Context) {
		instruments, err := app.ResolveInstruments(ctx, cfg.Symbols)
		if err != nil {
			slog.Error("failed to load instruments, cycle skipped", "error", err)
			return
		}
		runs, err := app.Ingest.IngestAll(ctx, instruments, cfg.GranularityList())
		tracker.Record(runs...)
		for _, run := range runs {
			di.LogRun(run)
		}
		if err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("cycle aborted", "kind", domain.KindOf(err), "error", err)
		}
	}
}
