// Command server は保存済みのローソク足を返す読み取りAPIを起動します。
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
	candleshandler "ohlcv_ingest/internal/feature/candles/transport/handler"
	"ohlcv_ingest/internal/feature/candles/usecase"
	instrumentshandler "ohlcv_ingest/internal/feature/instruments/transport/handler"
	"ohlcv_ingest/internal/platform/logging"
)

const (
	cacheTTL        = 5 * time.Minute
	shutdownTimeout = 10 * time.Second
)

func main() {
	config.LoadDotEnv()
	cfg, err := config.Load(os.Getenv("INGEST_CONFIG"))
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	logging.Setup(os.Stderr, "server", cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// db, Redis
	app, err := di.NewApp(ctx, cfg)
	if err != nil {
		slog.Error("failed to initialize", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	// Redisキャッシュでラップ（Redisが無い場合はストアを直接読む）
	reader := di.NewCandleReader(app.Redis, cacheTTL, app.Stores.Candles)

	// Usecase
	candlesUC := usecase.NewCandlesUsecase(reader, app.Stores.Candles, cfg.NewWindowResolver(nil))

	// Handler
	candlesH := candleshandler.NewCandlesHandler(candlesUC)
	instrumentsH := instrumentshandler.NewInstrumentHandler(app.Instruments)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router.NewRouter(candlesH, instrumentsH, app.Checks()...),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		slog.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("failed to shut down server", "error", err)
	}
	slog.Info("server stopped")
}
