package di

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"ohlcv_ingest/internal/app/config"
	"ohlcv_ingest/internal/feature/candles/usecase"
	instrumentusecase "ohlcv_ingest/internal/feature/instruments/usecase"
	infradb "ohlcv_ingest/internal/platform/db"
	"ohlcv_ingest/internal/platform/http/handler"
)

// dbConnectTimeout はDB接続リトライの上限です。
const dbConnectTimeout = 60 * time.Second

// App holds the long-lived components shared by the commands.
type App struct {
	DB          *gorm.DB
	Redis       *redis.Client
	Stores      *Stores
	Ingest      *usecase.IngestUsecase
	Instruments *instrumentusecase.InstrumentUsecase
}

// NewApp connects to the database and Redis and wires the ingestion pipeline.
func NewApp(ctx context.Context, cfg *config.Ingest) (*App, error) {
	db, err := infradb.OpenDB(dbConnectTimeout)
	if err != nil {
		return nil, err
	}
	stores, err := NewStores(ctx, db, cfg.Storage.Migrate)
	if err != nil {
		return nil, err
	}
	rdb := NewRedis(ctx)

	return &App{
		DB:          db,
		Redis:       rdb,
		Stores:      stores,
		Ingest:      NewIngestUsecase(cfg, NewMarket(), stores.Candles, NewCommitSink(rdb)),
		Instruments: instrumentusecase.NewInstrumentUsecase(stores.Instruments),
	}, nil
}

// ResolveInstruments は設定された銘柄、無ければ登録済みの有効な銘柄を返します。
// 設定された銘柄は読み取りAPIから見えるようにレジストリへ登録します。
func (a *App) ResolveInstruments(ctx context.Context, configured []string) ([]string, error) {
	if len(configured) > 0 {
		if err := a.Stores.Instruments.Register(ctx, configured...); err != nil {
			slog.Warn("failed to register instruments", "error", err)
		}
	}
	codes, err := a.Instruments.ResolveInstruments(ctx, configured)
	if err != nil {
		return nil, err
	}
	if len(codes) == 0 {
		return nil, fmt.Errorf("no instruments: set INGEST_SYMBOLS or register instruments")
	}
	return codes, nil
}

// Checks returns the readiness checks of the connected dependencies.
func (a *App) Checks() []handler.Check {
	checks := []handler.Check{{Name: "db", Ping: func(ctx context.Context) error {
		sqlDB, err := a.DB.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	}}}
	if a.Redis != nil {
		checks = append(checks, handler.Check{Name: "redis", Ping: func(ctx context.Context) error {
			return a.Redis.Ping(ctx).Err()
		}})
	}
	return checks
}

// Close releases the connections.
func (a *App) Close() {
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			slog.Error("failed to close Redis client", "error", err)
		}
	}
	if sqlDB, err := a.DB.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			slog.Error("failed to close database", "error", err)
		}
	}
}

// LogRun writes one line per instrument that was not fully ingested.
// The run summary itself is logged by the usecase.
func LogRun(run usecase.RunResult) {
	log := slog.With("run_id", run.RunID, "mode", run.Mode.Kind, "granularity", run.Granularity)
	for _, r := range run.Results {
		if r.OK() {
			continue
		}
		log.Warn("instrument not fully ingested", "instrument", r.Instrument, "status", r.Status,
			"written", r.Written, "gaps", len(r.Gaps), "kind", r.ErrKind, "error", r.Err)
	}
}
