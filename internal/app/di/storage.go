package di

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	candleadapters "ohlcv_ingest/internal/feature/candles/adapters"
	candleusecase "ohlcv_ingest/internal/feature/candles/usecase"
	instrumentadapters "ohlcv_ingest/internal/feature/instruments/adapters"
	instrumentusecase "ohlcv_ingest/internal/feature/instruments/usecase"
)

// CandleStore is the gorm-backed time-series store seen from the wiring layer.
type CandleStore interface {
	candleusecase.CandleStore
	candleusecase.CandleRepository
	Migrate(ctx context.Context) error
}

// InstrumentStore is the gorm-backed instrument registry seen from the wiring layer.
type InstrumentStore interface {
	instrumentusecase.InstrumentRepository
	Migrate(ctx context.Context) error
	Register(ctx context.Context, codes ...string) error
}

// Stores groups the repositories sharing one database connection.
type Stores struct {
	Candles     CandleStore
	Instruments InstrumentStore
}

// NewStores builds the repositories on db and creates their tables when migrate is set.
func NewStores(ctx context.Context, db *gorm.DB, migrate bool) (*Stores, error) {
	s := &Stores{
		Candles:     candleadapters.NewCandleStore(db),
		Instruments: instrumentadapters.NewInstrumentRepository(db),
	}
	if !migrate {
		return s, nil
	}
	if err := s.Candles.Migrate(ctx); err != nil {
		return nil, fmt.Errorf("migrate candles: %w", err)
	}
	if err := s.Instruments.Migrate(ctx); err != nil {
		return nil, fmt.Errorf("migrate instruments: %w", err)
	}
	return s, nil
}
