package di

import (
	"ohlcv_ingest/internal/app/config"
	"ohlcv_ingest/internal/feature/candles/usecase"
)

// NewIngestUsecase wires the ingestion pipeline from the loaded configuration.
func NewIngestUsecase(cfg *config.Ingest, market usecase.ExchangeAdapter, store usecase.CandleStore, sink usecase.CommitSink) *usecase.IngestUsecase {
	return usecase.NewIngestUsecase(
		market,
		store,
		cfg.NewWindowResolver(nil),
		usecase.NewBatchFetcher(cfg.FetcherConfig()),
		sink,
		cfg.IngestConfig(),
	)
}
