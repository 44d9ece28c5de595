// Package di provides dependency injection factories for creating application components.
package di

import (
	"ohlcv_ingest/internal/platform/externalapi/coinbase"
	infrahttp "ohlcv_ingest/internal/platform/http"
)

// NewMarket creates a fully configured Coinbase market adapter with HTTP client.
func NewMarket() *coinbase.Market {
	cfg := coinbase.LoadConfig()
	httpClient := infrahttp.NewHTTPClient(cfg.Timeout)
	return coinbase.NewMarket(cfg, httpClient)
}
