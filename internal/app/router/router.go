// Package router はginのルーティングを定義します。
package router

import (
	"github.com/gin-gonic/gin"

	candleshandler "ohlcv_ingest/internal/feature/candles/transport/handler"
	instrumentshandler "ohlcv_ingest/internal/feature/instruments/transport/handler"
	"ohlcv_ingest/internal/platform/http/handler"
)

// NewRouter は保存済みデータの読み取りAPIのルーターを生成します。
func NewRouter(candles *candleshandler.CandlesHandler, instruments *instrumentshandler.InstrumentHandler, checks ...handler.Check) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	// 導通確認用
	r.GET("/healthz", handler.Health)
	r.HEAD("/healthz", handler.Health)
	r.GET("/readyz", handler.Ready(checks...))

	r.GET("/instruments", instruments.List)
	r.GET("/candles/:instrument", candles.GetCandlesHandler)
	r.GET("/candles/:instrument/gaps", candles.GetGapsHandler)

	return r
}

// NewRealtimeRouter はリアルタイムホストのルーターを生成します。
// スケジューラーの状態と直近の実行結果のみを公開します。
func NewRealtimeRouter(status *candleshandler.StatusHandler, checks ...handler.Check) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", handler.Health)
	r.HEAD("/healthz", handler.Health)
	r.GET("/readyz", handler.Ready(checks...))
	r.GET("/status", status.GetStatusHandler)

	return r
}
