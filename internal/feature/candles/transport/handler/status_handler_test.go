package handler_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"ohlcv_ingest/internal/feature/candles/domain"
	"ohlcv_ingest/internal/feature/candles/domain/entity"
	"ohlcv_ingest/internal/feature/candles/transport/handler"
	"ohlcv_ingest/internal/feature/candles/usecase"
	"ohlcv_ingest/internal/shared/scheduler"
)

type stubScheduler struct {
	stats scheduler.Stats
}

func (s stubScheduler) Stats() scheduler.Stats { return s.stats }

func TestStatusHandler_GetStatusHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tick := time.Date(2024, 1, 2, 10, 1, 5, 0, time.UTC)
	hour := entity.TimeWindow{Start: tick.Add(-time.Hour).Truncate(time.Hour), End: tick.Truncate(time.Hour)}

	tests := []struct {
		name         string
		stats        scheduler.Stats
		record       []usecase.RunResult
		expectedBody string
	}{
		{
			name:  "before the first cycle",
			stats: scheduler.Stats{State: scheduler.StateWaiting, NextAt: tick},
			expectedBody: `{"scheduler":{"state":"waiting","next_at":"2024-01-02T10:01:05Z","ticks":0,"skipped":0},
				"runs":0,"last_runs":[]}`,
		},
		{
			name:  "after a cycle with one failure",
			stats: scheduler.Stats{State: scheduler.StateWaiting, LastTick: tick, NextAt: tick.Add(time.Minute), Ticks: 1},
			record: []usecase.RunResult{{
				RunID: "run-1", Granularity: entity.OneHour, StartedAt: tick, Duration: 1500 * time.Millisecond,
				Results: []usecase.InstrumentResult{
					{Instrument: "BTC-USD", Status: usecase.StatusSuccess, Written: 1, Checkpoint: hour.Start, Window: hour},
					{Instrument: "ETH-USD", Status: usecase.StatusFailed, Gaps: []entity.TimeWindow{hour},
						ErrKind: domain.KindPermanent, Err: errors.New("adapter permanent (http 404): not found")},
				},
			}},
			expectedBody: `{"scheduler":{"state":"waiting","last_tick":"2024-01-02T10:01:05Z","next_at":"2024-01-02T10:02:05Z","ticks":1,"skipped":0},
				"runs":1,
				"last_runs":[{"run_id":"run-1","granularity":"1h","status":"completed_with_errors",
					"started_at":"2024-01-02T10:01:05Z","duration_ms":1500,"succeeded":1,"failed":1,"written":1,
					"instruments":[
						{"instrument":"BTC-USD","status":"success","written":1,"checkpoint":"2024-01-02T09:00:00Z"},
						{"instrument":"ETH-USD","status":"failed","written":0,
						 "gaps":[{"start":"2024-01-02T09:00:00Z","end":"2024-01-02T10:00:00Z"}],
						 "error":"adapter permanent (http 404): not found"}
					]}]}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tracker := usecase.NewRunTracker()
			tracker.Record(tt.record...)

			h := handler.NewStatusHandler(stubScheduler{stats: tt.stats}, tracker)
			router := gin.New()
			router.GET("/status", h.GetStatusHandler)

			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/status", nil))

			assert.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
			assert.JSONEq(t, tt.expectedBody, w.Body.String())
		})
	}
}
