package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"ohlcv_ingest/internal/feature/candles/transport/http/dto"
	"ohlcv_ingest/internal/feature/candles/usecase"
	"ohlcv_ingest/internal/shared/scheduler"
)

// SchedulerStats はスケジューラーの状況を返します。
type SchedulerStats interface {
	Stats() scheduler.Stats
}

// RunHistory は直近の実行結果を返します。
type RunHistory interface {
	Last() []usecase.RunResult
	Runs() uint64
}

// StatusHandler はリアルタイムホストの状態を返します。
type StatusHandler struct {
	scheduler SchedulerStats
	history   RunHistory
}

// NewStatusHandler はStatusHandlerの新しいインスタンスを生成します。
func NewStatusHandler(s SchedulerStats, h RunHistory) *StatusHandler {
	return &StatusHandler{scheduler: s, history: h}
}

// GetStatusHandler はスケジューラーの状態と時間足ごとの直近の実行結果を返します。
//
// エンドポイント例:
// GET /status
func (h *StatusHandler) GetStatusHandler(c *gin.Context) {
	c.Header("Cache-Control", "no-store")

	st := h.scheduler.Stats()
	resp := dto.StatusResponse{
		Scheduler: dto.SchedulerStatus{
			State:    st.State.String(),
			LastTick: formatTime(st.LastTick),
			NextAt:   formatTime(st.NextAt),
			Ticks:    st.Ticks,
			Skipped:  st.Skipped,
		},
		Runs:     h.history.Runs(),
		LastRuns: make([]dto.RunStatus, 0),
	}

	for _, r := range h.history.Last() {
		rs := dto.RunStatus{
			RunID:       r.RunID,
			Granularity: string(r.Granularity),
			Status:      r.Status(),
			StartedAt:   formatTime(r.StartedAt),
			DurationMs:  r.Duration.Milliseconds(),
			Succeeded:   r.Succeeded(),
			Failed:      r.Failed(),
			Written:     r.TotalWritten(),
			Instruments: make([]dto.InstrumentStatus, 0, len(r.Results)),
		}
		for _, ir := range r.Results {
			is := dto.InstrumentStatus{
				Instrument: ir.Instrument,
				Status:     string(ir.Status),
				Written:    ir.Written,
				Rejected:   ir.Rejected,
				Checkpoint: formatTime(ir.Checkpoint),
			}
			if len(ir.Gaps) > 0 {
				is.Gaps = toWindows(ir.Gaps)
			}
			if ir.Err != nil {
				is.Error = ir.Err.Error()
			}
			rs.Instruments = append(rs.Instruments, is)
		}
		resp.LastRuns = append(resp.LastRuns, rs)
	}

	c.JSON(http.StatusOK, resp)
}

