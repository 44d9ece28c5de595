// Package handler はcandlesフィーチャーのHTTPハンドラーを提供します。
package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"ohlcv_ingest/internal/feature/candles/domain"
	"ohlcv_ingest/internal/feature/candles/domain/entity"
	"ohlcv_ingest/internal/feature/candles/transport/http/dto"
	"ohlcv_ingest/internal/feature/candles/usecase"
)

// CandlesUsecase はローソク足データ操作のユースケースインターフェースを定義します。
// Goの慣例に従い、インターフェースは利用者（handler）側で定義します。
type CandlesUsecase interface {
	GetCandles(ctx context.Context, instrument, granularity string, limit int) ([]entity.Candle, error)
	FindGaps(ctx context.Context, instrument, granularity string, days int) (usecase.GapReport, error)
}

// CandlesHandler はローソク足データのHTTPリクエストを処理します。
type CandlesHandler struct {
	uc CandlesUsecase
}

// NewCandlesHandler は指定されたusecaseでCandlesHandlerの新しいインスタンスを生成します。
func NewCandlesHandler(uc CandlesUsecase) *CandlesHandler {
	return &CandlesHandler{uc: uc}
}

// GetCandlesHandler は銘柄と時間足を受け取り、新しい順のローソク足データをJSONで返します。
//
// エンドポイント例:
// GET /candles/:instrument?granularity=1h&limit=200
func (h *CandlesHandler) GetCandlesHandler(c *gin.Context) {
	instrument := c.Param("instrument")
	granularity := c.DefaultQuery("granularity", string(usecase.DefaultGranularity))
	// 数値でない場合は0となり、usecase側でデフォルト値に置き換えられる
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(usecase.DefaultLimit)))

	candles, err := h.uc.GetCandles(c.Request.Context(), instrument, granularity, limit)
	if err != nil {
		c.JSON(httpStatus(err), dto.ErrorResponse{Error: err.Error()})
		return
	}

	out := make([]dto.CandleResponse, 0, len(candles))
	for _, x := range candles {
		out = append(out, dto.CandleResponse{
			Time:        formatTime(x.Time),
			Open:        x.Open,
			High:        x.High,
			Low:         x.Low,
			Close:       x.Close,
			VolumeBase:  x.VolumeBase,
			VolumeQuote: x.VolumeQuote,
		})
	}

	c.JSON(http.StatusOK, out)
}

// GetGapsHandler は直近 days 日間の欠損区間を返します。
//
// エンドポイント例:
// GET /candles/:instrument/gaps?granularity=1h&days=1
func (h *CandlesHandler) GetGapsHandler(c *gin.Context) {
	instrument := c.Param("instrument")
	granularity := c.DefaultQuery("granularity", string(usecase.DefaultGranularity))
	days, err := strconv.Atoi(c.DefaultQuery("days", strconv.Itoa(usecase.DefaultGapDays)))
	if err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "days must be an integer"})
		return
	}

	report, err := h.uc.FindGaps(c.Request.Context(), instrument, granularity, days)
	if err != nil {
		c.JSON(httpStatus(err), dto.ErrorResponse{Error: err.Error()})
		return
	}

	c.JSON(http.StatusOK, dto.GapReportResponse{
		Instrument:  report.Instrument,
		Granularity: string(report.Granularity),
		Window:      toWindow(report.Window),
		Expected:    report.Expected,
		Missing:     report.Missing,
		Gaps:        toWindows(report.Gaps),
	})
}

// httpStatus はエラーの種類をHTTPステータスに対応付けます。
func httpStatus(err error) int {
	var ce *domain.ConfigurationError
	switch {
	case errors.As(err, &ce):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func toWindow(w entity.TimeWindow) dto.WindowResponse {
	return dto.WindowResponse{Start: formatTime(w.Start), End: formatTime(w.End)}
}

func toWindows(ws []entity.TimeWindow) []dto.WindowResponse {
	out := make([]dto.WindowResponse, 0, len(ws))
	for _, w := range ws {
		out = append(out, toWindow(w))
	}
	return out
}
