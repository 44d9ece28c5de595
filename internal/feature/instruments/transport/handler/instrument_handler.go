// Package handler はinstrumentsフィーチャーのHTTPハンドラーを提供します。
package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"ohlcv_ingest/internal/feature/instruments/domain/entity"
	"ohlcv_ingest/internal/feature/instruments/transport/http/dto"
)

// InstrumentUsecase は銘柄情報に関するユースケースのインターフェースです。
type InstrumentUsecase interface {
	ListActiveInstruments(ctx context.Context) ([]entity.Instrument, error)
}

// InstrumentHandler は銘柄情報に関するHTTPリクエストを処理します。
type InstrumentHandler struct {
	uc InstrumentUsecase
}

// NewInstrumentHandler は新しい InstrumentHandler を作成します。
func NewInstrumentHandler(uc InstrumentUsecase) *InstrumentHandler {
	return &InstrumentHandler{uc: uc}
}

// List はインジェスト対象の銘柄一覧を返します。
// Usecaseでエラーが発生した場合は500 Internal Server Errorを返します。
func (h *InstrumentHandler) List(c *gin.Context) {
	instruments, err := h.uc.ListActiveInstruments(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	out := make([]dto.InstrumentItem, 0, len(instruments))
	for _, s := range instruments {
		out = append(out, dto.InstrumentItem{Code: s.Code, Base: s.Base, Quote: s.Quote})
	}
	c.JSON(http.StatusOK, out)
}
