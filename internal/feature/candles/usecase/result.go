package usecase

import (
	"time"

	"ohlcv_ingest/internal/feature/candles/domain"
	"ohlcv_ingest/internal/feature/candles/domain/entity"
)

// Status は銘柄ごとの処理結果です。
type Status string

const (
	StatusSuccess   Status = "success"
	StatusNoNewData Status = "no_new_data"
	// StatusPartial は一部のデータを書き込んだ後に失敗した、不正な足を除外した、
	// または取得できなかった区間（Gaps）が残った場合です。
	StatusPartial   Status = "partial"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// InstrumentResult は1銘柄の処理結果です。
type InstrumentResult struct {
	Instrument  string
	Granularity entity.Granularity
	Window      entity.TimeWindow
	Status      Status
	Fetched     int
	Written     int
	Rejected    int
	// Gaps は取得できなかった、または書き込み後も欠損している区間です。
	Gaps []entity.TimeWindow
	// Checkpoint は処理後に確定している最新のタイムスタンプです。
	Checkpoint time.Time
	ErrKind    domain.ErrorKind
	Err        error
	Duration   time.Duration
}

// OK は新しいデータが無かった場合も含めて成功したかを返します。
func (r InstrumentResult) OK() bool {
	return r.Status == StatusSuccess || r.Status == StatusNoNewData
}

// RunResult は RunOnce 1回分の結果です。
type RunResult struct {
	RunID       string
	Mode        entity.Mode
	Granularity entity.Granularity
	StartedAt   time.Time
	Duration    time.Duration
	Results     []InstrumentResult
}

// Succeeded は成功した銘柄数を返します。
func (r RunResult) Succeeded() int {
	n := 0
	for _, ir := range r.Results {
		if ir.OK() {
			n++
		}
	}
	return n
}

// Failed は成功しなかった銘柄数を返します。
func (r RunResult) Failed() int {
	return len(r.Results) - r.Succeeded()
}

// TotalWritten は書き込んだ本数の合計を返します。
func (r RunResult) TotalWritten() int {
	n := 0
	for _, ir := range r.Results {
		n += ir.Written
	}
	return n
}

// Status は実行全体の状態を返します。
func (r RunResult) Status() string {
	if r.Failed() > 0 {
		return "completed_with_errors"
	}
	return "success"
}
