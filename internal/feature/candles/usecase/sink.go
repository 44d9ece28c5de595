package usecase

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"ohlcv_ingest/internal/feature/candles/domain/entity"
)

// CommitResult はストアが確定したバッチの内容です。
type CommitResult struct {
	InstrumentID string
	Granularity  entity.Granularity
	Table        string
	Rows         int
	First        time.Time
	Last         time.Time
}

// CommitSink はバッチ確定後に呼び出されるフックです。
// 失敗してもインジェストは止まらず、ログに記録されるだけです。
type CommitSink interface {
	OnCommit(ctx context.Context, cr CommitResult) error
}

// LogSink は確定したバッチをログに出力するだけのシンクです。
// 下流への配信（メッセージングなど）を差し込む位置になります。
type LogSink struct{}

func (LogSink) OnCommit(_ context.Context, cr CommitResult) error {
	slog.Info("batch committed", "instrument", cr.InstrumentID, "granularity", cr.Granularity,
		"table", cr.Table, "rows", cr.Rows, "first", cr.First.Format(time.RFC3339), "last", cr.Last.Format(time.RFC3339))
	return nil
}

// MultiSink は全てのシンクを順に呼び出し、発生したエラーをまとめて返します。
type MultiSink []CommitSink

func (m MultiSink) OnCommit(ctx context.Context, cr CommitResult) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.OnCommit(ctx, cr); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
