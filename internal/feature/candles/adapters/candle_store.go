package adapters

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"ohlcv_ingest/internal/feature/candles/domain"
	"ohlcv_ingest/internal/feature/candles/domain/entity"
	"ohlcv_ingest/internal/feature/candles/usecase"
)

// insertBatchSize は1回のINSERT文に含める最大行数です。
const insertBatchSize = 200

type candleStore struct {
	db *gorm.DB
}

var (
	_ usecase.CandleStore      = (*candleStore)(nil)
	_ usecase.CandleRepository = (*candleStore)(nil)
)

// NewCandleStore は時間足ごとのテーブルにローソク足を保存するストアを生成します。
func NewCandleStore(db *gorm.DB) *candleStore {
	return &candleStore{db: db}
}

// BarModel は bars_<granularity>_spot テーブルの1行です。
// (instrument_id, ts) が主キーで、同じキーへの書き込みは上書きされます。
type BarModel struct {
	InstrumentID string    `gorm:"column:instrument_id;primaryKey;size:32"`
	Ts           time.Time `gorm:"column:ts;primaryKey"`

	Open        float64 `gorm:"not null"`
	High        float64 `gorm:"not null"`
	Low         float64 `gorm:"not null"`
	Close       float64 `gorm:"not null"`
	VolumeBase  float64 `gorm:"column:volume_base;not null;default:0"`
	VolumeQuote float64 `gorm:"column:volume_quote;not null;default:0"`
}

func toModel(e entity.Candle) BarModel {
	return BarModel{
		InstrumentID: e.InstrumentID,
		Ts:           e.Time.UTC(),
		Open:         e.Open,
		High:         e.High,
		Low:          e.Low,
		Close:        e.Close,
		VolumeBase:   e.VolumeBase,
		VolumeQuote:  e.VolumeQuote,
	}
}

func toEntity(m BarModel, g entity.Granularity) entity.Candle {
	return entity.Candle{
		InstrumentID: m.InstrumentID,
		Granularity:  g,
		Time:         m.Ts.UTC(),
		Open:         m.Open,
		High:         m.High,
		Low:          m.Low,
		Close:        m.Close,
		VolumeBase:   m.VolumeBase,
		VolumeQuote:  m.VolumeQuote,
	}
}

// Migrate は全ての時間足のテーブルを作成します。
func (r *candleStore) Migrate(ctx context.Context) error {
	for _, g := range entity.Granularities {
		if err := r.db.WithContext(ctx).Table(g.Table()).AutoMigrate(&BarModel{}); err != nil {
			return fmt.Errorf("migrate %s: %w", g.Table(), err)
		}
	}
	return nil
}

// WriteBatch は1つの系列（銘柄×時間足）のバッチを1トランザクションで書き込みます。
// コミットが完了した場合のみ成功を返し、失敗時は何も書き込まれていません。
func (r *candleStore) WriteBatch(ctx context.Context, candles []entity.Candle) (usecase.CommitResult, error) {
	if len(candles) == 0 {
		return usecase.CommitResult{}, nil
	}
	first := candles[0]
	if !first.Granularity.Valid() {
		return usecase.CommitResult{}, &domain.StorageError{Op: "write", Err: fmt.Errorf("unknown granularity %q", first.Granularity)}
	}
	table := first.Granularity.Table()

	ms := make([]BarModel, 0, len(candles))
	earliest, last := first.Time, first.Time
	for _, c := range candles {
		if c.InstrumentID != first.InstrumentID || c.Granularity != first.Granularity {
			return usecase.CommitResult{}, &domain.StorageError{Op: "write", Table: table,
				Err: fmt.Errorf("batch mixes series %s/%s and %s/%s", first.InstrumentID, first.Granularity, c.InstrumentID, c.Granularity)}
		}
		if c.Time.Before(earliest) {
			earliest = c.Time
		}
		if c.Time.After(last) {
			last = c.Time
		}
		ms = append(ms, toModel(c))
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Table(table).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "instrument_id"}, {Name: "ts"}},
			DoUpdates: clause.AssignmentColumns([]string{"open", "high", "low", "close", "volume_base", "volume_quote"}),
		}).CreateInBatches(&ms, insertBatchSize).Error
	})
	if err != nil {
		return usecase.CommitResult{}, classify("write", table, err)
	}

	return usecase.CommitResult{
		InstrumentID: first.InstrumentID,
		Granularity:  first.Granularity,
		Table:        table,
		Rows:         len(ms),
		First:        earliest.UTC(),
		Last:         last.UTC(),
	}, nil
}

// LatestTimestamp は保存済みの最新タイムスタンプを返します。
func (r *candleStore) LatestTimestamp(ctx context.Context, instrument string, g entity.Granularity) (time.Time, bool, error) {
	var m BarModel
	err := r.db.WithContext(ctx).Table(g.Table()).
		Select("ts").
		Where("instrument_id = ?", instrument).
		Order("ts DESC").
		Take(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, classify("latest", g.Table(), err)
	}
	return m.Ts.UTC(), true, nil
}

// ExistingTimestamps は window 内に保存されているタイムスタンプを昇順で返します。
func (r *candleStore) ExistingTimestamps(ctx context.Context, instrument string, g entity.Granularity, window entity.TimeWindow) ([]time.Time, error) {
	var rows []BarModel
	err := r.db.WithContext(ctx).Table(g.Table()).
		Select("ts").
		Where("instrument_id = ? AND ts >= ? AND ts < ?", instrument, window.Start.UTC(), window.End.UTC()).
		Order("ts").
		Find(&rows).Error
	if err != nil {
		return nil, classify("timestamps", g.Table(), err)
	}
	out := make([]time.Time, 0, len(rows))
	for _, m := range rows {
		out = append(out, m.Ts.UTC())
	}
	return out, nil
}

// Find は新しい順に最大 limit 本のローソク足を返します。limit が0以下の場合は全件です。
func (r *candleStore) Find(ctx context.Context, instrument string, g entity.Granularity, limit int) ([]entity.Candle, error) {
	var rows []BarModel
	q := r.db.WithContext(ctx).Table(g.Table()).
		Where("instrument_id = ?", instrument).
		Order("ts DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, classify("find", g.Table(), err)
	}
	out := make([]entity.Candle, 0, len(rows))
	for _, m := range rows {
		out = append(out, toEntity(m, g))
	}
	return out, nil
}

// transientSQLStates は再試行で回復しうるSQLSTATEのクラスです。
// 08: connection exception, 40: transaction rollback, 53: insufficient resources, 57: operator intervention
var transientSQLStates = []string{"08", "40", "53", "57"}

func classify(op, table string, err error) error {
	se := &domain.StorageError{Op: op, Table: table, Err: err}
	var pgErr *pgconn.PgError
	switch {
	case errors.Is(err, context.Canceled):
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, driver.ErrBadConn):
		se.Transient = true
	case errors.As(err, &pgErr):
		for _, cls := range transientSQLStates {
			if strings.HasPrefix(pgErr.Code, cls) {
				se.Transient = true
				break
			}
		}
	case pgconn.SafeToRetry(err), pgconn.Timeout(err):
		se.Transient = true
	default:
		msg := strings.ToLower(err.Error())
		se.Transient = strings.Contains(msg, "database is locked") ||
			strings.Contains(msg, "database table is locked") ||
			strings.Contains(msg, "connection refused")
	}
	return se
}
