// Package adapters はinstrumentsフィーチャーのリポジトリ実装を提供します。
package adapters

import (
	"context"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"ohlcv_ingest/internal/feature/instruments/domain/entity"
	"ohlcv_ingest/internal/feature/instruments/usecase"
)

// instrumentStore はInstrumentRepositoryインターフェースのgorm実装です。
type instrumentStore struct {
	db *gorm.DB
}

var _ usecase.InstrumentRepository = (*instrumentStore)(nil)

// NewInstrumentRepository は指定されたDB接続でinstrumentStoreの新しいインスタンスを生成します。
func NewInstrumentRepository(db *gorm.DB) *instrumentStore {
	return &instrumentStore{db: db}
}

// Migrate はinstrumentsテーブルを作成します。
func (r *instrumentStore) Migrate(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&entity.Instrument{})
}

// Register は銘柄を登録します。既に存在する場合は有効化し、並び順を更新します。
// codes の順序がそのまま sort_key になります。
func (r *instrumentStore) Register(ctx context.Context, codes ...string) error {
	rows := make([]entity.Instrument, 0, len(codes))
	for i, code := range codes {
		code = strings.ToUpper(strings.TrimSpace(code))
		base, quote, _ := strings.Cut(code, "-")
		rows = append(rows, entity.Instrument{Code: code, Base: base, Quote: quote, IsActive: true, SortKey: i})
	}
	if len(rows) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "code"}},
		DoUpdates: clause.AssignmentColumns([]string{"is_active", "sort_key", "updated_at"}),
	}).Create(&rows).Error
}

// ListActive はsort_key順にすべてのアクティブな銘柄を返します。
func (r *instrumentStore) ListActive(ctx context.Context) ([]entity.Instrument, error) {
	var instruments []entity.Instrument
	if err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("sort_key ASC").
		Find(&instruments).Error; err != nil {
		return nil, err
	}
	return instruments, nil
}

// ListActiveCodes はsort_key順にアクティブな銘柄のコードのみを返します。
func (r *instrumentStore) ListActiveCodes(ctx context.Context) ([]string, error) {
	var codes []string
	if err := r.db.WithContext(ctx).
		Model(&entity.Instrument{}).
		Where("is_active = ?", true).
		Order("sort_key ASC").
		Pluck("code", &codes).Error; err != nil {
		return nil, err
	}
	return codes, nil
}
