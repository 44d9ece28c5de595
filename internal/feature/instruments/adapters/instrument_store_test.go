package adapters

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"ohlcv_ingest/internal/feature/instruments/domain/entity"
)

// setupTestDB はテスト用のインメモリSQLiteデータベースを準備します。
func setupTestDB(t *testing.T) (*gorm.DB, *instrumentStore) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err, "failed to initialize test database")
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	repo := NewInstrumentRepository(db)
	require.NoError(t, repo.Migrate(context.Background()), "failed to migrate table")

	return db, repo
}

// deactivate は銘柄のis_activeフィールドを無効にします。
// default:true のカラムはゼロ値でINSERTできないため、作成後に更新します。
func deactivate(t *testing.T, db *gorm.DB, code string) {
	t.Helper()
	err := db.Model(&entity.Instrument{}).Where("code = ?", code).Update("is_active", false).Error
	require.NoError(t, err, "failed to update instrument active status")
}

func TestInstrumentStore_ListActiveCodes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		setupFunc     func(t *testing.T, db *gorm.DB, repo *instrumentStore)
		expectedCodes []string
	}{
		{
			name: "success: returns codes in registration order",
			setupFunc: func(t *testing.T, db *gorm.DB, repo *instrumentStore) {
				require.NoError(t, repo.Register(context.Background(), "eth-usd", "BTC-USD", " sol-usd "))
			},
			expectedCodes: []string{"ETH-USD", "BTC-USD", "SOL-USD"},
		},
		{
			name: "success: excludes inactive instruments",
			setupFunc: func(t *testing.T, db *gorm.DB, repo *instrumentStore) {
				require.NoError(t, repo.Register(context.Background(), "BTC-USD", "ETH-USD", "SOL-USD"))
				deactivate(t, db, "ETH-USD")
			},
			expectedCodes: []string{"BTC-USD", "SOL-USD"},
		},
		{
			name: "success: registering again reactivates and reorders",
			setupFunc: func(t *testing.T, db *gorm.DB, repo *instrumentStore) {
				require.NoError(t, repo.Register(context.Background(), "BTC-USD", "ETH-USD"))
				deactivate(t, db, "ETH-USD")
				require.NoError(t, repo.Register(context.Background(), "ETH-USD", "BTC-USD"))
			},
			expectedCodes: []string{"ETH-USD", "BTC-USD"},
		},
		{
			name:          "success: returns empty list when nothing is registered",
			setupFunc:     func(t *testing.T, db *gorm.DB, repo *instrumentStore) {},
			expectedCodes: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			db, repo := setupTestDB(t)
			tt.setupFunc(t, db, repo)

			codes, err := repo.ListActiveCodes(context.Background())

			require.NoError(t, err)
			if len(tt.expectedCodes) == 0 {
				assert.Empty(t, codes)
			} else {
				assert.Equal(t, tt.expectedCodes, codes)
			}
		})
	}
}

// TestInstrumentStore_ListActive_FieldValues はListActiveが返す銘柄の全フィールド値が正しいことを検証します。
func TestInstrumentStore_ListActive_FieldValues(t *testing.T) {
	t.Parallel()

	_, repo := setupTestDB(t)
	require.NoError(t, repo.Register(context.Background(), "BTC-USD"))

	instruments, err := repo.ListActive(context.Background())

	require.NoError(t, err)
	require.Len(t, instruments, 1)

	got := instruments[0]
	assert.NotZero(t, got.ID)
	assert.Equal(t, "BTC-USD", got.Code)
	assert.Equal(t, "BTC", got.Base)
	assert.Equal(t, "USD", got.Quote)
	assert.True(t, got.IsActive)
	assert.Equal(t, 0, got.SortKey)
	assert.False(t, got.UpdatedAt.IsZero(), "UpdatedAt should be set")
}

func TestInstrumentStore_RegisterNothing(t *testing.T) {
	t.Parallel()

	_, repo := setupTestDB(t)
	assert.NoError(t, repo.Register(context.Background()))
}
