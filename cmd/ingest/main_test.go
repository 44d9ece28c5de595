package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ohlcv_ingest/internal/feature/candles/domain"
	"ohlcv_ingest/internal/feature/candles/domain/entity"
	"ohlcv_ingest/internal/feature/candles/usecase"
)

func TestParseMode(t *testing.T) {
	t.Parallel()

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		kind    string
		days    int
		start   string
		end     string
		want    entity.Mode
		wantErr bool
		valid   bool
	}{
		{name: "append", kind: "append", want: entity.AppendLatest(), valid: true},
		{name: "backfill", kind: "Backfill", days: 30, want: entity.BackfillDays(30), valid: true},
		{name: "range", kind: "range", start: "2024-01-01T00:00:00Z", end: "2024-01-02T00:00:00Z",
			want: entity.ExplicitRange(start, end), valid: true},
		{name: "repair", kind: "repair", days: 7, want: entity.RepairDays(7), valid: true},
		{name: "bad start", kind: "range", start: "yesterday", end: "2024-01-02T00:00:00Z", wantErr: true},
		// 組み合わせの誤りはパースでは通り、ユースケースの検証で弾かれる
		{name: "days with range", kind: "backfill", days: 1, start: "2024-01-01T00:00:00Z", end: "2024-01-02T00:00:00Z",
			want: entity.Mode{Kind: entity.ModeBackfill, Days: 1, Start: start, End: end}},
		{name: "unknown kind", kind: "stream", want: entity.Mode{Kind: "stream"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			m, err := parseMode(tt.kind, tt.days, tt.start, tt.end)
			if tt.wantErr {
				assert.Equal(t, domain.KindConfiguration, domain.KindOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, m)

			verr := usecase.ValidateMode(m, entity.OneHour)
			if tt.valid {
				assert.NoError(t, verr)
			} else {
				assert.Equal(t, domain.KindConfiguration, domain.KindOf(verr))
			}
		})
	}
}

func TestParseGranularities(t *testing.T) {
	t.Parallel()

	got, err := parseGranularities("1m, 1H,,1d")
	require.NoError(t, err)
	assert.Equal(t, []entity.Granularity{entity.OneMinute, entity.OneHour, entity.OneDay}, got)

	_, err = parseGranularities("3m")
	assert.Equal(t, domain.KindConfiguration, domain.KindOf(err))

	_, err = parseGranularities(" , ")
	assert.Equal(t, domain.KindConfiguration, domain.KindOf(err))
}
