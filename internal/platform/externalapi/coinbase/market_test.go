package coinbase

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ohlcv_ingest/internal/feature/candles/domain"
	"ohlcv_ingest/internal/feature/candles/domain/entity"
)

func newTestMarket(t *testing.T, handler http.HandlerFunc) *Market {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return NewMarket(Config{BaseURL: server.URL, PageLimit: 300}, server.Client())
}

func TestNewMarket(t *testing.T) {
	t.Parallel()

	market := NewMarket(Config{PageLimit: 1000}, &http.Client{})

	require.NotNil(t, market)
	assert.Equal(t, DefaultBaseURL, market.cfg.BaseURL)
	assert.Equal(t, MaxPageLimit, market.PageLimit(), "page limit is capped")
}

func TestMarket_FetchCandles_Success(t *testing.T) {
	t.Parallel()

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(3 * time.Minute)

	market := newTestMarket(t, func(w http.ResponseWriter, r *http.Request) {
		// リクエストパラメータの検証
		assert.Equal(t, "/products/BTC-USD/candles", r.URL.Path)
		assert.Equal(t, "1704067200", r.URL.Query().Get("start"))
		assert.Equal(t, "1704067379", r.URL.Query().Get("end"))
		assert.Equal(t, "ONE_MINUTE", r.URL.Query().Get("granularity"))
		assert.Equal(t, "3", r.URL.Query().Get("limit"))

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		// 取引所は新しい順に返す
		_, _ = w.Write([]byte(`{
			"candles": [
				{"start": "1704067320", "low": "42010.5", "high": "42100", "open": "42050.25", "close": "42090", "volume": "1.5"},
				{"start": "1704067260", "low": "41990", "high": "42060", "open": "42000", "close": "42050.25", "volume": "0.25"},
				{"start": "1704067200", "low": "41950", "high": "42010", "open": "41980", "close": "42000", "volume": "2"}
			]
		}`))
	})

	candles, err := market.FetchCandles(context.Background(), "btc-usd", start, end, entity.OneMinute, 3)
	require.NoError(t, err)
	require.Len(t, candles, 3)

	first := candles[0]
	assert.Equal(t, "BTC-USD", first.InstrumentID)
	assert.Equal(t, entity.OneMinute, first.Granularity)
	assert.Equal(t, start.Add(2*time.Minute), first.Time)
	assert.Equal(t, 42050.25, first.Open)
	assert.Equal(t, 42100.0, first.High)
	assert.Equal(t, 42010.5, first.Low)
	assert.Equal(t, 42090.0, first.Close)
	assert.Equal(t, 1.5, first.VolumeBase)
	assert.Equal(t, 63135.0, first.VolumeQuote)
	assert.NoError(t, first.Validate())
}

func TestMarket_FetchCandles_EmptyResponse(t *testing.T) {
	t.Parallel()

	market := newTestMarket(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"candles": []}`))
	})

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	candles, err := market.FetchCandles(context.Background(), "ETH-USD", start, start.Add(time.Hour), entity.OneHour, 10)
	require.NoError(t, err)
	assert.Empty(t, candles)
}

func TestMarket_FetchCandles_HTTPError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		statusCode int
		body       string
		wantKind   domain.AdapterKind
	}{
		{"bad request", http.StatusBadRequest, `{"error":"INVALID_ARGUMENT","message":"start must be before end"}`, domain.Permanent},
		{"unauthorized", http.StatusUnauthorized, `{"error":"UNAUTHENTICATED"}`, domain.Permanent},
		{"not found", http.StatusNotFound, `{"error":"NOT_FOUND","message":"product not found"}`, domain.Permanent},
		{"rate limited", http.StatusTooManyRequests, `{"error":"RESOURCE_EXHAUSTED"}`, domain.Transient},
		{"internal server error", http.StatusInternalServerError, `oops`, domain.Transient},
		{"service unavailable", http.StatusServiceUnavailable, ``, domain.Transient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			market := newTestMarket(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.statusCode)
				_, _ = w.Write([]byte(tt.body))
			})

			start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
			_, err := market.FetchCandles(context.Background(), "BTC-USD", start, start.Add(time.Hour), entity.OneMinute, 60)

			var ae *domain.AdapterError
			require.True(t, errors.As(err, &ae), "expected AdapterError, got %v", err)
			assert.Equal(t, tt.wantKind, ae.Kind)
			assert.Equal(t, tt.statusCode, ae.Status)
			assert.Equal(t, tt.wantKind == domain.Transient, domain.IsTransient(err))
		})
	}
}

func TestMarket_FetchCandles_MalformedBody(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{"candles": [`},
		{"invalid price", `{"candles": [{"start": "1704067200", "low": "x", "high": "1", "open": "1", "close": "1", "volume": "1"}]}`},
		{"invalid start", `{"candles": [{"start": "yesterday", "low": "1", "high": "1", "open": "1", "close": "1", "volume": "1"}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			market := newTestMarket(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			})

			start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
			_, err := market.FetchCandles(context.Background(), "BTC-USD", start, start.Add(time.Minute), entity.OneMinute, 1)

			require.Error(t, err)
			assert.False(t, domain.IsTransient(err), "malformed responses are not retried")
		})
	}
}

func TestMarket_FetchCandles_NetworkErrorIsTransient(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	market := NewMarket(Config{BaseURL: url}, &http.Client{Timeout: time.Second})
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	_, err := market.FetchCandles(context.Background(), "BTC-USD", start, start.Add(time.Minute), entity.OneMinute, 1)

	var ae *domain.AdapterError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, domain.Transient, ae.Kind)
}

func TestMarket_FetchCandles_InvalidInstrument(t *testing.T) {
	t.Parallel()

	called := false
	market := newTestMarket(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
	})

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	_, err := market.FetchCandles(context.Background(), "BTCUSD", start, start.Add(time.Minute), entity.OneMinute, 1)

	assert.Equal(t, domain.KindPermanent, domain.KindOf(err))
	assert.False(t, called, "no request should be sent")
}

func TestNormalizeProductID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "btc-usd", want: "BTC-USD"},
		{in: " ETH-USDC ", want: "ETH-USDC"},
		{in: "BTC", wantErr: true},
		{in: "-USD", wantErr: true},
		{in: "BTC-", wantErr: true},
		{in: "BTC-USD-X", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, err := NormalizeProductID(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
