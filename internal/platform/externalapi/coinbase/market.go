package coinbase

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"ohlcv_ingest/internal/feature/candles/domain"
	"ohlcv_ingest/internal/feature/candles/domain/entity"
	"ohlcv_ingest/internal/feature/candles/usecase"
	"ohlcv_ingest/internal/platform/externalapi/coinbase/dto"
	"ohlcv_ingest/internal/shared/ratelimiter"
)

var granularityNames = map[entity.Granularity]string{
	entity.OneMinute:     "ONE_MINUTE",
	entity.FiveMinute:    "FIVE_MINUTE",
	entity.FifteenMinute: "FIFTEEN_MINUTE",
	entity.OneHour:       "ONE_HOUR",
	entity.FourHour:      "FOUR_HOUR",
	entity.OneDay:        "ONE_DAY",
}

// Market はCoinbaseの公開APIからローソク足を取得するExchangeAdapter実装です。
type Market struct {
	cfg     Config
	client  *http.Client
	limiter ratelimiter.RateLimiterInterface
}

// MarketがExchangeAdapterを実装していることをコンパイル時に検証します。
var (
	_ usecase.ExchangeAdapter = (*Market)(nil)
	_ usecase.PageLimiter     = (*Market)(nil)
)

// NewMarket は指定された設定とHTTPクライアントでMarketの新しいインスタンスを生成します。
func NewMarket(cfg Config, client *http.Client) *Market {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.PageLimit <= 0 || cfg.PageLimit > MaxPageLimit {
		cfg.PageLimit = MaxPageLimit
	}
	return &Market{
		cfg:     cfg,
		client:  client,
		limiter: ratelimiter.NewRateLimiter(cfg.RequestsPerSecond, time.Second),
	}
}

// PageLimit は1リクエストで取得できる最大本数を返します。
func (m *Market) PageLimit() int {
	return m.cfg.PageLimit
}

// NormalizeProductID は銘柄コードを "BASE-QUOTE" の大文字形式に揃えます。
func NormalizeProductID(instrument string) (string, error) {
	s := strings.ToUpper(strings.TrimSpace(instrument))
	base, quote, ok := strings.Cut(s, "-")
	if !ok || base == "" || quote == "" || strings.Contains(quote, "-") {
		return "", fmt.Errorf("instrument must be BASE-QUOTE (e.g. BTC-USD), got %q", instrument)
	}
	return s, nil
}

// FetchCandles は [start, end) のローソク足を最大 limit 本取得します。
// ネットワークエラー・429・5xx は一時的なエラー、それ以外の4xxや不正なレスポンスは恒久的なエラーとして返します。
func (m *Market) FetchCandles(ctx context.Context, instrument string, start, end time.Time, g entity.Granularity, limit int) ([]entity.Candle, error) {
	productID, err := NormalizeProductID(instrument)
	if err != nil {
		return nil, domain.NewPermanentError(0, err)
	}
	gname, ok := granularityNames[g]
	if !ok {
		return nil, domain.NewPermanentError(0, fmt.Errorf("unsupported granularity %q", g))
	}
	if limit <= 0 || limit > m.cfg.PageLimit {
		limit = m.cfg.PageLimit
	}

	if err := m.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("start", strconv.FormatInt(start.Unix(), 10))
	// end は取引所側では閉区間として扱われる
	q.Set("end", strconv.FormatInt(end.Unix()-1, 10))
	q.Set("granularity", gname)
	q.Set("limit", strconv.Itoa(limit))

	u := fmt.Sprintf("%s/products/%s/candles?%s", m.cfg.BaseURL, url.PathEscape(productID), q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, domain.NewPermanentError(0, err)
	}
	req.Header.Set("Accept", "application/json")

	res, err := m.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, domain.NewTransientError(0, err)
	}
	defer func() {
		if err := res.Body.Close(); err != nil {
			slog.Warn("failed to close response body", "error", err)
		}
	}()

	if res.StatusCode >= 400 {
		return nil, statusError(res)
	}

	var body dto.CandlesResponse
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return nil, domain.NewPermanentError(res.StatusCode, fmt.Errorf("decode candles: %w", err))
	}

	candles := make([]entity.Candle, 0, len(body.Candles))
	for _, v := range body.Candles {
		c, err := toCandle(productID, g, v.Start, v.Open, v.High, v.Low, v.Close, v.Volume)
		if err != nil {
			return nil, domain.NewPermanentError(res.StatusCode, err)
		}
		candles = append(candles, c)
	}
	slog.Debug("fetched candles", "product", productID, "granularity", g,
		"start", start.Format(time.RFC3339), "end", end.Format(time.RFC3339), "count", len(candles))
	return candles, nil
}

func statusError(res *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(res.Body, 1024))
	msg := strings.TrimSpace(string(raw))
	var er dto.ErrorResponse
	if json.Unmarshal(raw, &er) == nil && (er.Message != "" || er.Error != "") {
		msg = strings.TrimSpace(er.Error + " " + er.Message)
	}
	err := fmt.Errorf("coinbase http %d: %s", res.StatusCode, msg)

	switch {
	case res.StatusCode == http.StatusTooManyRequests,
		res.StatusCode == http.StatusRequestTimeout,
		res.StatusCode >= 500:
		return domain.NewTransientError(res.StatusCode, err)
	default:
		return domain.NewPermanentError(res.StatusCode, err)
	}
}

// toCandle は文字列の価格を decimal で解釈してドメインエンティティに変換します。
// 取引所は基軸通貨建ての出来高のみを返すため、決済通貨建ての出来高は volume × close で求めます。
func toCandle(productID string, g entity.Granularity, start, open, high, low, closePrice, volume string) (entity.Candle, error) {
	sec, err := strconv.ParseInt(start, 10, 64)
	if err != nil {
		return entity.Candle{}, fmt.Errorf("parse start %q: %w", start, err)
	}
	fields := map[string]string{"open": open, "high": high, "low": low, "close": closePrice, "volume": volume}
	parsed := make(map[string]decimal.Decimal, len(fields))
	for name, raw := range fields {
		d, err := decimal.NewFromString(raw)
		if err != nil {
			return entity.Candle{}, fmt.Errorf("parse %s %q: %w", name, raw, err)
		}
		parsed[name] = d
	}
	return entity.Candle{
		InstrumentID: productID,
		Granularity:  g,
		Time:         time.Unix(sec, 0).UTC(),
		Open:         parsed["open"].InexactFloat64(),
		High:         parsed["high"].InexactFloat64(),
		Low:          parsed["low"].InexactFloat64(),
		Close:        parsed["close"].InexactFloat64(),
		VolumeBase:   parsed["volume"].InexactFloat64(),
		VolumeQuote:  parsed["volume"].Mul(parsed["close"]).InexactFloat64(),
	}, nil
}
