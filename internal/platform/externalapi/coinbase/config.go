// Package coinbase はCoinbase Advanced Tradeの公開マーケットデータAPIのクライアントを提供します。
package coinbase

import (
	"os"
	"strconv"
	"time"
)

const (
	// DefaultBaseURL は公開エンドポイントのベースURLです。認証は不要です。
	DefaultBaseURL = "https://api.coinbase.com/api/v3/brokerage/market"
	// MaxPageLimit は1リクエストで取得できる最大本数です。
	MaxPageLimit = 350
	// DefaultRequestsPerSecond は公開エンドポイントのレート制限に合わせた既定値です。
	DefaultRequestsPerSecond = 10
)

// Config はCoinbase APIクライアントの設定を保持します。
type Config struct {
	BaseURL           string        // APIのベースURL
	Timeout           time.Duration // HTTPリクエストタイムアウト
	PageLimit         int           // 1リクエストあたりの最大本数（MaxPageLimit以下）
	RequestsPerSecond int           // 1秒あたりの最大リクエスト数（0以下で無制限）
}

// LoadConfig は環境変数からCoinbaseの設定を読み込みます。
func LoadConfig() Config {
	cfg := Config{
		BaseURL:           os.Getenv("COINBASE_BASE_URL"),
		Timeout:           10 * time.Second,
		PageLimit:         MaxPageLimit,
		RequestsPerSecond: DefaultRequestsPerSecond,
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if v, err := strconv.Atoi(os.Getenv("COINBASE_REQUESTS_PER_SECOND")); err == nil {
		cfg.RequestsPerSecond = v
	}
	if v, err := strconv.Atoi(os.Getenv("COINBASE_PAGE_LIMIT")); err == nil && v > 0 && v <= MaxPageLimit {
		cfg.PageLimit = v
	}
	return cfg
}
