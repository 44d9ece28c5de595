// Package config はインジェストの実行設定を読み込みます。
// 値はデフォルト < YAMLファイル < 環境変数（INGEST_ プレフィックス）の順に上書きされます。
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"ohlcv_ingest/internal/feature/candles/domain"
	"ohlcv_ingest/internal/feature/candles/domain/entity"
	"ohlcv_ingest/internal/feature/candles/usecase"
)

const envPrefix = "INGEST"

// Fetch はページ取得の設定です。
type Fetch struct {
	PageLimit   int           `mapstructure:"page_limit"`
	PageTimeout time.Duration `mapstructure:"page_timeout"`
	MaxRetries  uint          `mapstructure:"max_retries"`
	BaseDelay   time.Duration `mapstructure:"base_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
}

// Storage は書き込みの設定です。
type Storage struct {
	WriteChunkSize int           `mapstructure:"write_chunk_size"`
	Retries        uint          `mapstructure:"retries"`
	BaseDelay      time.Duration `mapstructure:"base_delay"`
	MaxDelay       time.Duration `mapstructure:"max_delay"`
	Migrate        bool          `mapstructure:"migrate"`
}

// Window は取得範囲の決定に関する設定です。
type Window struct {
	MaxCatchUp time.Duration `mapstructure:"max_catch_up"`
	LagWarn    time.Duration `mapstructure:"lag_warn"`
	// UseDefaultLookbacks が true の場合、空のストアでは時間足ごとの既定の期間を遡って取得します。
	UseDefaultLookbacks bool `mapstructure:"use_default_lookbacks"`
	// InitialLookback は時間足ごとの初回取得期間です（例: {"1h": "720h"}）。
	InitialLookback map[string]time.Duration `mapstructure:"initial_lookback"`
}

// Schedule は定期実行の設定です。
type Schedule struct {
	Interval       time.Duration `mapstructure:"interval"`
	Offset         time.Duration `mapstructure:"offset"`
	RunImmediately bool          `mapstructure:"run_immediately"`
}

// Log はログ出力の設定です。
type Log struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Ingest はインジェスト全体の設定です。
type Ingest struct {
	// Symbols が空の場合は instruments テーブルの有効な銘柄を使います。
	Symbols           []string      `mapstructure:"symbols"`
	Granularities     []string      `mapstructure:"granularities"`
	Workers           int           `mapstructure:"workers"`
	InstrumentTimeout time.Duration `mapstructure:"instrument_timeout"`
	ValidateGaps      bool          `mapstructure:"validate_gaps"`
	HTTPAddr          string        `mapstructure:"http_addr"`

	Fetch    Fetch    `mapstructure:"fetch"`
	Storage  Storage  `mapstructure:"storage"`
	Window   Window   `mapstructure:"window"`
	Schedule Schedule `mapstructure:"schedule"`
	Log      Log      `mapstructure:"log"`

	granularities []entity.Granularity
	lookbacks     map[entity.Granularity]time.Duration
}

func setDefaults(v *viper.Viper) {
	def := usecase.DefaultIngestConfig()
	fetch := usecase.DefaultFetcherConfig()

	v.SetDefault("symbols", []string{})
	v.SetDefault("granularities", []string{"1m"})
	v.SetDefault("workers", def.Workers)
	v.SetDefault("instrument_timeout", def.InstrumentTimeout)
	v.SetDefault("validate_gaps", def.ValidateGaps)
	v.SetDefault("http_addr", ":8080")

	v.SetDefault("fetch.page_limit", 0) // 0 はアダプタの上限に従う
	v.SetDefault("fetch.page_timeout", fetch.PageTimeout)
	v.SetDefault("fetch.max_retries", fetch.MaxRetries)
	v.SetDefault("fetch.base_delay", fetch.BaseDelay)
	v.SetDefault("fetch.max_delay", fetch.MaxDelay)

	v.SetDefault("storage.write_chunk_size", def.WriteChunkSize)
	v.SetDefault("storage.retries", def.StorageRetries)
	v.SetDefault("storage.base_delay", def.StorageBaseDelay)
	v.SetDefault("storage.max_delay", def.StorageMaxDelay)
	v.SetDefault("storage.migrate", false)

	v.SetDefault("window.max_catch_up", usecase.DefaultMaxCatchUp)
	v.SetDefault("window.lag_warn", usecase.DefaultLagWarn)
	v.SetDefault("window.use_default_lookbacks", false)
	v.SetDefault("window.initial_lookback", map[string]any{})

	v.SetDefault("schedule.interval", time.Minute)
	v.SetDefault("schedule.offset", 5*time.Second)
	v.SetDefault("schedule.run_immediately", false)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// LoadDotEnv は .env ファイルを読み込みます。既存の環境変数は上書きしません。
// ENV_FILE が設定されている場合はそのファイルを使います。ファイルが無い場合は何もしません。
func LoadDotEnv() {
	path := os.Getenv("ENV_FILE")
	if path == "" {
		path = ".env"
	}
	_ = godotenv.Load(path)
}

// Load は設定を読み込んで検証します。path が空の場合はファイルを読みません。
func Load(path string) (*Ingest, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file failed (%s): %w", path, err)
		}
	}

	var cfg Ingest
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.WeaklyTypedInput = true
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}); err != nil {
		return nil, fmt.Errorf("parsing config failed: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Ingest) validate() error {
	c.Symbols = cleanList(c.Symbols, strings.ToUpper)
	names := cleanList(c.Granularities, strings.ToLower)
	if len(names) == 0 {
		return domain.NewConfigurationError("granularities", "at least one granularity is required")
	}
	c.granularities = c.granularities[:0]
	seen := make(map[entity.Granularity]bool, len(names))
	for _, name := range names {
		g, err := entity.ParseGranularity(name)
		if err != nil {
			return domain.NewConfigurationError("granularities", "%v", err)
		}
		if !seen[g] {
			seen[g] = true
			c.granularities = append(c.granularities, g)
		}
	}

	switch {
	case c.Workers < 1:
		return domain.NewConfigurationError("workers", "must be at least 1, got %d", c.Workers)
	case c.InstrumentTimeout <= 0:
		return domain.NewConfigurationError("instrument_timeout", "must be positive, got %s", c.InstrumentTimeout)
	case c.Fetch.PageLimit < 0:
		return domain.NewConfigurationError("fetch.page_limit", "must not be negative, got %d", c.Fetch.PageLimit)
	case c.Fetch.PageTimeout <= 0:
		return domain.NewConfigurationError("fetch.page_timeout", "must be positive, got %s", c.Fetch.PageTimeout)
	case c.Storage.WriteChunkSize < 1:
		return domain.NewConfigurationError("storage.write_chunk_size", "must be at least 1, got %d", c.Storage.WriteChunkSize)
	case c.Window.MaxCatchUp < 0:
		return domain.NewConfigurationError("window.max_catch_up", "must not be negative, got %s", c.Window.MaxCatchUp)
	case c.Schedule.Interval <= 0:
		return domain.NewConfigurationError("schedule.interval", "must be positive, got %s", c.Schedule.Interval)
	case c.Schedule.Offset < 0 || c.Schedule.Offset >= c.Schedule.Interval:
		return domain.NewConfigurationError("schedule.offset", "must be within [0, %s), got %s", c.Schedule.Interval, c.Schedule.Offset)
	}

	c.lookbacks = make(map[entity.Granularity]time.Duration)
	if c.Window.UseDefaultLookbacks {
		for g, d := range usecase.EmptyStoreLookbacks {
			c.lookbacks[g] = d
		}
	}
	for name, d := range c.Window.InitialLookback {
		g, err := entity.ParseGranularity(name)
		if err != nil {
			return domain.NewConfigurationError("window.initial_lookback", "%v", err)
		}
		if d < 0 {
			return domain.NewConfigurationError("window.initial_lookback", "%s: must not be negative, got %s", g, d)
		}
		c.lookbacks[g] = d
	}
	return nil
}

// GranularityList は検証済みの時間足を設定順に返します。
func (c *Ingest) GranularityList() []entity.Granularity {
	return append([]entity.Granularity(nil), c.granularities...)
}

// IngestConfig はユースケースの実行設定に変換します。
func (c *Ingest) IngestConfig() usecase.IngestConfig {
	return usecase.IngestConfig{
		Workers:           c.Workers,
		WriteChunkSize:    c.Storage.WriteChunkSize,
		InstrumentTimeout: c.InstrumentTimeout,
		ValidateGaps:      c.ValidateGaps,
		StorageRetries:    c.Storage.Retries,
		StorageBaseDelay:  c.Storage.BaseDelay,
		StorageMaxDelay:   c.Storage.MaxDelay,
	}
}

// FetcherConfig はBatchFetcherの設定に変換します。
func (c *Ingest) FetcherConfig() usecase.FetcherConfig {
	return usecase.FetcherConfig{
		PageLimit:   c.Fetch.PageLimit,
		PageTimeout: c.Fetch.PageTimeout,
		MaxRetries:  c.Fetch.MaxRetries,
		BaseDelay:   c.Fetch.BaseDelay,
		MaxDelay:    c.Fetch.MaxDelay,
	}
}

// NewWindowResolver は設定を反映したWindowResolverを生成します。
func (c *Ingest) NewWindowResolver(nowFn func() time.Time) *usecase.WindowResolver {
	r := usecase.NewWindowResolver(nowFn)
	r.MaxCatchUp = c.Window.MaxCatchUp
	if c.Window.LagWarn > 0 {
		r.LagWarn = c.Window.LagWarn
	}
	for g, d := range c.lookbacks {
		r.InitialLookback[g] = d
	}
	return r
}

func cleanList(in []string, norm func(string) string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		// 環境変数からの値は "a,b" のように1要素にまとまっている場合がある
		for _, part := range strings.Split(s, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, norm(p))
			}
		}
	}
	return out
}
