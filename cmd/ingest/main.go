// Command ingest は1回限りのインジェストを実行します。
//
//	ingest -mode append                      チェックポイントから現在まで
//	ingest -mode backfill -days 30           直近30日を再取得
//	ingest -mode range -start ... -end ...   指定範囲（RFC3339）
//	ingest -mode repair -days 7              直近7日の欠損区間のみ取得
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"ohlcv_ingest/internal/app/config"
	"ohlcv_ingest/internal/app/di"
	"ohlcv_ingest/internal/feature/candles/domain"
	"ohlcv_ingest/internal/feature/candles/domain/entity"
	"ohlcv_ingest/internal/platform/logging"
)

const (
	exitOK = iota
	exitFatal
	exitPartial
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		configPath  = flag.String("config", os.Getenv("INGEST_CONFIG"), "path to a YAML config file")
		mode        = flag.String("mode", string(entity.ModeAppend), "append | backfill | range | repair")
		days        = flag.Int("days", 0, "number of days for backfill/repair")
		start       = flag.String("start", "", "range start (RFC3339)")
		end         = flag.String("end", "", "range end (RFC3339)")
		granularity = flag.String("granularity", "", "comma separated granularities (default: config)")
		symbols     = flag.String("symbols", "", "comma separated instruments (default: config or registry)")
	)
	flag.Parse()

	config.LoadDotEnv()
	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		return exitFatal
	}
	logging.Setup(os.Stderr, "ingest", cfg.Log.Level, cfg.Log.Format)

	m, err := parseMode(*mode, *days, *start, *end)
	if err != nil {
		slog.Error("invalid arguments", "error", err)
		return exitFatal
	}
	granularities := cfg.GranularityList()
	if *granularity != "" {
		if granularities, err = parseGranularities(*granularity); err != nil {
			slog.Error("invalid arguments", "error", err)
			return exitFatal
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := di.NewApp(ctx, cfg)
	if err != nil {
		slog.Error("failed to initialize", "error", err)
		return exitFatal
	}
	defer app.Close()

	configured := cfg.Symbols
	if *symbols != "" {
		configured = strings.Split(*symbols, ",")
	}
	instruments, err := app.ResolveInstruments(ctx, configured)
	if err != nil {
		slog.Error("failed to load instruments", "error", err)
		return exitFatal
	}

	code := exitOK
	for _, g := range granularities {
		result, err := app.Ingest.RunOnce(ctx, m, instruments, g)
		if err != nil {
			slog.Error("ingest aborted", "granularity", g, "kind", domain.KindOf(err), "error", err)
			return exitFatal
		}
		di.LogRun(result)
		if result.Failed() > 0 {
			code = exitPartial
		}
		if ctx.Err() != nil {
			slog.Warn("interrupted; remaining granularities skipped")
			break
		}
	}
	return code
}

// parseMode はフラグから実行モードを組み立てます。組み合わせの検証はユースケースで行います。
func parseMode(kind string, days int, start, end string) (entity.Mode, error) {
	m := entity.Mode{Kind: entity.ModeKind(strings.ToLower(strings.TrimSpace(kind))), Days: days}
	var err error
	if start != "" {
		if m.Start, err = time.Parse(time.RFC3339, start); err != nil {
			return m, domain.NewConfigurationError("start", "%v", err)
		}
	}
	if end != "" {
		if m.End, err = time.Parse(time.RFC3339, end); err != nil {
			return m, domain.NewConfigurationError("end", "%v", err)
		}
	}
	return m, nil
}

func parseGranularities(s string) ([]entity.Granularity, error) {
	var out []entity.Granularity
	for _, part := range strings.Split(s, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		g, err := entity.ParseGranularity(part)
		if err != nil {
			return nil, domain.NewConfigurationError("granularity", "%v", err)
		}
		out = append(out, g)
	}
	if len(out) == 0 {
		return nil, domain.NewConfigurationError("granularity", "no granularity in %q", s)
	}
	return out, nil
}
