package usecase

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"ohlcv_ingest/internal/feature/candles/domain"
	"ohlcv_ingest/internal/feature/candles/domain/entity"
	"ohlcv_ingest/internal/shared/retry"
)

const (
	// DefaultWorkers は同時に処理する銘柄数です。
	DefaultWorkers = 4
	// DefaultWriteChunkSize は1トランザクションで書き込む最大本数です。
	DefaultWriteChunkSize = 500
	// DefaultInstrumentTimeout は1銘柄の処理全体のタイムアウトです。
	DefaultInstrumentTimeout = 5 * time.Minute
)

// CandleStore は時系列ストアへの書き込みとチェックポイントの読み取りを抽象化します。
// Following Go convention: interfaces are defined by the consumer (usecase), not the provider (adapters).
type CandleStore interface {
	TimestampReader
	// WriteBatch はバッチを冪等に書き込みます。コミットが確定した場合のみ成功を返します。
	WriteBatch(ctx context.Context, candles []entity.Candle) (CommitResult, error)
	// LatestTimestamp は保存済みの最新タイムスタンプを返します。無い場合は ok=false です。
	LatestTimestamp(ctx context.Context, instrument string, g entity.Granularity) (ts time.Time, ok bool, err error)
}

// IngestConfig はインジェストの実行設定です。
type IngestConfig struct {
	Workers           int
	WriteChunkSize    int
	InstrumentTimeout time.Duration
	// ValidateGaps が true の場合、追記後に書き込んだ範囲の欠損を検査して報告します。
	ValidateGaps     bool
	StorageRetries   uint
	StorageBaseDelay time.Duration
	StorageMaxDelay  time.Duration
}

// DefaultIngestConfig はデフォルト設定を返します。
func DefaultIngestConfig() IngestConfig {
	return IngestConfig{
		Workers:           DefaultWorkers,
		WriteChunkSize:    DefaultWriteChunkSize,
		InstrumentTimeout: DefaultInstrumentTimeout,
		ValidateGaps:      true,
		StorageRetries:    2,
		StorageBaseDelay:  200 * time.Millisecond,
		StorageMaxDelay:   5 * time.Second,
	}
}

// IngestUsecase は外部APIからローソク足を取得し、時系列ストアに永続化するユースケースを定義します。
type IngestUsecase struct {
	market     ExchangeAdapter
	store      CandleStore
	resolver   *WindowResolver
	fetcher    *BatchFetcher
	gaps       *GapDetector
	sink       CommitSink
	cfg        IngestConfig
	storeRetry *retry.Retryer
	nowFn      func() time.Time
}

// NewIngestUsecase は新しい IngestUsecase を作成します。sink が nil の場合は LogSink を使います。
func NewIngestUsecase(market ExchangeAdapter, store CandleStore, resolver *WindowResolver, fetcher *BatchFetcher, sink CommitSink, cfg IngestConfig) *IngestUsecase {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.WriteChunkSize <= 0 {
		cfg.WriteChunkSize = DefaultWriteChunkSize
	}
	if resolver == nil {
		resolver = NewWindowResolver(nil)
	}
	if fetcher == nil {
		fetcher = NewBatchFetcher(DefaultFetcherConfig())
	}
	if sink == nil {
		sink = LogSink{}
	}
	return &IngestUsecase{
		market:     market,
		store:      store,
		resolver:   resolver,
		fetcher:    fetcher,
		gaps:       NewGapDetector(store),
		sink:       sink,
		cfg:        cfg,
		storeRetry: retry.NewRetryer(cfg.StorageRetries, cfg.StorageBaseDelay, cfg.StorageMaxDelay),
		nowFn:      time.Now,
	}
}

// RunOnce は指定モードで全銘柄を1回インジェストし、銘柄ごとの結果を返します。
// モードが不正な場合のみ ConfigurationError を返します。銘柄単位の失敗は結果に記録され、
// 他の銘柄の処理を止めることはありません。
func (iu *IngestUsecase) RunOnce(ctx context.Context, mode entity.Mode, instruments []string, g entity.Granularity) (RunResult, error) {
	if err := ValidateMode(mode, g); err != nil {
		return RunResult{}, err
	}

	run := RunResult{
		RunID:       uuid.NewString(),
		Mode:        mode,
		Granularity: g,
		StartedAt:   iu.nowFn().UTC(),
	}
	instruments = normalizeInstruments(instruments)
	run.Results = make([]InstrumentResult, len(instruments))

	slog.Info("ingest run started", "run_id", run.RunID, "mode", mode.Kind, "granularity", g,
		"instruments", len(instruments), "workers", iu.cfg.Workers)

	var eg errgroup.Group
	eg.SetLimit(iu.cfg.Workers)
	for i, inst := range instruments {
		eg.Go(func() error {
			if ctx.Err() != nil {
				run.Results[i] = InstrumentResult{
					Instrument:  inst,
					Granularity: g,
					Status:      StatusCancelled,
					ErrKind:     domain.KindCancelled,
					Err:         ctx.Err(),
				}
				return nil
			}
			run.Results[i] = iu.ingestOne(ctx, run.RunID, mode, inst, g)
			return nil
		})
	}
	_ = eg.Wait()

	run.Duration = iu.nowFn().Sub(run.StartedAt)
	slog.Info("ingest run finished", "run_id", run.RunID, "mode", mode.Kind, "granularity", g,
		"status", run.Status(), "succeeded", run.Succeeded(), "failed", run.Failed(),
		"written", run.TotalWritten(), "duration", run.Duration.Truncate(time.Millisecond))
	return run, nil
}

// IngestAll は全銘柄について複数の時間足を追記モードで順にインジェストします。
// リアルタイム実行の1サイクルに相当します。
func (iu *IngestUsecase) IngestAll(ctx context.Context, instruments []string, granularities []entity.Granularity) ([]RunResult, error) {
	runs := make([]RunResult, 0, len(granularities))
	for _, g := range granularities {
		if ctx.Err() != nil {
			break
		}
		run, err := iu.RunOnce(ctx, entity.AppendLatest(), instruments, g)
		if err != nil {
			return runs, err
		}
		runs = append(runs, run)
	}
	return runs, nil
}

// ingestOne は1銘柄の処理です。開始後は呼び出し元の取り消しに関係なく
// InstrumentTimeout まで処理を続け、書き込み途中のバッチを残しません。
func (iu *IngestUsecase) ingestOne(parent context.Context, runID string, mode entity.Mode, instrument string, g entity.Granularity) (res InstrumentResult) {
	start := iu.nowFn()
	res = InstrumentResult{Instrument: instrument, Granularity: g}
	log := slog.With("run_id", runID, "instrument", instrument, "granularity", g)
	defer func() {
		res.Duration = iu.nowFn().Sub(start)
		if res.Err != nil {
			res.ErrKind = domain.KindOf(res.Err)
			log.Error("failed to ingest data", "status", res.Status, "kind", res.ErrKind,
				"written", res.Written, "error", res.Err)
			return
		}
		log.Info("instrument ingested", "status", res.Status, "window", res.Window.String(),
			"fetched", res.Fetched, "written", res.Written, "rejected", res.Rejected, "gaps", len(res.Gaps))
	}()

	ctx := context.WithoutCancel(parent)
	if iu.cfg.InstrumentTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, iu.cfg.InstrumentTimeout)
		defer cancel()
	}

	var checkpoint *time.Time
	if mode.Kind == entity.ModeAppend {
		ts, ok, err := iu.store.LatestTimestamp(ctx, instrument, g)
		if err != nil {
			res.Status, res.Err = StatusFailed, err
			return res
		}
		if ok {
			checkpoint = &ts
			res.Checkpoint = ts
		}
	}

	window, err := iu.resolver.Resolve(mode, instrument, g, checkpoint)
	if err != nil {
		res.Status, res.Err = StatusFailed, err
		return res
	}
	res.Window = window
	if window.Empty() {
		res.Status = StatusNoNewData
		return res
	}

	targets := []entity.TimeWindow{window}
	if mode.Kind == entity.ModeRepair {
		gaps, err := iu.gaps.Detect(ctx, instrument, g, window)
		if err != nil {
			res.Status, res.Err = StatusFailed, err
			return res
		}
		if len(gaps) == 0 {
			res.Status = StatusSuccess
			return res
		}
		log.Info("repairing gaps", "gaps", len(gaps))
		targets = gaps
	}

	for _, w := range targets {
		fr, fetchErr := iu.fetcher.Fetch(ctx, iu.market, instrument, w, g)
		res.Fetched += len(fr.Candles)

		valid := make([]entity.Candle, 0, len(fr.Candles))
		for _, c := range fr.Candles {
			if err := c.Validate(); err != nil {
				res.Rejected++
				log.Warn("rejected invalid candle", "ts", c.Time.Format(time.RFC3339), "error", err)
				continue
			}
			valid = append(valid, c)
		}

		written, last, writeErr := iu.writeChunks(ctx, valid)
		res.Written += written
		if last.After(res.Checkpoint) {
			res.Checkpoint = last
		}
		res.Gaps = append(res.Gaps, fr.Skipped...)
		if writeErr != nil {
			res.Status, res.Err = progressStatus(res.Written), writeErr
			return res
		}
		if fetchErr != nil {
			var fe *domain.FetchError
			if errors.As(fetchErr, &fe) {
				res.Gaps = append(res.Gaps, fe.Gap)
			}
			res.Status, res.Err = progressStatus(res.Written), fetchErr
			return res
		}
		// 追記モードでは末尾の未取得範囲は「追いついた」状態であり、次回のサイクルで取得する
		if mode.Kind != entity.ModeAppend && !fr.Unfilled.Empty() {
			res.Gaps = append(res.Gaps, fr.Unfilled)
		}
	}

	if iu.cfg.ValidateGaps && mode.Kind == entity.ModeAppend && res.Written > 0 {
		checked := entity.TimeWindow{Start: window.Start, End: res.Checkpoint.Add(g.Duration())}
		gaps, err := iu.gaps.Detect(ctx, instrument, g, checked)
		if err != nil {
			log.Warn("post-write gap validation failed", "error", err)
		} else if len(gaps) > 0 {
			log.Warn("gaps remain after append", "window", checked.String(), "gaps", len(gaps))
			res.Gaps = append(res.Gaps, gaps...)
		}
	}

	res.Gaps = mergeWindows(res.Gaps)
	res.Status = StatusSuccess
	if res.Rejected > 0 || len(res.Gaps) > 0 {
		res.Status = StatusPartial
	}
	return res
}

// writeChunks は昇順のチャンクに分けて書き込みます。失敗したチャンクは最初からやり直し、
// それでも失敗した場合はそこで止めるため、保存済みの系列は常に連続した先頭部分になります。
func (iu *IngestUsecase) writeChunks(ctx context.Context, candles []entity.Candle) (written int, last time.Time, err error) {
	sort.Slice(candles, func(i, j int) bool { return candles[i].Time.Before(candles[j].Time) })

	for lo := 0; lo < len(candles); lo += iu.cfg.WriteChunkSize {
		hi := min(lo+iu.cfg.WriteChunkSize, len(candles))
		chunk := candles[lo:hi]

		var cr CommitResult
		err := iu.storeRetry.Do(ctx, func(attempt uint) (bool, error) {
			var werr error
			cr, werr = iu.store.WriteBatch(ctx, chunk)
			if werr == nil {
				return false, nil
			}
			var se *domain.StorageError
			retryable := errors.As(werr, &se) && se.Transient && ctx.Err() == nil
			if retryable {
				slog.Warn("batch write failed, retrying", "instrument", chunk[0].InstrumentID,
					"rows", len(chunk), "attempt", attempt+1, "error", werr)
			}
			return retryable, werr
		})
		if err != nil {
			return written, last, err
		}

		written += cr.Rows
		last = chunk[len(chunk)-1].Time
		if err := iu.sink.OnCommit(ctx, cr); err != nil {
			slog.Warn("commit sink failed", "instrument", cr.InstrumentID, "table", cr.Table, "error", err)
		}
	}
	return written, last, nil
}

func progressStatus(written int) Status {
	if written > 0 {
		return StatusPartial
	}
	return StatusFailed
}

// normalizeInstruments は銘柄コードを大文字に揃え、空と重複を取り除きます（順序は維持）。
func normalizeInstruments(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
