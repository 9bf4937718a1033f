package run

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/John-Robertt/movieroi/internal/artifact"
	"github.com/John-Robertt/movieroi/internal/config"
	"github.com/John-Robertt/movieroi/internal/domain"
	"github.com/John-Robertt/movieroi/internal/fetch"
	"github.com/John-Robertt/movieroi/internal/history"
	"github.com/John-Robertt/movieroi/internal/infra/cache"
	"github.com/John-Robertt/movieroi/internal/infra/fsx"
	"github.com/John-Robertt/movieroi/internal/infra/httpx"
	"github.com/John-Robertt/movieroi/internal/provider"
	"github.com/John-Robertt/movieroi/internal/provider/tmdb"
	"github.com/John-Robertt/movieroi/internal/sink"
	"github.com/John-Robertt/movieroi/internal/transform"
)

// LockFileName 位于 state_dir 下，防止多个进程同时 run。
const LockFileName = "movieroi.lock"

// runMu 防止同一进程内重叠执行；跨进程由 state_dir 下的文件锁负责。
var runMu sync.Mutex

// Deps 允许替换外部协作者；零值字段按 eff 构造默认实现。
type Deps struct {
	Catalog provider.Catalog
	Sink    sink.Sink
	Now     func() time.Time
}

// Execute 执行一次完整的 fetch → transform → store，并返回对外稳定的 RunReport。
// 任何错误都让整次 run 失败；只有全部成功才会写产物。
func Execute(ctx context.Context, eff config.EffectiveConfig, deps Deps) domain.RunReport {
	return ExecuteWithObserver(ctx, eff, deps, nil)
}

// ExecuteWithObserver 与 Execute 相同，但允许传入 Observer 以输出进度/阶段信息（由上层决定是否启用）。
func ExecuteWithObserver(ctx context.Context, eff config.EffectiveConfig, deps Deps, obs Observer) domain.RunReport {
	if obs == nil {
		obs = nopObserver{}
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}

	rr := domain.RunReport{
		RunID:     uuid.NewString(),
		Source:    eff.Source,
		StartedAt: now(),
		Artifact:  domain.ArtifactResult{Key: eff.ArtifactKey},
	}
	obs.OnStart(rr.RunID, eff)

	finish := func() domain.RunReport {
		rr.FinishedAt = now()
		rr.Finalize()
		recordHistory(ctx, eff, rr, obs)
		return rr
	}

	if !runMu.TryLock() {
		rr.Fail(&domain.Error{Code: domain.ErrCodeRunLocked, Op: "lock", Err: errors.New("同一进程内已有 run 在执行")})
		return finish()
	}
	defer runMu.Unlock()

	unlock, err := fsx.Lock(filepath.Join(eff.StateDir, LockFileName))
	if err != nil {
		if errors.Is(err, fsx.ErrLocked) {
			rr.Fail(&domain.Error{Code: domain.ErrCodeRunLocked, Op: "lock", Err: err})
		} else {
			rr.Fail(&domain.Error{Code: domain.ErrCodeStorage, Op: "lock", Err: err})
		}
		return finish()
	}
	defer func() { _ = unlock() }()

	if err := execute(ctx, eff, deps, now, obs, &rr); err != nil {
		rr.Fail(err)
	}
	return finish()
}

func execute(ctx context.Context, eff config.EffectiveConfig, deps Deps, now func() time.Time, obs Observer, rr *domain.RunReport) error {
	win, err := domain.TrailingWindow(now(), eff.WindowDays)
	if err != nil {
		return &domain.Error{Code: domain.ErrCodeConfigInvalid, Op: "window", Err: err}
	}
	rr.Window = domain.ReportWindow{From: win.FromDate(), To: win.ToDate()}

	out := deps.Sink
	if out == nil {
		out, err = sink.Open(eff.Sink, s3Options(eff))
		if err != nil {
			return &domain.Error{Code: domain.ErrCodeConfigInvalid, Op: "sink", Err: err}
		}
	}
	rr.Artifact.Sink = out.Location(eff.ArtifactKey)

	store := cache.New(eff.StateDir, false)

	var raws []domain.RawMovie
	switch eff.Source {
	case config.SourceRaw:
		raws, err = loadSnapshot(store, obs)
		if err != nil {
			return err
		}
		rr.Summary.Listed = len(raws)
		rr.Summary.Fetched = len(raws)
	default:
		res, err := fetchAll(ctx, eff, deps, win, obs)
		if err != nil {
			return err
		}
		raws = res.Movies
		rr.Summary.Listed = res.Listed
		rr.Summary.Fetched = len(res.Movies)
		rr.Summary.DetailMissing = res.DetailMissing

		if eff.RawDump {
			if err := dumpSnapshot(store, raws, obs); err != nil {
				return err
			}
		}
	}

	started := time.Now()
	tr := transform.Transformer{PosterBaseURL: eff.ImageBaseURL, ProfileBaseURL: eff.ProfileBaseURL}
	res, err := tr.Transform(raws)
	if err != nil {
		return domain.Wrap(domain.ErrCodeMalformedInput, "transform", err)
	}
	rr.Summary.Kept = len(res.Rows)
	rr.Summary.Dropped = res.Dropped
	rr.Summary.DropReasons = domain.DropCounts(res.DropReasons)
	obs.OnPhaseDone("transform", map[string]any{
		"input":        len(raws),
		"kept":         len(res.Rows),
		"dropped":      res.Dropped,
		"drop_reasons": res.DropReasons,
	}, time.Since(started))
	if len(res.Rows) == 0 {
		obs.OnWarn("没有幸存记录，产物只包含表头", map[string]any{"input": len(raws)})
	}

	started = time.Now()
	data, err := artifact.EncodeCSV(res.Rows, eff.ExtendedColumns)
	if err != nil {
		return domain.Wrap(domain.ErrCodeStorage, "encode", err)
	}
	if err := out.Store(ctx, eff.ArtifactKey, data); err != nil {
		return domain.Wrap(domain.ErrCodeStorage, "store", err)
	}
	rr.Artifact.Bytes = len(data)
	rr.Artifact.Rows = len(res.Rows)
	obs.OnPhaseDone("store", map[string]any{
		"location": rr.Artifact.Sink,
		"bytes":    len(data),
		"rows":     len(res.Rows),
	}, time.Since(started))
	return nil
}

func fetchAll(ctx context.Context, eff config.EffectiveConfig, deps Deps, win domain.Window, obs Observer) (fetch.Result, error) {
	cat := deps.Catalog
	if cat == nil {
		hc, err := httpx.NewAPIClient(httpx.Options{
			ProxyURL:          eff.ProxyURL,
			RetryMax:          eff.HTTPRetryMax,
			RequestsPerSecond: eff.RequestsPerSecond,
		})
		if err != nil {
			return fetch.Result{}, &domain.Error{Code: domain.ErrCodeConfigInvalid, Op: "http client", Err: fmt.Errorf("proxy.url 无效：%w", err)}
		}
		cat = tmdb.Client{BaseURL: eff.APIBaseURL, APIKey: eff.APIKey, HTTP: hc}
	}

	detailsStarted := time.Now()
	f := fetch.Fetcher{
		Catalog:     cat,
		Concurrency: eff.Concurrency,
		OnListed: func(listed, pages int, dur time.Duration) {
			detailsStarted = time.Now()
			obs.OnPhaseDone("list", map[string]any{
				"provider": cat.Name(),
				"listed":   listed,
				"pages":    pages,
			}, dur)
		},
		OnDetail: obs.OnDetailDone,
	}
	res, err := f.Fetch(ctx, domain.Query{
		Window:       win,
		Limit:        eff.Limit,
		Region:       eff.Region,
		Language:     eff.Language,
		IncludeAdult: eff.IncludeAdult,
	})
	if err != nil {
		return fetch.Result{}, err
	}
	obs.OnPhaseDone("details", map[string]any{
		"workers":        eff.Concurrency,
		"fetched":        len(res.Movies),
		"detail_missing": res.DetailMissing,
	}, time.Since(detailsStarted))
	return res, nil
}

func loadSnapshot(store cache.Store, obs Observer) ([]domain.RawMovie, error) {
	started := time.Now()
	b, ok, err := store.ReadRawSnapshot()
	if err != nil {
		return nil, &domain.Error{Code: domain.ErrCodeStorage, Op: "read raw snapshot", Err: err}
	}
	if !ok {
		return nil, &domain.Error{
			Code: domain.ErrCodeMalformedInput,
			Op:   "read raw snapshot",
			Err:  fmt.Errorf("快照不存在：%s（先以 raw_dump=true 运行一次 source=tmdb）", store.RawSnapshotPath()),
		}
	}
	raws, err := tmdb.ParseDump(b)
	if err != nil {
		return nil, err
	}
	obs.OnPhaseDone("load", map[string]any{
		"path":    store.RawSnapshotPath(),
		"records": len(raws),
	}, time.Since(started))
	return raws, nil
}

func dumpSnapshot(store cache.Store, raws []domain.RawMovie, obs Observer) error {
	started := time.Now()
	b, err := tmdb.EncodeDump(raws)
	if err != nil {
		return &domain.Error{Code: domain.ErrCodeStorage, Op: "encode raw snapshot", Err: err}
	}
	if err := store.WriteRawSnapshot(b); err != nil {
		return &domain.Error{Code: domain.ErrCodeStorage, Op: "write raw snapshot", Err: err}
	}
	obs.OnPhaseDone("dump", map[string]any{
		"path":    store.RawSnapshotPath(),
		"records": len(raws),
		"bytes":   len(b),
	}, time.Since(started))
	return nil
}

// recordHistory 追加账本；失败只告警，不改变 run 的成败。
func recordHistory(ctx context.Context, eff config.EffectiveConfig, rr domain.RunReport, obs Observer) {
	if !eff.History {
		return
	}
	path := filepath.Join(eff.StateDir, history.FileName)
	h, err := history.Open(path)
	if err != nil {
		obs.OnWarn("打开 history 失败", map[string]any{"path": path, "error": err.Error()})
		return
	}
	defer h.Close()
	if err := h.Record(context.WithoutCancel(ctx), rr); err != nil {
		obs.OnWarn("写入 history 失败", map[string]any{"path": path, "error": err.Error()})
	}
}

func s3Options(eff config.EffectiveConfig) sink.S3Options {
	o := sink.S3Options{
		Region:      eff.S3.Region,
		Endpoint:    eff.S3.Endpoint,
		PathStyle:   eff.S3.PathStyle,
		MaxRetries:  -1,
		ContentType: artifact.ContentType,
	}
	if eff.S3.MaxRetries != nil {
		o.MaxRetries = *eff.S3.MaxRetries
	}
	return o
}
