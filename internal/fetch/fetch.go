// Package fetch 把 provider 的“列表 + 详情”两类调用编排为一次完整抓取。
//
// 约束：
// - 列表阶段串行翻页（页与页之间有依赖：是否已满 limit / 是否到末页）
// - 详情阶段有界并发；结果写入预分配的下标槽位，输出顺序 = 列表排名
// - 只读：不落盘、不缓存
package fetch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/John-Robertt/movieroi/internal/domain"
	"github.com/John-Robertt/movieroi/internal/provider"
)

const (
	DefaultConcurrency = 4
	MaxConcurrency     = 32
)

// DetailEvent 描述单个详情请求的结果（用于进度输出）。
type DetailEvent struct {
	Done, Total int
	ID          int64
	Title       string
	Missing     bool // 详情 404：已跳过
	Dur         time.Duration
}

type Fetcher struct {
	Catalog provider.Catalog

	// Concurrency 会被钳制到 [1, MaxConcurrency]；0 使用 DefaultConcurrency。
	Concurrency int

	// OnListed 在列表阶段结束时调用；OnDetail 可能来自多个 goroutine，但调用被串行化。
	OnListed func(listed, pages int, dur time.Duration)
	OnDetail func(ev DetailEvent)
}

type Result struct {
	Movies        []domain.RawMovie
	Listed        int
	Pages         int
	DetailMissing int
}

// Fetch 执行一次完整抓取：翻页直到满 q.Limit 或上游耗尽，然后逐条查询详情。
// 任一请求失败（详情 404 除外）即整体失败，不返回部分结果。
func (f Fetcher) Fetch(ctx context.Context, q domain.Query) (Result, error) {
	if f.Catalog == nil {
		return Result{}, errors.New("catalog 不能为空")
	}
	if q.Limit < 1 {
		return Result{}, fmt.Errorf("limit 必须 >= 1：%d", q.Limit)
	}

	listStarted := time.Now()
	listed, pages, err := f.list(ctx, q)
	if err != nil {
		return Result{}, err
	}
	if f.OnListed != nil {
		f.OnListed(len(listed), pages, time.Since(listStarted))
	}

	movies, missing, err := f.details(ctx, listed)
	if err != nil {
		return Result{}, err
	}
	return Result{
		Movies:        movies,
		Listed:        len(listed),
		Pages:         pages,
		DetailMissing: missing,
	}, nil
}

// list 串行翻页，按首次出现去重，最多保留 q.Limit 条。
func (f Fetcher) list(ctx context.Context, q domain.Query) ([]domain.ListedMovie, int, error) {
	out := make([]domain.ListedMovie, 0, q.Limit)
	seen := make(map[int64]struct{}, q.Limit)

	pages := 0
	for page := 1; len(out) < q.Limit; page++ {
		if err := ctx.Err(); err != nil {
			return nil, pages, domain.Wrap(domain.ErrCodeUpstreamUnavailable, "discover", err)
		}
		lp, err := f.Catalog.Discover(ctx, q, page)
		if err != nil {
			return nil, pages, domain.Wrap(domain.ErrCodeUpstreamUnavailable, "discover", err)
		}
		pages++

		for _, m := range lp.Results {
			if len(out) >= q.Limit {
				break
			}
			if _, ok := seen[m.ID]; ok {
				continue
			}
			seen[m.ID] = struct{}{}
			out = append(out, m)
		}

		if len(lp.Results) == 0 || page >= lp.TotalPages {
			break
		}
	}
	return out, pages, nil
}

func (f Fetcher) details(ctx context.Context, listed []domain.ListedMovie) ([]domain.RawMovie, int, error) {
	slots := make([]domain.RawMovie, len(listed))
	found := make([]bool, len(listed))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(clampConcurrency(f.Concurrency))

	var mu sync.Mutex
	done := 0

	for i := range listed {
		i := i
		g.Go(func() error {
			started := time.Now()
			m, err := f.Catalog.Details(gctx, listed[i].ID)
			missing := false
			switch {
			case err == nil:
				slots[i] = m
				found[i] = true
			case errors.Is(err, provider.ErrNotFound):
				missing = true
			default:
				return domain.Wrap(domain.ErrCodeUpstreamUnavailable, "details", err)
			}

			if f.OnDetail != nil {
				mu.Lock()
				done++
				f.OnDetail(DetailEvent{
					Done:    done,
					Total:   len(listed),
					ID:      listed[i].ID,
					Title:   listed[i].Title,
					Missing: missing,
					Dur:     time.Since(started),
				})
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}

	out := make([]domain.RawMovie, 0, len(listed))
	missing := 0
	for i := range slots {
		if !found[i] {
			missing++
			continue
		}
		out = append(out, slots[i])
	}
	return out, missing, nil
}

func clampConcurrency(n int) int {
	switch {
	case n == 0:
		return DefaultConcurrency
	case n < 1:
		return 1
	case n > MaxConcurrency:
		return MaxConcurrency
	default:
		return n
	}
}
