package provider

import (
	"context"
	"errors"

	"github.com/John-Robertt/movieroi/internal/domain"
)

// Catalog 把“上游 API 变化”限制在 provider 包内部；fetch 只依赖统一接口与稳定的 domain 类型。
//
// 约束：
// - 不做缓存、不做重试、不做限速（这些由 httpx 统一实现）
// - 只读：除网络请求外没有副作用
// - 错误必须带 domain error_code（upstream_unavailable / rate_limited）
type Catalog interface {
	Name() string
	// Discover 返回按收入降序的第 page 页（从 1 开始）。
	Discover(ctx context.Context, q domain.Query, page int) (domain.ListPage, error)
	// Details 返回单部电影的详情（含 budget/revenue/genres/cast）。
	// 电影不存在时返回的错误满足 errors.Is(err, ErrNotFound)。
	Details(ctx context.Context, id int64) (domain.RawMovie, error)
}

// ErrNotFound 表示上游确认该资源不存在（HTTP 404）。
var ErrNotFound = errors.New("provider: not found")
