// Package transform 把原始电影记录整理为定宽的 ROI 行。
//
// 这里是纯函数：不读时钟、不做 IO；相同输入必然得到逐字节相同的输出。
package transform

import (
	"errors"
	"sort"
	"strings"

	"github.com/John-Robertt/movieroi/internal/domain"
)

const (
	DefaultPosterBaseURL  = "https://image.tmdb.org/t/p/w342"
	DefaultProfileBaseURL = "https://image.tmdb.org/t/p/w185"

	// GenreSep 是 genres 列的分隔符。
	GenreSep = ","
)

// 丢弃原因（数据质量指标）。
const (
	ReasonMissingIdentity = "missing_identity"
	ReasonMissingBudget   = "missing_budget"
	ReasonMissingRevenue  = "missing_revenue"
)

// Transformer 只持有 URL 拼接所需的前缀；零值可用（使用默认前缀）。
type Transformer struct {
	PosterBaseURL  string
	ProfileBaseURL string
}

// Result 是一次 transform 的输出。
type Result struct {
	Rows        []domain.FlatRow
	Dropped     int
	DropReasons map[string]int
}

// Transform 过滤、计算 ROI、扁平化 genres/cast。
//
// 规则：
// - budget 缺失或 <=0、revenue 缺失（上游以 0 表示未知）的记录整体丢弃
// - 缺少 id 或 title 的记录同样丢弃；若非空输入中每条都缺，则视为 malformed_input
// - 输出顺序 = 输入顺序（仅保留幸存者，不重排）
func (t Transformer) Transform(raws []domain.RawMovie) (Result, error) {
	res := Result{
		Rows:        make([]domain.FlatRow, 0, len(raws)),
		DropReasons: map[string]int{},
	}

	identified := 0
	for i := range raws {
		r := &raws[i]

		reason := dropReason(r)
		if reason != ReasonMissingIdentity {
			identified++
		}
		if reason != "" {
			res.Dropped++
			res.DropReasons[reason]++
			continue
		}
		res.Rows = append(res.Rows, t.flatten(r))
	}

	if len(raws) > 0 && identified == 0 {
		return Result{}, &domain.Error{
			Code: domain.ErrCodeMalformedInput,
			Op:   "transform",
			Err:  errors.New("所有记录都缺少 id 或 title，输入无法解析为电影记录"),
		}
	}
	return res, nil
}

func dropReason(r *domain.RawMovie) string {
	switch {
	case r.ID <= 0 || strings.TrimSpace(r.Title) == "":
		return ReasonMissingIdentity
	case r.Budget == nil || *r.Budget <= 0:
		return ReasonMissingBudget
	case r.Revenue == nil || *r.Revenue <= 0:
		return ReasonMissingRevenue
	default:
		return ""
	}
}

func (t Transformer) flatten(r *domain.RawMovie) domain.FlatRow {
	budget, revenue := *r.Budget, *r.Revenue

	row := domain.FlatRow{
		ID:          r.ID,
		Title:       r.Title,
		ReleaseDate: r.ReleaseDate,
		Revenue:     revenue,
		Budget:      budget,
		ROI:         ROI(revenue, budget),
		Genres:      JoinGenres(r.Genres),
		PosterURL:   imageURL(t.posterBase(), r.PosterPath),
		VoteAverage: r.VoteAverage,
		Overview:    r.Overview,
	}

	for i, c := range TopCast(r.Cast, domain.CastSlots) {
		row.Cast[i] = c.Name
		row.CastImages[i] = imageURL(t.profileBase(), c.ProfilePath)
	}
	return row
}

// ROI = (revenue - budget) / budget；调用方保证 budget > 0。
func ROI(revenue, budget int64) float64 {
	return float64(revenue-budget) / float64(budget)
}

// JoinGenres 按上游顺序拼接 genre 名称（跳过空白项）。
func JoinGenres(genres []string) string {
	parts := make([]string, 0, len(genres))
	for _, g := range genres {
		g = strings.TrimSpace(g)
		if g == "" {
			continue
		}
		parts = append(parts, g)
	}
	return strings.Join(parts, GenreSep)
}

// TopCast 按 billing order 升序（稳定排序）取前 n 个；不修改入参。
func TopCast(cast []domain.CastMember, n int) []domain.CastMember {
	sorted := append([]domain.CastMember(nil), cast...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Order < sorted[j].Order })
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

func (t Transformer) posterBase() string {
	if t.PosterBaseURL == "" {
		return DefaultPosterBaseURL
	}
	return strings.TrimRight(t.PosterBaseURL, "/")
}

func (t Transformer) profileBase() string {
	if t.ProfileBaseURL == "" {
		return DefaultProfileBaseURL
	}
	return strings.TrimRight(t.ProfileBaseURL, "/")
}

func imageURL(base, path string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return ""
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return base + path
}
