package domain

// CastMember 是上游 credits 中的一条演员记录。
// Order 是上游给出的 billing order（越小越靠前）。
type CastMember struct {
	Name        string
	Order       int
	ProfilePath string
}

// RawMovie 是 Fetcher 从上游得到的原始记录（列表 + 详情合并后）。
//
// 约束：
// - 创建后不可修改；transform 之后即丢弃
// - Budget/Revenue 为 nil 表示上游没有给出（缺失与 0 需要区分开）
type RawMovie struct {
	ID          int64
	Title       string
	ReleaseDate string // ISO date, e.g. "2025-07-11"
	Revenue     *int64
	Budget      *int64
	Genres      []string
	Cast        []CastMember
	PosterPath  string

	VoteAverage float64
	Overview    string
}

// CastSlots 是扁平化后固定的演员列数。
const CastSlots = 3

// FlatRow 是 transform 的输出：一部电影对应一行定宽记录。
//
// 不变量：只有 budget>0 且 revenue 存在的记录才会生成 FlatRow，因此 ROI 总是有定义。
type FlatRow struct {
	ID          int64
	Title       string
	ReleaseDate string
	Revenue     int64
	Budget      int64
	ROI         float64
	Genres      string

	// Cast 缺失的槽位为空串（不是 nil/省略），保证行宽固定。
	Cast       [CastSlots]string
	CastImages [CastSlots]string

	PosterURL   string
	VoteAverage float64
	Overview    string
}

// ListedMovie 是 discover 列表里的一条（只需要 id，其余字段由详情补齐）。
type ListedMovie struct {
	ID    int64
	Title string
}

// ListPage 是 discover 的一页结果。
type ListPage struct {
	Page       int
	TotalPages int
	Results    []ListedMovie
}

// Int64 返回 v 的指针，便于构造可选字段。
func Int64(v int64) *int64 { return &v }
