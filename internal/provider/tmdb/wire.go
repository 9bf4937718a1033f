package tmdb

import (
	"strings"

	"github.com/John-Robertt/movieroi/internal/domain"
)

// 以下类型只描述 TMDB v3 JSON 的形状，不对外暴露。

type discoverJSON struct {
	Page         int           `json:"page"`
	TotalPages   int           `json:"total_pages"`
	TotalResults int           `json:"total_results"`
	Results      []listingJSON `json:"results"`
}

type listingJSON struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
}

// movieJSON 同时覆盖两种形状：
// - 详情接口（append_to_response=credits）：cast 位于 credits.cast
// - 原始快照：cast 直接挂在顶层（与详情合并后的结构一致）
type movieJSON struct {
	ID          int64        `json:"id"`
	Title       string       `json:"title"`
	ReleaseDate string       `json:"release_date"`
	Budget      *int64       `json:"budget"`
	Revenue     *int64       `json:"revenue"`
	PosterPath  *string      `json:"poster_path"`
	VoteAverage float64      `json:"vote_average"`
	Overview    string       `json:"overview"`
	Genres      []genreJSON  `json:"genres"`
	Credits     *creditsJSON `json:"credits,omitempty"`
	Cast        []castJSON   `json:"cast"`
}

type genreJSON struct {
	ID   int    `json:"id,omitempty"`
	Name string `json:"name"`
}

type creditsJSON struct {
	Cast []castJSON `json:"cast"`
}

type castJSON struct {
	Name        string  `json:"name"`
	Order       int     `json:"order"`
	ProfilePath *string `json:"profile_path"`
}

type errorJSON struct {
	StatusMessage string `json:"status_message"`
}

func (m movieJSON) toRaw() domain.RawMovie {
	cast := m.Cast
	if m.Credits != nil {
		cast = m.Credits.Cast
	}

	out := domain.RawMovie{
		ID:          m.ID,
		Title:       strings.TrimSpace(m.Title),
		ReleaseDate: strings.TrimSpace(m.ReleaseDate),
		Budget:      m.Budget,
		Revenue:     m.Revenue,
		PosterPath:  deref(m.PosterPath),
		VoteAverage: m.VoteAverage,
		Overview:    m.Overview,
		Genres:      make([]string, 0, len(m.Genres)),
		Cast:        make([]domain.CastMember, 0, len(cast)),
	}
	for _, g := range m.Genres {
		out.Genres = append(out.Genres, g.Name)
	}
	for _, c := range cast {
		out.Cast = append(out.Cast, domain.CastMember{
			Name:        strings.TrimSpace(c.Name),
			Order:       c.Order,
			ProfilePath: deref(c.ProfilePath),
		})
	}
	return out
}

func fromRaw(r domain.RawMovie) movieJSON {
	m := movieJSON{
		ID:          r.ID,
		Title:       r.Title,
		ReleaseDate: r.ReleaseDate,
		Budget:      r.Budget,
		Revenue:     r.Revenue,
		PosterPath:  ptrOrNil(r.PosterPath),
		VoteAverage: r.VoteAverage,
		Overview:    r.Overview,
		Genres:      make([]genreJSON, 0, len(r.Genres)),
		Cast:        make([]castJSON, 0, len(r.Cast)),
	}
	for _, g := range r.Genres {
		m.Genres = append(m.Genres, genreJSON{Name: g})
	}
	for _, c := range r.Cast {
		m.Cast = append(m.Cast, castJSON{Name: c.Name, Order: c.Order, ProfilePath: ptrOrNil(c.ProfilePath)})
	}
	return m
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return strings.TrimSpace(*p)
}

func ptrOrNil(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
