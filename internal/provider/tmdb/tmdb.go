package tmdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/John-Robertt/movieroi/internal/domain"
	providerx "github.com/John-Robertt/movieroi/internal/provider"
)

const (
	DefaultBaseURL = "https://api.themoviedb.org/3"

	// DefaultDetailsLanguage 与 dashboard 的展示语言一致。
	DefaultDetailsLanguage = "en-US"

	// maxPage 是 TMDB discover 允许的最大页码。
	maxPage = 500

	maxErrorBody = 4 << 10
)

var _ providerx.Catalog = Client{}

// Client 实现 TMDB v3 的 discover + 详情查询。
//
// 约束：
// - 凭据只来自配置/环境；出现在错误信息中的 URL 一律脱敏
// - 不做缓存/重试/限速（由 httpx 统一控制）
type Client struct {
	// BaseURL 为空时使用 DefaultBaseURL；测试中指向 httptest server。
	BaseURL string
	// APIKey 支持两种形态：v3 api_key（走 query）或 v4 read access token（JWT，走 Bearer）。
	APIKey string

	HTTP *http.Client

	DetailsLanguage string

	// Now 仅用于解析 Retry-After；为空时使用 time.Now。
	Now func() time.Time
}

func (Client) Name() string { return "tmdb" }

func (c Client) baseURL() string {
	u := strings.TrimSpace(c.BaseURL)
	if u == "" {
		return DefaultBaseURL
	}
	return strings.TrimRight(u, "/")
}

// Discover 查询窗口内按收入降序的电影列表：
// /discover/movie?sort_by=revenue.desc&primary_release_date.gte=...&page=N
func (c Client) Discover(ctx context.Context, q domain.Query, page int) (domain.ListPage, error) {
	if page < 1 || page > maxPage {
		return domain.ListPage{}, fmt.Errorf("page 超出范围 [1, %d]：%d", maxPage, page)
	}

	v := url.Values{}
	v.Set("sort_by", "revenue.desc")
	v.Set("primary_release_date.gte", q.Window.FromDate())
	v.Set("primary_release_date.lte", q.Window.ToDate())
	v.Set("include_adult", strconv.FormatBool(q.IncludeAdult))
	v.Set("page", strconv.Itoa(page))
	if r := strings.TrimSpace(q.Region); r != "" {
		v.Set("region", r)
	}
	if l := strings.TrimSpace(q.Language); l != "" {
		v.Set("with_original_language", l)
	}

	var body discoverJSON
	if err := c.getJSON(ctx, "/discover/movie", v, &body); err != nil {
		return domain.ListPage{}, providerx.Classify("discover", err)
	}

	out := domain.ListPage{
		Page:       body.Page,
		TotalPages: body.TotalPages,
		Results:    make([]domain.ListedMovie, 0, len(body.Results)),
	}
	if out.TotalPages > maxPage {
		out.TotalPages = maxPage
	}
	for _, r := range body.Results {
		out.Results = append(out.Results, domain.ListedMovie{ID: r.ID, Title: r.Title})
	}
	return out, nil
}

// Details 查询单部电影详情，并通过 append_to_response 一次取回 credits。
func (c Client) Details(ctx context.Context, id int64) (domain.RawMovie, error) {
	if id <= 0 {
		return domain.RawMovie{}, fmt.Errorf("非法 movie id：%d", id)
	}

	lang := strings.TrimSpace(c.DetailsLanguage)
	if lang == "" {
		lang = DefaultDetailsLanguage
	}
	v := url.Values{}
	v.Set("append_to_response", "credits")
	v.Set("language", lang)

	var body movieJSON
	if err := c.getJSON(ctx, "/movie/"+strconv.FormatInt(id, 10), v, &body); err != nil {
		// 404 同样带 upstream_unavailable；是否跳过由 fetch 通过 errors.Is(err, ErrNotFound) 决定。
		return domain.RawMovie{}, providerx.Classify("details", err)
	}
	if body.ID == 0 {
		body.ID = id
	}
	return body.toRaw(), nil
}

func (c Client) getJSON(ctx context.Context, path string, v url.Values, dst any) error {
	if c.HTTP == nil {
		return errors.New("http client 不能为空")
	}

	bearer := isBearerToken(c.APIKey)
	if !bearer && c.APIKey != "" {
		v.Set("api_key", c.APIKey)
	}
	u := c.baseURL() + path + "?" + v.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return redact(err, c.APIKey)
	}
	req.Header.Set("Accept", "application/json")
	if bearer {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return redact(err, c.APIKey)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		hs := &providerx.HTTPStatusError{
			URL:        redactString(u, c.APIKey),
			StatusCode: resp.StatusCode,
			RetryAfter: providerx.ParseRetryAfter(resp.Header.Get("Retry-After"), c.now()),
		}
		var ej errorJSON
		if b, e := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody)); e == nil && json.Unmarshal(b, &ej) == nil {
			hs.Message = ej.StatusMessage
		}
		return hs
	}

	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("解码 %s 响应失败：%w", path, err)
	}
	return nil
}

func (c Client) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

// isBearerToken 判断是否为 v4 read access token（JWT：三段 base64 以 '.' 分隔）。
func isBearerToken(key string) bool {
	return strings.Count(key, ".") == 2
}

// redact 去掉 *url.Error 中的凭据，避免 api_key 出现在日志/报告里。
func redact(err error, key string) error {
	var ue *url.Error
	if errors.As(err, &ue) {
		ue.URL = redactString(ue.URL, key)
	}
	return err
}

func redactString(s, key string) string {
	if key == "" {
		return s
	}
	s = strings.ReplaceAll(s, url.QueryEscape(key), "REDACTED")
	return strings.ReplaceAll(s, key, "REDACTED")
}
