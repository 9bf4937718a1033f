package httpx

import (
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultTimeout  = 20 * time.Second
	defaultRetryMax = 2
	defaultRPS      = 10

	// UserAgent 标识本工具；上游 API 不需要伪装浏览器。
	UserAgent = "movieroi/1.0 (+https://github.com/John-Robertt/movieroi)"
)

// Transport 把“限速 + 代理 + keep-alive 策略 + 有界重试”固化为统一策略。
//
// provider 只负责“拼 URL + 解析 JSON”，不关心网络策略细节。
type Transport struct {
	Base *http.Transport

	// Limiter 为 nil 时不限速；每次尝试（含重试）都会消耗一个令牌。
	Limiter *rate.Limiter

	// RetryMax 表示最大重试次数（不含首次尝试）。例如 2 表示最多 3 次尝试。
	// 只对网络层错误重试；HTTP 状态码由上层分类。
	RetryMax int

	// DisableKeepAlives 决定是否对 Request 设置 Close=true。
	DisableKeepAlives bool
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req == nil {
		return nil, errors.New("nil request")
	}
	if t.Base == nil {
		return nil, errors.New("nil base transport")
	}

	// 只对“可重放”的请求做重试：GET/HEAD 且无 body。
	canRetry := (req.Method == http.MethodGet || req.Method == http.MethodHead) && req.Body == nil
	max := t.RetryMax
	if max < 0 {
		max = 0
	}
	if !canRetry {
		max = 0
	}

	var lastErr error
	for attempt := 0; attempt <= max; attempt++ {
		if t.Limiter != nil {
			if err := t.Limiter.Wait(req.Context()); err != nil {
				if lastErr != nil {
					return nil, lastErr
				}
				return nil, err
			}
		}

		r := req.Clone(req.Context())
		if r.Header.Get("User-Agent") == "" {
			r.Header.Set("User-Agent", UserAgent)
		}
		if t.DisableKeepAlives {
			r.Close = true
		}

		resp, err := t.Base.RoundTrip(r)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if req.Context().Err() != nil {
			// ctx 已取消：不再重试，直接返回最后错误。
			return nil, lastErr
		}
	}
	return nil, lastErr
}

// Options 是 API client 的网络策略。零值字段使用默认值。
type Options struct {
	ProxyURL          string
	RetryMax          int
	RequestsPerSecond float64
	Timeout           time.Duration
}

// NewAPIClient 构造用于上游 API 调用的 HTTP client。
//
// 规则：
// - ProxyURL 非空：必须走代理，且禁用 keep-alive（每请求新连接）
// - 令牌桶限速（burst=1，平滑请求节奏）
// - 有界重试 + 总超时
func NewAPIClient(o Options) (*http.Client, error) {
	base := &http.Transport{
		Proxy:                 nil,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 15 * time.Second,
		MaxIdleConnsPerHost:   8,
	}

	proxyURL := strings.TrimSpace(o.ProxyURL)
	disableKeepAlives := false
	if proxyURL != "" {
		u, err := url.Parse(proxyURL)
		if err != nil {
			return nil, err
		}
		base.Proxy = http.ProxyURL(u)
		base.DisableKeepAlives = true
		disableKeepAlives = true
	}

	rps := o.RequestsPerSecond
	if rps <= 0 {
		rps = defaultRPS
	}
	retryMax := o.RetryMax
	if retryMax < 0 {
		retryMax = defaultRetryMax
	}
	timeout := o.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	tr := &Transport{
		Base:              base,
		Limiter:           rate.NewLimiter(rate.Limit(rps), 1),
		RetryMax:          retryMax,
		DisableKeepAlives: disableKeepAlives,
	}
	return &http.Client{
		Transport: tr,
		Timeout:   timeout,
	}, nil
}
