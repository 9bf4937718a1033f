package provider

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/John-Robertt/movieroi/internal/domain"
)

// HTTPStatusError 表示上游返回了非 2xx 的 HTTP 状态码。
type HTTPStatusError struct {
	URL        string // 已脱敏（不含凭据）
	StatusCode int
	RetryAfter time.Duration
	Message    string // 上游 JSON 中的 status_message（可选）
}

func (e *HTTPStatusError) Error() string {
	if e == nil {
		return "HTTP status error"
	}
	msg := fmt.Sprintf("HTTP %d", e.StatusCode)
	if m := strings.TrimSpace(e.Message); m != "" {
		msg += ": " + m
	}
	if e.RetryAfter > 0 {
		msg += fmt.Sprintf(" (retry-after %s)", e.RetryAfter)
	}
	return msg
}

func (e *HTTPStatusError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

// ParseRetryAfter 解析 Retry-After（秒数或 HTTP-date）；无法解析返回 0。
func ParseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if n, err := strconv.Atoi(v); err == nil && n >= 0 {
		return time.Duration(n) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil && t.After(now) {
		return t.Sub(now)
	}
	return 0
}

// Classify 把 provider 内部错误映射为 domain error_code。
//
// - 429 => rate_limited
// - 其它 HTTP 状态、网络错误、ctx 取消、响应体无法解码 => upstream_unavailable
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if domain.Code(err) != "" {
		return err
	}
	var hs *HTTPStatusError
	if errors.As(err, &hs) && hs.StatusCode == http.StatusTooManyRequests {
		return &domain.Error{Code: domain.ErrCodeRateLimited, Op: op, Err: err}
	}
	return &domain.Error{Code: domain.ErrCodeUpstreamUnavailable, Op: op, Err: err}
}
