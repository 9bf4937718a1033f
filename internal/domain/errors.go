package domain

import (
	"errors"
	"fmt"
)

const (
	ErrCodeUpstreamUnavailable = "upstream_unavailable"
	ErrCodeRateLimited         = "rate_limited"
	ErrCodeMalformedInput      = "malformed_input"
	ErrCodeStorage             = "storage_error"

	ErrCodeConfigNotFound    = "config_not_found"
	ErrCodeConfigInvalid     = "config_invalid"
	ErrCodeMissingCredential = "missing_credential"
	ErrCodeRunLocked         = "run_locked"
)

// Error 是带 error_code 的运行期错误。任何一种都会让整次 run 失败。
type Error struct {
	Code string
	Op   string // 例如 "discover" / "details" / "store"
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Op, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Code, e.Op)
	default:
		return e.Code
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Code 从 error 链中提取 error_code；若不是 *Error 则返回空串。
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// Wrap 用 code 包装 err；err 已经带 code 时原样返回（保留最内层的分类）。
func Wrap(code, op string, err error) error {
	if err == nil {
		return nil
	}
	if Code(err) != "" {
		return err
	}
	return &Error{Code: code, Op: op, Err: err}
}
