// Package sink 把产物以固定 key 写入目标存储（本地目录或 S3）。
//
// 约束：
// - Store 要么完整替换旧产物，要么失败且旧产物保持不变
// - 所有失败都包装为 storage_error
package sink

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/John-Robertt/movieroi/internal/domain"
)

type Sink interface {
	// Store 以 key 写入 data，完整覆盖同 key 的旧内容。
	Store(ctx context.Context, key string, data []byte) error
	// Location 返回 key 对应的可读位置（用于报告/日志），不做任何 IO。
	Location(key string) string
}

// Open 根据 target 选择实现：
// - s3://bucket[/prefix] => S3
// - 其它 => 本地目录
func Open(target string, o S3Options) (Sink, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return nil, fmt.Errorf("sink 不能为空")
	}
	if !strings.HasPrefix(target, "s3://") {
		return FS{Root: target}, nil
	}

	u, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("sink 不是合法的 s3 URL：%w", err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("sink 缺少 bucket：%q", target)
	}
	return NewS3(u.Host, strings.Trim(u.Path, "/"), o)
}

// ValidateKey 拒绝会逃逸出 sink 根的 key（绝对路径、..、空段）。
func ValidateKey(key string) error {
	if key == "" {
		return fmt.Errorf("key 不能为空")
	}
	if strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return fmt.Errorf("key 必须是相对的 / 分隔路径：%q", key)
	}
	for _, seg := range strings.Split(key, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return fmt.Errorf("key 含非法路径段：%q", key)
		}
	}
	if path.Clean(key) != key {
		return fmt.Errorf("key 不是规范路径：%q", key)
	}
	return nil
}

func storageErr(op string, err error) error {
	return domain.Wrap(domain.ErrCodeStorage, op, err)
}
