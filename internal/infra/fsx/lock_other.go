//go:build !unix

package fsx

import (
	"errors"
	"os"
	"path/filepath"
)

// Lock 在非 unix 平台上退化为 O_EXCL 锁文件；unlock 时删除。
// 进程异常退出会残留锁文件，需要人工删除。
func Lock(path string) (unlock func() error, err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil, ErrLocked
		}
		return nil, err
	}
	return func() error {
		_ = f.Close()
		return os.Remove(path)
	}, nil
}
