//go:build unix

package fsx

import (
	"errors"
	"os"
	"path/filepath"
	"syscall"
)

// Lock 对 path 加非阻塞的独占 flock（advisory）。
// 已被其他进程持有时返回 ErrLocked；返回的 unlock 释放锁并关闭文件。
//
// 锁文件本身不会被删除：flock 跟随 fd，进程退出即自动释放，不存在“残留锁”。
func Lock(path string) (unlock func() error, err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		_ = f.Close()
		if errors.Is(err, syscall.EWOULDBLOCK) {
			return nil, ErrLocked
		}
		return nil, err
	}
	return func() error {
		_ = syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
		return f.Close()
	}, nil
}
