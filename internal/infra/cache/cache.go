package cache

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/John-Robertt/movieroi/internal/infra/fsx"
)

// RawSnapshotName 是原始抓取快照的文件名（<state_dir>/raw/ 下）。
const RawSnapshotName = "raw_movies.json"

// Store 提供 <state_dir>/raw/ 下原始快照的读写。
//
// 快照只用于排查与 source=raw 重放；transform 永远不会“合并”旧快照。
type Store struct {
	Root     string // <state_dir>
	ReadOnly bool
}

var ErrReadOnly = errors.New("cache: read-only")

func New(root string, readOnly bool) Store {
	return Store{
		Root:     filepath.Clean(strings.TrimSpace(root)),
		ReadOnly: readOnly,
	}
}

// RawSnapshotPath 返回原始快照的绝对路径。
func (s Store) RawSnapshotPath() string {
	return filepath.Join(s.Root, "raw", RawSnapshotName)
}

// ReadRawSnapshot 读取快照；文件不存在返回 ok=false（不算错误）。
func (s Store) ReadRawSnapshot() ([]byte, bool, error) {
	b, err := os.ReadFile(s.RawSnapshotPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return b, true, nil
}

// WriteRawSnapshot 原子覆盖快照。
func (s Store) WriteRawSnapshot(b []byte) error {
	if s.ReadOnly {
		return ErrReadOnly
	}
	return fsx.WriteFileAtomicReplace(filepath.Join(s.Root, "raw"), RawSnapshotName, b)
}
