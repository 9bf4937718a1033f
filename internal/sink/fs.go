package sink

import (
	"context"
	"path/filepath"

	"github.com/John-Robertt/movieroi/internal/infra/fsx"
)

// FS 把 key 映射为 Root 下的相对路径，通过同目录临时文件 + rename 原子替换。
type FS struct {
	Root string
}

func (s FS) Location(key string) string {
	return filepath.Join(s.Root, filepath.FromSlash(key))
}

func (s FS) Store(ctx context.Context, key string, data []byte) error {
	if err := ValidateKey(key); err != nil {
		return storageErr("store", err)
	}
	if err := ctx.Err(); err != nil {
		return storageErr("store", err)
	}

	dst := s.Location(key)
	if err := fsx.WriteFileAtomicReplace(filepath.Dir(dst), filepath.Base(dst), data); err != nil {
		return storageErr("store", err)
	}
	return nil
}
