package cache

import (
	"errors"
	"os"
	"testing"
)

func TestStore_ReadWriteRawSnapshot(t *testing.T) {
	root := t.TempDir()

	s := New(root, false)
	if _, ok, err := s.ReadRawSnapshot(); err != nil || ok {
		t.Fatalf("空目录应返回 ok=false err=nil，实际 ok=%v err=%v", ok, err)
	}

	if err := s.WriteRawSnapshot([]byte(`[{"id":1}]`)); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}

	b, ok, err := s.ReadRawSnapshot()
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if !ok {
		t.Fatalf("期望命中快照，但 ok=false")
	}
	if string(b) != `[{"id":1}]` {
		t.Fatalf("内容不一致：%q", string(b))
	}
}

func TestStore_ReadOnlyRejectWrite(t *testing.T) {
	root := t.TempDir()

	s := New(root, true)
	err := s.WriteRawSnapshot([]byte(`[]`))
	if !errors.Is(err, ErrReadOnly) {
		t.Fatalf("期望 ErrReadOnly，实际：%v", err)
	}
	if _, err := os.Stat(s.RawSnapshotPath()); !os.IsNotExist(err) {
		t.Fatalf("期望文件不存在，但 Stat err=%v", err)
	}
}
