// Package history 把每次 run 的 RunReport 追加到本地 sqlite 账本，供 `movieroi history` 查询。
//
// 账本只用于排障回看，不参与产物计算；每次 run 的输出与历史无关。
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/John-Robertt/movieroi/internal/domain"
)

const (
	FileName = "history.db"

	DefaultListLimit = 20
)

// started_at/finished_at 存 UnixNano 整数。
const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id      TEXT PRIMARY KEY,
	source      TEXT NOT NULL,
	status      TEXT NOT NULL,
	error_code  TEXT NOT NULL DEFAULT '',
	started_at  INTEGER NOT NULL,
	finished_at INTEGER NOT NULL,
	kept        INTEGER NOT NULL,
	dropped     INTEGER NOT NULL,
	report      TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS runs_started_at ON runs(started_at);
`

type Store struct {
	db *sql.DB
}

// Open 打开（必要时创建）path 处的账本。
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, err
	}
	// sqlite 单写者；一个连接足够，也避免 database is locked。
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("初始化 history schema 失败：%w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Record 写入一次 run 的报告；同一 run_id 重复写入时覆盖。
func (s *Store) Record(ctx context.Context, rr domain.RunReport) error {
	if rr.RunID == "" {
		return fmt.Errorf("run_id 不能为空")
	}
	b, err := json.Marshal(rr)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
INSERT OR REPLACE INTO runs (run_id, source, status, error_code, started_at, finished_at, kept, dropped, report)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rr.RunID, rr.Source, rr.Status, rr.ErrorCode,
		rr.StartedAt.UnixNano(), rr.FinishedAt.UnixNano(),
		rr.Summary.Kept, rr.Summary.Dropped, string(b))
	return err
}

// List 按开始时间倒序返回最近 limit 条报告；limit<=0 使用 DefaultListLimit。
func (s *Store) List(ctx context.Context, limit int) ([]domain.RunReport, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	rows, err := s.db.QueryContext(ctx, `SELECT report FROM runs ORDER BY started_at DESC, run_id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.RunReport, 0, limit)
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var rr domain.RunReport
		if err := json.Unmarshal([]byte(raw), &rr); err != nil {
			return nil, fmt.Errorf("history 记录损坏：%w", err)
		}
		out = append(out, rr)
	}
	return out, rows.Err()
}
