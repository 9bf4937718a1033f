package domain

import (
	"sort"
	"time"
)

const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// RunReport 是对外稳定输出（stdout JSON / history）的结构。
type RunReport struct {
	RunID  string       `json:"run_id"`
	Source string       `json:"source"`
	Window ReportWindow `json:"window"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Status    string `json:"status"`
	ErrorCode string `json:"error_code"`
	ErrorMsg  string `json:"error_msg"`

	Summary  ReportSummary  `json:"summary"`
	Artifact ArtifactResult `json:"artifact"`
}

type ReportWindow struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type ReportSummary struct {
	Listed        int `json:"listed"`
	Fetched       int `json:"fetched"`
	DetailMissing int `json:"detail_missing"`
	Kept          int `json:"kept"`
	Dropped       int `json:"dropped"`

	DropReasons []DropCount `json:"drop_reasons"`
}

// DropCount 是某个丢弃原因的计数（数据质量指标，不是错误）。
type DropCount struct {
	Reason string `json:"reason"`
	Count  int    `json:"count"`
}

// ArtifactResult 描述本次写出的产物；失败的 run 中 Bytes/Rows 为 0。
type ArtifactResult struct {
	Sink  string `json:"sink"`
	Key   string `json:"key"`
	Bytes int    `json:"bytes"`
	Rows  int    `json:"rows"`
}

// Fail 把 err 记录到报告中（code 取自 error 链，缺省为 upstream_unavailable）。
func (r *RunReport) Fail(err error) {
	r.Status = StatusFailed
	r.ErrorCode = Code(err)
	if r.ErrorCode == "" {
		r.ErrorCode = ErrCodeUpstreamUnavailable
	}
	r.ErrorMsg = err.Error()
}

// Finalize 做三件事：
// 1) 时间统一为 UTC（确保 JSON 为 RFC3339 且后缀 Z）
// 2) drop_reasons 稳定排序：按 reason 字典序，且不为 nil
// 3) status 为空时按 error_code 推导
func (r *RunReport) Finalize() {
	r.StartedAt = r.StartedAt.UTC()
	r.FinishedAt = r.FinishedAt.UTC()

	if r.Summary.DropReasons == nil {
		r.Summary.DropReasons = []DropCount{}
	}
	sort.SliceStable(r.Summary.DropReasons, func(i, j int) bool {
		return r.Summary.DropReasons[i].Reason < r.Summary.DropReasons[j].Reason
	})

	if r.Status == "" {
		if r.ErrorCode == "" {
			r.Status = StatusSucceeded
		} else {
			r.Status = StatusFailed
		}
	}
}

// DropCounts 把 reason->count 的 map 转为稳定的切片形式。
func DropCounts(m map[string]int) []DropCount {
	out := make([]DropCount, 0, len(m))
	for reason, n := range m {
		out = append(out, DropCount{Reason: reason, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Reason < out[j].Reason })
	return out
}
