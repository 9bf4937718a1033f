package run

import (
	"time"

	"github.com/John-Robertt/movieroi/internal/config"
	"github.com/John-Robertt/movieroi/internal/fetch"
)

// Observer 用于把“运行进度/阶段/条目结果”从核心执行流程中解耦出来。
//
// 约束：
// - run 包只负责发事件，不做任何输出（避免污染 stdout 的 JSON 契约）。
// - Observer 的实现必须并发安全：OnDetailDone 可能来自多个 goroutine。
type Observer interface {
	// OnStart 在 ExecuteWithObserver 开始时调用（早于加锁与任何网络请求）。
	OnStart(runID string, eff config.EffectiveConfig)
	// OnPhaseDone 在阶段结束时调用（list/details/load/transform/store 等）。
	OnPhaseDone(name string, fields map[string]any, dur time.Duration)
	// OnDetailDone 在单部电影详情返回时调用。
	OnDetailDone(ev fetch.DetailEvent)
	// OnWarn 报告不影响成败的异常（例如空产物、history 写入失败）。
	OnWarn(msg string, fields map[string]any)
}

type nopObserver struct{}

func (nopObserver) OnStart(string, config.EffectiveConfig)             {}
func (nopObserver) OnPhaseDone(string, map[string]any, time.Duration) {}
func (nopObserver) OnDetailDone(fetch.DetailEvent)                     {}
func (nopObserver) OnWarn(string, map[string]any)                      {}
