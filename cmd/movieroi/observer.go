package main

import (
	"fmt"
	"io"
	"net/url"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/John-Robertt/movieroi/internal/app/run"
	"github.com/John-Robertt/movieroi/internal/config"
	"github.com/John-Robertt/movieroi/internal/fetch"
)

var _ run.Observer = (*logObserver)(nil)

// newLogger 构造写往 w（通常是 stderr）的 zap logger：
// 交互终端用 console 编码，便于阅读；否则用 JSON，便于调度器收集。
func newLogger(w io.Writer, console bool) *zap.Logger {
	ec := zap.NewProductionEncoderConfig()
	ec.EncodeTime = zapcore.ISO8601TimeEncoder
	ec.EncodeDuration = zapcore.StringDurationEncoder

	var enc zapcore.Encoder
	if console {
		ec.EncodeLevel = zapcore.CapitalColorLevelEncoder
		ec.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		enc = zapcore.NewConsoleEncoder(ec)
	} else {
		enc = zapcore.NewJSONEncoder(ec)
	}
	return zap.New(zapcore.NewCore(enc, zapcore.Lock(zapcore.AddSync(w)), zapcore.InfoLevel))
}

// logObserver 把 run 层事件写成结构化日志（全部走 stderr，不污染 stdout 的 JSON 契约）。
//
// 逐条详情只在交互终端输出为 Info；非交互时降为 Debug（默认不输出），避免日志刷屏。
type logObserver struct {
	log     *zap.SugaredLogger
	verbose bool
}

func newLogObserver(l *zap.Logger, verbose bool) *logObserver {
	return &logObserver{log: l.Sugar(), verbose: verbose}
}

func (o *logObserver) OnStart(runID string, eff config.EffectiveConfig) {
	cfg := eff.ConfigPath
	if cfg == "" {
		cfg = "(默认值)"
	}
	// APIKey 永不输出。
	o.log.Infow("movieroi run 开始",
		"run_id", runID,
		"config", cfg,
		"source", eff.Source,
		"window_days", eff.WindowDays,
		"limit", eff.Limit,
		"region", eff.Region,
		"language", eff.Language,
		"concurrency", eff.Concurrency,
		"rps", eff.RequestsPerSecond,
		"proxy", formatProxy(eff.ProxyURL),
		"sink", eff.Sink,
		"artifact_key", eff.ArtifactKey,
		"state_dir", eff.StateDir,
	)
}

func (o *logObserver) OnPhaseDone(name string, fields map[string]any, dur time.Duration) {
	kv := make([]any, 0, 2*len(fields)+4)
	kv = append(kv, "phase", name, "dur", formatShortDuration(dur))
	for _, k := range sortedKeys(fields) {
		kv = append(kv, k, fields[k])
	}
	o.log.Infow(phaseTitle(name), kv...)
}

func (o *logObserver) OnDetailDone(ev fetch.DetailEvent) {
	status := "OK"
	if ev.Missing {
		status = "MISSING"
	}
	msg := fmt.Sprintf("[%d/%d] %d %s %s", ev.Done, ev.Total, ev.ID, truncate(ev.Title, 60), status)
	if o.verbose || ev.Missing {
		o.log.Infow(msg, "dur", formatShortDuration(ev.Dur))
		return
	}
	o.log.Debugw(msg, "dur", formatShortDuration(ev.Dur))
}

func (o *logObserver) OnWarn(msg string, fields map[string]any) {
	kv := make([]any, 0, 2*len(fields))
	for _, k := range sortedKeys(fields) {
		kv = append(kv, k, fields[k])
	}
	o.log.Warnw(msg, kv...)
}

func phaseTitle(name string) string {
	switch name {
	case "list":
		return "列表完成"
	case "details":
		return "详情完成"
	case "load":
		return "读取原始快照"
	case "dump":
		return "写入原始快照"
	case "transform":
		return "转换完成"
	case "store":
		return "产物已写出"
	default:
		// 兜底：未知阶段也不要静默（便于调试/演进）。
		return name
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// formatProxy 只展示 scheme/host 与是否带认证，不输出用户名密码。
func formatProxy(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "off"
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "on"
	}
	auth := "off"
	if u.User != nil {
		auth = "on"
	}
	return fmt.Sprintf("on (%s://%s, auth=%s)", u.Scheme, u.Host, auth)
}

func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	if max <= 0 || len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}

func formatShortDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}
