package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/John-Robertt/movieroi/internal/app/run"
	"github.com/John-Robertt/movieroi/internal/config"
	"github.com/John-Robertt/movieroi/internal/domain"
	"github.com/John-Robertt/movieroi/internal/history"
	"github.com/John-Robertt/movieroi/internal/infra/fsx"
)

// ReportFileName 是最近一次 run 报告的落盘位置（<state_dir>/report.json）。
const ReportFileName = "report.json"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := newCLI().main(ctx, os.Args[1:])
	stop()
	if code != 0 {
		os.Exit(code)
	}
}

// cli 把进程级依赖（输出流、TTY 判断、cwd）收拢在一起，便于测试替换。
type cli struct {
	stdout, stderr       io.Writer
	stdoutTTY, stderrTTY bool

	getwd func() (string, error)
	deps  run.Deps
}

func newCLI() cli {
	return cli{
		stdout:    os.Stdout,
		stderr:    os.Stderr,
		stdoutTTY: isTTY(os.Stdout),
		stderrTTY: isTTY(os.Stderr),
		getwd:     os.Getwd,
	}
}

func (c cli) main(ctx context.Context, args []string) int {
	if len(args) == 0 || isHelp(args[0]) {
		c.printUsage()
		return 0
	}

	switch args[0] {
	case "run":
		return c.runCmd(ctx, args[1:])
	case "history":
		return c.historyCmd(ctx, args[1:])
	default:
		fmt.Fprintf(c.stderr, "未知命令：%q\n\n", args[0])
		c.printUsage()
		return 2
	}
}

func (c cli) runCmd(ctx context.Context, args []string) int {
	for _, a := range args {
		if isHelp(a) {
			c.printRunUsage()
			return 0
		}
	}

	ra, err := parseRunArgs(args)
	if err != nil {
		fmt.Fprintf(c.stderr, "参数错误：%v\n\n", err)
		c.printRunUsage()
		return 2
	}

	log := newLogger(c.stderr, c.stderrTTY)
	defer func() { _ = log.Sync() }()

	cwd, err := c.getwd()
	if err != nil {
		log.Error("读取当前目录失败", zap.Error(err))
		return 1
	}

	eff, err := config.LoadEffective(cwd, ra.CLIArgs)
	if err != nil {
		rr := reportForConfigError(ra, err)
		log.Error("配置无效", zap.String("error_code", rr.ErrorCode), zap.String("error", rr.ErrorMsg))
		c.emitReport(log, rr)
		return 1
	}

	rr := run.ExecuteWithObserver(ctx, eff, c.deps, newLogObserver(log, c.stderrTTY))

	// 最近一次报告落盘到 state_dir，便于调度器之外的人排障；失败只告警。
	if err := writeReportFile(eff.StateDir, rr); err != nil {
		log.Warn("写入 report.json 失败", zap.Error(err))
	}

	c.emitReport(log, rr)
	if rr.Status != domain.StatusSucceeded {
		log.Error("run 失败",
			zap.String("run_id", rr.RunID),
			zap.String("error_code", rr.ErrorCode),
			zap.String("error", rr.ErrorMsg),
		)
		return 1
	}
	return 0
}

func (c cli) historyCmd(ctx context.Context, args []string) int {
	for _, a := range args {
		if isHelp(a) {
			c.printHistoryUsage()
			return 0
		}
	}

	ha, err := parseHistoryArgs(args)
	if err != nil {
		fmt.Fprintf(c.stderr, "参数错误：%v\n\n", err)
		c.printHistoryUsage()
		return 2
	}

	log := newLogger(c.stderr, c.stderrTTY)
	defer func() { _ = log.Sync() }()

	cwd, err := c.getwd()
	if err != nil {
		log.Error("读取当前目录失败", zap.Error(err))
		return 1
	}
	eff, err := config.LoadEffective(cwd, config.CLIArgs{ConfigPath: ha.ConfigPath, CredentialOptional: true})
	if err != nil {
		log.Error("配置无效", zap.String("error_code", config.Code(err)), zap.Error(err))
		return 1
	}

	path := filepath.Join(eff.StateDir, history.FileName)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		log.Warn("尚无 history（在配置中设置 history=true 后开始记录）", zap.String("path", path))
		c.emitHistory(nil)
		return 0
	}

	h, err := history.Open(path)
	if err != nil {
		log.Error("打开 history 失败", zap.String("path", path), zap.Error(err))
		return 1
	}
	defer h.Close()

	runs, err := h.List(ctx, ha.Limit)
	if err != nil {
		log.Error("读取 history 失败", zap.String("path", path), zap.Error(err))
		return 1
	}
	c.emitHistory(runs)
	return 0
}

type runArgs struct {
	config.CLIArgs
}

func parseRunArgs(args []string) (runArgs, error) {
	ra := runArgs{}

	for i := 0; i < len(args); i++ {
		name, val, hasVal := splitFlag(args[i])
		// 所有 flag 都带值：支持 --name=value 与 --name value 两种写法。
		if !hasVal && name != "" && i+1 < len(args) {
			i++
			val = args[i]
			hasVal = true
		}

		switch name {
		case "--config":
			if !hasVal || strings.TrimSpace(val) == "" {
				return runArgs{}, fmt.Errorf("--config 需要一个值")
			}
			ra.ConfigPath = val
		case "--window-days":
			n, err := intFlag(name, val, hasVal)
			if err != nil {
				return runArgs{}, err
			}
			ra.WindowDays, ra.WindowDaysSet = n, true
		case "--limit":
			n, err := intFlag(name, val, hasVal)
			if err != nil {
				return runArgs{}, err
			}
			ra.Limit, ra.LimitSet = n, true
		case "--sink":
			if !hasVal || strings.TrimSpace(val) == "" {
				return runArgs{}, fmt.Errorf("--sink 需要一个值")
			}
			ra.Sink = val
		case "--source":
			switch val {
			case config.SourceTMDB, config.SourceRaw:
				ra.Source = val
			default:
				return runArgs{}, fmt.Errorf("--source 只能是 %s 或 %s，实际是 %q", config.SourceTMDB, config.SourceRaw, val)
			}
		case "":
			return runArgs{}, fmt.Errorf("run 不接受位置参数：%q", args[i])
		default:
			return runArgs{}, fmt.Errorf("未知参数 %q", name)
		}
	}
	return ra, nil
}

type historyArgs struct {
	ConfigPath string
	Limit      int
}

func parseHistoryArgs(args []string) (historyArgs, error) {
	ha := historyArgs{Limit: history.DefaultListLimit}

	for i := 0; i < len(args); i++ {
		name, val, hasVal := splitFlag(args[i])
		if !hasVal && name != "" && i+1 < len(args) {
			i++
			val = args[i]
			hasVal = true
		}

		switch name {
		case "--config":
			if !hasVal || strings.TrimSpace(val) == "" {
				return historyArgs{}, fmt.Errorf("--config 需要一个值")
			}
			ha.ConfigPath = val
		case "--limit":
			n, err := intFlag(name, val, hasVal)
			if err != nil {
				return historyArgs{}, err
			}
			if n < 1 {
				return historyArgs{}, fmt.Errorf("--limit 必须 >= 1：%d", n)
			}
			ha.Limit = n
		case "":
			return historyArgs{}, fmt.Errorf("history 不接受位置参数：%q", args[i])
		default:
			return historyArgs{}, fmt.Errorf("未知参数 %q", name)
		}
	}
	return ha, nil
}

// splitFlag 把 "--name=value" 拆开；非 flag（不以 - 开头）返回 name=""。
func splitFlag(a string) (name, val string, hasVal bool) {
	if !strings.HasPrefix(a, "-") {
		return "", "", false
	}
	if i := strings.IndexByte(a, '='); i >= 0 {
		return a[:i], a[i+1:], true
	}
	return a, "", false
}

func intFlag(name, val string, hasVal bool) (int, error) {
	if !hasVal {
		return 0, fmt.Errorf("%s 需要一个整数值", name)
	}
	n, err := strconv.Atoi(strings.TrimSpace(val))
	if err != nil {
		return 0, fmt.Errorf("%s 需要一个整数值，实际是 %q", name, val)
	}
	return n, nil
}

func isHelp(s string) bool {
	return s == "-h" || s == "--help" || s == "help"
}

func (c cli) printUsage() {
	fmt.Fprint(c.stdout, `用法：
  movieroi run [--config file] [--window-days N] [--limit N] [--sink dir|s3://bucket/prefix] [--source tmdb|raw]
  movieroi history [--config file] [--limit N]

命令：
  run      抓取 → 计算 ROI → 写出 CSV 产物
  history  查看最近的 run 记录

使用 "movieroi run --help" 查看详细说明。
`)
}

func (c cli) printRunUsage() {
	fmt.Fprint(c.stdout, `用法：
  movieroi run [--config file] [--window-days N] [--limit N] [--sink dir|s3://bucket/prefix] [--source tmdb|raw]

参数：
  --config       配置文件（默认读取 ./movieroi.json，不存在则使用默认值）
  --window-days  发行日期窗口（天，默认 90）
  --limit        最多处理的电影数（默认 20）
  --sink         产物目标：本地目录或 s3://bucket[/prefix]
  --source       tmdb（默认，访问上游）或 raw（重放上次的原始快照）
  -h, --help     显示帮助

环境变量：
  TMDB_API_KEY   上游凭据（也可写在 ./.env）
`)
}

func (c cli) printHistoryUsage() {
	fmt.Fprint(c.stdout, `用法：
  movieroi history [--config file] [--limit N]

参数：
  --config    配置文件（用于定位 state_dir）
  --limit     最多显示的记录数（默认 20）
  -h, --help  显示帮助
`)
}

func (c cli) emitReport(log *zap.Logger, rr domain.RunReport) {
	summary := fmt.Sprintf("完成：status=%s kept=%d dropped=%d detail_missing=%d",
		rr.Status, rr.Summary.Kept, rr.Summary.Dropped, rr.Summary.DetailMissing)

	if c.stdoutTTY {
		fmt.Fprintln(c.stdout, summary)
		if rr.Status == domain.StatusSucceeded {
			fmt.Fprintf(c.stdout, "artifact: %s (%d rows, %d bytes)\n", rr.Artifact.Sink, rr.Artifact.Rows, rr.Artifact.Bytes)
		}
		return
	}

	// stdout 非 TTY：stdout 必须且仅输出一个 RunReport JSON（日志/摘要走 stderr）。
	enc := json.NewEncoder(c.stdout)
	_ = enc.Encode(rr)
	log.Info(summary, zap.String("run_id", rr.RunID))
}

func (c cli) emitHistory(runs []domain.RunReport) {
	if runs == nil {
		runs = []domain.RunReport{}
	}
	if !c.stdoutTTY {
		_ = json.NewEncoder(c.stdout).Encode(runs)
		return
	}
	if len(runs) == 0 {
		fmt.Fprintln(c.stdout, "（无记录）")
		return
	}
	for _, rr := range runs {
		code := rr.ErrorCode
		if code == "" {
			code = "-"
		}
		fmt.Fprintf(c.stdout, "%s  %s  %-9s  %-20s  kept=%d dropped=%d  %s\n",
			rr.StartedAt.Format(time.RFC3339), rr.RunID, rr.Status, code,
			rr.Summary.Kept, rr.Summary.Dropped, rr.Source,
		)
	}
}

func reportForConfigError(ra runArgs, err error) domain.RunReport {
	now := time.Now().UTC()
	rr := domain.RunReport{
		Source:     ra.Source,
		StartedAt:  now,
		FinishedAt: now,
		Status:     domain.StatusFailed,
		ErrorCode:  config.Code(err),
		ErrorMsg:   err.Error(),
	}
	if rr.ErrorCode == "" {
		rr.ErrorCode = config.ErrCodeInvalid
	}
	rr.Finalize()
	return rr
}

func writeReportFile(stateDir string, rr domain.RunReport) error {
	b, err := json.MarshalIndent(rr, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')
	return fsx.WriteFileAtomicReplace(stateDir, ReportFileName, b)
}

func isTTY(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}
