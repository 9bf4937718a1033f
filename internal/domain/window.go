package domain

import (
	"fmt"
	"time"
)

const dateLayout = "2006-01-02"

// Window 是 discover 的上映日期窗口（闭区间，按天）。
type Window struct {
	From time.Time
	To   time.Time
}

// TrailingWindow 返回以 now 所在日（UTC）为终点、向前 days 天的窗口。
func TrailingWindow(now time.Time, days int) (Window, error) {
	if days < 1 {
		return Window{}, fmt.Errorf("window days 必须 >= 1，实际 %d", days)
	}
	to := truncateDay(now.UTC())
	return Window{From: to.AddDate(0, 0, -days), To: to}, nil
}

func (w Window) FromDate() string { return w.From.Format(dateLayout) }
func (w Window) ToDate() string   { return w.To.Format(dateLayout) }

func (w Window) String() string { return w.FromDate() + ".." + w.ToDate() }

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Query 描述一次抓取的全部输入（窗口 + 目标条数 + 上游过滤条件）。
type Query struct {
	Window       Window
	Limit        int
	Region       string
	Language     string
	IncludeAdult bool
}
