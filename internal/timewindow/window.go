// Package timewindow 提供基于「一天中的分钟数」的时间窗口判断，支持跨午夜窗口（如 22:00–07:00）。
package timewindow

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// MinutesPerDay 一天的分钟数
const MinutesPerDay = 24 * 60

// ErrInvalidClock 时刻格式非法（期望 HH:MM）
var ErrInvalidClock = errors.New("时刻格式无效，应为 HH:MM")

// Window 一天内的时间窗口 [Start, End)，单位为分钟。
//
//   - Start == End：全天开放
//   - Start <  End：普通区间
//   - Start >  End：跨午夜，等价于 minute >= Start || minute < End
type Window struct {
	Start int
	End   int
}

// New 由两个 "HH:MM" 字符串构建窗口
func New(start, end string) (Window, error) {
	s, err := ParseClock(start)
	if err != nil {
		return Window{}, err
	}
	e, err := ParseClock(end)
	if err != nil {
		return Window{}, err
	}
	return Window{Start: s, End: e}, nil
}

// Contains 判断分钟数是否落在窗口内
func (w Window) Contains(minute int) bool {
	switch {
	case w.Start == w.End:
		return true
	case w.Start < w.End:
		return minute >= w.Start && minute < w.End
	default:
		return minute >= w.Start || minute < w.End
	}
}

// ContainsTime 按 t 自身时区的墙上时间判断
func (w Window) ContainsTime(t time.Time) bool {
	return w.Contains(MinuteOfDay(t))
}

// String 格式化为 "HH:MM-HH:MM"
func (w Window) String() string {
	return FormatClock(w.Start) + "-" + FormatClock(w.End)
}

// MinuteOfDay 返回 t 在其时区内的分钟数（0-1439）
func MinuteOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

// ParseClock 解析 "HH:MM"（兼容数据库 time 类型返回的 "HH:MM:SS"）
func ParseClock(s string) (int, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	return h*60 + m, nil
}

// FormatClock 将分钟数格式化为 "HH:MM"
func FormatClock(minute int) string {
	minute = ((minute % MinutesPerDay) + MinutesPerDay) % MinutesPerDay
	return fmt.Sprintf("%02d:%02d", minute/60, minute%60)
}
