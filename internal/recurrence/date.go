// Package recurrence 负责周期任务模板展开与年度重要日期投影。
//
// 所有日期均按「仅日期」处理：统一归一化为 UTC 12:00，避免时区换算导致日期漂移。
package recurrence

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// NormalizeHour 归一化日期使用的固定小时（UTC）
const NormalizeHour = 12

// DateLayout 日期键格式
const DateLayout = "2006-01-02"

// ── 重复单位 ──

// Unit 重复单位
type Unit string

const (
	UnitNone    Unit = "none"
	UnitDaily   Unit = "daily"
	UnitWeekly  Unit = "weekly"
	UnitMonthly Unit = "monthly"
	UnitYearly  Unit = "yearly"
)

var (
	ErrUnknownUnit      = errors.New("未知的重复单位")
	ErrInvalidInterval  = errors.New("重复间隔必须为正整数")
	ErrUnitNotRecurring = errors.New("重复单位为 none 的模板不可展开")
	ErrInvalidDate      = errors.New("日期格式无效，应为 YYYY-MM-DD")
)

// ParseUnit 解析重复单位（大小写不敏感，空串视为 none）
func ParseUnit(s string) (Unit, error) {
	switch u := Unit(strings.ToLower(strings.TrimSpace(s))); u {
	case "":
		return UnitNone, nil
	case UnitNone, UnitDaily, UnitWeekly, UnitMonthly, UnitYearly:
		return u, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownUnit, s)
	}
}

// Recurring 是否为可展开的重复单位
func (u Unit) Recurring() bool {
	switch u {
	case UnitDaily, UnitWeekly, UnitMonthly, UnitYearly:
		return true
	}
	return false
}

// ── 日期工具 ──

// NormalizeDate 取 t 在其自身时区的年月日，返回 UTC 12:00 的同一天
func NormalizeDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, NormalizeHour, 0, 0, 0, time.UTC)
}

// Today 返回 now 在 loc 时区下的当天（已归一化）
func Today(now time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return NormalizeDate(now.In(loc))
}

// DateKey 日期去重键 yyyy-MM-dd。
// 已归一化的日期落在 UTC 正午，按 UTC 取日期即可抵消数据库连接时区的影响。
func DateKey(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

// ParseDate 解析 yyyy-MM-dd 并归一化
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return NormalizeDate(t), nil
}

// DaysIn 返回某年某月的天数
func DaysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, NormalizeHour, 0, 0, 0, time.UTC).Day()
}

// ClampedDate 构造日期；日超出当月天数时截断到月末（如非闰年的 2 月 29 日 → 2 月 28 日）
func ClampedDate(year int, month time.Month, day int) time.Time {
	if last := DaysIn(year, month); day > last {
		day = last
	}
	return time.Date(year, month, day, NormalizeHour, 0, 0, 0, time.UTC)
}

// AddUnits 从 anchor 起前进 n 个单位。月、年按月末截断，不做溢出进位。
func AddUnits(anchor time.Time, unit Unit, n int) time.Time {
	switch unit {
	case UnitDaily:
		return anchor.AddDate(0, 0, n)
	case UnitWeekly:
		return anchor.AddDate(0, 0, 7*n)
	case UnitMonthly:
		y, m, d := anchor.Date()
		total := int(m) - 1 + n
		y += total / 12
		return ClampedDate(y, time.Month(total%12+1), d)
	case UnitYearly:
		y, m, d := anchor.Date()
		return ClampedDate(y+n, m, d)
	default:
		return anchor
	}
}

// UnitsBetween 计算 from 到 to 之间完整经过的单位数（to 早于 from 时返回 0）
func UnitsBetween(from, to time.Time, unit Unit) int {
	if !to.After(from) {
		return 0
	}
	var n int
	switch unit {
	case UnitDaily:
		n = int(to.Sub(from) / (24 * time.Hour))
	case UnitWeekly:
		n = int(to.Sub(from)/(24*time.Hour)) / 7
	case UnitMonthly:
		fy, fm, fd := from.Date()
		ty, tm, td := to.Date()
		n = (ty-fy)*12 + int(tm-fm)
		if td < fd {
			n--
		}
	case UnitYearly:
		fy, fm, fd := from.Date()
		ty, tm, td := to.Date()
		n = ty - fy
		if tm < fm || (tm == fm && td < fd) {
			n--
		}
	}
	if n < 0 {
		return 0
	}
	return n
}
