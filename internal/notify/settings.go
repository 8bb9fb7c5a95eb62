// Package notify 实现通知投递闸门：免打扰时段、每周投递窗口与升级策略。
package notify

import (
	"time"

	"homeplanner/backend/internal/timewindow"
)

// DefaultEscalationDelay 默认升级延迟
const DefaultEscalationDelay = 24 * time.Hour

// Settings 用户通知设置（已解析为领域值）
type Settings struct {
	QuietHoursEnabled bool
	QuietHours        timewindow.Window

	ScheduleEnabled bool
	ScheduleDays    map[time.Weekday]bool
	ScheduleWindow  timewindow.Window

	EscalationEnabled bool
	EscalationDelay   time.Duration

	// Location 判断时段使用的时区，nil 表示 UTC
	Location *time.Location
}

// DefaultSettings 用户未配置时使用的默认值：免打扰关闭、投递窗口关闭、升级开启（24 小时）
func DefaultSettings() Settings {
	return Settings{
		QuietHours:        timewindow.Window{Start: 22 * 60, End: 7 * 60},
		ScheduleWindow:    timewindow.Window{Start: 0, End: 0},
		EscalationEnabled: true,
		EscalationDelay:   DefaultEscalationDelay,
		Location:          time.UTC,
	}
}

// EscalationPolicy 单个任务的有效升级策略
type EscalationPolicy struct {
	Enabled bool
	Delay   time.Duration
}

// TaskOverrides 任务级别的覆盖项；nil 表示沿用用户设置
type TaskOverrides struct {
	EscalationEnabled    *bool
	EscalationDelayHours *int
}

// ResolveEscalation 任务级覆盖优先于用户设置
func ResolveEscalation(s Settings, o TaskOverrides) EscalationPolicy {
	p := EscalationPolicy{Enabled: s.EscalationEnabled, Delay: s.EscalationDelay}
	if o.EscalationEnabled != nil {
		p.Enabled = *o.EscalationEnabled
	}
	if o.EscalationDelayHours != nil && *o.EscalationDelayHours > 0 {
		p.Delay = time.Duration(*o.EscalationDelayHours) * time.Hour
	}
	if p.Delay <= 0 {
		p.Delay = DefaultEscalationDelay
	}
	return p
}

// ISOWeekday 将 ISO 周几（1=周一 … 7=周日）转为 time.Weekday
func ISOWeekday(d int) (time.Weekday, bool) {
	if d < 1 || d > 7 {
		return 0, false
	}
	return time.Weekday(d % 7), true
}

// WeekdayToISO 将 time.Weekday 转为 ISO 周几
func WeekdayToISO(wd time.Weekday) int {
	if wd == time.Sunday {
		return 7
	}
	return int(wd)
}
