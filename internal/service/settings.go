package service

import (
	"sort"
	"time"

	"homeplanner/backend/config"
	"homeplanner/backend/internal/dto"
	"homeplanner/backend/internal/model"
	"homeplanner/backend/internal/notify"
	"homeplanner/backend/internal/timewindow"
)

// DefaultNotifySettings 由静态配置推导用户未保存设置时的默认值。
// 免打扰与投递窗口默认关闭，但保留配置中的默认时段，用户开启时直接生效。
func DefaultNotifySettings(cfg *config.SchedulerConfig) notify.Settings {
	s := notify.DefaultSettings()
	if w, err := timewindow.New(cfg.DefaultQuietStart, cfg.DefaultQuietEnd); err == nil {
		s.QuietHours = w
	}
	if cfg.DefaultEscalationDelayHours > 0 {
		s.EscalationDelay = time.Duration(cfg.DefaultEscalationDelayHours) * time.Hour
	}
	s.Location = cfg.Location()
	return s
}

// toNotifySettings 将持久化的设置转换为领域值；格式异常的字段回退到默认值
func toNotifySettings(m *model.NotificationSettings, defaults notify.Settings) notify.Settings {
	s := defaults
	s.QuietHoursEnabled = m.QuietHoursEnabled
	if w, err := timewindow.New(m.QuietHoursStart, m.QuietHoursEnd); err == nil {
		s.QuietHours = w
	}

	s.ScheduleEnabled = m.ScheduleEnabled
	s.ScheduleDays = make(map[time.Weekday]bool, len(m.ScheduleDays))
	for _, d := range m.ScheduleDays {
		if wd, ok := notify.ISOWeekday(d); ok {
			s.ScheduleDays[wd] = true
		}
	}
	if w, err := timewindow.New(m.ScheduleStart, m.ScheduleEnd); err == nil {
		s.ScheduleWindow = w
	}

	s.EscalationEnabled = m.EscalationEnabled
	if m.EscalationDelayHours > 0 {
		s.EscalationDelay = time.Duration(m.EscalationDelayHours) * time.Hour
	}

	if m.Timezone != "" {
		if loc, err := time.LoadLocation(m.Timezone); err == nil {
			s.Location = loc
		}
	}
	return s
}

// settingsResponse 领域设置 → 响应
func settingsResponse(s notify.Settings, isDefault bool) *dto.NotificationSettingsResponse {
	days := make([]int, 0, len(s.ScheduleDays))
	for wd, ok := range s.ScheduleDays {
		if ok {
			days = append(days, notify.WeekdayToISO(wd))
		}
	}
	sort.Ints(days)

	tz := "UTC"
	if s.Location != nil {
		tz = s.Location.String()
	}
	return &dto.NotificationSettingsResponse{
		QuietHoursEnabled:    s.QuietHoursEnabled,
		QuietHoursStart:      timewindow.FormatClock(s.QuietHours.Start),
		QuietHoursEnd:        timewindow.FormatClock(s.QuietHours.End),
		ScheduleEnabled:      s.ScheduleEnabled,
		ScheduleDays:         days,
		ScheduleStart:        timewindow.FormatClock(s.ScheduleWindow.Start),
		ScheduleEnd:          timewindow.FormatClock(s.ScheduleWindow.End),
		EscalationEnabled:    s.EscalationEnabled,
		EscalationDelayHours: int(s.EscalationDelay / time.Hour),
		Timezone:             tz,
		IsDefault:            isDefault,
	}
}
