package notify

import "time"

// MayDeliverNow 判断此刻是否允许发送通知邮件。纯函数，无副作用。
//
// 任务级 bypass 可强制立即投递，用于时间敏感的提醒。
func MayDeliverNow(s Settings, now time.Time, bypassQuietHours, bypassSchedule bool) bool {
	loc := s.Location
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)

	if s.ScheduleEnabled && !bypassSchedule {
		if !s.ScheduleDays[local.Weekday()] {
			return false
		}
		if !s.ScheduleWindow.ContainsTime(local) {
			return false
		}
	}

	if s.QuietHoursEnabled && !bypassQuietHours {
		if s.QuietHours.ContainsTime(local) {
			return false
		}
	}

	return true
}
