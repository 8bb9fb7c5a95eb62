package dto

// ── 调度结果 DTO（展开、提醒、升级、刷新） ──

// ExpandResult 周期展开结果
type ExpandResult struct {
	Templates int `json:"templates"` // 处理的模板数
	Created   int `json:"created"`   // 新建实例数
	Failed    int `json:"failed"`    // 失败的模板数
}

// ReminderResult 到期提醒结果
type ReminderResult struct {
	Checked int `json:"checked"`
	Created int `json:"created"`
	Deduped int `json:"deduped"`
}

// SweepResult 升级扫描结果
type SweepResult struct {
	Checked   int `json:"checked"`   // 检查的任务数
	Escalated int `json:"escalated"` // 新建的升级通知数
	Deduped   int `json:"deduped"`   // 已存在而跳过的升级通知数
	Failed    int `json:"failed"`    // 处理失败的任务数
}

// RefreshResult 一次家庭刷新（展开 → 提醒 → 升级）的结果
type RefreshResult struct {
	Skipped    bool            `json:"skipped"`
	Reason     string          `json:"reason,omitempty"` // locked | shared
	Expand     *ExpandResult   `json:"expand,omitempty"`
	Reminders  *ReminderResult `json:"reminders,omitempty"`
	Escalation *SweepResult    `json:"escalation,omitempty"`
}

// AgendaResponse 首页日程
type AgendaResponse struct {
	Today               string               `json:"today"`
	Days                int                  `json:"days"`
	Tasks               []TaskResponse       `json:"tasks"`
	ImportantDates      []OccurrenceResponse `json:"important_dates"`
	UnreadNotifications int64                `json:"unread_notifications"`
	Refresh             *RefreshResult       `json:"refresh,omitempty"`
}
