package dto

// ── 通知模块 DTO ──

// NotificationListRequest 通知列表查询参数
type NotificationListRequest struct {
	PaginationRequest
	UnreadOnly bool `form:"unread_only"`
}

// NotificationResponse 通知信息响应
type NotificationResponse struct {
	ID          string  `json:"id"`
	Type        string  `json:"type"`
	Title       string  `json:"title"`
	Body        string  `json:"body,omitempty"`
	Link        string  `json:"link,omitempty"`
	TaskID      *string `json:"task_id,omitempty"`
	IsRead      bool    `json:"is_read"`
	ReadAt      string  `json:"read_at,omitempty"`
	EmailSentAt string  `json:"email_sent_at,omitempty"`
	CreatedAt   string  `json:"created_at"`
}

// UpdateNotificationSettingsRequest 更新通知设置请求；未提供的字段保持原值
type UpdateNotificationSettingsRequest struct {
	QuietHoursEnabled    *bool   `json:"quiet_hours_enabled"`
	QuietHoursStart      *string `json:"quiet_hours_start"      binding:"omitempty,len=5"`
	QuietHoursEnd        *string `json:"quiet_hours_end"        binding:"omitempty,len=5"`
	ScheduleEnabled      *bool   `json:"schedule_enabled"`
	ScheduleDays         []int   `json:"schedule_days"          binding:"omitempty,max=7,dive,min=1,max=7"`
	ScheduleStart        *string `json:"schedule_start"         binding:"omitempty,len=5"`
	ScheduleEnd          *string `json:"schedule_end"           binding:"omitempty,len=5"`
	EscalationEnabled    *bool   `json:"escalation_enabled"`
	EscalationDelayHours *int    `json:"escalation_delay_hours" binding:"omitempty,min=1,max=720"`
	Timezone             *string `json:"timezone"               binding:"omitempty,max=64"`
}

// NotificationSettingsResponse 通知设置响应
type NotificationSettingsResponse struct {
	QuietHoursEnabled    bool   `json:"quiet_hours_enabled"`
	QuietHoursStart      string `json:"quiet_hours_start"`
	QuietHoursEnd        string `json:"quiet_hours_end"`
	ScheduleEnabled      bool   `json:"schedule_enabled"`
	ScheduleDays         []int  `json:"schedule_days"`
	ScheduleStart        string `json:"schedule_start"`
	ScheduleEnd          string `json:"schedule_end"`
	EscalationEnabled    bool   `json:"escalation_enabled"`
	EscalationDelayHours int    `json:"escalation_delay_hours"`
	Timezone             string `json:"timezone"`
	IsDefault            bool   `json:"is_default"` // 用户尚未保存过设置
}

// MarkAllReadResponse 全部已读响应
type MarkAllReadResponse struct {
	Updated int64 `json:"updated"`
}
