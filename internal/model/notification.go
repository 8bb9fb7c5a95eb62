package model

import "time"

// 通知类型
const (
	NotificationAssigned       = "assigned"
	NotificationCommented      = "commented"
	NotificationStatus         = "status"
	NotificationReminder       = "reminder"
	NotificationEscalation     = "escalation"
	NotificationProjectCreated = "project_created"
	NotificationInviteAccepted = "invite_accepted"
)

// Notification 通知消息表 — 对应 notifications
// DedupeKey 非空时全局唯一，同一个键最多生成一条通知。
type Notification struct {
	NotificationID string     `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"notification_id"`
	UserID         string     `gorm:"type:uuid;not null;index"                       json:"user_id"`
	HouseID        string     `gorm:"type:uuid;not null"                             json:"house_id"`
	TaskID         *string    `gorm:"type:uuid;index"                                json:"task_id,omitempty"`
	Type           string     `gorm:"type:varchar(30);not null"                      json:"type"`
	Title          string     `gorm:"type:varchar(200);not null"                     json:"title"`
	Body           string     `gorm:"type:text;not null;default:''"                  json:"body"`
	Link           string     `gorm:"type:varchar(500);not null;default:''"          json:"link"`
	DedupeKey      *string    `gorm:"type:varchar(255);uniqueIndex"                  json:"dedupe_key,omitempty"`
	ReadAt         *time.Time `gorm:"type:timestamptz"                               json:"read_at,omitempty"`
	EmailSentAt    *time.Time `gorm:"type:timestamptz"                               json:"email_sent_at,omitempty"`
	CreatedAt      time.Time  `gorm:"not null;default:CURRENT_TIMESTAMP"             json:"created_at"`
}

// TableName 指定表名
func (Notification) TableName() string { return "notifications" }

// IsRead 是否已读
func (n *Notification) IsRead() bool { return n.ReadAt != nil }

// NotificationSettings 通知设置表 — 对应 notification_settings（与 users 1:1）
// 时刻字段为 "HH:MM"，按 Timezone 解释；ScheduleDays 为 ISO 周几（1=周一 … 7=周日）。
type NotificationSettings struct {
	UserID               string   `gorm:"type:uuid;primaryKey"                          json:"user_id"`
	QuietHoursEnabled    bool     `gorm:"not null;default:false"                        json:"quiet_hours_enabled"`
	QuietHoursStart      string   `gorm:"type:varchar(5);not null;default:'22:00'"     json:"quiet_hours_start"`
	QuietHoursEnd        string   `gorm:"type:varchar(5);not null;default:'07:00'"     json:"quiet_hours_end"`
	ScheduleEnabled      bool     `gorm:"not null;default:false"                        json:"schedule_enabled"`
	ScheduleDays         IntArray `gorm:"type:int[]"                                    json:"schedule_days"`
	ScheduleStart        string   `gorm:"type:varchar(5);not null;default:'00:00'"     json:"schedule_start"`
	ScheduleEnd          string   `gorm:"type:varchar(5);not null;default:'00:00'"     json:"schedule_end"`
	EscalationEnabled    bool     `gorm:"not null"                                      json:"escalation_enabled"`
	EscalationDelayHours int      `gorm:"not null;default:24"                           json:"escalation_delay_hours"`
	Timezone             string   `gorm:"type:varchar(64);not null;default:'UTC'"      json:"timezone"`
	BaseModel
}

// TableName 指定表名
func (NotificationSettings) TableName() string { return "notification_settings" }
