package model

import "time"

// 任务状态
const (
	TaskStatusTodo       = "todo"
	TaskStatusInProgress = "in_progress"
	TaskStatusDone       = "done"
)

// ValidTaskStatus 校验任务状态取值
func ValidTaskStatus(s string) bool {
	switch s {
	case TaskStatusTodo, TaskStatusInProgress, TaskStatusDone:
		return true
	}
	return false
}

// Task 任务表 — 对应 tasks
//
// 同一张表存放两类行：
//   - 周期模板：IsRecurring=true、ParentID 为空、RecurrenceUnit≠none，DueDate 为锚点日期，不直接展示为待办；
//   - 普通任务与周期实例：实例的 ParentID 指向模板，(parent_id, due_date) 唯一。
//
// DueDate 只有日期意义，统一存为当天 12:00 UTC。
type Task struct {
	TaskID      string `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"task_id"`
	HouseID     string `gorm:"type:uuid;not null;index"                       json:"house_id"`
	Title       string `gorm:"type:varchar(200);not null"                     json:"title"`
	Description string `gorm:"type:text;not null;default:''"                  json:"description"`
	Status      string `gorm:"type:varchar(20);not null;default:'todo'"      json:"status"` // todo | in_progress | done

	// 周期定义（仅模板使用）
	ParentID           *string    `gorm:"type:uuid;index"                           json:"parent_id,omitempty"`
	IsRecurring        bool       `gorm:"not null;default:false"                    json:"is_recurring"`
	RecurrenceUnit     string     `gorm:"type:varchar(10);not null;default:'none'" json:"recurrence_unit"` // none | daily | weekly | monthly | yearly
	RecurrenceInterval int        `gorm:"not null;default:1"                        json:"recurrence_interval"`
	RecurrenceEndDate  *time.Time `gorm:"type:timestamptz"                          json:"recurrence_end_date,omitempty"`

	DueDate     *time.Time `gorm:"type:timestamptz" json:"due_date,omitempty"`
	AssigneeID  *string    `gorm:"type:uuid;index"  json:"assignee_id,omitempty"`
	CompletedAt *time.Time `gorm:"type:timestamptz" json:"completed_at,omitempty"`

	// 关联对象（由实例从模板继承）
	ZoneID      *string `gorm:"type:uuid" json:"zone_id,omitempty"`
	CategoryID  *string `gorm:"type:uuid" json:"category_id,omitempty"`
	ProjectID   *string `gorm:"type:uuid" json:"project_id,omitempty"`
	EquipmentID *string `gorm:"type:uuid" json:"equipment_id,omitempty"`
	PersonID    *string `gorm:"type:uuid" json:"person_id,omitempty"`

	// 提醒与投递控制
	ReminderOffsetDays   int   `gorm:"not null;default:0"     json:"reminder_offset_days"`
	QuietHoursBypass     bool  `gorm:"not null;default:false" json:"quiet_hours_bypass"`
	ScheduleBypass       bool  `gorm:"not null;default:false" json:"schedule_bypass"`
	EscalationEnabled    *bool `json:"escalation_enabled,omitempty"` // nil 表示沿用用户设置
	EscalationDelayHours *int  `json:"escalation_delay_hours,omitempty"`

	VersionedModel
}

// TableName 指定表名
func (Task) TableName() string { return "tasks" }

// IsTemplate 是否为周期模板
func (t *Task) IsTemplate() bool {
	return t.IsRecurring && t.ParentID == nil && t.RecurrenceUnit != "" && t.RecurrenceUnit != "none"
}

// IsOpen 是否仍未完成
func (t *Task) IsOpen() bool {
	return t.Status != TaskStatusDone
}

// InstanceFrom 由模板生成指定到期日的实例，继承标题、描述、指派人、创建人与全部关联及投递设置
func InstanceFrom(tpl *Task, due time.Time) *Task {
	parentID := tpl.TaskID
	inst := &Task{
		HouseID:              tpl.HouseID,
		Title:                tpl.Title,
		Description:          tpl.Description,
		Status:               TaskStatusTodo,
		ParentID:             &parentID,
		RecurrenceUnit:       "none",
		RecurrenceInterval:   1,
		DueDate:              &due,
		AssigneeID:           tpl.AssigneeID,
		ZoneID:               tpl.ZoneID,
		CategoryID:           tpl.CategoryID,
		ProjectID:            tpl.ProjectID,
		EquipmentID:          tpl.EquipmentID,
		PersonID:             tpl.PersonID,
		ReminderOffsetDays:   tpl.ReminderOffsetDays,
		QuietHoursBypass:     tpl.QuietHoursBypass,
		ScheduleBypass:       tpl.ScheduleBypass,
		EscalationEnabled:    tpl.EscalationEnabled,
		EscalationDelayHours: tpl.EscalationDelayHours,
	}
	inst.CreatedBy = tpl.CreatedBy
	inst.UpdatedBy = tpl.CreatedBy
	return inst
}
