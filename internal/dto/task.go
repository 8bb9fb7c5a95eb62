package dto

// ── 任务模块 DTO ──

// AssignTaskRequest 指派任务请求；assignee_id 为 null 表示取消指派
type AssignTaskRequest struct {
	AssigneeID *string `json:"assignee_id" binding:"omitempty,uuid"`
}

// UpdateTaskStatusRequest 更新任务状态请求
type UpdateTaskStatusRequest struct {
	Status string `json:"status" binding:"required,oneof=todo in_progress done"`
}

// TaskResponse 任务信息响应
type TaskResponse struct {
	ID          string  `json:"id"`
	HouseID     string  `json:"house_id"`
	ParentID    *string `json:"parent_id,omitempty"`
	Title       string  `json:"title"`
	Description string  `json:"description,omitempty"`
	Status      string  `json:"status"`
	DueDate     string  `json:"due_date,omitempty"` // yyyy-MM-dd
	AssigneeID  *string `json:"assignee_id,omitempty"`
	IsTemplate  bool    `json:"is_template"`
	CompletedAt string  `json:"completed_at,omitempty"`
	Version     int     `json:"version"`
}
