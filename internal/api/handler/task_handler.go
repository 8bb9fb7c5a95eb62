package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"homeplanner/backend/internal/dto"
	"homeplanner/backend/internal/service"
	"homeplanner/backend/pkg/response"
)

// TaskHandler 任务模块 HTTP 处理器
type TaskHandler struct {
	taskSvc service.TaskService
}

// NewTaskHandler 创建 TaskHandler
func NewTaskHandler(taskSvc service.TaskService) *TaskHandler {
	return &TaskHandler{taskSvc: taskSvc}
}

// AssignTask 指派或取消指派任务
// PUT /api/v1/tasks/:id/assignee
func (h *TaskHandler) AssignTask(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		response.BadRequest(c, 10001, "任务ID不能为空")
		return
	}

	var req dto.AssignTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	callerID, houseID, ok := MustGetIdentity(c)
	if !ok {
		return
	}

	task, err := h.taskSvc.Assign(c.Request.Context(), houseID, callerID, id, &req)
	if err != nil {
		h.handleTaskError(c, err)
		return
	}

	response.OK(c, task)
}

// UpdateTaskStatus 更新任务状态
// PUT /api/v1/tasks/:id/status
func (h *TaskHandler) UpdateTaskStatus(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		response.BadRequest(c, 10001, "任务ID不能为空")
		return
	}

	var req dto.UpdateTaskStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	callerID, houseID, ok := MustGetIdentity(c)
	if !ok {
		return
	}

	task, err := h.taskSvc.UpdateStatus(c.Request.Context(), houseID, callerID, id, &req)
	if err != nil {
		h.handleTaskError(c, err)
		return
	}

	response.OK(c, task)
}

func (h *TaskHandler) handleTaskError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrTaskNotFound):
		response.NotFound(c, 14001, err.Error())
	case errors.Is(err, service.ErrTaskIsTemplate):
		response.BadRequest(c, 14002, err.Error())
	case errors.Is(err, service.ErrTaskConflict):
		response.Conflict(c, 14003, err.Error())
	case errors.Is(err, service.ErrAssigneeNotMember):
		response.BadRequest(c, 14004, err.Error())
	case errors.Is(err, service.ErrInvalidTaskStatus):
		response.BadRequest(c, 14005, err.Error())
	default:
		response.InternalError(c)
	}
}
