package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"homeplanner/backend/internal/dto"
	"homeplanner/backend/internal/model"
	"homeplanner/backend/internal/recurrence"
	"homeplanner/backend/internal/repository"
	pkgerrors "homeplanner/backend/pkg/errors"
)

// ── 任务模块业务错误 ──

var (
	ErrTaskNotFound      = errors.New("任务不存在")
	ErrTaskIsTemplate    = errors.New("周期模板不能直接修改状态")
	ErrTaskConflict      = errors.New("任务已被其他人修改，请刷新后重试")
	ErrAssigneeNotMember = errors.New("指派人不是该家庭成员")
	ErrInvalidTaskStatus = errors.New("任务状态无效")
)

// TaskService 任务指派与状态接口
type TaskService interface {
	Assign(ctx context.Context, houseID, callerID, taskID string, req *dto.AssignTaskRequest) (*dto.TaskResponse, error)
	UpdateStatus(ctx context.Context, houseID, callerID, taskID string, req *dto.UpdateTaskStatusRequest) (*dto.TaskResponse, error)
}

type taskService struct {
	repo   *repository.Repository
	notif  NotificationService
	logger *zap.Logger
}

// NewTaskService 创建 TaskService 实例
func NewTaskService(repo *repository.Repository, notif NotificationService, logger *zap.Logger) TaskService {
	return &taskService{repo: repo, notif: notif, logger: logger}
}

// ────────────────────── Assign ──────────────────────

func (s *taskService) Assign(ctx context.Context, houseID, callerID, taskID string, req *dto.AssignTaskRequest) (*dto.TaskResponse, error) {
	if req.AssigneeID != nil {
		ok, err := s.repo.House.IsMember(ctx, houseID, *req.AssigneeID)
		if err != nil {
			s.logger.Error("校验家庭成员失败", zap.String("house_id", houseID), zap.Error(err))
			return nil, err
		}
		if !ok {
			return nil, ErrAssigneeNotMember
		}
	}

	task, changed, err := s.mutate(ctx, houseID, taskID, func(t *model.Task) (bool, error) {
		if sameAssignee(t.AssigneeID, req.AssigneeID) {
			return false, nil
		}
		t.AssigneeID = req.AssigneeID
		t.UpdatedBy = &callerID
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	// 模板的指派人由实例继承，实例生成后再经提醒通知
	if changed && task.AssigneeID != nil && *task.AssigneeID != callerID && !task.IsTemplate() {
		s.dispatch(ctx, assignedEvent(task, time.Now()))
	}
	return toTaskResponse(task), nil
}

// ────────────────────── UpdateStatus ──────────────────────

func (s *taskService) UpdateStatus(ctx context.Context, houseID, callerID, taskID string, req *dto.UpdateTaskStatusRequest) (*dto.TaskResponse, error) {
	if !model.ValidTaskStatus(req.Status) {
		return nil, ErrInvalidTaskStatus
	}

	now := time.Now().UTC()
	task, changed, err := s.mutate(ctx, houseID, taskID, func(t *model.Task) (bool, error) {
		if t.IsTemplate() {
			return false, ErrTaskIsTemplate
		}
		if t.Status == req.Status {
			return false, nil
		}
		t.Status = req.Status
		if req.Status == model.TaskStatusDone {
			t.CompletedAt = &now
		} else {
			t.CompletedAt = nil
		}
		t.UpdatedBy = &callerID
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	if changed && task.CreatedBy != nil && *task.CreatedBy != callerID {
		s.dispatch(ctx, statusEvent(task, *task.CreatedBy, now))
	}
	return toTaskResponse(task), nil
}

// mutate 在事务内加锁读取任务、应用修改并按版本号更新；fn 返回 false 时不写库
func (s *taskService) mutate(ctx context.Context, houseID, taskID string, fn func(*model.Task) (bool, error)) (*model.Task, bool, error) {
	tx, err := s.repo.BeginTx(ctx)
	if err != nil {
		s.logger.Error("开启事务失败", zap.Error(err))
		return nil, false, err
	}
	defer func() {
		if r := recover(); r != nil {
			if tx != nil {
				tx.Rollback()
			}
			panic(r)
		}
	}()
	rollback := func() {
		if tx != nil {
			tx.Rollback()
		}
	}

	txRepo := s.repo.WithTx(tx)

	task, err := txRepo.Task.GetByIDForUpdate(ctx, taskID)
	if err != nil {
		rollback()
		if pkgerrors.IsNotFound(err) {
			return nil, false, ErrTaskNotFound
		}
		s.logger.Error("查询任务失败", zap.String("task_id", taskID), zap.Error(err))
		return nil, false, err
	}
	if task.HouseID != houseID {
		rollback()
		return nil, false, ErrTaskNotFound
	}

	changed, err := fn(task)
	if err != nil {
		rollback()
		return nil, false, err
	}
	if !changed {
		rollback()
		return task, false, nil
	}

	if err := txRepo.Task.Update(ctx, task); err != nil {
		rollback()
		if errors.Is(err, pkgerrors.ErrOptimisticLock) {
			return nil, false, ErrTaskConflict
		}
		s.logger.Error("更新任务失败", zap.String("task_id", taskID), zap.Error(err))
		return nil, false, err
	}

	if tx != nil {
		if err := tx.Commit().Error; err != nil {
			s.logger.Error("提交事务失败", zap.Error(err))
			return nil, false, err
		}
	}
	return task, true, nil
}

// dispatch 任务修改已提交，通知失败只记录日志
func (s *taskService) dispatch(ctx context.Context, ev *Event) {
	if _, _, err := s.notif.Dispatch(ctx, ev); err != nil && !errors.Is(err, ErrFeatureUnavailable) {
		s.logger.Warn("发送任务通知失败",
			zap.String("type", ev.Type),
			zap.String("recipient_id", ev.RecipientID),
			zap.Error(err),
		)
	}
}

func sameAssignee(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func assignedEvent(task *model.Task, now time.Time) *Event {
	taskID := task.TaskID
	title := fmt.Sprintf("你被指派了任务「%s」", task.Title)
	if task.DueDate != nil {
		title = fmt.Sprintf("你被指派了任务「%s」，%s 到期", task.Title, recurrence.DateKey(*task.DueDate))
	}
	return &Event{
		RecipientID:      *task.AssigneeID,
		HouseID:          task.HouseID,
		TaskID:           &taskID,
		Type:             model.NotificationAssigned,
		Title:            title,
		Body:             task.Description,
		Link:             taskLink(task.TaskID),
		DedupeKey:        fmt.Sprintf("assigned:%s:%s:%d", task.TaskID, *task.AssigneeID, task.Version),
		SendEmail:        true,
		BypassQuietHours: task.QuietHoursBypass,
		BypassSchedule:   task.ScheduleBypass,
		Now:              now,
	}
}

var statusLabels = map[string]string{
	model.TaskStatusTodo:       "待办",
	model.TaskStatusInProgress: "进行中",
	model.TaskStatusDone:       "已完成",
}

func statusEvent(task *model.Task, recipientID string, now time.Time) *Event {
	taskID := task.TaskID
	return &Event{
		RecipientID: recipientID,
		HouseID:     task.HouseID,
		TaskID:      &taskID,
		Type:        model.NotificationStatus,
		Title:       fmt.Sprintf("任务「%s」状态变更为%s", task.Title, statusLabels[task.Status]),
		Link:        taskLink(task.TaskID),
		DedupeKey:   fmt.Sprintf("status:%s:%d", task.TaskID, task.Version),
		SendEmail:   true,
		Now:         now,
	}
}

func toTaskResponse(t *model.Task) *dto.TaskResponse {
	resp := &dto.TaskResponse{
		ID:          t.TaskID,
		HouseID:     t.HouseID,
		ParentID:    t.ParentID,
		Title:       t.Title,
		Description: t.Description,
		Status:      t.Status,
		AssigneeID:  t.AssigneeID,
		IsTemplate:  t.IsTemplate(),
		Version:     t.Version,
	}
	if t.DueDate != nil {
		resp.DueDate = recurrence.DateKey(*t.DueDate)
	}
	if t.CompletedAt != nil {
		resp.CompletedAt = t.CompletedAt.Format(time.RFC3339)
	}
	return resp
}
