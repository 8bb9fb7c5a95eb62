package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"homeplanner/backend/internal/dto"
	"homeplanner/backend/internal/model"
	"homeplanner/backend/internal/notify"
	"homeplanner/backend/internal/repository"
	pkgerrors "homeplanner/backend/pkg/errors"
	"homeplanner/backend/pkg/metrics"
)

// escalationSourceTypes 可触发升级的通知类型
var escalationSourceTypes = []string{
	model.NotificationAssigned,
	model.NotificationReminder,
	model.NotificationStatus,
}

// EscalationService 升级扫描接口
type EscalationService interface {
	// Sweep 检查家庭下已指派未完成的任务：指派人在延迟时间内未读最近一条相关通知时，
	// 通知任务创建人与家庭负责人（不含指派人本人）。每个源通知、每个接收人最多升级一次。
	Sweep(ctx context.Context, houseID string, now time.Time) (*dto.SweepResult, error)
}

type escalationService struct {
	repo     *repository.Repository
	notif    NotificationService
	features Features
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

// NewEscalationService 创建 EscalationService 实例
func NewEscalationService(
	repo *repository.Repository,
	notif NotificationService,
	features Features,
	m *metrics.Metrics,
	logger *zap.Logger,
) EscalationService {
	return &escalationService{repo: repo, notif: notif, features: features, metrics: m, logger: logger}
}

func (s *escalationService) Sweep(ctx context.Context, houseID string, now time.Time) (*dto.SweepResult, error) {
	result := &dto.SweepResult{}
	if !s.features.Notifications {
		return result, nil
	}

	tasks, err := s.repo.Task.ListOpenAssigned(ctx, houseID)
	if err != nil {
		s.logger.Error("查询待升级任务失败", zap.String("house_id", houseID), zap.Error(err))
		return nil, err
	}
	if len(tasks) == 0 {
		return result, nil
	}

	house, err := s.repo.House.GetByID(ctx, houseID)
	if err != nil {
		s.logger.Error("查询家庭失败", zap.String("house_id", houseID), zap.Error(err))
		return nil, err
	}

	for i := range tasks {
		task := &tasks[i]
		result.Checked++

		escalated, deduped, err := s.sweepTask(ctx, house, task, now)
		result.Escalated += escalated
		result.Deduped += deduped
		if err != nil {
			result.Failed++
			s.logger.Warn("任务升级检查失败",
				zap.String("house_id", houseID),
				zap.String("task_id", task.TaskID),
				zap.Error(err),
			)
		}
	}

	if result.Escalated > 0 {
		s.logger.Info("升级扫描完成",
			zap.String("house_id", houseID),
			zap.Int("checked", result.Checked),
			zap.Int("escalated", result.Escalated),
		)
	}
	return result, nil
}

func (s *escalationService) sweepTask(ctx context.Context, house *model.House, task *model.Task, now time.Time) (int, int, error) {
	if task.AssigneeID == nil || !task.IsOpen() {
		return 0, 0, nil
	}
	assigneeID := *task.AssigneeID

	settings, err := s.notif.ResolveSettings(ctx, assigneeID)
	if err != nil {
		return 0, 0, fmt.Errorf("读取指派人通知设置失败: %w", err)
	}
	policy := notify.ResolveEscalation(settings, notify.TaskOverrides{
		EscalationEnabled:    task.EscalationEnabled,
		EscalationDelayHours: task.EscalationDelayHours,
	})
	if !policy.Enabled {
		return 0, 0, nil
	}

	source, err := s.repo.Notification.LatestForTask(ctx, task.TaskID, assigneeID, escalationSourceTypes)
	if err != nil {
		if pkgerrors.IsNotFound(err) {
			return 0, 0, nil
		}
		return 0, 0, fmt.Errorf("查询源通知失败: %w", err)
	}
	if source.IsRead() || now.Sub(source.CreatedAt) < policy.Delay {
		return 0, 0, nil
	}

	escalated, deduped := 0, 0
	for _, recipientID := range escalationRecipients(task, house) {
		_, created, err := s.notif.Dispatch(ctx, escalationEvent(task, source, recipientID, now))
		if err != nil {
			if errors.Is(err, ErrFeatureUnavailable) {
				return escalated, deduped, nil
			}
			return escalated, deduped, fmt.Errorf("发送升级通知失败: %w", err)
		}
		if created {
			escalated++
			s.metrics.IncEscalation()
		} else {
			deduped++
		}
	}
	return escalated, deduped, nil
}

// escalationRecipients {创建人, 家庭负责人} 去掉指派人，保持顺序并去重
func escalationRecipients(task *model.Task, house *model.House) []string {
	var candidates []string
	if task.CreatedBy != nil && *task.CreatedBy != "" {
		candidates = append(candidates, *task.CreatedBy)
	}
	if house != nil && house.OwnerID != "" {
		candidates = append(candidates, house.OwnerID)
	}

	seen := make(map[string]bool, len(candidates))
	recipients := make([]string, 0, len(candidates))
	for _, id := range candidates {
		if seen[id] || (task.AssigneeID != nil && id == *task.AssigneeID) {
			continue
		}
		seen[id] = true
		recipients = append(recipients, id)
	}
	return recipients
}

func escalationEvent(task *model.Task, source *model.Notification, recipientID string, now time.Time) *Event {
	taskID := task.TaskID
	hours := int(now.Sub(source.CreatedAt) / time.Hour)
	return &Event{
		RecipientID:      recipientID,
		HouseID:          task.HouseID,
		TaskID:           &taskID,
		Type:             model.NotificationEscalation,
		Title:            fmt.Sprintf("任务「%s」的通知已 %d 小时未读", task.Title, hours),
		Body:             source.Title,
		Link:             taskLink(task.TaskID),
		DedupeKey:        fmt.Sprintf("escalation:%s:%s:%s", task.TaskID, recipientID, source.NotificationID),
		SendEmail:        true,
		BypassQuietHours: task.QuietHoursBypass,
		BypassSchedule:   task.ScheduleBypass,
		Now:              now,
	}
}
