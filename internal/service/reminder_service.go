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
)

// ReminderService 到期提醒接口
type ReminderService interface {
	// Run 为 due-offset ≤ today ≤ due 的已指派未完成任务发送提醒。
	// 每个 (任务, 指派人, 到期日) 最多一条提醒。
	Run(ctx context.Context, houseID string, now time.Time) (*dto.ReminderResult, error)
}

type reminderService struct {
	repo   *repository.Repository
	notif  NotificationService
	loc    *time.Location
	logger *zap.Logger
}

// NewReminderService 创建 ReminderService 实例
func NewReminderService(repo *repository.Repository, notif NotificationService, loc *time.Location, logger *zap.Logger) ReminderService {
	if loc == nil {
		loc = time.UTC
	}
	return &reminderService{repo: repo, notif: notif, loc: loc, logger: logger}
}

func (s *reminderService) Run(ctx context.Context, houseID string, now time.Time) (*dto.ReminderResult, error) {
	tasks, err := s.repo.Task.ListOpenAssigned(ctx, houseID)
	if err != nil {
		s.logger.Error("查询待提醒任务失败", zap.String("house_id", houseID), zap.Error(err))
		return nil, err
	}

	today := recurrence.Today(now, s.loc)
	result := &dto.ReminderResult{}

	for i := range tasks {
		task := &tasks[i]
		if !reminderDue(task, today) {
			continue
		}
		result.Checked++

		_, created, err := s.notif.Dispatch(ctx, reminderEvent(task, today, now))
		if err != nil {
			if errors.Is(err, ErrFeatureUnavailable) {
				return &dto.ReminderResult{}, nil
			}
			s.logger.Warn("发送到期提醒失败", zap.String("task_id", task.TaskID), zap.Error(err))
			continue
		}
		if created {
			result.Created++
		} else {
			result.Deduped++
		}
	}
	return result, nil
}

// reminderDue 提醒窗口 [due-offset, due]（按日期比较）
func reminderDue(task *model.Task, today time.Time) bool {
	if task.DueDate == nil || task.AssigneeID == nil || !task.IsOpen() {
		return false
	}
	due := recurrence.NormalizeDate(task.DueDate.UTC())
	offset := task.ReminderOffsetDays
	if offset < 0 {
		offset = 0
	}
	start := due.AddDate(0, 0, -offset)
	return !today.Before(start) && !today.After(due)
}

func reminderEvent(task *model.Task, today, now time.Time) *Event {
	dueKey := recurrence.DateKey(*task.DueDate)
	taskID := task.TaskID
	title := fmt.Sprintf("任务「%s」将于 %s 到期", task.Title, dueKey)
	if recurrence.DateKey(today) == dueKey {
		title = fmt.Sprintf("任务「%s」今天到期", task.Title)
	}
	return &Event{
		RecipientID:      *task.AssigneeID,
		HouseID:          task.HouseID,
		TaskID:           &taskID,
		Type:             model.NotificationReminder,
		Title:            title,
		Body:             task.Description,
		Link:             taskLink(task.TaskID),
		DedupeKey:        fmt.Sprintf("reminder:%s:%s:%s", task.TaskID, *task.AssigneeID, dueKey),
		SendEmail:        true,
		BypassQuietHours: task.QuietHoursBypass,
		BypassSchedule:   task.ScheduleBypass,
		Now:              now,
	}
}

func taskLink(taskID string) string {
	return "/tasks/" + taskID
}
