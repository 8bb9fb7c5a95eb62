package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"homeplanner/backend/internal/dto"
	"homeplanner/backend/internal/model"
	"homeplanner/backend/internal/recurrence"
	"homeplanner/backend/internal/repository"
	pkgerrors "homeplanner/backend/pkg/errors"
	"homeplanner/backend/pkg/metrics"
)

// RecurrenceService 周期任务展开接口
type RecurrenceService interface {
	// ExpandHouse 为家庭下所有周期模板补齐 [today, today+horizon] 内缺失的实例。
	// 单个模板失败只记录日志并计入 Failed，不影响其他模板。
	ExpandHouse(ctx context.Context, houseID string, now time.Time) (*dto.ExpandResult, error)
}

type recurrenceService struct {
	repo        *repository.Repository
	horizonDays int
	loc         *time.Location
	metrics     *metrics.Metrics
	logger      *zap.Logger
}

// NewRecurrenceService 创建 RecurrenceService 实例
func NewRecurrenceService(
	repo *repository.Repository,
	horizonDays int,
	loc *time.Location,
	m *metrics.Metrics,
	logger *zap.Logger,
) RecurrenceService {
	if loc == nil {
		loc = time.UTC
	}
	return &recurrenceService{
		repo:        repo,
		horizonDays: horizonDays,
		loc:         loc,
		metrics:     m,
		logger:      logger,
	}
}

func (s *recurrenceService) ExpandHouse(ctx context.Context, houseID string, now time.Time) (*dto.ExpandResult, error) {
	templates, err := s.repo.Task.ListTemplates(ctx, houseID)
	if err != nil {
		s.logger.Error("查询周期模板失败", zap.String("house_id", houseID), zap.Error(err))
		return nil, err
	}

	today := recurrence.Today(now, s.loc)
	result := &dto.ExpandResult{Templates: len(templates)}

	for i := range templates {
		tpl := &templates[i]
		created, err := s.expandTemplate(ctx, tpl, today)
		result.Created += created
		if err != nil {
			result.Failed++
			s.logger.Warn("展开周期模板失败",
				zap.String("house_id", houseID),
				zap.String("template_id", tpl.TaskID),
				zap.Error(err),
			)
		}
	}

	if result.Created > 0 {
		s.logger.Info("周期任务展开完成",
			zap.String("house_id", houseID),
			zap.Int("templates", result.Templates),
			zap.Int("created", result.Created),
		)
	}
	return result, nil
}

// expandTemplate 返回新建的实例数；已创建的实例在出错时仍然计数
func (s *recurrenceService) expandTemplate(ctx context.Context, tpl *model.Task, today time.Time) (int, error) {
	if tpl.DueDate == nil {
		return 0, fmt.Errorf("模板缺少锚点日期")
	}
	unit, err := recurrence.ParseUnit(tpl.RecurrenceUnit)
	if err != nil {
		return 0, err
	}
	t := recurrence.Template{
		Anchor:   tpl.DueDate.UTC(),
		Unit:     unit,
		Interval: tpl.RecurrenceInterval,
	}
	if tpl.RecurrenceEndDate != nil {
		end := tpl.RecurrenceEndDate.UTC()
		t.EndDate = &end
	}

	dates, err := s.repo.Task.ListInstanceDueDates(ctx, tpl.TaskID)
	if err != nil {
		return 0, fmt.Errorf("查询已有实例失败: %w", err)
	}
	existing := make(map[string]struct{}, len(dates))
	for _, d := range dates {
		existing[recurrence.DateKey(d)] = struct{}{}
	}

	pending, err := recurrence.PendingDueDates(t, existing, today, s.horizonDays)
	if err != nil {
		return 0, err
	}

	created := 0
	for _, due := range pending {
		inst := model.InstanceFrom(tpl, due)
		if err := s.repo.Task.Create(ctx, inst); err != nil {
			// 另一个请求已创建同一天的实例
			if pkgerrors.IsUniqueViolation(err) {
				continue
			}
			s.metrics.AddInstancesCreated(string(unit), created)
			return created, fmt.Errorf("创建实例 %s 失败: %w", recurrence.DateKey(due), err)
		}
		created++
	}
	s.metrics.AddInstancesCreated(string(unit), created)
	return created, nil
}
