package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"homeplanner/backend/internal/model"
	pkgerrors "homeplanner/backend/pkg/errors"
)

// TaskRepository 任务数据访问接口
type TaskRepository interface {
	Create(ctx context.Context, task *model.Task) error
	GetByID(ctx context.Context, id string) (*model.Task, error)
	GetByIDForUpdate(ctx context.Context, id string) (*model.Task, error)
	Update(ctx context.Context, task *model.Task) error

	// ListTemplates 家庭内所有周期模板（unit ≠ none）
	ListTemplates(ctx context.Context, houseID string) ([]model.Task, error)
	// ListInstanceDueDates 模板已有实例的到期日（含已删除实例，删除过的日期不再重新生成）
	ListInstanceDueDates(ctx context.Context, parentID string) ([]time.Time, error)
	// ListOpenAssigned 未完成且已指派的非模板任务
	ListOpenAssigned(ctx context.Context, houseID string) ([]model.Task, error)
	// ListDueBetween 到期日落在 [from, to] 的非模板任务，按到期日升序
	ListDueBetween(ctx context.Context, houseID string, from, to time.Time) ([]model.Task, error)
}

type taskRepo struct {
	db *gorm.DB
}

// NewTaskRepo 创建 TaskRepository 实例
func NewTaskRepo(db *gorm.DB) TaskRepository {
	return &taskRepo{db: db}
}

// nonTemplate 排除周期模板
func nonTemplate(db *gorm.DB) *gorm.DB {
	return db.Where("(parent_id IS NOT NULL OR is_recurring = ? OR recurrence_unit = ?)", false, "none")
}

func (r *taskRepo) Create(ctx context.Context, task *model.Task) error {
	return r.db.WithContext(ctx).Create(task).Error
}

func (r *taskRepo) GetByID(ctx context.Context, id string) (*model.Task, error) {
	var task model.Task
	err := r.db.WithContext(ctx).
		Where("task_id = ?", id).
		First(&task).Error
	if err != nil {
		return nil, err
	}
	return &task, nil
}

// GetByIDForUpdate 行锁读取，需在事务内调用
func (r *taskRepo) GetByIDForUpdate(ctx context.Context, id string) (*model.Task, error) {
	var task model.Task
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("task_id = ?", id).
		First(&task).Error
	if err != nil {
		return nil, err
	}
	return &task, nil
}

// Update 基于 version 的乐观锁更新，只写可变字段
func (r *taskRepo) Update(ctx context.Context, task *model.Task) error {
	oldVersion := task.Version
	result := r.db.WithContext(ctx).
		Model(task).
		Where("task_id = ? AND version = ?", task.TaskID, oldVersion).
		Updates(map[string]interface{}{
			"status":       task.Status,
			"assignee_id":  task.AssigneeID,
			"completed_at": task.CompletedAt,
			"updated_by":   task.UpdatedBy,
			"version":      oldVersion + 1,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return pkgerrors.ErrOptimisticLock
	}
	task.Version = oldVersion + 1
	return nil
}

func (r *taskRepo) ListTemplates(ctx context.Context, houseID string) ([]model.Task, error) {
	var tasks []model.Task
	err := r.db.WithContext(ctx).
		Where("house_id = ? AND is_recurring = ? AND parent_id IS NULL AND recurrence_unit <> ?",
			houseID, true, "none").
		Where("due_date IS NOT NULL").
		Order("created_at ASC").
		Find(&tasks).Error
	return tasks, err
}

func (r *taskRepo) ListInstanceDueDates(ctx context.Context, parentID string) ([]time.Time, error) {
	var dates []time.Time
	err := r.db.WithContext(ctx).
		Unscoped().
		Model(&model.Task{}).
		Where("parent_id = ? AND due_date IS NOT NULL", parentID).
		Pluck("due_date", &dates).Error
	return dates, err
}

func (r *taskRepo) ListOpenAssigned(ctx context.Context, houseID string) ([]model.Task, error) {
	var tasks []model.Task
	db := r.db.WithContext(ctx).
		Where("house_id = ? AND status <> ? AND assignee_id IS NOT NULL", houseID, model.TaskStatusDone)
	err := nonTemplate(db).
		Order("due_date ASC NULLS LAST").
		Find(&tasks).Error
	return tasks, err
}

func (r *taskRepo) ListDueBetween(ctx context.Context, houseID string, from, to time.Time) ([]model.Task, error) {
	var tasks []model.Task
	db := r.db.WithContext(ctx).
		Where("house_id = ? AND due_date BETWEEN ? AND ?", houseID, from, to)
	err := nonTemplate(db).
		Order("due_date ASC, title ASC").
		Find(&tasks).Error
	return tasks, err
}
