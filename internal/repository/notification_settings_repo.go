package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"homeplanner/backend/internal/model"
)

// NotificationSettingsRepository 通知设置数据访问接口
// Get 在用户从未保存过设置时返回 gorm.ErrRecordNotFound，由调用方套用默认值。
type NotificationSettingsRepository interface {
	Get(ctx context.Context, userID string) (*model.NotificationSettings, error)
	Upsert(ctx context.Context, s *model.NotificationSettings) error
}

type notificationSettingsRepo struct {
	db *gorm.DB
}

// NewNotificationSettingsRepo 创建 NotificationSettingsRepository 实例
func NewNotificationSettingsRepo(db *gorm.DB) NotificationSettingsRepository {
	return &notificationSettingsRepo{db: db}
}

func (r *notificationSettingsRepo) Get(ctx context.Context, userID string) (*model.NotificationSettings, error) {
	var s model.NotificationSettings
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		First(&s).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *notificationSettingsRepo) Upsert(ctx context.Context, s *model.NotificationSettings) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"quiet_hours_enabled", "quiet_hours_start", "quiet_hours_end",
				"schedule_enabled", "schedule_days", "schedule_start", "schedule_end",
				"escalation_enabled", "escalation_delay_hours", "timezone",
				"updated_at", "updated_by",
			}),
		}).
		Create(s).Error
}
