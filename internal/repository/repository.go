package repository

import (
	"context"

	"gorm.io/gorm"
)

// Repository 所有 Repository 的聚合入口
type Repository struct {
	db *gorm.DB

	User                 UserRepository
	House                HouseRepository
	Task                 TaskRepository
	ImportantDate        ImportantDateRepository
	Notification         NotificationRepository
	NotificationSettings NotificationSettingsRepository
}

// NewRepository 创建 Repository 聚合
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{
		db:                   db,
		User:                 NewUserRepo(db),
		House:                NewHouseRepo(db),
		Task:                 NewTaskRepo(db),
		ImportantDate:        NewImportantDateRepo(db),
		Notification:         NewNotificationRepo(db),
		NotificationSettings: NewNotificationSettingsRepo(db),
	}
}

// BeginTx 开启事务。单元测试中未注入 db 时返回 nil，调用方按无事务处理。
func (r *Repository) BeginTx(ctx context.Context) (*gorm.DB, error) {
	if r.db == nil {
		return nil, nil
	}
	tx := r.db.WithContext(ctx).Begin()
	return tx, tx.Error
}

// WithTx 返回绑定到事务连接的 Repository 副本；tx 为 nil 时返回自身
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return NewRepository(tx)
}
