package repository

import (
	"context"

	"gorm.io/gorm"

	"homeplanner/backend/internal/model"
)

// ImportantDateRepository 重要日期数据访问接口
type ImportantDateRepository interface {
	ListByHouse(ctx context.Context, houseID string) ([]model.ImportantDate, error)
}

type importantDateRepo struct {
	db *gorm.DB
}

// NewImportantDateRepo 创建 ImportantDateRepository 实例
func NewImportantDateRepo(db *gorm.DB) ImportantDateRepository {
	return &importantDateRepo{db: db}
}

func (r *importantDateRepo) ListByHouse(ctx context.Context, houseID string) ([]model.ImportantDate, error) {
	var dates []model.ImportantDate
	err := r.db.WithContext(ctx).
		Where("house_id = ?", houseID).
		Order("date ASC, title ASC").
		Find(&dates).Error
	return dates, err
}
