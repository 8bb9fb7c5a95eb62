package repository

import (
	"context"

	"gorm.io/gorm"

	"homeplanner/backend/internal/model"
)

// HouseRepository 家庭数据访问接口
type HouseRepository interface {
	GetByID(ctx context.Context, id string) (*model.House, error)
	IsMember(ctx context.Context, houseID, userID string) (bool, error)
	ListIDs(ctx context.Context) ([]string, error)
}

type houseRepo struct {
	db *gorm.DB
}

// NewHouseRepo 创建 HouseRepository 实例
func NewHouseRepo(db *gorm.DB) HouseRepository {
	return &houseRepo{db: db}
}

func (r *houseRepo) GetByID(ctx context.Context, id string) (*model.House, error) {
	var house model.House
	err := r.db.WithContext(ctx).
		Where("house_id = ?", id).
		First(&house).Error
	if err != nil {
		return nil, err
	}
	return &house, nil
}

// IsMember 家庭负责人视为成员
func (r *houseRepo) IsMember(ctx context.Context, houseID, userID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.HouseMember{}).
		Where("house_id = ? AND user_id = ?", houseID, userID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	if count > 0 {
		return true, nil
	}

	err = r.db.WithContext(ctx).
		Model(&model.House{}).
		Where("house_id = ? AND owner_id = ?", houseID, userID).
		Count(&count).Error
	return count > 0, err
}

func (r *houseRepo) ListIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).
		Model(&model.House{}).
		Order("created_at ASC").
		Pluck("house_id", &ids).Error
	return ids, err
}
