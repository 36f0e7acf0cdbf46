package repository

import (
	"context"
	"errors"
	"time"

	"coinduel/internal/model"

	"gorm.io/gorm"
)

var (
	ErrRewardNotFound      = errors.New("兑换单不存在")
	ErrRewardStatusInvalid = errors.New("兑换单状态不合法")
)

type RewardRepository struct {
	db *gorm.DB
}

func NewRewardRepository(db *gorm.DB) *RewardRepository {
	return &RewardRepository{db: db}
}

func (r *RewardRepository) Create(ctx context.Context, tx *gorm.DB, reward *model.RewardRequest) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(reward).Error
}

func (r *RewardRepository) GetByRewardNo(ctx context.Context, rewardNo string) (*model.RewardRequest, error) {
	var reward model.RewardRequest
	err := r.db.WithContext(ctx).Where("reward_no = ?", rewardNo).First(&reward).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRewardNotFound
		}
		return nil, err
	}
	return &reward, nil
}

// UpdateStatus 条件状态流转：WHERE status = fromStatus 保证只有第一个处理者生效
func (r *RewardRepository) UpdateStatus(ctx context.Context, tx *gorm.DB, rewardNo, fromStatus, toStatus string, adminID int64, notes string) error {
	if !model.RewardCanTransitionTo(fromStatus, toStatus) {
		return ErrRewardStatusInvalid
	}

	if tx == nil {
		tx = r.db
	}

	now := time.Now()
	result := tx.WithContext(ctx).
		Model(&model.RewardRequest{}).
		Where("reward_no = ? AND status = ?", rewardNo, fromStatus).
		Updates(map[string]interface{}{
			"status":      toStatus,
			"admin_id":    adminID,
			"notes":       notes,
			"resolved_at": &now,
		})

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrRewardStatusInvalid
	}

	return nil
}

func (r *RewardRepository) ListByStatus(ctx context.Context, status string, limit int) ([]*model.RewardRequest, error) {
	var rewards []*model.RewardRequest
	err := r.db.WithContext(ctx).
		Where("status = ?", status).
		Order("created_at ASC").
		Limit(limit).
		Find(&rewards).Error
	return rewards, err
}

func (r *RewardRepository) ListByUserID(ctx context.Context, userID int64, page, pageSize int) ([]*model.RewardRequest, int64, error) {
	var rewards []*model.RewardRequest
	var total int64

	query := r.db.WithContext(ctx).Model(&model.RewardRequest{}).Where("user_id = ?", userID)

	err := query.Count(&total).Error
	if err != nil {
		return nil, 0, err
	}

	err = query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&rewards).Error

	return rewards, total, err
}
