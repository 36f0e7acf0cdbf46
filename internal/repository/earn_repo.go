package repository

import (
	"context"
	"errors"
	"time"

	"coinduel/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type EarnCounterRepository struct {
	db *gorm.DB
}

func NewEarnCounterRepository(db *gorm.DB) *EarnCounterRepository {
	return &EarnCounterRepository{db: db}
}

// GetForUpdate 事务内按 (用户, 来源, 周期键) 读取计数器，不存在返回 nil
func (r *EarnCounterRepository) GetForUpdate(ctx context.Context, tx *gorm.DB, userID int64, source, periodKey string) (*model.EarnCounter, error) {
	var counter model.EarnCounter
	err := tx.WithContext(ctx).
		Where("user_id = ? AND source = ? AND period_key = ?", userID, source, periodKey).
		First(&counter).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &counter, nil
}

// Bump 计数器加量，行不存在时惰性创建
// 与余额入账同事务调用；事务回滚时计数一并回滚
func (r *EarnCounterRepository) Bump(ctx context.Context, tx *gorm.DB, userID int64, source, periodKey string, amount int64) error {
	counter := &model.EarnCounter{
		UserID:    userID,
		Source:    source,
		PeriodKey: periodKey,
		Amount:    amount,
		Ops:       1,
	}
	return tx.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}, {Name: "source"}, {Name: "period_key"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"amount": gorm.Expr("amount + ?", amount),
				"ops":    gorm.Expr("ops + 1"),
			}),
		}).
		Create(counter).Error
}

// DeleteBefore 清理过期周期的计数行
func (r *EarnCounterRepository) DeleteBefore(ctx context.Context, before time.Time, limit int) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("updated_at < ?", before).
		Limit(limit).
		Delete(&model.EarnCounter{})
	return result.RowsAffected, result.Error
}
