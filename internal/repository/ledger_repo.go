package repository

import (
	"context"
	"errors"
	"time"

	"coinduel/internal/model"

	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

var (
	ErrDuplicateOperation = errors.New("重复操作，已执行过")
)

// mysqlDuplicateEntry MySQL 唯一索引冲突错误码
const mysqlDuplicateEntry = 1062

func isDuplicateKeyErr(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == mysqlDuplicateEntry
	}
	return false
}

type LedgerRepository struct {
	db *gorm.DB
}

func NewLedgerRepository(db *gorm.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// AppendEntry 追加一条账变流水，只在资金事务内调用
func (r *LedgerRepository) AppendEntry(ctx context.Context, tx *gorm.DB, entry *model.LedgerEntry) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(entry).Error
}

func (r *LedgerRepository) ListByUserID(ctx context.Context, userID int64, page, pageSize int) ([]*model.LedgerEntry, int64, error) {
	var entries []*model.LedgerEntry
	var total int64

	query := r.db.WithContext(ctx).Model(&model.LedgerEntry{}).Where("user_id = ?", userID)

	err := query.Count(&total).Error
	if err != nil {
		return nil, 0, err
	}

	err = query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&entries).Error

	return entries, total, err
}

// SumByUserID 用户流水金额累加，对账用：结果必须等于账户当前余额
func (r *LedgerRepository) SumByUserID(ctx context.Context, userID int64) (int64, error) {
	var sum int64
	err := r.db.WithContext(ctx).
		Model(&model.LedgerEntry{}).
		Where("user_id = ?", userID).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&sum).Error
	return sum, err
}

// ============================================================
// 幂等键
// ============================================================

// ConsumeIdemKey 事务内消费幂等键
//
// 【关键点】插入发生在任何资金副作用之前、且与副作用同事务：
// 唯一索引冲突 => 这笔操作已经做过，返回 ErrDuplicateOperation，
// 外层事务整体回滚，对状态零影响。
func (r *LedgerRepository) ConsumeIdemKey(ctx context.Context, tx *gorm.DB, key *model.IdempotencyKey) error {
	err := tx.WithContext(ctx).Create(key).Error
	if err != nil {
		if isDuplicateKeyErr(err) {
			return ErrDuplicateOperation
		}
		return err
	}
	return nil
}

// GetIdemKey 查询幂等键，重放时取回首次执行的业务单号；不存在返回 nil
func (r *LedgerRepository) GetIdemKey(ctx context.Context, idemKey string) (*model.IdempotencyKey, error) {
	var key model.IdempotencyKey
	err := r.db.WithContext(ctx).Where("idem_key = ?", idemKey).First(&key).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &key, nil
}

// DeleteIdemKeysBefore 清理过期幂等键，纯存储卫生
func (r *LedgerRepository) DeleteIdemKeysBefore(ctx context.Context, before time.Time, limit int) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("created_at < ?", before).
		Limit(limit).
		Delete(&model.IdempotencyKey{})
	return result.RowsAffected, result.Error
}
