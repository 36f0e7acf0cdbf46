package repository

import (
	"context"
	"errors"
	"time"

	"coinduel/internal/model"

	"gorm.io/gorm"
)

var (
	ErrMatchNotFound     = errors.New("对局不存在")
	ErrMatchStateInvalid = errors.New("对局状态不合法")
)

type MatchRepository struct {
	db *gorm.DB
}

func NewMatchRepository(db *gorm.DB) *MatchRepository {
	return &MatchRepository{db: db}
}

// Create 对局行与两条参与者行一起写，必须在押注托管事务内调用
func (r *MatchRepository) Create(ctx context.Context, tx *gorm.DB, match *model.Match, players []*model.MatchPlayer) error {
	if err := tx.WithContext(ctx).Create(match).Error; err != nil {
		return err
	}
	for _, p := range players {
		if err := tx.WithContext(ctx).Create(p).Error; err != nil {
			return err
		}
	}
	return nil
}

func (r *MatchRepository) GetByMatchNo(ctx context.Context, matchNo string) (*model.Match, error) {
	var match model.Match
	err := r.db.WithContext(ctx).Where("match_no = ?", matchNo).First(&match).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMatchNotFound
		}
		return nil, err
	}
	return &match, nil
}

func (r *MatchRepository) GetPlayers(ctx context.Context, matchNo string) ([]*model.MatchPlayer, error) {
	var players []*model.MatchPlayer
	err := r.db.WithContext(ctx).
		Where("match_no = ?", matchNo).
		Order("role ASC").
		Find(&players).Error
	return players, err
}

// UpdateState 条件状态流转
// WHERE state = ACTIVE 保证一个对局只会被终结一次：
// 清扫任务与正常结算赛跑时，输掉的一方拿到 ErrMatchStateInvalid，不会重复动账
func (r *MatchRepository) UpdateState(ctx context.Context, tx *gorm.DB, matchNo, fromState, toState string, winnerID int64) error {
	if !model.MatchCanTransitionTo(fromState, toState) {
		return ErrMatchStateInvalid
	}

	if tx == nil {
		tx = r.db
	}

	now := time.Now()
	result := tx.WithContext(ctx).
		Model(&model.Match{}).
		Where("match_no = ? AND state = ?", matchNo, fromState).
		Updates(map[string]interface{}{
			"state":       toState,
			"winner_id":   winnerID,
			"finished_at": &now,
		})

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrMatchStateInvalid
	}

	return nil
}

// GetStaleActive 进程崩溃后库里可能留下无人管的 ACTIVE 对局，供清扫任务回收
func (r *MatchRepository) GetStaleActive(ctx context.Context, before time.Time, limit int) ([]*model.Match, error) {
	var matches []*model.Match
	err := r.db.WithContext(ctx).
		Where("state = ? AND updated_at < ?", model.MatchStateActive, before).
		Limit(limit).
		Find(&matches).Error
	return matches, err
}

func (r *MatchRepository) ListByUserID(ctx context.Context, userID int64, page, pageSize int) ([]*model.Match, int64, error) {
	var matchNos []string
	err := r.db.WithContext(ctx).
		Model(&model.MatchPlayer{}).
		Where("user_id = ?", userID).
		Pluck("match_no", &matchNos).Error
	if err != nil {
		return nil, 0, err
	}

	var matches []*model.Match
	var total int64

	query := r.db.WithContext(ctx).Model(&model.Match{}).Where("match_no IN ?", matchNos)

	err = query.Count(&total).Error
	if err != nil {
		return nil, 0, err
	}

	err = query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&matches).Error

	return matches, total, err
}
