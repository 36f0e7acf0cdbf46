package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"coinduel/internal/config"
	"coinduel/internal/infrastructure/lock"
	"coinduel/internal/model"
	"coinduel/internal/repository"
	"coinduel/pkg/idgen"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

var (
	ErrAlreadyResolved = errors.New("兑换单已处理")
	ErrInvalidOutcome  = errors.New("不支持的处理结果")
)

const (
	RewardOutcomeApprove = "approve"
	RewardOutcomeReject  = "reject"
	RewardOutcomeFulfill = "fulfill"
)

// RewardService 奖励兑换：先扣款冻结，管理员审核后放行或退款
type RewardService struct {
	db          *gorm.DB
	redisClient *redis.Client
	cfg         *config.Config
	accountRepo *repository.AccountRepository
	ledgerRepo  *repository.LedgerRepository
	rewardRepo  *repository.RewardRepository
	outboxRepo  *repository.OutboxRepository
}

func NewRewardService(db *gorm.DB, redisClient *redis.Client, cfg *config.Config) *RewardService {
	return &RewardService{
		db:          db,
		redisClient: redisClient,
		cfg:         cfg,
		accountRepo: repository.NewAccountRepository(db),
		ledgerRepo:  repository.NewLedgerRepository(db),
		rewardRepo:  repository.NewRewardRepository(db),
		outboxRepo:  repository.NewOutboxRepository(db),
	}
}

// HoldForReward 兑换下单：幂等键 + 扣款 + 建单在一个事务里
//
// 重放同一个 idemKey 不会二次扣款，返回首次创建的兑换单；
// 首次请求如果恰好在建单前失败，键已消费但没有单号，重放返回空单
func (s *RewardService) HoldForReward(ctx context.Context, userID int64, itemRef string, cost int64, idemKey string) (*model.RewardRequest, error) {
	if cost <= 0 {
		return nil, errors.New("兑换费用必须大于0")
	}
	if idemKey == "" {
		return nil, errors.New("缺少幂等键")
	}

	rewardNo := idgen.GenerateRewardNo()
	reward := &model.RewardRequest{
		RewardNo: rewardNo,
		UserID:   userID,
		ItemRef:  itemRef,
		Cost:     cost,
		Status:   model.RewardStatusPending,
	}

	err := repository.RunWithRetry(ctx, s.db, s.cfg.Business.TxMaxAttempts, func(tx *gorm.DB) error {
		err := s.ledgerRepo.ConsumeIdemKey(ctx, tx, &model.IdempotencyKey{
			IdemKey: idemKey,
			UserID:  userID,
			RefID:   rewardNo,
		})
		if err != nil {
			return err
		}

		account, err := s.accountRepo.GetForUpdate(ctx, tx, userID)
		if err != nil {
			return err
		}

		if err := s.accountRepo.Deduct(ctx, tx, userID, cost, account.Version); err != nil {
			return err
		}

		if err := s.ledgerRepo.AppendEntry(ctx, tx, &model.LedgerEntry{
			TransactionNo: idgen.GenerateTransactionNo(),
			UserID:        userID,
			Amount:        -cost,
			Reason:        model.LedgerReasonRewardHold,
			RefID:         rewardNo,
			BalanceBefore: account.Balance,
			BalanceAfter:  account.Balance - cost,
			Remark:        fmt.Sprintf("兑换-%s", itemRef),
		}); err != nil {
			return err
		}

		// 简单风控标注：一次兑走 8 成以上余额的单子给人工多看一眼
		if account.Balance > 0 && cost*10 >= account.Balance*8 {
			reward.RiskScore = 60
		}

		return s.rewardRepo.Create(ctx, tx, reward)
	})

	if err != nil {
		if errors.Is(err, repository.ErrDuplicateOperation) {
			return s.replayHold(ctx, idemKey)
		}
		return nil, err
	}

	return reward, nil
}

// replayHold 幂等重放：按键找回首次执行的兑换单
func (s *RewardService) replayHold(ctx context.Context, idemKey string) (*model.RewardRequest, error) {
	key, err := s.ledgerRepo.GetIdemKey(ctx, idemKey)
	if err != nil {
		return nil, err
	}
	if key == nil || key.RefID == "" {
		return nil, nil
	}

	reward, err := s.rewardRepo.GetByRewardNo(ctx, key.RefID)
	if err != nil {
		if errors.Is(err, repository.ErrRewardNotFound) {
			// 首次执行与建单赛跑失败留下的空键
			return nil, nil
		}
		return nil, err
	}
	return reward, nil
}

// ResolveReward 管理员处理兑换单
//
// 【关键点】同一张单的并发处理互斥：
// Redis 锁挡掉绝大多数并发，库里的条件状态更新兜底 —— 只有第一次流转生效，
// 退款与状态流转同事务，驳回退款不可能发生两次
func (s *RewardService) ResolveReward(ctx context.Context, rewardNo, outcome string, adminID int64, notes string) (*model.RewardRequest, error) {
	var targetStatus string
	switch outcome {
	case RewardOutcomeApprove:
		targetStatus = model.RewardStatusApproved
	case RewardOutcomeReject:
		targetStatus = model.RewardStatusRejected
	case RewardOutcomeFulfill:
		targetStatus = model.RewardStatusFulfilled
	default:
		return nil, ErrInvalidOutcome
	}

	resolveLock := lock.NewRewardLock(s.redisClient, rewardNo, fmt.Sprintf("admin:%d", adminID))
	if err := resolveLock.Lock(ctx, 100*time.Millisecond, 30); err != nil {
		return nil, fmt.Errorf("系统繁忙，请稍后重试: %w", err)
	}
	defer resolveLock.Unlock(ctx)

	reward, err := s.rewardRepo.GetByRewardNo(ctx, rewardNo)
	if err != nil {
		return nil, err
	}

	if !model.RewardCanTransitionTo(reward.Status, targetStatus) {
		return nil, ErrAlreadyResolved
	}

	fromStatus := reward.Status

	err = repository.RunWithRetry(ctx, s.db, s.cfg.Business.TxMaxAttempts, func(tx *gorm.DB) error {
		if err := s.rewardRepo.UpdateStatus(ctx, tx, rewardNo, fromStatus, targetStatus, adminID, notes); err != nil {
			if errors.Is(err, repository.ErrRewardStatusInvalid) {
				return ErrAlreadyResolved
			}
			return err
		}

		// 驳回要把冻结的费用原路退回
		if targetStatus == model.RewardStatusRejected {
			account, err := s.accountRepo.GetForUpdate(ctx, tx, reward.UserID)
			if err != nil {
				return err
			}
			if err := s.accountRepo.Increase(ctx, tx, reward.UserID, reward.Cost); err != nil {
				return err
			}
			if err := s.ledgerRepo.AppendEntry(ctx, tx, &model.LedgerEntry{
				TransactionNo: idgen.GenerateTransactionNo(),
				UserID:        reward.UserID,
				Amount:        reward.Cost,
				Reason:        model.LedgerReasonRewardRefund,
				RefID:         rewardNo,
				BalanceBefore: account.Balance,
				BalanceAfter:  account.Balance + reward.Cost,
				Remark:        fmt.Sprintf("兑换驳回-%s", notes),
			}); err != nil {
				return err
			}
		}

		msgPayload := map[string]interface{}{
			"reward_no":   rewardNo,
			"user_id":     reward.UserID,
			"item_ref":    reward.ItemRef,
			"cost":        reward.Cost,
			"status":      targetStatus,
			"admin_id":    adminID,
			"resolved_at": time.Now().Format(time.RFC3339),
		}
		payloadBytes, err := json.Marshal(msgPayload)
		if err != nil {
			log.Printf("[RewardService] 序列化审核结果消息失败: rewardNo=%s, err=%v", rewardNo, err)
			return nil
		}

		return s.outboxRepo.Create(ctx, tx, &model.OutboxMessage{
			MessageKey: rewardNo,
			Topic:      s.cfg.Kafka.Topic.RewardResult,
			Payload:    string(payloadBytes),
			Status:     model.OutboxStatusPending,
		})
	})

	if err != nil {
		return nil, err
	}

	log.Printf("兑换单处理完成: rewardNo=%s, outcome=%s, adminID=%d", rewardNo, outcome, adminID)

	reward.Status = targetStatus
	reward.AdminID = adminID
	reward.Notes = notes
	return reward, nil
}

func (s *RewardService) ListPending(ctx context.Context, limit int) ([]*model.RewardRequest, error) {
	return s.rewardRepo.ListByStatus(ctx, model.RewardStatusPending, limit)
}

func (s *RewardService) ListUserRewards(ctx context.Context, userID int64, page, pageSize int) ([]*model.RewardRequest, int64, error) {
	return s.rewardRepo.ListByUserID(ctx, userID, page, pageSize)
}

func (s *RewardService) GetReward(ctx context.Context, rewardNo string) (*model.RewardRequest, error) {
	return s.rewardRepo.GetByRewardNo(ctx, rewardNo)
}
