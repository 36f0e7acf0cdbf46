package service

import (
	"context"
	"errors"
	"fmt"
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
	ErrUnknownEarnSource = errors.New("未登记的奖励来源")
	ErrDailyCapExceeded  = errors.New("当日发放额度已用完")
	ErrRateLimited       = errors.New("发放太频繁，请稍后再试")
)

// LedgerService 账务核心
//
// 【关键点】所有余额变动都走这里的事务入口：
// 1. 幂等性：幂等键与资金副作用同事务，重放请求最多生效一次
// 2. 原子性：余额变更与流水写入必须同时成功或同时失败
// 3. 并发安全：账户行带乐观锁版本号，冲突走统一重试
type LedgerService struct {
	db          *gorm.DB
	redisClient *redis.Client
	cfg         *config.Config
	accountRepo *repository.AccountRepository
	ledgerRepo  *repository.LedgerRepository
	earnRepo    *repository.EarnCounterRepository
}

func NewLedgerService(db *gorm.DB, redisClient *redis.Client, cfg *config.Config) *LedgerService {
	return &LedgerService{
		db:          db,
		redisClient: redisClient,
		cfg:         cfg,
		accountRepo: repository.NewAccountRepository(db),
		ledgerRepo:  repository.NewLedgerRepository(db),
		earnRepo:    repository.NewEarnCounterRepository(db),
	}
}

func (s *LedgerService) GetAccount(ctx context.Context, userID int64) (*model.Account, error) {
	return s.accountRepo.GetOrCreate(ctx, userID)
}

func (s *LedgerService) GetBalance(ctx context.Context, userID int64) (int64, error) {
	account, err := s.accountRepo.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return account.Balance, nil
}

func (s *LedgerService) ListEntries(ctx context.Context, userID int64, page, pageSize int) ([]*model.LedgerEntry, int64, error) {
	return s.ledgerRepo.ListByUserID(ctx, userID, page, pageSize)
}

// AuditResult 对账结果：流水累加必须等于账户余额
type AuditResult struct {
	UserID     int64 `json:"user_id"`
	Balance    int64 `json:"balance"`
	LedgerSum  int64 `json:"ledger_sum"`
	Consistent bool  `json:"consistent"`
}

// Audit 单用户对账
// 余额只通过带流水的事务变动，两个数对不上说明有事务绕过了账务入口
func (s *LedgerService) Audit(ctx context.Context, userID int64) (*AuditResult, error) {
	account, err := s.accountRepo.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	sum, err := s.ledgerRepo.SumByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &AuditResult{
		UserID:     userID,
		Balance:    account.Balance,
		LedgerSum:  sum,
		Consistent: account.Balance == sum,
	}, nil
}

// Debit 扣款：结果余额 >= 0 才生效，并写入一条出账流水
//
// idemKey 非空时先消费幂等键；重复的键返回 repository.ErrDuplicateOperation，
// 事务整体回滚，调用方把它当成功处理（首次调用已经生效）
func (s *LedgerService) Debit(ctx context.Context, userID, amount int64, reason, refID, remark, idemKey string) error {
	if amount <= 0 {
		return errors.New("扣款金额必须大于0")
	}

	return repository.RunWithRetry(ctx, s.db, s.cfg.Business.TxMaxAttempts, func(tx *gorm.DB) error {
		if idemKey != "" {
			err := s.ledgerRepo.ConsumeIdemKey(ctx, tx, &model.IdempotencyKey{
				IdemKey: idemKey,
				UserID:  userID,
				RefID:   refID,
			})
			if err != nil {
				return err
			}
		}

		account, err := s.accountRepo.GetForUpdate(ctx, tx, userID)
		if err != nil {
			return err
		}

		if err := s.accountRepo.Deduct(ctx, tx, userID, amount, account.Version); err != nil {
			return err
		}

		return s.ledgerRepo.AppendEntry(ctx, tx, &model.LedgerEntry{
			TransactionNo: idgen.GenerateTransactionNo(),
			UserID:        userID,
			Amount:        -amount,
			Reason:        reason,
			RefID:         refID,
			BalanceBefore: account.Balance,
			BalanceAfter:  account.Balance - amount,
			Remark:        remark,
		})
	})
}

// CreditUnrestricted 不受发放规则约束的入账：退款、结算、管理员加币
func (s *LedgerService) CreditUnrestricted(ctx context.Context, userID, amount int64, reason, refID, remark, idemKey string) error {
	if amount <= 0 {
		return errors.New("入账金额必须大于0")
	}

	if _, err := s.accountRepo.GetOrCreate(ctx, userID); err != nil {
		return err
	}

	return repository.RunWithRetry(ctx, s.db, s.cfg.Business.TxMaxAttempts, func(tx *gorm.DB) error {
		if idemKey != "" {
			err := s.ledgerRepo.ConsumeIdemKey(ctx, tx, &model.IdempotencyKey{
				IdemKey: idemKey,
				UserID:  userID,
				RefID:   refID,
			})
			if err != nil {
				return err
			}
		}

		account, err := s.accountRepo.GetForUpdate(ctx, tx, userID)
		if err != nil {
			return err
		}

		if err := s.accountRepo.Increase(ctx, tx, userID, amount); err != nil {
			return err
		}

		return s.ledgerRepo.AppendEntry(ctx, tx, &model.LedgerEntry{
			TransactionNo: idgen.GenerateTransactionNo(),
			UserID:        userID,
			Amount:        amount,
			Reason:        reason,
			RefID:         refID,
			BalanceBefore: account.Balance,
			BalanceAfter:  account.Balance + amount,
			Remark:        remark,
		})
	})
}

// CreditWithRules 规则内奖励发放
//
// 【关键点】额度检查、计数器更新、余额入账在同一个事务里，
// 且入账带版本号守卫：并发发放被乐观锁串行化，额度不可能被一起越过。
// 任一检查不通过则整体回滚，计数器保持原值。
func (s *LedgerService) CreditWithRules(ctx context.Context, userID, amount int64, source, refID string) error {
	if amount <= 0 {
		return errors.New("发放金额必须大于0")
	}

	rule, ok := model.LookupEarnRule(source)
	if !ok {
		return ErrUnknownEarnSource
	}

	if rule.Unlimited {
		if _, err := s.accountRepo.GetByUserID(ctx, userID); err != nil {
			return err
		}
		return s.CreditUnrestricted(ctx, userID, amount, model.LedgerReasonEarn, refID, source, "")
	}

	now := time.Now()

	return repository.RunWithRetry(ctx, s.db, s.cfg.Business.TxMaxAttempts, func(tx *gorm.DB) error {
		account, err := s.accountRepo.GetForUpdate(ctx, tx, userID)
		if err != nil {
			return err
		}

		if rule.DailyCap > 0 {
			counter, err := s.earnRepo.GetForUpdate(ctx, tx, userID, source, model.DayKey(now))
			if err != nil {
				return err
			}
			if counter != nil && counter.Amount+amount > rule.DailyCap {
				return ErrDailyCapExceeded
			}
			if counter == nil && amount > rule.DailyCap {
				return ErrDailyCapExceeded
			}
		}

		if rule.HourlyOps > 0 {
			counter, err := s.earnRepo.GetForUpdate(ctx, tx, userID, source, model.HourKey(now))
			if err != nil {
				return err
			}
			if counter != nil && counter.Ops+1 > rule.HourlyOps {
				return ErrRateLimited
			}
		}

		// 入账带版本号守卫，确保上面的计数检查没有被并发事务绕过
		result := tx.WithContext(ctx).
			Model(&model.Account{}).
			Where("user_id = ? AND version = ?", userID, account.Version).
			Updates(map[string]interface{}{
				"balance": gorm.Expr("balance + ?", amount),
				"version": gorm.Expr("version + 1"),
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return repository.ErrOptimisticLock
		}

		if rule.DailyCap > 0 {
			if err := s.earnRepo.Bump(ctx, tx, userID, source, model.DayKey(now), amount); err != nil {
				return err
			}
		}
		if rule.HourlyOps > 0 {
			if err := s.earnRepo.Bump(ctx, tx, userID, source, model.HourKey(now), amount); err != nil {
				return err
			}
		}

		return s.ledgerRepo.AppendEntry(ctx, tx, &model.LedgerEntry{
			TransactionNo: idgen.GenerateTransactionNo(),
			UserID:        userID,
			Amount:        amount,
			Reason:        model.LedgerReasonEarn,
			RefID:         refID,
			BalanceBefore: account.Balance,
			BalanceAfter:  account.Balance + amount,
			Remark:        source,
		})
	})
}

// ============================================================
// 管理员资金操作
// ============================================================

// AdminCredit 管理员加币，按用户维度加分布式锁并记录操作人
func (s *LedgerService) AdminCredit(ctx context.Context, userID, amount, adminID int64, reason, idemKey string) error {
	opLock := lock.NewAdminOpLock(s.redisClient, userID, idemKey)
	if err := opLock.Lock(ctx, 100*time.Millisecond, 30); err != nil {
		return fmt.Errorf("系统繁忙，请稍后重试: %w", err)
	}
	defer opLock.Unlock(ctx)

	remark := fmt.Sprintf("管理员操作-admin:%d-%s", adminID, reason)
	return s.CreditUnrestricted(ctx, userID, amount, model.LedgerReasonAdminCredit, "", remark, idemKey)
}

// AdminDebit 管理员扣币
func (s *LedgerService) AdminDebit(ctx context.Context, userID, amount, adminID int64, reason, idemKey string) error {
	opLock := lock.NewAdminOpLock(s.redisClient, userID, idemKey)
	if err := opLock.Lock(ctx, 100*time.Millisecond, 30); err != nil {
		return fmt.Errorf("系统繁忙，请稍后重试: %w", err)
	}
	defer opLock.Unlock(ctx)

	remark := fmt.Sprintf("管理员操作-admin:%d-%s", adminID, reason)
	return s.Debit(ctx, userID, amount, model.LedgerReasonAdminDebit, "", remark, idemKey)
}
