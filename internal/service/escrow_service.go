package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"coinduel/internal/config"
	"coinduel/internal/model"
	"coinduel/internal/repository"
	"coinduel/pkg/idgen"

	"gorm.io/gorm"
)

// EscrowService 对局资金托管与结算
//
// 对局引擎只在两个时机触碰账务：建局时双方押注托管、终局时结算。
// 账务层绝不反向调用对局引擎。
type EscrowService struct {
	db          *gorm.DB
	cfg         *config.Config
	accountRepo *repository.AccountRepository
	ledgerRepo  *repository.LedgerRepository
	matchRepo   *repository.MatchRepository
	outboxRepo  *repository.OutboxRepository
}

func NewEscrowService(db *gorm.DB, cfg *config.Config) *EscrowService {
	return &EscrowService{
		db:          db,
		cfg:         cfg,
		accountRepo: repository.NewAccountRepository(db),
		ledgerRepo:  repository.NewLedgerRepository(db),
		matchRepo:   repository.NewMatchRepository(db),
		outboxRepo:  repository.NewOutboxRepository(db),
	}
}

// HoldStakes 双方押注托管
//
// 【关键点】两笔扣款与对局行在同一个事务里：
// 任一方余额不足则整体回滚，不存在只扣了一个人的中间态。
// 余额在排队到配对之间可能已经变化，这里是唯一可信的检查点。
func (s *EscrowService) HoldStakes(ctx context.Context, matchNo, kind string, stake int64, userID1, userID2 int64) error {
	if stake <= 0 {
		return errors.New("押注金额必须大于0")
	}

	return repository.RunWithRetry(ctx, s.db, s.cfg.Business.TxMaxAttempts, func(tx *gorm.DB) error {
		for _, userID := range []int64{userID1, userID2} {
			account, err := s.accountRepo.GetForUpdate(ctx, tx, userID)
			if err != nil {
				return err
			}

			if err := s.accountRepo.Deduct(ctx, tx, userID, stake, account.Version); err != nil {
				return err
			}

			if err := s.ledgerRepo.AppendEntry(ctx, tx, &model.LedgerEntry{
				TransactionNo: idgen.GenerateTransactionNo(),
				UserID:        userID,
				Amount:        -stake,
				Reason:        model.LedgerReasonStake,
				RefID:         matchNo,
				BalanceBefore: account.Balance,
				BalanceAfter:  account.Balance - stake,
				Remark:        fmt.Sprintf("押注-%s", kind),
			}); err != nil {
				return err
			}
		}

		match := &model.Match{
			MatchNo:     matchNo,
			Kind:        kind,
			Stake:       stake,
			Bank:        2 * stake,
			RakePercent: s.cfg.Business.RakePercent,
			State:       model.MatchStateActive,
		}
		players := []*model.MatchPlayer{
			{MatchNo: matchNo, UserID: userID1, Role: 1},
			{MatchNo: matchNo, UserID: userID2, Role: 2},
		}
		return s.matchRepo.Create(ctx, tx, match, players)
	})
}

// SettleFinished 分出胜负的结算：赢家实收 = 奖池 - 抽水
//
// WHERE state = ACTIVE 的条件流转保证只结算一次；
// 已被清扫任务中断的对局在这里拿到 ErrMatchStateInvalid，不会重复动账
func (s *EscrowService) SettleFinished(ctx context.Context, matchNo string, winnerID, loserID int64) error {
	return repository.RunWithRetry(ctx, s.db, s.cfg.Business.TxMaxAttempts, func(tx *gorm.DB) error {
		match, err := s.getMatchTx(ctx, tx, matchNo)
		if err != nil {
			return err
		}

		if err := s.matchRepo.UpdateState(ctx, tx, matchNo, match.State, model.MatchStateFinished, winnerID); err != nil {
			return err
		}

		payout := match.WinnerPayout()

		account, err := s.accountRepo.GetForUpdate(ctx, tx, winnerID)
		if err != nil {
			return err
		}
		if err := s.accountRepo.Increase(ctx, tx, winnerID, payout); err != nil {
			return err
		}
		if err := s.ledgerRepo.AppendEntry(ctx, tx, &model.LedgerEntry{
			TransactionNo: idgen.GenerateTransactionNo(),
			UserID:        winnerID,
			Amount:        payout,
			Reason:        model.LedgerReasonPayout,
			RefID:         matchNo,
			BalanceBefore: account.Balance,
			BalanceAfter:  account.Balance + payout,
			Remark:        fmt.Sprintf("结算-抽水%d%%", match.RakePercent),
		}); err != nil {
			return err
		}

		if err := s.accountRepo.AddWinLoss(ctx, tx, winnerID, 1, 0); err != nil {
			return err
		}
		if err := s.accountRepo.AddWinLoss(ctx, tx, loserID, 0, 1); err != nil {
			return err
		}

		return s.appendResultMessage(ctx, tx, match, model.MatchStateFinished, winnerID, payout)
	})
}

// SettleDraw 平局结算：原价退还双方押注，不抽水
func (s *EscrowService) SettleDraw(ctx context.Context, matchNo string) error {
	return repository.RunWithRetry(ctx, s.db, s.cfg.Business.TxMaxAttempts, func(tx *gorm.DB) error {
		match, err := s.getMatchTx(ctx, tx, matchNo)
		if err != nil {
			return err
		}

		if err := s.matchRepo.UpdateState(ctx, tx, matchNo, match.State, model.MatchStateDraw, 0); err != nil {
			return err
		}

		players, err := s.matchRepo.GetPlayers(ctx, matchNo)
		if err != nil {
			return err
		}
		for _, p := range players {
			if err := s.refundStake(ctx, tx, match, p.UserID, "平局退注"); err != nil {
				return err
			}
		}

		return s.appendResultMessage(ctx, tx, match, model.MatchStateDraw, 0, 0)
	})
}

// SettleInterrupted 中断结算：只给 refundUserIDs 里的玩家退注
//
// 清扫任务传双方（纯超时不没收）；主动离场/管理员中断只传留下的一方，
// 离场者的押注没收（等价于投降的代价）
func (s *EscrowService) SettleInterrupted(ctx context.Context, matchNo string, refundUserIDs []int64) error {
	return repository.RunWithRetry(ctx, s.db, s.cfg.Business.TxMaxAttempts, func(tx *gorm.DB) error {
		match, err := s.getMatchTx(ctx, tx, matchNo)
		if err != nil {
			return err
		}

		if err := s.matchRepo.UpdateState(ctx, tx, matchNo, match.State, model.MatchStateInterrupted, 0); err != nil {
			return err
		}

		for _, userID := range refundUserIDs {
			if err := s.refundStake(ctx, tx, match, userID, "对局中断退注"); err != nil {
				return err
			}
		}

		return s.appendResultMessage(ctx, tx, match, model.MatchStateInterrupted, 0, 0)
	})
}

// DebitAbility 对局内技能扣费（加成/换牌），一次普通扣款
func (s *EscrowService) DebitAbility(ctx context.Context, userID, cost int64, matchNo, remark string) error {
	return repository.RunWithRetry(ctx, s.db, s.cfg.Business.TxMaxAttempts, func(tx *gorm.DB) error {
		account, err := s.accountRepo.GetForUpdate(ctx, tx, userID)
		if err != nil {
			return err
		}
		if err := s.accountRepo.Deduct(ctx, tx, userID, cost, account.Version); err != nil {
			return err
		}
		return s.ledgerRepo.AppendEntry(ctx, tx, &model.LedgerEntry{
			TransactionNo: idgen.GenerateTransactionNo(),
			UserID:        userID,
			Amount:        -cost,
			Reason:        model.LedgerReasonAbility,
			RefID:         matchNo,
			BalanceBefore: account.Balance,
			BalanceAfter:  account.Balance - cost,
			Remark:        remark,
		})
	})
}

// GetMatch 按对局号查已落库的对局
func (s *EscrowService) GetMatch(ctx context.Context, matchNo string) (*model.Match, error) {
	return s.matchRepo.GetByMatchNo(ctx, matchNo)
}

// ListUserMatches 用户历史对局
func (s *EscrowService) ListUserMatches(ctx context.Context, userID int64, page, pageSize int) ([]*model.Match, int64, error) {
	return s.matchRepo.ListByUserID(ctx, userID, page, pageSize)
}

func (s *EscrowService) getMatchTx(ctx context.Context, tx *gorm.DB, matchNo string) (*model.Match, error) {
	var match model.Match
	err := tx.WithContext(ctx).Where("match_no = ?", matchNo).First(&match).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrMatchNotFound
		}
		return nil, err
	}
	return &match, nil
}

func (s *EscrowService) refundStake(ctx context.Context, tx *gorm.DB, match *model.Match, userID int64, remark string) error {
	account, err := s.accountRepo.GetForUpdate(ctx, tx, userID)
	if err != nil {
		return err
	}
	if err := s.accountRepo.Increase(ctx, tx, userID, match.Stake); err != nil {
		return err
	}
	return s.ledgerRepo.AppendEntry(ctx, tx, &model.LedgerEntry{
		TransactionNo: idgen.GenerateTransactionNo(),
		UserID:        userID,
		Amount:        match.Stake,
		Reason:        model.LedgerReasonStakeRefund,
		RefID:         match.MatchNo,
		BalanceBefore: account.Balance,
		BalanceAfter:  account.Balance + match.Stake,
		Remark:        remark,
	})
}

// appendResultMessage 终局通知与结算同事务落库，由后台任务推送
// 推送失败只影响通知，绝不回滚已提交的账务
func (s *EscrowService) appendResultMessage(ctx context.Context, tx *gorm.DB, match *model.Match, finalState string, winnerID, payout int64) error {
	var rake int64
	if finalState == model.MatchStateFinished {
		rake = match.RakeAmount()
	}

	msgPayload := map[string]interface{}{
		"match_no":    match.MatchNo,
		"kind":        match.Kind,
		"stake":       match.Stake,
		"state":       finalState,
		"winner_id":   winnerID,
		"payout":      payout,
		"rake":        rake,
		"finished_at": time.Now().Format(time.RFC3339),
	}
	payloadBytes, err := json.Marshal(msgPayload)
	if err != nil {
		log.Printf("[EscrowService] 序列化终局消息失败: matchNo=%s, err=%v", match.MatchNo, err)
		return nil
	}

	return s.outboxRepo.Create(ctx, tx, &model.OutboxMessage{
		MessageKey: match.MatchNo,
		Topic:      s.cfg.Kafka.Topic.DuelResult,
		Payload:    string(payloadBytes),
		Status:     model.OutboxStatusPending,
	})
}
