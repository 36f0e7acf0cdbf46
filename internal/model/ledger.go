package model

import (
	"time"
)

// ============================================================================
// 账变原因常量
// ============================================================================

const (
	LedgerReasonRecharge     = "RECHARGE"      // 充值
	LedgerReasonEarn         = "EARN"          // 规则内奖励（每日签到、游戏奖励等）
	LedgerReasonStake        = "STAKE"         // 对战押注（扣款）
	LedgerReasonPayout       = "PAYOUT"        // 对战赢家结算（入账）
	LedgerReasonStakeRefund  = "STAKE_REFUND"  // 平局/中断退还押注
	LedgerReasonAbility      = "ABILITY"       // 对战内技能消耗（加成/换牌）
	LedgerReasonRewardHold   = "REWARD_HOLD"   // 兑换下单冻结（扣款）
	LedgerReasonRewardRefund = "REWARD_REFUND" // 兑换被驳回退款
	LedgerReasonAdminCredit  = "ADMIN_CREDIT"  // 管理员加币
	LedgerReasonAdminDebit   = "ADMIN_DEBIT"   // 管理员扣币
)

// ============================================================================
// 账变流水实体
// ============================================================================

// LedgerEntry 账变流水表
// 记录账户的每一笔资金变动，是对账的核心依据
//
// 【重要】流水表设计原则：
// 1. 只追加，不修改，不删除 —— 保证审计可追溯
// 2. 每笔流水关联业务单号（对局号/兑换单号等）—— 便于对账
// 3. 记录交易前后余额 —— 某账户流水金额累加必须等于当前余额
type LedgerEntry struct {
	ID            int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	TransactionNo string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"transaction_no"` // 流水号（全局唯一）
	UserID        int64     `gorm:"index;not null" json:"user_id"`                               // 用户ID
	Amount        int64     `gorm:"not null" json:"amount"`                                      // 金额（正数入账，负数出账）
	Reason        string    `gorm:"type:varchar(32);not null" json:"reason"`                     // 账变原因
	RefID         string    `gorm:"type:varchar(64);index" json:"ref_id"`                        // 关联业务单号（可空）
	BalanceBefore int64     `gorm:"not null" json:"balance_before"`                              // 交易前余额
	BalanceAfter  int64     `gorm:"not null" json:"balance_after"`                               // 交易后余额
	Remark        string    `gorm:"type:varchar(256)" json:"remark"`                             // 备注
	CreatedAt     time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

func (LedgerEntry) TableName() string {
	return "ledger_entry"
}

// IdempotencyKey 幂等键表
//
// 【关键点】幂等的实现方式：在资金事务内先插入幂等键，
// 唯一索引冲突说明这笔操作已经执行过，整个事务回滚，对调用方返回原结果。
// 键只做"最多消费一次"的守卫，过期后由清理任务删除，不影响账务正确性。
type IdempotencyKey struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	IdemKey   string    `gorm:"column:idem_key;type:varchar(64);uniqueIndex;not null" json:"idem_key"`
	UserID    int64     `gorm:"index;not null" json:"user_id"`
	RefID     string    `gorm:"type:varchar(64)" json:"ref_id"` // 首次执行产生的业务单号，重放时返回
	CreatedAt time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

func (IdempotencyKey) TableName() string {
	return "idempotency_key"
}
