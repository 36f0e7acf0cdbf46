package game

import (
	"context"
)

// Escrow 对局引擎对账务层的全部依赖
//
// 引擎只在两个时机动钱：建局托管、终局结算（以及局内技能扣费）。
// 接口收窄到这几个方法，测试时可以直接用假实现验证资金守恒。
type Escrow interface {
	// HoldStakes 一个事务里托管双方押注并落对局行，任一方不足整体失败
	HoldStakes(ctx context.Context, matchNo, kind string, stake int64, userID1, userID2 int64) error
	// SettleFinished 赢家实收 = 奖池 - 抽水
	SettleFinished(ctx context.Context, matchNo string, winnerID, loserID int64) error
	// SettleDraw 原价退还双方押注
	SettleDraw(ctx context.Context, matchNo string) error
	// SettleInterrupted 只给列表里的玩家退注，其余没收
	SettleInterrupted(ctx context.Context, matchNo string, refundUserIDs []int64) error
	// DebitAbility 局内技能扣费，余额不足返回错误且不产生副作用
	DebitAbility(ctx context.Context, userID, cost int64, matchNo, remark string) error
}
