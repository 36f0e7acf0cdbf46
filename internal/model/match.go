package model

import (
	"time"
)

// ============================================================================
// 对局状态机
// ============================================================================

const (
	MatchStateActive      = "ACTIVE"      // 双方押注已托管，对局进行中
	MatchStateFinished    = "FINISHED"    // 分出胜负，赢家已结算（终态）
	MatchStateDraw        = "DRAW"        // 平局，押注已退还（终态）
	MatchStateInterrupted = "INTERRUPTED" // 异常中断，押注按策略退还（终态）
)

// MatchStateTransitions 对局合法状态流转
// 对局只在双方押注同时托管成功后才创建，所以没有 FORMING 落库状态；
// 三个终态互斥，一个对局只会被终结一次
var MatchStateTransitions = map[string][]string{
	MatchStateActive: {MatchStateFinished, MatchStateDraw, MatchStateInterrupted},
}

func MatchCanTransitionTo(currentState, targetState string) bool {
	allowedStates, exists := MatchStateTransitions[currentState]
	if !exists {
		return false
	}
	for _, s := range allowedStates {
		if s == targetState {
			return true
		}
	}
	return false
}

const (
	MatchKindDuel  = "DUEL"  // 卡牌对决
	MatchKindTimer = "TIMER" // 反应计时对决
)

// Match 对局表
// 记录押注托管与结算所需的资金口径；对局过程中的牌面状态在内存里
type Match struct {
	ID          int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	MatchNo     string     `gorm:"type:varchar(64);uniqueIndex;not null" json:"match_no"`
	Kind        string     `gorm:"type:varchar(16);not null" json:"kind"`
	Stake       int64      `gorm:"not null" json:"stake"`        // 单方押注
	Bank        int64      `gorm:"not null" json:"bank"`         // 奖池 = 2 * Stake
	RakePercent int64      `gorm:"not null" json:"rake_percent"` // 抽水百分比（平局不抽）
	State       string     `gorm:"type:varchar(20);index;not null" json:"state"`
	WinnerID    int64      `gorm:"not null;default:0" json:"winner_id"` // 终局后填写，平局/中断为 0
	FinishedAt  *time.Time `json:"finished_at"`
	CreatedAt   time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Match) TableName() string {
	return "duel_match"
}

// WinnerPayout 赢家实收 = 奖池 - 抽水（向下取整）
func (m *Match) WinnerPayout() int64 {
	return m.Bank - m.RakeAmount()
}

// RakeAmount 抽水金额 = floor(Bank * RakePercent / 100)
func (m *Match) RakeAmount() int64 {
	return m.Bank * m.RakePercent / 100
}

// MatchPlayer 对局参与者表
// 每局两行，押注托管成功时与对局行同事务写入
type MatchPlayer struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	MatchNo   string    `gorm:"type:varchar(64);uniqueIndex:uk_match_user;not null" json:"match_no"`
	UserID    int64     `gorm:"uniqueIndex:uk_match_user;index;not null" json:"user_id"`
	Role      int       `gorm:"not null" json:"role"` // 座位号 1 / 2
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (MatchPlayer) TableName() string {
	return "duel_match_player"
}
