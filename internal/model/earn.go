package model

import (
	"time"
)

// ============================================================================
// 奖励发放规则
// ============================================================================

const (
	EarnSourceDailyBonus = "DAILY_BONUS" // 每日签到
	EarnSourceGameReward = "GAME_REWARD" // 小游戏奖励（单机掷骰/老虎机）
	EarnSourceReferral   = "REFERRAL"    // 邀请奖励
	EarnSourceActivity   = "ACTIVITY"    // 运营活动
)

// EarnRule 某一奖励来源的发放规则
// 纯配置，不落库；计数状态在 EarnCounter 里
type EarnRule struct {
	Unlimited bool  // 不限量（如邀请奖励）
	DailyCap  int64 // 单用户单日累计金额上限，0 表示不按金额限制
	HourlyOps int   // 单用户单小时操作次数上限，0 表示不按次数限制
}

// EarnRules 奖励来源 -> 规则
// 与订单状态表一样用包级映射表达，未登记的来源一律拒绝
var EarnRules = map[string]EarnRule{
	EarnSourceDailyBonus: {DailyCap: 100, HourlyOps: 1},
	EarnSourceGameReward: {DailyCap: 500},
	EarnSourceActivity:   {DailyCap: 200, HourlyOps: 10},
	EarnSourceReferral:   {Unlimited: true},
}

// LookupEarnRule 查询奖励规则，来源未登记时返回 false
func LookupEarnRule(source string) (EarnRule, bool) {
	rule, ok := EarnRules[source]
	return rule, ok
}

// DayKey 日维度周期键，如 20240115
func DayKey(t time.Time) string {
	return t.Format("20060102")
}

// HourKey 小时维度周期键，如 2024011514
func HourKey(t time.Time) string {
	return t.Format("2006010215")
}

// ============================================================================
// 发放计数器
// ============================================================================

// EarnCounter 奖励发放计数表
// 按 (用户, 来源, 周期键) 惰性创建；周期键滚动即自然重置，历史行由清理任务删除
//
// 【关键点】计数检查与余额入账必须在同一个事务里完成，
// 否则并发请求可以一起越过上限
type EarnCounter struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    int64     `gorm:"uniqueIndex:uk_counter;not null" json:"user_id"`
	Source    string    `gorm:"uniqueIndex:uk_counter;type:varchar(32);not null" json:"source"`
	PeriodKey string    `gorm:"uniqueIndex:uk_counter;type:varchar(16);not null" json:"period_key"`
	Amount    int64     `gorm:"not null;default:0" json:"amount"` // 本周期累计发放金额
	Ops       int       `gorm:"not null;default:0" json:"ops"`    // 本周期发放次数
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (EarnCounter) TableName() string {
	return "earn_counter"
}
