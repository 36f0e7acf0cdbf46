package model

import (
	"time"
)

const (
	RewardStatusPending   = "PENDING"   // 已扣款，等待管理员处理
	RewardStatusApproved  = "APPROVED"  // 已通过，等待发货
	RewardStatusRejected  = "REJECTED"  // 已驳回，费用已退还（终态）
	RewardStatusFulfilled = "FULFILLED" // 已发货（终态）
)

// RewardStatusTransitions 兑换单合法状态流转
// 驳回与发货是终态，不允许再流转
var RewardStatusTransitions = map[string][]string{
	RewardStatusPending:  {RewardStatusApproved, RewardStatusRejected, RewardStatusFulfilled},
	RewardStatusApproved: {RewardStatusFulfilled, RewardStatusRejected},
}

func RewardCanTransitionTo(currentStatus, targetStatus string) bool {
	allowedStatuses, exists := RewardStatusTransitions[currentStatus]
	if !exists {
		return false
	}
	for _, s := range allowedStatuses {
		if s == targetStatus {
			return true
		}
	}
	return false
}

// RewardRequest 奖励兑换单
// 创建时即完成扣款（先冻结后审核）；驳回时把费用原路退回
type RewardRequest struct {
	ID         int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	RewardNo   string     `gorm:"type:varchar(64);uniqueIndex;not null" json:"reward_no"`
	UserID     int64      `gorm:"index;not null" json:"user_id"`
	ItemRef    string     `gorm:"type:varchar(64);not null" json:"item_ref"` // 兑换目标（商品/礼品码引用）
	Cost       int64      `gorm:"not null" json:"cost"`                      // 已扣除的金币数
	Status     string     `gorm:"type:varchar(20);index;not null" json:"status"`
	RiskScore  int        `gorm:"not null;default:0" json:"risk_score"` // 风控标注（0-100）
	Notes      string     `gorm:"type:varchar(256)" json:"notes"`       // 管理员备注
	AdminID    int64      `gorm:"not null;default:0" json:"admin_id"`   // 处理人
	ResolvedAt *time.Time `json:"resolved_at"`
	CreatedAt  time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt  time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (RewardRequest) TableName() string {
	return "reward_request"
}
