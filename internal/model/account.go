package model

import (
	"time"
)

// Account 用户账户表
// 记录用户的金币余额，是整个对战经济系统的核心数据
//
// 【不变式】Balance 恒 >= 0，只能通过 service 层的账务操作修改
type Account struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    int64     `gorm:"uniqueIndex;not null" json:"user_id"` // 用户ID，业务方传入
	Balance   int64     `gorm:"not null;default:0" json:"balance"`   // 可用余额（金币数）
	Wins      int64     `gorm:"not null;default:0" json:"wins"`      // 对战胜场
	Losses    int64     `gorm:"not null;default:0" json:"losses"`    // 对战负场
	Version   int       `gorm:"not null;default:0" json:"version"`   // 乐观锁版本号
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Account) TableName() string {
	return "account"
}
