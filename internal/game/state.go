package game

import (
	"math/rand"
	"sync"
	"time"

	"coinduel/internal/model"
)

// PlayerState 对局内单个玩家的可变状态，随对局终结一起丢弃
type PlayerState struct {
	UserID int64
	Role   int // 座位号 1 / 2

	// 卡牌对决
	Hand       []int // 手牌点数
	PlayedCard int   // 本轮已出的牌（含加成），0 表示未出
	Boosted    bool  // 本轮出牌吃到了加成
	BoostArmed bool  // 加成已购买，下一次出牌生效
	BoostUsed  bool  // 加成本局已购买过（一局一次）
	RerollUsed bool  // 换牌本局已用过
	RoundWins  int

	// 计时对决
	Clicked   bool
	ClickedAt time.Time
}

// MatchState 对局的内存态
//
// 【并发】同一对局的所有操作串行通过 mu；
// 不同对局互不相关。终局结算的账务事务在状态已标记终态、
// 锁已释放之后发起，结算失败不会被观察成"对局还在进行"。
type MatchState struct {
	mu sync.Mutex

	MatchNo string
	Kind    string
	Stake   int64
	State   string
	Round   int

	Players [2]*PlayerState

	// 计时对决的预定停止点，对玩家隐藏
	StopAt    time.Time
	stopTimer *time.Timer

	LastProgress time.Time
	CreatedAt    time.Time
}

func (m *MatchState) player(userID int64) *PlayerState {
	for _, p := range m.Players {
		if p.UserID == userID {
			return p
		}
	}
	return nil
}

func (m *MatchState) opponent(userID int64) *PlayerState {
	for _, p := range m.Players {
		if p.UserID != userID {
			return p
		}
	}
	return nil
}

func (m *MatchState) active() bool {
	return m.State == model.MatchStateActive
}

// dealHand 发 n 张 1..maxValue 的牌
func dealHand(n, maxValue int) []int {
	hand := make([]int, n)
	for i := range hand {
		hand[i] = rand.Intn(maxValue) + 1
	}
	return hand
}

// removeCard 从手牌里拿走第 i 张
func removeCard(hand []int, i int) []int {
	out := make([]int, 0, len(hand)-1)
	out = append(out, hand[:i]...)
	out = append(out, hand[i+1:]...)
	return out
}
