package game

import (
	"testing"

	"coinduel/internal/model"

	"github.com/stretchr/testify/assert"
)

func TestQueueEnqueuePairsByTier(t *testing.T) {
	q := NewQueue()

	_, matched := q.Enqueue(model.MatchKindDuel, 100, 1)
	assert.False(t, matched)
	assert.True(t, q.Waiting(1))

	// 不同注额各排各的队
	_, matched = q.Enqueue(model.MatchKindDuel, 200, 2)
	assert.False(t, matched)

	// 同玩法同注额配对成功，等待位清掉
	opponent, matched := q.Enqueue(model.MatchKindDuel, 100, 3)
	assert.True(t, matched)
	assert.Equal(t, int64(1), opponent)
	assert.False(t, q.Waiting(1))

	// 200 档的还在等
	assert.True(t, q.Waiting(2))
}

func TestQueueSelfReEnqueue(t *testing.T) {
	q := NewQueue()

	q.Enqueue(model.MatchKindTimer, 50, 1)

	// 重复发起匹配不和自己配对，继续等
	_, matched := q.Enqueue(model.MatchKindTimer, 50, 1)
	assert.False(t, matched)
	assert.True(t, q.Waiting(1))
}

func TestQueueCancel(t *testing.T) {
	q := NewQueue()

	q.Enqueue(model.MatchKindDuel, 100, 1)

	// 只有本人能取消
	assert.False(t, q.Cancel(model.MatchKindDuel, 100, 2))
	assert.True(t, q.Cancel(model.MatchKindDuel, 100, 1))
	assert.False(t, q.Waiting(1))

	// 空档位取消是无害的
	assert.False(t, q.Cancel(model.MatchKindDuel, 100, 1))
}

func TestQueueEvict(t *testing.T) {
	q := NewQueue()

	q.Enqueue(model.MatchKindDuel, 100, 1)
	q.Enqueue(model.MatchKindDuel, 200, 1)
	q.Enqueue(model.MatchKindTimer, 50, 2)

	// 摘掉 1 的全部等待位，不动别人的
	assert.Equal(t, 2, q.Evict(1))
	assert.False(t, q.Waiting(1))
	assert.True(t, q.Waiting(2))

	assert.Zero(t, q.Evict(1))
}

func TestRegistryReserve(t *testing.T) {
	r := NewRegistry()

	// 占位是双人原子的：任何一方已被占走，两人都占不上
	assert.True(t, r.Reserve(1, 2))
	assert.False(t, r.Reserve(1, 3))
	assert.False(t, r.Reserve(3, 2))
	assert.True(t, r.Busy(1))
	assert.False(t, r.Busy(3))

	// 归还后可再占
	r.Release(1, 2)
	assert.True(t, r.Reserve(1, 3))

	// 已在局中的用户同样占不上
	r.Release(1, 3)
	ms := &MatchState{MatchNo: "m1"}
	ms.Players[0] = &PlayerState{UserID: 1}
	ms.Players[1] = &PlayerState{UserID: 2}
	r.Add(ms)
	assert.False(t, r.Reserve(1, 4))
	assert.False(t, r.Busy(4))
}

func TestDealHand(t *testing.T) {
	hand := dealHand(5, 13)
	assert.Len(t, hand, 5)
	for _, v := range hand {
		assert.GreaterOrEqual(t, v, 1)
		assert.LessOrEqual(t, v, 13)
	}
}

func TestRemoveCard(t *testing.T) {
	hand := []int{3, 7, 11}

	hand = removeCard(hand, 1)
	assert.Equal(t, []int{3, 11}, hand)

	hand = removeCard(hand, 0)
	assert.Equal(t, []int{11}, hand)

	hand = removeCard(hand, 0)
	assert.Empty(t, hand)
}
