package game

import (
	"fmt"
	"sync"
	"time"
)

// Queue 匹配队列：每个 (玩法, 押注档位) 一个等待位
//
// 【并发】队列锁只覆盖内存映射操作，
// 绝不跨越押注托管的数据库事务 —— 不同档位不会被慢存储串行化
type Queue struct {
	mu      sync.Mutex
	waiters map[string]*Waiter
}

// Waiter 等待配对的玩家
type Waiter struct {
	UserID int64
	Since  time.Time
}

func NewQueue() *Queue {
	return &Queue{waiters: make(map[string]*Waiter)}
}

func tierKey(kind string, stake int64) string {
	return fmt.Sprintf("%s:%d", kind, stake)
}

// Enqueue 进入匹配
// 该档位没人等 -> 登记自己，返回 matched=false；
// 有人等且不是自己 -> 摘掉等待者，返回对手；重复进入是无副作用的"继续等待"
func (q *Queue) Enqueue(kind string, stake int64, userID int64) (opponent int64, matched bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	key := tierKey(kind, stake)
	w, ok := q.waiters[key]
	if ok {
		if w.UserID == userID {
			return 0, false
		}
		delete(q.waiters, key)
		return w.UserID, true
	}

	q.waiters[key] = &Waiter{UserID: userID, Since: time.Now()}
	return 0, false
}

// Cancel 取消匹配，只能摘掉属于自己的等待位
// 此时还没有托管任何押注，无需退款
func (q *Queue) Cancel(kind string, stake int64, userID int64) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	key := tierKey(kind, stake)
	w, ok := q.waiters[key]
	if !ok || w.UserID != userID {
		return false
	}
	delete(q.waiters, key)
	return true
}

// Evict 摘掉用户在所有档位上的等待位，返回摘掉的数量
// 用户可以同时在多个档位排队，配对成功后残留的等待位必须清干净
func (q *Queue) Evict(userID int64) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := 0
	for key, w := range q.waiters {
		if w.UserID == userID {
			delete(q.waiters, key)
			n++
		}
	}
	return n
}

// Waiting 返回用户是否还在某个等待位上
func (q *Queue) Waiting(userID int64) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, w := range q.waiters {
		if w.UserID == userID {
			return true
		}
	}
	return false
}
