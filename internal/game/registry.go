package game

import (
	"sync"
	"time"
)

// Registry 活跃对局注册表
//
// 显式注册表对象按依赖注入，不做包级单例；
// 注册表锁只保护两张映射，单个对局的状态由各自的锁保护
type Registry struct {
	mu       sync.RWMutex
	matches  map[string]*MatchState // matchNo -> 对局
	byUser   map[int64]string       // userID -> matchNo
	reserved map[int64]struct{}     // 建局占位：押注托管在途的用户
}

func NewRegistry() *Registry {
	return &Registry{
		matches:  make(map[string]*MatchState),
		byUser:   make(map[int64]string),
		reserved: make(map[int64]struct{}),
	}
}

// Reserve 建局前为双方占位，要么两个都占到，要么一个都不占
//
// 【关键点】配对成功到押注托管完成之间存在窗口，同一用户可能同时
// 挂在多个档位的等待位上被两条配对路径同时撮合；占位表把
// "用户是否已卷入某场建局"收敛成注册表锁下的一次原子判定
func (r *Registry) Reserve(userID1, userID2 int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, id := range []int64{userID1, userID2} {
		if _, ok := r.byUser[id]; ok {
			return false
		}
		if _, ok := r.reserved[id]; ok {
			return false
		}
	}
	r.reserved[userID1] = struct{}{}
	r.reserved[userID2] = struct{}{}
	return true
}

// Release 托管失败时归还占位
func (r *Registry) Release(userIDs ...int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, id := range userIDs {
		delete(r.reserved, id)
	}
}

// Busy 用户已在局中、或正处于建局占位中
func (r *Registry) Busy(userID int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.byUser[userID]; ok {
		return true
	}
	_, ok := r.reserved[userID]
	return ok
}

// Add 登记对局，同时把玩家的建局占位转正
func (r *Registry) Add(ms *MatchState) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.matches[ms.MatchNo] = ms
	for _, p := range ms.Players {
		r.byUser[p.UserID] = ms.MatchNo
		delete(r.reserved, p.UserID)
	}
}

func (r *Registry) Get(matchNo string) *MatchState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.matches[matchNo]
}

// FindByUser 返回用户所在的对局号，不在局中返回空串
func (r *Registry) FindByUser(userID int64) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byUser[userID]
}

func (r *Registry) Remove(matchNo string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ms, ok := r.matches[matchNo]
	if !ok {
		return
	}
	delete(r.matches, matchNo)
	for _, p := range ms.Players {
		if r.byUser[p.UserID] == matchNo {
			delete(r.byUser, p.UserID)
		}
	}
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.matches)
}

// StaleCandidates 返回最后进展早于 before 的对局，供清扫任务复核
// 这里只粗筛；真正的判死在清扫任务拿到对局锁之后再确认一次
//
// 【锁序】先注册表锁再对局锁；引擎侧绝不持有对局锁去碰注册表，
// 否则这里会和结算路径互相等死
func (r *Registry) StaleCandidates(before time.Time) []*MatchState {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*MatchState
	for _, ms := range r.matches {
		ms.mu.Lock()
		stale := ms.LastProgress.Before(before)
		ms.mu.Unlock()
		if stale {
			out = append(out, ms)
		}
	}
	return out
}
