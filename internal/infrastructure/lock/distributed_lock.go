package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// ============================================================================
// 分布式锁实现
// ============================================================================
//
// 【为什么需要分布式锁？】
//
// 场景：两个管理员同时处理同一张兑换单（或同一请求被重复投递）
//
// 没有锁时两个事务都看到 PENDING，各退一次款，用户白赚一笔。
// 加锁后同一张单同一时刻只有一个处理者，第二个要么等待要么拿到"已处理"。
//
// 【Redis 分布式锁原理】
//
// 加锁：SET key value NX EX timeout
//   - NX: 只有 key 不存在时才设置（保证互斥）
//   - EX: 设置过期时间（防止死锁）
//   - value: 锁持有者标识（释放时验证，防止误删别人的锁）
//
// 释放锁：Lua 脚本先验 value 再删除，保证原子性
//
// ============================================================================

var (
	ErrLockFailed  = errors.New("获取分布式锁失败")
	ErrLockExpired = errors.New("锁已过期")
)

// DistributedLock 分布式锁
type DistributedLock struct {
	client     *redis.Client
	key        string        // 锁的 key
	value      string        // 锁的 value（用于验证锁的持有者）
	expiration time.Duration // 锁的过期时间
}

// NewDistributedLock 创建分布式锁
func NewDistributedLock(client *redis.Client, key, value string, expiration time.Duration) *DistributedLock {
	return &DistributedLock{
		client:     client,
		key:        key,
		value:      value,
		expiration: expiration,
	}
}

// TryLock 尝试获取锁（非阻塞）
func (l *DistributedLock) TryLock(ctx context.Context) (bool, error) {
	// SET key value NX EX timeout
	// 持有锁的进程崩溃时，锁到期自动释放
	success, err := l.client.SetNX(ctx, l.key, l.value, l.expiration).Result()
	if err != nil {
		return false, err
	}
	return success, nil
}

// Lock 阻塞式获取锁（带重试）
func (l *DistributedLock) Lock(ctx context.Context, retryInterval time.Duration, maxRetries int) error {
	for i := 0; i < maxRetries; i++ {
		success, err := l.TryLock(ctx)
		if err != nil {
			return err
		}
		if success {
			return nil
		}
		// 等待一段时间后重试
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryInterval):
			// 继续重试
		}
	}
	return ErrLockFailed
}

// Unlock 释放锁
//
// 【关键点】必须验证 value 再删除：
// A 的锁超时自动释放后 B 拿到锁，A 迟到的 Unlock 不能把 B 的锁删掉
func (l *DistributedLock) Unlock(ctx context.Context) error {
	script := `
		if redis.call("GET", KEYS[1]) == ARGV[1] then
			return redis.call("DEL", KEYS[1])
		else
			return 0
		end
	`
	_, err := l.client.Eval(ctx, script, []string{l.key}, l.value).Result()
	return err
}

// ============================================================================
// 便捷函数
// ============================================================================

// NewRewardLock 兑换单处理锁（按单号维度）
// 并发 resolve 同一张单时只有一个能进入状态流转
func NewRewardLock(client *redis.Client, rewardNo, holder string) *DistributedLock {
	key := fmt.Sprintf("reward:lock:no:%s", rewardNo)
	return NewDistributedLock(client, key, holder, 30*time.Second)
}

// NewAdminOpLock 管理员资金操作锁（按用户维度）
// 同一用户的管理员加扣币串行执行，不同用户互不影响
func NewAdminOpLock(client *redis.Client, userID int64, holder string) *DistributedLock {
	key := fmt.Sprintf("admin:lock:user:%d", userID)
	return NewDistributedLock(client, key, holder, 30*time.Second)
}
