package repository

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"gorm.io/gorm"
)

// ErrTxConflict 重试次数耗尽仍然冲突
var ErrTxConflict = errors.New("事务冲突，请稍后重试")

// RunWithRetry 在事务里执行 fn，乐观锁冲突时带随机退避重试
//
// 【关键点】所有资金操作共用这一个入口：
// 同一账户的并发扣款会踩到版本号冲突，各自回滚重试，
// 最终逐笔串行提交 —— "余额不会变负"在任意并发下都成立。
// 重试耗尽返回 ErrTxConflict，绝不把半完成的事务留在库里。
func RunWithRetry(ctx context.Context, db *gorm.DB, maxAttempts int, fn func(tx *gorm.DB) error) error {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	var err error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			// 随机退避 10-50ms，避免冲突双方同步重试
			backoff := time.Duration(10+rand.Intn(40)) * time.Millisecond
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}

		err = db.WithContext(ctx).Transaction(fn)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrOptimisticLock) {
			return err
		}
	}

	return ErrTxConflict
}
