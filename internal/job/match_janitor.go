package job

import (
	"context"
	"log"
	"time"

	"coinduel/internal/config"
	"coinduel/internal/game"
	"coinduel/internal/repository"
	"coinduel/internal/service"

	"gorm.io/gorm"
)

// MatchJanitor 对局清扫任务，处理两类遗留对局：
//
// 1. 内存里还在、但长时间无进展的对局（玩家挂机）：
//    走引擎的中断路径，双方退注
// 2. 库里是 ACTIVE、内存里却不存在的对局（进程重启丢内存态，
//    或终局结算事务失败）：直接按库表双退兜底
//
// 【重要】第 2 类是资金守恒的最后一道防线：押注已经扣了，
// 对局行不终结钱就永远回不来
type MatchJanitor struct {
	db        *gorm.DB
	matchRepo *repository.MatchRepository
	escrow    *service.EscrowService
	engine    *game.Engine
	cfg       *config.Config
	stopCh    chan struct{}
	interval  time.Duration
	batchSize int
}

func NewMatchJanitor(db *gorm.DB, cfg *config.Config, escrow *service.EscrowService, engine *game.Engine) *MatchJanitor {
	interval := time.Duration(cfg.Business.JanitorIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &MatchJanitor{
		db:        db,
		matchRepo: repository.NewMatchRepository(db),
		escrow:    escrow,
		engine:    engine,
		cfg:       cfg,
		stopCh:    make(chan struct{}),
		interval:  interval,
		batchSize: 50,
	}
}

func (j *MatchJanitor) Start(ctx context.Context) {
	log.Println("[MatchJanitor] 对局清扫任务启动")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[MatchJanitor] 收到停止信号，任务退出")
			return
		case <-j.stopCh:
			log.Println("[MatchJanitor] 任务停止")
			return
		case <-ticker.C:
			j.sweepStaleMatches(ctx)
			j.sweepOrphanRows(ctx)
		}
	}
}

func (j *MatchJanitor) Stop() {
	close(j.stopCh)
}

func (j *MatchJanitor) staleAfter() time.Duration {
	minutes := j.cfg.Business.StaleMatchMinutes
	if minutes <= 0 {
		minutes = 5
	}
	return time.Duration(minutes) * time.Minute
}

// sweepStaleMatches 中断内存里无进展的对局
func (j *MatchJanitor) sweepStaleMatches(ctx context.Context) {
	n := j.engine.InterruptStale(ctx, j.staleAfter())
	if n > 0 {
		log.Printf("[MatchJanitor] 中断 %d 个无进展对局", n)
	}
}

// sweepOrphanRows 兜底库里滞留的 ACTIVE 对局行
func (j *MatchJanitor) sweepOrphanRows(ctx context.Context) {
	before := time.Now().Add(-j.staleAfter())
	matches, err := j.matchRepo.GetStaleActive(ctx, before, j.batchSize)
	if err != nil {
		log.Printf("[MatchJanitor] 查询滞留对局失败: %v", err)
		return
	}

	for _, match := range matches {
		// 内存里还在的对局由引擎侧清扫，这里只管孤儿行
		if j.engine.Registry().Get(match.MatchNo) != nil {
			continue
		}

		players, err := j.matchRepo.GetPlayers(ctx, match.MatchNo)
		if err != nil {
			log.Printf("[MatchJanitor] 查询对局玩家失败: matchNo=%s, err=%v", match.MatchNo, err)
			continue
		}

		refunds := make([]int64, 0, len(players))
		for _, p := range players {
			refunds = append(refunds, p.UserID)
		}

		if err := j.escrow.SettleInterrupted(ctx, match.MatchNo, refunds); err != nil {
			log.Printf("[MatchJanitor] 兜底退款失败: matchNo=%s, err=%v", match.MatchNo, err)
			continue
		}
		log.Printf("[MatchJanitor] 孤儿对局已双退: matchNo=%s, stake=%d", match.MatchNo, match.Stake)
	}
}
