package job

import (
	"context"
	"log"
	"time"

	"coinduel/internal/config"
	"coinduel/internal/repository"

	"gorm.io/gorm"
)

// CleanupJob 低频清理任务：
// 过期幂等键、过期发放计数按批删除，防止两张表无限膨胀
type CleanupJob struct {
	db         *gorm.DB
	ledgerRepo *repository.LedgerRepository
	earnRepo   *repository.EarnCounterRepository
	cfg        *config.Config
	stopCh     chan struct{}
	interval   time.Duration
	batchSize  int
}

func NewCleanupJob(db *gorm.DB, cfg *config.Config) *CleanupJob {
	return &CleanupJob{
		db:         db,
		ledgerRepo: repository.NewLedgerRepository(db),
		earnRepo:   repository.NewEarnCounterRepository(db),
		cfg:        cfg,
		stopCh:     make(chan struct{}),
		interval:   time.Hour,
		batchSize:  1000,
	}
}

func (j *CleanupJob) Start(ctx context.Context) {
	log.Println("[CleanupJob] 过期数据清理任务启动")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[CleanupJob] 收到停止信号，任务退出")
			return
		case <-j.stopCh:
			log.Println("[CleanupJob] 任务停止")
			return
		case <-ticker.C:
			j.cleanup(ctx)
		}
	}
}

func (j *CleanupJob) Stop() {
	close(j.stopCh)
}

func (j *CleanupJob) cleanup(ctx context.Context) {
	retentionDays := j.cfg.Business.IdemRetentionDays
	if retentionDays <= 0 {
		retentionDays = 7
	}
	before := time.Now().AddDate(0, 0, -retentionDays)

	// 幂等键过了保留期就删：同一请求隔这么久再重放，当新请求处理
	if n, err := j.ledgerRepo.DeleteIdemKeysBefore(ctx, before, j.batchSize); err != nil {
		log.Printf("[CleanupJob] 清理幂等键失败: %v", err)
	} else if n > 0 {
		log.Printf("[CleanupJob] 清理过期幂等键 %d 条", n)
	}

	// 发放计数只在当期有意义，隔天/隔小时的旧计数直接删
	if n, err := j.earnRepo.DeleteBefore(ctx, before, j.batchSize); err != nil {
		log.Printf("[CleanupJob] 清理发放计数失败: %v", err)
	} else if n > 0 {
		log.Printf("[CleanupJob] 清理过期发放计数 %d 条", n)
	}
}
