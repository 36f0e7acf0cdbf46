package handler

import (
	"coinduel/internal/config"
	"coinduel/internal/game"
	"coinduel/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// SetupRouter 配置路由
func SetupRouter(db *gorm.DB, rdb *redis.Client, cfg *config.Config, escrowService *service.EscrowService, engine *game.Engine) *gin.Engine {
	// 设置 gin 为发布模式（减少日志输出）
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	// 注册中间件
	r.Use(RecoveryMiddleware())
	r.Use(LoggerMiddleware())
	r.Use(CORSMiddleware())

	// 创建处理器
	h := NewHandler(db, rdb, cfg, escrowService, engine)

	// API 路由组
	api := r.Group("/api/v1")
	{
		// 账户相关
		account := api.Group("/account")
		{
			account.GET("/balance", h.GetBalance)
			account.GET("/history", h.GetHistory)
			account.POST("/recharge", h.Recharge)
			account.POST("/earn", h.Earn)
		}

		// 兑换相关
		reward := api.Group("/reward")
		{
			reward.POST("/hold", h.HoldReward)
			reward.GET("/detail", h.GetReward)
			reward.GET("/list", h.ListRewards)
		}

		// 对战相关
		match := api.Group("/match")
		{
			match.POST("/request", h.RequestMatch)
			match.POST("/cancel", h.CancelSearch)
			match.GET("/search", h.GetSearchStatus)
			match.GET("/state", h.GetMatchState)
			match.GET("/history", h.GetMatchHistory)
			match.POST("/play", h.PlayCard)
			match.POST("/boost", h.UseBoost)
			match.POST("/reroll", h.UseReroll)
			match.POST("/click", h.Click)
			match.POST("/surrender", h.Surrender)
		}

		// 管理端
		admin := api.Group("/admin")
		{
			admin.POST("/credit", h.AdminCredit)
			admin.POST("/debit", h.AdminDebit)
			admin.POST("/reward/resolve", h.ResolveReward)
			admin.GET("/reward/pending", h.ListPendingRewards)
			admin.POST("/match/interrupt", h.InterruptMatch)
			admin.GET("/match/stats", h.MatchStats)
			admin.GET("/match/detail", h.GetMatchDetail)
			admin.GET("/account/audit", h.AuditAccount)
		}
	}

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	return r
}
