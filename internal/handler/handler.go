package handler

import (
	"context"
	"errors"
	"strconv"

	"coinduel/internal/config"
	"coinduel/internal/game"
	"coinduel/internal/model"
	"coinduel/internal/repository"
	"coinduel/internal/service"
	"coinduel/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// Handler 统一处理器，包含所有服务依赖
type Handler struct {
	ledgerService *service.LedgerService
	rewardService *service.RewardService
	escrowService *service.EscrowService
	engine        *game.Engine
}

// NewHandler 创建处理器实例
// 托管服务与对局引擎由 main 创建后注入，清扫任务共用同一批实例
func NewHandler(db *gorm.DB, rdb *redis.Client, cfg *config.Config, escrowService *service.EscrowService, engine *game.Engine) *Handler {
	return &Handler{
		ledgerService: service.NewLedgerService(db, rdb, cfg),
		rewardService: service.NewRewardService(db, rdb, cfg),
		escrowService: escrowService,
		engine:        engine,
	}
}

// fail 业务错误翻译成响应码；未登记的错误一律按服务器错误返回
func fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, repository.ErrBalanceNotEnough):
		response.BusinessError(c, response.CodeBalanceNotEnough, err.Error())
	case errors.Is(err, repository.ErrAccountNotFound):
		response.BusinessError(c, response.CodeAccountNotFound, err.Error())
	case errors.Is(err, service.ErrDailyCapExceeded):
		response.BusinessError(c, response.CodeDailyCapExceeded, err.Error())
	case errors.Is(err, service.ErrRateLimited):
		response.BusinessError(c, response.CodeRateLimited, err.Error())
	case errors.Is(err, service.ErrUnknownEarnSource):
		response.BusinessError(c, response.CodeUnknownSource, err.Error())
	case errors.Is(err, repository.ErrDuplicateOperation):
		response.BusinessError(c, response.CodeDuplicateRequest, err.Error())
	case errors.Is(err, service.ErrAlreadyResolved):
		response.BusinessError(c, response.CodeAlreadyResolved, err.Error())
	case errors.Is(err, repository.ErrTxConflict):
		response.BusinessError(c, response.CodeTxConflict, err.Error())
	case errors.Is(err, game.ErrMatchNotFound),
		errors.Is(err, game.ErrRematchNeeded),
		errors.Is(err, repository.ErrMatchNotFound):
		response.BusinessError(c, response.CodeMatchNotFound, err.Error())
	case errors.Is(err, game.ErrAlreadyInMatch),
		errors.Is(err, game.ErrNotInMatch),
		errors.Is(err, game.ErrAlreadyActed),
		errors.Is(err, game.ErrBadCardIndex),
		errors.Is(err, game.ErrWrongKind):
		response.BusinessError(c, response.CodeNotYourTurn, err.Error())
	case errors.Is(err, game.ErrAbilityUsed):
		response.BusinessError(c, response.CodeAbilityUsed, err.Error())
	default:
		response.ServerError(c, err.Error())
	}
}

func queryUserID(c *gin.Context) (int64, bool) {
	userID, err := strconv.ParseInt(c.Query("user_id"), 10, 64)
	if err != nil || userID <= 0 {
		response.ParamError(c, "user_id 参数错误")
		return 0, false
	}
	return userID, true
}

// ============================================================
// 账户相关接口
// ============================================================

// GetBalance 查询用户余额与战绩
// GET /api/v1/account/balance?user_id=xxx
func (h *Handler) GetBalance(c *gin.Context) {
	userID, ok := queryUserID(c)
	if !ok {
		return
	}

	account, err := h.ledgerService.GetAccount(c.Request.Context(), userID)
	if err != nil {
		fail(c, err)
		return
	}

	response.Success(c, gin.H{
		"user_id": account.UserID,
		"balance": account.Balance,
		"wins":    account.Wins,
		"losses":  account.Losses,
	})
}

// GetHistory 查询账变流水
// GET /api/v1/account/history?user_id=xxx&page=1&page_size=10
func (h *Handler) GetHistory(c *gin.Context) {
	userID, ok := queryUserID(c)
	if !ok {
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "10"))

	entries, total, err := h.ledgerService.ListEntries(c.Request.Context(), userID, page, pageSize)
	if err != nil {
		fail(c, err)
		return
	}

	response.Success(c, gin.H{
		"list":      entries,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// RechargeRequest 充值请求
type RechargeRequest struct {
	RequestID string `json:"request_id" binding:"required"` // 幂等ID
	UserID    int64  `json:"user_id" binding:"required"`
	Amount    int64  `json:"amount" binding:"required,gt=0"`
}

// Recharge 充值接口（简化版，实际应该走支付渠道）
// POST /api/v1/account/recharge
func (h *Handler) Recharge(c *gin.Context) {
	var req RechargeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	err := h.ledgerService.CreditUnrestricted(c.Request.Context(),
		req.UserID, req.Amount, model.LedgerReasonRecharge, req.RequestID, "账户充值", req.RequestID)
	if err != nil && !errors.Is(err, repository.ErrDuplicateOperation) {
		fail(c, err)
		return
	}

	balance, err := h.ledgerService.GetBalance(c.Request.Context(), req.UserID)
	if err != nil {
		fail(c, err)
		return
	}

	response.Success(c, gin.H{
		"message": "充值成功",
		"balance": balance,
	})
}

// EarnRequest 奖励发放请求
type EarnRequest struct {
	UserID int64  `json:"user_id" binding:"required"`
	Amount int64  `json:"amount" binding:"required,gt=0"`
	Source string `json:"source" binding:"required"` // 发放来源，见奖励规则表
	RefID  string `json:"ref_id" binding:"required"`
}

// Earn 按来源规则发放奖励
// POST /api/v1/account/earn
//
// 【关键点】发放受规则约束：当日限额、每小时次数，超限直接拒绝。
// ref_id 只做流水溯源，重复投递由规则额度兜住，不走幂等键
func (h *Handler) Earn(c *gin.Context) {
	var req EarnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	err := h.ledgerService.CreditWithRules(c.Request.Context(),
		req.UserID, req.Amount, req.Source, req.RefID)
	if err != nil {
		fail(c, err)
		return
	}

	response.Success(c, gin.H{
		"message": "发放成功",
	})
}

// ============================================================
// 兑换相关接口
// ============================================================

// HoldRewardRequest 发起兑换请求
type HoldRewardRequest struct {
	RequestID string `json:"request_id" binding:"required"` // 幂等ID
	UserID    int64  `json:"user_id" binding:"required"`
	ItemRef   string `json:"item_ref" binding:"required"` // 兑换目标
	Cost      int64  `json:"cost" binding:"required,gt=0"`
}

// HoldReward 发起兑换：先冻结扣款，等管理员审核
// POST /api/v1/reward/hold
func (h *Handler) HoldReward(c *gin.Context) {
	var req HoldRewardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	reward, err := h.rewardService.HoldForReward(c.Request.Context(),
		req.UserID, req.ItemRef, req.Cost, req.RequestID)
	if err != nil {
		fail(c, err)
		return
	}
	if reward == nil {
		// 幂等重放但首次执行没有留下兑换单
		response.BusinessError(c, response.CodeDuplicateRequest, "重复请求")
		return
	}

	response.Success(c, gin.H{
		"reward_no":  reward.RewardNo,
		"status":     reward.Status,
		"cost":       reward.Cost,
		"risk_score": reward.RiskScore,
	})
}

// GetReward 查询兑换单详情
// GET /api/v1/reward/detail?reward_no=xxx
func (h *Handler) GetReward(c *gin.Context) {
	rewardNo := c.Query("reward_no")
	if rewardNo == "" {
		response.ParamError(c, "reward_no 参数不能为空")
		return
	}

	reward, err := h.rewardService.GetReward(c.Request.Context(), rewardNo)
	if err != nil {
		fail(c, err)
		return
	}

	response.Success(c, reward)
}

// ListRewards 查询用户兑换单列表
// GET /api/v1/reward/list?user_id=xxx&page=1&page_size=10
func (h *Handler) ListRewards(c *gin.Context) {
	userID, ok := queryUserID(c)
	if !ok {
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "10"))

	rewards, total, err := h.rewardService.ListUserRewards(c.Request.Context(), userID, page, pageSize)
	if err != nil {
		fail(c, err)
		return
	}

	response.Success(c, gin.H{
		"list":      rewards,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// ============================================================
// 对战相关接口
// ============================================================

// RequestMatchRequest 发起匹配
type RequestMatchRequest struct {
	UserID int64  `json:"user_id" binding:"required"`
	Kind   string `json:"kind" binding:"required"` // DUEL / TIMER
	Stake  int64  `json:"stake" binding:"required,gt=0"`
}

// RequestMatch 发起匹配：同玩法同注额先到先配
// POST /api/v1/match/request
func (h *Handler) RequestMatch(c *gin.Context) {
	var req RequestMatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	result, err := h.engine.RequestMatch(c.Request.Context(), req.UserID, req.Kind, req.Stake)
	if err != nil {
		fail(c, err)
		return
	}

	response.Success(c, result)
}

// CancelSearch 取消匹配等待
// POST /api/v1/match/cancel
func (h *Handler) CancelSearch(c *gin.Context) {
	var req RequestMatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	cancelled := h.engine.CancelSearch(req.UserID, req.Kind, req.Stake)
	response.Success(c, gin.H{
		"cancelled": cancelled,
	})
}

// GetSearchStatus 查询匹配状态
// GET /api/v1/match/search?user_id=xxx
//
// 配对托管失败时等待者的等待位已作废，轮询这里会看到
// searching=false 且没有 match_no，即知需要重新发起匹配
func (h *Handler) GetSearchStatus(c *gin.Context) {
	userID, ok := queryUserID(c)
	if !ok {
		return
	}

	response.Success(c, gin.H{
		"searching": h.engine.Searching(userID),
		"match_no":  h.engine.Registry().FindByUser(userID),
	})
}

// GetMatchState 查询当前局面
// GET /api/v1/match/state?user_id=xxx&match_no=xxx
// match_no 省略时按玩家反查进行中的对局
func (h *Handler) GetMatchState(c *gin.Context) {
	userID, ok := queryUserID(c)
	if !ok {
		return
	}

	matchNo := c.Query("match_no")
	if matchNo == "" {
		matchNo = h.engine.Registry().FindByUser(userID)
		if matchNo == "" {
			fail(c, game.ErrMatchNotFound)
			return
		}
	}

	view, err := h.engine.State(userID, matchNo)
	if err != nil {
		fail(c, err)
		return
	}

	response.Success(c, view)
}

// GetMatchHistory 用户历史对局（已落库的终局与进行中托管记录）
// GET /api/v1/match/history?user_id=xxx&page=1&page_size=10
func (h *Handler) GetMatchHistory(c *gin.Context) {
	userID, ok := queryUserID(c)
	if !ok {
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "10"))

	matches, total, err := h.escrowService.ListUserMatches(c.Request.Context(), userID, page, pageSize)
	if err != nil {
		fail(c, err)
		return
	}

	response.Success(c, gin.H{
		"list":      matches,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// MatchActionRequest 局内动作通用请求
type MatchActionRequest struct {
	UserID  int64  `json:"user_id" binding:"required"`
	MatchNo string `json:"match_no" binding:"required"`
}

// PlayCardRequest 出牌请求
type PlayCardRequest struct {
	UserID    int64  `json:"user_id" binding:"required"`
	MatchNo   string `json:"match_no" binding:"required"`
	CardIndex *int   `json:"card_index" binding:"required"` // 指针以允许 0
}

// PlayCard 出牌
// POST /api/v1/match/play
func (h *Handler) PlayCard(c *gin.Context) {
	var req PlayCardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	view, err := h.engine.PlayCard(c.Request.Context(), req.UserID, req.MatchNo, *req.CardIndex)
	if err != nil {
		fail(c, err)
		return
	}

	response.Success(c, view)
}

// UseBoost 购买点数加成
// POST /api/v1/match/boost
func (h *Handler) UseBoost(c *gin.Context) {
	h.matchAction(c, h.engine.UseBoost)
}

// UseReroll 购买换牌
// POST /api/v1/match/reroll
func (h *Handler) UseReroll(c *gin.Context) {
	h.matchAction(c, h.engine.UseReroll)
}

// Click 计时对决提交停止
// POST /api/v1/match/click
func (h *Handler) Click(c *gin.Context) {
	h.matchAction(c, h.engine.Click)
}

// Surrender 投降
// POST /api/v1/match/surrender
func (h *Handler) Surrender(c *gin.Context) {
	h.matchAction(c, h.engine.Surrender)
}

func (h *Handler) matchAction(c *gin.Context, action func(ctx context.Context, userID int64, matchNo string) (*game.MatchView, error)) {
	var req MatchActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	view, err := action(c.Request.Context(), req.UserID, req.MatchNo)
	if err != nil {
		fail(c, err)
		return
	}

	response.Success(c, view)
}
