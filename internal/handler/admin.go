package handler

import (
	"errors"
	"strconv"

	"coinduel/internal/model"
	"coinduel/internal/repository"
	"coinduel/pkg/response"

	"github.com/gin-gonic/gin"
)

// ============================================================
// 管理端接口
// ============================================================

// AdminAdjustRequest 管理员调账请求
type AdminAdjustRequest struct {
	RequestID string `json:"request_id" binding:"required"` // 幂等ID
	UserID    int64  `json:"user_id" binding:"required"`
	Amount    int64  `json:"amount" binding:"required,gt=0"`
	AdminID   int64  `json:"admin_id" binding:"required"`
	Reason    string `json:"reason" binding:"required"`
}

// AdminCredit 管理员加币，不受发放规则约束
// POST /api/v1/admin/credit
func (h *Handler) AdminCredit(c *gin.Context) {
	var req AdminAdjustRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	err := h.ledgerService.AdminCredit(c.Request.Context(),
		req.UserID, req.Amount, req.AdminID, req.Reason, req.RequestID)
	// 同一请求ID重放按成功返回，不再动账
	if err != nil && !errors.Is(err, repository.ErrDuplicateOperation) {
		fail(c, err)
		return
	}

	response.Success(c, gin.H{
		"message": "调账成功",
	})
}

// AdminDebit 管理员扣币，余额不足整体失败
// POST /api/v1/admin/debit
func (h *Handler) AdminDebit(c *gin.Context) {
	var req AdminAdjustRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	err := h.ledgerService.AdminDebit(c.Request.Context(),
		req.UserID, req.Amount, req.AdminID, req.Reason, req.RequestID)
	// 同一请求ID重放按成功返回，不再动账
	if err != nil && !errors.Is(err, repository.ErrDuplicateOperation) {
		fail(c, err)
		return
	}

	response.Success(c, gin.H{
		"message": "调账成功",
	})
}

// ResolveRewardRequest 兑换审核请求
type ResolveRewardRequest struct {
	RewardNo string `json:"reward_no" binding:"required"`
	Outcome  string `json:"outcome" binding:"required"` // approve / reject / fulfill
	AdminID  int64  `json:"admin_id" binding:"required"`
	Notes    string `json:"notes"`
}

// ResolveReward 审核兑换单
// POST /api/v1/admin/reward/resolve
//
// 【关键点】同一张兑换单只会被处理一次：
// 分布式锁挡并发请求，条件更新挡并发事务，驳回才退款
func (h *Handler) ResolveReward(c *gin.Context) {
	var req ResolveRewardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	reward, err := h.rewardService.ResolveReward(c.Request.Context(),
		req.RewardNo, req.Outcome, req.AdminID, req.Notes)
	if err != nil {
		fail(c, err)
		return
	}

	response.Success(c, gin.H{
		"reward_no": reward.RewardNo,
		"status":    reward.Status,
	})
}

// ListPendingRewards 待审核兑换单列表
// GET /api/v1/admin/reward/pending?limit=20
func (h *Handler) ListPendingRewards(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	rewards, err := h.rewardService.ListPending(c.Request.Context(), limit)
	if err != nil {
		fail(c, err)
		return
	}

	response.Success(c, gin.H{
		"list": rewards,
	})
}

// InterruptMatchRequest 管理员中断对局请求
type InterruptMatchRequest struct {
	MatchNo string `json:"match_no" binding:"required"`
	// 弃局玩家；填了则该玩家押注没收只退对手，不填双方都退
	LeaverID int64 `json:"leaver_id"`
}

// InterruptMatch 管理员中断对局
// POST /api/v1/admin/match/interrupt
func (h *Handler) InterruptMatch(c *gin.Context) {
	var req InterruptMatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	if err := h.engine.Interrupt(c.Request.Context(), req.MatchNo, req.LeaverID); err != nil {
		fail(c, err)
		return
	}

	response.Success(c, gin.H{
		"message": "对局已中断",
		"state":   model.MatchStateInterrupted,
	})
}

// MatchStats 在线对局统计
// GET /api/v1/admin/match/stats
func (h *Handler) MatchStats(c *gin.Context) {
	response.Success(c, gin.H{
		"active_matches": h.engine.Registry().Count(),
	})
}

// GetMatchDetail 查已落库的对局（终局结果、资金口径）
// GET /api/v1/admin/match/detail?match_no=xxx
func (h *Handler) GetMatchDetail(c *gin.Context) {
	matchNo := c.Query("match_no")
	if matchNo == "" {
		response.ParamError(c, "match_no 参数不能为空")
		return
	}

	match, err := h.escrowService.GetMatch(c.Request.Context(), matchNo)
	if err != nil {
		fail(c, err)
		return
	}

	response.Success(c, match)
}

// AuditAccount 单用户对账：流水累加必须等于余额
// GET /api/v1/admin/account/audit?user_id=xxx
func (h *Handler) AuditAccount(c *gin.Context) {
	userID, ok := queryUserID(c)
	if !ok {
		return
	}

	result, err := h.ledgerService.Audit(c.Request.Context(), userID)
	if err != nil {
		fail(c, err)
		return
	}

	response.Success(c, result)
}
