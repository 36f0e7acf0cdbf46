package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	CodeSuccess       = 0
	CodeParamError    = 400
	CodeUnauthorized  = 401
	CodeForbidden     = 403
	CodeNotFound      = 404
	CodeServerError   = 500
	CodeBusinessError = 1000
)

const (
	CodeBalanceNotEnough = 1001 // 余额不足
	CodeAccountNotFound  = 1002 // 账户不存在
	CodeDailyCapExceeded = 1003 // 当日发放额度已用完
	CodeRateLimited      = 1004 // 发放太频繁
	CodeUnknownSource    = 1005 // 未登记的奖励来源
	CodeDuplicateRequest = 1006 // 幂等重放，无需重复处理
	CodeAlreadyResolved  = 1007 // 兑换单已处理
	CodeMatchNotFound    = 1008 // 对局不存在或已结束
	CodeNotYourTurn      = 1009 // 非法对局操作
	CodeAbilityUsed      = 1010 // 技能本局已用过
	CodeTxConflict       = 1011 // 事务冲突，重试耗尽
)

type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    CodeSuccess,
		Message: "success",
		Data:    data,
	})
}

func Error(c *gin.Context, code int, message string) {
	c.JSON(http.StatusOK, Response{
		Code:    code,
		Message: message,
	})
}

func ParamError(c *gin.Context, message string) {
	Error(c, CodeParamError, message)
}

func ServerError(c *gin.Context, message string) {
	Error(c, CodeServerError, message)
}

func BusinessError(c *gin.Context, code int, message string) {
	Error(c, code, message)
}
