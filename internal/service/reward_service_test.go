package service

import (
	"context"
	"testing"
	"time"

	"coinduel/internal/model"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pendingRewardRows(rewardNo string, userID, cost int64) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "reward_no", "user_id", "item_ref", "cost", "status"}).
		AddRow(1, rewardNo, userID, "GIFT_CODE_A", cost, model.RewardStatusPending)
}

// 驳回：状态流转、退款、退款流水、结果消息在同一个事务里提交
func TestResolveRewardRejectRefundsOnce(t *testing.T) {
	db, mock := newMockDB(t)
	rdb, rmock := redismock.NewClientMock()

	cfg := testServiceConfig()
	cfg.Kafka.Topic.RewardResult = "reward-result"
	svc := NewRewardService(db, rdb, cfg)

	rmock.ExpectSetNX("reward:lock:no:RWD1", "admin:9", 30*time.Second).SetVal(true)

	mock.ExpectQuery("SELECT \\* FROM `reward_request`").
		WillReturnRows(pendingRewardRows("RWD1", 1, 500))

	mock.ExpectBegin()
	// 条件流转：WHERE reward_no = ? AND status = PENDING
	mock.ExpectExec("UPDATE `reward_request` SET").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT \\* FROM `account`").
		WillReturnRows(accountRows(100, 3))
	mock.ExpectExec("UPDATE `account` SET").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO `ledger_entry`").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO `outbox_message`").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	reward, err := svc.ResolveReward(context.Background(), "RWD1", RewardOutcomeReject, 9, "刷单嫌疑")
	require.NoError(t, err)
	assert.Equal(t, model.RewardStatusRejected, reward.Status)
	assert.Equal(t, int64(9), reward.AdminID)

	assert.NoError(t, mock.ExpectationsWereMet())
	assert.NoError(t, rmock.ExpectationsWereMet())
}

// 条件流转落空说明别的事务已经处理过这张单：
// 整体回滚，不发出任何退款语句 —— 一张单最多被处理一次
func TestResolveRewardLosesConditionalFlip(t *testing.T) {
	db, mock := newMockDB(t)
	rdb, rmock := redismock.NewClientMock()
	svc := NewRewardService(db, rdb, testServiceConfig())

	rmock.ExpectSetNX("reward:lock:no:RWD1", "admin:9", 30*time.Second).SetVal(true)

	mock.ExpectQuery("SELECT \\* FROM `reward_request`").
		WillReturnRows(pendingRewardRows("RWD1", 1, 500))

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE `reward_request` SET").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	_, err := svc.ResolveReward(context.Background(), "RWD1", RewardOutcomeReject, 9, "")
	assert.ErrorIs(t, err, ErrAlreadyResolved)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// 终态单在预检查就被拦下，不开事务
func TestResolveRewardTerminalStatus(t *testing.T) {
	db, mock := newMockDB(t)
	rdb, rmock := redismock.NewClientMock()
	svc := NewRewardService(db, rdb, testServiceConfig())

	rmock.ExpectSetNX("reward:lock:no:RWD1", "admin:9", 30*time.Second).SetVal(true)

	mock.ExpectQuery("SELECT \\* FROM `reward_request`").
		WillReturnRows(sqlmock.NewRows([]string{"id", "reward_no", "user_id", "item_ref", "cost", "status"}).
			AddRow(1, "RWD1", 1, "GIFT_CODE_A", 500, model.RewardStatusRejected))

	_, err := svc.ResolveReward(context.Background(), "RWD1", RewardOutcomeApprove, 9, "")
	assert.ErrorIs(t, err, ErrAlreadyResolved)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// 兑换下单撞幂等键时不二次扣款，按键找回首次创建的兑换单
func TestHoldForRewardReplayReturnsOriginal(t *testing.T) {
	db, mock := newMockDB(t)
	svc := NewRewardService(db, nil, testServiceConfig())

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `idempotency_key`").
		WillReturnError(&mysqlDuplicateErr)
	mock.ExpectRollback()

	// 重放：按键取回首次执行的单号，再取兑换单
	mock.ExpectQuery("SELECT \\* FROM `idempotency_key`").
		WillReturnRows(sqlmock.NewRows([]string{"id", "idem_key", "user_id", "ref_id"}).
			AddRow(1, "hold:abc", 1, "RWD1"))
	mock.ExpectQuery("SELECT \\* FROM `reward_request`").
		WillReturnRows(pendingRewardRows("RWD1", 1, 500))

	reward, err := svc.HoldForReward(context.Background(), 1, "GIFT_CODE_A", 500, "hold:abc")
	require.NoError(t, err)
	require.NotNil(t, reward)
	assert.Equal(t, "RWD1", reward.RewardNo)
	assert.NoError(t, mock.ExpectationsWereMet())
}
