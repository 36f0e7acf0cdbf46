package game

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"coinduel/internal/config"
	"coinduel/internal/model"
	"coinduel/pkg/idgen"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	idgen.Init(1)
}

// fakeEscrow 记录全部账务调用，可注入失败
type fakeEscrow struct {
	mu sync.Mutex

	holds       map[string][]int64 // matchNo -> 双方玩家
	finished    map[string]int64   // matchNo -> 赢家
	draws       []string
	interrupted map[string][]int64 // matchNo -> 退注名单
	debits      []int64            // 技能扣费金额

	failHold    bool
	failAbility bool
}

func newFakeEscrow() *fakeEscrow {
	return &fakeEscrow{
		holds:       make(map[string][]int64),
		finished:    make(map[string]int64),
		interrupted: make(map[string][]int64),
	}
}

func (f *fakeEscrow) HoldStakes(ctx context.Context, matchNo, kind string, stake int64, userID1, userID2 int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failHold {
		return errors.New("余额不足")
	}
	f.holds[matchNo] = []int64{userID1, userID2}
	return nil
}

func (f *fakeEscrow) SettleFinished(ctx context.Context, matchNo string, winnerID, loserID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finished[matchNo] = winnerID
	return nil
}

func (f *fakeEscrow) SettleDraw(ctx context.Context, matchNo string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.draws = append(f.draws, matchNo)
	return nil
}

func (f *fakeEscrow) SettleInterrupted(ctx context.Context, matchNo string, refundUserIDs []int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.interrupted[matchNo] = refundUserIDs
	return nil
}

func (f *fakeEscrow) DebitAbility(ctx context.Context, userID, cost int64, matchNo, remark string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAbility {
		return errors.New("余额不足")
	}
	f.debits = append(f.debits, cost)
	return nil
}

// settleCount 对局被结算的总次数，用于断言「一局只结一次」
func (f *fakeEscrow) settleCount(matchNo string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	if _, ok := f.finished[matchNo]; ok {
		n++
	}
	for _, m := range f.draws {
		if m == matchNo {
			n++
		}
	}
	if _, ok := f.interrupted[matchNo]; ok {
		n++
	}
	return n
}

func testConfig() *config.Config {
	return &config.Config{
		Business: config.BusinessConfig{
			RakePercent:       10,
			RoundWinsToFinish: 3,
			HandSize:          5,
			CardMaxValue:      13,
			BoostCost:         10,
			BoostBonus:        3,
			RerollCost:        15,
			TimerMinSeconds:   1,
			TimerMaxSeconds:   2,
		},
	}
}

func newTestEngine(escrow Escrow) *Engine {
	return NewEngine(testConfig(), escrow)
}

// startDuel 两个玩家配成一局卡牌对决，返回对局号
func startDuel(t *testing.T, e *Engine, u1, u2 int64) string {
	t.Helper()
	ctx := context.Background()

	result, err := e.RequestMatch(ctx, u1, model.MatchKindDuel, 100)
	require.NoError(t, err)
	require.Equal(t, MatchmakingSearching, result.Status)

	result, err = e.RequestMatch(ctx, u2, model.MatchKindDuel, 100)
	require.NoError(t, err)
	require.Equal(t, MatchmakingMatched, result.Status)
	require.NotNil(t, result.Match)
	return result.Match.MatchNo
}

// ============================================================
// 匹配
// ============================================================

func TestRequestMatchPairsSameTier(t *testing.T) {
	escrow := newFakeEscrow()
	e := newTestEngine(escrow)

	matchNo := startDuel(t, e, 1, 2)

	assert.Equal(t, []int64{1, 2}, escrow.holds[matchNo])
	assert.Equal(t, matchNo, e.registry.FindByUser(1))
	assert.Equal(t, matchNo, e.registry.FindByUser(2))

	// 双方都能看到局面，手牌各自独立
	for _, uid := range []int64{1, 2} {
		view, err := e.State(uid, matchNo)
		require.NoError(t, err)
		assert.Equal(t, model.MatchStateActive, view.State)
		assert.Len(t, view.Hand, 5)
	}
}

func TestRequestMatchDifferentStakeDoesNotPair(t *testing.T) {
	e := newTestEngine(newFakeEscrow())
	ctx := context.Background()

	result, err := e.RequestMatch(ctx, 1, model.MatchKindDuel, 100)
	require.NoError(t, err)
	assert.Equal(t, MatchmakingSearching, result.Status)

	// 注额不同不配对
	result, err = e.RequestMatch(ctx, 2, model.MatchKindDuel, 200)
	require.NoError(t, err)
	assert.Equal(t, MatchmakingSearching, result.Status)

	// 玩法不同也不配对
	result, err = e.RequestMatch(ctx, 3, model.MatchKindTimer, 100)
	require.NoError(t, err)
	assert.Equal(t, MatchmakingSearching, result.Status)
}

func TestRequestMatchWhileInMatch(t *testing.T) {
	e := newTestEngine(newFakeEscrow())
	startDuel(t, e, 1, 2)

	_, err := e.RequestMatch(context.Background(), 1, model.MatchKindDuel, 100)
	assert.ErrorIs(t, err, ErrAlreadyInMatch)
}

func TestRequestMatchHoldFailure(t *testing.T) {
	escrow := newFakeEscrow()
	e := newTestEngine(escrow)
	ctx := context.Background()

	_, err := e.RequestMatch(ctx, 1, model.MatchKindDuel, 100)
	require.NoError(t, err)

	escrow.failHold = true
	_, err = e.RequestMatch(ctx, 2, model.MatchKindDuel, 100)
	require.Error(t, err)

	// 托管失败不建局，双方都能重新匹配；
	// 轮询匹配状态能看出等待位已作废
	assert.Empty(t, e.registry.FindByUser(1))
	assert.Empty(t, e.registry.FindByUser(2))
	assert.False(t, e.Searching(1))
	assert.False(t, e.Searching(2))
	escrow.failHold = false

	result, err := e.RequestMatch(ctx, 1, model.MatchKindDuel, 100)
	require.NoError(t, err)
	assert.Equal(t, MatchmakingSearching, result.Status)
}

// blockingEscrow 在托管入口卡住，放大从配对成功到托管落库之间的窗口
type blockingEscrow struct {
	*fakeEscrow
	entered chan struct{}
	gate    chan struct{}
}

func (b *blockingEscrow) HoldStakes(ctx context.Context, matchNo, kind string, stake int64, userID1, userID2 int64) error {
	b.entered <- struct{}{}
	<-b.gate
	return b.fakeEscrow.HoldStakes(ctx, matchNo, kind, stake, userID1, userID2)
}

func TestRequestMatchConcurrentPairingEscrowsOnce(t *testing.T) {
	escrow := &blockingEscrow{
		fakeEscrow: newFakeEscrow(),
		entered:    make(chan struct{}),
		gate:       make(chan struct{}),
	}
	e := newTestEngine(escrow)
	ctx := context.Background()

	// 用户 7 同时挂在两个档位的等待位上
	_, err := e.RequestMatch(ctx, 7, model.MatchKindDuel, 100)
	require.NoError(t, err)
	_, err = e.RequestMatch(ctx, 7, model.MatchKindDuel, 200)
	require.NoError(t, err)

	// 用户 8 在 100 档配中 7，押注托管被卡在途中
	errCh := make(chan error, 1)
	go func() {
		_, err := e.RequestMatch(ctx, 8, model.MatchKindDuel, 100)
		errCh <- err
	}()
	<-escrow.entered

	// 托管在途期间用户 9 在 200 档也配中 7：占位失败，不再发起第二次托管
	_, err = e.RequestMatch(ctx, 9, model.MatchKindDuel, 200)
	assert.ErrorIs(t, err, ErrRematchNeeded)

	close(escrow.gate)
	require.NoError(t, <-errCh)

	// 7 的押注只被托管进一场对局
	held := 0
	for _, players := range escrow.holds {
		for _, uid := range players {
			if uid == 7 {
				held++
			}
		}
	}
	assert.Equal(t, 1, held)
	assert.Equal(t, 1, e.registry.Count())
}

func TestRequestMatchEvictsOtherWaits(t *testing.T) {
	e := newTestEngine(newFakeEscrow())
	ctx := context.Background()

	_, err := e.RequestMatch(ctx, 7, model.MatchKindDuel, 100)
	require.NoError(t, err)
	_, err = e.RequestMatch(ctx, 7, model.MatchKindTimer, 50)
	require.NoError(t, err)

	result, err := e.RequestMatch(ctx, 8, model.MatchKindDuel, 100)
	require.NoError(t, err)
	require.Equal(t, MatchmakingMatched, result.Status)

	// 配对成功后 7 在其他档位的残留等待位一并摘除
	assert.False(t, e.Searching(7))
	result, err = e.RequestMatch(ctx, 9, model.MatchKindTimer, 50)
	require.NoError(t, err)
	assert.Equal(t, MatchmakingSearching, result.Status)
}

func TestCancelSearch(t *testing.T) {
	e := newTestEngine(newFakeEscrow())
	ctx := context.Background()

	_, err := e.RequestMatch(ctx, 1, model.MatchKindDuel, 100)
	require.NoError(t, err)

	// 只能取消自己的等待位
	assert.False(t, e.CancelSearch(2, model.MatchKindDuel, 100))
	assert.True(t, e.CancelSearch(1, model.MatchKindDuel, 100))

	// 取消后第二个玩家进来只能继续等
	result, err := e.RequestMatch(ctx, 2, model.MatchKindDuel, 100)
	require.NoError(t, err)
	assert.Equal(t, MatchmakingSearching, result.Status)
}

// ============================================================
// 小局判定
// ============================================================

func TestResolveRound(t *testing.T) {
	tests := []struct {
		name       string
		cardA      int
		cardB      int
		boostedA   bool
		boostedB   bool
		wantWinsA  int
		wantWinsB  int
	}{
		{name: "点数高者胜", cardA: 9, cardB: 4, wantWinsA: 1},
		{name: "平点无加成不计分", cardA: 7, cardB: 7},
		{name: "平点单方加成该方胜", cardA: 7, cardB: 7, boostedB: true, wantWinsB: 1},
		{name: "平点双方加成本轮作废", cardA: 7, cardB: 7, boostedA: true, boostedB: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEngine(newFakeEscrow())
			ms := e.newMatchState("m1", model.MatchKindDuel, 100, 1, 2)
			ms.Players[0].PlayedCard = tt.cardA
			ms.Players[0].Boosted = tt.boostedA
			ms.Players[1].PlayedCard = tt.cardB
			ms.Players[1].Boosted = tt.boostedB

			st := e.resolveRoundLocked(ms)

			assert.Nil(t, st)
			assert.Equal(t, tt.wantWinsA, ms.Players[0].RoundWins)
			assert.Equal(t, tt.wantWinsB, ms.Players[1].RoundWins)
			// 轮次推进，本轮出牌与加成标记复位
			assert.Equal(t, 2, ms.Round)
			assert.Zero(t, ms.Players[0].PlayedCard)
			assert.Zero(t, ms.Players[1].PlayedCard)
			assert.False(t, ms.Players[0].Boosted)
			assert.False(t, ms.Players[1].Boosted)
		})
	}
}

func TestResolveRoundReachesThreshold(t *testing.T) {
	e := newTestEngine(newFakeEscrow())
	ms := e.newMatchState("m1", model.MatchKindDuel, 100, 1, 2)
	ms.Players[0].RoundWins = 2
	ms.Players[0].PlayedCard = 9
	ms.Players[1].PlayedCard = 4

	st := e.resolveRoundLocked(ms)

	require.NotNil(t, st)
	assert.Equal(t, model.MatchStateFinished, st.state)
	assert.Equal(t, int64(1), st.winner)
	assert.Equal(t, int64(2), st.loser)
}

func TestResolveRoundHandsExhausted(t *testing.T) {
	tests := []struct {
		name     string
		winsA    int
		winsB    int
		wantType string
		winner   int64
	}{
		{name: "比小局胜场多者胜", winsA: 2, winsB: 1, wantType: model.MatchStateFinished, winner: 1},
		{name: "胜场持平为平局", winsA: 1, winsB: 1, wantType: model.MatchStateDraw},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEngine(newFakeEscrow())
			ms := e.newMatchState("m1", model.MatchKindDuel, 100, 1, 2)
			// 各自只剩最后一张，打完进入比分判定
			ms.Players[0].Hand = nil
			ms.Players[1].Hand = nil
			ms.Players[0].RoundWins = tt.winsA
			ms.Players[1].RoundWins = tt.winsB
			ms.Players[0].PlayedCard = 5
			ms.Players[1].PlayedCard = 5

			st := e.resolveRoundLocked(ms)

			require.NotNil(t, st)
			assert.Equal(t, tt.wantType, st.state)
			if tt.winner != 0 {
				assert.Equal(t, tt.winner, st.winner)
			}
		})
	}
}

// ============================================================
// 完整对局
// ============================================================

func TestDuelPlaysToCompletion(t *testing.T) {
	escrow := newFakeEscrow()
	e := newTestEngine(escrow)
	ctx := context.Background()

	matchNo := startDuel(t, e, 1, 2)

	// 双方轮流打出第一张牌直到终局；手牌有限，必然终止
	for i := 0; i < testConfig().Business.HandSize; i++ {
		view, err := e.PlayCard(ctx, 1, matchNo, 0)
		if errors.Is(err, ErrMatchNotFound) {
			break
		}
		require.NoError(t, err)
		if view.State != model.MatchStateActive {
			break
		}

		view, err = e.PlayCard(ctx, 2, matchNo, 0)
		require.NoError(t, err)
		if view.State != model.MatchStateActive {
			break
		}
	}

	// 一局只结一次，结完内存态清空
	assert.Equal(t, 1, escrow.settleCount(matchNo))
	assert.Nil(t, e.registry.Get(matchNo))
	assert.Empty(t, e.registry.FindByUser(1))
	assert.Empty(t, e.registry.FindByUser(2))

	if winner, ok := escrow.finished[matchNo]; ok {
		assert.Contains(t, []int64{1, 2}, winner)
	}
}

func TestPlayCardValidation(t *testing.T) {
	e := newTestEngine(newFakeEscrow())
	ctx := context.Background()
	matchNo := startDuel(t, e, 1, 2)

	_, err := e.PlayCard(ctx, 3, matchNo, 0)
	assert.ErrorIs(t, err, ErrNotInMatch)

	_, err = e.PlayCard(ctx, 1, matchNo, 5)
	assert.ErrorIs(t, err, ErrBadCardIndex)

	_, err = e.PlayCard(ctx, 1, matchNo, -1)
	assert.ErrorIs(t, err, ErrBadCardIndex)

	_, err = e.PlayCard(ctx, 1, "MCH_NO_SUCH", 0)
	assert.ErrorIs(t, err, ErrMatchNotFound)

	// 一轮只能出一张
	_, err = e.PlayCard(ctx, 1, matchNo, 0)
	require.NoError(t, err)
	_, err = e.PlayCard(ctx, 1, matchNo, 0)
	assert.ErrorIs(t, err, ErrAlreadyActed)
}

func TestSurrender(t *testing.T) {
	escrow := newFakeEscrow()
	e := newTestEngine(escrow)
	ctx := context.Background()
	matchNo := startDuel(t, e, 1, 2)

	view, err := e.Surrender(ctx, 1, matchNo)
	require.NoError(t, err)
	assert.Equal(t, model.MatchStateFinished, view.State)

	// 投降方判负，对手按正常胜局结算
	assert.Equal(t, int64(2), escrow.finished[matchNo])
	assert.Equal(t, 1, escrow.settleCount(matchNo))
	assert.Nil(t, e.registry.Get(matchNo))

	_, err = e.Surrender(ctx, 2, matchNo)
	assert.ErrorIs(t, err, ErrMatchNotFound)
}

// ============================================================
// 技能
// ============================================================

func TestUseBoost(t *testing.T) {
	escrow := newFakeEscrow()
	e := newTestEngine(escrow)
	ctx := context.Background()
	matchNo := startDuel(t, e, 1, 2)

	view, err := e.UseBoost(ctx, 1, matchNo)
	require.NoError(t, err)
	assert.False(t, view.BoostAvailable)
	assert.Equal(t, []int64{10}, escrow.debits)

	// 一局一次
	_, err = e.UseBoost(ctx, 1, matchNo)
	assert.ErrorIs(t, err, ErrAbilityUsed)
	assert.Len(t, escrow.debits, 1)
}

func TestUseBoostDebitFailureRestoresAbility(t *testing.T) {
	escrow := newFakeEscrow()
	escrow.failAbility = true
	e := newTestEngine(escrow)
	ctx := context.Background()
	matchNo := startDuel(t, e, 1, 2)

	_, err := e.UseBoost(ctx, 1, matchNo)
	require.Error(t, err)

	// 扣费失败要把一次性名额还回来
	escrow.failAbility = false
	view, err := e.UseBoost(ctx, 1, matchNo)
	require.NoError(t, err)
	assert.False(t, view.BoostAvailable)
}

func TestBoostAppliesToNextCard(t *testing.T) {
	e := newTestEngine(newFakeEscrow())
	ctx := context.Background()
	matchNo := startDuel(t, e, 1, 2)

	_, err := e.UseBoost(ctx, 1, matchNo)
	require.NoError(t, err)

	ms := e.registry.Get(matchNo)
	ms.mu.Lock()
	base := ms.Players[0].Hand[0]
	ms.mu.Unlock()

	_, err = e.PlayCard(ctx, 1, matchNo, 0)
	require.NoError(t, err)

	ms.mu.Lock()
	defer ms.mu.Unlock()
	assert.Equal(t, base+3, ms.Players[0].PlayedCard)
	assert.True(t, ms.Players[0].Boosted)
	assert.False(t, ms.Players[0].BoostArmed)
}

func TestUseReroll(t *testing.T) {
	escrow := newFakeEscrow()
	e := newTestEngine(escrow)
	ctx := context.Background()
	matchNo := startDuel(t, e, 1, 2)

	// 先打出一张，换牌只重发剩余手牌
	_, err := e.PlayCard(ctx, 1, matchNo, 0)
	require.NoError(t, err)
	_, err = e.PlayCard(ctx, 2, matchNo, 0)
	require.NoError(t, err)

	view, err := e.UseReroll(ctx, 1, matchNo)
	require.NoError(t, err)
	assert.Len(t, view.Hand, 4)
	assert.False(t, view.RerollAvailable)
	assert.Equal(t, []int64{15}, escrow.debits)

	_, err = e.UseReroll(ctx, 1, matchNo)
	assert.ErrorIs(t, err, ErrAbilityUsed)
}

func TestAbilityNotAllowedAfterPlaying(t *testing.T) {
	e := newTestEngine(newFakeEscrow())
	ctx := context.Background()
	matchNo := startDuel(t, e, 1, 2)

	_, err := e.PlayCard(ctx, 1, matchNo, 0)
	require.NoError(t, err)

	// 本轮已出牌，技能要等下一轮
	_, err = e.UseBoost(ctx, 1, matchNo)
	assert.ErrorIs(t, err, ErrAlreadyActed)
	_, err = e.UseReroll(ctx, 1, matchNo)
	assert.ErrorIs(t, err, ErrAlreadyActed)
}

// ============================================================
// 计时对决
// ============================================================

func startTimer(t *testing.T, e *Engine, u1, u2 int64) string {
	t.Helper()
	ctx := context.Background()

	result, err := e.RequestMatch(ctx, u1, model.MatchKindTimer, 50)
	require.NoError(t, err)
	require.Equal(t, MatchmakingSearching, result.Status)

	result, err = e.RequestMatch(ctx, u2, model.MatchKindTimer, 50)
	require.NoError(t, err)
	require.Equal(t, MatchmakingMatched, result.Status)
	return result.Match.MatchNo
}

func TestTimerBothClickEarly(t *testing.T) {
	escrow := newFakeEscrow()
	e := newTestEngine(escrow)
	ctx := context.Background()
	matchNo := startTimer(t, e, 1, 2)

	view, err := e.Click(ctx, 1, matchNo)
	require.NoError(t, err)
	assert.Equal(t, model.MatchStateActive, view.State)
	assert.True(t, view.Clicked)

	// 双方都提交后立刻判定：都没超过停止点，后点的更接近停止点
	view, err = e.Click(ctx, 2, matchNo)
	require.NoError(t, err)
	assert.Equal(t, model.MatchStateFinished, view.State)
	assert.Equal(t, int64(2), escrow.finished[matchNo])
	assert.Nil(t, e.registry.Get(matchNo))
}

func TestTimerDoubleClick(t *testing.T) {
	e := newTestEngine(newFakeEscrow())
	ctx := context.Background()
	matchNo := startTimer(t, e, 1, 2)

	_, err := e.Click(ctx, 1, matchNo)
	require.NoError(t, err)
	_, err = e.Click(ctx, 1, matchNo)
	assert.ErrorIs(t, err, ErrAlreadyActed)
}

func TestTimerResolveAtDeadline(t *testing.T) {
	tests := []struct {
		name       string
		clickA     time.Duration // 相对停止点的点击偏移，0 表示没点
		clickB     time.Duration
		clickedA   bool
		clickedB   bool
		wantState  string
		wantWinner int64
	}{
		{name: "只有一方在停止点前点击", clickedA: true, clickA: -time.Second, wantState: model.MatchStateFinished, wantWinner: 1},
		{name: "双方有效后点者胜", clickedA: true, clickA: -2 * time.Second, clickedB: true, clickB: -time.Second, wantState: model.MatchStateFinished, wantWinner: 2},
		{name: "超过停止点的点击无效", clickedA: true, clickA: time.Second, clickedB: true, clickB: -time.Second, wantState: model.MatchStateFinished, wantWinner: 2},
		{name: "双方都没点为平局", wantState: model.MatchStateDraw},
		{name: "双方都超时为平局", clickedA: true, clickA: time.Second, clickedB: true, clickB: 2 * time.Second, wantState: model.MatchStateDraw},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEngine(newFakeEscrow())
			ms := e.newMatchState("m1", model.MatchKindTimer, 50, 1, 2)
			stopAt := time.Now()
			ms.StopAt = stopAt
			if tt.clickedA {
				ms.Players[0].Clicked = true
				ms.Players[0].ClickedAt = stopAt.Add(tt.clickA)
			}
			if tt.clickedB {
				ms.Players[1].Clicked = true
				ms.Players[1].ClickedAt = stopAt.Add(tt.clickB)
			}

			st := e.resolveTimerLocked(ms)

			require.NotNil(t, st)
			assert.Equal(t, tt.wantState, st.state)
			if tt.wantWinner != 0 {
				assert.Equal(t, tt.wantWinner, st.winner)
			}
		})
	}
}

func TestTimerActionsRejectDuelOps(t *testing.T) {
	e := newTestEngine(newFakeEscrow())
	ctx := context.Background()
	matchNo := startTimer(t, e, 1, 2)

	_, err := e.PlayCard(ctx, 1, matchNo, 0)
	assert.ErrorIs(t, err, ErrWrongKind)
	_, err = e.UseBoost(ctx, 1, matchNo)
	assert.ErrorIs(t, err, ErrWrongKind)

	duelNo := startDuel(t, e, 3, 4)
	_, err = e.Click(ctx, 3, duelNo)
	assert.ErrorIs(t, err, ErrWrongKind)
}

// ============================================================
// 中断
// ============================================================

func TestInterruptWithLeaver(t *testing.T) {
	escrow := newFakeEscrow()
	e := newTestEngine(escrow)
	matchNo := startDuel(t, e, 1, 2)

	err := e.Interrupt(context.Background(), matchNo, 1)
	require.NoError(t, err)

	// 弃局方押注没收，只退对手
	assert.Equal(t, []int64{2}, escrow.interrupted[matchNo])
	assert.Nil(t, e.registry.Get(matchNo))
}

func TestInterruptWithoutLeaver(t *testing.T) {
	escrow := newFakeEscrow()
	e := newTestEngine(escrow)
	matchNo := startDuel(t, e, 1, 2)

	err := e.Interrupt(context.Background(), matchNo, 0)
	require.NoError(t, err)

	assert.ElementsMatch(t, []int64{1, 2}, escrow.interrupted[matchNo])
}

func TestInterruptStale(t *testing.T) {
	escrow := newFakeEscrow()
	e := newTestEngine(escrow)
	matchNo := startDuel(t, e, 1, 2)

	// 阈值为正时刚建的对局不算卡死
	n := e.InterruptStale(context.Background(), time.Minute)
	assert.Zero(t, n)
	assert.NotNil(t, e.registry.Get(matchNo))

	// 负阈值把判死线推到未来，任何对局都算卡死
	n = e.InterruptStale(context.Background(), -time.Second)
	assert.Equal(t, 1, n)
	assert.ElementsMatch(t, []int64{1, 2}, escrow.interrupted[matchNo])
	assert.Nil(t, e.registry.Get(matchNo))
}

func TestStateRequiresParticipant(t *testing.T) {
	e := newTestEngine(newFakeEscrow())
	matchNo := startDuel(t, e, 1, 2)

	_, err := e.State(3, matchNo)
	assert.ErrorIs(t, err, ErrNotInMatch)

	view, err := e.State(1, matchNo)
	require.NoError(t, err)
	assert.Equal(t, int64(2), view.OpponentID)
}
