package game

import (
	"context"
	"errors"
	"log"
	"math/rand"
	"time"

	"coinduel/internal/config"
	"coinduel/internal/model"
	"coinduel/pkg/idgen"
)

var (
	ErrAlreadyInMatch = errors.New("已有进行中的对局")
	ErrMatchNotFound  = errors.New("对局不存在或已结束")
	ErrNotInMatch     = errors.New("不是该对局的玩家")
	ErrAlreadyActed   = errors.New("本轮已行动过")
	ErrAbilityUsed    = errors.New("技能本局已使用过")
	ErrBadCardIndex   = errors.New("出牌序号不合法")
	ErrWrongKind      = errors.New("该玩法不支持此操作")
	ErrRematchNeeded  = errors.New("配对失败，请重新发起匹配")
)

// Engine 双人对战引擎：匹配、回合推进、终局结算的统一入口
//
// 引擎只管理内存态与规则判定；动钱一律委托给 Escrow，
// 且终局的账务事务在对局锁外发起
type Engine struct {
	cfg      *config.Config
	escrow   Escrow
	registry *Registry
	queue    *Queue
}

func NewEngine(cfg *config.Config, escrow Escrow) *Engine {
	return &Engine{
		cfg:      cfg,
		escrow:   escrow,
		registry: NewRegistry(),
		queue:    NewQueue(),
	}
}

// Registry 暴露给清扫任务做库表兜底时查活跃对局
func (e *Engine) Registry() *Registry {
	return e.registry
}

// ============================================================
// 对外视图
// ============================================================

const (
	MatchmakingSearching = "SEARCHING"
	MatchmakingMatched   = "MATCHED"
)

// MatchmakingResult 匹配请求的结果
type MatchmakingResult struct {
	Status string     `json:"status"`
	Match  *MatchView `json:"match,omitempty"`
}

// MatchView 渲染指令：调用方（机器人前端）据此展示当前局面
// 不泄露对手手牌与计时停止点
type MatchView struct {
	MatchNo         string `json:"match_no"`
	Kind            string `json:"kind"`
	State           string `json:"state"`
	Stake           int64  `json:"stake"`
	Round           int    `json:"round"`
	OpponentID      int64  `json:"opponent_id"`
	Hand            []int  `json:"hand,omitempty"`
	PlayedThisRound bool   `json:"played_this_round"`
	YourWins        int    `json:"your_wins"`
	OpponentWins    int    `json:"opponent_wins"`
	BoostAvailable  bool   `json:"boost_available"`
	RerollAvailable bool   `json:"reroll_available"`
	Clicked         bool   `json:"clicked"`
}

func (e *Engine) viewLocked(ms *MatchState, userID int64) *MatchView {
	p := ms.player(userID)
	opp := ms.opponent(userID)

	view := &MatchView{
		MatchNo:    ms.MatchNo,
		Kind:       ms.Kind,
		State:      ms.State,
		Stake:      ms.Stake,
		Round:      ms.Round,
		OpponentID: opp.UserID,
	}

	switch ms.Kind {
	case model.MatchKindDuel:
		view.Hand = append([]int(nil), p.Hand...)
		view.PlayedThisRound = p.PlayedCard != 0
		view.YourWins = p.RoundWins
		view.OpponentWins = opp.RoundWins
		view.BoostAvailable = !p.BoostUsed
		view.RerollAvailable = !p.RerollUsed
	case model.MatchKindTimer:
		view.Clicked = p.Clicked
	}

	return view
}

// ============================================================
// 匹配
// ============================================================

// RequestMatch 发起匹配
//
// 没人等 -> 登记等待位返回 SEARCHING；
// 有人等 -> 先在注册表里为双方原子占位，再在一个账务事务里托管押注，
// 成功才建局。占位失败说明对方（或自己的另一个等待位）已被别的配对
// 路径抢走；托管失败（排队期间余额变化是正常赛跑）归还占位，
// 两种情况下等待者都已出队，双方都要重新匹配
func (e *Engine) RequestMatch(ctx context.Context, userID int64, kind string, stake int64) (*MatchmakingResult, error) {
	if kind != model.MatchKindDuel && kind != model.MatchKindTimer {
		return nil, errors.New("未知的对战玩法")
	}
	if stake <= 0 {
		return nil, errors.New("押注金额必须大于0")
	}
	if e.registry.Busy(userID) {
		return nil, ErrAlreadyInMatch
	}

	opponentID, matched := e.queue.Enqueue(kind, stake, userID)
	if !matched {
		return &MatchmakingResult{Status: MatchmakingSearching}, nil
	}

	if !e.registry.Reserve(opponentID, userID) {
		return nil, ErrRematchNeeded
	}

	matchNo := idgen.GenerateMatchNo()
	if err := e.escrow.HoldStakes(ctx, matchNo, kind, stake, opponentID, userID); err != nil {
		e.registry.Release(opponentID, userID)
		return nil, err
	}

	ms := e.newMatchState(matchNo, kind, stake, opponentID, userID)
	e.registry.Add(ms)
	e.queue.Evict(opponentID)
	e.queue.Evict(userID)

	if kind == model.MatchKindTimer {
		e.scheduleStop(ms)
	}

	log.Printf("[Engine] 对局创建: matchNo=%s, kind=%s, stake=%d, players=%d/%d",
		matchNo, kind, stake, opponentID, userID)

	ms.mu.Lock()
	view := e.viewLocked(ms, userID)
	ms.mu.Unlock()

	return &MatchmakingResult{Status: MatchmakingMatched, Match: view}, nil
}

// CancelSearch 取消匹配；此时尚未托管押注，无需退款
func (e *Engine) CancelSearch(userID int64, kind string, stake int64) bool {
	return e.queue.Cancel(kind, stake, userID)
}

// Searching 用户是否还挂在某个等待位上
// 配对托管失败后等待位已经作废，轮询到 false 即知需要重新发起匹配
func (e *Engine) Searching(userID int64) bool {
	return e.queue.Waiting(userID)
}

func (e *Engine) newMatchState(matchNo, kind string, stake int64, userID1, userID2 int64) *MatchState {
	now := time.Now()
	ms := &MatchState{
		MatchNo:      matchNo,
		Kind:         kind,
		Stake:        stake,
		State:        model.MatchStateActive,
		Round:        1,
		LastProgress: now,
		CreatedAt:    now,
	}
	ms.Players[0] = &PlayerState{UserID: userID1, Role: 1}
	ms.Players[1] = &PlayerState{UserID: userID2, Role: 2}

	biz := &e.cfg.Business
	switch kind {
	case model.MatchKindDuel:
		for _, p := range ms.Players {
			p.Hand = dealHand(biz.HandSize, biz.CardMaxValue)
		}
	case model.MatchKindTimer:
		minD := time.Duration(biz.TimerMinSeconds) * time.Second
		maxD := time.Duration(biz.TimerMaxSeconds) * time.Second
		span := maxD - minD
		if span <= 0 {
			span = time.Second
		}
		// 随机停止点在建局时就定死，对玩家隐藏
		ms.StopAt = now.Add(minD + time.Duration(rand.Int63n(int64(span))))
	}
	return ms
}

// scheduleStop 在停止点之后触发计时对决的服务端判定
func (e *Engine) scheduleStop(ms *MatchState) {
	matchNo := ms.MatchNo
	delay := time.Until(ms.StopAt) + 100*time.Millisecond

	ms.mu.Lock()
	ms.stopTimer = time.AfterFunc(delay, func() {
		e.resolveTimerDeadline(context.Background(), matchNo)
	})
	ms.mu.Unlock()
}

// ============================================================
// 卡牌对决
// ============================================================

// PlayCard 回合内出一张牌；双方都出过后立刻判定本轮
func (e *Engine) PlayCard(ctx context.Context, userID int64, matchNo string, cardIndex int) (*MatchView, error) {
	ms := e.registry.Get(matchNo)
	if ms == nil {
		return nil, ErrMatchNotFound
	}

	ms.mu.Lock()
	if ms.Kind != model.MatchKindDuel {
		ms.mu.Unlock()
		return nil, ErrWrongKind
	}
	if !ms.active() {
		ms.mu.Unlock()
		return nil, ErrMatchNotFound
	}
	p := ms.player(userID)
	if p == nil {
		ms.mu.Unlock()
		return nil, ErrNotInMatch
	}
	if p.PlayedCard != 0 {
		ms.mu.Unlock()
		return nil, ErrAlreadyActed
	}
	if cardIndex < 0 || cardIndex >= len(p.Hand) {
		ms.mu.Unlock()
		return nil, ErrBadCardIndex
	}

	value := p.Hand[cardIndex]
	p.Hand = removeCard(p.Hand, cardIndex)
	if p.BoostArmed {
		value += e.cfg.Business.BoostBonus
		p.BoostArmed = false
		p.Boosted = true
	}
	p.PlayedCard = value
	ms.LastProgress = time.Now()

	var st *settlement
	if ms.Players[0].PlayedCard != 0 && ms.Players[1].PlayedCard != 0 {
		st = e.resolveRoundLocked(ms)
	}
	if st != nil {
		ms.State = st.state
	}
	view := e.viewLocked(ms, userID)
	ms.mu.Unlock()

	if st != nil {
		e.settle(ctx, matchNo, st)
	}
	return view, nil
}

// resolveRoundLocked 判定一个小局
//
// 点数高者胜；平点时只有一方吃了加成则该方胜（加成把平局变成胜局），
// 双方都吃了加成的平点本轮作废。
// 先到阈值者胜出；双方手牌打完仍未到阈值则比小局胜场，持平为平局
func (e *Engine) resolveRoundLocked(ms *MatchState) *settlement {
	a, b := ms.Players[0], ms.Players[1]

	var roundWinner *PlayerState
	switch {
	case a.PlayedCard > b.PlayedCard:
		roundWinner = a
	case b.PlayedCard > a.PlayedCard:
		roundWinner = b
	default:
		if a.Boosted != b.Boosted {
			if a.Boosted {
				roundWinner = a
			} else {
				roundWinner = b
			}
		}
	}
	if roundWinner != nil {
		roundWinner.RoundWins++
	}

	a.PlayedCard, b.PlayedCard = 0, 0
	a.Boosted, b.Boosted = false, false
	ms.Round++

	threshold := e.cfg.Business.RoundWinsToFinish
	switch {
	case a.RoundWins >= threshold:
		return finishedSettlement(a.UserID, b.UserID)
	case b.RoundWins >= threshold:
		return finishedSettlement(b.UserID, a.UserID)
	case len(a.Hand) == 0 && len(b.Hand) == 0:
		// 手牌打完还没到阈值：比小局胜场
		switch {
		case a.RoundWins > b.RoundWins:
			return finishedSettlement(a.UserID, b.UserID)
		case b.RoundWins > a.RoundWins:
			return finishedSettlement(b.UserID, a.UserID)
		default:
			return &settlement{state: model.MatchStateDraw}
		}
	}
	return nil
}

// UseBoost 购买本局一次性的点数加成，下一次出牌生效
//
// 【关键点】扣费发生在对局锁之外，先占住一次性名额再去扣费，
// 扣费失败（余额不足）原样归还名额 —— 并发重复点击不会扣两次钱
func (e *Engine) UseBoost(ctx context.Context, userID int64, matchNo string) (*MatchView, error) {
	return e.useAbility(ctx, userID, matchNo, abilityBoost)
}

// UseReroll 购买本局一次性的换牌：重发当前剩余手牌
func (e *Engine) UseReroll(ctx context.Context, userID int64, matchNo string) (*MatchView, error) {
	return e.useAbility(ctx, userID, matchNo, abilityReroll)
}

const (
	abilityBoost  = "boost"
	abilityReroll = "reroll"
)

func (e *Engine) useAbility(ctx context.Context, userID int64, matchNo, ability string) (*MatchView, error) {
	ms := e.registry.Get(matchNo)
	if ms == nil {
		return nil, ErrMatchNotFound
	}

	var cost int64
	var remark string
	if ability == abilityBoost {
		cost = e.cfg.Business.BoostCost
		remark = "技能-点数加成"
	} else {
		cost = e.cfg.Business.RerollCost
		remark = "技能-重发手牌"
	}

	ms.mu.Lock()
	if ms.Kind != model.MatchKindDuel {
		ms.mu.Unlock()
		return nil, ErrWrongKind
	}
	if !ms.active() {
		ms.mu.Unlock()
		return nil, ErrMatchNotFound
	}
	p := ms.player(userID)
	if p == nil {
		ms.mu.Unlock()
		return nil, ErrNotInMatch
	}
	if p.PlayedCard != 0 {
		ms.mu.Unlock()
		return nil, ErrAlreadyActed
	}
	used := p.BoostUsed
	if ability == abilityReroll {
		used = p.RerollUsed
	}
	if used {
		ms.mu.Unlock()
		return nil, ErrAbilityUsed
	}
	// 先占名额，防止并发双扣费
	if ability == abilityBoost {
		p.BoostUsed = true
	} else {
		p.RerollUsed = true
	}
	ms.mu.Unlock()

	err := e.escrow.DebitAbility(ctx, userID, cost, matchNo, remark)

	ms.mu.Lock()
	defer ms.mu.Unlock()

	if err != nil {
		// 扣费失败，归还一次性名额，对局状态不变
		if ability == abilityBoost {
			p.BoostUsed = false
		} else {
			p.RerollUsed = false
		}
		return nil, err
	}

	if ability == abilityBoost {
		p.BoostArmed = true
	} else {
		p.Hand = dealHand(len(p.Hand), e.cfg.Business.CardMaxValue)
	}
	ms.LastProgress = time.Now()

	return e.viewLocked(ms, userID), nil
}

// ============================================================
// 计时对决
// ============================================================

// Click 提交停止动作，一人一次
// 双方都已提交时不必等到停止点，立刻判定
func (e *Engine) Click(ctx context.Context, userID int64, matchNo string) (*MatchView, error) {
	ms := e.registry.Get(matchNo)
	if ms == nil {
		return nil, ErrMatchNotFound
	}

	ms.mu.Lock()
	if ms.Kind != model.MatchKindTimer {
		ms.mu.Unlock()
		return nil, ErrWrongKind
	}
	if !ms.active() {
		ms.mu.Unlock()
		return nil, ErrMatchNotFound
	}
	p := ms.player(userID)
	if p == nil {
		ms.mu.Unlock()
		return nil, ErrNotInMatch
	}
	if p.Clicked {
		ms.mu.Unlock()
		return nil, ErrAlreadyActed
	}

	p.Clicked = true
	p.ClickedAt = time.Now()
	ms.LastProgress = p.ClickedAt

	var st *settlement
	if ms.Players[0].Clicked && ms.Players[1].Clicked {
		st = e.resolveTimerLocked(ms)
		ms.State = st.state
	}
	view := e.viewLocked(ms, userID)
	ms.mu.Unlock()

	if st != nil {
		e.settle(ctx, matchNo, st)
	}
	return view, nil
}

// resolveTimerDeadline 停止点到达后的服务端判定（AfterFunc 回调）
func (e *Engine) resolveTimerDeadline(ctx context.Context, matchNo string) {
	ms := e.registry.Get(matchNo)
	if ms == nil {
		return
	}

	ms.mu.Lock()
	if !ms.active() {
		ms.mu.Unlock()
		return
	}
	st := e.resolveTimerLocked(ms)
	ms.State = st.state
	ms.mu.Unlock()

	e.settle(ctx, matchNo, st)
}

// resolveTimerLocked 计时判定：不晚于停止点的点击里，最接近停止点者胜
// 没有有效点击、或双方同时有效/同时无效且无法区分时为平局
func (e *Engine) resolveTimerLocked(ms *MatchState) *settlement {
	if ms.stopTimer != nil {
		ms.stopTimer.Stop()
		ms.stopTimer = nil
	}

	a, b := ms.Players[0], ms.Players[1]
	aValid := a.Clicked && !a.ClickedAt.After(ms.StopAt)
	bValid := b.Clicked && !b.ClickedAt.After(ms.StopAt)

	switch {
	case aValid && bValid:
		switch {
		case a.ClickedAt.After(b.ClickedAt):
			return finishedSettlement(a.UserID, b.UserID)
		case b.ClickedAt.After(a.ClickedAt):
			return finishedSettlement(b.UserID, a.UserID)
		default:
			return &settlement{state: model.MatchStateDraw}
		}
	case aValid:
		return finishedSettlement(a.UserID, b.UserID)
	case bValid:
		return finishedSettlement(b.UserID, a.UserID)
	default:
		return &settlement{state: model.MatchStateDraw}
	}
}

// ============================================================
// 投降 / 中断 / 查询
// ============================================================

// Surrender 投降：把对手的小局胜场直接置到阈值，走正常终局路径
// 没有单独的结算代码 —— 无论怎么结束，动钱的路径只有一条
func (e *Engine) Surrender(ctx context.Context, userID int64, matchNo string) (*MatchView, error) {
	ms := e.registry.Get(matchNo)
	if ms == nil {
		return nil, ErrMatchNotFound
	}

	ms.mu.Lock()
	if !ms.active() {
		ms.mu.Unlock()
		return nil, ErrMatchNotFound
	}
	p := ms.player(userID)
	if p == nil {
		ms.mu.Unlock()
		return nil, ErrNotInMatch
	}
	opp := ms.opponent(userID)
	opp.RoundWins = e.cfg.Business.RoundWinsToFinish

	st := finishedSettlement(opp.UserID, p.UserID)
	ms.State = st.state
	if ms.stopTimer != nil {
		ms.stopTimer.Stop()
		ms.stopTimer = nil
	}
	view := e.viewLocked(ms, userID)
	ms.mu.Unlock()

	e.settle(ctx, matchNo, st)
	return view, nil
}

// Interrupt 管理员中断对局
// leaverID 非 0 时视为该玩家弃局：押注没收，只退对手；为 0 时双方都退
func (e *Engine) Interrupt(ctx context.Context, matchNo string, leaverID int64) error {
	ms := e.registry.Get(matchNo)
	if ms == nil {
		return ErrMatchNotFound
	}

	ms.mu.Lock()
	if !ms.active() {
		ms.mu.Unlock()
		return ErrMatchNotFound
	}
	var refunds []int64
	for _, p := range ms.Players {
		if leaverID == 0 || p.UserID != leaverID {
			refunds = append(refunds, p.UserID)
		}
	}
	st := &settlement{state: model.MatchStateInterrupted, refunds: refunds}
	ms.State = st.state
	if ms.stopTimer != nil {
		ms.stopTimer.Stop()
		ms.stopTimer = nil
	}
	ms.mu.Unlock()

	e.settle(ctx, matchNo, st)
	return nil
}

// InterruptStale 清扫卡死的对局：纯超时不罚任何人，双方都退注
func (e *Engine) InterruptStale(ctx context.Context, staleAfter time.Duration) int {
	before := time.Now().Add(-staleAfter)

	interrupted := 0
	for _, ms := range e.registry.StaleCandidates(before) {
		ms.mu.Lock()
		if !ms.active() || !ms.LastProgress.Before(before) {
			ms.mu.Unlock()
			continue
		}
		refunds := []int64{ms.Players[0].UserID, ms.Players[1].UserID}
		st := &settlement{state: model.MatchStateInterrupted, refunds: refunds}
		ms.State = st.state
		if ms.stopTimer != nil {
			ms.stopTimer.Stop()
			ms.stopTimer = nil
		}
		ms.mu.Unlock()

		e.settle(ctx, ms.MatchNo, st)
		interrupted++
	}
	return interrupted
}

// State 查询当前局面
func (e *Engine) State(userID int64, matchNo string) (*MatchView, error) {
	ms := e.registry.Get(matchNo)
	if ms == nil {
		return nil, ErrMatchNotFound
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	if ms.player(userID) == nil {
		return nil, ErrNotInMatch
	}
	return e.viewLocked(ms, userID), nil
}

// ============================================================
// 结算
// ============================================================

// settlement 终局判定结果，拿着它在对局锁外动钱
type settlement struct {
	state   string
	winner  int64
	loser   int64
	refunds []int64
}

func finishedSettlement(winnerID, loserID int64) *settlement {
	return &settlement{state: model.MatchStateFinished, winner: winnerID, loser: loserID}
}

// settle 对局已标记终态并摘出注册表后，发起结算事务
//
// 结算失败时库里的对局行仍是 ACTIVE，清扫任务会按库表兜底双退；
// 内存里它已经终结，不会再被观察成进行中的对局
func (e *Engine) settle(ctx context.Context, matchNo string, st *settlement) {
	e.registry.Remove(matchNo)

	var err error
	switch st.state {
	case model.MatchStateFinished:
		err = e.escrow.SettleFinished(ctx, matchNo, st.winner, st.loser)
	case model.MatchStateDraw:
		err = e.escrow.SettleDraw(ctx, matchNo)
	case model.MatchStateInterrupted:
		err = e.escrow.SettleInterrupted(ctx, matchNo, st.refunds)
	}
	if err != nil {
		log.Printf("[Engine] 对局结算失败: matchNo=%s, state=%s, err=%v", matchNo, st.state, err)
	}
}
