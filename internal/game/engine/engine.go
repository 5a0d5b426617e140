package engine

import (
	"encoding/json"
	"fmt"
	"html"
	"math"
	"strings"
	"time"

	"HandClash/internal/game/combo"
	"HandClash/internal/game/player"
	"HandClash/internal/game/room"
	"HandClash/internal/websocket"
)

const (
	// 回合超时固定 40 秒，超时视同玩家主动结束回合
	turnTimeout = 40 * time.Second
	// TNT 基础伤害
	tntDamage = 1.5
	// 聊天消息上限（净化后）
	maxChatLen = 200
)

// 一次性技能标识
const (
	SkillSword    = "attack_sword"
	SkillBow      = "attack_bow"
	SkillCrossbow = "attack_crossbow"
)

// ---------------------
//   ACTION DEFINITION
// ---------------------

type ActionKind int

const (
	ActionJoin ActionKind = iota
	ActionChat
	ActionPlayer
	ActionDisconnect
	actionTimeout
)

// Action 是进入房间单线程处理循环的统一入口。玩家意图、聊天、
// 掉线、回合超时一视同仁，排队逐个处理完毕，互不交错。
type Action struct {
	Kind     ActionKind
	ConnID   string
	Username string

	// join
	PlayerName string
	Password   string

	// player intent: addNumber / resolveTnt / useAction / endTurn
	Game    string
	Payload json.RawMessage

	// chat
	Text string

	// timeout：epoch 对不上说明回合早已前进，直接丢弃
	Epoch int
}

type addNumberPayload struct {
	AttackerHandIndex int `json:"attackerHandIndex"`
	TargetPlayerID    int `json:"targetPlayerId"`
	TargetHandIndex   int `json:"targetHandIndex"`
}

type resolveTntPayload struct {
	TargetID int `json:"targetId"`
}

type useActionPayload struct {
	Type     string `json:"type"`
	Action   string `json:"action"`
	TargetID *int   `json:"targetId"`
}

// SeatResult / GameResult 交给 Manager 做战绩与善后，
// 避免 Manager 反过来持房间锁。
type SeatResult struct {
	Username string
	ConnID   string
	Won      bool
}

type GameResult struct {
	RoomID string
	Winner string
	Seats  []SeatResult
	// Tally=false 表示不记战绩（僵局）
	Tally bool
	// 掉线触发的终局不给掉线者记战绩
	ExcludeUsername string
}

// ---------------------
//       ENGINE
// ---------------------

// Engine 是单个房间的规则裁判：两阶段回合协议（碰手 → 行动）、
// 组合技判定与失效、TNT、回合超时和终局判定都在这里收口。
type Engine struct {
	Room *room.Room
	Hub  websocket.HubInterface

	actionChan chan Action
	quit       chan struct{}

	turnTimer *time.Timer
	turnEpoch int

	// Manager 在创建时装配
	OnGameOver     func(GameResult)
	OnLobbyChanged func()
}

func NewEngine(r *room.Room, hub websocket.HubInterface) *Engine {
	return &Engine{
		Room:       r,
		Hub:        hub,
		actionChan: make(chan Action, 32), // 防止死锁
		quit:       make(chan struct{}),
	}
}

// Run 启动房间的单线程处理循环（Manager 以 goroutine 调用）。
func (e *Engine) Run() {
	for {
		select {
		case a := <-e.actionChan:
			e.handle(a)
		case <-e.quit:
			return
		}
	}
}

// Enqueue 玩家动作入口（Manager / 定时器调用）。
func (e *Engine) Enqueue(a Action) {
	select {
	case e.actionChan <- a:
	case <-e.quit:
	}
}

func (e *Engine) Stop() {
	close(e.quit)
}

// handle 串行处理一个动作。Mu 只为跨房间的只读访问（大厅、快照）
// 而存在，互斥本身由单 goroutine 保证。大厅回调要读房间状态，
// 必须放到锁外再触发。
func (e *Engine) handle(a Action) {
	lobbyChanged := false

	e.Room.Mu.Lock()
	switch a.Kind {
	case ActionJoin:
		lobbyChanged = e.handleJoin(a)
	case ActionChat:
		e.handleChat(a)
	case ActionPlayer:
		e.handlePlayerAction(a)
	case ActionDisconnect:
		lobbyChanged = e.handleDisconnect(a)
	case actionTimeout:
		e.handleTimeout(a)
	}
	e.Room.Mu.Unlock()

	if lobbyChanged && e.OnLobbyChanged != nil {
		e.OnLobbyChanged()
	}
}

// ---------------------
//    ROOM LIFECYCLE
// ---------------------

func (e *Engine) handleJoin(a Action) bool {
	r := e.Room
	if len(r.Players) >= r.MaxPlayers {
		e.sendError(a.ConnID, "房间已满！")
		return false
	}
	if r.Phase != room.PhaseWaiting {
		e.sendError(a.ConnID, "游戏已经开始，无法加入！")
		return false
	}
	if r.Password != "" && r.Password != a.Password {
		e.sendError(a.ConnID, "房间密码错误！")
		return false
	}

	p := player.New(a.PlayerName, len(r.Players), a.ConnID, a.Username, r.InitialHealth, r.InitialHands)
	r.Players = append(r.Players, p)
	r.AppendLog(fmt.Sprintf("[系统] 玩家 %s 加入了房间！", p.Name))

	e.Hub.SendToConn(a.ConnID, websocket.OutgoingMessage{
		Event: "roomJoined",
		Data: map[string]any{
			"roomId":     r.ID,
			"gameState":  r.TakeSnapshot(),
			"myPlayerId": p.ID,
		},
	})

	if len(r.Players) == r.MaxPlayers {
		// 人齐开局：currentPlayerIndex 置 -1，首位玩家交给 advance
		// 选出，开局无人可动的配置和中盘死回合走同一条僵局判定
		r.Phase = room.PhaseAddNumber
		r.CurrentPlayerIndex = -1
		r.AppendLog("[系统] 所有玩家已到齐，游戏开始！")
		e.advance()
	} else {
		e.broadcastState()
	}
	return true
}

func (e *Engine) handleDisconnect(a Action) bool {
	r := e.Room
	p := r.PlayerByConn(a.ConnID)
	if p == nil {
		return false
	}
	p.ConnID = ""

	if p.Alive {
		p.Alive = false
		r.AppendLog(fmt.Sprintf("[系统] 玩家 %s 掉线了！", p.Name))
	}

	// 先判终局再考虑强制换人：只剩一人时再 advance 只会绕进僵局分支
	if r.Phase != room.PhaseWaiting && !r.GameOver {
		if alive := r.AlivePlayers(); len(alive) <= 1 {
			e.stopTurnTimer()
			r.GameOver = true
			if len(alive) == 1 {
				r.Winner = alive[0].Name
			} else {
				r.Winner = "平局"
			}
			r.AppendLog(fmt.Sprintf("[系统] 游戏因玩家掉线而结束！胜利者是 %s！", r.Winner))
			e.fireGameOver(true, a.Username)
		} else if r.CurrentPlayerIndex == p.ID {
			r.AppendLog("[系统] 因当前回合玩家掉线，回合被强制结束。")
			e.advance()
		}
	}

	e.broadcastState()
	return true
}

// ---------------------
//        CHAT
// ---------------------

// handleChat 只追加日志行，不参与回合状态机。死人也能说话，
// 但名字带上幽灵后缀。
func (e *Engine) handleChat(a Action) {
	r := e.Room
	p := r.PlayerByConn(a.ConnID)
	if p == nil {
		return
	}

	sanitized := html.EscapeString(a.Text)
	if strings.TrimSpace(sanitized) == "" || len(sanitized) > maxChatLen {
		return
	}

	displayName := p.Name
	if !p.Alive {
		displayName = p.Name + " (幽灵)"
	}
	r.AppendLog(fmt.Sprintf("%s: %s", displayName, sanitized))
	e.broadcastState()
}

// ---------------------
//    ACTION RESOLVER
// ---------------------

func (e *Engine) handlePlayerAction(a Action) {
	r := e.Room
	if r.GameOver {
		return
	}
	cur := r.CurrentPlayer()
	// 回合归属不对就静默丢弃：迟到的客户端和刚刚前进的回合
	// 之间的竞争是常态，不该当成错误暴露
	if cur == nil || cur.ConnID == "" || cur.ConnID != a.ConnID {
		return
	}

	switch a.Game {
	case "addNumber":
		if r.Phase != room.PhaseAddNumber {
			return
		}
		var p addNumberPayload
		if err := json.Unmarshal(a.Payload, &p); err != nil {
			return
		}
		if e.resolveAddNumber(cur, p) {
			return // 回合已被没收，advance 自己广播过了
		}

	case "resolveTnt":
		if r.Phase != room.PhaseResolveTntTarget {
			return
		}
		var p resolveTntPayload
		if err := json.Unmarshal(a.Payload, &p); err != nil {
			return
		}
		if !e.resolveTnt(cur, p) {
			return
		}

	case "useAction":
		if r.Phase != room.PhaseAction {
			return
		}
		var p useActionPayload
		if err := json.Unmarshal(a.Payload, &p); err != nil {
			return
		}
		if !e.resolveUseAction(cur, p) {
			return
		}

	case "endTurn":
		e.stopTurnTimer()
		r.OneTimeActions = nil
		e.advance()
		return // advance 负责广播，后续终局检查不再执行

	default:
		return
	}

	// 除 endTurn 外，每个被接受的动作之后都做一次终局检查
	e.checkGameOver()
	e.broadcastState()
}

// resolveAddNumber 碰手：攻击方选中的手与目标的手相加取模 10。
// 返回 true 表示回合已结束（非法目标被当作弃权处理）。
func (e *Engine) resolveAddNumber(cur *player.Player, p addNumberPayload) bool {
	r := e.Room
	e.stopTurnTimer()

	if p.AttackerHandIndex < 0 || p.AttackerHandIndex > 1 ||
		p.TargetHandIndex < 0 || p.TargetHandIndex > 1 {
		e.advance()
		return true
	}
	target := r.PlayerByID(p.TargetPlayerID)
	// 无效提交没收回合：打空等于浪费
	if target == nil || !target.Alive || target.Hands[p.TargetHandIndex] == 0 {
		e.advance()
		return true
	}

	sum := cur.Hands[p.AttackerHandIndex] + target.Hands[p.TargetHandIndex]
	newValue := sum % 10
	cur.Hands[p.AttackerHandIndex] = newValue
	r.AppendLog(fmt.Sprintf("[系统] %s 的手碰了 %s 的手，变成了 [%d]", cur.Name, target.Name, newValue))
	e.logBrokenCombos(cur)
	r.OneTimeActions = nil

	if sum > 0 && sum%10 == 0 {
		r.AppendLog(fmt.Sprintf("[系统] 和为 %d，触发TNT！", sum))
		others := otherAlive(r, cur)
		if len(others) == 1 {
			// 只有一个目标就没有选择的余地，直接结算
			others[0].TakeDamage(tntDamage)
			r.Phase = room.PhaseAction
		} else {
			r.Phase = room.PhaseResolveTntTarget
			r.PossibleActions = nil
		}
	} else {
		if newValue == 9 {
			cur.Heal(1)
			r.AppendLog(fmt.Sprintf("[系统] %s 触发了药水，回复1血！", cur.Name))
		} else if newValue == 5 {
			r.OneTimeActions = append(r.OneTimeActions, room.OneTimeAction{Type: "skill", Action: SkillSword})
		}
		hasArrows := cur.HasDigit(3) || cur.HasDigit(6)
		if cur.HasDigit(7) && hasArrows && !e.hasOneTime(SkillBow) {
			r.OneTimeActions = append(r.OneTimeActions, room.OneTimeAction{Type: "skill", Action: SkillBow})
		}
		if cur.HasDigit(8) && hasArrows && !e.hasOneTime(SkillCrossbow) {
			r.OneTimeActions = append(r.OneTimeActions, room.OneTimeAction{Type: "skill", Action: SkillCrossbow})
		}
		r.Phase = room.PhaseAction
	}

	if r.Phase == room.PhaseAction {
		e.recomputePossibleActions(cur)
	}
	return false
}

// resolveTnt 处理目标选择阶段。力量药水在此路径消耗并翻倍。
func (e *Engine) resolveTnt(cur *player.Player, p resolveTntPayload) bool {
	r := e.Room
	target := r.PlayerByID(p.TargetID)
	if target == nil || !target.Alive {
		return false
	}
	e.stopTurnTimer()

	damage := tntDamage
	if cur.StrengthPotion {
		damage *= 2
		cur.StrengthPotion = false
	}
	target.TakeDamage(damage)
	r.Phase = room.PhaseAction
	e.recomputePossibleActions(cur)
	return true
}

// resolveUseAction 技能/组合技。回合不自动结束：一个行动阶段内
// 可以连续使用，直到玩家自己 endTurn。
func (e *Engine) resolveUseAction(cur *player.Player, p useActionPayload) bool {
	switch p.Type {
	case "skill":
		return e.useSkill(cur, p)
	case "combo":
		return e.useCombo(cur, p)
	}
	return false
}

func (e *Engine) useSkill(cur *player.Player, p useActionPayload) bool {
	r := e.Room
	// 只接受当前真实提供的一次性技能，不信任客户端
	if !e.hasOneTime(p.Action) {
		return false
	}
	var target *player.Player
	if p.TargetID != nil {
		target = r.PlayerByID(*p.TargetID)
	}
	if target == nil {
		return false
	}
	e.stopTurnTimer()
	e.removeOneTime(p.Action)

	var damage float64
	var actionText string
	switch p.Action {
	case SkillBow:
		damage = 1
		actionText = "用弓射出了一箭"
		e.resetArrowHand(cur)
	case SkillCrossbow:
		damage = 1
		if cur.HasDigit(6) {
			damage = 2
		}
		actionText = fmt.Sprintf("用弩射出了%d支箭", int(damage))
		e.resetArrowHand(cur)
	case SkillSword:
		damage = 0.5 + float64(cur.SwordLevel-1)*0.5
		actionText = fmt.Sprintf("用 %d级 剑砍了一刀", cur.SwordLevel)
	}

	if cur.StrengthPotion {
		damage *= 2
		cur.StrengthPotion = false
	}
	r.AppendLog(fmt.Sprintf("[系统] %s %s", cur.Name, actionText))
	target.TakeDamage(damage)

	e.recomputePossibleActions(cur)
	return true
}

func (e *Engine) useCombo(cur *player.Player, p useActionPayload) bool {
	r := e.Room
	// 图样必须此刻仍然成立且未生效
	offered := false
	for _, id := range combo.Detect(cur) {
		if id == p.Action {
			offered = true
			break
		}
	}
	if !offered {
		return false
	}

	var target *player.Player
	if p.TargetID != nil {
		target = r.PlayerByID(*p.TargetID)
	}
	switch p.Action {
	case combo.LifeLink, combo.Reset:
		if target == nil || !target.Alive {
			return false
		}
	case combo.Resurrect:
		if target == nil || target.Alive {
			return false
		}
	}
	e.stopTurnTimer()
	cur.UsedCombos[p.Action] = struct{}{}

	switch p.Action {
	case combo.Forge:
		cur.SwordLevel++
		r.AppendLog(fmt.Sprintf("[系统] %s 使用了锻造，剑升到了 %d 级！", cur.Name, cur.SwordLevel))
	case combo.Strength:
		cur.StrengthPotion = true
		r.AppendLog(fmt.Sprintf("[系统] %s 激活了力量药水！", cur.Name))
	case combo.Heal:
		cur.Heal(2)
		r.AppendLog(fmt.Sprintf("[系统] %s 回复了2点生命！", cur.Name))
	case combo.ExtraTurn:
		r.ExtraTurn = true
		r.AppendLog(fmt.Sprintf("[系统] %s 获得了额外回合！", cur.Name))
	case combo.LifeLink:
		total := cur.Health + target.Health
		cur.Health = math.Floor(total / 2)
		target.Health = math.Ceil(total / 2)
		r.AppendLog(fmt.Sprintf("[系统] %s 与 %s 平均了血量！", cur.Name, target.Name))
	case combo.Reset:
		handToReset := 0
		if target.Hands[1] > target.Hands[0] {
			handToReset = 1
		}
		target.Hands[handToReset] = 1
		r.AppendLog(fmt.Sprintf("[系统] %s 重置了 %s 的一只手！", cur.Name, target.Name))
		e.logBrokenCombos(target)
	case combo.Resurrect:
		target.Alive = true
		target.Health = math.Ceil(target.MaxHealth / 2)
		r.AppendLog(fmt.Sprintf("[系统] 神迹发生！%s 使用复活将 %s 带回了战场！", cur.Name, target.Name))
	}

	e.recomputePossibleActions(cur)
	return true
}

// resetArrowHand 弓/弩消耗箭：持 3 的手优先归 1，否则持 6 的手。
func (e *Engine) resetArrowHand(p *player.Player) {
	idx := p.HandIndexOf(3)
	if idx == -1 {
		idx = p.HandIndexOf(6)
	}
	if idx == -1 {
		return
	}
	p.Hands[idx] = 1
	e.logBrokenCombos(p)
}

// logBrokenCombos 手牌变化后跑破坏检测并逐条记日志。
func (e *Engine) logBrokenCombos(p *player.Player) {
	for _, id := range combo.ResetBroken(p) {
		e.Room.AppendLog(fmt.Sprintf("[系统] %s 的组合技 [%s] 已被破坏，可以重新凑出。", p.Name, combo.Category(id)))
	}
}

func (e *Engine) recomputePossibleActions(cur *player.Player) {
	e.Room.PossibleActions = &room.PossibleActions{
		OneTime: e.Room.OneTimeActions,
		Combos:  combo.Detect(cur),
	}
}

func (e *Engine) hasOneTime(action string) bool {
	for _, a := range e.Room.OneTimeActions {
		if a.Action == action {
			return true
		}
	}
	return false
}

func (e *Engine) removeOneTime(action string) {
	kept := e.Room.OneTimeActions[:0]
	for _, a := range e.Room.OneTimeActions {
		if a.Action != action {
			kept = append(kept, a)
		}
	}
	e.Room.OneTimeActions = kept
}

func otherAlive(r *room.Room, cur *player.Player) []*player.Player {
	var out []*player.Player
	for _, p := range r.Players {
		if p.Alive && p.ID != cur.ID {
			out = append(out, p)
		}
	}
	return out
}

// ---------------------
//    TURN SCHEDULER
// ---------------------

// advance 推进回合指针：额外回合原地重来，否则跳过死人找下一个
// 有合法目标的座位；绕满一圈没人能动就是僵局，终局不再重试。
func (e *Engine) advance() {
	r := e.Room
	e.stopTurnTimer()
	if r.GameOver {
		return
	}

	found := false
	for attempts := 0; attempts < len(r.Players) && !found; attempts++ {
		if r.ExtraTurn {
			r.ExtraTurn = false
			r.AppendLog(fmt.Sprintf("[系统] %s 开始了他的额外回合！", r.Players[r.CurrentPlayerIndex].Name))
		} else {
			moved := false
			for i := 0; i < len(r.Players); i++ {
				r.CurrentPlayerIndex = (r.CurrentPlayerIndex + 1) % len(r.Players)
				if r.Players[r.CurrentPlayerIndex].Alive {
					moved = true
					break
				}
			}
			if !moved {
				break // 没有存活座位
			}
		}

		next := r.Players[r.CurrentPlayerIndex]
		if r.HasValidTargets(next) {
			found = true
			r.Phase = room.PhaseAddNumber
			r.PossibleActions = nil
		} else {
			r.AppendLog(fmt.Sprintf("[系统] 玩家 %s 没有任何有效的操作目标，回合被自动跳过！", next.Name))
		}
	}

	if !found {
		r.GameOver = true
		r.Winner = "平局 (僵持)"
		r.AppendLog("[系统] 所有存活玩家都无法行动，游戏陷入僵局！")
		e.fireGameOver(false, "")
		e.broadcastState()
		return
	}

	r.StampTurnStart(time.Now())
	e.armTurnTimer()
	e.broadcastState()
}

// armTurnTimer 开一个新的 40 秒回合倒计时。epoch 随定时器一起
// 递增，旧定时器即使已经触发入队也会因 epoch 不符被丢弃——
// 这是系统里唯一需要防守的竞态。
func (e *Engine) armTurnTimer() {
	e.turnEpoch++
	epoch := e.turnEpoch
	e.turnTimer = time.AfterFunc(turnTimeout, func() {
		e.Enqueue(Action{Kind: actionTimeout, Epoch: epoch})
	})
}

func (e *Engine) stopTurnTimer() {
	e.turnEpoch++
	if e.turnTimer != nil {
		e.turnTimer.Stop()
		e.turnTimer = nil
	}
}

// handleTimeout 定时器触发走的路径和玩家手动 endTurn 完全一致。
func (e *Engine) handleTimeout(a Action) {
	r := e.Room
	if a.Epoch != e.turnEpoch || r.GameOver {
		return
	}
	cur := r.CurrentPlayer()
	if cur == nil {
		return
	}
	r.AppendLog(fmt.Sprintf("[系统] 玩家 %s 操作超时，回合自动结束！", cur.Name))
	r.OneTimeActions = nil
	e.advance()
}

// ---------------------
//      GAME OVER
// ---------------------

// checkGameOver 存活 ≤1 即终局。胜者姓名或"没有胜利者"。
func (e *Engine) checkGameOver() bool {
	r := e.Room
	alive := r.AlivePlayers()
	if len(alive) > 1 {
		return false
	}
	e.stopTurnTimer()
	r.GameOver = true
	if len(alive) == 1 {
		r.Winner = alive[0].Name
	} else {
		r.Winner = "没有胜利者"
	}
	r.AppendLog(fmt.Sprintf("[系统] 游戏结束！胜利者是 %s！", r.Winner))
	e.fireGameOver(true, "")
	return true
}

// fireGameOver 把终局结果交给 Manager：战绩、排行榜、延迟拆房。
func (e *Engine) fireGameOver(tally bool, excludeUsername string) {
	if e.OnGameOver == nil {
		return
	}
	r := e.Room
	var winnerUsername string
	if alive := r.AlivePlayers(); len(alive) == 1 {
		winnerUsername = alive[0].Username
	}
	res := GameResult{
		RoomID:          r.ID,
		Winner:          r.Winner,
		Tally:           tally,
		ExcludeUsername: excludeUsername,
	}
	for _, p := range r.Players {
		res.Seats = append(res.Seats, SeatResult{
			Username: p.Username,
			ConnID:   p.ConnID,
			Won:      winnerUsername != "" && p.Username == winnerUsername,
		})
	}
	e.OnGameOver(res)
}

// ---------------------
//      BROADCAST
// ---------------------

// broadcastState 每次状态变化都把完整快照推给房间内全体成员。
func (e *Engine) broadcastState() {
	r := e.Room
	e.Hub.BroadcastToConns(r.ConnIDs(), websocket.OutgoingMessage{
		Event: "updateState",
		Data:  r.TakeSnapshot(),
	})
}

func (e *Engine) sendError(connID, reason string) {
	e.Hub.SendToConn(connID, websocket.OutgoingMessage{
		Event: "errorMsg",
		Data:  reason,
	})
}
