package room

import (
	"sync"
	"time"

	"HandClash/internal/game/player"
)

// 房间阶段。gameOver 是独立布尔量而不是阶段：终局快照仍要带着
// 最后一个阶段供客户端渲染。
const (
	PhaseWaiting          = "waiting"
	PhaseAddNumber        = "addNumber"
	PhaseAction           = "action"
	PhaseResolveTntTarget = "resolveTntTarget"
)

// OneTimeAction 是最近一次碰手产生的一次性技能，用完或回合结束即清空。
type OneTimeAction struct {
	Type   string `json:"type"`
	Action string `json:"action"`
}

// PossibleActions 是行动阶段暴露给客户端的可用操作快照。
type PossibleActions struct {
	OneTime []OneTimeAction `json:"oneTime"`
	Combos  []string        `json:"combos"`
}

// Room 持有一局游戏的全部可变状态。字段的所有权属于该房间的
// engine goroutine；Mu 只用于跨房间的只读访问（大厅列表、快照）。
type Room struct {
	Mu sync.RWMutex

	ID                 string
	Players            []*player.Player
	Phase              string
	CurrentPlayerIndex int
	MaxPlayers         int
	Password           string
	InitialHealth      float64
	InitialHands       [2]int

	OneTimeActions  []OneTimeAction
	PossibleActions *PossibleActions
	ExtraTurn       bool
	TurnStartTime   int64 // 毫秒时间戳，客户端倒计时用
	Log             []string
	GameOver        bool
	Winner          string
}

func New(id string, maxPlayers int, password string, initialHealth float64, initialHands [2]int) *Room {
	return &Room{
		ID:                 id,
		Players:            make([]*player.Player, 0, maxPlayers),
		Phase:              PhaseWaiting,
		CurrentPlayerIndex: -1,
		MaxPlayers:         maxPlayers,
		Password:           password,
		InitialHealth:      initialHealth,
		InitialHands:       initialHands,
		Log:                []string{},
	}
}

// AppendLog 头插一条日志（最新在前），不做淘汰。
func (r *Room) AppendLog(entry string) {
	r.Log = append([]string{entry}, r.Log...)
}

// CurrentPlayer 返回当前回合玩家，回合尚未开始时返回 nil。
func (r *Room) CurrentPlayer() *player.Player {
	if r.CurrentPlayerIndex < 0 || r.CurrentPlayerIndex >= len(r.Players) {
		return nil
	}
	return r.Players[r.CurrentPlayerIndex]
}

// PlayerByID 按座位号查玩家。
func (r *Room) PlayerByID(id int) *player.Player {
	if id < 0 || id >= len(r.Players) {
		return nil
	}
	return r.Players[id]
}

// PlayerByConn 按连接查玩家（掉线、聊天入口用）。
func (r *Room) PlayerByConn(connID string) *player.Player {
	for _, p := range r.Players {
		if p.ConnID == connID {
			return p
		}
	}
	return nil
}

// AlivePlayers 返回存活玩家。
func (r *Room) AlivePlayers() []*player.Player {
	alive := make([]*player.Player, 0, len(r.Players))
	for _, p := range r.Players {
		if p.Alive {
			alive = append(alive, p)
		}
	}
	return alive
}

// HasValidTargets 判断 current 是否还有合法碰手目标：
// 存在另一名存活玩家且其任一只手不为 0（0 不是合法目标）。
func (r *Room) HasValidTargets(current *player.Player) bool {
	for _, p := range r.Players {
		if p.ID != current.ID && p.Alive && (p.Hands[0] != 0 || p.Hands[1] != 0) {
			return true
		}
	}
	return false
}

// ConnIDs 返回房间内全部玩家的连接 id，广播用。
func (r *Room) ConnIDs() []string {
	ids := make([]string, 0, len(r.Players))
	for _, p := range r.Players {
		if p.ConnID != "" {
			ids = append(ids, p.ConnID)
		}
	}
	return ids
}

// StampTurnStart 记录回合开始时刻。
func (r *Room) StampTurnStart(now time.Time) {
	r.TurnStartTime = now.UnixMilli()
}

//-------------------------------------------------------
// 对外快照：凭据（账号名、密码）永不出现在快照里
//-------------------------------------------------------

type PlayerSnapshot struct {
	ID        int     `json:"id"`
	Name      string  `json:"name"`
	Health    float64 `json:"health"`
	MaxHealth float64 `json:"maxHealth"`
	Hands     [2]int  `json:"hands"`
	Alive     bool    `json:"is_alive"`
}

type Snapshot struct {
	ID                 string           `json:"id"`
	Players            []PlayerSnapshot `json:"players"`
	Phase              string           `json:"phase"`
	CurrentPlayerIndex int              `json:"currentPlayerIndex"`
	MaxPlayers         int              `json:"maxPlayers"`
	Log                []string         `json:"log"`
	GameOver           bool             `json:"gameOver"`
	Winner             string           `json:"winner"`
	TurnStartTime      int64            `json:"turnStartTime"`
	PossibleActions    *PossibleActions `json:"possibleActions"`
}

// TakeSnapshot 复制出一份可以安全离开 engine goroutine 的状态。
// 调用方必须已持有 Mu（engine 循环内天然成立）。
func (r *Room) TakeSnapshot() Snapshot {
	players := make([]PlayerSnapshot, len(r.Players))
	for i, p := range r.Players {
		players[i] = PlayerSnapshot{
			ID:        p.ID,
			Name:      p.Name,
			Health:    p.Health,
			MaxHealth: p.MaxHealth,
			Hands:     p.Hands,
			Alive:     p.Alive,
		}
	}
	logCopy := make([]string, len(r.Log))
	copy(logCopy, r.Log)

	var actions *PossibleActions
	if r.PossibleActions != nil {
		oneTime := make([]OneTimeAction, len(r.PossibleActions.OneTime))
		copy(oneTime, r.PossibleActions.OneTime)
		combos := make([]string, len(r.PossibleActions.Combos))
		copy(combos, r.PossibleActions.Combos)
		actions = &PossibleActions{OneTime: oneTime, Combos: combos}
	}

	return Snapshot{
		ID:                 r.ID,
		Players:            players,
		Phase:              r.Phase,
		CurrentPlayerIndex: r.CurrentPlayerIndex,
		MaxPlayers:         r.MaxPlayers,
		Log:                logCopy,
		GameOver:           r.GameOver,
		Winner:             r.Winner,
		TurnStartTime:      r.TurnStartTime,
		PossibleActions:    actions,
	}
}
