package manager

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"HandClash/internal/account"
	"HandClash/internal/game/engine"
	"HandClash/internal/game/player"
	"HandClash/internal/game/room"
	"HandClash/internal/game/roomid"
	"HandClash/internal/utils"
	"HandClash/internal/websocket"
)

// 终局后保留房间 5 秒，让客户端看清终局快照再拆
const teardownDelay = 5 * time.Second

// Manager 是房间注册表：创建/加入的入口、连接到房间的路由、
// 大厅与排行榜广播、战绩落账和延迟拆房都在这里。
// 房间内部状态归各自的 Engine goroutine 所有，Manager 不碰。
type Manager struct {
	mu         sync.RWMutex
	engines    map[string]*engine.Engine // roomID → engine
	connToRoom map[string]string         // connID → roomID
	online     map[string]int            // username → 连接数

	hub      websocket.HubInterface
	accounts account.Repo
	ids      *roomid.Generator
}

func NewManager(hub websocket.HubInterface, accounts account.Repo) *Manager {
	return &Manager{
		engines:    make(map[string]*engine.Engine),
		connToRoom: make(map[string]string),
		online:     make(map[string]int),
		hub:        hub,
		accounts:   accounts,
		ids:        roomid.New(time.Now().UnixNano()),
	}
}

//-------------------------------------------------------
// 入站事件分发（来自 Hub.OnIncoming）
//-------------------------------------------------------

type createRoomPayload struct {
	PlayerName    string  `json:"playerName"`
	MaxPlayers    int     `json:"maxPlayers"`
	Password      string  `json:"password"`
	InitialHealth float64 `json:"initialHealth"`
	InitialHands  *[2]int `json:"initialHands"`
}

type joinRoomPayload struct {
	RoomID     string `json:"roomId"`
	PlayerName string `json:"playerName"`
	Password   string `json:"password"`
}

type playerActionPayload struct {
	Action  string          `json:"action"`
	Payload json.RawMessage `json:"payload"`
}

type chatPayload struct {
	Message string `json:"message"`
}

// HandleIncoming 统一入口（来自 Hub）。
func (m *Manager) HandleIncoming(msg websocket.IncomingMessage) {
	switch msg.Event {

	case "createRoom":
		var p createRoomPayload
		if err := json.Unmarshal(msg.Data, &p); err != nil {
			return
		}
		m.CreateRoom(msg.ConnID, msg.Username, p)

	case "joinRoom":
		var p joinRoomPayload
		if err := json.Unmarshal(msg.Data, &p); err != nil {
			return
		}
		m.JoinRoom(msg.ConnID, msg.Username, p)

	case "playerAction":
		var p playerActionPayload
		if err := json.Unmarshal(msg.Data, &p); err != nil {
			return
		}
		if eng := m.engineForConn(msg.ConnID); eng != nil {
			eng.Enqueue(engine.Action{
				Kind:    engine.ActionPlayer,
				ConnID:  msg.ConnID,
				Game:    p.Action,
				Payload: p.Payload,
			})
		}

	case "sendMessage":
		var p chatPayload
		if err := json.Unmarshal(msg.Data, &p); err != nil {
			return
		}
		if eng := m.engineForConn(msg.ConnID); eng != nil {
			eng.Enqueue(engine.Action{
				Kind:   engine.ActionChat,
				ConnID: msg.ConnID,
				Text:   p.Message,
			})
		}
	}
}

//-------------------------------------------------------
// 房间创建 / 加入
//-------------------------------------------------------

// CreateRoom 分配唯一 4 位房间号，创建者坐 0 号位。
func (m *Manager) CreateRoom(connID, username string, p createRoomPayload) {
	if p.PlayerName == "" || p.MaxPlayers < 2 {
		m.sendError(connID, "创建房间参数无效！")
		return
	}
	if p.InitialHealth < 1 || p.InitialHealth > 99 {
		p.InitialHealth = player.DefaultMaxHealth
	}
	hands := [2]int{1, 1}
	if p.InitialHands != nil &&
		p.InitialHands[0] >= 0 && p.InitialHands[0] <= 9 &&
		p.InitialHands[1] >= 0 && p.InitialHands[1] <= 9 {
		hands = *p.InitialHands
	}

	m.mu.Lock()
	id := m.ids.Next()
	for _, ok := m.engines[id]; ok; _, ok = m.engines[id] {
		id = m.ids.Next()
	}

	r := room.New(id, p.MaxPlayers, p.Password, p.InitialHealth, hands)
	creator := player.New(p.PlayerName, 0, connID, username, p.InitialHealth, hands)
	r.Players = append(r.Players, creator)
	r.AppendLog("[系统] 玩家 " + p.PlayerName + " 创建了房间 " + id)

	eng := engine.NewEngine(r, m.hub)
	eng.OnGameOver = m.onGameOver
	eng.OnLobbyChanged = m.broadcastLobby
	m.engines[id] = eng
	m.connToRoom[connID] = id
	m.mu.Unlock()

	// 座位 0 已经就绪，循环可以开始收动作了
	go eng.Run()

	r.Mu.RLock()
	snap := r.TakeSnapshot()
	r.Mu.RUnlock()
	m.hub.SendToConn(connID, websocket.OutgoingMessage{
		Event: "roomCreated",
		Data: map[string]any{
			"roomId":     id,
			"gameState":  snap,
			"myPlayerId": 0,
		},
	})
	m.broadcastLobby()
}

// JoinRoom 把加入请求排进目标房间的处理循环。
// 满员/已开局/密码错误由 Engine 判定并回 errorMsg。
func (m *Manager) JoinRoom(connID, username string, p joinRoomPayload) {
	m.mu.Lock()
	eng, ok := m.engines[p.RoomID]
	if ok {
		m.connToRoom[connID] = p.RoomID
	}
	m.mu.Unlock()

	if !ok {
		m.sendError(connID, "房间不存在！")
		return
	}
	eng.Enqueue(engine.Action{
		Kind:       engine.ActionJoin,
		ConnID:     connID,
		Username:   username,
		PlayerName: p.PlayerName,
		Password:   p.Password,
	})
}

func (m *Manager) engineForConn(connID string) *engine.Engine {
	m.mu.RLock()
	defer m.mu.RUnlock()
	roomID, ok := m.connToRoom[connID]
	if !ok {
		return nil
	}
	return m.engines[roomID]
}

//-------------------------------------------------------
// 连接生命周期（来自 Hub 回调）
//-------------------------------------------------------

// HandleConnect 新连接先收一份大厅和排行榜。
func (m *Manager) HandleConnect(connID, username string) {
	m.mu.Lock()
	m.online[username]++
	m.mu.Unlock()

	m.hub.SendToConn(connID, websocket.OutgoingMessage{Event: "updateLobby", Data: m.LobbyInfo()})
	go m.broadcastLeaderboard()
}

// HandleDisconnect 掉线交给所在房间的循环处理（标记死亡、必要时
// 强制结束回合），同房间动作一样排队，不产生并发修改。
func (m *Manager) HandleDisconnect(connID, username string) {
	m.mu.Lock()
	if m.online[username] > 1 {
		m.online[username]--
	} else {
		delete(m.online, username)
	}
	roomID, ok := m.connToRoom[connID]
	delete(m.connToRoom, connID)
	eng := m.engines[roomID]
	m.mu.Unlock()

	if ok && eng != nil {
		eng.Enqueue(engine.Action{
			Kind:     engine.ActionDisconnect,
			ConnID:   connID,
			Username: username,
		})
	}
	go m.broadcastLeaderboard()
}

//-------------------------------------------------------
// 终局：战绩、排行榜、延迟拆房
//-------------------------------------------------------

func (m *Manager) onGameOver(res engine.GameResult) {
	go func() {
		ctx := context.Background()
		if res.Tally {
			for _, seat := range res.Seats {
				if seat.Username == "" || seat.Username == res.ExcludeUsername {
					continue
				}
				stats, err := m.accounts.RecordResult(ctx, seat.Username, seat.Won)
				if err != nil {
					utils.Error.Printf("record result for %s: %v", seat.Username, err)
					continue
				}
				if seat.ConnID != "" {
					m.hub.SendToConn(seat.ConnID, websocket.OutgoingMessage{
						Event: "updateStats",
						Data:  stats,
					})
				}
			}
		}
		m.broadcastLeaderboard()
	}()

	time.AfterFunc(teardownDelay, func() { m.teardown(res.RoomID) })
}

// teardown 拆房：null 快照告知客户端房间已消失，随后刷新大厅。
func (m *Manager) teardown(roomID string) {
	m.mu.Lock()
	eng, ok := m.engines[roomID]
	if !ok {
		m.mu.Unlock()
		return
	}
	delete(m.engines, roomID)

	eng.Room.Mu.RLock()
	conns := eng.Room.ConnIDs()
	eng.Room.Mu.RUnlock()

	for _, c := range conns {
		if m.connToRoom[c] == roomID {
			delete(m.connToRoom, c)
		}
	}
	m.mu.Unlock()

	eng.Stop()
	m.hub.BroadcastToConns(conns, websocket.OutgoingMessage{Event: "updateState", Data: nil})
	m.broadcastLobby()
}

//-------------------------------------------------------
// 大厅 / 排行榜
//-------------------------------------------------------

type LobbyRoom struct {
	ID           string `json:"id"`
	PlayersCount int    `json:"playersCount"`
	MaxPlayers   int    `json:"maxPlayers"`
	HasPassword  bool   `json:"hasPassword"`
}

// LobbyInfo 列出所有等待中的房间。
func (m *Manager) LobbyInfo() []LobbyRoom {
	m.mu.RLock()
	defer m.mu.RUnlock()

	lobby := make([]LobbyRoom, 0)
	for _, eng := range m.engines {
		r := eng.Room
		r.Mu.RLock()
		if r.Phase == room.PhaseWaiting {
			lobby = append(lobby, LobbyRoom{
				ID:           r.ID,
				PlayersCount: len(r.Players),
				MaxPlayers:   r.MaxPlayers,
				HasPassword:  r.Password != "",
			})
		}
		r.Mu.RUnlock()
	}
	sort.Slice(lobby, func(i, j int) bool { return lobby[i].ID < lobby[j].ID })
	return lobby
}

type LeaderboardEntry struct {
	Nickname    string  `json:"nickname"`
	Wins        int     `json:"wins"`
	GamesPlayed int     `json:"gamesPlayed"`
	WinRate     float64 `json:"winRate"`
	IsOnline    bool    `json:"isOnline"`
}

// Leaderboard 按胜率、其次胜场降序。
func (m *Manager) Leaderboard(ctx context.Context) ([]LeaderboardEntry, error) {
	accounts, err := m.accounts.All(ctx)
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	entries := make([]LeaderboardEntry, 0, len(accounts))
	for _, a := range accounts {
		winRate := 0.0
		if a.Stats.GamesPlayed > 0 {
			winRate = float64(a.Stats.Wins) / float64(a.Stats.GamesPlayed) * 100
		}
		_, isOnline := m.online[a.Username]
		entries = append(entries, LeaderboardEntry{
			Nickname:    a.Nickname,
			Wins:        a.Stats.Wins,
			GamesPlayed: a.Stats.GamesPlayed,
			WinRate:     winRate,
			IsOnline:    isOnline,
		})
	}
	m.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].WinRate != entries[j].WinRate {
			return entries[i].WinRate > entries[j].WinRate
		}
		return entries[i].Wins > entries[j].Wins
	})
	return entries, nil
}

func (m *Manager) broadcastLobby() {
	m.hub.BroadcastAll(websocket.OutgoingMessage{Event: "updateLobby", Data: m.LobbyInfo()})
}

func (m *Manager) broadcastLeaderboard() {
	entries, err := m.Leaderboard(context.Background())
	if err != nil {
		utils.Error.Printf("leaderboard: %v", err)
		return
	}
	m.hub.BroadcastAll(websocket.OutgoingMessage{Event: "updateLeaderboard", Data: entries})
}

func (m *Manager) sendError(connID, reason string) {
	m.hub.SendToConn(connID, websocket.OutgoingMessage{Event: "errorMsg", Data: reason})
}
