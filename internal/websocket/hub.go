package websocket

import (
	"log"
	"sync"
)

type HubInterface interface {
	BroadcastToConns(connIDs []string, msg OutgoingMessage)
	BroadcastAll(msg OutgoingMessage)
	SendToConn(connID string, msg OutgoingMessage)
	Close()
}

// Hub 持有全部在线连接，按连接 id（uuid）索引。
// 同一账号允许多个连接（大厅 + 对局页），所以不能拿用户名当 key。
type Hub struct {
	clients      map[string]*Client // connID -> client
	register     chan *Client
	unregister   chan *Client
	broadcast    chan broadcastReq
	broadcastAll chan OutgoingMessage
	sendOne      chan sendReq

	// 游戏层回调，由 main 在启动时装配。
	// OnIncoming 在各连接的读协程上执行（同一连接内天然有序），
	// OnConnect / OnDisconnect 各自开协程执行——都不会占住 Hub
	// 主循环，回调里可以放心再调 SendToConn / Broadcast*。
	OnIncoming   func(IncomingMessage)
	OnConnect    func(connID, username string)
	OnDisconnect func(connID, username string)

	quit chan struct{}
	mu   sync.RWMutex
}

type broadcastReq struct {
	ConnIDs []string
	Message OutgoingMessage
}

type sendReq struct {
	ConnID  string
	Message OutgoingMessage
}

func NewHub() *Hub {
	return &Hub{
		clients:      make(map[string]*Client),
		register:     make(chan *Client),
		unregister:   make(chan *Client),
		broadcast:    make(chan broadcastReq),
		broadcastAll: make(chan OutgoingMessage),
		sendOne:      make(chan sendReq),
		quit:         make(chan struct{}),
	}
}

func (h *Hub) Run() {

	log.Println("Hub started")

	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c.ID] = c
			log.Printf("Hub.register -> %s/%s (当前连接数: %d)", c.Username, c.ID, len(h.clients))
			h.mu.Unlock()
			if h.OnConnect != nil {
				go h.OnConnect(c.ID, c.Username)
			}

		case c := <-h.unregister:
			h.mu.Lock()
			_, ok := h.clients[c.ID]
			if ok {
				delete(h.clients, c.ID)
				log.Printf("Hub.unregister -> %s/%s (当前连接数: %d)", c.Username, c.ID, len(h.clients))
				close(c.Send)
			}
			h.mu.Unlock()
			if ok && h.OnDisconnect != nil {
				go h.OnDisconnect(c.ID, c.Username)
			}

		case req := <-h.broadcast:
			for _, id := range req.ConnIDs {
				if client, ok := h.clients[id]; ok {
					select {
					case client.Send <- req.Message:
					default:
						// 慢客户端丢弃，不能阻塞 hub
					}
				}
			}

		case msg := <-h.broadcastAll:
			for _, client := range h.clients {
				select {
				case client.Send <- msg:
				default:
				}
			}

		case req := <-h.sendOne:
			if client, ok := h.clients[req.ConnID]; ok {
				select {
				case client.Send <- req.Message:
				default:
				}
			}

		case <-h.quit:
			for _, c := range h.clients {
				close(c.Send)
			}
			return
		}
	}
}

// BroadcastToConns 按连接 id 列表广播（房间内广播）。
func (h *Hub) BroadcastToConns(connIDs []string, msg OutgoingMessage) {
	h.broadcast <- broadcastReq{
		ConnIDs: connIDs,
		Message: msg,
	}
}

// BroadcastAll 对所有在线连接广播（大厅、排行榜）。
func (h *Hub) BroadcastAll(msg OutgoingMessage) {
	h.broadcastAll <- msg
}

// SendToConn 给单个连接发消息。
func (h *Hub) SendToConn(connID string, msg OutgoingMessage) {
	h.sendOne <- sendReq{
		ConnID:  connID,
		Message: msg,
	}
}

func (h *Hub) Close() {
	close(h.quit)
}
