package websocket

import "encoding/json"

type OutgoingMessage struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// IncomingMessage 的 Data 保留原始 JSON，由游戏层按事件各自解码。
// ConnID / Username 由服务端注入，不信任客户端携带的身份字段。
type IncomingMessage struct {
	ConnID   string          `json:"-"`
	Username string          `json:"-"`
	Event    string          `json:"event"`
	Data     json.RawMessage `json:"data"`
}
