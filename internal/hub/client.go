package hub

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Client 代表一个连接到 Hub 的 WebSocket 客户端。
// 连接建立时玩家还不属于任何房间，roomID 在 create_room/join_room
// 成功后由 Hub.Bind 设置。
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	id   string // 连接级玩家 id，升级连接时分配

	mu     sync.Mutex
	roomID string

	send chan []byte // 用于向此客户端发送消息的缓冲通道
}

// NewClient 创建一个新的 Client 实例
func NewClient(hub *Hub, conn *websocket.Conn, playerID string) *Client {
	return &Client{
		hub:  hub,
		conn: conn,
		id:   playerID,
		send: make(chan []byte, 256),
	}
}

// Run 启动客户端的读写 goroutine
func (c *Client) Run() {
	go c.WritePump()
	go c.ReadPump()
}

// ID 返回连接级玩家 id。
func (c *Client) ID() string { return c.id }

// RoomID 返回当前绑定的房间 id，未绑定时为空字符串。
func (c *Client) RoomID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.roomID
}

func (c *Client) setRoomID(roomID string) {
	c.mu.Lock()
	c.roomID = roomID
	c.mu.Unlock()
}

// CloseConn 关闭底层 WebSocket 连接。
func (c *Client) CloseConn() { c.conn.Close() }

// ReadPump 将消息从 WebSocket 连接泵送到 Hub 的处理通道。
// 它在自己的 goroutine 中运行。
func (c *Client) ReadPump() {
	defer func() {
		// 清理操作：请求 Hub 注销此客户端
		unregisterMsg := HubMessage{Type: "unregister", Client: c}
		select {
		case c.hub.messageChan <- unregisterMsg:
		case <-time.After(1 * time.Second):
			logrus.WithField("player_id", c.id).Warn("Timeout sending unregister message to Hub channel")
		}
		c.conn.Close()
		logrus.WithField("player_id", c.id).Info("readPump exited, unregistered client")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait)) // 收到 Pong 后重置读取超时
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			logCtx := logrus.WithField("player_id", c.id)
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logCtx.WithError(err).Warn("WebSocket read error (unexpected close)")
			} else {
				logCtx.Debug("WebSocket connection closed normally or read error")
			}
			break // 退出循环，触发 defer 中的注销
		}

		// 只处理文本消息
		if messageType != websocket.TextMessage {
			logrus.WithField("player_id", c.id).Debugf("Received non-text message type: %d", messageType)
			continue
		}

		inboundMsg := HubMessage{
			Type:    "inbound",
			Client:  c,
			RawData: message,
		}
		// 非阻塞发送到 Hub，如果 Hub 处理不过来则丢弃
		select {
		case c.hub.messageChan <- inboundMsg:
		default:
			// 这种情况通常表示系统负载过高或 Hub 处理逻辑有阻塞
			logrus.WithField("player_id", c.id).Warn("Hub message channel full, dropping client message")
		}
	}
}

// WritePump 将消息从 Client 的 send 通道泵送到 WebSocket 连接。
// 它在自己的 goroutine 中运行。
func (c *Client) WritePump() {
	// 定时发送 Ping 以保持连接活跃并检测断开
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		logrus.WithField("player_id", c.id).Info("writePump exited")
		// 不需要在这里 unregister，readPump 退出会处理
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// send 通道被 Hub 关闭了（通常在注销时）
				logrus.WithField("player_id", c.id).Info("Hub closed send channel")
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				logrus.WithField("player_id", c.id).WithError(err).Warn("Failed to write message to websocket")
				return
			}
			_ = c.conn.SetWriteDeadline(time.Time{})

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				logrus.WithField("player_id", c.id).WithError(err).Warn("Failed to send ping message")
				return
			}
			_ = c.conn.SetWriteDeadline(time.Time{})
		}
	}
}
