package hub

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// 包级别的 WebSocket 常量，供 hub 和 client 使用
const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 4096 // 笔画消息比纯文本大，留出余量
)

// Handler 处理从 Hub 送出的客户端事件。由 Session Gateway 实现。
type Handler interface {
	// HandleMessage 处理一条入站的原始消息。
	HandleMessage(playerID string, raw []byte)
	// HandleDisconnect 在客户端断开后调用；roomID 是断开前绑定的房间，
	// 未绑定时为空字符串。
	HandleDisconnect(playerID, roomID string)
}

// HubMessage 定义了在 Hub 内部通道传递的消息类型
type HubMessage struct {
	Type    string  // "register", "unregister", "inbound"
	Client  *Client // 消息来源的客户端
	RawData []byte  // 仅用于 inbound (原始 WebSocket 消息)
}

// Hub 维护活跃客户端集合并协调消息处理。
// 入站消息在 Run 循环里同步分发给 Handler：所有房间操作都是
// 纯内存变更，不会阻塞循环，同时保证了单个客户端消息的处理顺序。
type Hub struct {
	// 内部通道，处理所有来自 Client 的事件
	messageChan chan HubMessage

	mu      sync.RWMutex
	clients map[string]*Client            // playerID -> Client
	rooms   map[string]map[string]*Client // roomID -> playerID -> Client

	handler Handler
}

// NewHub 创建并返回一个新的 Hub 实例
func NewHub() *Hub {
	return &Hub{
		messageChan: make(chan HubMessage, 512),
		clients:     make(map[string]*Client),
		rooms:       make(map[string]map[string]*Client),
	}
}

// SetHandler 注入事件处理器。必须在 Run 之前调用一次。
// (Hub 和 Gateway 互相引用，只能在装配时后注入。)
func (h *Hub) SetHandler(handler Handler) {
	if handler == nil {
		panic("Handler cannot be nil for Hub")
	}
	h.handler = handler
}

// Run 启动 Hub 的主事件处理循环。
// 它应该在一个单独的 goroutine 中运行。
func (h *Hub) Run() {
	log := logrus.WithField("component", "hub")
	log.Info("Hub is running...")

	for msg := range h.messageChan {
		switch msg.Type {
		case "register":
			h.registerClient(msg.Client)
		case "unregister":
			h.unregisterClient(msg.Client)
		case "inbound":
			if h.handler != nil && msg.Client != nil {
				h.handler.HandleMessage(msg.Client.ID(), msg.RawData)
			}
		default:
			log.Warnf("Hub: Received unknown message type: %s", msg.Type)
		}
	}
	log.Info("Hub is shutting down...")
}

// Stop 关闭 Hub 的消息通道，使 Run 循环退出。
func (h *Hub) Stop() {
	close(h.messageChan)
}

// QueueMessage 将消息放入 Hub 的处理队列 (非阻塞)。
// 返回 true 如果消息成功入队，false 如果队列已满。
func (h *Hub) QueueMessage(msg HubMessage) bool {
	select {
	case h.messageChan <- msg:
		return true
	default:
		logrus.WithField("message_type", msg.Type).Warn("Hub message channel full, dropping message")
		return false
	}
}

// registerClient 处理客户端注册逻辑
func (h *Hub) registerClient(client *Client) {
	if client == nil {
		logrus.Error("Hub: Attempted to register a nil client")
		return
	}
	h.mu.Lock()
	h.clients[client.ID()] = client
	h.mu.Unlock()
	logrus.WithField("player_id", client.ID()).Info("Client registered to Hub")
}

// unregisterClient 处理客户端注销逻辑。
// 先把客户端从所有集合中摘除，再通知 Handler 做离房清理，
// 这样 Handler 广播到的都是还在房间里的人。
func (h *Hub) unregisterClient(client *Client) {
	if client == nil {
		logrus.Error("Hub: Attempted to unregister a nil client")
		return
	}
	playerID := client.ID()
	roomID := client.RoomID()
	logCtx := logrus.WithFields(logrus.Fields{
		"player_id": playerID,
		"room_id":   roomID,
	})

	h.mu.Lock()
	if _, ok := h.clients[playerID]; !ok {
		h.mu.Unlock()
		logCtx.Warn("Client not found in Hub during unregister")
		return
	}
	delete(h.clients, playerID)
	h.removeFromRoomLocked(playerID, roomID)
	// 关闭 send 通道，驱动该客户端的 WritePump 退出
	close(client.send)
	h.mu.Unlock()
	logCtx.Info("Client unregistered from Hub")

	if h.handler != nil {
		h.handler.HandleDisconnect(playerID, roomID)
	}
}

// Bind 把玩家的连接挂到某个房间的收件名单上。
func (h *Hub) Bind(playerID, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	client, ok := h.clients[playerID]
	if !ok {
		logrus.WithField("player_id", playerID).Warn("Bind: client not found")
		return
	}
	// 同一连接换房间时先从旧房间摘掉
	h.removeFromRoomLocked(playerID, client.RoomID())
	client.setRoomID(roomID)

	if _, ok := h.rooms[roomID]; !ok {
		h.rooms[roomID] = make(map[string]*Client)
	}
	h.rooms[roomID][playerID] = client
}

// Unbind 把玩家的连接从其房间的收件名单上摘除。
func (h *Hub) Unbind(playerID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	client, ok := h.clients[playerID]
	if !ok {
		return
	}
	h.removeFromRoomLocked(playerID, client.RoomID())
	client.setRoomID("")
}

func (h *Hub) removeFromRoomLocked(playerID, roomID string) {
	if roomID == "" {
		return
	}
	if roomClients, ok := h.rooms[roomID]; ok {
		delete(roomClients, playerID)
		if len(roomClients) == 0 {
			delete(h.rooms, roomID)
		}
	}
}

// Broadcast 将消息发送给指定房间的所有客户端。
func (h *Hub) Broadcast(roomID string, message []byte) {
	h.BroadcastExcept(roomID, "", message)
}

// BroadcastExcept 将消息发送给指定房间除 exceptPlayerID 外的所有客户端。
func (h *Hub) BroadcastExcept(roomID, exceptPlayerID string, message []byte) {
	h.mu.RLock()
	roomClients, ok := h.rooms[roomID]
	// 创建一个接收者列表的副本，以避免长时间持有锁
	clientsToSend := make([]*Client, 0, len(roomClients))
	if ok {
		for id, client := range roomClients {
			if id != exceptPlayerID {
				clientsToSend = append(clientsToSend, client)
			}
		}
	}
	h.mu.RUnlock()

	if len(clientsToSend) == 0 {
		return
	}

	for _, client := range clientsToSend {
		// 使用非阻塞发送，避免单个慢客户端阻塞广播
		select {
		case client.send <- message:
		default:
			logrus.WithFields(logrus.Fields{
				"room_id":   roomID,
				"player_id": client.ID(),
			}).Warn("Client send channel full during broadcast, skipping this client")
		}
	}
}

// SendToPlayer 将消息发送给单个玩家。玩家不在线时丢弃。
func (h *Hub) SendToPlayer(playerID string, message []byte) {
	h.mu.RLock()
	client, ok := h.clients[playerID]
	h.mu.RUnlock()
	if !ok {
		return
	}
	select {
	case client.send <- message:
	default:
		logrus.WithField("player_id", playerID).Warn("Client send channel full, message dropped")
	}
}
