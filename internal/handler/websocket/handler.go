package websocket

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"draw-guess/internal/hub"
)

// WebSocketHandler 负责处理 WebSocket 升级请求和客户端注册。
// 连接建立时玩家尚不属于任何房间，随后通过 create_room / join_room
// 事件完成绑定。
type WebSocketHandler struct {
	upgrader websocket.Upgrader
	hub      *hub.Hub
}

// NewWebSocketHandler 创建 WebSocketHandler 实例
func NewWebSocketHandler(h *hub.Hub) *WebSocketHandler {
	if h == nil {
		panic("Hub cannot be nil for WebSocketHandler")
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		// 允许所有来源连接 (生产环境应配置具体的允许来源)
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}

	return &WebSocketHandler{
		upgrader: upgrader,
		hub:      h,
	}
}

// HandleConnection 处理 WebSocket 连接请求。
// 每个连接分配一个稳定的玩家 id，作为该连接整个生命周期的身份标识，
// 断线后客户端可以带着同一 id 重新加入房间 (registry 的 join 是幂等的)。
func (h *WebSocketHandler) HandleConnection(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade 方法会自动发送 HTTP 错误响应，所以这里只需要记录日志
		logrus.WithError(err).Error("WS Handler: Failed to upgrade connection")
		return
	}

	playerID := uuid.NewString()
	logCtx := logrus.WithField("player_id", playerID)
	logCtx.Info("WS Handler: Connection upgraded to WebSocket")

	client := hub.NewClient(h.hub, conn, playerID)

	registerMsg := hub.HubMessage{
		Type:   "register",
		Client: client,
	}
	if !h.hub.QueueMessage(registerMsg) {
		logCtx.Error("WS Handler: Hub message channel full, failed to register client")
		client.CloseConn()
		return
	}

	go client.Run()
	logCtx.Info("WS Handler: Client read/write pumps started")
}
