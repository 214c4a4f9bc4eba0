// Package gateway 实现 Session Gateway：
// 把入站的实时事件映射成 Turn Engine / Guess Evaluator / Registry 操作，
// 并把产生的状态按受众规则 (全房间广播 / 仅画画的人 / 仅发送者) 发回去。
package gateway

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"draw-guess/internal/domain"
	"draw-guess/internal/dto"
	"draw-guess/internal/registry"
	"draw-guess/internal/service"
)

// Sender 是 Gateway 对下行通道的全部要求，由 hub.Hub 实现。
// 拆成接口是为了在测试里用内存实现替换真实的 WebSocket 扇出。
type Sender interface {
	Broadcast(roomID string, message []byte)
	BroadcastExcept(roomID, exceptPlayerID string, message []byte)
	SendToPlayer(playerID string, message []byte)
	Bind(playerID, roomID string)
	Unbind(playerID string)
}

// 系统提示文案。
const (
	systemSender       = "System"
	msgRoomNotFound    = "房间不存在"
	msgCreateFailed    = "创建房间失败"
	msgNeedMorePlayers = "至少需要 2 名玩家才能开始游戏"
	msgInvalidState    = "当前状态不允许该操作"
	msgDrawerCannotMsg = "画画的人不能猜！"
	msgAlreadyGuessed  = "你已经猜对啦！"
	msgCloseGuess      = "很接近了，再想想！"
	msgInvalidPayload  = "消息格式不正确"
)

// Gateway 持有核心组件并实现 hub.Handler。
type Gateway struct {
	reg       *registry.Registry
	engine    *service.TurnEngine
	evaluator *service.GuessEvaluator
	sender    Sender

	// 回合结束到下一次 advanceTurn 之间的揭晓延迟
	revealDelay time.Duration
	timers      *turnTimers
}

// New 创建 Gateway 实例。
func New(reg *registry.Registry, engine *service.TurnEngine, evaluator *service.GuessEvaluator, sender Sender, revealDelay time.Duration) *Gateway {
	if reg == nil || engine == nil || evaluator == nil || sender == nil {
		panic("Gateway dependencies cannot be nil")
	}
	if revealDelay <= 0 {
		revealDelay = 3 * time.Second
	}
	return &Gateway{
		reg:         reg,
		engine:      engine,
		evaluator:   evaluator,
		sender:      sender,
		revealDelay: revealDelay,
		timers:      newTurnTimers(),
	}
}

// HandleMessage 解析入站信封并按事件分发。
// 任何解析/业务错误都只回给发起者，不影响房间里的其他人。
func (g *Gateway) HandleMessage(playerID string, raw []byte) {
	var msg dto.Inbound
	if err := json.Unmarshal(raw, &msg); err != nil {
		logrus.WithField("player_id", playerID).WithError(err).Warn("Gateway: malformed inbound envelope")
		g.sendError(playerID, msgInvalidPayload)
		return
	}

	logCtx := logrus.WithFields(logrus.Fields{
		"player_id": playerID,
		"event":     msg.Type,
	})
	logCtx.Debug("Gateway: dispatching inbound event")

	switch msg.Type {
	case dto.EventCreateRoom:
		g.handleCreateRoom(playerID, msg.Data)
	case dto.EventJoinRoom:
		g.handleJoinRoom(playerID, msg.Data)
	case dto.EventStartGame:
		g.handleStartGame(playerID, msg.Data)
	case dto.EventWordSelected:
		g.handleWordSelected(playerID, msg.Data)
	case dto.EventDrawData:
		g.handleDrawData(playerID, msg.Data)
	case dto.EventClearCanvas:
		g.handleClearCanvas(playerID, msg.Data)
	case dto.EventSendMessage:
		g.handleSendMessage(playerID, msg.Data)
	default:
		logCtx.Warn("Gateway: unknown event type")
		g.sendError(playerID, msgInvalidPayload)
	}
}

// HandleDisconnect 在连接断开后做离房清理。
// 离开可能让 "所有剩余非画画玩家都已猜对" 在此刻成立，或者把选词权
// 留在一个已离开的玩家手里，这两种情况都在这里收尾，避免房间卡死。
func (g *Gateway) HandleDisconnect(playerID, roomID string) {
	if roomID == "" {
		return
	}
	oldDrawerID := ""
	if room, ok := g.reg.Get(roomID); ok {
		oldDrawerID = room.CurrentDrawerID()
	}

	room, deleted := g.reg.LeaveRoom(roomID, playerID)
	if deleted {
		// 房间已经没人了，取消挂起的回合推进任务
		g.timers.Cancel(roomID)
		return
	}
	if room == nil {
		return
	}
	g.broadcast(roomID, dto.EventUpdateRoom, room.Snapshot())

	room.Mu.Lock()
	state := room.GameState
	drawerID := ""
	if d := room.CurrentDrawer(); d != nil {
		drawerID = d.ID
	}
	drawingDone := state == domain.StateDrawing && len(room.GuessedPlayers) >= len(room.Players)-1
	room.Mu.Unlock()

	switch {
	case drawingDone:
		g.endTurn(roomID)
	case state == domain.StateSelecting && drawerID != oldDrawerID:
		choices, err := g.engine.RedealChoices(room)
		if err != nil {
			logrus.WithField("room_id", roomID).WithError(err).Warn("Gateway: failed to redeal word choices")
			return
		}
		g.sendTo(drawerID, dto.EventChooseWord, dto.ChooseWord{Choices: choices})
	}
}

func (g *Gateway) handleCreateRoom(playerID string, data json.RawMessage) {
	var payload dto.CreateRoomPayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.Nickname == "" {
		g.sendError(playerID, msgInvalidPayload)
		return
	}

	code, err := g.reg.NewRoomCode()
	if err != nil {
		logrus.WithError(err).Error("Gateway: failed to generate room code")
		g.sendError(playerID, msgCreateFailed)
		return
	}
	if _, err := g.reg.CreateRoom(code, playerID, payload.Nickname); err != nil {
		logrus.WithError(err).WithField("room_id", code).Error("Gateway: failed to create room")
		g.sendError(playerID, msgCreateFailed)
		return
	}
	room, err := g.reg.JoinRoom(code, playerID, payload.Nickname)
	if err != nil {
		g.sendError(playerID, msgCreateFailed)
		return
	}
	g.sender.Bind(playerID, code)

	g.sendTo(playerID, dto.EventRoomJoined, dto.RoomJoined{
		RoomID: code,
		UserID: playerID,
		Room:   room.Snapshot(),
	})
}

func (g *Gateway) handleJoinRoom(playerID string, data json.RawMessage) {
	var payload dto.JoinRoomPayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.RoomID == "" || payload.Nickname == "" {
		g.sendError(playerID, msgInvalidPayload)
		return
	}

	room, err := g.reg.JoinRoom(payload.RoomID, playerID, payload.Nickname)
	if err != nil {
		g.sendError(playerID, msgRoomNotFound)
		return
	}
	g.sender.Bind(playerID, payload.RoomID)

	// 回放缓存补给迟到的玩家，让画布收敛到服务器当前状态
	g.sendTo(playerID, dto.EventRoomJoined, dto.RoomJoined{
		RoomID:  payload.RoomID,
		UserID:  playerID,
		Room:    room.Snapshot(),
		History: room.HistorySnapshot(),
	})
	g.broadcast(payload.RoomID, dto.EventUpdateRoom, room.Snapshot())
}

func (g *Gateway) handleStartGame(playerID string, data json.RawMessage) {
	var payload dto.StartGamePayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.RoomID == "" {
		g.sendError(playerID, msgInvalidPayload)
		return
	}
	room, ok := g.reg.Get(payload.RoomID)
	if !ok {
		g.sendError(playerID, msgRoomNotFound)
		return
	}

	choices, err := g.engine.StartGame(room)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInsufficientPlayers):
			g.sendError(playerID, msgNeedMorePlayers)
		default:
			g.sendError(playerID, msgInvalidState)
		}
		return
	}

	// 清掉等待阶段的涂鸦
	g.broadcast(payload.RoomID, dto.EventClearCanvas, nil)
	g.broadcast(payload.RoomID, dto.EventGameStarted, room.Snapshot())
	g.sendTo(room.CurrentDrawerID(), dto.EventChooseWord, dto.ChooseWord{Choices: choices})
}

func (g *Gateway) handleWordSelected(playerID string, data json.RawMessage) {
	var payload dto.WordSelectedPayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.RoomID == "" || payload.Word == "" {
		g.sendError(playerID, msgInvalidPayload)
		return
	}
	room, ok := g.reg.Get(payload.RoomID)
	if !ok {
		g.sendError(playerID, msgRoomNotFound)
		return
	}

	// 不校验 word 是否出自候选词，信任画画客户端 (明确的信任边界)
	if err := g.engine.SelectWord(room, payload.Word); err != nil {
		g.sendError(playerID, msgInvalidState)
		return
	}

	g.broadcast(payload.RoomID, dto.EventClearCanvas, nil)
	g.broadcast(payload.RoomID, dto.EventRoundStart, dto.RoundStart{
		DrawerID:   room.CurrentDrawerID(),
		WordLength: len([]rune(payload.Word)),
	})
	g.broadcast(payload.RoomID, dto.EventUpdateRoom, room.Snapshot())
	// 完整的词只发给画画的人本人
	g.sendTo(playerID, dto.EventYourWord, dto.YourWord{Word: payload.Word})
}

func (g *Gateway) handleDrawData(playerID string, data json.RawMessage) {
	var payload dto.DrawDataPayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.RoomID == "" {
		return
	}
	room, ok := g.reg.Get(payload.RoomID)
	if !ok {
		return
	}
	room.AppendStroke(payload.Data)

	raw, err := dto.Encode(dto.EventDrawData, payload.Data)
	if err != nil {
		return
	}
	g.sender.BroadcastExcept(payload.RoomID, playerID, raw)
}

func (g *Gateway) handleClearCanvas(playerID string, data json.RawMessage) {
	var payload dto.ClearCanvasPayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.RoomID == "" {
		return
	}
	room, ok := g.reg.Get(payload.RoomID)
	if !ok {
		return
	}
	room.ClearHistory()

	raw, err := dto.Encode(dto.EventClearCanvas, nil)
	if err != nil {
		return
	}
	g.sender.BroadcastExcept(payload.RoomID, playerID, raw)
}

func (g *Gateway) handleSendMessage(playerID string, data json.RawMessage) {
	var payload dto.SendMessagePayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.RoomID == "" || payload.Message == "" {
		g.sendError(playerID, msgInvalidPayload)
		return
	}
	room, ok := g.reg.Get(payload.RoomID)
	if !ok {
		g.sendError(playerID, msgRoomNotFound)
		return
	}

	// 不在房间里的连接不能往房间里发消息
	room.Mu.Lock()
	member := room.FindPlayer(playerID)
	senderName := ""
	if member != nil {
		senderName = member.Name
	}
	room.Mu.Unlock()
	if member == nil {
		logrus.WithFields(logrus.Fields{
			"room_id":   payload.RoomID,
			"player_id": playerID,
		}).Debug("Gateway: message from non-member dropped")
		return
	}

	result := g.evaluator.Evaluate(room, playerID, payload.Message)

	switch result.Category {
	case service.GuessCorrect:
		g.broadcast(payload.RoomID, dto.EventChatMessage, dto.ChatMessage{
			Sender: systemSender,
			Text:   senderName + " 猜对了！",
			Kind:   "system",
		})
		g.broadcast(payload.RoomID, dto.EventUpdateRoom, room.Snapshot())
		if result.EndsTurn {
			g.endTurn(payload.RoomID)
		}

	case service.GuessDrawerForbidden:
		g.sendTo(playerID, dto.EventChatMessage, dto.ChatMessage{
			Sender: systemSender, Text: msgDrawerCannotMsg, Kind: "system",
		})

	case service.GuessAlreadyCorrect:
		g.sendTo(playerID, dto.EventChatMessage, dto.ChatMessage{
			Sender: systemSender, Text: msgAlreadyGuessed, Kind: "system",
		})

	default: // 普通聊天照常广播，允许擦边闲聊而不暴露答案
		g.broadcast(payload.RoomID, dto.EventChatMessage, dto.ChatMessage{
			Sender: senderName,
			Text:   payload.Message,
			Kind:   "chat",
		})
		if result.Close {
			g.sendTo(playerID, dto.EventChatMessage, dto.ChatMessage{
				Sender: systemSender, Text: msgCloseGuess, Kind: "system",
			})
		}
	}
}

// endTurn 广播揭晓并调度揭晓延迟后的回合推进。
// 回调触发时房间可能已经被删除，所以推进前重新做存在性检查。
func (g *Gateway) endTurn(roomID string) {
	room, ok := g.reg.Get(roomID)
	if !ok {
		return
	}
	g.broadcast(roomID, dto.EventTurnEnd, dto.TurnEnd{Word: room.Word()})

	g.timers.Schedule(roomID, g.revealDelay, func() {
		g.advanceTurn(roomID)
	})
}

// advanceTurn 是揭晓延迟后的续段，由回合定时器触发。
func (g *Gateway) advanceTurn(roomID string) {
	room, ok := g.reg.Get(roomID)
	if !ok {
		// 延迟期间房间被删除了，什么都不做
		logrus.WithField("room_id", roomID).Debug("Gateway: room gone before turn advance, skipping")
		return
	}

	choices, ended, err := g.engine.AdvanceTurn(room)
	if err != nil {
		logrus.WithField("room_id", roomID).WithError(err).Warn("Gateway: turn advance rejected")
		return
	}
	if ended {
		g.broadcast(roomID, dto.EventGameOver, room.Snapshot())
		return
	}
	g.broadcast(roomID, dto.EventUpdateRoom, room.Snapshot())
	g.sendTo(room.CurrentDrawerID(), dto.EventChooseWord, dto.ChooseWord{Choices: choices})
}

// --- 发送辅助 ---

func (g *Gateway) broadcast(roomID, eventType string, data any) {
	raw, err := dto.Encode(eventType, data)
	if err != nil {
		logrus.WithField("event", eventType).WithError(err).Error("Gateway: failed to encode broadcast message")
		return
	}
	g.sender.Broadcast(roomID, raw)
}

func (g *Gateway) sendTo(playerID, eventType string, data any) {
	if playerID == "" {
		return
	}
	raw, err := dto.Encode(eventType, data)
	if err != nil {
		logrus.WithField("event", eventType).WithError(err).Error("Gateway: failed to encode message")
		return
	}
	g.sender.SendToPlayer(playerID, raw)
}

func (g *Gateway) sendError(playerID, message string) {
	g.sendTo(playerID, dto.EventError, dto.ErrorPayload{Message: message})
}
