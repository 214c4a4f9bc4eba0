// Package dto 定义 WebSocket 消息契约。
// 每个事件名对应一个显式的 payload 变体，在 Session Gateway 边界完成
// 解析和校验，核心组件只会看到类型良好的房间操作。
package dto

import (
	"encoding/json"

	"draw-guess/internal/domain"
)

// 入站事件名。
const (
	EventCreateRoom   = "create_room"
	EventJoinRoom     = "join_room"
	EventStartGame    = "start_game"
	EventWordSelected = "word_selected"
	EventDrawData     = "draw_data"
	EventClearCanvas  = "clear_canvas"
	EventSendMessage  = "send_message"
)

// 出站事件名。
const (
	EventRoomJoined  = "room_joined"
	EventUpdateRoom  = "update_room"
	EventGameStarted = "game_started"
	EventChooseWord  = "choose_word"
	EventYourWord    = "your_word"
	EventRoundStart  = "round_start"
	EventTurnEnd     = "turn_end"
	EventGameOver    = "game_over"
	EventChatMessage = "chat_message"
	EventError       = "error"
)

// Inbound 是入站消息的外层信封，Data 延迟到按事件分发时再解析。
type Inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Outbound 是出站消息的外层信封。
type Outbound struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// Encode 把一条出站消息序列化成可直接写入连接的字节。
func Encode(eventType string, data any) ([]byte, error) {
	return json.Marshal(Outbound{Type: eventType, Data: data})
}

// --- 入站 payload 变体 ---

type CreateRoomPayload struct {
	Nickname string `json:"nickname"`
}

type JoinRoomPayload struct {
	RoomID   string `json:"roomId"`
	Nickname string `json:"nickname"`
}

type StartGamePayload struct {
	RoomID string `json:"roomId"`
}

type WordSelectedPayload struct {
	RoomID string `json:"roomId"`
	Word   string `json:"word"`
}

type DrawDataPayload struct {
	RoomID string        `json:"roomId"`
	Data   domain.Stroke `json:"data"`
}

type ClearCanvasPayload struct {
	RoomID string `json:"roomId"`
}

type SendMessagePayload struct {
	RoomID  string `json:"roomId"`
	Message string `json:"message"`
}

// --- 出站 payload 变体 ---

// RoomJoined 只发给刚加入的玩家本人，附带笔画回放缓存，
// 让迟到的客户端能够把画布补齐到服务器当前状态。
type RoomJoined struct {
	RoomID  string               `json:"roomId"`
	UserID  string               `json:"userId"`
	Room    *domain.RoomSnapshot `json:"room"`
	History []domain.Stroke      `json:"history,omitempty"`
}

// ChooseWord 只发给当前画画的玩家。
type ChooseWord struct {
	Choices []string `json:"choices"`
}

// YourWord 只发给画画的玩家本人，是唯一携带完整秘密词的下行消息。
type YourWord struct {
	Word string `json:"word"`
}

// RoundStart 广播给全房间；非画画玩家只能看到词长。
type RoundStart struct {
	DrawerID   string `json:"drawerId"`
	WordLength int    `json:"wordLength"`
}

// TurnEnd 在回合结束时广播，揭晓本回合的词。
type TurnEnd struct {
	Word string `json:"word"`
}

// ChatMessage 是聊天栏里的一条消息，Kind 为 chat 或 system。
type ChatMessage struct {
	Sender string `json:"sender"`
	Text   string `json:"text"`
	Kind   string `json:"type"`
}

// ErrorPayload 只发给出错操作的发起者。
type ErrorPayload struct {
	Message string `json:"message"`
}
