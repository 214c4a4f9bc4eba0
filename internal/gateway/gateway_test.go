package gateway_test

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"draw-guess/internal/domain"
	"draw-guess/internal/dto"
	"draw-guess/internal/gateway"
	"draw-guess/internal/registry"
	"draw-guess/internal/service"
)

// fakeSender 用内存记录替代真实的 WebSocket 扇出。
type fakeSender struct {
	mu       sync.Mutex
	messages []sentMessage
	bindings map[string]string // playerID -> roomID
}

type sentMessage struct {
	RoomID   string // 广播目标房间，定向消息为空
	PlayerID string // 定向目标玩家，广播为空
	Except   string
	Type     string
	Data     json.RawMessage
}

func newFakeSender() *fakeSender {
	return &fakeSender{bindings: make(map[string]string)}
}

func (f *fakeSender) record(msg sentMessage, raw []byte) {
	var out dto.Inbound // 外层信封结构相同，借用解码
	if err := json.Unmarshal(raw, &out); err == nil {
		msg.Type = out.Type
		msg.Data = out.Data
	}
	f.mu.Lock()
	f.messages = append(f.messages, msg)
	f.mu.Unlock()
}

func (f *fakeSender) Broadcast(roomID string, raw []byte) {
	f.record(sentMessage{RoomID: roomID}, raw)
}

func (f *fakeSender) BroadcastExcept(roomID, exceptPlayerID string, raw []byte) {
	f.record(sentMessage{RoomID: roomID, Except: exceptPlayerID}, raw)
}

func (f *fakeSender) SendToPlayer(playerID string, raw []byte) {
	f.record(sentMessage{PlayerID: playerID}, raw)
}

func (f *fakeSender) Bind(playerID, roomID string) {
	f.mu.Lock()
	f.bindings[playerID] = roomID
	f.mu.Unlock()
}

func (f *fakeSender) Unbind(playerID string) {
	f.mu.Lock()
	delete(f.bindings, playerID)
	f.mu.Unlock()
}

// directTo 返回发给指定玩家的某类消息，按时间顺序取最后一条。
func (f *fakeSender) directTo(playerID, eventType string) (json.RawMessage, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.messages) - 1; i >= 0; i-- {
		m := f.messages[i]
		if m.PlayerID == playerID && m.Type == eventType {
			return m.Data, true
		}
	}
	return nil, false
}

// broadcastTypes 返回广播到指定房间的事件类型序列。
func (f *fakeSender) broadcastTypes(roomID string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var types []string
	for _, m := range f.messages {
		if m.RoomID == roomID && m.PlayerID == "" {
			types = append(types, m.Type)
		}
	}
	return types
}

func (f *fakeSender) reset() {
	f.mu.Lock()
	f.messages = nil
	f.mu.Unlock()
}

func inbound(t *testing.T, eventType string, payload any) []byte {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	raw, err := json.Marshal(dto.Inbound{Type: eventType, Data: data})
	require.NoError(t, err)
	return raw
}

func newGateway(t *testing.T, revealDelay time.Duration) (*gateway.Gateway, *registry.Registry, *fakeSender) {
	t.Helper()
	reg := registry.New(3)
	sender := newFakeSender()
	gw := gateway.New(reg, service.NewTurnEngine(), service.NewGuessEvaluator(), sender, revealDelay)
	return gw, reg, sender
}

// createRoomVia 走 create_room 流程并返回生成的房间码。
func createRoomVia(t *testing.T, gw *gateway.Gateway, sender *fakeSender, playerID, nickname string) string {
	t.Helper()
	gw.HandleMessage(playerID, inbound(t, dto.EventCreateRoom, dto.CreateRoomPayload{Nickname: nickname}))
	data, ok := sender.directTo(playerID, dto.EventRoomJoined)
	require.True(t, ok, "create_room 应回发 room_joined")
	var joined dto.RoomJoined
	require.NoError(t, json.Unmarshal(data, &joined))
	require.NotEmpty(t, joined.RoomID)
	assert.Equal(t, playerID, joined.UserID)
	return joined.RoomID
}

func TestGateway_CreateAndJoinRoom(t *testing.T) {
	gw, reg, sender := newGateway(t, time.Second)

	roomID := createRoomVia(t, gw, sender, "p1", "小明")
	assert.Equal(t, 1, reg.Count())
	sender.mu.Lock()
	assert.Equal(t, roomID, sender.bindings["p1"])
	sender.mu.Unlock()

	gw.HandleMessage("p2", inbound(t, dto.EventJoinRoom, dto.JoinRoomPayload{RoomID: roomID, Nickname: "小红"}))
	data, ok := sender.directTo("p2", dto.EventRoomJoined)
	require.True(t, ok)
	var joined dto.RoomJoined
	require.NoError(t, json.Unmarshal(data, &joined))
	assert.Len(t, joined.Room.Players, 2)
	assert.Contains(t, sender.broadcastTypes(roomID), dto.EventUpdateRoom, "加入后应向全房间广播最新快照")
}

func TestGateway_JoinRoom_NotFound(t *testing.T) {
	gw, _, sender := newGateway(t, time.Second)

	gw.HandleMessage("p1", inbound(t, dto.EventJoinRoom, dto.JoinRoomPayload{RoomID: "NOPE", Nickname: "小明"}))
	data, ok := sender.directTo("p1", dto.EventError)
	require.True(t, ok, "加入不存在的房间应只给发起者回错误")
	var errPayload dto.ErrorPayload
	require.NoError(t, json.Unmarshal(data, &errPayload))
	assert.Equal(t, "房间不存在", errPayload.Message)
}

func TestGateway_StartGame_FanOut(t *testing.T) {
	gw, reg, sender := newGateway(t, time.Second)
	roomID := createRoomVia(t, gw, sender, "p1", "小明")
	gw.HandleMessage("p2", inbound(t, dto.EventJoinRoom, dto.JoinRoomPayload{RoomID: roomID, Nickname: "小红"}))
	sender.reset()

	gw.HandleMessage("p1", inbound(t, dto.EventStartGame, dto.StartGamePayload{RoomID: roomID}))

	types := sender.broadcastTypes(roomID)
	assert.Contains(t, types, dto.EventClearCanvas)
	assert.Contains(t, types, dto.EventGameStarted)

	// 候选词只发给画画的人
	room, ok := reg.Get(roomID)
	require.True(t, ok)
	drawerID := room.CurrentDrawerID()
	data, ok := sender.directTo(drawerID, dto.EventChooseWord)
	require.True(t, ok, "开局后画画的人应收到候选词")
	var choose dto.ChooseWord
	require.NoError(t, json.Unmarshal(data, &choose))
	assert.Len(t, choose.Choices, service.WordChoiceCount)
}

func TestGateway_StartGame_InsufficientPlayers(t *testing.T) {
	gw, _, sender := newGateway(t, time.Second)
	roomID := createRoomVia(t, gw, sender, "p1", "小明")

	gw.HandleMessage("p1", inbound(t, dto.EventStartGame, dto.StartGamePayload{RoomID: roomID}))
	data, ok := sender.directTo("p1", dto.EventError)
	require.True(t, ok)
	var errPayload dto.ErrorPayload
	require.NoError(t, json.Unmarshal(data, &errPayload))
	assert.Equal(t, "至少需要 2 名玩家才能开始游戏", errPayload.Message)
}

// startGameTo 把一个两人房间推进到 drawing 状态，返回画画的人和猜的人。
func startGameTo(t *testing.T, gw *gateway.Gateway, reg *registry.Registry, roomID, word string) (drawerID, guesserID string) {
	t.Helper()
	gw.HandleMessage("p1", inbound(t, dto.EventStartGame, dto.StartGamePayload{RoomID: roomID}))
	room, ok := reg.Get(roomID)
	require.True(t, ok)
	drawerID = room.CurrentDrawerID()
	guesserID = "p1"
	if drawerID == "p1" {
		guesserID = "p2"
	}
	gw.HandleMessage(drawerID, inbound(t, dto.EventWordSelected, dto.WordSelectedPayload{RoomID: roomID, Word: word}))
	return drawerID, guesserID
}

func TestGateway_WordSelected_FanOut(t *testing.T) {
	gw, reg, sender := newGateway(t, time.Second)
	roomID := createRoomVia(t, gw, sender, "p1", "小明")
	gw.HandleMessage("p2", inbound(t, dto.EventJoinRoom, dto.JoinRoomPayload{RoomID: roomID, Nickname: "小红"}))
	sender.reset()

	drawerID, _ := startGameTo(t, gw, reg, roomID, "长颈鹿")

	// round_start 只携带词长 (按 rune 计)，完整的词只发给画画的人
	found := false
	sender.mu.Lock()
	for _, m := range sender.messages {
		if m.RoomID == roomID && m.Type == dto.EventRoundStart {
			var rs dto.RoundStart
			require.NoError(t, json.Unmarshal(m.Data, &rs))
			assert.Equal(t, drawerID, rs.DrawerID)
			assert.Equal(t, 3, rs.WordLength)
			found = true
		}
	}
	sender.mu.Unlock()
	assert.True(t, found, "应广播 round_start")

	data, ok := sender.directTo(drawerID, dto.EventYourWord)
	require.True(t, ok)
	var yw dto.YourWord
	require.NoError(t, json.Unmarshal(data, &yw))
	assert.Equal(t, "长颈鹿", yw.Word)
}

func TestGateway_CorrectGuessEndsTurnAfterReveal(t *testing.T) {
	gw, reg, sender := newGateway(t, 20*time.Millisecond)
	roomID := createRoomVia(t, gw, sender, "p1", "小明")
	gw.HandleMessage("p2", inbound(t, dto.EventJoinRoom, dto.JoinRoomPayload{RoomID: roomID, Nickname: "小红"}))
	drawerID, guesserID := startGameTo(t, gw, reg, roomID, "猫")
	sender.reset()

	gw.HandleMessage(guesserID, inbound(t, dto.EventSendMessage, dto.SendMessagePayload{RoomID: roomID, Message: "猫"}))

	// 两人房一人猜对即回合结束：广播系统消息 + 快照 + 揭晓
	types := sender.broadcastTypes(roomID)
	assert.Contains(t, types, dto.EventChatMessage)
	assert.Contains(t, types, dto.EventUpdateRoom)
	assert.Contains(t, types, dto.EventTurnEnd)

	// 揭晓延迟后推进到下一回合，候选词发给新的画画的人 (原来猜的人)
	require.Eventually(t, func() bool {
		_, ok := sender.directTo(guesserID, dto.EventChooseWord)
		return ok
	}, time.Second, 5*time.Millisecond, "揭晓延迟后应把候选词发给下一位画画的人")

	room, ok := reg.Get(roomID)
	require.True(t, ok)
	assert.NotEqual(t, drawerID, room.CurrentDrawerID(), "画画的人应轮换")
	snapshot := room.Snapshot()
	assert.Equal(t, domain.StateSelecting, snapshot.GameState)
	assert.Equal(t, 1, snapshot.Round, "索引回绕前轮数不变")
}

func TestGateway_DrawerGuessRejected(t *testing.T) {
	gw, reg, sender := newGateway(t, time.Second)
	roomID := createRoomVia(t, gw, sender, "p1", "小明")
	gw.HandleMessage("p2", inbound(t, dto.EventJoinRoom, dto.JoinRoomPayload{RoomID: roomID, Nickname: "小红"}))
	drawerID, _ := startGameTo(t, gw, reg, roomID, "猫")
	sender.reset()

	gw.HandleMessage(drawerID, inbound(t, dto.EventSendMessage, dto.SendMessagePayload{RoomID: roomID, Message: "猫"}))

	data, ok := sender.directTo(drawerID, dto.EventChatMessage)
	require.True(t, ok, "提示只发给画画的人本人")
	var msg dto.ChatMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, "画画的人不能猜！", msg.Text)
	assert.Empty(t, sender.broadcastTypes(roomID), "画画的人的猜测不应广播")
}

func TestGateway_WrongGuessBroadcastAsChat(t *testing.T) {
	gw, reg, sender := newGateway(t, time.Second)
	roomID := createRoomVia(t, gw, sender, "p1", "小明")
	gw.HandleMessage("p2", inbound(t, dto.EventJoinRoom, dto.JoinRoomPayload{RoomID: roomID, Nickname: "小红"}))
	_, guesserID := startGameTo(t, gw, reg, roomID, "大象")
	sender.reset()

	gw.HandleMessage(guesserID, inbound(t, dto.EventSendMessage, dto.SendMessagePayload{RoomID: roomID, Message: "老虎"}))

	types := sender.broadcastTypes(roomID)
	assert.Contains(t, types, dto.EventChatMessage, "猜错的内容应按普通聊天广播")
	assert.NotContains(t, types, dto.EventTurnEnd)
}

func TestGateway_DrawDataRelayAndReplay(t *testing.T) {
	gw, reg, sender := newGateway(t, time.Second)
	roomID := createRoomVia(t, gw, sender, "p1", "小明")
	stroke := json.RawMessage(`{"x0":1,"y0":2,"x1":3,"y1":4}`)

	gw.HandleMessage("p1", inbound(t, dto.EventDrawData, dto.DrawDataPayload{RoomID: roomID, Data: domain.Stroke(stroke)}))

	// 笔画转发给房间里的其他人，不回发给画的人自己
	sender.mu.Lock()
	var relayed bool
	for _, m := range sender.messages {
		if m.RoomID == roomID && m.Type == dto.EventDrawData {
			assert.Equal(t, "p1", m.Except)
			relayed = true
		}
	}
	sender.mu.Unlock()
	assert.True(t, relayed)

	// 同时追加进回放缓存，供迟到玩家补画
	room, ok := reg.Get(roomID)
	require.True(t, ok)
	history := room.HistorySnapshot()
	require.Len(t, history, 1)
	assert.JSONEq(t, string(stroke), string(history[0]))

	gw.HandleMessage("p2", inbound(t, dto.EventJoinRoom, dto.JoinRoomPayload{RoomID: roomID, Nickname: "小红"}))
	data, okJoin := sender.directTo("p2", dto.EventRoomJoined)
	require.True(t, okJoin)
	var joined dto.RoomJoined
	require.NoError(t, json.Unmarshal(data, &joined))
	require.Len(t, joined.History, 1, "迟到的玩家应拿到笔画回放")

	// clear_canvas 清空回放缓存
	gw.HandleMessage("p1", inbound(t, dto.EventClearCanvas, dto.ClearCanvasPayload{RoomID: roomID}))
	assert.Empty(t, room.HistorySnapshot())
}

// threePlayerRoom 开好一个 p1/p2/p3 的三人房并固定画画顺序为 id 升序，
// 让离开场景的断言不依赖开局洗牌的结果。
func threePlayerRoom(t *testing.T, gw *gateway.Gateway, reg *registry.Registry, sender *fakeSender) (roomID string, room *domain.Room) {
	t.Helper()
	roomID = createRoomVia(t, gw, sender, "p1", "小明")
	gw.HandleMessage("p2", inbound(t, dto.EventJoinRoom, dto.JoinRoomPayload{RoomID: roomID, Nickname: "小红"}))
	gw.HandleMessage("p3", inbound(t, dto.EventJoinRoom, dto.JoinRoomPayload{RoomID: roomID, Nickname: "小刚"}))
	gw.HandleMessage("p1", inbound(t, dto.EventStartGame, dto.StartGamePayload{RoomID: roomID}))

	var ok bool
	room, ok = reg.Get(roomID)
	require.True(t, ok)
	room.Mu.Lock()
	sort.Slice(room.Players, func(i, j int) bool { return room.Players[i].ID < room.Players[j].ID })
	room.CurrentDrawerIndex = 0
	room.Mu.Unlock()
	return roomID, room
}

func TestGateway_DrawerLeavesMidTurn(t *testing.T) {
	// 画画的人在 drawing 阶段断开：接任画画的人要被移出已猜对集合，
	// 剩下的猜词人猜对后回合仍然能正常结束
	gw, reg, sender := newGateway(t, 10*time.Millisecond)
	roomID, room := threePlayerRoom(t, gw, reg, sender)
	gw.HandleMessage("p1", inbound(t, dto.EventWordSelected, dto.WordSelectedPayload{RoomID: roomID, Word: "猫"}))
	gw.HandleMessage("p2", inbound(t, dto.EventSendMessage, dto.SendMessagePayload{RoomID: roomID, Message: "猫"}))
	sender.reset()

	gw.HandleDisconnect("p1", roomID)

	assert.Equal(t, "p2", room.CurrentDrawerID(), "画画的人离开后由下一位接任")
	room.Mu.Lock()
	assert.False(t, room.GuessedPlayers["p2"], "接任画画的人不能留在已猜对集合里")
	assert.LessOrEqual(t, len(room.GuessedPlayers), len(room.Players)-1)
	assert.Equal(t, domain.StateDrawing, room.GameState)
	room.Mu.Unlock()

	gw.HandleMessage("p3", inbound(t, dto.EventSendMessage, dto.SendMessagePayload{RoomID: roomID, Message: "猫"}))
	assert.Contains(t, sender.broadcastTypes(roomID), dto.EventTurnEnd, "剩下的猜词人猜对后回合应结束")
	require.Eventually(t, func() bool {
		return room.Snapshot().GameState == domain.StateSelecting
	}, time.Second, time.Millisecond, "揭晓延迟后应进入下一回合的选词阶段")
}

func TestGateway_LastGuesserLeavesEndsTurn(t *testing.T) {
	// 唯一还没猜对的玩家离开后，剩余的非画画玩家都已猜对，回合应立即结束
	gw, reg, sender := newGateway(t, 10*time.Millisecond)
	roomID, room := threePlayerRoom(t, gw, reg, sender)
	gw.HandleMessage("p1", inbound(t, dto.EventWordSelected, dto.WordSelectedPayload{RoomID: roomID, Word: "猫"}))
	gw.HandleMessage("p2", inbound(t, dto.EventSendMessage, dto.SendMessagePayload{RoomID: roomID, Message: "猫"}))
	sender.reset()

	gw.HandleDisconnect("p3", roomID)

	assert.Contains(t, sender.broadcastTypes(roomID), dto.EventTurnEnd)
	require.Eventually(t, func() bool {
		return room.Snapshot().GameState == domain.StateSelecting
	}, time.Second, time.Millisecond)
	room.Mu.Lock()
	assert.Less(t, room.CurrentDrawerIndex, len(room.Players))
	room.Mu.Unlock()
}

func TestGateway_DrawerLeavesDuringSelecting(t *testing.T) {
	// 选词阶段画画的人断开：候选词要重新发给新的画画的人，房间不能卡住
	gw, reg, sender := newGateway(t, time.Second)
	roomID, room := threePlayerRoom(t, gw, reg, sender)
	sender.reset()

	gw.HandleDisconnect("p1", roomID)

	assert.Equal(t, "p2", room.CurrentDrawerID())
	data, ok := sender.directTo("p2", dto.EventChooseWord)
	require.True(t, ok, "新的画画的人应收到重发的候选词")
	var choose dto.ChooseWord
	require.NoError(t, json.Unmarshal(data, &choose))
	assert.Len(t, choose.Choices, service.WordChoiceCount)

	// 新的画画的人可以正常选词进入 drawing
	gw.HandleMessage("p2", inbound(t, dto.EventWordSelected, dto.WordSelectedPayload{RoomID: roomID, Word: "猫"}))
	room.Mu.Lock()
	assert.Equal(t, domain.StateDrawing, room.GameState)
	room.Mu.Unlock()
}

func TestGateway_NonMemberMessageDropped(t *testing.T) {
	gw, _, sender := newGateway(t, time.Second)
	roomID := createRoomVia(t, gw, sender, "p1", "小明")
	sender.reset()

	gw.HandleMessage("ghost", inbound(t, dto.EventSendMessage, dto.SendMessagePayload{RoomID: roomID, Message: "你好"}))

	sender.mu.Lock()
	defer sender.mu.Unlock()
	assert.Empty(t, sender.messages, "不在房间里的连接发的消息应被丢弃")
}

func TestGateway_DisconnectReassignsHostAndBroadcasts(t *testing.T) {
	gw, reg, sender := newGateway(t, time.Second)
	roomID := createRoomVia(t, gw, sender, "p1", "小明")
	gw.HandleMessage("p2", inbound(t, dto.EventJoinRoom, dto.JoinRoomPayload{RoomID: roomID, Nickname: "小红"}))
	sender.reset()

	gw.HandleDisconnect("p1", roomID)

	room, ok := reg.Get(roomID)
	require.True(t, ok)
	snapshot := room.Snapshot()
	assert.Equal(t, "p2", snapshot.HostID, "房主断开后应把房主转给剩余的第一个玩家")
	assert.Contains(t, sender.broadcastTypes(roomID), dto.EventUpdateRoom)
}

func TestGateway_RoomDeletedDuringRevealDelay(t *testing.T) {
	// 揭晓延迟期间房间被删除时，挂起的回合推进必须安全地变成 no-op
	gw, reg, sender := newGateway(t, 30*time.Millisecond)
	roomID := createRoomVia(t, gw, sender, "p1", "小明")
	gw.HandleMessage("p2", inbound(t, dto.EventJoinRoom, dto.JoinRoomPayload{RoomID: roomID, Nickname: "小红"}))
	_, guesserID := startGameTo(t, gw, reg, roomID, "猫")

	gw.HandleMessage(guesserID, inbound(t, dto.EventSendMessage, dto.SendMessagePayload{RoomID: roomID, Message: "猫"}))

	// 延迟还没到就全员离开
	gw.HandleDisconnect("p1", roomID)
	gw.HandleDisconnect("p2", roomID)
	require.Equal(t, 0, reg.Count())
	sender.reset()

	time.Sleep(100 * time.Millisecond)
	sender.mu.Lock()
	defer sender.mu.Unlock()
	assert.Empty(t, sender.messages, "房间删除后不应再有任何推送")
}

func TestGateway_FullGameReachesGameOver(t *testing.T) {
	gw, reg, sender := newGateway(t, time.Millisecond)
	roomID := createRoomVia(t, gw, sender, "p1", "小明")
	gw.HandleMessage("p2", inbound(t, dto.EventJoinRoom, dto.JoinRoomPayload{RoomID: roomID, Nickname: "小红"}))
	gw.HandleMessage("p1", inbound(t, dto.EventStartGame, dto.StartGamePayload{RoomID: roomID}))
	room, ok := reg.Get(roomID)
	require.True(t, ok)

	// 2 名玩家 x 3 轮 = 6 个回合，每个回合都由非画画的一方猜对结束
	for turn := 0; turn < 6; turn++ {
		require.Eventually(t, func() bool {
			return room.Snapshot().GameState == domain.StateSelecting
		}, time.Second, time.Millisecond, "第 %d 回合应进入选词阶段", turn+1)

		drawerID := room.CurrentDrawerID()
		guesserID := "p1"
		if drawerID == "p1" {
			guesserID = "p2"
		}
		word := fmt.Sprintf("词%d", turn)
		gw.HandleMessage(drawerID, inbound(t, dto.EventWordSelected, dto.WordSelectedPayload{RoomID: roomID, Word: word}))
		gw.HandleMessage(guesserID, inbound(t, dto.EventSendMessage, dto.SendMessagePayload{RoomID: roomID, Message: word}))

		if turn == 5 {
			require.Eventually(t, func() bool {
				return room.Snapshot().GameState == domain.StateEnded
			}, time.Second, time.Millisecond, "最后一个回合后应进入 ended 终态")
		}
	}

	assert.Contains(t, sender.broadcastTypes(roomID), dto.EventGameOver)
	snapshot := room.Snapshot()
	for _, p := range snapshot.Players {
		assert.Equal(t, 45, p.Score, "每人画 3 次被猜对 (+5x3)、猜对 3 次 (+10x3)")
	}
}
