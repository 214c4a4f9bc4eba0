package domain

import (
	"encoding/json"
	"sync"
)

// GameState 表示房间状态机的当前状态。
type GameState string

const (
	StateWaiting   GameState = "waiting"   // 等待开始
	StateSelecting GameState = "selecting" // 画画的人正在选词
	StateDrawing   GameState = "drawing"   // 绘画/猜词进行中
	StateEnded     GameState = "ended"     // 游戏结束 (终态)
)

// Stroke 是一段笔画数据。服务器不解析其内容，
// 只负责转发给其他客户端并缓存下来用于迟到玩家的回放。
type Stroke = json.RawMessage

// Room 表示一局你画我猜游戏会话的聚合根。
//
// Players 的顺序即画画轮换顺序，开局洗牌后在整局游戏中保持稳定。
// 除带锁的快照方法外，所有字段的读写都必须持有 Mu；
// 每个房间同一时刻只允许一个逻辑操作在修改状态，不同房间之间完全独立。
type Room struct {
	Mu sync.Mutex

	ID                 string
	HostID             string // 必须指向某个在场玩家；房间为空时无意义
	Players            []*Player
	GameState          GameState
	CurrentDrawerIndex int    // 仅在 GameState != waiting 时有意义
	CurrentWord        string // 仅在 drawing 状态非空；不会出现在快照中
	Round              int    // 从 0 开始，画画顺序每轮完整转完一圈加 1
	MaxRounds          int
	DrawHistory        []Stroke
	WordChoices        []string
	GuessedPlayers     map[string]bool // 本回合已猜对的玩家 id，不含画画的人
	Words              []string        // 默认词库 + 房主上传的补充词，去重
}

// FindPlayer 返回指定 id 的玩家，不存在时返回 nil。调用方必须持有 Mu。
func (r *Room) FindPlayer(id string) *Player {
	for _, p := range r.Players {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// CurrentDrawer 返回当前画画的玩家，索引无效时返回 nil。调用方必须持有 Mu。
func (r *Room) CurrentDrawer() *Player {
	if r.CurrentDrawerIndex < 0 || r.CurrentDrawerIndex >= len(r.Players) {
		return nil
	}
	return r.Players[r.CurrentDrawerIndex]
}

// CurrentDrawerID 返回当前画画玩家的 id，没有时返回空字符串。
func (r *Room) CurrentDrawerID() string {
	r.Mu.Lock()
	defer r.Mu.Unlock()
	if drawer := r.CurrentDrawer(); drawer != nil {
		return drawer.ID
	}
	return ""
}

// Word 返回当前的秘密词。
func (r *Room) Word() string {
	r.Mu.Lock()
	defer r.Mu.Unlock()
	return r.CurrentWord
}

// AppendStroke 把一段笔画追加到回放缓存。
func (r *Room) AppendStroke(s Stroke) {
	r.Mu.Lock()
	defer r.Mu.Unlock()
	r.DrawHistory = append(r.DrawHistory, s)
}

// ClearHistory 清空回放缓存。
func (r *Room) ClearHistory() {
	r.Mu.Lock()
	defer r.Mu.Unlock()
	r.DrawHistory = nil
}

// HistorySnapshot 返回回放缓存的一个副本，供迟到玩家补画。
func (r *Room) HistorySnapshot() []Stroke {
	r.Mu.Lock()
	defer r.Mu.Unlock()
	history := make([]Stroke, len(r.DrawHistory))
	copy(history, r.DrawHistory)
	return history
}

// RoomSnapshot 是推送给客户端的房间视图。
// 当前的秘密词被刻意排除在外，只通过 your_word 发给画画的人本人。
type RoomSnapshot struct {
	ID                 string    `json:"id"`
	HostID             string    `json:"hostId"`
	Players            []Player  `json:"players"`
	GameState          GameState `json:"gameState"`
	CurrentDrawerIndex int       `json:"currentDrawerIndex"`
	Round              int       `json:"round"`
	MaxRounds          int       `json:"maxRounds"`
	GuessedPlayers     []string  `json:"guessedPlayers"`
}

// Snapshot 在房间锁内生成一份深拷贝视图，可以在锁外安全地序列化和发送。
func (r *Room) Snapshot() *RoomSnapshot {
	r.Mu.Lock()
	defer r.Mu.Unlock()

	players := make([]Player, len(r.Players))
	for i, p := range r.Players {
		players[i] = *p
	}
	guessed := make([]string, 0, len(r.GuessedPlayers))
	for _, p := range r.Players {
		if r.GuessedPlayers[p.ID] {
			guessed = append(guessed, p.ID)
		}
	}
	return &RoomSnapshot{
		ID:                 r.ID,
		HostID:             r.HostID,
		Players:            players,
		GameState:          r.GameState,
		CurrentDrawerIndex: r.CurrentDrawerIndex,
		Round:              r.Round,
		MaxRounds:          r.MaxRounds,
		GuessedPlayers:     guessed,
	}
}
