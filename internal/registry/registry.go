// Package registry 维护房间 id 到 Room 聚合的映射。
// 它是进程内唯一的跨房间共享状态，map 的插入/查找/删除都在
// 自身的锁保护下进行；房间内部状态则由每个 Room 自己的锁保护。
package registry

import (
	"crypto/rand"
	"fmt"
	mrand "math/rand"
	"sync"

	"github.com/sirupsen/logrus"

	"draw-guess/internal/domain"
)

// Registry 持有所有存活的房间。
// 通过依赖注入的方式传给上层组件，而不是包级单例，方便测试隔离。
type Registry struct {
	mu        sync.RWMutex
	rooms     map[string]*domain.Room
	maxRounds int
}

// New 创建一个空的 Registry。maxRounds 是新房间的固定轮数配置。
func New(maxRounds int) *Registry {
	if maxRounds <= 0 {
		maxRounds = 3
	}
	return &Registry{
		rooms:     make(map[string]*domain.Room),
		maxRounds: maxRounds,
	}
}

// CreateRoom 创建一个新房间，初始状态为 waiting，玩家列表为空，
// 默认词库拷贝为房间词库。房间 id 已存在时返回 ErrRoomExists。
func (r *Registry) CreateRoom(id, hostID, hostName string) (*domain.Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.rooms[id]; ok {
		return nil, fmt.Errorf("create room %q: %w", id, ErrRoomExists)
	}

	words := make([]string, len(domain.DefaultWords))
	copy(words, domain.DefaultWords)

	room := &domain.Room{
		ID:             id,
		HostID:         hostID,
		Players:        []*domain.Player{},
		GameState:      domain.StateWaiting,
		MaxRounds:      r.maxRounds,
		GuessedPlayers: make(map[string]bool),
		Words:          words,
	}
	r.rooms[id] = room

	logrus.WithFields(logrus.Fields{
		"room_id": id,
		"host_id": hostID,
		"host":    hostName,
	}).Info("Room created")
	return room, nil
}

// Get 查找房间。
func (r *Registry) Get(id string) (*domain.Room, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room, ok := r.rooms[id]
	return room, ok
}

// Count 返回当前存活的房间数。
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

// JoinRoom 把玩家加入房间。对同一 playerID 幂等：
// 带着相同 id 重复加入不会产生重复玩家 (支持断线后用同一标识重连)，
// 头像编号只在玩家第一次加入时随机分配。
func (r *Registry) JoinRoom(id, playerID, name string) (*domain.Room, error) {
	r.mu.RLock()
	room, ok := r.rooms[id]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("join room %q: %w", id, ErrRoomNotFound)
	}

	room.Mu.Lock()
	defer room.Mu.Unlock()

	if existing := room.FindPlayer(playerID); existing != nil {
		return room, nil
	}
	room.Players = append(room.Players, &domain.Player{
		ID:     playerID,
		Name:   truncateName(name),
		Avatar: mrand.Intn(domain.AvatarCount),
	})
	logrus.WithFields(logrus.Fields{
		"room_id":   id,
		"player_id": playerID,
		"players":   len(room.Players),
	}).Info("Player joined room")
	return room, nil
}

// LeaveRoom 把玩家移出房间。玩家或房间不存在时是 no-op。
// 离开的是房主时，把房主转给剩余玩家中的第一个 (按顺序确定)；
// 房间因此变空时直接删除，返回 (nil, true)。
//
// 为了保持 "players 非空且状态不是 waiting 时画画索引始终有效" 的不变式，
// 被移除的玩家排在当前画画的人前面时索引前移一位，越界时回绕到 0；
// 修复后指向的玩家会被移出已猜对集合 (画画的人不能出现在里面)。
func (r *Registry) LeaveRoom(id, playerID string) (*domain.Room, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[id]
	if !ok {
		return nil, false
	}

	room.Mu.Lock()
	defer room.Mu.Unlock()

	idx := -1
	for i, p := range room.Players {
		if p.ID == playerID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return room, false
	}

	room.Players = append(room.Players[:idx], room.Players[idx+1:]...)
	delete(room.GuessedPlayers, playerID)

	logCtx := logrus.WithFields(logrus.Fields{
		"room_id":   id,
		"player_id": playerID,
		"players":   len(room.Players),
	})

	if len(room.Players) == 0 {
		delete(r.rooms, id)
		logCtx.Info("Room empty, deleted from registry")
		return nil, true
	}

	if idx < room.CurrentDrawerIndex {
		room.CurrentDrawerIndex--
	}
	if room.CurrentDrawerIndex >= len(room.Players) {
		room.CurrentDrawerIndex = 0
	}
	// 修复后的画画的人不能留在已猜对集合里
	if drawer := room.CurrentDrawer(); drawer != nil {
		delete(room.GuessedPlayers, drawer.ID)
	}
	if room.HostID == playerID {
		room.HostID = room.Players[0].ID
		logCtx = logCtx.WithField("new_host", room.HostID)
	}
	logCtx.Info("Player left room")
	return room, false
}

// 房间码字符集与长度，对应客户端可以手输的短邀请码。
const (
	codeAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	codeLength   = 6
	maxCodeTries = 10
)

// NewRoomCode 生成一个在存活房间中唯一的房间码。
func (r *Registry) NewRoomCode() (string, error) {
	b := make([]byte, codeLength)
	for attempt := 0; attempt < maxCodeTries; attempt++ {
		if _, err := rand.Read(b); err != nil {
			return "", fmt.Errorf("failed to generate random bytes: %w", err)
		}
		for i := range b {
			b[i] = codeAlphabet[int(b[i])%len(codeAlphabet)]
		}
		code := string(b)

		if _, taken := r.Get(code); !taken {
			return code, nil
		}
		logrus.WithField("room_code", code).Warnf("Generated room code already exists, retrying (attempt %d)...", attempt+1)
	}
	return "", fmt.Errorf("failed to generate a unique room code after %d attempts", maxCodeTries)
}

func truncateName(name string) string {
	runes := []rune(name)
	if len(runes) > domain.MaxNameLength {
		return string(runes[:domain.MaxNameLength])
	}
	return name
}
