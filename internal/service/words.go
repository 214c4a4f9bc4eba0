package service

import (
	"strings"

	"github.com/sirupsen/logrus"

	"draw-guess/internal/registry"
)

// WordService 负责房间词库的维护。
// 词库内容只做去重，不做其他校验，词库被当作外部数据源看待。
type WordService struct {
	reg *registry.Registry
}

// NewWordService 创建 WordService 实例。
func NewWordService(reg *registry.Registry) *WordService {
	if reg == nil {
		panic("Registry cannot be nil for WordService")
	}
	return &WordService{reg: reg}
}

// MergeWords 把新词合并进指定房间的词库，按集合语义去重，
// 已有词的顺序保持不变。房间不存在时返回 registry.ErrRoomNotFound。
func (s *WordService) MergeWords(roomID string, words []string) error {
	room, ok := s.reg.Get(roomID)
	if !ok {
		return registry.ErrRoomNotFound
	}

	room.Mu.Lock()
	defer room.Mu.Unlock()

	seen := make(map[string]bool, len(room.Words))
	for _, w := range room.Words {
		seen[w] = true
	}
	added := 0
	for _, w := range words {
		w = strings.TrimSpace(w)
		if w == "" || seen[w] {
			continue
		}
		seen[w] = true
		room.Words = append(room.Words, w)
		added++
	}

	logrus.WithFields(logrus.Fields{
		"room_id": roomID,
		"added":   added,
		"total":   len(room.Words),
	}).Info("Room word list merged")
	return nil
}
