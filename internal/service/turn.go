package service

import (
	"math/rand"

	"github.com/sirupsen/logrus"

	"draw-guess/internal/domain"
)

// WordChoiceCount 是每回合提供给画画玩家的候选词数量。
const WordChoiceCount = 3

// TurnEngine 负责房间的状态机推进：
// waiting → selecting → drawing → (selecting | ended)。
// 所有操作都是同步的纯内存状态变更，在房间锁内完成，无内部 I/O。
type TurnEngine struct{}

// NewTurnEngine 创建 TurnEngine 实例。
func NewTurnEngine() *TurnEngine {
	return &TurnEngine{}
}

// StartGame 从 waiting 状态开局。
// 玩家顺序会被均匀随机洗牌一次，之后整局游戏的画画轮换顺序保持不变。
// 返回发给第一位画画玩家的候选词 (可能有重复，见 randomChoices)。
func (e *TurnEngine) StartGame(room *domain.Room) ([]string, error) {
	room.Mu.Lock()
	defer room.Mu.Unlock()

	if room.GameState != domain.StateWaiting {
		return nil, ErrInvalidState
	}
	if len(room.Players) < 2 {
		return nil, ErrInsufficientPlayers
	}

	rand.Shuffle(len(room.Players), func(i, j int) {
		room.Players[i], room.Players[j] = room.Players[j], room.Players[i]
	})
	room.CurrentDrawerIndex = 0
	room.Round = 1
	room.DrawHistory = nil
	room.GuessedPlayers = make(map[string]bool)
	room.GameState = domain.StateSelecting

	choices := randomChoices(room, WordChoiceCount)
	room.WordChoices = choices

	logrus.WithFields(logrus.Fields{
		"room_id": room.ID,
		"players": len(room.Players),
		"rounds":  room.MaxRounds,
	}).Info("Game started")
	return choices, nil
}

// SelectWord 由画画的人确定本回合的秘密词，进入 drawing 状态。
// 不校验 word 是否出自候选词，服务端信任画画客户端的提交。
func (e *TurnEngine) SelectWord(room *domain.Room, word string) error {
	room.Mu.Lock()
	defer room.Mu.Unlock()

	if room.GameState != domain.StateSelecting {
		return ErrInvalidState
	}
	room.CurrentWord = word
	room.WordChoices = nil
	room.GuessedPlayers = make(map[string]bool)
	room.GameState = domain.StateDrawing

	logrus.WithField("room_id", room.ID).Info("Word selected, drawing phase started")
	return nil
}

// RedealChoices 在 selecting 状态下重新生成一组候选词。
// 用于画画的人在选词阶段离开房间后，把选词权交给新的画画的人。
func (e *TurnEngine) RedealChoices(room *domain.Room) ([]string, error) {
	room.Mu.Lock()
	defer room.Mu.Unlock()

	if room.GameState != domain.StateSelecting {
		return nil, ErrInvalidState
	}
	choices := randomChoices(room, WordChoiceCount)
	room.WordChoices = choices

	logrus.WithField("room_id", room.ID).Info("Word choices redealt")
	return choices, nil
}

// AdvanceTurn 在一个回合结束后推进到下一回合。
// 画画索引加一，越过最后一名玩家时回绕到 0 并把轮数加一；
// 轮数超过上限时进入 ended 终态并返回 ended=true。
// 否则回到 selecting，清空回放缓存/当前词/已猜对集合，
// 并返回发给下一位画画玩家的候选词。
func (e *TurnEngine) AdvanceTurn(room *domain.Room) (choices []string, ended bool, err error) {
	room.Mu.Lock()
	defer room.Mu.Unlock()

	if room.GameState != domain.StateDrawing && room.GameState != domain.StateSelecting {
		return nil, false, ErrInvalidState
	}

	room.CurrentDrawerIndex++
	if room.CurrentDrawerIndex >= len(room.Players) {
		room.CurrentDrawerIndex = 0
		room.Round++
	}

	logCtx := logrus.WithFields(logrus.Fields{
		"room_id":      room.ID,
		"round":        room.Round,
		"drawer_index": room.CurrentDrawerIndex,
	})

	if room.Round > room.MaxRounds {
		room.GameState = domain.StateEnded
		room.CurrentWord = ""
		room.WordChoices = nil
		logCtx.Info("Max rounds reached, game over")
		return nil, true, nil
	}

	room.GameState = domain.StateSelecting
	room.DrawHistory = nil
	room.CurrentWord = ""
	room.GuessedPlayers = make(map[string]bool)

	choices = randomChoices(room, WordChoiceCount)
	room.WordChoices = choices
	logCtx.Info("Turn advanced")
	return choices, false, nil
}

// randomChoices 从房间词库独立均匀地抽取 n 个词，调用方必须持有房间锁。
// 抽取是有放回的，n 个候选之间允许重复。
func randomChoices(room *domain.Room, n int) []string {
	if len(room.Words) == 0 {
		return nil
	}
	choices := make([]string, n)
	for i := range choices {
		choices[i] = room.Words[rand.Intn(len(room.Words))]
	}
	return choices
}
