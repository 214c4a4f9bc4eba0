package service

import (
	"github.com/agnivade/levenshtein"
	"github.com/sirupsen/logrus"

	"draw-guess/internal/domain"
)

// 记分规则：猜对的人 +10，画画的人每被猜对一次 +5。
const (
	guesserPoints = 10
	drawerPoints  = 5
)

// closeGuessDistance 是触发 "接近了" 提示的最大编辑距离。
const closeGuessDistance = 2

// GuessCategory 是一条聊天消息经过判定后的类别。
type GuessCategory string

const (
	GuessChat            GuessCategory = "chat"             // 普通聊天，原样广播
	GuessCorrect         GuessCategory = "correct"          // 猜对了
	GuessAlreadyCorrect  GuessCategory = "already_correct"  // 本回合已经猜对过
	GuessDrawerForbidden GuessCategory = "drawer_forbidden" // 画画的人不能猜
)

// GuessResult 是一次猜词判定的结果。
// EndsTurn 只在所有非画画玩家都已猜对时为 true；
// 判定器本身从不推进回合，回合推进由 Session Gateway 在揭晓延迟后触发。
type GuessResult struct {
	Category GuessCategory
	EndsTurn bool
	// Close 表示这条错误猜测与秘密词的编辑距离在阈值内，
	// 只用于给发送者本人一条 "很接近" 的提示，不影响消息类别。
	Close bool
}

// GuessEvaluator 判定猜词、维护得分和本回合已猜对集合。
type GuessEvaluator struct{}

// NewGuessEvaluator 创建 GuessEvaluator 实例。
func NewGuessEvaluator() *GuessEvaluator {
	return &GuessEvaluator{}
}

// Evaluate 按优先级判定一条消息：
//  1. 房间不在 drawing 状态时完全不当作猜词，按普通聊天处理；
//  2. 发送者是画画的人 → drawer_forbidden，状态不变；
//  3. 发送者本回合已猜对 → already_correct，状态不变；
//  4. 文本与秘密词完全相等 (区分大小写，不做任何归一化) → correct，
//     记分并加入已猜对集合；所有非画画玩家都猜对时 EndsTurn=true；
//  5. 其余情况按普通聊天广播，允许擦边闲聊而不暴露答案。
func (ev *GuessEvaluator) Evaluate(room *domain.Room, playerID, text string) GuessResult {
	room.Mu.Lock()
	defer room.Mu.Unlock()

	if room.GameState != domain.StateDrawing {
		return GuessResult{Category: GuessChat}
	}

	drawer := room.CurrentDrawer()
	if drawer != nil && drawer.ID == playerID {
		return GuessResult{Category: GuessDrawerForbidden}
	}
	if room.GuessedPlayers[playerID] {
		return GuessResult{Category: GuessAlreadyCorrect}
	}

	player := room.FindPlayer(playerID)
	if player == nil {
		// 不在房间里的发送者无从记分，按聊天处理
		return GuessResult{Category: GuessChat}
	}

	if text == room.CurrentWord {
		player.Score += guesserPoints
		if drawer != nil {
			drawer.Score += drawerPoints
		}
		room.GuessedPlayers[playerID] = true

		result := GuessResult{Category: GuessCorrect}
		// 离开房间会缩小 players，用 >= 保证阈值不会被越过
		if len(room.GuessedPlayers) >= len(room.Players)-1 {
			result.EndsTurn = true
		}
		logrus.WithFields(logrus.Fields{
			"room_id":   room.ID,
			"player_id": playerID,
			"guessed":   len(room.GuessedPlayers),
			"ends_turn": result.EndsTurn,
		}).Info("Correct guess")
		return result
	}

	result := GuessResult{Category: GuessChat}
	if dist := levenshtein.ComputeDistance(text, room.CurrentWord); dist > 0 && dist <= closeGuessDistance {
		result.Close = true
	}
	return result
}
