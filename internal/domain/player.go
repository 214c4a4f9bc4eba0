package domain

// MaxNameLength 是玩家昵称允许的最大长度 (按 rune 计)。
const MaxNameLength = 10

// AvatarCount 是可选头像的数量，头像编号范围为 [0, AvatarCount)。
const AvatarCount = 10

// Player 表示房间内的一名玩家。
// 每个 Player 只属于一个 Room，加入时创建，离开时删除。
type Player struct {
	ID     string `json:"id"`     // 连接级别的稳定标识符
	Name   string `json:"name"`   // 昵称，最长 10 个字符
	Score  int    `json:"score"`  // 累计得分，一局游戏内单调不减
	Avatar int    `json:"avatar"` // 头像编号 (0-9)，加入时随机分配，仅用于展示
}
