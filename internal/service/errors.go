package service

import "errors"

// 业务错误集合。所有错误对调用方都是可恢复的：
// Session Gateway 把它们转成只发给发起者的提示消息，不影响房间里的其他人。
var (
	ErrInvalidState        = errors.New("operation not allowed in current game state")
	ErrInsufficientPlayers = errors.New("at least two players are required to start")
)
