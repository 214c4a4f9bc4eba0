package gateway

import (
	"sync"
	"time"
)

// turnTimers 按房间 id 管理挂起的回合推进任务。
// 每个房间同一时刻最多一个挂起任务；重复调度会先取消旧任务，
// 房间被删除时由 Gateway 调用 Cancel，让挂起的续段安全地变成 no-op。
type turnTimers struct {
	mu     sync.Mutex
	timers map[string]*time.Timer
}

func newTurnTimers() *turnTimers {
	return &turnTimers{timers: make(map[string]*time.Timer)}
}

// Schedule 在 d 之后执行 fn。fn 在定时器自己的 goroutine 上运行，
// 执行前先把自己从表里摘掉。
func (t *turnTimers) Schedule(roomID string, d time.Duration, fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if old, ok := t.timers[roomID]; ok {
		old.Stop()
	}
	t.timers[roomID] = time.AfterFunc(d, func() {
		t.mu.Lock()
		delete(t.timers, roomID)
		t.mu.Unlock()
		fn()
	})
}

// Cancel 取消房间的挂起任务 (如果有)。
func (t *turnTimers) Cancel(roomID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if timer, ok := t.timers[roomID]; ok {
		timer.Stop()
		delete(t.timers, roomID)
	}
}
