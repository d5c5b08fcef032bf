package capture

import (
	"sync"
	"time"
)

// reconnectTask is one scheduled reconnection of the detection channel.
// Cancel guarantees the task will not fire a dial afterwards.
type reconnectTask struct {
	sessionID string

	mu        sync.Mutex
	cancelled bool
	timer     *time.Timer
}

func scheduleReconnect(sessionID string, delay time.Duration, fire func(*reconnectTask)) *reconnectTask {
	t := &reconnectTask{sessionID: sessionID}

	t.mu.Lock()
	t.timer = time.AfterFunc(delay, func() {
		if !t.Cancelled() {
			fire(t)
		}
	})
	t.mu.Unlock()

	return t
}

func (t *reconnectTask) Cancel() {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	t.cancelled = true
	if t.timer != nil {
		t.timer.Stop()
	}
}

func (t *reconnectTask) Cancelled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancelled
}
