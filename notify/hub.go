package notify

import (
	"sync"
	"time"

	"Gin_postgres_redis_gear_kiosk/models"
)

// Snapshot 某一时刻全部 open 借用
type Snapshot struct {
	Version    uint64             `json:"version"`
	At         time.Time          `json:"at"`
	Borrowings []models.Borrowing `json:"borrowings"`
}

// Hub 持有最新快照并广播给订阅者。慢订阅者只会拿到最新的一份，不排队。
type Hub struct {
	mu   sync.Mutex
	cur  Snapshot
	subs map[chan Snapshot]struct{}
	now  func() time.Time
}

func NewHub() *Hub {
	return &Hub{
		cur:  Snapshot{Borrowings: []models.Borrowing{}},
		subs: make(map[chan Snapshot]struct{}),
		now:  time.Now,
	}
}

func (h *Hub) Current() Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cur
}

func (h *Hub) Publish(bs []models.Borrowing) Snapshot {
	if bs == nil {
		bs = []models.Borrowing{}
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cur = Snapshot{Version: h.cur.Version + 1, At: h.now(), Borrowings: bs}
	for ch := range h.subs {
		offer(ch, h.cur)
	}
	return h.cur
}

// offer 只在持锁时调用；hub 是唯一发送方，清空后再发不会阻塞
func offer(ch chan Snapshot, s Snapshot) {
	select {
	case ch <- s:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	ch <- s
}

// Subscribe 立即收到当前快照；调用返回的 cancel 退订
func (h *Hub) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	offer(ch, h.cur)
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, ch)
			h.mu.Unlock()
		})
	}
}

func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
