package kiosk

import (
	"math"
	"time"
)

type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type Timer interface {
	Stop() bool
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// countdown 自动确认 / 空闲超时计时器。字段由所属会话的锁保护。
// 每次 reset/stop 都会递增 gen，过期回调据此丢弃已作废的触发。
type countdown struct {
	clock    Clock
	d        time.Duration
	fire     func(gen uint64)
	gen      uint64
	timer    Timer
	deadline time.Time
}

func newCountdown(clock Clock, d time.Duration, fire func(gen uint64)) *countdown {
	return &countdown{clock: clock, d: d, fire: fire}
}

func (c *countdown) reset() {
	c.stop()
	gen := c.gen
	c.deadline = c.clock.Now().Add(c.d)
	c.timer = c.clock.AfterFunc(c.d, func() { c.fire(gen) })
}

func (c *countdown) stop() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.gen++
}

func (c *countdown) running() bool { return c.timer != nil }

// current 过期回调（已持锁）判断自己是否仍有效
func (c *countdown) current(gen uint64) bool { return c.running() && c.gen == gen }

// remaining 剩余秒数（向上取整），未启动时为 0
func (c *countdown) remaining() int {
	if !c.running() {
		return 0
	}
	left := c.deadline.Sub(c.clock.Now())
	if left <= 0 {
		return 0
	}
	return int(math.Ceil(left.Seconds()))
}
