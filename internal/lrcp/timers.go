package lrcp

import (
	"sync/atomic"
	"time"
)

// Timers holds the two tunable LRCP intervals as lock-free durations so
// a config reload can retune a running Router without restarting any
// session. Both default to the values spec.md §6 suggests.
type Timers struct {
	retransmit atomic.Int64
	idle       atomic.Int64
}

// NewTimers returns Timers seeded with the spec's suggested defaults:
// a 3 second retransmission interval and a 60 second idle expiry.
func NewTimers() *Timers {
	t := &Timers{}
	t.SetRetransmit(3 * time.Second)
	t.SetIdle(60 * time.Second)
	return t
}

func (t *Timers) Retransmit() time.Duration {
	return time.Duration(t.retransmit.Load())
}

func (t *Timers) SetRetransmit(d time.Duration) {
	t.retransmit.Store(int64(d))
}

func (t *Timers) Idle() time.Duration {
	return time.Duration(t.idle.Load())
}

func (t *Timers) SetIdle(d time.Duration) {
	t.idle.Store(int64(d))
}
