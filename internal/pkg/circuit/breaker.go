// Package circuit 提供简单的熔断器：连续失败达到阈值后在冷却期内拒绝调用。
package circuit

import (
	"errors"
	"sync"
	"time"

	"okxbot/internal/logger"
)

// ErrOpen 表示熔断器处于打开状态，调用被跳过。
var ErrOpen = errors.New("circuit open")

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF-OPEN"
	default:
		return "UNKNOWN"
	}
}

type Breaker struct {
	mu          sync.Mutex
	name        string
	state       State
	failures    int
	threshold   int
	cooldown    time.Duration
	lastFailure time.Time
	now         func() time.Time
	log         *logger.Entry

	// OnStateChange 在锁外同步回调。
	OnStateChange func(name string, from, to State)
}

func New(name string, threshold int, cooldown time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = 1
	}
	return &Breaker{
		name:      name,
		threshold: threshold,
		cooldown:  cooldown,
		now:       time.Now,
		log:       logger.With("circuit"),
	}
}

// SetClock overrides the timestamp source for testing.
func (b *Breaker) SetClock(now func() time.Time) {
	if now != nil {
		b.now = now
	}
}

func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Allow 报告本次调用是否放行。打开状态超过冷却期后进入半开，放行一次试探。
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	var changed func()
	allowed := true
	if b.state == StateOpen {
		if b.now().Sub(b.lastFailure) >= b.cooldown {
			changed = b.transition(StateHalfOpen)
		} else {
			allowed = false
		}
	}
	b.mu.Unlock()
	if changed != nil {
		changed()
	}
	return allowed
}

func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	b.failures = 0
	var changed func()
	if b.state != StateClosed {
		changed = b.transition(StateClosed)
	}
	b.mu.Unlock()
	if changed != nil {
		changed()
	}
}

func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	b.failures++
	b.lastFailure = b.now()
	var changed func()
	switch b.state {
	case StateClosed:
		if b.failures >= b.threshold {
			changed = b.transition(StateOpen)
		}
	case StateHalfOpen:
		changed = b.transition(StateOpen)
	}
	b.mu.Unlock()
	if changed != nil {
		changed()
	}
}

// Do 在放行时执行 fn 并记录结果；未放行返回 ErrOpen。
func (b *Breaker) Do(fn func() error) error {
	if !b.Allow() {
		return ErrOpen
	}
	if err := fn(); err != nil {
		b.RecordFailure()
		return err
	}
	b.RecordSuccess()
	return nil
}

// transition 须在持锁时调用，返回锁外执行的回调。
func (b *Breaker) transition(to State) func() {
	from := b.state
	b.state = to
	failures := b.failures
	return func() {
		b.log.Warnf("%s: %s -> %s (failures=%d/%d, cooldown=%s)", b.name, from, to, failures, b.threshold, b.cooldown)
		if b.OnStateChange != nil {
			b.OnStateChange(b.name, from, to)
		}
	}
}
