// Package retry 提供有界、固定间隔的重试策略。
package retry

import (
	"context"
	"errors"
	"time"

	"okxbot/internal/logger"
)

// Context 描述一次重试循环的瞬时状态，不持久化。
type Context struct {
	Name        string
	Attempt     int
	MaxAttempts int
	Delay       time.Duration
	LastErr     error
}

// Policy 固定间隔、无抖动、无指数退避。
type Policy struct {
	Name       string
	MaxRetries int
	Delay      time.Duration
	// Retryable 为 nil 时所有错误都会重试。
	Retryable func(error) bool
	// OnRetry 在每次失败后（休眠前）回调。
	OnRetry func(Context)
}

func New(maxRetries int, delay time.Duration) Policy {
	return Policy{MaxRetries: maxRetries, Delay: delay}
}

// Named 返回一个带日志名称的副本。
func (p Policy) Named(name string) Policy {
	p.Name = name
	return p
}

// WithClassifier 返回一个使用给定错误分类器的副本。
func (p Policy) WithClassifier(fn func(error) bool) Policy {
	p.Retryable = fn
	return p
}

func (p Policy) attempts() int {
	if p.MaxRetries <= 0 {
		return 1
	}
	return p.MaxRetries
}

// Do 执行 op，失败时按固定间隔重试，直到次数耗尽后原样返回最后一个错误。
// 每次休眠都会响应 ctx 取消。
func Do[T any](ctx context.Context, p Policy, op func(context.Context) (T, error)) (T, error) {
	var zero T
	max := p.attempts()
	rc := Context{Name: p.Name, MaxAttempts: max, Delay: p.Delay}
	for attempt := 1; attempt <= max; attempt++ {
		if err := ctx.Err(); err != nil {
			if rc.LastErr != nil {
				return zero, rc.LastErr
			}
			return zero, err
		}
		rc.Attempt = attempt
		val, err := op(ctx)
		if err == nil {
			return val, nil
		}
		rc.LastErr = err
		if p.Retryable != nil && !p.Retryable(err) {
			return zero, err
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return zero, err
		}
		if p.OnRetry != nil {
			p.OnRetry(rc)
		}
		if attempt == max {
			break
		}
		logger.Warnf("[retry] %s attempt %d/%d failed: %v, retrying in %s", label(p.Name), attempt, max, err, p.Delay)
		if !sleepWithContext(ctx, p.Delay) {
			return zero, rc.LastErr
		}
	}
	logger.Errorf("[retry] %s failed after %d attempts: %v", label(p.Name), max, rc.LastErr)
	return zero, rc.LastErr
}

// Run 是 Do 的无返回值版本。
func Run(ctx context.Context, p Policy, op func(context.Context) error) error {
	_, err := Do(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

func label(name string) string {
	if name == "" {
		return "op"
	}
	return name
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
