package notifier

import (
	"errors"
	"sync"

	"okxbot/internal/logger"
)

// ErrQueueFull 表示发送队列已满，消息被丢弃。
var ErrQueueFull = errors.New("notifier queue full")

// ErrClosed 表示队列已关闭。
var ErrClosed = errors.New("notifier closed")

// Async 把消息放进缓冲队列，由单个 goroutine 顺序投递给 next，
// 调用方不会被 Telegram 的重试与超时拖住。
type Async struct {
	next  TextNotifier
	queue chan string
	done  chan struct{}

	mu     sync.RWMutex
	closed bool
	log    *logger.Entry
}

func NewAsync(next TextNotifier, size int) *Async {
	if size <= 0 {
		size = 64
	}
	a := &Async{
		next:  next,
		queue: make(chan string, size),
		done:  make(chan struct{}),
		log:   logger.With("notifier"),
	}
	go a.loop()
	return a
}

func (a *Async) loop() {
	defer close(a.done)
	for text := range a.queue {
		if err := a.next.SendText(text); err != nil {
			a.log.Warnf("推送失败: %v", err)
		}
	}
}

// SendText 入队后立即返回；队列满时返回 ErrQueueFull。
func (a *Async) SendText(text string) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return ErrClosed
	}
	select {
	case a.queue <- text:
		return nil
	default:
		a.log.Warnf("队列已满，丢弃一条推送")
		return ErrQueueFull
	}
}

// Close 停止接收新消息，并等待已入队的消息发完。
func (a *Async) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		<-a.done
		return
	}
	a.closed = true
	close(a.queue)
	a.mu.Unlock()
	<-a.done
}
