package notifier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"okxbot/internal/pkg/circuit"
	"okxbot/internal/pkg/retry"
	"okxbot/internal/types"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTelegramRetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/bottoken/sendMessage", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "chat", body["chat_id"])
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	tg := NewTelegram("token", "chat")
	tg.APIBase = srv.URL
	tg.Policy = retry.New(3, time.Millisecond)
	require.NoError(t, tg.Send(context.Background(), "hello"))
	assert.Equal(t, int32(2), calls.Load())
}

func TestTelegramBreakerSkipsAfterFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	tg := NewTelegram("token", "chat")
	tg.APIBase = srv.URL
	tg.Policy = retry.New(1, 0)
	tg.Breaker = circuit.New("telegram", 2, time.Hour)

	assert.Error(t, tg.Send(context.Background(), "a"))
	assert.Error(t, tg.Send(context.Background(), "b"))
	assert.ErrorIs(t, tg.Send(context.Background(), "c"), circuit.ErrOpen)
	assert.Equal(t, int32(2), calls.Load())
}

func TestTelegramRequiresConfig(t *testing.T) {
	assert.Error(t, NewTelegram("", "").SendText("x"))
}

func TestEntryMessage(t *testing.T) {
	sl := decimal.RequireFromString("59500")
	msg := EntryMessage(types.TradeRecord{
		OrderID:    "ord-1",
		Instrument: "BTC-USDT-SWAP",
		Timeframe:  "1H",
		Side:       types.SideLong,
		Kind:       types.OrderMarket,
		Leverage:   10,
		Size:       decimal.NewFromInt(400),
		EnterPrice: decimal.NewFromInt(60000),
		SLPrice:    &sl,
		OpenTime:   time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}).RenderMarkdown()
	assert.Contains(t, msg, "开仓完成：BTC-USDT-SWAP 1H")
	assert.Contains(t, msg, "- SL 59500")
	assert.Contains(t, msg, "- OrderID ord-1")
	assert.NotContains(t, msg, "TP ")
}

type blockingNotifier struct {
	release chan struct{}
	mu      sync.Mutex
	texts   []string
}

func (b *blockingNotifier) SendText(text string) error {
	<-b.release
	b.mu.Lock()
	defer b.mu.Unlock()
	b.texts = append(b.texts, text)
	return nil
}

func TestAsyncDoesNotBlockCaller(t *testing.T) {
	inner := &blockingNotifier{release: make(chan struct{})}
	async := NewAsync(inner, 1)

	// 第一条被取走后阻塞在 inner，第二条占满队列，第三条被丢弃。
	require.NoError(t, async.SendText("a"))
	require.Eventually(t, func() bool { return len(async.queue) == 0 }, time.Second, time.Millisecond)
	require.NoError(t, async.SendText("b"))
	assert.ErrorIs(t, async.SendText("c"), ErrQueueFull)

	close(inner.release)
	async.Close()
	assert.Equal(t, []string{"a", "b"}, inner.texts)
	assert.ErrorIs(t, async.SendText("d"), ErrClosed)
	async.Close()
}
