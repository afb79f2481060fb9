package livehttp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"okxbot/internal/executor"
	"okxbot/internal/gateway/okx"
	"okxbot/internal/listener"
	"okxbot/internal/store"
	"okxbot/internal/store/gormstore"
	"okxbot/internal/store/redistier"
	"okxbot/internal/types"

	"github.com/alicebob/miniredis/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/zeromicro/go-zero/core/stores/redis"
)

type mockEntries struct {
	mock.Mock
}

func (m *mockEntries) Enter(ctx context.Context, req executor.EntryRequest) (types.TradeRecord, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(types.TradeRecord), args.Error(1)
}

func (m *mockEntries) AmendStopLoss(ctx context.Context, key types.PositionKey, price decimal.Decimal) error {
	return m.Called(ctx, key, price).Error(0)
}

func (m *mockEntries) AmendTakeProfit(ctx context.Context, key types.PositionKey, price decimal.Decimal) error {
	return m.Called(ctx, key, price).Error(0)
}

type staticListener struct{ stats listener.Stats }

func (s staticListener) Stats() listener.Stats { return s.stats }

func newTestServer(t *testing.T) (*Server, *store.Store, *mockEntries) {
	t.Helper()
	mr := miniredis.RunT(t)
	rds := redis.MustNewRedis(redis.RedisConf{Host: mr.Addr(), Type: redis.NodeType})
	durable, err := gormstore.NewGormStore(filepath.Join(t.TempDir(), "okxbot.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = durable.Close() })
	st := store.New(redistier.NewFromClient(rds), durable)

	entries := &mockEntries{}
	srv, err := NewServer(ServerConfig{
		State:    st,
		Entries:  entries,
		Listener: staticListener{stats: listener.Stats{State: listener.StateListening, Reconnects: 2}},
	})
	require.NoError(t, err)
	return srv, st, entries
}

func do(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w
}

func TestHealthAndMetrics(t *testing.T) {
	srv, _, _ := newTestServer(t)
	assert.Equal(t, http.StatusOK, do(t, srv, http.MethodGet, "/healthz", nil).Code)
	w := do(t, srv, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

func TestHealthReportsFailingDependency(t *testing.T) {
	srv, err := NewServer(ServerConfig{
		State: store.New(nil, nil),
		Health: map[string]HealthCheck{
			"redis":    func(context.Context) error { return nil },
			"database": func(context.Context) error { return errors.New("database is locked") },
		},
	})
	require.NoError(t, err)

	w := do(t, srv, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.JSONEq(t, `{"status":"degraded","checks":{"redis":"ok","database":"database is locked"}}`, w.Body.String())
}

func TestSignalEntersPosition(t *testing.T) {
	srv, st, entries := newTestServer(t)
	entries.On("Enter", mock.Anything, mock.MatchedBy(func(req executor.EntryRequest) bool {
		return req.Key == types.NewKey("BTC-USDT-SWAP", "1H", "") &&
			req.Side == types.SideLong && req.Kind == types.OrderMarket &&
			req.StopLoss != nil && req.StopLoss.Equal(decimal.RequireFromString("59500"))
	})).Return(types.TradeRecord{OrderID: "ord-1", Size: decimal.NewFromInt(400)}, nil).Once()

	w := do(t, srv, http.MethodPost, "/api/signals", map[string]any{
		"instrument": "BTCUSDT.P",
		"timeframe":  "1H",
		"side":       "buy",
		"stop_loss":  "59500",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"order_id":"ord-1"`)

	snap, err := st.LastSignal(context.Background(), "BTC-USDT-SWAP")
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, "long", snap.Side)
	entries.AssertExpectations(t)
}

func TestSignalErrorMapping(t *testing.T) {
	cases := map[string]struct {
		err  error
		code int
	}{
		"conflict":   {&types.StateConflictError{Key: types.NewKey("BTC-USDT-SWAP", "1H", "")}, http.StatusConflict},
		"validation": {types.Invalid("size", "too small"), http.StatusBadRequest},
		"venue":      {&types.VenueError{Code: "51008", Msg: "insufficient"}, http.StatusBadGateway},
		"transport":  {&types.TransportError{Op: "POST /api/v5/trade/order", Status: 503}, http.StatusBadGateway},
		"canceled":   {fmt.Errorf("entry ord-1 not filled: %w", &okx.OrderCanceledError{OrdID: "ord-1", State: "canceled"}), http.StatusBadGateway},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			srv, _, entries := newTestServer(t)
			entries.On("Enter", mock.Anything, mock.Anything).Return(types.TradeRecord{}, tc.err)
			w := do(t, srv, http.MethodPost, "/api/signals", map[string]any{
				"instrument": "BTC-USDT-SWAP", "timeframe": "1H", "side": "long", "size": "1",
			})
			assert.Equal(t, tc.code, w.Code)
		})
	}
}

func TestSignalRejectsBadInput(t *testing.T) {
	srv, _, entries := newTestServer(t)
	w := do(t, srv, http.MethodPost, "/api/signals", map[string]any{"instrument": "BTC-USDT-SWAP"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = do(t, srv, http.MethodPost, "/api/signals", map[string]any{
		"instrument": "BTC-USDT-SWAP", "timeframe": "1H", "side": "sideways",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	entries.AssertNotCalled(t, "Enter", mock.Anything, mock.Anything)
}

func TestPositionsAndListener(t *testing.T) {
	srv, st, _ := newTestServer(t)
	ctx := context.Background()
	require.NoError(t, st.Upsert(ctx, types.NewKey("BTC-USDT-SWAP", "1H", ""), types.PositionState{
		State: types.SidePtr(types.SideLong), OrderID: "ord-1", Status: true,
	}))
	require.NoError(t, st.Clear(ctx, types.NewKey("ETH-USDT-SWAP", "1H", "")))

	w := do(t, srv, http.MethodGet, "/api/positions?active=true", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Positions []types.PositionState `json:"positions"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Positions, 1)
	assert.Equal(t, "ord-1", body.Positions[0].OrderID)

	w = do(t, srv, http.MethodGet, "/api/listener", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"state":"LISTENING"`)
	assert.Contains(t, w.Body.String(), `"reconnects":2`)

	assert.Equal(t, http.StatusNotFound, do(t, srv, http.MethodGet, "/api/signals/BTC-USDT-SWAP", nil).Code)
}

func TestAmend(t *testing.T) {
	srv, _, entries := newTestServer(t)
	key := types.NewKey("BTC-USDT-SWAP", "1H", "")
	entries.On("AmendStopLoss", mock.Anything, key, mock.MatchedBy(func(p decimal.Decimal) bool {
		return p.Equal(decimal.RequireFromString("60100"))
	})).Return(nil).Once()

	// 与 /api/signals 相同的写法归一。
	w := do(t, srv, http.MethodPost, "/api/positions/amend", map[string]any{
		"instrument": "BTCUSDT", "timeframe": "1H", "leg": "sl", "price": "60100",
	})
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(t, srv, http.MethodPost, "/api/positions/amend", map[string]any{
		"instrument": "BTC-USDT-SWAP", "timeframe": "1H", "leg": "trail", "price": "1",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	entries.AssertExpectations(t)
}
