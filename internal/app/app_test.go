package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"

	brcfg "okxbot/internal/config"
	"okxbot/internal/gateway/notifier"
	"okxbot/internal/store"
	"okxbot/internal/store/redistier"
	"okxbot/internal/types"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zeromicro/go-zero/core/stores/redis"
)

type captureNotifier struct{ texts []string }

func (c *captureNotifier) SendText(text string) error {
	c.texts = append(c.texts, text)
	return nil
}

func testConfig(t *testing.T, restURL string) *brcfg.Config {
	t.Helper()
	return &brcfg.Config{
		App: brcfg.AppConfig{Env: "test", LogLevel: "info"},
		OKX: brcfg.OKXConfig{
			APIKey: "key", SecretKey: "secret", Passphrase: "pass",
			Sandbox: true, RESTURL: restURL, WSPrivateURL: "wss://example.invalid/ws",
		},
		Trading: brcfg.TradingConfig{
			Instruments: []string{"BTC-USDT-SWAP"},
			Timeframes:  []string{"1H"},
			Leverage:    10,
			Risk:        0.02,
			MarginMode:  "isolated",
			PosSideMode: true,
			InstType:    "SWAP",
			BalanceCcy:  "USDT",
		},
		Retry:    brcfg.RetryConfig{MaxRetries: 1},
		Database: brcfg.DatabaseConfig{Path: filepath.Join(t.TempDir(), "okxbot.db")},
	}
}

func miniredisTier(t *testing.T) AppBuilderOption {
	opt, _ := miniredisTierWithServer(t)
	return opt
}

func miniredisTierWithServer(t *testing.T) (AppBuilderOption, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	return WithFastTier(func(brcfg.RedisConfig) (store.FastTier, error) {
		return redistier.NewFromClient(redis.MustNewRedis(redis.RedisConf{Host: mr.Addr(), Type: redis.NodeType})), nil
	}), mr
}

func TestBuildWiresComponents(t *testing.T) {
	cfg := testConfig(t, "https://www.okx.com")
	cfg.Listener = brcfg.ListenerConfig{Enabled: true, Positions: true}
	cfg.HTTP = brcfg.HTTPConfig{Enabled: true, Addr: "127.0.0.1:0"}

	a, err := NewAppBuilder(cfg, miniredisTier(t)).Build(context.Background())
	require.NoError(t, err)
	defer a.Close()

	assert.NotNil(t, a.Manager())
	require.NotNil(t, a.listener)
	require.NotNil(t, a.liveHTTP)
	assert.Equal(t, "127.0.0.1:0", a.liveHTTP.Addr())
	assert.Equal(t, []string{"positions"}, a.Summary.Channels)
	assert.Contains(t, a.Summary.String(), "模拟盘")
	assert.IsType(t, notifier.Nop{}, a.notifier)

	w := httptest.NewRecorder()
	a.liveHTTP.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","checks":{"redis":"ok","database":"ok"}}`, w.Body.String())
}

func TestRunPreparesInstruments(t *testing.T) {
	var leverageCalls, instrumentCalls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v5/account/set-leverage":
			leverageCalls.Add(1)
			_, _ = w.Write([]byte(`{"code":"0","data":[{}]}`))
		case "/api/v5/account/instruments":
			instrumentCalls.Add(1)
			_, _ = w.Write([]byte(`{"code":"0","data":[{"instId":"BTC-USDT-SWAP","ctVal":"0.01","lotSz":"1","minSz":"1","tickSz":"0.1"}]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	sink := &captureNotifier{}
	a, err := NewAppBuilder(testConfig(t, srv.URL), miniredisTier(t),
		WithNotifier(func(brcfg.TelegramConfig) notifier.TextNotifier { return sink }),
	).Build(context.Background())
	require.NoError(t, err)

	// 监听器与 HTTP 均关闭时 Run 在预热后直接返回。
	require.NoError(t, a.Run(context.Background()))
	assert.Equal(t, int32(2), leverageCalls.Load())
	assert.Equal(t, int32(1), instrumentCalls.Load())
	require.Len(t, sink.texts, 1)
	assert.Contains(t, sink.texts[0], "BTC-USDT-SWAP")
}

func TestRunFailsWhenLeverageRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"code":"59000","msg":"Setting failed","data":[]}`))
	}))
	defer srv.Close()

	a, err := NewAppBuilder(testConfig(t, srv.URL), miniredisTier(t)).Build(context.Background())
	require.NoError(t, err)
	err = a.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "prepare instruments")
}

func TestRunClearsStateTheVenueNoLongerHolds(t *testing.T) {
	var positionCalls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v5/account/set-leverage":
			_, _ = w.Write([]byte(`{"code":"0","data":[{}]}`))
		case "/api/v5/account/instruments":
			_, _ = w.Write([]byte(`{"code":"0","data":[{"instId":"BTC-USDT-SWAP","ctVal":"0.01","lotSz":"1","minSz":"1"}]}`))
		case "/api/v5/account/positions":
			positionCalls.Add(1)
			assert.Equal(t, "SWAP", r.URL.Query().Get("instType"))
			_, _ = w.Write([]byte(`{"code":"0","data":[]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	opt, mr := miniredisTierWithServer(t)
	a, err := NewAppBuilder(testConfig(t, srv.URL), opt).Build(context.Background())
	require.NoError(t, err)

	// 缓存层为空，只有持久层还记着活跃仓位。
	key := types.NewKey("BTC-USDT-SWAP", "1H", "")
	require.NoError(t, a.durable.SavePosition(context.Background(), types.PositionState{
		Key: key, State: types.SidePtr(types.SideLong), OrderID: "ord-1", Status: true,
	}))

	require.NoError(t, a.Run(context.Background()))
	assert.Equal(t, int32(1), positionCalls.Load())

	fast := redistier.NewFromClient(redis.MustNewRedis(redis.RedisConf{Host: mr.Addr(), Type: redis.NodeType}))
	got, err := fast.GetPosition(context.Background(), key.String())
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.False(t, got.Active())
}
