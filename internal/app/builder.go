package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	brcfg "okxbot/internal/config"
	"okxbot/internal/executor"
	"okxbot/internal/gateway/notifier"
	"okxbot/internal/gateway/okx"
	"okxbot/internal/gateway/okx/ws"
	"okxbot/internal/listener"
	"okxbot/internal/logger"
	"okxbot/internal/pkg/retry"
	"okxbot/internal/store"
	"okxbot/internal/store/gormstore"
	"okxbot/internal/store/redistier"
	livehttp "okxbot/internal/transport/http/live"

	"github.com/shopspring/decimal"
)

const notifyQueueSize = 64

// AppBuilder 按配置装配各组件；构建函数可替换，便于测试注入。
type AppBuilder struct {
	cfg *brcfg.Config

	venueFn    func(brcfg.OKXConfig) (*okx.Client, error)
	fastTierFn func(brcfg.RedisConfig) (store.FastTier, error)
	durableFn  func(brcfg.DatabaseConfig) (*gormstore.GormStore, error)
	notifierFn func(brcfg.TelegramConfig) notifier.TextNotifier
}

type AppBuilderOption func(*AppBuilder)

// WithFastTier 替换缓存层构建函数。
func WithFastTier(fn func(brcfg.RedisConfig) (store.FastTier, error)) AppBuilderOption {
	return func(b *AppBuilder) {
		if fn != nil {
			b.fastTierFn = fn
		}
	}
}

func WithNotifier(fn func(brcfg.TelegramConfig) notifier.TextNotifier) AppBuilderOption {
	return func(b *AppBuilder) {
		if fn != nil {
			b.notifierFn = fn
		}
	}
}

func NewAppBuilder(cfg *brcfg.Config, opts ...AppBuilderOption) *AppBuilder {
	b := &AppBuilder{
		cfg:        cfg,
		venueFn:    okx.NewClient,
		fastTierFn: buildFastTier,
		durableFn:  buildDurableTier,
		notifierFn: buildNotifier,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

func (b *AppBuilder) Build(ctx context.Context) (*App, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if b == nil || b.cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	cfg := b.cfg

	venue, err := b.venueFn(cfg.OKX)
	if err != nil {
		return nil, fmt.Errorf("build okx client: %w", err)
	}
	fast, err := b.fastTierFn(cfg.Redis)
	if err != nil {
		return nil, err
	}
	durable, err := b.durableFn(cfg.Database)
	if err != nil {
		return nil, err
	}
	st := store.New(fast, durable)
	notify := b.notifierFn(cfg.Notify.Telegram)
	var queue *notifier.Async
	if _, nop := notify.(notifier.Nop); !nop {
		queue = notifier.NewAsync(notify, notifyQueueSize)
		notify = queue
	}

	policy := retry.New(cfg.Retry.MaxRetries, cfg.Retry.Delay())
	manager := executor.NewManager(venue, st, notify, executor.Options{
		Instruments: cfg.Trading.Instruments,
		InstType:    cfg.Trading.InstType,
		MarginMode:  cfg.Trading.MarginMode,
		PosSideMode: cfg.Trading.PosSideMode,
		Leverage:    cfg.Trading.Leverage,
		Risk:        decimal.NewFromFloat(cfg.Trading.Risk),
		BalanceCcy:  cfg.Trading.BalanceCcy,
		Retry:       policy,
		FillPoll:    retry.New(cfg.Retry.FillPollAttempts, cfg.Retry.Delay()),
	})

	var lsn *listener.Listener
	if cfg.Listener.Enabled {
		lsn = buildListener(cfg, venue, st, notify, policy)
	}

	var srv *livehttp.Server
	if cfg.HTTP.Enabled {
		scfg := livehttp.ServerConfig{
			Addr:     cfg.HTTP.Addr,
			State:    st,
			Entries:  manager,
			LogPath:  cfg.App.LogPath,
			InstType: cfg.Trading.InstType,
			Health:   healthChecks(fast, durable),
		}
		// 接口值不能持有 nil 指针，否则路由会误以为监听器可用。
		if lsn != nil {
			scfg.Listener = lsn
		}
		srv, err = livehttp.NewServer(scfg)
		if err != nil {
			return nil, fmt.Errorf("build http server: %w", err)
		}
	}

	return &App{
		cfg:         cfg,
		manager:     manager,
		listener:    lsn,
		liveHTTP:    srv,
		durable:     durable,
		notifier:    notify,
		notifyQueue: queue,
		Summary:     newStartupSummary(cfg),
	}, nil
}

func buildListener(cfg *brcfg.Config, prices listener.PriceSource, st listener.StateStore, notify notifier.TextNotifier, policy retry.Policy) *listener.Listener {
	lc := cfg.Listener
	return listener.New(listener.Config{
		URL: cfg.OKX.WSPrivateURL,
		Credentials: ws.Credentials{
			APIKey:     cfg.OKX.APIKey,
			SecretKey:  cfg.OKX.SecretKey,
			Passphrase: cfg.OKX.Passphrase,
		},
		InstType:           cfg.Trading.InstType,
		Account:            lc.Account,
		Positions:          lc.Positions,
		LiquidationWarning: lc.LiquidationWarning,
		ReconnectDelay:     time.Duration(lc.ReconnectDelaySeconds) * time.Second,
		PingInterval:       time.Duration(lc.PingIntervalSeconds) * time.Second,
		Retry:              policy.Named("last_price"),
	}, prices, st, notify)
}

// healthChecks 为 /healthz 提供缓存层与持久层探测。
func healthChecks(fast store.FastTier, durable *gormstore.GormStore) map[string]livehttp.HealthCheck {
	checks := map[string]livehttp.HealthCheck{}
	if p, ok := fast.(interface{ Ping(context.Context) bool }); ok {
		checks["redis"] = func(ctx context.Context) error {
			if !p.Ping(ctx) {
				return errors.New("redis ping failed")
			}
			return nil
		}
	}
	if durable != nil {
		checks["database"] = func(ctx context.Context) error {
			db, err := durable.SQLDB()
			if err != nil {
				return err
			}
			return db.PingContext(ctx)
		}
	}
	return checks
}

func buildFastTier(cfg brcfg.RedisConfig) (store.FastTier, error) {
	tier, err := redistier.New(redistier.Config{Host: cfg.Host, Pass: cfg.Pass, Type: cfg.Type})
	if err != nil {
		return nil, err
	}
	return tier, nil
}

func buildDurableTier(cfg brcfg.DatabaseConfig) (*gormstore.GormStore, error) {
	gs, err := gormstore.NewGormStore(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", cfg.Path, err)
	}
	return gs, nil
}

func buildNotifier(cfg brcfg.TelegramConfig) notifier.TextNotifier {
	if !cfg.Enabled {
		logger.Infof("Telegram 通知未启用")
		return notifier.Nop{}
	}
	return notifier.NewTelegram(cfg.BotToken, cfg.ChatID)
}
