package app

import (
	"context"
	"fmt"
	"time"

	brcfg "okxbot/internal/config"
	"okxbot/internal/executor"
	"okxbot/internal/gateway/notifier"
	"okxbot/internal/listener"
	"okxbot/internal/logger"
	"okxbot/internal/store/gormstore"
	livehttp "okxbot/internal/transport/http/live"

	"golang.org/x/sync/errgroup"
)

// App 负责应用级编排：加载配置→初始化依赖→启动监听与 HTTP 服务。
type App struct {
	cfg      *brcfg.Config
	manager  *executor.Manager
	listener *listener.Listener
	liveHTTP *livehttp.Server
	durable  *gormstore.GormStore
	notifier notifier.TextNotifier
	// notifyQueue 非 nil 时 notifier 即为它，Close 时等待排空。
	notifyQueue *notifier.Async
	Summary     *StartupSummary
}

// NewApp 根据配置构建应用对象（不启动）
func NewApp(cfg *brcfg.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)
	return buildAppWithWire(context.Background(), cfg)
}

// Run 设置杠杆、预热合约规格，然后并行运行监听器与 HTTP 服务，直到 ctx 取消。
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}
	defer a.Close()

	if a.Summary != nil {
		logger.InfoBlock(a.Summary.String())
	}

	if err := a.manager.PrepareInstruments(ctx); err != nil {
		return fmt.Errorf("prepare instruments: %w", err)
	}
	a.reconcile(ctx)
	a.announce()

	group, ctx := errgroup.WithContext(ctx)

	if a.liveHTTP != nil {
		group.Go(func() error {
			logger.Infof("HTTP 服务监听 %s", a.liveHTTP.Addr())
			if err := a.liveHTTP.Start(ctx); err != nil {
				return fmt.Errorf("live http server error: %w", err)
			}
			return nil
		})
	}

	if a.listener != nil {
		group.Go(func() error {
			if err := a.listener.Run(ctx); err != nil {
				return fmt.Errorf("listener: %w", err)
			}
			return nil
		})
	}

	return group.Wait()
}

// Close 排空通知队列并释放持久层连接。
func (a *App) Close() {
	if a == nil {
		return
	}
	if a.notifyQueue != nil {
		a.notifyQueue.Close()
	}
	if a.durable == nil {
		return
	}
	if err := a.durable.Close(); err != nil {
		logger.Warnf("关闭数据库失败: %v", err)
	}
	a.durable = nil
}

// reconcile 用交易所持仓校正持久层里残留的活跃状态；失败不阻止启动。
func (a *App) reconcile(ctx context.Context) {
	res, err := a.manager.ReconcilePositions(ctx)
	if err != nil {
		logger.Warnf("启动持仓核对失败: %v", err)
	}
	if len(res.Restored) > 0 || len(res.Cleared) > 0 {
		logger.Infof("启动持仓核对：恢复 %d 个，清除 %d 个", len(res.Restored), len(res.Cleared))
	}
}

// Manager exposes the order manager (for scripted entries and tests).
func (a *App) Manager() *executor.Manager {
	if a == nil {
		return nil
	}
	return a.manager
}

func (a *App) announce() {
	if a.notifier == nil || a.Summary == nil {
		return
	}
	msg := notifier.StructuredMessage{
		Icon:  "✅",
		Title: "okxbot 已启动",
		Sections: []notifier.MessageSection{{
			Title: "配置",
			Lines: []string{
				"交易对 " + formatList(a.Summary.Instruments),
				"订阅 " + formatList(a.Summary.Channels),
			},
		}},
		Timestamp: time.Now().UTC(),
	}
	if err := a.notifier.SendText(msg.RenderMarkdown()); err != nil {
		logger.Warnf("启动通知发送失败: %v", err)
	}
}
