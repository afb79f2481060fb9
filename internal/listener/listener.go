// Package listener 维护 OKX 私有频道长连接，把交易所推送的平仓同步到本地状态。
package listener

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"okxbot/internal/gateway/notifier"
	"okxbot/internal/gateway/okx"
	"okxbot/internal/gateway/okx/ws"
	"okxbot/internal/logger"
	"okxbot/internal/metrics"
	"okxbot/internal/pkg/retry"
	"okxbot/internal/types"

	"github.com/shopspring/decimal"
)

type State string

const (
	StateDisconnected   State = "DISCONNECTED"
	StateConnecting     State = "CONNECTING"
	StateAuthenticating State = "AUTHENTICATING"
	StateSubscribed     State = "SUBSCRIBED"
	StateListening      State = "LISTENING"
	StateStopped        State = "STOPPED"
)

// PriceSource 提供最新成交价，由 *okx.Client 实现。
type PriceSource interface {
	LastPrice(ctx context.Context, instID string) (decimal.Decimal, error)
}

// StateStore 是 *store.Store 中对账需要的部分。
type StateStore interface {
	FindByInstrumentTimeframe(ctx context.Context, instrument, timeframe string) ([]types.PositionState, error)
	Clear(ctx context.Context, key types.PositionKey) error
	CloseTrade(ctx context.Context, orderID string, price decimal.Decimal, at time.Time) error
	AppendEvent(ctx context.Context, evt types.TradeEvent)
}

type Config struct {
	URL         string
	Credentials ws.Credentials
	InstType    string

	Account            bool
	Positions          bool
	LiquidationWarning bool

	ReconnectDelay   time.Duration
	PingInterval     time.Duration
	ReadTimeout      time.Duration
	HandshakeTimeout time.Duration
	LoginTimeout     time.Duration

	Retry retry.Policy
}

func (c Config) withDefaults() Config {
	if c.InstType == "" {
		c.InstType = "SWAP"
	}
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = 5 * time.Second
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 25 * time.Second
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 2 * c.PingInterval
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 10 * time.Second
	}
	if c.LoginTimeout <= 0 {
		c.LoginTimeout = 10 * time.Second
	}
	return c
}

// Stats 是连接统计，供状态接口展示。
type Stats struct {
	State         State     `json:"state"`
	Reconnects    int       `json:"reconnects"`
	LastError     string    `json:"last_error,omitempty"`
	LastMessageAt time.Time `json:"last_message_at,omitempty"`
	ConnectedAt   time.Time `json:"connected_at,omitempty"`
}

type Listener struct {
	cfg      Config
	prices   PriceSource
	store    StateStore
	notifier notifier.TextNotifier
	log      *logger.Entry
	now      func() time.Time

	// OnStateChange 在每次状态变化后回调（锁外）。
	OnStateChange func(from, to State)

	mu    sync.Mutex
	stats Stats
}

func New(cfg Config, prices PriceSource, st StateStore, notify notifier.TextNotifier) *Listener {
	if notify == nil {
		notify = notifier.Nop{}
	}
	cfg = cfg.withDefaults()
	cfg.Retry = cfg.Retry.WithClassifier(okx.IsRetryable)
	return &Listener{
		cfg:      cfg,
		prices:   prices,
		store:    st,
		notifier: notify,
		log:      logger.With("listener"),
		now:      time.Now,
		stats:    Stats{State: StateDisconnected},
	}
}

// SetClock overrides the timestamp source for testing.
func (l *Listener) SetClock(now func() time.Time) {
	if now != nil {
		l.now = now
	}
}

func (l *Listener) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stats.State
}

func (l *Listener) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stats
}

// Subscriptions 返回每次连接都会发送的订阅集合。
func (l *Listener) Subscriptions() []ws.Arg {
	var args []ws.Arg
	if l.cfg.Account {
		args = append(args, ws.Arg{Channel: string(ws.KindAccount)})
	}
	if l.cfg.Positions {
		args = append(args, ws.Arg{Channel: string(ws.KindPosition), InstType: l.cfg.InstType})
	}
	if l.cfg.LiquidationWarning {
		args = append(args, ws.Arg{Channel: string(ws.KindLiquidationWarning), InstType: l.cfg.InstType})
	}
	return args
}

func (l *Listener) setState(to State) {
	l.mu.Lock()
	from := l.stats.State
	l.stats.State = to
	if to == StateListening {
		l.stats.ConnectedAt = l.now()
	}
	l.mu.Unlock()
	if from == to {
		return
	}
	metrics.ListenerState(string(from), string(to))
	l.log.Debugf("state %s -> %s", from, to)
	if l.OnStateChange != nil {
		l.OnStateChange(from, to)
	}
}

func (l *Listener) recordReconnect(err error) {
	l.mu.Lock()
	l.stats.Reconnects++
	if err != nil && err.Error() != "" {
		l.stats.LastError = err.Error()
	}
	l.mu.Unlock()
	metrics.Reconnect()
}

func (l *Listener) touch() {
	l.mu.Lock()
	l.stats.LastMessageAt = l.now()
	l.mu.Unlock()
}

// Run 连接、登录、订阅并持续接收推送；任何连接错误在固定间隔后重连。
// ctx 取消时返回 nil 并进入 STOPPED。
func (l *Listener) Run(ctx context.Context) error {
	if len(l.Subscriptions()) == 0 {
		return fmt.Errorf("listener: no channels enabled")
	}
	defer l.setState(StateStopped)
	for {
		if ctx.Err() != nil {
			return nil
		}
		err := l.connectAndListen(ctx)
		if ctx.Err() != nil {
			return nil
		}
		l.setState(StateDisconnected)
		l.recordReconnect(err)
		l.log.Warnf("私有频道断开: %v，%s 后重连", err, l.cfg.ReconnectDelay)
		if !sleepWithContext(ctx, l.cfg.ReconnectDelay) {
			return nil
		}
	}
}

func (l *Listener) connectAndListen(ctx context.Context) error {
	l.setState(StateConnecting)
	sess, err := ws.Dial(ctx, l.cfg.URL, l.cfg.HandshakeTimeout)
	if err != nil {
		return err
	}
	sctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-sctx.Done()
		_ = sess.Close()
	}()

	l.setState(StateAuthenticating)
	if err := sess.Login(l.cfg.Credentials, l.now()); err != nil {
		return fmt.Errorf("send login: %w", err)
	}
	if err := l.awaitLogin(sctx, sess); err != nil {
		return err
	}

	if err := sess.Subscribe(l.Subscriptions()); err != nil {
		return fmt.Errorf("send subscribe: %w", err)
	}
	l.setState(StateSubscribed)

	go l.keepalive(sctx, cancel, sess)

	l.setState(StateListening)
	for {
		raw, err := sess.Read(l.cfg.ReadTimeout)
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		l.touch()
		_ = l.HandleMessage(sctx, raw)
	}
}

func (l *Listener) awaitLogin(ctx context.Context, sess *ws.Session) error {
	deadline := time.Now().Add(l.cfg.LoginTimeout)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return errors.New("login: timed out waiting for response")
		}
		raw, err := sess.Read(remaining)
		if err != nil {
			return fmt.Errorf("login: %w", err)
		}
		msg, err := ws.Decode(raw)
		if err != nil {
			l.log.Warnf("登录阶段收到无法解析的消息: %v", err)
			continue
		}
		switch m := msg.(type) {
		case ws.LoginEvent:
			if !m.OK() {
				return fmt.Errorf("login rejected: code=%s msg=%s", m.Code, m.Msg)
			}
			l.log.Infof("私有频道登录成功 connId=%s", m.ConnID)
			return nil
		case ws.ErrorEvent:
			return fmt.Errorf("login error: code=%s msg=%s", m.Code, m.Msg)
		}
	}
}

func (l *Listener) keepalive(ctx context.Context, cancel context.CancelFunc, sess *ws.Session) {
	ticker := time.NewTicker(l.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := sess.Ping(); err != nil {
				l.log.Warnf("ping 失败: %v", err)
				cancel()
				return
			}
		}
	}
}

// HandleMessage 处理一帧推送。无法解析的消息记录日志后返回错误，不影响连接。
func (l *Listener) HandleMessage(ctx context.Context, raw []byte) error {
	msg, err := ws.Decode(raw)
	if err != nil {
		l.log.Warnf("跳过无法解析的推送: %v", err)
		return err
	}
	switch m := msg.(type) {
	case ws.Pong:
	case ws.LoginEvent:
		l.log.Infof("login event code=%s", m.Code)
	case ws.SubscribeEvent:
		l.log.Infof("已订阅 %s", m.Arg)
	case ws.ErrorEvent:
		l.log.Warnf("频道错误 code=%s msg=%s", m.Code, m.Msg)
	case ws.AccountUpdate:
		l.log.Debugf("账户更新 totalEq=%s", m.TotalEq)
	case ws.PositionUpdate:
		var errs []error
		for _, p := range m.Positions {
			if strings.TrimSpace(p.Pos) == "" || !p.Closed() {
				continue
			}
			if err := l.reconcileClose(ctx, p.InstID, p.PosSide); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	case ws.LiquidationWarning:
		for _, p := range m.Positions {
			l.log.Warnf("强平预警 %s %s pos=%s", p.InstID, p.PosSide, p.Pos)
			l.notify(notifier.LiquidationWarningMessage(p.InstID, p.PosSide, p.Pos))
			l.store.AppendEvent(ctx, types.TradeEvent{
				Instrument: p.InstID,
				Kind:       types.EventLiquidation,
				Detail:     fmt.Sprintf("posSide=%s pos=%s", p.PosSide, p.Pos),
				CreatedAt:  l.now(),
			})
		}
	case ws.GenericEvent:
		l.log.Debugf("忽略事件 event=%s channel=%s", m.Event, m.Channel)
	}
	return nil
}

// reconcileClose 处理 pos=0 的推送：找出该合约的活跃状态并清除，同时按最新价关闭开仓记录。
// 取价失败时仍然清除状态，开仓记录保持 open。
func (l *Listener) reconcileClose(ctx context.Context, instID, posSide string) error {
	states, err := l.store.FindByInstrumentTimeframe(ctx, instID, "")
	if err != nil {
		return fmt.Errorf("find %s: %w", instID, err)
	}
	var matches []types.PositionState
	for _, st := range states {
		if !st.Active() {
			continue
		}
		if side := types.Side(posSide); side.Valid() && st.Direction() != side {
			continue
		}
		matches = append(matches, st)
	}
	if len(matches) == 0 {
		l.log.Debugf("%s 平仓推送无对应活跃状态", instID)
		return nil
	}

	price, priceErr := retry.Do(ctx, l.cfg.Retry.Named("last_price"), func(ctx context.Context) (decimal.Decimal, error) {
		return l.prices.LastPrice(ctx, instID)
	})
	if priceErr != nil {
		l.log.Errorf("%s 获取最新价失败，开仓记录暂不关闭: %v", instID, priceErr)
	}

	now := l.now()
	var errs []error
	for _, st := range matches {
		if err := l.store.Clear(ctx, st.Key); err != nil {
			errs = append(errs, fmt.Errorf("clear %s: %w", st.Key, err))
			continue
		}
		metrics.PositionClosed()
		if priceErr != nil {
			continue
		}
		if st.OrderID != "" {
			if err := l.store.CloseTrade(ctx, st.OrderID, price, now); err != nil {
				l.log.Warnf("%s 关闭开仓记录 %s 失败: %v", st.Key, st.OrderID, err)
			}
		}
		l.store.AppendEvent(ctx, types.TradeEvent{
			OrderID:    st.OrderID,
			Instrument: st.Key.Instrument,
			Kind:       types.EventClosed,
			Detail:     "close @ " + price.String(),
			CreatedAt:  now,
		})
		l.log.Infof("%s 仓位已由交易所平仓 order=%s price=%s", st.Key, st.OrderID, price)
		l.notify(notifier.CloseMessage(st.Key, st.OrderID, price, now))
	}
	if priceErr != nil {
		errs = append(errs, priceErr)
	}
	return errors.Join(errs...)
}

func (l *Listener) notify(msg notifier.StructuredMessage) {
	if err := l.notifier.SendText(msg.RenderMarkdown()); err != nil {
		l.log.Warnf("Telegram 推送失败(%s): %v", msg.Title, err)
	}
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
