// Package executor 负责开仓、挂止盈止损并把结果写入状态存储。
package executor

import (
	"context"
	"strings"
	"sync"
	"time"

	"okxbot/internal/gateway/notifier"
	"okxbot/internal/gateway/okx"
	"okxbot/internal/logger"
	"okxbot/internal/metrics"
	"okxbot/internal/pkg/retry"
	"okxbot/internal/types"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Venue 是下单所需的交易所能力，由 *okx.Client 实现。
type Venue interface {
	PlaceOrder(ctx context.Context, req okx.OrderRequest) (okx.OrderAck, error)
	WaitFilled(ctx context.Context, instID, ordID string) (okx.OrderDetail, error)
	GetOrderByClientID(ctx context.Context, instID, clOrdID string) (okx.OrderDetail, error)
	PlaceAlgoOrder(ctx context.Context, req okx.AlgoOrderRequest) (okx.OrderAck, error)
	AmendAlgoOrder(ctx context.Context, req okx.AmendAlgoRequest) error
	Balance(ctx context.Context, ccy string) (decimal.Decimal, error)
	LastPrice(ctx context.Context, instID string) (decimal.Decimal, error)
	Instrument(ctx context.Context, instType, instID string) (okx.InstrumentInfo, error)
	SetLeverage(ctx context.Context, instID string, lever int, mgnMode, posSide string) error
	Positions(ctx context.Context, instType, instID string) ([]okx.VenuePosition, error)
}

// StateStore 是 *store.Store 中被执行器使用的部分。
type StateStore interface {
	Get(ctx context.Context, key types.PositionKey) (*types.PositionState, error)
	Claim(ctx context.Context, key types.PositionKey, st types.PositionState) error
	Upsert(ctx context.Context, key types.PositionKey, st types.PositionState) error
	Clear(ctx context.Context, key types.PositionKey) error
	ActivePositions(ctx context.Context) ([]types.PositionState, error)
	SaveTrade(ctx context.Context, rec types.TradeRecord, raw []byte) error
	OpenTradeByOrderID(ctx context.Context, orderID string) (*types.TradeRecord, error)
	UpdateProtection(ctx context.Context, orderID string, tp, sl *decimal.Decimal) error
	AppendEvent(ctx context.Context, evt types.TradeEvent)
}

var _ Venue = (*okx.Client)(nil)

// Options 是执行器的不可变配置。
type Options struct {
	Instruments []string
	InstType    string
	MarginMode  string
	// PosSideMode 为 true 时按双向持仓下单（携带 posSide）。
	PosSideMode bool
	Leverage    int
	Risk        decimal.Decimal
	BalanceCcy  string
	Retry       retry.Policy
	FillPoll    retry.Policy
}

type Manager struct {
	venue    Venue
	store    StateStore
	notifier notifier.TextNotifier
	opts     Options

	submitPolicy  retry.Policy
	pollPolicy    retry.Policy
	protectPolicy retry.Policy

	inflightMu sync.Mutex
	inflight   map[string]struct{}

	instMu      sync.Mutex
	instruments map[string]okx.InstrumentInfo

	now   func() time.Time
	newID func() string
	log   *logger.Entry
}

func NewManager(venue Venue, st StateStore, notify notifier.TextNotifier, opts Options) *Manager {
	if notify == nil {
		notify = notifier.Nop{}
	}
	if opts.MarginMode == "" {
		opts.MarginMode = "cross"
	}
	if opts.InstType == "" {
		opts.InstType = "SWAP"
	}
	if opts.FillPoll.MaxRetries <= 0 {
		opts.FillPoll = opts.Retry
	}
	return &Manager{
		venue:         venue,
		store:         st,
		notifier:      notify,
		opts:          opts,
		submitPolicy:  classified(opts.Retry, "place_order"),
		pollPolicy:    classified(opts.FillPoll, "poll_fill"),
		protectPolicy: classified(opts.Retry, "algo_order"),
		inflight:      make(map[string]struct{}),
		instruments:   make(map[string]okx.InstrumentInfo),
		now:           time.Now,
		newID:         newClientOrderID,
		log:           logger.With("executor"),
	}
}

func classified(p retry.Policy, name string) retry.Policy {
	p = p.Named(name).WithClassifier(okx.IsRetryable)
	p.OnRetry = func(retry.Context) { metrics.Retry(name) }
	return p
}

// newClientOrderID 生成 32 位字母数字 clOrdId，重试时复用同一个。
func newClientOrderID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// SetClock overrides the timestamp source for testing.
func (m *Manager) SetClock(now func() time.Time) {
	if now != nil {
		m.now = now
	}
}

// reserve 在进程内占住 key 并检查存储中是否已有活跃仓位。
func (m *Manager) reserve(ctx context.Context, key types.PositionKey) (func(), error) {
	id := key.String()
	m.inflightMu.Lock()
	if _, busy := m.inflight[id]; busy {
		m.inflightMu.Unlock()
		return nil, &types.StateConflictError{Key: key}
	}
	m.inflight[id] = struct{}{}
	m.inflightMu.Unlock()

	release := func() {
		m.inflightMu.Lock()
		delete(m.inflight, id)
		m.inflightMu.Unlock()
	}
	cur, err := m.store.Get(ctx, key)
	if err != nil {
		release()
		return nil, err
	}
	if cur != nil && cur.Active() {
		release()
		return nil, &types.StateConflictError{Key: key}
	}
	return release, nil
}

func (m *Manager) posSide(side types.Side) string {
	if !m.opts.PosSideMode {
		return ""
	}
	return string(side)
}

func (m *Manager) notify(msg notifier.StructuredMessage) {
	if err := m.notifier.SendText(msg.RenderMarkdown()); err != nil {
		m.log.Warnf("Telegram 推送失败(%s): %v", msg.Title, err)
	}
}

// instrument 返回缓存的合约规格。
func (m *Manager) instrument(ctx context.Context, instID string) (okx.InstrumentInfo, error) {
	m.instMu.Lock()
	info, ok := m.instruments[instID]
	m.instMu.Unlock()
	if ok {
		return info, nil
	}
	info, err := retry.Do(ctx, m.protectPolicy.Named("instrument"), func(ctx context.Context) (okx.InstrumentInfo, error) {
		return m.venue.Instrument(ctx, m.opts.InstType, instID)
	})
	if err != nil {
		return okx.InstrumentInfo{}, err
	}
	m.instMu.Lock()
	m.instruments[instID] = info
	m.instMu.Unlock()
	return info, nil
}
