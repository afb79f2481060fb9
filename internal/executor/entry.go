package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"okxbot/internal/gateway/notifier"
	"okxbot/internal/gateway/okx"
	"okxbot/internal/metrics"
	"okxbot/internal/pkg/retry"
	"okxbot/internal/pkg/trading"
	"okxbot/internal/types"

	"github.com/shopspring/decimal"
)

// EntryRequest 描述一次完整开仓：下单、挂止盈止损、落库。
type EntryRequest struct {
	Key  types.PositionKey
	Side types.Side
	Kind types.OrderKind
	// Price 为限价单价格；市价单忽略。
	Price decimal.Decimal
	// Size 为合约张数；为零时按风险参数计算。
	Size       decimal.Decimal
	StopLoss   *decimal.Decimal
	TakeProfit *decimal.Decimal
	// Volatility 为 low/medium/high，未给出 StopLoss 时用于推导止损价。
	Volatility string
	// Leverage 非零时必须等于配置杠杆。
	Leverage int
	Risk     decimal.Decimal
}

func (r EntryRequest) validate() error {
	if err := r.Key.Validate(); err != nil {
		return err
	}
	if !r.Side.Valid() {
		return types.Invalid("side", "unknown side %q", r.Side)
	}
	switch r.Kind {
	case types.OrderMarket:
	case types.OrderLimit:
		if !r.Price.IsPositive() {
			return types.Invalid("price", "limit entry requires a positive price")
		}
	default:
		return types.Invalid("kind", "unknown order kind %q", r.Kind)
	}
	if r.Size.IsNegative() {
		return types.Invalid("size", "must not be negative, got %s", r.Size)
	}
	if r.Size.IsZero() && r.StopLoss == nil && strings.TrimSpace(r.Volatility) == "" {
		return types.Invalid("stop_loss", "required for risk-based sizing")
	}
	return nil
}

func (m *Manager) newAttempt(key types.PositionKey, side types.Side, kind types.OrderKind, size decimal.Decimal, release func()) *Attempt {
	return &Attempt{
		Key:           key,
		Side:          side,
		Kind:          kind,
		Size:          size,
		ClientOrderID: m.newID(),
		Phase:         PhaseNew,
		leverage:      m.opts.Leverage,
		release:       release,
	}
}

func validateEntry(key types.PositionKey, side types.Side, size decimal.Decimal) error {
	if err := key.Validate(); err != nil {
		return err
	}
	if !side.Valid() {
		return types.Invalid("side", "unknown side %q", side)
	}
	if !size.IsPositive() {
		return types.Invalid("size", "must be positive, got %s", size)
	}
	return nil
}

// PlaceMarketEntry 提交市价单并轮询至成交，成交均价作为开仓价。
// 返回的 Attempt 持有该 key 的占位，直到 Record 或 Release。
func (m *Manager) PlaceMarketEntry(ctx context.Context, key types.PositionKey, side types.Side, size decimal.Decimal) (*Attempt, error) {
	if err := validateEntry(key, side, size); err != nil {
		return nil, err
	}
	release, err := m.reserve(ctx, key)
	if err != nil {
		m.countEntry(types.OrderMarket, side, err)
		return nil, err
	}
	a := m.newAttempt(key, side, types.OrderMarket, size, release)
	if err := m.placeMarket(ctx, a); err != nil {
		m.countEntry(types.OrderMarket, side, err)
		return nil, err
	}
	return a, nil
}

// PlaceLimitEntry 提交限价单，不等待成交，开仓价直接取限价。
func (m *Manager) PlaceLimitEntry(ctx context.Context, key types.PositionKey, side types.Side, price, size decimal.Decimal) (*Attempt, error) {
	if err := validateEntry(key, side, size); err != nil {
		return nil, err
	}
	if !price.IsPositive() {
		return nil, types.Invalid("price", "must be positive, got %s", price)
	}
	release, err := m.reserve(ctx, key)
	if err != nil {
		m.countEntry(types.OrderLimit, side, err)
		return nil, err
	}
	a := m.newAttempt(key, side, types.OrderLimit, size, release)
	if err := m.placeLimit(ctx, a, price); err != nil {
		m.countEntry(types.OrderLimit, side, err)
		return nil, err
	}
	return a, nil
}

func (m *Manager) entryRequest(a *Attempt, ordType string) okx.OrderRequest {
	return okx.OrderRequest{
		InstID:  a.Key.Instrument,
		TdMode:  m.opts.MarginMode,
		Side:    a.Side.OrderSide(),
		PosSide: m.posSide(a.Side),
		OrdType: ordType,
		Sz:      a.Size.String(),
		ClOrdID: a.ClientOrderID,
	}
}

// submit 通过重试策略下单；同一个 clOrdId 在各次重试间复用。
func (m *Manager) submit(ctx context.Context, a *Attempt, req okx.OrderRequest) error {
	if err := a.advance(PhaseEntrySubmitted); err != nil {
		a.fail(err)
		return err
	}
	ack, err := retry.Do(ctx, m.submitPolicy, func(ctx context.Context) (okx.OrderAck, error) {
		ack, err := m.venue.PlaceOrder(ctx, req)
		if !okx.IsDuplicateClientOrder(err) {
			return ack, err
		}
		// 前一次请求已被接受但响应丢失，按 clOrdId 找回订单号。
		detail, lookupErr := m.venue.GetOrderByClientID(ctx, req.InstID, req.ClOrdID)
		if lookupErr != nil {
			return okx.OrderAck{}, lookupErr
		}
		m.log.Warnf("%s clOrdId=%s 已存在，沿用订单 %s", a.Key, req.ClOrdID, detail.OrdID)
		return okx.OrderAck{OrdID: detail.OrdID, ClOrdID: detail.ClOrdID}, nil
	})
	if err != nil {
		m.log.Warnf("%s 下单失败 clOrdId=%s: %v", a.Key, a.ClientOrderID, err)
		a.fail(err)
		return err
	}
	a.OrderID = ack.OrdID
	return nil
}

func (m *Manager) placeMarket(ctx context.Context, a *Attempt) error {
	if err := m.submit(ctx, a, m.entryRequest(a, "market")); err != nil {
		return err
	}
	detail, err := retry.Do(ctx, m.pollPolicy, func(ctx context.Context) (okx.OrderDetail, error) {
		return m.venue.WaitFilled(ctx, a.Key.Instrument, a.OrderID)
	})
	if err != nil {
		m.log.Warnf("%s 订单 %s 未成交: %v", a.Key, a.OrderID, err)
		a.fail(err)
		return fmt.Errorf("entry %s not filled: %w", a.OrderID, err)
	}
	a.EnterPrice = detail.AveragePrice()
	if filled := detail.FilledSize(); filled.IsPositive() {
		a.Size = filled
	}
	a.Raw, _ = json.Marshal(detail)
	return a.advance(PhaseEntryFilled)
}

func (m *Manager) placeLimit(ctx context.Context, a *Attempt, price decimal.Decimal) error {
	req := m.entryRequest(a, "limit")
	req.Px = price.String()
	if err := m.submit(ctx, a, req); err != nil {
		return err
	}
	a.EnterPrice = price
	a.Raw, _ = json.Marshal(req)
	return a.advance(PhaseEntryFilled)
}

// Record 将成交后的尝试写入状态存储：先 Claim 缓存层状态，再写持久层记录。
// 持久层失败只记录日志；校验或 Claim 失败时尝试进入 FAILED。
func (m *Manager) Record(ctx context.Context, a *Attempt) (types.TradeRecord, error) {
	if !a.canAdvance(PhaseActive) {
		return types.TradeRecord{}, fmt.Errorf("attempt %s: cannot record in phase %s", a.Key, a.Phase)
	}
	defer a.Release()

	if a.balance.IsZero() {
		a.balance = m.balanceAtEntry(ctx, a)
	}
	rec := a.Record(a.leverage, a.balance, m.now())
	if err := rec.Validate(); err != nil {
		a.fail(err)
		return types.TradeRecord{}, err
	}
	state := types.PositionState{
		State:    types.SidePtr(a.Side),
		OrderID:  a.OrderID,
		Status:   true,
		Strategy: a.Key.Strategy,
	}
	if err := m.store.Claim(ctx, a.Key, state); err != nil {
		m.log.Errorf("%s 订单 %s 已成交但状态写入失败: %v", a.Key, a.OrderID, err)
		a.fail(err)
		return types.TradeRecord{}, err
	}
	if err := a.advance(PhaseActive); err != nil {
		return types.TradeRecord{}, err
	}
	if err := m.store.SaveTrade(ctx, rec, a.Raw); err != nil {
		m.log.Warnf("%s 开仓记录写入持久层失败 order=%s: %v", a.Key, a.OrderID, err)
	}
	m.store.AppendEvent(ctx, types.TradeEvent{
		OrderID:    rec.OrderID,
		Instrument: rec.Instrument,
		Kind:       types.EventEntry,
		Detail:     fmt.Sprintf("%s %s %s @ %s", rec.Kind, rec.Side, rec.Size, rec.EnterPrice),
		Payload:    a.Raw,
		CreatedAt:  m.now(),
	})
	return rec, nil
}

// balanceAtEntry 为单独调用 Place*Entry 的路径补取余额，失败时记为 0。
func (m *Manager) balanceAtEntry(ctx context.Context, a *Attempt) decimal.Decimal {
	bal, err := retry.Do(ctx, m.protectPolicy.Named("balance"), func(ctx context.Context) (decimal.Decimal, error) {
		return m.venue.Balance(ctx, m.opts.BalanceCcy)
	})
	if err != nil {
		m.log.Warnf("%s 查询开仓余额失败，记录为 0: %v", a.Key, err)
		return decimal.Zero
	}
	return bal
}

// Enter 执行完整开仓流程。止盈止损挂单失败不回滚开仓，返回的记录中对应订单号为空。
func (m *Manager) Enter(ctx context.Context, req EntryRequest) (types.TradeRecord, error) {
	if err := req.validate(); err != nil {
		return types.TradeRecord{}, err
	}
	// 杠杆只在启动时按配置设置，单笔信号不能改。
	if req.Leverage > 0 && req.Leverage != m.opts.Leverage {
		return types.TradeRecord{}, types.Invalid("leverage", "%dx differs from configured %dx", req.Leverage, m.opts.Leverage)
	}
	release, err := m.reserve(ctx, req.Key)
	if err != nil {
		m.countEntry(req.Kind, req.Side, err)
		return types.TradeRecord{}, err
	}
	a := m.newAttempt(req.Key, req.Side, req.Kind, req.Size, release)
	rec, err := m.enter(ctx, a, req)
	if err != nil {
		a.fail(err)
		m.countEntry(req.Kind, req.Side, err)
		return types.TradeRecord{}, err
	}
	metrics.Entry(string(req.Kind), string(req.Side), "active")
	m.notify(notifier.EntryMessage(rec))
	return rec, nil
}

func (m *Manager) enter(ctx context.Context, a *Attempt, req EntryRequest) (types.TradeRecord, error) {
	ref := req.Price
	if req.Kind == types.OrderMarket {
		px, err := retry.Do(ctx, m.protectPolicy.Named("last_price"), func(ctx context.Context) (decimal.Decimal, error) {
			return m.venue.LastPrice(ctx, req.Key.Instrument)
		})
		if err != nil {
			return types.TradeRecord{}, err
		}
		ref = px
	}
	stop := req.StopLoss
	if stop == nil && req.Volatility != "" {
		px, err := trading.VolatilityStop(ref, req.Side, req.Volatility)
		if err != nil {
			return types.TradeRecord{}, err
		}
		stop = &px
	}
	if err := checkProtection(req.Side, ref, req.TakeProfit, stop); err != nil {
		return types.TradeRecord{}, err
	}

	balance, err := retry.Do(ctx, m.protectPolicy.Named("balance"), func(ctx context.Context) (decimal.Decimal, error) {
		return m.venue.Balance(ctx, m.opts.BalanceCcy)
	})
	if err != nil {
		return types.TradeRecord{}, err
	}
	a.balance = balance

	if a.Size.IsZero() {
		size, err := m.sizeFor(ctx, req, a.leverage, balance, ref, *stop)
		if err != nil {
			return types.TradeRecord{}, err
		}
		a.Size = size
	}

	switch req.Kind {
	case types.OrderLimit:
		err = m.placeLimit(ctx, a, req.Price)
	default:
		err = m.placeMarket(ctx, a)
	}
	if err != nil {
		return types.TradeRecord{}, err
	}

	if req.TakeProfit != nil {
		_ = m.AttachTakeProfit(ctx, a, *req.TakeProfit)
	}
	if stop != nil {
		_ = m.AttachStopLoss(ctx, a, *stop)
	}
	return m.Record(ctx, a)
}

func (m *Manager) sizeFor(ctx context.Context, req EntryRequest, leverage int, balance, ref, stop decimal.Decimal) (decimal.Decimal, error) {
	info, err := m.instrument(ctx, req.Key.Instrument)
	if err != nil {
		return decimal.Zero, err
	}
	risk := req.Risk
	if !risk.IsPositive() {
		risk = m.opts.Risk
	}
	size, err := trading.PositionSize(balance, decimal.NewFromInt(int64(leverage)), risk, trading.StopDistance(ref, stop), info.CtVal)
	if err != nil {
		return decimal.Zero, err
	}
	size = trading.RoundToLot(size, info.LotSz)
	if size.LessThan(info.MinSz) || !size.IsPositive() {
		return decimal.Zero, types.Invalid("size", "%s below minimum %s for %s", size, info.MinSz, req.Key.Instrument)
	}
	return size, nil
}

// checkProtection 要求多单 TP 高于参考价、SL 低于参考价，空单相反。
func checkProtection(side types.Side, ref decimal.Decimal, tp, sl *decimal.Decimal) error {
	if tp != nil {
		if !tp.IsPositive() {
			return types.Invalid("take_profit", "must be positive")
		}
		if (side == types.SideLong && !tp.GreaterThan(ref)) || (side == types.SideShort && !tp.LessThan(ref)) {
			return types.Invalid("take_profit", "%s is on the wrong side of %s for %s", tp, ref, side)
		}
	}
	if sl != nil {
		if !sl.IsPositive() {
			return types.Invalid("stop_loss", "must be positive")
		}
		if (side == types.SideLong && !sl.LessThan(ref)) || (side == types.SideShort && !sl.GreaterThan(ref)) {
			return types.Invalid("stop_loss", "%s is on the wrong side of %s for %s", sl, ref, side)
		}
	}
	return nil
}

func (m *Manager) countEntry(kind types.OrderKind, side types.Side, err error) {
	result := "failed"
	if types.IsConflict(err) {
		result = "conflict"
	}
	metrics.Entry(string(kind), string(side), result)
}
