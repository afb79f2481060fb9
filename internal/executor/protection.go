package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"okxbot/internal/gateway/notifier"
	"okxbot/internal/gateway/okx"
	"okxbot/internal/metrics"
	"okxbot/internal/pkg/retry"
	"okxbot/internal/types"

	"github.com/shopspring/decimal"
)

const (
	legTP = "tp"
	legSL = "sl"

	// 条件单触发后以市价成交。
	marketOrdPx   = "-1"
	triggerByMark = "mark"
)

// AttachTakeProfit 挂止盈条件单。失败只告警，不影响已成交的开仓与止损单。
func (m *Manager) AttachTakeProfit(ctx context.Context, a *Attempt, price decimal.Decimal) error {
	return m.attach(ctx, a, legTP, price)
}

// AttachStopLoss 挂止损条件单。失败只告警，不影响已成交的开仓与止盈单。
func (m *Manager) AttachStopLoss(ctx context.Context, a *Attempt, price decimal.Decimal) error {
	return m.attach(ctx, a, legSL, price)
}

func (m *Manager) attach(ctx context.Context, a *Attempt, leg string, price decimal.Decimal) error {
	next := PhaseTPAttached
	if leg == legSL {
		next = PhaseSLAttached
	}
	if !a.canAdvance(next) {
		return fmt.Errorf("attempt %s: cannot attach %s in phase %s", a.Key, leg, a.Phase)
	}
	if !price.IsPositive() {
		return types.Invalid(leg+"_price", "must be positive, got %s", price)
	}

	req := okx.AlgoOrderRequest{
		InstID:      a.Key.Instrument,
		TdMode:      m.opts.MarginMode,
		Side:        a.Side.CloseSide(),
		PosSide:     m.posSide(a.Side),
		OrdType:     "conditional",
		Sz:          a.Size.String(),
		AlgoClOrdID: m.newID(),
		ReduceOnly:  !m.opts.PosSideMode,
	}
	if leg == legTP {
		req.TpTriggerPx, req.TpOrdPx, req.TpTriggerPxType = price.String(), marketOrdPx, triggerByMark
	} else {
		req.SlTriggerPx, req.SlOrdPx, req.SlTriggerPxType = price.String(), marketOrdPx, triggerByMark
	}

	ack, err := retry.Do(ctx, m.protectPolicy, func(ctx context.Context) (okx.OrderAck, error) {
		return m.venue.PlaceAlgoOrder(ctx, req)
	})
	if err != nil {
		m.protectionFailed(ctx, a, leg, price, err)
		return err
	}

	p := price
	if leg == legTP {
		a.TPPrice, a.TPOrderID = &p, ack.ID()
	} else {
		a.SLPrice, a.SLOrderID = &p, ack.ID()
	}
	metrics.Protection(leg, "attached")
	m.log.Infof("%s %s 条件单已挂 algoId=%s trigger=%s", a.Key, strings.ToUpper(leg), ack.ID(), price)
	kind := types.EventTPAttached
	if leg == legSL {
		kind = types.EventSLAttached
	}
	m.store.AppendEvent(ctx, types.TradeEvent{
		OrderID:    a.OrderID,
		Instrument: a.Key.Instrument,
		Kind:       kind,
		Detail:     fmt.Sprintf("algoId=%s trigger=%s", ack.ID(), price),
		CreatedAt:  m.now(),
	})
	return a.advance(next)
}

func (m *Manager) protectionFailed(ctx context.Context, a *Attempt, leg string, price decimal.Decimal, err error) {
	m.log.Warnf("%s %s 条件单挂单失败，仓位无此保护 order=%s: %v", a.Key, strings.ToUpper(leg), a.OrderID, err)
	metrics.Protection(leg, "failed")
	m.notify(notifier.ProtectionFailedMessage(a.Key, leg, price, err))
	kind := types.EventTPFailed
	if leg == legSL {
		kind = types.EventSLFailed
	}
	m.store.AppendEvent(ctx, types.TradeEvent{
		OrderID:    a.OrderID,
		Instrument: a.Key.Instrument,
		Kind:       kind,
		Detail:     err.Error(),
		CreatedAt:  m.now(),
	})
}

// AmendStopLoss 修改该 key 当前持仓的止损触发价。
func (m *Manager) AmendStopLoss(ctx context.Context, key types.PositionKey, price decimal.Decimal) error {
	return m.amend(ctx, key, legSL, price)
}

// AmendTakeProfit 修改该 key 当前持仓的止盈触发价。
func (m *Manager) AmendTakeProfit(ctx context.Context, key types.PositionKey, price decimal.Decimal) error {
	return m.amend(ctx, key, legTP, price)
}

func (m *Manager) amend(ctx context.Context, key types.PositionKey, leg string, price decimal.Decimal) error {
	if !price.IsPositive() {
		return types.Invalid(leg+"_price", "must be positive, got %s", price)
	}
	st, err := m.store.Get(ctx, key)
	if err != nil {
		return err
	}
	if st == nil || !st.Active() {
		return types.Invalid("key", "no active position for %s", key)
	}
	rec, err := m.store.OpenTradeByOrderID(ctx, st.OrderID)
	if err != nil {
		return err
	}
	if rec == nil {
		return types.Invalid("order_id", "no open trade record for %s", st.OrderID)
	}

	req := okx.AmendAlgoRequest{InstID: key.Instrument}
	var tp, sl *decimal.Decimal
	if leg == legTP {
		req.AlgoID, req.NewTpTriggerPx, req.NewTpTriggerPxType = rec.TPOrderID, price.String(), triggerByMark
		tp = &price
	} else {
		req.AlgoID, req.NewSlTriggerPx, req.NewSlTriggerPxType = rec.SLOrderID, price.String(), triggerByMark
		sl = &price
	}
	if req.AlgoID == "" {
		return types.Invalid(leg+"_order_id", "no %s order attached to %s", leg, rec.OrderID)
	}

	err = retry.Run(ctx, m.protectPolicy.Named("amend_algo"), func(ctx context.Context) error {
		return m.venue.AmendAlgoOrder(ctx, req)
	})
	if err != nil {
		return err
	}
	if err := m.store.UpdateProtection(ctx, rec.OrderID, tp, sl); err != nil {
		m.log.Warnf("%s %s 改单已生效但记录更新失败: %v", key, strings.ToUpper(leg), err)
	}
	m.store.AppendEvent(ctx, types.TradeEvent{
		OrderID:    rec.OrderID,
		Instrument: key.Instrument,
		Kind:       types.EventAmended,
		Detail:     fmt.Sprintf("%s algoId=%s trigger=%s", leg, req.AlgoID, price),
		CreatedAt:  m.now(),
	})
	return nil
}

// PrepareInstruments 启动时为每个交易对设置杠杆并缓存合约规格。
// 逐仓双向持仓模式需要分别设置多空两侧。
func (m *Manager) PrepareInstruments(ctx context.Context) error {
	sides := []string{""}
	if m.opts.MarginMode == "isolated" && m.opts.PosSideMode {
		sides = []string{string(types.SideLong), string(types.SideShort)}
	}
	var errs []error
	for _, inst := range m.opts.Instruments {
		inst = strings.ToUpper(strings.TrimSpace(inst))
		if inst == "" {
			continue
		}
		for _, ps := range sides {
			err := retry.Run(ctx, m.protectPolicy.Named("set_leverage"), func(ctx context.Context) error {
				return m.venue.SetLeverage(ctx, inst, m.opts.Leverage, m.opts.MarginMode, ps)
			})
			if err != nil {
				errs = append(errs, fmt.Errorf("set leverage %s %s: %w", inst, ps, err))
			}
		}
		if _, err := m.instrument(ctx, inst); err != nil {
			errs = append(errs, fmt.Errorf("load instrument %s: %w", inst, err))
			continue
		}
		m.log.Infof("%s 杠杆 %dx (%s) 已就绪", inst, m.opts.Leverage, m.opts.MarginMode)
	}
	return errors.Join(errs...)
}
