package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"okxbot/internal/gateway/okx"
	"okxbot/internal/pkg/retry"
	"okxbot/internal/types"
)

// ReconcileResult 汇总一次启动核对的结果。
type ReconcileResult struct {
	Restored []types.PositionKey
	Cleared  []types.PositionKey
}

// ReconcilePositions 以持久层的活跃记录为准和交易所持仓核对：
// 交易所仍持有的重新写回缓存层，已不存在的清除活跃标记。
func (m *Manager) ReconcilePositions(ctx context.Context) (ReconcileResult, error) {
	var res ReconcileResult
	active, err := m.store.ActivePositions(ctx)
	if err != nil {
		return res, fmt.Errorf("list active positions: %w", err)
	}
	if len(active) == 0 {
		return res, nil
	}
	held, err := retry.Do(ctx, m.protectPolicy.Named("positions"), func(ctx context.Context) ([]okx.VenuePosition, error) {
		return m.venue.Positions(ctx, m.opts.InstType, "")
	})
	if err != nil {
		return res, fmt.Errorf("load venue positions: %w", err)
	}

	var errs []error
	for _, st := range active {
		if venueHolds(held, st) {
			if err := m.store.Upsert(ctx, st.Key, st); err != nil {
				errs = append(errs, fmt.Errorf("restore %s: %w", st.Key, err))
				continue
			}
			res.Restored = append(res.Restored, st.Key)
			continue
		}
		if err := m.store.Clear(ctx, st.Key); err != nil {
			errs = append(errs, fmt.Errorf("clear %s: %w", st.Key, err))
			continue
		}
		res.Cleared = append(res.Cleared, st.Key)
		m.log.Warnf("%s 交易所已无持仓，清除活跃状态 order=%s", st.Key, st.OrderID)
		m.store.AppendEvent(ctx, types.TradeEvent{
			OrderID:    st.OrderID,
			Instrument: st.Key.Instrument,
			Kind:       types.EventReconciled,
			Detail:     "venue holds no position at startup",
			CreatedAt:  m.now(),
		})
	}
	return res, errors.Join(errs...)
}

// venueHolds 按合约匹配；双向持仓时还要求方向一致。
func venueHolds(held []okx.VenuePosition, st types.PositionState) bool {
	for _, p := range held {
		if !strings.EqualFold(p.InstID, st.Key.Instrument) || p.Closed() {
			continue
		}
		if side := types.Side(p.PosSide); side.Valid() && side != st.Direction() {
			continue
		}
		return true
	}
	return false
}
