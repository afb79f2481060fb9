// Package store 维护 "每个 key 当前是否持仓" 的双层视图：缓存层优先，持久层兜底并留审计。
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"okxbot/internal/logger"
	"okxbot/internal/store/gormstore"
	"okxbot/internal/types"

	"github.com/shopspring/decimal"
)

// Store 组合缓存层与持久层。durable 可以为 nil（仅缓存）。
type Store struct {
	fast    FastTier
	durable DurableTier
	locks   sync.Map // key string -> *sync.Mutex
	now     func() time.Time
	log     *logger.Entry
}

func New(fast FastTier, durable DurableTier) *Store {
	return &Store{
		fast:    fast,
		durable: durable,
		now:     time.Now,
		log:     logger.With("store"),
	}
}

// SetClock overrides the timestamp source for testing.
func (s *Store) SetClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

func (s *Store) lock(key types.PositionKey) func() {
	v, _ := s.locks.LoadOrStore(key.String(), &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// Get 先查缓存层；未命中时查持久层，且不回填缓存层。两层都没有时返回 (nil, nil)。
func (s *Store) Get(ctx context.Context, key types.PositionKey) (*types.PositionState, error) {
	st, err := s.fast.GetPosition(ctx, key.String())
	if err != nil {
		return nil, fmt.Errorf("fast tier get %s: %w", key, err)
	}
	if st != nil {
		return st, nil
	}
	if s.durable == nil {
		return nil, nil
	}
	st, err = s.durable.GetPosition(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("durable tier get %s: %w", key, err)
	}
	return st, nil
}

// Upsert 同步写缓存层（失败直接返回），持久层失败只记录日志。
func (s *Store) Upsert(ctx context.Context, key types.PositionKey, st types.PositionState) error {
	unlock := s.lock(key)
	defer unlock()
	return s.upsertLocked(ctx, key, st)
}

// Claim 是带条件的 Upsert：该 key 已有活跃仓位时返回 *types.StateConflictError。
func (s *Store) Claim(ctx context.Context, key types.PositionKey, st types.PositionState) error {
	unlock := s.lock(key)
	defer unlock()
	cur, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	if cur != nil && cur.Active() && cur.OrderID != st.OrderID {
		return &types.StateConflictError{Key: key}
	}
	return s.upsertLocked(ctx, key, st)
}

func (s *Store) upsertLocked(ctx context.Context, key types.PositionKey, st types.PositionState) error {
	st.Key = key
	if st.Strategy == "" {
		st.Strategy = key.Strategy
	}
	if st.UpdatedAt.IsZero() {
		st.UpdatedAt = s.now()
	}
	if err := s.fast.PutPosition(ctx, key.String(), st); err != nil {
		return fmt.Errorf("fast tier put %s: %w", key, err)
	}
	if s.durable != nil {
		if err := s.durable.SavePosition(ctx, st); err != nil {
			s.log.Warnf("durable tier save %s failed: %v", key, err)
		}
	}
	return nil
}

// Clear 去掉活跃标记（方向与订单号清空），条目本身保留。
func (s *Store) Clear(ctx context.Context, key types.PositionKey) error {
	return s.Upsert(ctx, key, types.PositionState{
		Key:       key,
		Status:    false,
		Strategy:  key.Strategy,
		UpdatedAt: s.now(),
	})
}

// FindByInstrumentTimeframe 线性扫描缓存层的仓位列表。timeframe 为空时匹配任意周期。
func (s *Store) FindByInstrumentTimeframe(ctx context.Context, instrument, timeframe string) ([]types.PositionState, error) {
	all, err := s.fast.ListPositions(ctx)
	if err != nil {
		return nil, fmt.Errorf("fast tier list: %w", err)
	}
	instrument = strings.ToUpper(strings.TrimSpace(instrument))
	var out []types.PositionState
	for _, st := range all {
		if st.Key.Instrument != instrument {
			continue
		}
		if timeframe != "" && st.Key.Timeframe != timeframe {
			continue
		}
		out = append(out, st)
	}
	return out, nil
}

// ActivePositions 返回持久层中仍标记为活跃的条目，缓存层被清空后据此恢复。
func (s *Store) ActivePositions(ctx context.Context) ([]types.PositionState, error) {
	if s.durable == nil {
		return nil, nil
	}
	return s.durable.ListActivePositions(ctx)
}

// List 返回缓存层全部条目。
func (s *Store) List(ctx context.Context) ([]types.PositionState, error) {
	all, err := s.fast.ListPositions(ctx)
	if err != nil {
		return nil, fmt.Errorf("fast tier list: %w", err)
	}
	return all, nil
}

// SaveTrade 写持久层开仓记录。
func (s *Store) SaveTrade(ctx context.Context, rec types.TradeRecord, raw []byte) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	if s.durable == nil {
		return nil
	}
	return s.durable.SaveTrade(ctx, rec, raw)
}

// CloseTrade 标记持久层记录为已平仓。
func (s *Store) CloseTrade(ctx context.Context, orderID string, price decimal.Decimal, at time.Time) error {
	if s.durable == nil {
		return nil
	}
	return s.durable.CloseTrade(ctx, orderID, price, at)
}

func (s *Store) UpdateProtection(ctx context.Context, orderID string, tp, sl *decimal.Decimal) error {
	if s.durable == nil {
		return nil
	}
	return s.durable.UpdateProtection(ctx, orderID, tp, sl)
}

// OpenTradeByOrderID 返回仍处于 open 状态的记录，否则 (nil, nil)。
func (s *Store) OpenTradeByOrderID(ctx context.Context, orderID string) (*types.TradeRecord, error) {
	if s.durable == nil || orderID == "" {
		return nil, nil
	}
	rec, err := s.durable.GetTrade(ctx, orderID)
	if err != nil || rec == nil {
		return nil, err
	}
	if rec.Status != types.TradeOpen {
		return nil, nil
	}
	return rec, nil
}

func (s *Store) ListTrades(ctx context.Context, f gormstore.TradeFilter) ([]types.TradeRecord, error) {
	if s.durable == nil {
		return nil, nil
	}
	return s.durable.ListTrades(ctx, f)
}

// AppendEvent 写审计事件，失败只记录日志。
func (s *Store) AppendEvent(ctx context.Context, evt types.TradeEvent) {
	if s.durable == nil {
		return
	}
	if evt.CreatedAt.IsZero() {
		evt.CreatedAt = s.now()
	}
	if err := s.durable.AppendEvent(ctx, evt); err != nil {
		s.log.Warnf("append %s event for %s failed: %v", evt.Kind, evt.OrderID, err)
	}
}

func (s *Store) ListEvents(ctx context.Context, orderID string, limit int) ([]types.TradeEvent, error) {
	if s.durable == nil {
		return nil, nil
	}
	return s.durable.ListEvents(ctx, orderID, limit)
}

// SignalSnapshot 是写入 state_{instrument} 的最近信号。
type SignalSnapshot struct {
	Instrument string    `json:"instrument"`
	Timeframe  string    `json:"timeframe"`
	Strategy   string    `json:"strategy,omitempty"`
	Side       string    `json:"side"`
	Price      string    `json:"price,omitempty"`
	ReceivedAt time.Time `json:"received_at"`
}

func (s *Store) SaveSignal(ctx context.Context, snap SignalSnapshot) error {
	if snap.ReceivedAt.IsZero() {
		snap.ReceivedAt = s.now()
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return s.fast.SetString(ctx, StateKey(snap.Instrument), string(data))
}

// LastSignal 未记录时返回 (nil, nil)。
func (s *Store) LastSignal(ctx context.Context, instrument string) (*SignalSnapshot, error) {
	raw, err := s.fast.GetString(ctx, StateKey(instrument))
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var snap SignalSnapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		return nil, fmt.Errorf("decode signal snapshot: %w", err)
	}
	return &snap, nil
}
