package livehttp

import (
	"context"

	"okxbot/internal/executor"
	"okxbot/internal/listener"
	"okxbot/internal/store"
	"okxbot/internal/store/gormstore"
	"okxbot/internal/types"

	"github.com/shopspring/decimal"
)

// StateReader 由 *store.Store 实现。
type StateReader interface {
	List(ctx context.Context) ([]types.PositionState, error)
	Get(ctx context.Context, key types.PositionKey) (*types.PositionState, error)
	ListTrades(ctx context.Context, f gormstore.TradeFilter) ([]types.TradeRecord, error)
	ListEvents(ctx context.Context, orderID string, limit int) ([]types.TradeEvent, error)
	SaveSignal(ctx context.Context, snap store.SignalSnapshot) error
	LastSignal(ctx context.Context, instrument string) (*store.SignalSnapshot, error)
}

// EntryService 由 *executor.Manager 实现。
type EntryService interface {
	Enter(ctx context.Context, req executor.EntryRequest) (types.TradeRecord, error)
	AmendStopLoss(ctx context.Context, key types.PositionKey, price decimal.Decimal) error
	AmendTakeProfit(ctx context.Context, key types.PositionKey, price decimal.Decimal) error
}

// ListenerStatus 由 *listener.Listener 实现。
type ListenerStatus interface {
	Stats() listener.Stats
}

// SignalRequest 是外部信号源推送的开仓信号。
type SignalRequest struct {
	Instrument string           `json:"instrument" binding:"required"`
	Timeframe  string           `json:"timeframe" binding:"required"`
	Strategy   string           `json:"strategy"`
	Side       string           `json:"side" binding:"required"`
	OrderType  string           `json:"order_type"`
	Price      decimal.Decimal  `json:"price"`
	Size       decimal.Decimal  `json:"size"`
	StopLoss   *decimal.Decimal `json:"stop_loss"`
	TakeProfit *decimal.Decimal `json:"take_profit"`
	Volatility string           `json:"volatility"`
	Leverage   int              `json:"leverage"`
	Risk       decimal.Decimal  `json:"risk"`
}

// AmendRequest 修改当前持仓的止盈或止损触发价。
type AmendRequest struct {
	Instrument string          `json:"instrument" binding:"required"`
	Timeframe  string          `json:"timeframe" binding:"required"`
	Strategy   string          `json:"strategy"`
	Leg        string          `json:"leg" binding:"required"`
	Price      decimal.Decimal `json:"price"`
}
