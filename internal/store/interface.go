package store

import (
	"context"
	"time"

	"okxbot/internal/store/gormstore"
	"okxbot/internal/types"

	"github.com/shopspring/decimal"
)

// FastTier 是缓存层：positions 列表与最近信号快照。
type FastTier interface {
	// GetPosition returns (nil, nil) on miss.
	GetPosition(ctx context.Context, field string) (*types.PositionState, error)
	PutPosition(ctx context.Context, field string, st types.PositionState) error
	ListPositions(ctx context.Context) ([]types.PositionState, error)
	SetString(ctx context.Context, key, value string) error
	GetString(ctx context.Context, key string) (string, error)
}

// DurableTier 是持久层（审计日志），写失败只记录日志。
type DurableTier interface {
	// GetPosition returns (nil, nil) when the key was never written.
	GetPosition(ctx context.Context, key types.PositionKey) (*types.PositionState, error)
	SavePosition(ctx context.Context, st types.PositionState) error
	ListActivePositions(ctx context.Context) ([]types.PositionState, error)
	SaveTrade(ctx context.Context, rec types.TradeRecord, raw []byte) error
	CloseTrade(ctx context.Context, orderID string, price decimal.Decimal, at time.Time) error
	UpdateProtection(ctx context.Context, orderID string, tp, sl *decimal.Decimal) error
	GetTrade(ctx context.Context, orderID string) (*types.TradeRecord, error)
	ListTrades(ctx context.Context, f gormstore.TradeFilter) ([]types.TradeRecord, error)
	AppendEvent(ctx context.Context, evt types.TradeEvent) error
	ListEvents(ctx context.Context, orderID string, limit int) ([]types.TradeEvent, error)
}

var _ DurableTier = (*gormstore.GormStore)(nil)
