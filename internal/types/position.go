package types

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

// ParseSide 兼容 buy/sell 写法。
func ParseSide(raw string) (Side, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "long", "buy":
		return SideLong, nil
	case "short", "sell":
		return SideShort, nil
	default:
		return "", Invalid("side", "unknown side %q", raw)
	}
}

// OrderSide 返回开仓方向对应的下单 side。
func (s Side) OrderSide() string {
	if s == SideShort {
		return "sell"
	}
	return "buy"
}

// CloseSide 返回平仓（TP/SL）方向对应的下单 side。
func (s Side) CloseSide() string {
	if s == SideShort {
		return "buy"
	}
	return "sell"
}

func (s Side) Valid() bool { return s == SideLong || s == SideShort }

type OrderKind string

const (
	OrderMarket OrderKind = "market"
	OrderLimit  OrderKind = "limit"
)

type TradeStatus string

const (
	TradeOpen   TradeStatus = "open"
	TradeClosed TradeStatus = "closed"
)

// PositionKey 唯一标识一个仓位槽位：instrument + timeframe [+ strategy]。
type PositionKey struct {
	Instrument string `json:"instrument"`
	Timeframe  string `json:"timeframe"`
	Strategy   string `json:"strategy,omitempty"`
}

func NewKey(instrument, timeframe, strategy string) PositionKey {
	return PositionKey{
		Instrument: strings.ToUpper(strings.TrimSpace(instrument)),
		Timeframe:  strings.TrimSpace(timeframe),
		Strategy:   strings.TrimSpace(strategy),
	}
}

func (k PositionKey) String() string {
	if k.Strategy == "" {
		return k.Instrument + "_" + k.Timeframe
	}
	return k.Instrument + "_" + k.Timeframe + "_" + k.Strategy
}

func (k PositionKey) Validate() error {
	if k.Instrument == "" {
		return Invalid("instrument", "is required")
	}
	if k.Timeframe == "" {
		return Invalid("timeframe", "is required")
	}
	return ValidateTimeframe(k.Timeframe)
}

// PositionState 是 "该 key 当前是否有持仓" 的投影，同时存在于缓存层与持久层。
type PositionState struct {
	Key       PositionKey `json:"key"`
	State     *Side       `json:"state"`
	OrderID   string      `json:"order_id"`
	Status    bool        `json:"status"`
	Strategy  string      `json:"strategy,omitempty"`
	UpdatedAt time.Time   `json:"updated_at"`
}

func (p PositionState) Active() bool { return p.Status }

// Direction 返回方向，未设置时为空字符串。
func (p PositionState) Direction() Side {
	if p.State == nil {
		return ""
	}
	return *p.State
}

func SidePtr(s Side) *Side { return &s }

// TradeRecord 是一次开仓订单的持久审计记录。
type TradeRecord struct {
	OrderID        string           `json:"order_id"`
	ClientOrderID  string           `json:"client_order_id,omitempty"`
	Instrument     string           `json:"instrument"`
	Timeframe      string           `json:"timeframe"`
	Strategy       string           `json:"strategy,omitempty"`
	Side           Side             `json:"side"`
	Kind           OrderKind        `json:"kind"`
	Leverage       int              `json:"leverage"`
	Size           decimal.Decimal  `json:"size"`
	EnterPrice     decimal.Decimal  `json:"enter_price"`
	TPPrice        *decimal.Decimal `json:"tp_price,omitempty"`
	TPOrderID      string           `json:"tp_order_id,omitempty"`
	SLPrice        *decimal.Decimal `json:"sl_price,omitempty"`
	SLOrderID      string           `json:"sl_order_id,omitempty"`
	BalanceAtEntry decimal.Decimal  `json:"balance_at_entry"`
	OpenTime       time.Time        `json:"open_time"`
	CloseTime      *time.Time       `json:"close_time,omitempty"`
	ClosePrice     *decimal.Decimal `json:"close_price,omitempty"`
	Status         TradeStatus      `json:"status"`
}

func (r TradeRecord) Key() PositionKey {
	return NewKey(r.Instrument, r.Timeframe, r.Strategy)
}

// Validate 校验 TP/SL 与平仓字段的一致性。
func (r TradeRecord) Validate() error {
	if strings.TrimSpace(r.OrderID) == "" {
		return Invalid("order_id", "is required")
	}
	if r.TPOrderID != "" && r.TPPrice == nil {
		return Invalid("tp_order_id", "set without tp_price")
	}
	if r.SLOrderID != "" && r.SLPrice == nil {
		return Invalid("sl_order_id", "set without sl_price")
	}
	switch r.Status {
	case TradeOpen:
		if r.CloseTime != nil || r.ClosePrice != nil {
			return Invalid("close_time", "set on an open trade")
		}
	case TradeClosed:
		if r.CloseTime == nil {
			return Invalid("close_time", "missing on a closed trade")
		}
	default:
		return Invalid("status", "unknown status %q", r.Status)
	}
	return nil
}

// Timeframes 是交易所支持的 K 线周期。
var Timeframes = []string{
	"1m", "3m", "5m", "15m", "30m", "1H", "2H", "4H",
	"6H", "12H", "1D", "2D", "3D", "1W", "1M", "3M",
	"6Hutc", "12Hutc", "1Dutc", "2Dutc", "3Dutc",
	"1Wutc", "1Mutc", "3Mutc",
}

func ValidateTimeframe(tf string) error {
	for _, v := range Timeframes {
		if v == tf {
			return nil
		}
	}
	return &ValidationError{Field: "timeframe", Reason: fmt.Sprintf("unsupported timeframe %q", tf)}
}
