package types

import (
	"encoding/json"
	"time"
)

type EventKind string

const (
	EventEntry       EventKind = "entry"
	EventTPAttached  EventKind = "tp_attached"
	EventSLAttached  EventKind = "sl_attached"
	EventTPFailed    EventKind = "tp_failed"
	EventSLFailed    EventKind = "sl_failed"
	EventAmended     EventKind = "amended"
	EventClosed      EventKind = "closed"
	EventLiquidation EventKind = "liquidation_warning"
	EventReconciled  EventKind = "reconciled"
)

// TradeEvent 是订单生命周期的审计日志，只写入持久层。
type TradeEvent struct {
	ID         int64           `json:"id"`
	OrderID    string          `json:"order_id"`
	Instrument string          `json:"instrument"`
	Kind       EventKind       `json:"kind"`
	Detail     string          `json:"detail,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}
