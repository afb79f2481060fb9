package gormstore

import (
	"context"
	"strings"
	"time"

	"okxbot/internal/types"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

func (s *GormStore) AppendEvent(ctx context.Context, evt types.TradeEvent) error {
	if err := s.ready(); err != nil {
		return err
	}
	ts := evt.CreatedAt
	if ts.IsZero() {
		ts = time.Now()
	}
	model := tradeEventModel{
		OrderID:    evt.OrderID,
		Instrument: strings.ToUpper(strings.TrimSpace(evt.Instrument)),
		Kind:       string(evt.Kind),
		Detail:     evt.Detail,
		Payload:    datatypes.JSON(mustJSONBytes(evt.Payload)),
		Timestamp:  ts.UnixMilli(),
	}
	return s.db.WithContext(ctx).Create(&model).Error
}

// ListEvents 按时间倒序返回事件；orderID 为空时列出全部。
func (s *GormStore) ListEvents(ctx context.Context, orderID string, limit int) ([]types.TradeEvent, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	q := s.db.WithContext(ctx).Order("timestamp DESC, id DESC").Limit(limit)
	if orderID != "" {
		q = q.Where("order_id = ?", orderID)
	}
	var models []tradeEventModel
	if err := q.Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]types.TradeEvent, 0, len(models))
	for _, m := range models {
		out = append(out, types.TradeEvent{
			ID:         m.ID,
			OrderID:    m.OrderID,
			Instrument: m.Instrument,
			Kind:       types.EventKind(m.Kind),
			Detail:     m.Detail,
			Payload:    []byte(m.Payload),
			CreatedAt:  millisToTime(m.Timestamp),
		})
	}
	return out, nil
}

// --------------------------- Helper Functions ------------------------------------

func mustJSONBytes(raw []byte) []byte {
	if len(strings.TrimSpace(string(raw))) == 0 {
		return []byte("{}")
	}
	return raw
}

func millisToTime(v int64) time.Time {
	if v <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(v)
}

func parseDecimal(raw string) decimal.Decimal {
	v, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero
	}
	return v
}

func decimalPtrToString(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	s := d.String()
	return &s
}

func stringToDecimalPtr(s *string) *decimal.Decimal {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	v := parseDecimal(*s)
	return &v
}
