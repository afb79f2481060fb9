package gormstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"okxbot/internal/types"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TradeFilter 用于 ListTrades；零值列出最近的全部记录。
type TradeFilter struct {
	Status     types.TradeStatus
	Instrument string
	Limit      int
}

// SaveTrade 按 order_id upsert 开仓记录，raw 为交易所原始回执。
func (s *GormStore) SaveTrade(ctx context.Context, rec types.TradeRecord, raw []byte) error {
	if err := s.ready(); err != nil {
		return err
	}
	if strings.TrimSpace(rec.OrderID) == "" {
		return fmt.Errorf("order_id 必填")
	}
	model := newTradeRecordModel(rec, raw, time.Now())
	cols := []string{
		"client_order_id", "instrument", "timeframe", "strategy", "side", "kind", "leverage", "size",
		"enter_price", "tp_price", "tp_order_id", "sl_price", "sl_order_id", "balance_at_entry",
		"status", "open_time", "close_time", "close_price", "raw_data", "updated_at",
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "order_id"}},
			DoUpdates: clause.AssignmentColumns(cols),
		}).
		Create(&model).Error
}

// CloseTrade 把 open 记录标记为 closed；记录不存在返回 gorm.ErrRecordNotFound。
func (s *GormStore) CloseTrade(ctx context.Context, orderID string, price decimal.Decimal, at time.Time) error {
	if err := s.ready(); err != nil {
		return err
	}
	closeUnix := at.UnixMilli()
	closePrice := price.String()
	res := s.db.WithContext(ctx).Model(&tradeRecordModel{}).
		Where("order_id = ? AND status = ?", orderID, string(types.TradeOpen)).
		Updates(map[string]interface{}{
			"status":      string(types.TradeClosed),
			"close_time":  closeUnix,
			"close_price": closePrice,
			"updated_at":  time.Now().UnixMilli(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// UpdateProtection 记录修改后的 TP/SL 价格。
func (s *GormStore) UpdateProtection(ctx context.Context, orderID string, tp, sl *decimal.Decimal) error {
	if err := s.ready(); err != nil {
		return err
	}
	updates := map[string]interface{}{"updated_at": time.Now().UnixMilli()}
	if tp != nil {
		updates["tp_price"] = tp.String()
	}
	if sl != nil {
		updates["sl_price"] = sl.String()
	}
	return s.db.WithContext(ctx).Model(&tradeRecordModel{}).Where("order_id = ?", orderID).Updates(updates).Error
}

// GetTrade 未找到时返回 (nil, nil)。
func (s *GormStore) GetTrade(ctx context.Context, orderID string) (*types.TradeRecord, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	var m tradeRecordModel
	err := s.db.WithContext(ctx).Where("order_id = ?", orderID).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	rec := tradeRecordModelToRecord(m)
	return &rec, nil
}

func (s *GormStore) ListTrades(ctx context.Context, f TradeFilter) ([]types.TradeRecord, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	q := s.db.WithContext(ctx).Order("open_time DESC, id DESC").Limit(limit)
	if f.Status != "" {
		q = q.Where("status = ?", string(f.Status))
	}
	if inst := strings.ToUpper(strings.TrimSpace(f.Instrument)); inst != "" {
		q = q.Where("instrument = ?", inst)
	}
	var models []tradeRecordModel
	if err := q.Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]types.TradeRecord, 0, len(models))
	for _, m := range models {
		out = append(out, tradeRecordModelToRecord(m))
	}
	return out, nil
}

func newTradeRecordModel(rec types.TradeRecord, raw []byte, now time.Time) tradeRecordModel {
	m := tradeRecordModel{
		OrderID:        rec.OrderID,
		ClientOrderID:  rec.ClientOrderID,
		Instrument:     rec.Instrument,
		Timeframe:      rec.Timeframe,
		Strategy:       rec.Strategy,
		Side:           string(rec.Side),
		Kind:           string(rec.Kind),
		Leverage:       rec.Leverage,
		Size:           rec.Size.String(),
		EnterPrice:     rec.EnterPrice.String(),
		TPPrice:        decimalPtrToString(rec.TPPrice),
		TPOrderID:      rec.TPOrderID,
		SLPrice:        decimalPtrToString(rec.SLPrice),
		SLOrderID:      rec.SLOrderID,
		BalanceAtEntry: rec.BalanceAtEntry.String(),
		Status:         string(rec.Status),
		OpenUnix:       rec.OpenTime.UnixMilli(),
		ClosePrice:     decimalPtrToString(rec.ClosePrice),
		RawData:        datatypes.JSON(mustJSONBytes(raw)),
		CreatedAtUnix:  now.UnixMilli(),
		UpdatedAtUnix:  now.UnixMilli(),
	}
	if m.Status == "" {
		m.Status = string(types.TradeOpen)
	}
	if rec.CloseTime != nil {
		v := rec.CloseTime.UnixMilli()
		m.CloseUnix = &v
	}
	return m
}

func tradeRecordModelToRecord(m tradeRecordModel) types.TradeRecord {
	rec := types.TradeRecord{
		OrderID:        m.OrderID,
		ClientOrderID:  m.ClientOrderID,
		Instrument:     m.Instrument,
		Timeframe:      m.Timeframe,
		Strategy:       m.Strategy,
		Side:           types.Side(m.Side),
		Kind:           types.OrderKind(m.Kind),
		Leverage:       m.Leverage,
		Size:           parseDecimal(m.Size),
		EnterPrice:     parseDecimal(m.EnterPrice),
		TPPrice:        stringToDecimalPtr(m.TPPrice),
		TPOrderID:      m.TPOrderID,
		SLPrice:        stringToDecimalPtr(m.SLPrice),
		SLOrderID:      m.SLOrderID,
		BalanceAtEntry: parseDecimal(m.BalanceAtEntry),
		OpenTime:       millisToTime(m.OpenUnix),
		ClosePrice:     stringToDecimalPtr(m.ClosePrice),
		Status:         types.TradeStatus(m.Status),
	}
	if m.CloseUnix != nil {
		t := millisToTime(*m.CloseUnix)
		rec.CloseTime = &t
	}
	return rec
}
