package model

import "gorm.io/datatypes"

// TradeEventModel maps to 'trade_event_log' table.
type TradeEventModel struct {
	ID         int64          `gorm:"column:id;primaryKey"`
	OrderID    string         `gorm:"column:order_id;index"`
	Instrument string         `gorm:"column:instrument"`
	Kind       string         `gorm:"column:kind"`
	Detail     string         `gorm:"column:detail"`
	Payload    datatypes.JSON `gorm:"column:payload;type:TEXT"`
	Timestamp  int64          `gorm:"column:timestamp"`
}

func (TradeEventModel) TableName() string { return "trade_event_log" }
