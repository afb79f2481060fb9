package model

import (
	"gorm.io/datatypes"
)

// PositionStateModel 是缓存层 positions 的持久镜像。
type PositionStateModel struct {
	ID            int64  `gorm:"column:id;primaryKey"`
	Instrument    string `gorm:"column:instrument;uniqueIndex:idx_position_key,priority:1"`
	Timeframe     string `gorm:"column:timeframe;uniqueIndex:idx_position_key,priority:2"`
	Strategy      string `gorm:"column:strategy;uniqueIndex:idx_position_key,priority:3"`
	Side          string `gorm:"column:side"`
	OrderID       string `gorm:"column:order_id"`
	Active        bool   `gorm:"column:active"`
	UpdatedAtUnix int64  `gorm:"column:updated_at"`
}

func (PositionStateModel) TableName() string { return "position_states" }

// TradeRecordModel 一次开仓一行；数值以字符串保存避免精度损失。
type TradeRecordModel struct {
	ID             int64          `gorm:"column:id;primaryKey"`
	OrderID        string         `gorm:"column:order_id;uniqueIndex"`
	ClientOrderID  string         `gorm:"column:client_order_id"`
	Instrument     string         `gorm:"column:instrument;index:idx_trade_inst"`
	Timeframe      string         `gorm:"column:timeframe"`
	Strategy       string         `gorm:"column:strategy"`
	Side           string         `gorm:"column:side"`
	Kind           string         `gorm:"column:kind"`
	Leverage       int            `gorm:"column:leverage"`
	Size           string         `gorm:"column:size"`
	EnterPrice     string         `gorm:"column:enter_price"`
	TPPrice        *string        `gorm:"column:tp_price"`
	TPOrderID      string         `gorm:"column:tp_order_id"`
	SLPrice        *string        `gorm:"column:sl_price"`
	SLOrderID      string         `gorm:"column:sl_order_id"`
	BalanceAtEntry string         `gorm:"column:balance_at_entry"`
	Status         string         `gorm:"column:status;index"`
	OpenUnix       int64          `gorm:"column:open_time"`
	CloseUnix      *int64         `gorm:"column:close_time"`
	ClosePrice     *string        `gorm:"column:close_price"`
	RawData        datatypes.JSON `gorm:"column:raw_data;type:TEXT"`
	CreatedAtUnix  int64          `gorm:"column:created_at"`
	UpdatedAtUnix  int64          `gorm:"column:updated_at"`
}

func (TradeRecordModel) TableName() string { return "trade_records" }
