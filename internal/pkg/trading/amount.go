// Package trading provides trading calculation utilities.
package trading

import (
	"strings"

	"okxbot/internal/types"

	"github.com/shopspring/decimal"
)

// PositionSize computes the order size in contracts:
//
//	size = balance * leverage * risk / stopDistance / contractValue
func PositionSize(balance, leverage, risk, stopDistance, contractValue decimal.Decimal) (decimal.Decimal, error) {
	switch {
	case !balance.IsPositive():
		return decimal.Zero, types.Invalid("balance", "must be positive, got %s", balance)
	case !leverage.IsPositive():
		return decimal.Zero, types.Invalid("leverage", "must be positive, got %s", leverage)
	case !risk.IsPositive():
		return decimal.Zero, types.Invalid("risk", "must be positive, got %s", risk)
	case stopDistance.IsZero():
		return decimal.Zero, types.Invalid("stop_distance", "must not be zero")
	case !contractValue.IsPositive():
		return decimal.Zero, types.Invalid("contract_value", "must be positive, got %s", contractValue)
	}
	return balance.Mul(leverage).Mul(risk).Div(stopDistance.Abs()).Div(contractValue), nil
}

// StopDistance returns |entry - stop|.
func StopDistance(entry, stop decimal.Decimal) decimal.Decimal {
	return entry.Sub(stop).Abs()
}

// RoundToLot floors size to a multiple of lot. A non-positive lot leaves size unchanged.
func RoundToLot(size, lot decimal.Decimal) decimal.Decimal {
	if !lot.IsPositive() {
		return size
	}
	return size.Div(lot).Floor().Mul(lot)
}

var volatilityCoefficients = map[types.Side]map[string]decimal.Decimal{
	types.SideLong: {
		"low":    decimal.RequireFromString("0.98"),
		"medium": decimal.RequireFromString("0.95"),
		"high":   decimal.RequireFromString("0.90"),
	},
	types.SideShort: {
		"low":    decimal.RequireFromString("1.02"),
		"medium": decimal.RequireFromString("1.05"),
		"high":   decimal.RequireFromString("1.10"),
	},
}

// VolatilityStop 按波动等级（low/medium/high）给出固定系数的止损价。
func VolatilityStop(entry decimal.Decimal, side types.Side, level string) (decimal.Decimal, error) {
	if !entry.IsPositive() {
		return decimal.Zero, types.Invalid("entry_price", "must be positive, got %s", entry)
	}
	table, ok := volatilityCoefficients[side]
	if !ok {
		return decimal.Zero, types.Invalid("side", "unknown side %q", side)
	}
	coef, ok := table[strings.ToLower(strings.TrimSpace(level))]
	if !ok {
		return decimal.Zero, types.Invalid("volatility", "unknown level %q", level)
	}
	return entry.Mul(coef), nil
}
