package okx

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	pathBalance     = "/api/v5/account/balance"
	pathTicker      = "/api/v5/market/ticker"
	pathInstruments = "/api/v5/account/instruments"
	pathLeverage    = "/api/v5/account/set-leverage"
	pathPositions   = "/api/v5/account/positions"
)

// InstrumentInfo 合约规格。
type InstrumentInfo struct {
	InstID   string          `json:"instId"`
	InstType string          `json:"instType"`
	CtVal    decimal.Decimal `json:"-"`
	LotSz    decimal.Decimal `json:"-"`
	MinSz    decimal.Decimal `json:"-"`
	TickSz   decimal.Decimal `json:"-"`
	CtValCcy string          `json:"ctValCcy"`
}

type instrumentWire struct {
	InstID   string `json:"instId"`
	InstType string `json:"instType"`
	CtVal    string `json:"ctVal"`
	LotSz    string `json:"lotSz"`
	MinSz    string `json:"minSz"`
	TickSz   string `json:"tickSz"`
	CtValCcy string `json:"ctValCcy"`
}

// VenuePosition 是 /account/positions 与 positions 推送共用的字段子集。
type VenuePosition struct {
	InstID   string `json:"instId"`
	InstType string `json:"instType"`
	PosID    string `json:"posId"`
	PosSide  string `json:"posSide"`
	Pos      string `json:"pos"`
	AvgPx    string `json:"avgPx"`
	Lever    string `json:"lever"`
	MgnMode  string `json:"mgnMode"`
	Upl      string `json:"upl"`
}

// Closed 表示仓位数量为 0。
func (p VenuePosition) Closed() bool {
	return parseDecimal(p.Pos).IsZero()
}

// Balance 返回可用余额；ccy 为空时取第一项明细。
func (c *Client) Balance(ctx context.Context, ccy string) (decimal.Decimal, error) {
	resp, err := c.Send(ctx, http.MethodGet, pathBalance, Params{"ccy": ccy}, true)
	if err != nil {
		return decimal.Zero, err
	}
	var out []struct {
		Details []struct {
			Ccy      string `json:"ccy"`
			AvailBal string `json:"availBal"`
		} `json:"details"`
	}
	if err := resp.DecodeData(&out); err != nil {
		return decimal.Zero, err
	}
	if len(out) == 0 || len(out[0].Details) == 0 {
		return decimal.Zero, fmt.Errorf("balance: no details for %q", ccy)
	}
	for _, d := range out[0].Details {
		if ccy == "" || strings.EqualFold(d.Ccy, ccy) {
			return decimal.NewFromString(d.AvailBal)
		}
	}
	return decimal.Zero, fmt.Errorf("balance: currency %s not found", ccy)
}

// LastPrice 返回最新成交价（公共接口，不签名）。
func (c *Client) LastPrice(ctx context.Context, instID string) (decimal.Decimal, error) {
	resp, err := c.Send(ctx, http.MethodGet, pathTicker, Params{"instId": instID}, false)
	if err != nil {
		return decimal.Zero, err
	}
	var out []struct {
		Last string `json:"last"`
	}
	if err := resp.DecodeData(&out); err != nil {
		return decimal.Zero, err
	}
	if len(out) == 0 {
		return decimal.Zero, fmt.Errorf("ticker %s: empty data", instID)
	}
	px, err := decimal.NewFromString(out[0].Last)
	if err != nil {
		return decimal.Zero, fmt.Errorf("ticker %s: parse last %q: %w", instID, out[0].Last, err)
	}
	return px, nil
}

// Instrument 查询合约规格（ctVal / lotSz）。
func (c *Client) Instrument(ctx context.Context, instType, instID string) (InstrumentInfo, error) {
	resp, err := c.Send(ctx, http.MethodGet, pathInstruments, Params{"instType": instType, "instId": instID}, true)
	if err != nil {
		return InstrumentInfo{}, err
	}
	var out []instrumentWire
	if err := resp.DecodeData(&out); err != nil {
		return InstrumentInfo{}, err
	}
	if len(out) == 0 {
		return InstrumentInfo{}, fmt.Errorf("instrument %s not found", instID)
	}
	w := out[0]
	return InstrumentInfo{
		InstID:   w.InstID,
		InstType: w.InstType,
		CtVal:    parseDecimal(w.CtVal),
		LotSz:    parseDecimal(w.LotSz),
		MinSz:    parseDecimal(w.MinSz),
		TickSz:   parseDecimal(w.TickSz),
		CtValCcy: w.CtValCcy,
	}, nil
}

// SetLeverage 设置杠杆；posSide 仅在逐仓双向持仓时需要。
func (c *Client) SetLeverage(ctx context.Context, instID string, lever int, mgnMode, posSide string) error {
	body := map[string]string{
		"instId":  instID,
		"lever":   FormatLever(lever),
		"mgnMode": mgnMode,
	}
	if posSide != "" {
		body["posSide"] = posSide
	}
	_, err := c.Send(ctx, http.MethodPost, pathLeverage, body, true)
	return err
}

// Positions 查询当前持仓。
func (c *Client) Positions(ctx context.Context, instType, instID string) ([]VenuePosition, error) {
	resp, err := c.Send(ctx, http.MethodGet, pathPositions, Params{"instType": instType, "instId": instID}, true)
	if err != nil {
		return nil, err
	}
	var out []VenuePosition
	if err := resp.DecodeData(&out); err != nil {
		return nil, err
	}
	return out, nil
}
