package okx

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"okxbot/internal/types"

	"github.com/shopspring/decimal"
)

const (
	pathOrder      = "/api/v5/trade/order"
	pathAlgoOrder  = "/api/v5/trade/order-algo"
	pathAmendAlgos = "/api/v5/trade/amend-algos"
)

// 订单状态。
const (
	StateLive            = "live"
	StatePartiallyFilled = "partially_filled"
	StateFilled          = "filled"
	StateCanceled        = "canceled"
	StateMMPCanceled     = "mmp_canceled"
)

// OrderRequest 对应 POST /api/v5/trade/order。
type OrderRequest struct {
	InstID     string `json:"instId"`
	TdMode     string `json:"tdMode"`
	Side       string `json:"side"`
	PosSide    string `json:"posSide,omitempty"`
	OrdType    string `json:"ordType"`
	Sz         string `json:"sz"`
	Px         string `json:"px,omitempty"`
	ClOrdID    string `json:"clOrdId,omitempty"`
	ReduceOnly bool   `json:"reduceOnly,omitempty"`
}

// AlgoOrderRequest 是单边条件单（止盈或止损），价格 -1 表示触发后市价成交。
type AlgoOrderRequest struct {
	InstID          string `json:"instId"`
	TdMode          string `json:"tdMode"`
	Side            string `json:"side"`
	PosSide         string `json:"posSide,omitempty"`
	OrdType         string `json:"ordType"`
	Sz              string `json:"sz"`
	AlgoClOrdID     string `json:"algoClOrdId,omitempty"`
	TpTriggerPx     string `json:"tpTriggerPx,omitempty"`
	TpOrdPx         string `json:"tpOrdPx,omitempty"`
	TpTriggerPxType string `json:"tpTriggerPxType,omitempty"`
	SlTriggerPx     string `json:"slTriggerPx,omitempty"`
	SlOrdPx         string `json:"slOrdPx,omitempty"`
	SlTriggerPxType string `json:"slTriggerPxType,omitempty"`
	ReduceOnly      bool   `json:"reduceOnly,omitempty"`
}

// AmendAlgoRequest 修改已挂条件单的触发价。
type AmendAlgoRequest struct {
	InstID             string `json:"instId"`
	AlgoID             string `json:"algoId"`
	NewTpTriggerPx     string `json:"newTpTriggerPx,omitempty"`
	NewTpTriggerPxType string `json:"newTpTriggerPxType,omitempty"`
	NewSlTriggerPx     string `json:"newSlTriggerPx,omitempty"`
	NewSlTriggerPxType string `json:"newSlTriggerPxType,omitempty"`
}

// OrderAck 是下单接口 data[0]；条件单使用 AlgoID。
type OrderAck struct {
	OrdID       string `json:"ordId"`
	ClOrdID     string `json:"clOrdId"`
	AlgoID      string `json:"algoId"`
	AlgoClOrdID string `json:"algoClOrdId"`
	SCode       string `json:"sCode"`
	SMsg        string `json:"sMsg"`
}

// ID 返回普通订单号或条件单号。
func (a OrderAck) ID() string {
	if a.OrdID != "" {
		return a.OrdID
	}
	return a.AlgoID
}

// OrderDetail 是订单查询结果，数值字段保留字符串（未成交时 avgPx 为空串）。
type OrderDetail struct {
	InstID    string `json:"instId"`
	OrdID     string `json:"ordId"`
	ClOrdID   string `json:"clOrdId"`
	State     string `json:"state"`
	Side      string `json:"side"`
	PosSide   string `json:"posSide"`
	OrdType   string `json:"ordType"`
	Px        string `json:"px"`
	AvgPx     string `json:"avgPx"`
	Sz        string `json:"sz"`
	AccFillSz string `json:"accFillSz"`
	Lever     string `json:"lever"`
	CTime     string `json:"cTime"`
	FillTime  string `json:"fillTime"`
}

func (o OrderDetail) Filled() bool { return o.State == StateFilled }

func (o OrderDetail) Canceled() bool {
	return o.State == StateCanceled || o.State == StateMMPCanceled
}

func (o OrderDetail) AveragePrice() decimal.Decimal { return parseDecimal(o.AvgPx) }

func (o OrderDetail) FilledSize() decimal.Decimal { return parseDecimal(o.AccFillSz) }

// NotFilledError 表示订单仍在挂单中，轮询可以继续。
type NotFilledError struct {
	OrdID string
	State string
}

func (e *NotFilledError) Error() string {
	return fmt.Sprintf("order %s not filled yet (state=%s)", e.OrdID, e.State)
}

// OrderCanceledError 表示订单在成交前被撤销（含 MMP 撤单），继续轮询没有意义。
type OrderCanceledError struct {
	OrdID string
	State string
}

func (e *OrderCanceledError) Error() string {
	return fmt.Sprintf("order %s %s before fill", e.OrdID, e.State)
}

// PlaceOrder 提交普通订单。
func (c *Client) PlaceOrder(ctx context.Context, req OrderRequest) (OrderAck, error) {
	return c.placeOne(ctx, pathOrder, req)
}

// PlaceAlgoOrder 提交条件单。
func (c *Client) PlaceAlgoOrder(ctx context.Context, req AlgoOrderRequest) (OrderAck, error) {
	if req.OrdType == "" {
		req.OrdType = "conditional"
	}
	return c.placeOne(ctx, pathAlgoOrder, req)
}

func (c *Client) placeOne(ctx context.Context, path string, req any) (OrderAck, error) {
	resp, err := c.Send(ctx, http.MethodPost, path, req, true)
	if err != nil {
		return OrderAck{}, err
	}
	var acks []OrderAck
	if err := resp.DecodeData(&acks); err != nil {
		return OrderAck{}, err
	}
	if len(acks) == 0 {
		return OrderAck{}, fmt.Errorf("%s: empty ack", path)
	}
	ack := acks[0]
	if ack.SCode != "" && ack.SCode != "0" {
		return OrderAck{}, &types.VenueError{Code: ack.SCode, Msg: ack.SMsg}
	}
	return ack, nil
}

// GetOrder 查询订单状态。
func (c *Client) GetOrder(ctx context.Context, instID, ordID string) (OrderDetail, error) {
	return c.getOrder(ctx, Params{"instId": instID, "ordId": ordID})
}

// GetOrderByClientID 按 clOrdId 查询订单，用于下单响应丢失后找回订单号。
func (c *Client) GetOrderByClientID(ctx context.Context, instID, clOrdID string) (OrderDetail, error) {
	return c.getOrder(ctx, Params{"instId": instID, "clOrdId": clOrdID})
}

func (c *Client) getOrder(ctx context.Context, params Params) (OrderDetail, error) {
	resp, err := c.Send(ctx, http.MethodGet, pathOrder, params, true)
	if err != nil {
		return OrderDetail{}, err
	}
	var out []OrderDetail
	if err := resp.DecodeData(&out); err != nil {
		return OrderDetail{}, err
	}
	if len(out) == 0 {
		return OrderDetail{}, &types.VenueError{Code: "51603", Msg: "order does not exist"}
	}
	return out[0], nil
}

// WaitFilled 查询一次订单：已成交返回详情，仍在挂单返回 *NotFilledError，
// 已撤销返回 *OrderCanceledError。外层由 retry.Policy 控制轮询次数。
func (c *Client) WaitFilled(ctx context.Context, instID, ordID string) (OrderDetail, error) {
	detail, err := c.GetOrder(ctx, instID, ordID)
	if err != nil {
		return OrderDetail{}, err
	}
	switch {
	case detail.Filled():
		return detail, nil
	case detail.Canceled():
		return OrderDetail{}, &OrderCanceledError{OrdID: ordID, State: detail.State}
	default:
		return OrderDetail{}, &NotFilledError{OrdID: ordID, State: detail.State}
	}
}

// AmendAlgoOrder 修改条件单触发价。
func (c *Client) AmendAlgoOrder(ctx context.Context, req AmendAlgoRequest) error {
	resp, err := c.Send(ctx, http.MethodPost, pathAmendAlgos, req, true)
	if err != nil {
		return err
	}
	var acks []OrderAck
	if err := resp.DecodeData(&acks); err != nil {
		return err
	}
	for _, ack := range acks {
		if ack.SCode != "" && ack.SCode != "0" {
			return &types.VenueError{Code: ack.SCode, Msg: ack.SMsg}
		}
	}
	return nil
}

func parseDecimal(raw string) decimal.Decimal {
	if raw == "" {
		return decimal.Zero
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero
	}
	return v
}

// FormatLever 把整数杠杆格式化为接口要求的字符串。
func FormatLever(lever int) string { return strconv.Itoa(lever) }
