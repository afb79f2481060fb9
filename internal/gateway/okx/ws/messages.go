// Package ws 封装 OKX 私有频道 websocket：连接、登录、订阅与推送解码。
package ws

import (
	"encoding/json"
	"fmt"
	"strings"

	"okxbot/internal/gateway/okx"

	"github.com/tidwall/gjson"
)

// Kind 标识解码后的消息变体。
type Kind string

const (
	KindPong               Kind = "pong"
	KindLogin              Kind = "login"
	KindSubscribe          Kind = "subscribe"
	KindError              Kind = "error"
	KindPosition           Kind = "positions"
	KindAccount            Kind = "account"
	KindLiquidationWarning Kind = "liquidation-warning"
	KindGeneric            Kind = "generic"
)

// Message 是所有推送变体的公共接口。
type Message interface {
	Kind() Kind
}

type Pong struct{}

type LoginEvent struct {
	Code   string
	Msg    string
	ConnID string
}

func (e LoginEvent) OK() bool { return e.Code == "" || e.Code == "0" }

type SubscribeEvent struct {
	Arg Arg
}

type ErrorEvent struct {
	Code string
	Msg  string
}

// PositionUpdate 是 positions 频道推送。
type PositionUpdate struct {
	Arg       Arg
	Positions []okx.VenuePosition
}

// AccountUpdate 只保留原始数据，账户变化仅记录日志。
type AccountUpdate struct {
	Arg     Arg
	TotalEq string
	Raw     json.RawMessage
}

type LiquidationWarning struct {
	Arg       Arg
	Positions []okx.VenuePosition
}

// GenericEvent 是其它生命周期事件（channel-conn-count 等）或未知频道。
type GenericEvent struct {
	Event   string
	Channel string
	Raw     json.RawMessage
}

func (Pong) Kind() Kind               { return KindPong }
func (LoginEvent) Kind() Kind         { return KindLogin }
func (SubscribeEvent) Kind() Kind     { return KindSubscribe }
func (ErrorEvent) Kind() Kind         { return KindError }
func (PositionUpdate) Kind() Kind     { return KindPosition }
func (AccountUpdate) Kind() Kind      { return KindAccount }
func (LiquidationWarning) Kind() Kind { return KindLiquidationWarning }
func (GenericEvent) Kind() Kind       { return KindGeneric }

// Decode 把一帧文本解码为带标签的消息。非 JSON 或不符合 schema 的推送返回错误。
func Decode(raw []byte) (Message, error) {
	text := strings.TrimSpace(string(raw))
	if text == "pong" {
		return Pong{}, nil
	}
	if text == "" || !gjson.Valid(text) {
		return nil, fmt.Errorf("ws frame is not valid json: %q", clip(text))
	}
	parsed := gjson.Parse(text)
	if !parsed.IsObject() {
		return nil, fmt.Errorf("ws frame must be an object")
	}

	if event := parsed.Get("event"); event.Exists() {
		return decodeEvent(event.String(), parsed), nil
	}

	arg := parseArg(parsed.Get("arg"))
	data := parsed.Get("data")
	if arg.Channel == "" || !data.IsArray() {
		return GenericEvent{Raw: json.RawMessage(text)}, nil
	}
	switch Kind(arg.Channel) {
	case KindPosition:
		if err := validatePositions(data.Raw); err != nil {
			return nil, err
		}
		positions, err := decodePositions(data.Raw)
		if err != nil {
			return nil, err
		}
		return PositionUpdate{Arg: arg, Positions: positions}, nil
	case KindLiquidationWarning:
		positions, err := decodePositions(data.Raw)
		if err != nil {
			return nil, err
		}
		return LiquidationWarning{Arg: arg, Positions: positions}, nil
	case KindAccount:
		return AccountUpdate{
			Arg:     arg,
			TotalEq: data.Get("0.totalEq").String(),
			Raw:     json.RawMessage(data.Raw),
		}, nil
	default:
		return GenericEvent{Channel: arg.Channel, Raw: json.RawMessage(text)}, nil
	}
}

func decodeEvent(event string, parsed gjson.Result) Message {
	switch event {
	case "login":
		return LoginEvent{
			Code:   parsed.Get("code").String(),
			Msg:    parsed.Get("msg").String(),
			ConnID: parsed.Get("connId").String(),
		}
	case "subscribe":
		return SubscribeEvent{Arg: parseArg(parsed.Get("arg"))}
	case "error":
		return ErrorEvent{Code: parsed.Get("code").String(), Msg: parsed.Get("msg").String()}
	default:
		return GenericEvent{Event: event, Channel: parsed.Get("arg.channel").String(), Raw: json.RawMessage(parsed.Raw)}
	}
}

func parseArg(v gjson.Result) Arg {
	return Arg{
		Channel:  v.Get("channel").String(),
		InstType: v.Get("instType").String(),
		InstID:   v.Get("instId").String(),
	}
}

func decodePositions(raw string) ([]okx.VenuePosition, error) {
	var out []okx.VenuePosition
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("decode positions push: %w", err)
	}
	return out, nil
}

func clip(s string) string {
	if len(s) > 256 {
		return s[:256] + "..."
	}
	return s
}
