// Package symbol 把外部信号常见的交易对写法统一为 OKX instId。
package symbol

import (
	"strings"
)

type Symbol struct {
	Base  string
	Quote string
}

var quoteCurrencies = []string{"USDT", "USDC", "USD", "BTC", "ETH"}

// Parse 支持 BTC/USDT、BTC/USDT:USDT、BTCUSDT、BTCUSDT.P、BTC-USDT、BTC-USDT-SWAP。
func Parse(s string) Symbol {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return Symbol{}
	}
	if idx := strings.Index(s, ":"); idx >= 0 {
		s = s[:idx]
	}
	s = strings.TrimSuffix(s, ".P")

	if parts := strings.SplitN(s, "/", 2); len(parts) == 2 {
		return Symbol{Base: strings.TrimSpace(parts[0]), Quote: strings.TrimSpace(parts[1])}
	}
	if parts := strings.Split(s, "-"); len(parts) >= 2 {
		return Symbol{Base: parts[0], Quote: parts[1]}
	}
	for _, quote := range quoteCurrencies {
		if strings.HasSuffix(s, quote) && len(s) > len(quote) {
			return Symbol{Base: s[:len(s)-len(quote)], Quote: quote}
		}
	}
	return Symbol{}
}

func (s Symbol) Valid() bool {
	return s.Base != "" && s.Quote != ""
}

// InstID 按产品类型拼出 OKX instId：SWAP 追加 -SWAP，SPOT/MARGIN 不追加。
func (s Symbol) InstID(instType string) string {
	if !s.Valid() {
		return ""
	}
	id := s.Base + "-" + s.Quote
	if strings.EqualFold(instType, "SWAP") {
		id += "-SWAP"
	}
	return id
}

// Normalize 返回 raw 对应的 instId。FUTURES 等带交割日的写法无法推断，原样大写返回。
func Normalize(raw, instType string) string {
	upper := strings.ToUpper(strings.TrimSpace(raw))
	if upper == "" {
		return ""
	}
	if strings.Count(upper, "-") >= 2 && !strings.HasSuffix(upper, "-SWAP") {
		return upper
	}
	if id := Parse(upper).InstID(instType); id != "" {
		return id
	}
	return upper
}

// NormalizeList 归一化并去重，保持原有顺序。
func NormalizeList(raw []string, instType string) []string {
	if len(raw) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, s := range raw {
		id := Normalize(s, instType)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
