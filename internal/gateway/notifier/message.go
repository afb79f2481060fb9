package notifier

import (
	"fmt"
	"strings"
	"time"

	"okxbot/internal/types"

	"github.com/shopspring/decimal"
)

const maxStructuredMessageLen = 3800

// MessageSection 表示通知中的一个段落。
type MessageSection struct {
	Title string
	Lines []string
}

// StructuredMessage 描述统一格式的 Telegram 推送。
type StructuredMessage struct {
	Icon      string
	Title     string
	Sections  []MessageSection
	Footer    string
	Timestamp time.Time
}

// RenderMarkdown 生成 Markdown 文本，自动裁剪长度。
func (m StructuredMessage) RenderMarkdown() string {
	var b strings.Builder
	header := strings.TrimSpace(strings.TrimSpace(m.Icon + " " + m.Title))
	if header != "" {
		b.WriteString(header + "\n\n")
	}
	if block := renderSections(m.Sections); block != "" {
		b.WriteString(block)
	}
	if footer := strings.TrimSpace(m.Footer); footer != "" {
		b.WriteString(sanitize(footer))
		b.WriteString("\n")
	}
	if !m.Timestamp.IsZero() {
		b.WriteString("时间：" + m.Timestamp.Format("2006-01-02 15:04:05 MST"))
	}
	body := strings.TrimSpace(b.String())
	if len(body) > maxStructuredMessageLen {
		body = body[:maxStructuredMessageLen] + "..."
	}
	return body
}

func renderSections(secs []MessageSection) string {
	hasContent := false
	for _, sec := range secs {
		if len(sanitizeLines(sec.Lines)) > 0 {
			hasContent = true
			break
		}
	}
	if !hasContent {
		return ""
	}
	var b strings.Builder
	b.WriteString("```\n")
	for idx, sec := range secs {
		lines := sanitizeLines(sec.Lines)
		if len(lines) == 0 {
			continue
		}
		title := strings.TrimSpace(sec.Title)
		if title != "" {
			b.WriteString(sanitize(title))
			b.WriteString("\n")
		}
		for _, line := range lines {
			b.WriteString("- ")
			b.WriteString(sanitize(line))
			b.WriteString("\n")
		}
		if idx != len(secs)-1 {
			b.WriteString("\n")
		}
	}
	b.WriteString("```\n\n")
	return b.String()
}

func sanitizeLines(lines []string) []string {
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if text := strings.TrimSpace(line); text != "" {
			out = append(out, text)
		}
	}
	return out
}

func sanitize(s string) string {
	s = strings.ReplaceAll(s, "```", "'''")
	return s
}

// EntryMessage 开仓完成。
func EntryMessage(rec types.TradeRecord) StructuredMessage {
	lines := []string{
		fmt.Sprintf("方向 %s · 杠杆 x%d · %s", strings.ToUpper(string(rec.Side)), rec.Leverage, rec.Kind),
		"成交价 " + rec.EnterPrice.String(),
		"数量 " + rec.Size.String(),
	}
	if rec.TPPrice != nil {
		lines = append(lines, "TP "+rec.TPPrice.String())
	}
	if rec.SLPrice != nil {
		lines = append(lines, "SL "+rec.SLPrice.String())
	}
	lines = append(lines, "OrderID "+rec.OrderID)
	return StructuredMessage{
		Icon:      "🚀",
		Title:     fmt.Sprintf("开仓完成：%s %s", rec.Instrument, rec.Timeframe),
		Sections:  []MessageSection{{Title: "执行明细", Lines: lines}},
		Timestamp: rec.OpenTime.UTC(),
	}
}

// CloseMessage 交易所推送的平仓。
func CloseMessage(key types.PositionKey, orderID string, price decimal.Decimal, at time.Time) StructuredMessage {
	return StructuredMessage{
		Icon:  "🏁",
		Title: fmt.Sprintf("仓位已平：%s %s", key.Instrument, key.Timeframe),
		Sections: []MessageSection{{Title: "平仓明细", Lines: []string{
			"最新价 " + price.String(),
			"OrderID " + orderID,
		}}},
		Timestamp: at.UTC(),
	}
}

// ProtectionFailedMessage TP 或 SL 挂单失败，入场单仍然有效。
func ProtectionFailedMessage(key types.PositionKey, leg string, price decimal.Decimal, err error) StructuredMessage {
	return StructuredMessage{
		Icon:  "⚠️",
		Title: fmt.Sprintf("%s 挂单失败：%s %s", strings.ToUpper(leg), key.Instrument, key.Timeframe),
		Sections: []MessageSection{{Title: "详情", Lines: []string{
			"触发价 " + price.String(),
			fmt.Sprintf("错误 %v", err),
		}}},
		Footer:    "入场单已成交，请人工检查保护单",
		Timestamp: time.Now().UTC(),
	}
}

// LiquidationWarningMessage 强平预警。
func LiquidationWarningMessage(instID, posSide, pos string) StructuredMessage {
	return StructuredMessage{
		Icon:  "🔥",
		Title: "强平预警：" + instID,
		Sections: []MessageSection{{Lines: []string{
			"方向 " + posSide,
			"持仓 " + pos,
		}}},
		Timestamp: time.Now().UTC(),
	}
}
