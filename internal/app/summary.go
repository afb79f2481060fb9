package app

import (
	"fmt"
	"strings"

	brcfg "okxbot/internal/config"
)

// StartupSummary 启动时打印的一次性配置快照，不含任何凭据。
type StartupSummary struct {
	Env         string
	Sandbox     bool
	RESTURL     string
	WSURL       string
	Instruments []string
	Timeframes  []string
	Leverage    int
	Risk        float64
	MarginMode  string
	PosSideMode bool
	Retries     int
	RetryDelay  string
	Channels    []string
	HTTPAddr    string
	Notify      string
}

func newStartupSummary(cfg *brcfg.Config) *StartupSummary {
	s := &StartupSummary{
		Env:         cfg.App.Env,
		Sandbox:     cfg.OKX.Sandbox,
		RESTURL:     cfg.OKX.RESTURL,
		WSURL:       cfg.OKX.WSPrivateURL,
		Instruments: cfg.Trading.Instruments,
		Timeframes:  cfg.Trading.Timeframes,
		Leverage:    cfg.Trading.Leverage,
		Risk:        cfg.Trading.Risk,
		MarginMode:  cfg.Trading.MarginMode,
		PosSideMode: cfg.Trading.PosSideMode,
		Retries:     cfg.Retry.MaxRetries,
		RetryDelay:  cfg.Retry.Delay().String(),
		Notify:      "-",
	}
	if cfg.Listener.Enabled {
		if cfg.Listener.Account {
			s.Channels = append(s.Channels, "account")
		}
		if cfg.Listener.Positions {
			s.Channels = append(s.Channels, "positions")
		}
		if cfg.Listener.LiquidationWarning {
			s.Channels = append(s.Channels, "liquidation-warning")
		}
	}
	if cfg.HTTP.Enabled {
		s.HTTPAddr = cfg.HTTP.Addr
	}
	if cfg.Notify.Telegram.Enabled {
		s.Notify = "telegram"
	}
	return s
}

// Lines 渲染摘要，每行一项。
func (s *StartupSummary) Lines() []string {
	if s == nil {
		return nil
	}
	mode := "实盘"
	if s.Sandbox {
		mode = "模拟盘"
	}
	posMode := "单向持仓"
	if s.PosSideMode {
		posMode = "双向持仓"
	}
	http := s.HTTPAddr
	if http == "" {
		http = "(关闭)"
	}
	return []string{
		strings.Repeat("=", 60),
		"启动配置摘要 (STARTUP SUMMARY)",
		strings.Repeat("=", 60),
		fmt.Sprintf("环境: %s · %s", s.Env, mode),
		fmt.Sprintf("REST: %s", s.RESTURL),
		fmt.Sprintf("WS: %s", s.WSURL),
		fmt.Sprintf("交易对: %s", formatList(s.Instruments)),
		fmt.Sprintf("周期: %s", formatList(s.Timeframes)),
		fmt.Sprintf("杠杆: x%d · 风险系数 %.4f · %s · %s", s.Leverage, s.Risk, s.MarginMode, posMode),
		fmt.Sprintf("重试: %d 次 · 间隔 %s", s.Retries, s.RetryDelay),
		fmt.Sprintf("订阅频道: %s", formatList(s.Channels)),
		fmt.Sprintf("HTTP: %s", http),
		fmt.Sprintf("通知: %s", s.Notify),
		strings.Repeat("=", 60),
	}
}

func (s *StartupSummary) String() string {
	return strings.Join(s.Lines(), "\n")
}

func formatList(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	return strings.Join(items, ", ")
}
