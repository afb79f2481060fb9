package config

import (
	"fmt"
	"strings"

	"okxbot/internal/types"
)

// validate 对配置进行基础校验。
func validate(c *Config) error {
	if err := c.OKX.validate(); err != nil {
		return err
	}
	if err := c.Trading.validate(); err != nil {
		return err
	}
	if err := c.Retry.validate(); err != nil {
		return err
	}
	if err := c.Redis.validate(); err != nil {
		return err
	}
	if err := c.Listener.validate(); err != nil {
		return err
	}
	if err := c.Notify.validate(); err != nil {
		return err
	}
	return nil
}

func (o *OKXConfig) validate() error {
	if strings.TrimSpace(o.APIKey) == "" || strings.TrimSpace(o.SecretKey) == "" || strings.TrimSpace(o.Passphrase) == "" {
		return fmt.Errorf("okx.api_key, okx.secret_key and okx.passphrase are required")
	}
	if o.Encrypted && strings.TrimSpace(o.EncryptionKey) == "" {
		return fmt.Errorf("okx.encryption_key is required when okx.encrypted is true")
	}
	if !strings.HasPrefix(o.RESTURL, "http") {
		return fmt.Errorf("okx.rest_url must be an http(s) url, got %q", o.RESTURL)
	}
	if !strings.HasPrefix(o.WSPrivateURL, "ws") {
		return fmt.Errorf("okx.ws_private_url must be a ws(s) url, got %q", o.WSPrivateURL)
	}
	return nil
}

func (t *TradingConfig) validate() error {
	if len(t.Instruments) == 0 {
		return fmt.Errorf("trading.instruments requires at least one instrument")
	}
	for _, tf := range t.Timeframes {
		if err := types.ValidateTimeframe(tf); err != nil {
			return fmt.Errorf("trading.timeframes: %w", err)
		}
	}
	if t.Leverage <= 0 || t.Leverage > 125 {
		return fmt.Errorf("trading.leverage must be in 1..125, got %d", t.Leverage)
	}
	if t.Risk <= 0 || t.Risk >= 1 {
		return fmt.Errorf("trading.risk must be in (0,1), got %v", t.Risk)
	}
	switch t.MarginMode {
	case "cross", "isolated":
	default:
		return fmt.Errorf("trading.margin_mode must be cross or isolated, got %q", t.MarginMode)
	}
	switch t.InstType {
	case "SWAP", "FUTURES", "MARGIN":
	default:
		return fmt.Errorf("trading.inst_type unsupported: %q", t.InstType)
	}
	return nil
}

func (r *RetryConfig) validate() error {
	if r.MaxRetries <= 0 {
		return fmt.Errorf("retry.max_retries must be > 0")
	}
	if r.DelaySeconds < 0 || r.FillPollAttempts < 0 {
		return fmt.Errorf("retry.delay and retry.fill_poll_attempts must be >= 0")
	}
	return nil
}

func (r *RedisConfig) validate() error {
	switch r.Type {
	case "node", "cluster":
	default:
		return fmt.Errorf("redis.type must be node or cluster, got %q", r.Type)
	}
	if strings.TrimSpace(r.Host) == "" {
		return fmt.Errorf("redis.host is required")
	}
	return nil
}

func (l *ListenerConfig) validate() error {
	if !l.Enabled {
		return nil
	}
	if !l.Account && !l.Positions && !l.LiquidationWarning {
		return fmt.Errorf("listener enabled but no channel selected")
	}
	return nil
}

func (n *NotifyConfig) validate() error {
	if n.Telegram.Enabled {
		if n.Telegram.BotToken == "" || n.Telegram.ChatID == "" {
			return fmt.Errorf("notify.telegram requires bot_token and chat_id when enabled")
		}
	}
	return nil
}
