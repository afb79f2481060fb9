package config

import (
	"strings"
	"time"
)

// Config 是 okxbot 的主配置载体，加载后不再修改。
type Config struct {
	App      AppConfig      `toml:"app"`
	OKX      OKXConfig      `toml:"okx"`
	Trading  TradingConfig  `toml:"trading"`
	Retry    RetryConfig    `toml:"retry"`
	Redis    RedisConfig    `toml:"redis"`
	Database DatabaseConfig `toml:"database"`
	Listener ListenerConfig `toml:"listener"`
	HTTP     HTTPConfig     `toml:"http"`
	Notify   NotifyConfig   `toml:"notify"`
}

type AppConfig struct {
	Env      string `toml:"env"`
	LogLevel string `toml:"log_level"`
	LogPath  string `toml:"log_path"`
}

// OKXConfig 是交易所凭据与端点。Encrypted 为 true 时三项凭据为 secretbox 密文。
type OKXConfig struct {
	APIKey         string `toml:"api_key"`
	SecretKey      string `toml:"secret_key"`
	Passphrase     string `toml:"passphrase"`
	Sandbox        bool   `toml:"sandbox"`
	RESTURL        string `toml:"rest_url"`
	WSPrivateURL   string `toml:"ws_private_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	Encrypted      bool   `toml:"encrypted"`
	EncryptionKey  string `toml:"encryption_key"`
}

type TradingConfig struct {
	Instruments []string `toml:"instruments"`
	Timeframes  []string `toml:"timeframes"`
	Leverage    int      `toml:"leverage"`
	// Risk 为单笔风险系数，例如 0.02。
	Risk        float64 `toml:"risk"`
	MarginMode  string  `toml:"margin_mode"`
	PosSideMode bool    `toml:"pos_side_mode"`
	InstType    string  `toml:"inst_type"`
	BalanceCcy  string  `toml:"balance_ccy"`
}

type RetryConfig struct {
	MaxRetries   int `toml:"max_retries"`
	DelaySeconds int `toml:"delay"`
	// FillPollAttempts 为市价单成交确认的轮询次数，为 0 时沿用 MaxRetries。
	FillPollAttempts int `toml:"fill_poll_attempts"`
}

func (r RetryConfig) Delay() time.Duration {
	return time.Duration(r.DelaySeconds) * time.Second
}

type RedisConfig struct {
	Host string `toml:"host"`
	Pass string `toml:"pass"`
	Type string `toml:"type"`
}

type DatabaseConfig struct {
	Path string `toml:"path"`
}

type ListenerConfig struct {
	Enabled               bool `toml:"enabled"`
	Account               bool `toml:"account"`
	Positions             bool `toml:"positions"`
	LiquidationWarning    bool `toml:"liq_warning"`
	ReconnectDelaySeconds int  `toml:"reconnect_delay"`
	PingIntervalSeconds   int  `toml:"ping_interval"`
}

type HTTPConfig struct {
	Enabled bool   `toml:"enabled"`
	Addr    string `toml:"addr"`
}

type NotifyConfig struct {
	Telegram TelegramConfig `toml:"telegram"`
}

type TelegramConfig struct {
	Enabled  bool   `toml:"enabled"`
	BotToken string `toml:"bot_token"`
	ChatID   string `toml:"chat_id"`
}

// keySet 用于追踪配置文件中显式设置的字段路径。
type keySet map[string]struct{}

func (k keySet) mark(path string) {
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return
	}
	k[path] = struct{}{}
}

func (k keySet) isSet(path string) bool {
	if len(k) == 0 {
		return false
	}
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return false
	}
	_, ok := k[path]
	return ok
}

// fieldDefault 描述单个字段的默认值设置规则。
type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}
