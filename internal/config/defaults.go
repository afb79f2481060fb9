package config

import (
	"strings"

	"okxbot/internal/pkg/symbol"
)

// 默认值常量
const (
	defaultAppEnv         = "dev"
	defaultAppLogLevel    = "info"
	defaultAppLogPath     = "/data/logs/okxbot.log"
	defaultOKXREST        = "https://www.okx.com"
	defaultOKXWSPrivate   = "wss://ws.okx.com:8443/ws/v5/private"
	defaultOKXWSSandbox   = "wss://wspap.okx.com:8443/ws/v5/private"
	defaultOKXTimeout     = 10
	defaultLeverage       = 10
	defaultRisk           = 0.02
	defaultMarginMode     = "cross"
	defaultInstType       = "SWAP"
	defaultBalanceCcy     = "USDT"
	defaultMaxRetries     = 3
	defaultRetryDelay     = 1
	defaultRedisHost      = "127.0.0.1:6379"
	defaultRedisType      = "node"
	defaultDatabasePath   = "/data/db/okxbot.db"
	defaultReconnectDelay = 5
	defaultPingInterval   = 25
	defaultHTTPAddr       = ":9991"
)

// applyDefaults 为所有子配置应用默认值。
func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	c.OKX.applyDefaults(keys)
	c.Trading.applyDefaults(keys)
	c.Retry.applyDefaults(keys)
	c.Redis.applyDefaults(keys)
	c.Database.applyDefaults(keys)
	c.Listener.applyDefaults(keys)
	c.HTTP.applyDefaults(keys)
}

func (a *AppConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("app.env", &a.Env, defaultAppEnv),
		stringFieldDefault("app.log_level", &a.LogLevel, defaultAppLogLevel),
		stringFieldDefault("app.log_path", &a.LogPath, defaultAppLogPath),
	)
}

func (o *OKXConfig) applyDefaults(keys keySet) {
	if o == nil {
		return
	}
	ws := defaultOKXWSPrivate
	if o.Sandbox {
		ws = defaultOKXWSSandbox
	}
	applyFieldDefaults(keys,
		stringFieldDefault("okx.rest_url", &o.RESTURL, defaultOKXREST),
		stringFieldDefault("okx.ws_private_url", &o.WSPrivateURL, ws),
		intFieldDefault("okx.timeout_seconds", &o.TimeoutSeconds, defaultOKXTimeout),
	)
}

func (t *TradingConfig) applyDefaults(keys keySet) {
	if t == nil {
		return
	}
	applyFieldDefaults(keys,
		intFieldDefault("trading.leverage", &t.Leverage, defaultLeverage),
		fieldDefault{
			key:   "trading.risk",
			need:  func() bool { return t.Risk <= 0 },
			apply: func() { t.Risk = defaultRisk },
		},
		stringFieldDefault("trading.margin_mode", &t.MarginMode, defaultMarginMode),
		stringFieldDefault("trading.inst_type", &t.InstType, defaultInstType),
		stringFieldDefault("trading.balance_ccy", &t.BalanceCcy, defaultBalanceCcy),
	)
	t.MarginMode = strings.ToLower(strings.TrimSpace(t.MarginMode))
	t.InstType = strings.ToUpper(strings.TrimSpace(t.InstType))
	t.Instruments = symbol.NormalizeList(t.Instruments, t.InstType)
	t.Timeframes = normalizeList(t.Timeframes, nil)
}

func (r *RetryConfig) applyDefaults(keys keySet) {
	if r == nil {
		return
	}
	applyFieldDefaults(keys,
		intFieldDefault("retry.max_retries", &r.MaxRetries, defaultMaxRetries),
		intFieldDefault("retry.delay", &r.DelaySeconds, defaultRetryDelay),
	)
}

func (r *RedisConfig) applyDefaults(keys keySet) {
	if r == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("redis.host", &r.Host, defaultRedisHost),
		stringFieldDefault("redis.type", &r.Type, defaultRedisType),
	)
}

func (d *DatabaseConfig) applyDefaults(keys keySet) {
	if d == nil {
		return
	}
	applyFieldDefaults(keys, stringFieldDefault("database.path", &d.Path, defaultDatabasePath))
}

func (l *ListenerConfig) applyDefaults(keys keySet) {
	if l == nil {
		return
	}
	applyFieldDefaults(keys,
		boolFieldDefault("listener.enabled", &l.Enabled, true),
		boolFieldDefault("listener.account", &l.Account, true),
		boolFieldDefault("listener.positions", &l.Positions, true),
		boolFieldDefault("listener.liq_warning", &l.LiquidationWarning, true),
		intFieldDefault("listener.reconnect_delay", &l.ReconnectDelaySeconds, defaultReconnectDelay),
		intFieldDefault("listener.ping_interval", &l.PingIntervalSeconds, defaultPingInterval),
	)
}

func (h *HTTPConfig) applyDefaults(keys keySet) {
	if h == nil {
		return
	}
	applyFieldDefaults(keys,
		boolFieldDefault("http.enabled", &h.Enabled, true),
		stringFieldDefault("http.addr", &h.Addr, defaultHTTPAddr),
	)
}

// Helper functions

func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if def.apply == nil {
			continue
		}
		if def.key != "" && keys.isSet(def.key) {
			continue
		}
		if def.need != nil && !def.need() {
			continue
		}
		def.apply()
	}
}

func stringFieldDefault(key string, target *string, def string) fieldDefault {
	return fieldDefault{
		key: key,
		need: func() bool {
			return target != nil && strings.TrimSpace(*target) == ""
		},
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func intFieldDefault(key string, target *int, def int) fieldDefault {
	return fieldDefault{
		key:  key,
		need: func() bool { return target != nil && *target <= 0 },
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func boolFieldDefault(key string, target *bool, def bool) fieldDefault {
	return fieldDefault{
		key:  key,
		need: func() bool { return target != nil },
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

// normalizeList 去空白、去重，可选地转换大小写。
func normalizeList(in []string, transform func(string) string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, item := range in {
		item = strings.TrimSpace(item)
		if transform != nil {
			item = transform(item)
		}
		if item == "" || seen[item] {
			continue
		}
		seen[item] = true
		out = append(out, item)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
