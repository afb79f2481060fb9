package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"okxbot/internal/pkg/secret"
	"okxbot/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

const baseYAML = `
okx:
  api_key: key
  secret_key: secret
  passphrase: pass
trading:
  instruments: [btc-usdt-swap, " BTC/USDT ", ETHUSDT]
  timeframes: [1H, 4H]
`

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.yaml", baseYAML)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"BTC-USDT-SWAP", "ETH-USDT-SWAP"}, cfg.Trading.Instruments)
	assert.Equal(t, 10, cfg.Trading.Leverage)
	assert.InDelta(t, 0.02, cfg.Trading.Risk, 1e-9)
	assert.Equal(t, "cross", cfg.Trading.MarginMode)
	assert.Equal(t, "SWAP", cfg.Trading.InstType)
	assert.Equal(t, 3, cfg.Retry.MaxRetries)
	assert.Equal(t, time.Second, cfg.Retry.Delay())
	assert.Equal(t, "https://www.okx.com", cfg.OKX.RESTURL)
	assert.Equal(t, defaultOKXWSPrivate, cfg.OKX.WSPrivateURL)
	assert.True(t, cfg.Listener.Enabled)
	assert.True(t, cfg.Listener.Positions)
	assert.Equal(t, 5, cfg.Listener.ReconnectDelaySeconds)
	assert.Equal(t, 25, cfg.Listener.PingIntervalSeconds)
	assert.Equal(t, "node", cfg.Redis.Type)
}

func TestLoadRespectsExplicitValues(t *testing.T) {
	body := `
okx:
  sandbox: true
  api_key: key
  secret_key: secret
  passphrase: pass
trading:
  instruments: [BTC-USDT-SWAP]
listener:
  account: false
  liq_warning: false
`
	cfg, err := Load(writeFile(t, t.TempDir(), "config.yaml", body))
	require.NoError(t, err)
	assert.False(t, cfg.Listener.Account)
	assert.False(t, cfg.Listener.LiquidationWarning)
	assert.True(t, cfg.Listener.Positions)
	assert.Equal(t, defaultOKXWSSandbox, cfg.OKX.WSPrivateURL)
}

func TestLoadEnvOverride(t *testing.T) {
	body := `
trading:
  instruments: [BTC-USDT-SWAP]
`
	t.Setenv("OKXBOT_OKX_API_KEY", "env-key")
	t.Setenv("OKXBOT_OKX_SECRET_KEY", "env-secret")
	t.Setenv("OKXBOT_OKX_PASSPHRASE", "env-pass")
	t.Setenv("OKXBOT_REDIS_PASS", "hunter2")

	cfg, err := Load(writeFile(t, t.TempDir(), "config.yaml", body))
	require.NoError(t, err)
	assert.Equal(t, "env-key", cfg.OKX.APIKey)
	assert.Equal(t, "env-secret", cfg.OKX.SecretKey)
	assert.Equal(t, "hunter2", cfg.Redis.Pass)
}

func TestLoadIncludes(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "secrets.yaml", `
okx:
  api_key: key
  secret_key: secret
  passphrase: pass
`)
	main := writeFile(t, dir, "config.yaml", `
include: [secrets.yaml]
trading:
  instruments: [BTC-USDT-SWAP]
  leverage: 20
`)
	cfg, err := Load(main)
	require.NoError(t, err)
	assert.Equal(t, "key", cfg.OKX.APIKey)
	assert.Equal(t, 20, cfg.Trading.Leverage)
}

func TestLoadIncludeCycle(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.yaml", "include: [b.yaml]\n")
	writeFile(t, dir, "b.yaml", "include: [a.yaml]\n")
	_, err := Load(filepath.Join(dir, "a.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "include cycle")
}

func TestLoadDecryptsCredentials(t *testing.T) {
	enc := func(s string) string {
		ct, err := secret.Encrypt("master", s)
		require.NoError(t, err)
		return ct
	}
	body := `
okx:
  encrypted: true
  api_key: "` + enc("key") + `"
  secret_key: "` + enc("secret") + `"
  passphrase: "` + enc("pass") + `"
trading:
  instruments: [BTC-USDT-SWAP]
`
	t.Setenv("OKXBOT_OKX_ENCRYPTION_KEY", "master")
	cfg, err := Load(writeFile(t, t.TempDir(), "config.yaml", body))
	require.NoError(t, err)
	assert.Equal(t, "key", cfg.OKX.APIKey)
	assert.Equal(t, "secret", cfg.OKX.SecretKey)
	assert.Equal(t, "pass", cfg.OKX.Passphrase)
	assert.Empty(t, cfg.OKX.EncryptionKey)

	t.Setenv("OKXBOT_OKX_ENCRYPTION_KEY", "wrong")
	_, err = Load(writeFile(t, t.TempDir(), "config.yaml", body))
	var de *types.DecryptionError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, "okx.api_key", de.Field)
}

func TestLoadValidation(t *testing.T) {
	cases := map[string]string{
		"missing credentials": "trading:\n  instruments: [BTC-USDT-SWAP]\n",
		"no instruments":      "okx: {api_key: k, secret_key: s, passphrase: p}\n",
		"bad timeframe":       "okx: {api_key: k, secret_key: s, passphrase: p}\ntrading:\n  instruments: [BTC-USDT-SWAP]\n  timeframes: [7m]\n",
		"bad margin":          baseYAML + "  margin_mode: portfolio\n",
		"telegram incomplete": baseYAML + "notify:\n  telegram:\n    enabled: true\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeFile(t, t.TempDir(), "config.yaml", body))
			assert.Error(t, err)
		})
	}
}
