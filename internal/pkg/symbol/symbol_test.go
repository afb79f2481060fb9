package symbol

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		raw, instType, want string
	}{
		{"BTC/USDT", "SWAP", "BTC-USDT-SWAP"},
		{"btc/usdt:usdt", "SWAP", "BTC-USDT-SWAP"},
		{"BTCUSDT", "SWAP", "BTC-USDT-SWAP"},
		{"BTCUSDT.P", "SWAP", "BTC-USDT-SWAP"},
		{"eth-usdt", "SWAP", "ETH-USDT-SWAP"},
		{"ETH-USDT-SWAP", "SWAP", "ETH-USDT-SWAP"},
		{"ETH-USDT", "SPOT", "ETH-USDT"},
		{"ETHBTC", "MARGIN", "ETH-BTC"},
		{"BTC-USD-250328", "FUTURES", "BTC-USD-250328"},
		{"  ", "SWAP", ""},
		{"XYZ", "SWAP", "XYZ"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Normalize(tc.raw, tc.instType), tc.raw)
	}
}

func TestNormalizeListDedupes(t *testing.T) {
	got := NormalizeList([]string{"btc-usdt-swap", " BTC/USDT ", "", "ETHUSDT"}, "SWAP")
	assert.Equal(t, []string{"BTC-USDT-SWAP", "ETH-USDT-SWAP"}, got)
	assert.Nil(t, NormalizeList(nil, "SWAP"))
}
