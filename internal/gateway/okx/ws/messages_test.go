package ws

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeLifecycleEvents(t *testing.T) {
	msg, err := Decode([]byte(`{"event":"login","code":"0","msg":"","connId":"a4d3ae55"}`))
	require.NoError(t, err)
	login, ok := msg.(LoginEvent)
	require.True(t, ok)
	assert.True(t, login.OK())
	assert.Equal(t, "a4d3ae55", login.ConnID)

	msg, err = Decode([]byte(`{"event":"subscribe","arg":{"channel":"positions","instType":"SWAP"},"connId":"a4d3ae55"}`))
	require.NoError(t, err)
	assert.Equal(t, SubscribeEvent{Arg: Arg{Channel: "positions", InstType: "SWAP"}}, msg)

	msg, err = Decode([]byte(`{"event":"error","code":"60009","msg":"Login failed."}`))
	require.NoError(t, err)
	assert.Equal(t, ErrorEvent{Code: "60009", Msg: "Login failed."}, msg)

	msg, err = Decode([]byte(`{"event":"channel-conn-count","channel":"positions","connCount":"2"}`))
	require.NoError(t, err)
	assert.Equal(t, KindGeneric, msg.Kind())

	msg, err = Decode([]byte("pong"))
	require.NoError(t, err)
	assert.Equal(t, KindPong, msg.Kind())
}

func TestDecodePositionPush(t *testing.T) {
	raw := `{"arg":{"channel":"positions","instType":"SWAP"},"data":[
		{"instId":"BTC-USDT-SWAP","posId":"307173036051017730","posSide":"long","pos":"0","avgPx":""},
		{"instId":"ETH-USDT-SWAP","posId":"307173036051017731","posSide":"short","pos":"12"}]}`
	msg, err := Decode([]byte(raw))
	require.NoError(t, err)
	upd, ok := msg.(PositionUpdate)
	require.True(t, ok)
	require.Len(t, upd.Positions, 2)
	assert.True(t, upd.Positions[0].Closed())
	assert.False(t, upd.Positions[1].Closed())
	assert.Equal(t, "long", upd.Positions[0].PosSide)
}

func TestDecodeRejectsMalformed(t *testing.T) {
	_, err := Decode([]byte(`not json`))
	assert.Error(t, err)

	_, err = Decode([]byte(`{"arg":{"channel":"positions"},"data":[{"posSide":"long","pos":"0"}]}`))
	assert.Error(t, err, "instId is required")

	_, err = Decode([]byte(`{"arg":{"channel":"positions"},"data":[{"instId":"BTC-USDT-SWAP","pos":0}]}`))
	assert.Error(t, err, "pos must be a string")
}

func TestDecodeAccountAndWarning(t *testing.T) {
	msg, err := Decode([]byte(`{"arg":{"channel":"account"},"data":[{"totalEq":"10011.5"}]}`))
	require.NoError(t, err)
	acct, ok := msg.(AccountUpdate)
	require.True(t, ok)
	assert.Equal(t, "10011.5", acct.TotalEq)

	msg, err = Decode([]byte(`{"arg":{"channel":"liquidation-warning","instType":"SWAP"},"data":[{"instId":"BTC-USDT-SWAP","posSide":"long","pos":"3"}]}`))
	require.NoError(t, err)
	warn, ok := msg.(LiquidationWarning)
	require.True(t, ok)
	assert.Equal(t, "BTC-USDT-SWAP", warn.Positions[0].InstID)
}
