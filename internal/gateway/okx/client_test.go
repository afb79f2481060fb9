package okx

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"okxbot/internal/config"
	"okxbot/internal/types"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, 1, 2, 3, 4, 5, 678_000_000, time.UTC)

func newTestClient(t *testing.T, srv *httptest.Server, sandbox bool) *Client {
	t.Helper()
	c, err := NewClient(config.OKXConfig{
		APIKey:     "key",
		SecretKey:  "secret",
		Passphrase: "pass",
		Sandbox:    sandbox,
		RESTURL:    srv.URL,
	})
	require.NoError(t, err)
	c.SetHTTPClient(srv.Client())
	c.SetClock(func() time.Time { return fixedNow })
	return c
}

func TestSignKnownVector(t *testing.T) {
	got := Sign("22582BD0CFF14C41EDBF1AB98506286D", "2020-12-08T09:08:57.715Z", "get", "/api/v5/account/balance?ccy=BTC", "")
	assert.Equal(t, "HiZhvSfMtWJA3uUIVXV3a/bSXNPCWvYFXoGCVS8V4zY=", got)
	assert.Equal(t, got, Sign("22582BD0CFF14C41EDBF1AB98506286D", "2020-12-08T09:08:57.715Z", "GET", "/api/v5/account/balance?ccy=BTC", ""))
}

func TestLoginSign(t *testing.T) {
	ts, sign := LoginSign("secret", 1700000000)
	assert.Equal(t, "1700000000", ts)
	assert.Equal(t, "lhmJXK08fk9SI1ZwFXKFRrPtzfbNOwC+D1xMJJ/1KZg=", sign)
}

func TestTimestampFormat(t *testing.T) {
	loc := time.FixedZone("UTC+8", 8*3600)
	assert.Equal(t, "2024-01-02T03:04:05.678Z", Timestamp(fixedNow.In(loc)))
}

func TestSendSignsPostBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v5/trade/order", r.URL.Path)
		assert.JSONEq(t, `{"instId":"BTC-USDT-SWAP"}`, string(body))
		assert.Equal(t, "key", r.Header.Get("OK-ACCESS-KEY"))
		assert.Equal(t, "pass", r.Header.Get("OK-ACCESS-PASSPHRASE"))
		assert.Equal(t, "2024-01-02T03:04:05.678Z", r.Header.Get("OK-ACCESS-TIMESTAMP"))
		assert.Equal(t, "YIifHKjb3KhxVC84RWyfNBHmJBvYkujpG8DyK34Ye9g=", r.Header.Get("OK-ACCESS-SIGN"))
		assert.Equal(t, "1", r.Header.Get("x-simulated-trading"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		_, _ = w.Write([]byte(`{"code":"0","msg":"","data":[]}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv, true)
	resp, err := c.Send(context.Background(), "post", "/api/v5/trade/order", map[string]string{"instId": "BTC-USDT-SWAP"}, true)
	require.NoError(t, err)
	assert.Equal(t, "0", resp.Code)
}

func TestSendGetSignsQueryString(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "ccy=USDT&instType=SWAP", r.URL.RawQuery)
		want := Sign("secret", "2024-01-02T03:04:05.678Z", "GET", "/api/v5/account/balance?ccy=USDT&instType=SWAP", "")
		assert.Equal(t, want, r.Header.Get("OK-ACCESS-SIGN"))
		assert.Equal(t, "0", r.Header.Get("x-simulated-trading"))
		_, _ = w.Write([]byte(`{"code":"0","data":[]}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv, false)
	_, err := c.Send(context.Background(), http.MethodGet, "/api/v5/account/balance",
		Params{"instType": "SWAP", "ccy": "USDT", "after": ""}, true)
	require.NoError(t, err)
}

func TestSendUnsignedOmitsAuthHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("OK-ACCESS-KEY"))
		assert.Empty(t, r.Header.Get("OK-ACCESS-SIGN"))
		_, _ = w.Write([]byte(`{"code":"0","data":[{"last":"60123.5"}]}`))
	}))
	defer srv.Close()

	px, err := newTestClient(t, srv, false).LastPrice(context.Background(), "BTC-USDT-SWAP")
	require.NoError(t, err)
	assert.True(t, px.Equal(decimal.RequireFromString("60123.5")))
}

func TestSendMapsErrors(t *testing.T) {
	t.Run("http status", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "bad gateway", http.StatusBadGateway)
		}))
		defer srv.Close()
		_, err := newTestClient(t, srv, false).Send(context.Background(), http.MethodGet, "/x", nil, false)
		var te *types.TransportError
		require.ErrorAs(t, err, &te)
		assert.Equal(t, http.StatusBadGateway, te.Status)
		assert.True(t, IsRetryable(err))
	})

	t.Run("network", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
		c := newTestClient(t, srv, false)
		srv.Close()
		_, err := c.Send(context.Background(), http.MethodGet, "/x", nil, false)
		assert.True(t, types.IsTransport(err))
	})

	t.Run("venue envelope", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"code":"51008","msg":"insufficient balance","data":[]}`))
		}))
		defer srv.Close()
		_, err := newTestClient(t, srv, false).Send(context.Background(), http.MethodGet, "/x", nil, true)
		var ve *types.VenueError
		require.ErrorAs(t, err, &ve)
		assert.Equal(t, "51008", ve.Code)
		assert.True(t, IsRetryable(err))
	})

	t.Run("per item code", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"code":"1","msg":"All operations failed","data":[{"sCode":"51000","sMsg":"Parameter sz error"}]}`))
		}))
		defer srv.Close()
		_, err := newTestClient(t, srv, false).PlaceOrder(context.Background(), OrderRequest{InstID: "BTC-USDT-SWAP"})
		var ve *types.VenueError
		require.ErrorAs(t, err, &ve)
		assert.Equal(t, "51000", ve.Code)
		assert.False(t, IsRetryable(err))
	})
}

func TestPlaceOrderAndFillPolling(t *testing.T) {
	var polls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/api/v5/trade/order":
			var req OrderRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "market", req.OrdType)
			assert.Equal(t, "buy", req.Side)
			_, _ = w.Write([]byte(`{"code":"0","data":[{"ordId":"312269865356374016","clOrdId":"` + req.ClOrdID + `","sCode":"0"}]}`))
		case r.Method == http.MethodGet && r.URL.Path == "/api/v5/trade/order":
			if polls.Add(1) == 1 {
				_, _ = w.Write([]byte(`{"code":"0","data":[{"ordId":"312269865356374016","state":"live","avgPx":""}]}`))
				return
			}
			_, _ = w.Write([]byte(`{"code":"0","data":[{"ordId":"312269865356374016","state":"filled","avgPx":"60010.1","accFillSz":"400"}]}`))
		default:
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
	}))
	defer srv.Close()
	c := newTestClient(t, srv, false)

	ack, err := c.PlaceOrder(context.Background(), OrderRequest{InstID: "BTC-USDT-SWAP", TdMode: "cross", Side: "buy", OrdType: "market", Sz: "400", ClOrdID: "abc"})
	require.NoError(t, err)
	assert.Equal(t, "312269865356374016", ack.ID())
	assert.Equal(t, "abc", ack.ClOrdID)

	_, err = c.WaitFilled(context.Background(), "BTC-USDT-SWAP", ack.OrdID)
	var nf *NotFilledError
	require.ErrorAs(t, err, &nf)
	assert.True(t, IsRetryable(err))

	detail, err := c.WaitFilled(context.Background(), "BTC-USDT-SWAP", ack.OrdID)
	require.NoError(t, err)
	assert.True(t, detail.AveragePrice().Equal(decimal.RequireFromString("60010.1")))
}

func TestInstrumentAndBalance(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v5/account/instruments":
			assert.Equal(t, "BTC-USDT-SWAP", r.URL.Query().Get("instId"))
			_, _ = w.Write([]byte(`{"code":"0","data":[{"instId":"BTC-USDT-SWAP","ctVal":"0.01","lotSz":"0.1","minSz":"0.1","tickSz":"0.1"}]}`))
		case "/api/v5/account/balance":
			_, _ = w.Write([]byte(`{"code":"0","data":[{"details":[{"ccy":"BTC","availBal":"1"},{"ccy":"USDT","availBal":"10000"}]}]}`))
		}
	}))
	defer srv.Close()
	c := newTestClient(t, srv, false)

	info, err := c.Instrument(context.Background(), "SWAP", "BTC-USDT-SWAP")
	require.NoError(t, err)
	assert.True(t, info.CtVal.Equal(decimal.RequireFromString("0.01")))
	assert.True(t, info.LotSz.Equal(decimal.RequireFromString("0.1")))

	bal, err := c.Balance(context.Background(), "USDT")
	require.NoError(t, err)
	assert.True(t, bal.Equal(decimal.NewFromInt(10000)))
}

func TestIsRetryable(t *testing.T) {
	assert.False(t, IsRetryable(nil))
	assert.False(t, IsRetryable(types.Invalid("size", "bad")))
	assert.False(t, IsRetryable(&types.VenueError{Code: "50014"}))
	assert.True(t, IsRetryable(&types.VenueError{Code: "50011"}))
	assert.True(t, IsRetryable(&types.TransportError{Op: "GET /x", Status: 503}))
	assert.True(t, IsRetryable(fmt.Errorf("poll: %w", &NotFilledError{OrdID: "1", State: StateLive})))
}

func TestWaitFilledReportsCanceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "ord-5", r.URL.Query().Get("ordId"))
		_, _ = w.Write([]byte(`{"code":"0","data":[{"ordId":"ord-5","state":"mmp_canceled"}]}`))
	}))
	defer srv.Close()
	c := newTestClient(t, srv, false)

	_, err := c.WaitFilled(context.Background(), "BTC-USDT-SWAP", "ord-5")
	var canceled *OrderCanceledError
	require.ErrorAs(t, err, &canceled)
	assert.Equal(t, StateMMPCanceled, canceled.State)
	assert.False(t, types.IsVenue(err))
	assert.False(t, IsRetryable(err))
}

func TestGetOrderByClientID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "clOrdId=abc&instId=BTC-USDT-SWAP", r.URL.RawQuery)
		_, _ = w.Write([]byte(`{"code":"0","data":[{"ordId":"ord-7","clOrdId":"abc","state":"live"}]}`))
	}))
	defer srv.Close()
	c := newTestClient(t, srv, false)

	detail, err := c.GetOrderByClientID(context.Background(), "BTC-USDT-SWAP", "abc")
	require.NoError(t, err)
	assert.Equal(t, "ord-7", detail.OrdID)
	assert.Equal(t, "abc", detail.ClOrdID)
}

func TestDuplicateClientOrderIsNotRetried(t *testing.T) {
	dup := fmt.Errorf("place: %w", &types.VenueError{Code: CodeDuplicateClOrdID, Msg: "Duplicated clOrdId"})
	assert.True(t, IsDuplicateClientOrder(dup))
	assert.False(t, IsRetryable(dup))
	assert.False(t, IsDuplicateClientOrder(&types.VenueError{Code: "51008"}))
}
