// Package okx 实现 OKX v5 REST 接口的签名请求与响应解析。
package okx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"okxbot/internal/config"
	"okxbot/internal/types"
)

const (
	defaultRESTURL = "https://www.okx.com"
	maxErrorBody   = 4096
)

// Params 是 GET 请求的查询参数，空值会被忽略。
type Params map[string]string

// Response 是交易所统一响应信封 {"code","msg","data"}。
type Response struct {
	Code string          `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// DecodeData 将 data 数组解码到 out。
func (r *Response) DecodeData(out any) error {
	if r == nil || len(r.Data) == 0 {
		return fmt.Errorf("okx response has no data")
	}
	if err := json.Unmarshal(r.Data, out); err != nil {
		return fmt.Errorf("decode okx data: %w", err)
	}
	return nil
}

// Client wraps OKX REST API interactions.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	apiKey     string
	secret     string
	passphrase string
	simulated  string
	now        func() time.Time
}

// NewClient 根据配置构建客户端；凭据需已解密。
func NewClient(cfg config.OKXConfig) (*Client, error) {
	raw := strings.TrimSpace(cfg.RESTURL)
	if raw == "" {
		raw = defaultRESTURL
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse okx.rest_url failed: %w", err)
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	flag := "0"
	if cfg.Sandbox {
		flag = "1"
	}
	return &Client{
		baseURL:    parsed,
		httpClient: &http.Client{Timeout: timeout, Transport: http.DefaultTransport.(*http.Transport).Clone()},
		apiKey:     strings.TrimSpace(cfg.APIKey),
		secret:     cfg.SecretKey,
		passphrase: cfg.Passphrase,
		simulated:  flag,
		now:        time.Now,
	}, nil
}

// SetHTTPClient sets the HTTP client for testing.
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// SetClock overrides the timestamp source for testing.
func (c *Client) SetClock(now func() time.Time) {
	if now != nil {
		c.now = now
	}
}

// Send 发送请求：signed=true 时附加签名头。成功返回解析后的信封；
// 网络失败或非 2xx 返回 *types.TransportError，code != "0" 返回 *types.VenueError。
func (c *Client) Send(ctx context.Context, method, path string, body any, signed bool) (*Response, error) {
	if c == nil || c.httpClient == nil {
		return nil, fmt.Errorf("okx client not initialized")
	}
	method = strings.ToUpper(strings.TrimSpace(method))
	op := method + " " + path

	requestPath := path
	var payload string
	if method == http.MethodGet {
		query, err := encodeQuery(body)
		if err != nil {
			return nil, err
		}
		if query != "" {
			requestPath += "?" + query
		}
	} else if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal okx request failed: %w", err)
		}
		payload = string(buf)
	}

	endpoint, err := c.resolveEndpoint(requestPath)
	if err != nil {
		return nil, err
	}
	var reader io.Reader
	if payload != "" {
		reader = strings.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), reader)
	if err != nil {
		return nil, fmt.Errorf("build okx request failed: %w", err)
	}
	c.applyHeaders(req.Header, method, requestPath, payload, signed)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &types.TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &types.TransportError{Op: op, Status: resp.StatusCode, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &types.TransportError{Op: op, Status: resp.StatusCode, Body: truncate(data)}
	}
	var env Response
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, &types.TransportError{Op: op, Status: resp.StatusCode, Body: truncate(data), Err: err}
	}
	if env.Code != "0" {
		return nil, venueError(env)
	}
	return &env, nil
}

func (c *Client) applyHeaders(h http.Header, method, requestPath, body string, signed bool) {
	h.Set("Content-Type", "application/json")
	h.Set("x-simulated-trading", c.simulated)
	if !signed {
		return
	}
	ts := Timestamp(c.now())
	h.Set("OK-ACCESS-KEY", c.apiKey)
	h.Set("OK-ACCESS-SIGN", Sign(c.secret, ts, method, requestPath, body))
	h.Set("OK-ACCESS-TIMESTAMP", ts)
	h.Set("OK-ACCESS-PASSPHRASE", c.passphrase)
}

func (c *Client) resolveEndpoint(requestPath string) (*url.URL, error) {
	if c.baseURL == nil {
		return nil, fmt.Errorf("okx API 地址未设置")
	}
	trimmed := strings.TrimSpace(requestPath)
	query := ""
	if idx := strings.Index(trimmed, "?"); idx >= 0 {
		query = trimmed[idx+1:]
		trimmed = trimmed[:idx]
	}
	if !strings.HasPrefix(trimmed, "/") {
		trimmed = "/" + trimmed
	}
	base := *c.baseURL
	base.Path = strings.TrimSuffix(base.Path, "/") + trimmed
	base.RawPath = ""
	base.RawQuery = query
	base.Fragment = ""
	return &base, nil
}

// encodeQuery 按 key 排序生成查询串，保证签名与实际 URL 一致。
func encodeQuery(body any) (string, error) {
	if body == nil {
		return "", nil
	}
	params, ok := body.(Params)
	if !ok {
		if m, isMap := body.(map[string]string); isMap {
			params = Params(m)
		} else {
			return "", fmt.Errorf("okx GET body must be okx.Params, got %T", body)
		}
	}
	keys := make([]string, 0, len(params))
	for k, v := range params {
		if v == "" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(k))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(params[k]))
	}
	return b.String(), nil
}

type itemStatus struct {
	SCode string `json:"sCode"`
	SMsg  string `json:"sMsg"`
}

// venueError 优先使用 data[].sCode，它比信封上的 1/2 更具体。
func venueError(env Response) error {
	if len(env.Data) > 0 {
		var items []itemStatus
		if err := json.Unmarshal(env.Data, &items); err == nil {
			for _, it := range items {
				if it.SCode != "" && it.SCode != "0" {
					return &types.VenueError{Code: it.SCode, Msg: it.SMsg}
				}
			}
		}
	}
	return &types.VenueError{Code: env.Code, Msg: env.Msg}
}

func truncate(data []byte) string {
	data = bytes.TrimSpace(data)
	if len(data) > maxErrorBody {
		data = data[:maxErrorBody]
	}
	return string(data)
}

// CodeDuplicateClOrdID 表示该 clOrdId 已被交易所接受过。
const CodeDuplicateClOrdID = "51016"

// IsDuplicateClientOrder 报告 err 是否为 clOrdId 重复。
func IsDuplicateClientOrder(err error) bool {
	var ve *types.VenueError
	return errors.As(err, &ve) && ve.Code == CodeDuplicateClOrdID
}

// permanentCodes 是参数类拒绝，重试不会改变结果。
var permanentCodes = map[string]struct{}{
	"50014": {},
	"51000": {},
	"51001": {},
	// 重复 clOrdId 由调用方按订单号回查处理。
	CodeDuplicateClOrdID: {},
}

// IsRetryable 是 retry.Policy 的错误分类器。
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var canceled *OrderCanceledError
	if errors.As(err, &canceled) {
		return false
	}
	var te *types.TransportError
	if errors.As(err, &te) {
		return true
	}
	var ve *types.VenueError
	if errors.As(err, &ve) {
		_, permanent := permanentCodes[ve.Code]
		return !permanent
	}
	var nf *NotFilledError
	return errors.As(err, &nf)
}
