package ws

import (
	"context"
	"fmt"
	"sync"
	"time"

	"okxbot/internal/gateway/okx"

	"github.com/gorilla/websocket"
)

// Arg 是订阅参数。
type Arg struct {
	Channel  string `json:"channel"`
	InstType string `json:"instType,omitempty"`
	InstID   string `json:"instId,omitempty"`
}

func (a Arg) String() string {
	if a.InstType == "" {
		return a.Channel
	}
	return a.Channel + ":" + a.InstType
}

// Credentials 是私有频道登录所需的明文凭据。
type Credentials struct {
	APIKey     string
	SecretKey  string
	Passphrase string
}

type request struct {
	Op   string `json:"op"`
	Args any    `json:"args"`
}

type loginArg struct {
	APIKey     string `json:"apiKey"`
	Passphrase string `json:"passphrase"`
	Timestamp  string `json:"timestamp"`
	Sign       string `json:"sign"`
}

// Session 是一条私有频道连接。写操作串行化，读操作只能由一个 goroutine 调用。
type Session struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

// Dial 建立连接。
func Dial(ctx context.Context, url string, handshakeTimeout time.Duration) (*Session, error) {
	dialer := *websocket.DefaultDialer
	if handshakeTimeout > 0 {
		dialer.HandshakeTimeout = handshakeTimeout
	}
	conn, resp, err := dialer.DialContext(ctx, url, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return &Session{conn: conn}, nil
}

// Login 发送 op=login，签名基于 Unix 秒。
func (s *Session) Login(creds Credentials, now time.Time) error {
	ts, sign := okx.LoginSign(creds.SecretKey, now.Unix())
	return s.writeJSON(request{
		Op: "login",
		Args: []loginArg{{
			APIKey:     creds.APIKey,
			Passphrase: creds.Passphrase,
			Timestamp:  ts,
			Sign:       sign,
		}},
	})
}

// Subscribe 在一条消息里订阅全部频道。
func (s *Session) Subscribe(args []Arg) error {
	if len(args) == 0 {
		return fmt.Errorf("subscribe: no channels")
	}
	return s.writeJSON(request{Op: "subscribe", Args: args})
}

// Ping 发送文本 "ping"，服务端回 "pong"。
func (s *Session) Ping() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(websocket.TextMessage, []byte("ping"))
}

// Read 阻塞读取下一帧；timeout > 0 时设置读超时。
func (s *Session) Read(timeout time.Duration) ([]byte, error) {
	if timeout > 0 {
		if err := s.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
			return nil, err
		}
	}
	_, data, err := s.conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (s *Session) Close() error {
	if s == nil || s.conn == nil {
		return nil
	}
	s.writeMu.Lock()
	_ = s.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	s.writeMu.Unlock()
	return s.conn.Close()
}

func (s *Session) writeJSON(v any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(v)
}
