package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"okxbot/internal/pkg/circuit"
	"okxbot/internal/pkg/retry"
)

const defaultTelegramAPI = "https://api.telegram.org"

// Telegram 通知器：开仓、平仓、保护单失败与强平预警推送至指定群/频道。
type Telegram struct {
	BotToken string
	ChatID   string
	APIBase  string
	Client   *http.Client
	Policy   retry.Policy
	// Breaker 连续失败后暂停推送，避免每笔开仓都等待整轮重试。
	Breaker *circuit.Breaker
}

func NewTelegram(botToken, chatID string) *Telegram {
	return &Telegram{
		BotToken: botToken,
		ChatID:   chatID,
		APIBase:  defaultTelegramAPI,
		Client:   &http.Client{Timeout: 15 * time.Second},
		Policy:   retry.New(3, time.Second).Named("telegram"),
		Breaker:  circuit.New("telegram", 3, 5*time.Minute),
	}
}

// SendText 发送文本消息（带最多 3 次重试）
func (t *Telegram) SendText(text string) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	return t.Send(ctx, text)
}

func (t *Telegram) Send(ctx context.Context, text string) error {
	if t.BotToken == "" || t.ChatID == "" {
		return fmt.Errorf("Telegram 配置不完整")
	}
	base := strings.TrimSuffix(t.APIBase, "/")
	if base == "" {
		base = defaultTelegramAPI
	}
	url := fmt.Sprintf("%s/bot%s/sendMessage", base, t.BotToken)

	payload := map[string]any{
		"chat_id":    t.ChatID,
		"text":       text,
		"parse_mode": "Markdown",
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	send := func() error { return t.post(ctx, url, body) }
	if t.Breaker == nil {
		return send()
	}
	return t.Breaker.Do(send)
}

func (t *Telegram) post(ctx context.Context, url string, body []byte) error {
	return retry.Run(ctx, t.Policy, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := t.Client.Do(req)
		if err != nil {
			return err
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		if resp.StatusCode/100 == 2 {
			return nil
		}
		return fmt.Errorf("telegram status=%d", resp.StatusCode)
	})
}
