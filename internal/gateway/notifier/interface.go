package notifier

// TextNotifier defines a minimal text notification interface.
type TextNotifier interface {
	SendText(text string) error
}

// Nop 丢弃所有消息，未配置 Telegram 时使用。
type Nop struct{}

func (Nop) SendText(string) error { return nil }
