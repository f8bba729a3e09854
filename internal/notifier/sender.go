package notifier

// Sender delivers a message to the user. Delivery is fire-and-forget from
// the strategy's point of view: callers log failures and move on.
type Sender interface {
	Send(text string) error
}

// NoopSender discards messages; used when Telegram is not configured.
type NoopSender struct{}

func (NoopSender) Send(_ string) error { return nil }
