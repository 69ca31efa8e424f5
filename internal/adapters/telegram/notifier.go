package telegram

import (
	"context"
	"fmt"
	"strings"
	"time"

	"atrSignalBot/internal/ports"

	tele "gopkg.in/telebot.v3"
)

// Channel is a chat addressed by @username or numeric ID.
type Channel string

// Recipient implements tele.Recipient.
func (c Channel) Recipient() string {
	name := strings.TrimSpace(string(c))
	if name != "" && !strings.HasPrefix(name, "@") && !strings.HasPrefix(name, "-") {
		name = "@" + name
	}
	return name
}

// sender is the part of *tele.Bot used to deliver alerts.
type sender interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

// Notifier implements ports.Notifier by posting to a Telegram channel.
type Notifier struct {
	sender  sender
	channel Channel
	logger  ports.Logger
}

// NewNotifier creates a notifier posting to channel through s.
func NewNotifier(s sender, channel Channel, logger ports.Logger) (*Notifier, error) {
	if s == nil {
		return nil, fmt.Errorf("telegram sender is required")
	}
	if channel.Recipient() == "" {
		return nil, fmt.Errorf("telegram channel is required: %w", ports.ErrConfigurationError)
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for telegram notifier")
	}
	return &Notifier{sender: s, channel: channel, logger: logger}, nil
}

// SendMessage posts text to the channel. Failures are returned wrapped in
// ports.ErrNotificationDelivery.
func (n *Notifier) SendMessage(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("send to %s: %w: %w", n.channel.Recipient(), ports.ErrNotificationDelivery, err)
	}
	start := time.Now()
	if _, err := n.sender.Send(n.channel, text, tele.NoPreview); err != nil {
		return fmt.Errorf("send to %s: %w: %w", n.channel.Recipient(), ports.ErrNotificationDelivery, err)
	}
	n.logger.Debug(ctx, "Message delivered", map[string]interface{}{
		"channel":  n.channel.Recipient(),
		"duration": time.Since(start).String(),
	})
	return nil
}
