// Package notify delivers operational messages (anomaly alerts, daily
// digests) to chat platforms.
package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/zulandar/shopclock/internal/config"
)

// Severity levels map to attachment colors.
const (
	SeverityInfo    = "info"
	SeverityWarning = "warning"
	SeverityError   = "error"
)

// Message is a platform-neutral notification.
type Message struct {
	Title    string
	Body     string
	Severity string
	Fields   []Field
}

// Field is a key-value pair rendered alongside the message.
type Field struct {
	Name  string
	Value string
	Short bool
}

// Sender delivers messages to one destination.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Multi fans a message out to several senders. It also satisfies the
// activity engine's Notifier.
type Multi struct {
	senders []Sender
}

// NewMulti returns a fan-out over senders.
func NewMulti(senders ...Sender) *Multi {
	return &Multi{senders: senders}
}

// Len returns the number of destinations.
func (m *Multi) Len() int { return len(m.senders) }

// Send delivers msg to every sender, returning the joined failures. A
// failing destination does not stop the others.
func (m *Multi) Send(ctx context.Context, msg Message) error {
	var errs []error
	for _, s := range m.senders {
		if err := s.Send(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Notify sends a warning with the given subject and body.
func (m *Multi) Notify(ctx context.Context, subject, body string) error {
	return m.Send(ctx, Message{Title: subject, Body: body, Severity: SeverityWarning})
}

// FromConfig builds senders for every configured platform. The result is
// empty (Len 0) when none are configured.
func FromConfig(cfg config.NotifyConfig) (*Multi, error) {
	var senders []Sender
	if cfg.Slack.Token != "" {
		s, err := NewSlack(SlackOpts{Token: cfg.Slack.Token, Channel: cfg.Slack.Channel})
		if err != nil {
			return nil, fmt.Errorf("notify: %w", err)
		}
		senders = append(senders, s)
	}
	if cfg.Discord.Token != "" {
		d, err := NewDiscord(DiscordOpts{Token: cfg.Discord.Token, Channel: cfg.Discord.Channel})
		if err != nil {
			return nil, fmt.Errorf("notify: %w", err)
		}
		senders = append(senders, d)
	}
	return NewMulti(senders...), nil
}

func severityColor(sev string) string {
	switch sev {
	case SeverityWarning:
		return "#daa038"
	case SeverityError:
		return "#cc0000"
	default:
		return "#36a64f"
	}
}
