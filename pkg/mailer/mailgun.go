package mailer

import (
	"context"
	"time"

	mg "github.com/mailgun/mailgun-go/v4"
)

// Mailgun wraps a Mailgun client and the sender address.
type Mailgun struct {
	client  *mg.MailgunImpl
	Sender  string
	Tag     string
	Timeout time.Duration
}

type MailgunOption func(*Mailgun)

// WithAPIBase points the client at another Mailgun region, e.g. mg.APIBaseEU.
func WithAPIBase(base string) MailgunOption {
	return func(m *Mailgun) {
		if base != "" {
			m.client.SetAPIBase(base)
		}
	}
}

// WithTag tags every message, so login code mail can be filtered in Mailgun.
func WithTag(tag string) MailgunOption { return func(m *Mailgun) { m.Tag = tag } }

func NewMailgun(domain, apiKey, sender string, opts ...MailgunOption) *Mailgun {
	m := &Mailgun{client: mg.NewMailgun(domain, apiKey), Sender: sender, Timeout: 10 * time.Second}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Send sends one message. html is optional.
func (m *Mailgun) Send(ctx context.Context, to, subject, text, html string) error {
	msg := m.client.NewMessage(m.Sender, subject, text, to)
	if html != "" {
		msg.SetHtml(html)
	}
	if m.Tag != "" {
		if err := msg.AddTag(m.Tag); err != nil {
			return err
		}
	}
	c, cancel := context.WithTimeout(ctx, m.Timeout)
	defer cancel()
	_, _, err := m.client.Send(c, msg)
	return err
}
