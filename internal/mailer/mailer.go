// Package mailer renders reminder emails and hands them to a mail transport.
package mailer

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"go.uber.org/zap"
)

// DefaultFromName is the display name reminders are sent under.
const DefaultFromName = "Expiry Reminder"

// ErrInvalidMessage is returned by transports for messages missing a
// recipient, subject or body.
var ErrInvalidMessage = errors.New("invalid message")

// ErrRecipientRejected marks a failure caused by one message or address,
// such as a permanent SMTP reply to RCPT or an SES message rejection. The
// transport itself answered and is healthy.
var ErrRecipientRejected = errors.New("recipient rejected")

// IsRecipientError reports whether err concerns a single message rather than
// the transport.
func IsRecipientError(err error) bool {
	return errors.Is(err, ErrRecipientRejected) || errors.Is(err, ErrInvalidMessage)
}

// Message is one rendered email.
type Message struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

// Validate checks the fields every transport needs.
func (m Message) Validate() error {
	switch {
	case strings.TrimSpace(m.To) == "":
		return fmt.Errorf("%w: missing recipient", ErrInvalidMessage)
	case m.Subject == "":
		return fmt.Errorf("%w: missing subject", ErrInvalidMessage)
	case m.HTML == "" && m.Text == "":
		return fmt.Errorf("%w: empty body", ErrInvalidMessage)
	}
	return nil
}

// Mailer delivers a single message.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// FormatAddress renders `"name" <addr>`, or just addr when name is empty.
func FormatAddress(name, addr string) string {
	if name == "" {
		return addr
	}
	return (&mail.Address{Name: name, Address: addr}).String()
}

// LogMailer logs messages instead of sending them.
type LogMailer struct {
	from   string
	logger *zap.Logger
}

func NewLogMailer(from string, logger *zap.Logger) *LogMailer {
	return &LogMailer{from: from, logger: logger}
}

func (m *LogMailer) Send(ctx context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m.logger.Info("email sent",
		zap.String("transport", "log"),
		zap.String("from", m.from),
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.Int("text_bytes", len(msg.Text)),
	)
	return nil
}
