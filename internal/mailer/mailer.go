// Package mailer delivers availability notifications over SMTP or AWS SES.
package mailer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ignite/domainwatch/internal/config"
)

// ErrNotConfigured is returned by a backend that lacks the settings it needs
// to deliver mail. Sends never succeed silently.
var ErrNotConfigured = errors.New("mail backend not configured")

// ErrAuthUnsupported is returned when SMTP credentials are configured but the
// server does not offer AUTH.
var ErrAuthUnsupported = errors.New("SMTP server does not advertise AUTH")

// Message is one outbound plain-text email.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Mailer sends a single message. Any failure is reported as *MailError.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// MailError describes a failed delivery.
type MailError struct {
	Backend string
	To      string
	Err     error
}

func (e *MailError) Error() string {
	return fmt.Sprintf("%s send to %s: %v", e.Backend, e.To, e.Err)
}

func (e *MailError) Unwrap() error { return e.Err }

// MailerFunc adapts a function to Mailer.
type MailerFunc func(ctx context.Context, msg Message) error

// Send implements Mailer.
func (f MailerFunc) Send(ctx context.Context, msg Message) error { return f(ctx, msg) }

// New builds the backend selected by cfg.Backend.
func New(ctx context.Context, cfg config.MailConfig) (Mailer, error) {
	switch cfg.Backend {
	case "", config.MailBackendSMTP:
		return NewSMTPMailer(cfg), nil
	case config.MailBackendSES:
		return NewSESMailer(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown mail backend %q", cfg.Backend)
	}
}

// headerSafe drops CR and LF so rendered values cannot start new headers.
func headerSafe(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\r' || r == '\n' {
			return -1
		}
		return r
	}, s)
}
