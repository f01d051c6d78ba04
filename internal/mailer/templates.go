package mailer

import (
	"fmt"
	"strings"
	"time"

	"github.com/osteele/liquid"

	"github.com/ignite/domainwatch/internal/domain"
)

// Templates renders the notification subject and body with Liquid. The
// bindings are domain, email and registered_at (RFC 3339).
type Templates struct {
	subject *liquid.Template
	body    *liquid.Template
}

// NewTemplates compiles both templates up front so a bad template fails at
// startup rather than on the first available domain.
func NewTemplates(subjectSrc, bodySrc string) (*Templates, error) {
	engine := liquid.NewEngine()
	subject, err := engine.ParseString(subjectSrc)
	if err != nil {
		return nil, fmt.Errorf("parsing subject template: %w", err)
	}
	body, err := engine.ParseString(bodySrc)
	if err != nil {
		return nil, fmt.Errorf("parsing body template: %w", err)
	}
	return &Templates{subject: subject, body: body}, nil
}

// Render produces the message for a registration whose domain became available.
func (t *Templates) Render(reg domain.Registration) (Message, error) {
	bindings := map[string]interface{}{
		"domain":        reg.Domain,
		"email":         reg.Email,
		"registered_at": reg.CreatedAt.UTC().Format(time.RFC3339),
	}
	subject, err := t.subject.RenderString(bindings)
	if err != nil {
		return Message{}, fmt.Errorf("rendering subject: %w", err)
	}
	body, err := t.body.RenderString(bindings)
	if err != nil {
		return Message{}, fmt.Errorf("rendering body: %w", err)
	}
	return Message{
		To:      reg.Email,
		Subject: strings.TrimSpace(subject),
		Body:    body,
	}, nil
}
