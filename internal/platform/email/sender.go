// Package email sends transactional HTML mail. SMTPSender talks to a relay,
// LogSender only logs (development), MockSender records calls for tests.
package email

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/wneessen/go-mail"
)

// Sender delivers one HTML message and returns the message id it was sent
// with.
type Sender interface {
	SendEmail(ctx context.Context, to, subject, html string) (string, error)
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPSender delivers through an SMTP relay using go-mail. A new connection
// is dialed per message.
type SMTPSender struct {
	cfg    SMTPConfig
	domain string
}

func NewSMTPSender(cfg SMTPConfig) (*SMTPSender, error) {
	if cfg.Host == "" {
		return nil, errors.New("smtp host is required")
	}
	if cfg.From == "" {
		return nil, errors.New("smtp from address is required")
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	domain := cfg.Host
	if _, d, ok := cutAt(cfg.From); ok {
		domain = d
	}
	return &SMTPSender{cfg: cfg, domain: domain}, nil
}

func (s *SMTPSender) client() (*mail.Client, error) {
	opts := []mail.Option{
		mail.WithPort(s.cfg.Port),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	}
	if s.cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(s.cfg.Username),
			mail.WithPassword(s.cfg.Password),
		)
	}
	return mail.NewClient(s.cfg.Host, opts...)
}

func (s *SMTPSender) SendEmail(ctx context.Context, to, subject, html string) (string, error) {
	if to == "" {
		return "", errors.New("recipient address is required")
	}

	msg := mail.NewMsg()
	if err := msg.From(s.cfg.From); err != nil {
		return "", fmt.Errorf("set from %q: %w", s.cfg.From, err)
	}
	if err := msg.To(to); err != nil {
		return "", fmt.Errorf("set to %q: %w", to, err)
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextHTML, html)

	id := uuid.NewString()
	msg.SetMessageIDWithValue(id + "@" + s.domain)

	c, err := s.client()
	if err != nil {
		return "", fmt.Errorf("smtp client: %w", err)
	}
	if err := c.DialAndSendWithContext(ctx, msg); err != nil {
		return "", fmt.Errorf("smtp send to %s: %w", to, err)
	}
	return "<" + id + "@" + s.domain + ">", nil
}

func cutAt(addr string) (string, string, bool) {
	for i := len(addr) - 1; i >= 0; i-- {
		if addr[i] == '@' {
			domain := addr[i+1:]
			if n := len(domain); n > 0 && domain[n-1] == '>' {
				domain = domain[:n-1]
			}
			return addr[:i], domain, domain != ""
		}
	}
	return "", "", false
}

// LogSender writes messages to the log instead of sending them.
type LogSender struct {
	logger zerolog.Logger
}

func NewLogSender(logger zerolog.Logger) *LogSender {
	return &LogSender{logger: logger.With().Str("component", "email").Logger()}
}

func (s *LogSender) SendEmail(_ context.Context, to, subject, html string) (string, error) {
	id := "<" + uuid.NewString() + "@localhost>"
	s.logger.Info().
		Str("message_id", id).
		Str("to", to).
		Str("subject", subject).
		Int("body_bytes", len(html)).
		Msg("email not sent: SMTP disabled")
	return id, nil
}

// Call records a single SendEmail invocation.
type Call struct {
	To      string
	Subject string
	HTML    string
}

// MockSender is a test double for Sender.
type MockSender struct {
	mu         sync.Mutex
	calls      []Call
	ShouldFail bool
	FailError  string
}

func (m *MockSender) SendEmail(_ context.Context, to, subject, html string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{To: to, Subject: subject, HTML: html})
	if m.ShouldFail {
		return "", errors.New(m.FailError)
	}
	return fmt.Sprintf("<mock-%d@localhost>", len(m.calls)), nil
}

// Calls returns a copy of the recorded calls.
func (m *MockSender) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}
