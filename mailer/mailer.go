// Package mailer provides the outbound email transports the auth engine
// dispatches through: a real SMTP sender and a log-only sender for
// development environments without mail credentials.
package mailer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/smtp"
	"time"

	"github.com/jordan-wright/email"
)

// SMTPConfig carries the relay credentials and sender identity.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string

	// SendTimeout bounds a single dispatch. Zero means 10s.
	SendTimeout time.Duration
}

// SMTP sends mail through an authenticated SMTP relay.
type SMTP struct {
	cfg  SMTPConfig
	auth smtp.Auth
	addr string
}

// NewSMTP validates the relay configuration and returns a sender.
func NewSMTP(cfg SMTPConfig) (*SMTP, error) {
	if cfg.Host == "" || cfg.Port == 0 {
		return nil, errors.New("smtp host and port are required")
	}
	if cfg.From == "" {
		return nil, errors.New("smtp sender address is required")
	}
	if cfg.SendTimeout == 0 {
		cfg.SendTimeout = 10 * time.Second
	}

	var auth smtp.Auth
	if cfg.Username != "" {
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}

	return &SMTP{
		cfg:  cfg,
		auth: auth,
		addr: fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
	}, nil
}

// Send dispatches one message. The context deadline is honored up to the
// configured send timeout; the underlying dial has its own bound.
func (s *SMTP) Send(ctx context.Context, recipient, subject, body string) error {
	msg := email.NewEmail()
	msg.From = s.cfg.From
	msg.To = []string{recipient}
	msg.Subject = subject
	msg.Text = []byte(body)

	timeout := s.cfg.SendTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	if timeout <= 0 {
		return context.DeadlineExceeded
	}

	done := make(chan error, 1)
	go func() {
		done <- msg.Send(s.addr, s.auth)
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("smtp send: %w", err)
		}
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("smtp send to %s timed out after %s", recipient, timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Log writes mail to a logger instead of sending it. Useful for local
// development where the verification link is read off the console.
type Log struct {
	logger *log.Logger
}

// NewLog returns a logging sender. A nil logger uses the standard logger.
func NewLog(logger *log.Logger) *Log {
	if logger == nil {
		logger = log.Default()
	}
	return &Log{logger: logger}
}

// Send logs the message and reports success.
func (l *Log) Send(_ context.Context, recipient, subject, body string) error {
	l.logger.Printf("mail to=%s subject=%q\n%s", recipient, subject, body)
	return nil
}
