package mailer

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"

	"codejourney/internal/observability"
)

// Message is a plain-text out-of-band notification.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Notifier delivers messages to users. Delivery failures propagate to the
// caller; the auth flows decide whether a failure is fatal for them.
type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPSender ships messages through a single SMTP relay.
type SMTPSender struct {
	addr string
	from string
	auth smtp.Auth
}

func NewSMTPSender(addr, from, username, password string) *SMTPSender {
	sender := &SMTPSender{addr: addr, from: from}
	if username != "" {
		sender.auth = smtp.PlainAuth("", username, password, hostOnly(addr))
	}

	return sender
}

// Send runs the whole SMTP conversation under the caller's context: the
// dial is context-bound and cancellation or a deadline snaps the
// connection deadline so no read or write can outlive the request.
func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", s.addr)
	if err != nil {
		return fmt.Errorf("dial smtp %s: %w", s.addr, err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Now())
	})
	defer stop()

	host := hostOnly(s.addr)
	client, err := smtp.NewClient(conn, host)
	if err != nil {
		return fmt.Errorf("smtp handshake %s: %w", s.addr, err)
	}
	defer client.Close()

	if s.auth != nil {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(&tls.Config{ServerName: host}); err != nil {
				return fmt.Errorf("smtp starttls: %w", err)
			}
		}
		if err := client.Auth(s.auth); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}

	if err := client.Mail(s.from); err != nil {
		return fmt.Errorf("smtp mail from: %w", err)
	}
	if err := client.Rcpt(msg.To); err != nil {
		return fmt.Errorf("smtp rcpt to: %w", err)
	}

	writer, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}

	payload := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n%s",
		s.from, msg.To, msg.Subject, msg.Body)
	if _, err := writer.Write([]byte(payload)); err != nil {
		return fmt.Errorf("smtp write body: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("smtp close body: %w", err)
	}

	if err := client.Quit(); err != nil {
		return fmt.Errorf("smtp quit: %w", err)
	}

	return nil
}

func hostOnly(addr string) string {
	if i := strings.LastIndex(addr, ":"); i >= 0 {
		return addr[:i]
	}
	return addr
}

// LogSender stands in for SMTP when no relay is configured (local dev).
// It records recipient and subject only; bodies carry secrets.
type LogSender struct {
	logger *observability.Logger
}

func NewLogSender(logger *observability.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(_ context.Context, msg Message) error {
	s.logger.Info("email_skipped_no_smtp", map[string]any{
		"to":      msg.To,
		"subject": msg.Subject,
	})
	return nil
}
