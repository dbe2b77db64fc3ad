// Package mail delivers transactional email over SMTP.
package mail

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"mime"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"

	"github.com/inventory-manager/inventory-manager/internal/shared"
)

// Message kinds, used as a metric label.
const (
	KindInvitation    = "invitation"
	KindPasswordReset = "password_reset"
	KindReminder      = "return_reminder"
)

// Message is a single outgoing email.
type Message struct {
	Kind    string
	To      string
	Subject string
	Text    string
}

// Sender delivers messages.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Config holds SMTP settings.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPSender sends mail through an SMTP relay.
type SMTPSender struct {
	cfg    Config
	logger *slog.Logger
}

// NewSMTPSender constructs an SMTPSender.
func NewSMTPSender(cfg Config, logger *slog.Logger) *SMTPSender {
	return &SMTPSender{cfg: cfg, logger: logger}
}

// Send delivers msg. Any failure is reported as a transport error.
func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if strings.TrimSpace(msg.To) == "" {
		return shared.NewError(shared.ErrValidation, "Recipient address is required")
	}
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))

	var auth sasl.Client
	if s.cfg.Username != "" {
		auth = sasl.NewPlainClient("", s.cfg.Username, s.cfg.Password)
	}

	body := compose(s.cfg.From, msg, time.Now())
	err := s.dial(ctx, addr, auth, msg.To, body)
	if err != nil {
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		if s.logger != nil {
			s.logger.Warn("smtp send failed", slog.String("kind", msg.Kind), slog.String("addr", addr), slog.Any("error", err))
		}
		return transportError(err)
	}
	if s.logger != nil {
		s.logger.Info("mail sent", slog.String("kind", msg.Kind))
	}
	return nil
}

// dial opens the relay connection with ctx and closes it when ctx ends, so a
// cancelled send stops talking to the server.
func (s *SMTPSender) dial(ctx context.Context, addr string, auth sasl.Client, to, body string) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	c := smtp.NewClient(conn)
	defer c.Close()
	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: s.cfg.Host}); err != nil {
			return err
		}
	}
	if auth != nil {
		if err := c.Auth(auth); err != nil {
			return err
		}
	}
	if err := c.SendMail(s.cfg.From, []string{to}, strings.NewReader(body)); err != nil {
		return err
	}
	return c.Quit()
}

func transportError(err error) error {
	return fmt.Errorf("mail: %w: %w", shared.NewError(shared.ErrTransport, "We could not send the email, please try again later"), err)
}

func compose(from string, msg Message, now time.Time) string {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + msg.To + "\r\n")
	b.WriteString("Subject: " + mime.QEncoding.Encode("utf-8", msg.Subject) + "\r\n")
	b.WriteString("Date: " + now.Format(time.RFC1123Z) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("Content-Transfer-Encoding: 8bit\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(msg.Text, "\n", "\r\n"))
	return b.String()
}

// Observer receives the outcome of every send.
type Observer interface {
	MailSent(kind string, err error)
}

type observedSender struct {
	next     Sender
	observer Observer
}

// WithObserver reports each send result to o.
func WithObserver(next Sender, o Observer) Sender {
	if o == nil {
		return next
	}
	return observedSender{next: next, observer: o}
}

func (s observedSender) Send(ctx context.Context, msg Message) error {
	err := s.next.Send(ctx, msg)
	s.observer.MailSent(msg.Kind, err)
	return err
}
