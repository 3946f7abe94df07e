package notifications

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Mailer delivers a plain-text message to the configured recipients
type Mailer interface {
	Send(ctx context.Context, subject, body string) error
}

// SMTPConfig configures SMTPMailer
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	StartTLS bool
	From     string
	To       []string
	Timeout  time.Duration
}

// Configured reports whether enough is set to send mail
func (c SMTPConfig) Configured() bool {
	return c.Host != "" && c.From != "" && len(c.To) > 0
}

// With returns c with every non-zero field of o applied over it
func (c SMTPConfig) With(o SMTPConfig) SMTPConfig {
	if o.Host != "" {
		c.Host = o.Host
	}
	if o.Port > 0 {
		c.Port = o.Port
	}
	if o.Username != "" {
		c.Username = o.Username
	}
	if o.Password != "" {
		c.Password = o.Password
	}
	if o.From != "" {
		c.From = o.From
	}
	if len(o.To) > 0 {
		c.To = o.To
	}
	return c
}

// SMTPOverrides supplies SMTP settings changed at runtime. Zero fields defer
// to the base configuration.
type SMTPOverrides interface {
	SMTPOverride() (SMTPConfig, error)
}

// SMTPMailer sends mail through an SMTP relay
type SMTPMailer struct {
	cfg SMTPConfig
	log zerolog.Logger
}

// RuntimeMailer resolves the SMTP configuration on every send so settings
// changes apply without a restart
type RuntimeMailer struct {
	base      SMTPConfig
	overrides SMTPOverrides
	fallback  *LogMailer
	log       zerolog.Logger
}

// NewRuntimeMailer creates a mailer that layers overrides over base
func NewRuntimeMailer(base SMTPConfig, overrides SMTPOverrides, log zerolog.Logger) *RuntimeMailer {
	if base.Timeout <= 0 {
		base.Timeout = 20 * time.Second
	}
	return &RuntimeMailer{
		base:      base,
		overrides: overrides,
		fallback:  NewLogMailer(log),
		log:       log.With().Str("client", "smtp").Logger(),
	}
}

// Config returns the configuration the next Send will use
func (m *RuntimeMailer) Config() SMTPConfig {
	if m.overrides == nil {
		return m.base
	}
	o, err := m.overrides.SMTPOverride()
	if err != nil {
		m.log.Warn().Err(err).Msg("Failed to read SMTP overrides, using environment")
		return m.base
	}
	return m.base.With(o)
}

// Send implements Mailer
func (m *RuntimeMailer) Send(ctx context.Context, subject, body string) error {
	cfg := m.Config()
	if !cfg.Configured() {
		return m.fallback.Send(ctx, subject, body)
	}
	return (&SMTPMailer{cfg: cfg, log: m.log}).Send(ctx, subject, body)
}

// Send implements Mailer
func (m *SMTPMailer) Send(ctx context.Context, subject, body string) error {
	addr := net.JoinHostPort(m.cfg.Host, strconv.Itoa(m.cfg.Port))

	dialer := &net.Dialer{Timeout: m.cfg.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	} else {
		_ = conn.SetDeadline(time.Now().Add(m.cfg.Timeout))
	}

	client, err := smtp.NewClient(conn, m.cfg.Host)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("failed to start SMTP session: %w", err)
	}
	defer client.Close()

	if m.cfg.StartTLS {
		if err := client.StartTLS(&tls.Config{ServerName: m.cfg.Host}); err != nil {
			return fmt.Errorf("STARTTLS failed: %w", err)
		}
	}
	if m.cfg.Username != "" && m.cfg.Password != "" {
		if err := client.Auth(smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)); err != nil {
			return fmt.Errorf("SMTP auth failed: %w", err)
		}
	}

	if err := client.Mail(m.cfg.From); err != nil {
		return fmt.Errorf("MAIL FROM rejected: %w", err)
	}
	for _, to := range m.cfg.To {
		if err := client.Rcpt(to); err != nil {
			return fmt.Errorf("RCPT TO %s rejected: %w", to, err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("DATA rejected: %w", err)
	}
	if _, err := w.Write(buildMessage(m.cfg.From, m.cfg.To, subject, body)); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finish message: %w", err)
	}

	m.log.Info().Str("subject", subject).Int("recipients", len(m.cfg.To)).Msg("Email sent")
	return client.Quit()
}

func buildMessage(from string, to []string, subject, body string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	b.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	return []byte(b.String())
}

// LogMailer writes messages to the log instead of sending them
type LogMailer struct {
	log zerolog.Logger
}

// NewLogMailer creates a LogMailer
func NewLogMailer(log zerolog.Logger) *LogMailer {
	return &LogMailer{log: log.With().Str("client", "log_mailer").Logger()}
}

// Send implements Mailer
func (m *LogMailer) Send(_ context.Context, subject, body string) error {
	m.log.Info().Str("subject", subject).Str("body", body).Msg("Email (not sent, SMTP not configured)")
	return nil
}
