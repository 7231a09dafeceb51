package notification

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/rs/zerolog"

	"github.com/stanstork/ssd/internal/config"
)

// Message is one outbound email.
type Message struct {
	From    string
	To      []string
	Subject string
	Body    string
	HTML    bool
}

// Mailer delivers rendered messages.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPMailer sends messages through an SMTP relay.
type SMTPMailer struct {
	host     string
	port     int
	username string
	password string
	logger   zerolog.Logger
}

// NewSMTPMailer constructs a new SMTPMailer from config.
func NewSMTPMailer(cfg config.EmailConfig, logger zerolog.Logger) (*SMTPMailer, error) {
	host := strings.TrimSpace(cfg.SMTPHost)
	if host == "" {
		return nil, fmt.Errorf("smtp_host is required")
	}
	port := cfg.SMTPPort
	if port == 0 {
		port = 587
	}

	return &SMTPMailer{
		host:     host,
		port:     port,
		username: strings.TrimSpace(cfg.Username),
		password: cfg.Password,
		logger:   logger.With().Str("component", "smtp_mailer").Logger(),
	}, nil
}

// Send dispatches msg. net/smtp has no context support, so ctx is only checked before dialing.
func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	recipients := sanitizeRecipients(msg.To)
	if len(recipients) == 0 {
		return fmt.Errorf("no recipients")
	}
	if strings.TrimSpace(msg.From) == "" {
		return fmt.Errorf("email from address is required")
	}

	addr := fmt.Sprintf("%s:%d", m.host, m.port)
	var auth smtp.Auth
	if m.username != "" {
		auth = smtp.PlainAuth("", m.username, m.password, m.host)
	}

	if err := smtp.SendMail(addr, auth, msg.From, recipients, buildMessage(msg, recipients)); err != nil {
		return err
	}

	m.logger.Info().
		Str("subject", msg.Subject).
		Strs("recipients", recipients).
		Msg("email sent")
	return nil
}

func (m *SMTPMailer) String() string {
	return fmt.Sprintf("SMTPMailer(%s:%d)", m.host, m.port)
}

func buildMessage(msg Message, recipients []string) []byte {
	contentType := "text/plain"
	if msg.HTML {
		contentType = "text/html"
	}
	headers := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: %s; charset=\"UTF-8\"\r\n\r\n",
		msg.From, strings.Join(recipients, ","), sanitizeHeader(msg.Subject), contentType)
	return []byte(headers + msg.Body)
}

func sanitizeRecipients(recipients []string) []string {
	var cleaned []string
	for _, recipient := range recipients {
		if r := strings.TrimSpace(recipient); r != "" {
			cleaned = append(cleaned, r)
		}
	}
	return cleaned
}

// sanitizeHeader keeps a header value on one line.
func sanitizeHeader(v string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(v)
}
