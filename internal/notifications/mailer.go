package notifications

import (
	"errors"
	"strings"

	gomail "gopkg.in/gomail.v2"

	"github.com/annapurna-foods/api/internal/platform/config"
)

// Message is a single outbound mail.
type Message struct {
	To      string
	Subject string
	HTML    string
}

// Sender delivers rendered mail. Implementations must be safe for
// concurrent use.
type Sender interface {
	Send(msg Message) error
}

// SMTPSender delivers mail over authenticated SMTP.
type SMTPSender struct {
	dialer *gomail.Dialer
	from   string
}

// NewSMTPSender builds a sender from mail configuration.
func NewSMTPSender(cfg config.MailConfig) (*SMTPSender, error) {
	if strings.TrimSpace(cfg.SMTPHost) == "" {
		return nil, errors.New("notifications: smtp host is required")
	}
	if strings.TrimSpace(cfg.FromAddress) == "" {
		return nil, errors.New("notifications: from address is required")
	}
	port := cfg.SMTPPort
	if port <= 0 {
		port = 587
	}

	from := cfg.FromAddress
	if name := strings.TrimSpace(cfg.FromName); name != "" {
		from = name + " <" + cfg.FromAddress + ">"
	}

	return &SMTPSender{
		dialer: gomail.NewDialer(cfg.SMTPHost, port, cfg.SMTPUsername, cfg.SMTPPassword),
		from:   from,
	}, nil
}

// Send delivers one message, dialing per call. Volume is low enough that
// keeping the connection open is not worth the reconnect handling.
func (s *SMTPSender) Send(msg Message) error {
	if s == nil || s.dialer == nil {
		return errors.New("notifications: sender not initialised")
	}
	if strings.TrimSpace(msg.To) == "" {
		return errors.New("notifications: recipient is required")
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/html", msg.HTML)

	return s.dialer.DialAndSend(m)
}
