package mail

import (
	"context"
	"fmt"
	"mime"
	"net/smtp"
	"strings"

	"github.com/pkg/errors"
)

// Message is one outbound email. HTML wins when both bodies are set.
type Message struct {
	From    string
	To      []string
	Subject string
	HTML    string
	Text    string
}

// Sender delivers rendered emails. Tests substitute a recording fake.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

type SMTPConf struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

func (c *SMTPConf) norm() {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port <= 0 {
		c.Port = 587
	}
	if c.From == "" {
		c.From = "noreply@opsflow.com"
	}
}

type smtpSender struct {
	conf SMTPConf
}

func NewSMTPSender(conf SMTPConf) Sender {
	conf.norm()
	return &smtpSender{conf: conf}
}

func (s *smtpSender) Send(_ context.Context, msg Message) error {
	if msg.From == "" {
		msg.From = s.conf.From
	}

	var auth smtp.Auth
	if s.conf.Username != "" {
		auth = smtp.PlainAuth("", s.conf.Username, s.conf.Password, s.conf.Host)
	}

	addr := fmt.Sprintf("%s:%d", s.conf.Host, s.conf.Port)
	if err := smtp.SendMail(addr, auth, msg.From, msg.To, buildMIME(msg)); err != nil {
		return errors.Wrapf(err, "smtp send to %s", strings.Join(msg.To, ","))
	}
	return nil
}

func buildMIME(msg Message) []byte {
	body := msg.HTML
	contentType := "text/html; charset=UTF-8"
	if body == "" {
		body = msg.Text
		contentType = "text/plain; charset=UTF-8"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", msg.From)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(msg.To, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("UTF-8", msg.Subject))
	b.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&b, "Content-Type: %s\r\n\r\n", contentType)
	b.WriteString(body)
	return []byte(b.String())
}
