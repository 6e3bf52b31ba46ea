package notify

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/smtp"
	"strings"
)

// Message is a plain-text transactional email.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Notifier delivers booking emails. Callers treat every failure as soft:
// a send error is reported back but never fails the booking itself.
type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

type SMTPNotifier struct {
	addr string
	from string
	auth smtp.Auth
}

func NewSMTPNotifier(host, port, username, password, from string) *SMTPNotifier {
	var auth smtp.Auth
	if username != "" {
		auth = smtp.PlainAuth("", username, password, host)
	}
	return &SMTPNotifier{
		addr: net.JoinHostPort(host, port),
		from: from,
		auth: auth,
	}
}

func (n *SMTPNotifier) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", n.from)
	fmt.Fprintf(&b, "To: %s\r\n", msg.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", msg.Subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(msg.Body)

	if err := smtp.SendMail(n.addr, n.auth, n.from, []string{msg.To}, []byte(b.String())); err != nil {
		return fmt.Errorf("send mail to %s: %w", msg.To, err)
	}
	return nil
}

// LogNotifier stands in for SMTP in dev environments: it logs the message
// and reports success.
type LogNotifier struct{}

func (LogNotifier) Send(_ context.Context, msg Message) error {
	log.Printf("notify (log only) to=%s subject=%q", msg.To, msg.Subject)
	return nil
}
