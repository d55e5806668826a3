package jobs

import (
	"context"
	"fmt"

	"gopkg.in/gomail.v2"
)

// SMTPSender is the part of gomail.Dialer used to deliver messages.
type SMTPSender interface {
	DialAndSend(m ...*gomail.Message) error
}

// SMTPMailer delivers email through an SMTP relay.
type SMTPMailer struct {
	Sender SMTPSender
	From   string
}

// NewSMTPMailer dials host:port for every message. Empty credentials skip AUTH.
func NewSMTPMailer(host string, port int, username, password, from string) SMTPMailer {
	return SMTPMailer{Sender: gomail.NewDialer(host, port, username, password), From: from}
}

// Send implements Mailer.
func (m SMTPMailer) Send(ctx context.Context, msg SendEmailPayload) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	gm := gomail.NewMessage()
	gm.SetHeader("From", m.From)
	gm.SetHeader("To", msg.To)
	gm.SetHeader("Subject", msg.Subject)
	gm.SetBody("text/plain", msg.Body)
	if err := m.Sender.DialAndSend(gm); err != nil {
		return fmt.Errorf("jobs: smtp send to %s: %w", msg.To, err)
	}
	return nil
}
