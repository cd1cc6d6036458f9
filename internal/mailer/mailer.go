package mailer

import (
	"context"
	"fmt"

	"github.com/mailgun/mailgun-go/v4"
	"go.uber.org/zap"
)

// Mail is one outbound message. Template names the kind of mail for metrics.
type Mail struct {
	Template string `json:"template"`
	To       string `json:"to"`
	Subject  string `json:"subject"`
	Text     string `json:"text"`
	HTML     string `json:"html,omitempty"`
}

// Mailer delivers a rendered mail.
type Mailer interface {
	Send(ctx context.Context, m Mail) error
}

// Mailgun sends through the Mailgun HTTP API.
type Mailgun struct {
	mg   mailgun.Mailgun
	from string
	log  *zap.Logger
}

func NewMailgun(domain, apiKey, from string, log *zap.Logger) *Mailgun {
	return &Mailgun{mg: mailgun.NewMailgun(domain, apiKey), from: from, log: log}
}

func (m *Mailgun) Send(ctx context.Context, mail Mail) error {
	msg := m.mg.NewMessage(m.from, mail.Subject, mail.Text, mail.To)
	if mail.HTML != "" {
		msg.SetHtml(mail.HTML)
	}
	_, id, err := m.mg.Send(ctx, msg)
	if err != nil {
		return fmt.Errorf("mailgun send %s: %w", mail.Template, err)
	}
	m.log.Debug("mail accepted", zap.String("template", mail.Template), zap.String("id", id))
	return nil
}

// LogMailer writes mail to the log instead of sending it.
type LogMailer struct {
	log *zap.Logger
}

func NewLogMailer(log *zap.Logger) *LogMailer {
	return &LogMailer{log: log}
}

func (m *LogMailer) Send(_ context.Context, mail Mail) error {
	m.log.Info("mail not sent, no provider configured",
		zap.String("template", mail.Template),
		zap.String("to", mail.To),
		zap.String("subject", mail.Subject),
		zap.String("text", mail.Text),
	)
	return nil
}
