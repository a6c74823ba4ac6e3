package notify

import (
	"fmt"
	"net/smtp"

	"github.com/jordan-wright/email"

	"dinero/internal/config"
	apperrors "dinero/internal/errors"
)

// EmailNotifier sends budget alerts over SMTP.
type EmailNotifier struct {
	host string
	port string
	user string
	pass string
	from string
	to   string
}

// NewEmailNotifier creates an EmailNotifier from application config.
func NewEmailNotifier(cfg *config.Config) *EmailNotifier {
	return &EmailNotifier{
		host: cfg.SMTPHost,
		port: cfg.SMTPPort,
		user: cfg.SMTPUser,
		pass: cfg.SMTPPass,
		from: cfg.MailFrom,
		to:   cfg.MailTo,
	}
}

// Send implements Notifier.
func (n *EmailNotifier) Send(budgetID, title, body string, severity Severity) error {
	e := email.NewEmail()
	e.From = n.from
	e.To = []string{n.to}
	e.Subject = fmt.Sprintf("[%s] %s", severity, title)
	e.Text = []byte(body)
	e.Headers.Set("X-Dinero-Budget-ID", budgetID)

	var auth smtp.Auth
	if n.user != "" {
		auth = smtp.PlainAuth("", n.user, n.pass, n.host)
	}

	if err := e.Send(n.host+":"+n.port, auth); err != nil {
		return apperrors.Wrap(apperrors.ErrNotifyFailed, err)
	}
	return nil
}
