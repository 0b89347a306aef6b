package mail

import (
	"context"
	"fmt"
	"html/template"
	"strings"

	"storefront/internal/config"

	"github.com/sirupsen/logrus"
	gomail "github.com/wneessen/go-mail"
)

// Mailer delivers password reset tokens. The authentication service only
// depends on this interface.
type Mailer interface {
	SendPasswordResetMail(ctx context.Context, email, username, token string) error
}

var resetMailTemplate = template.Must(template.New("reset_password").Parse(`<html>
<body>
<p>Hello {{.Username}},</p>
<p>A password reset was requested for your account. Use the token below to set a new password:</p>
<p><b>{{.Token}}</b></p>
<p>If you did not request this, you can ignore this message.</p>
</body>
</html>`))

type resetMailData struct {
	Username string
	Token    string
}

// SMTPMailer sends mail through an SMTP server.
type SMTPMailer struct {
	client *gomail.Client
	from   string
}

// NewSMTPMailer builds an SMTP-backed mailer from config.
func NewSMTPMailer(cfg config.Config) (*SMTPMailer, error) {
	client, err := gomail.NewClient(cfg.SMTPHost,
		gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
		gomail.WithSSL(),
		gomail.WithPort(cfg.SMTPPort),
		gomail.WithUsername(cfg.SMTPUsername),
		gomail.WithPassword(cfg.SMTPPassword),
	)
	if err != nil {
		return nil, fmt.Errorf("create mail client: %w", err)
	}

	from := strings.TrimSpace(cfg.SMTPFrom)
	if from == "" {
		from = cfg.SMTPUsername
	}
	return &SMTPMailer{client: client, from: from}, nil
}

// SendPasswordResetMail delivers a reset token to the given address.
func (m *SMTPMailer) SendPasswordResetMail(ctx context.Context, email, username, token string) error {
	msg := gomail.NewMsg()
	if err := msg.From(m.from); err != nil {
		return fmt.Errorf("set mail sender: %w", err)
	}
	if err := msg.To(email); err != nil {
		return fmt.Errorf("set mail recipient: %w", err)
	}
	msg.Subject("Storefront - Password Reset")
	if err := msg.SetBodyHTMLTemplate(resetMailTemplate, resetMailData{Username: username, Token: token}); err != nil {
		return fmt.Errorf("render mail body: %w", err)
	}
	return m.client.DialAndSendWithContext(ctx, msg)
}

// logMailer is the fallback when no SMTP host is configured. It logs the
// token instead of delivering it, which keeps local development usable.
type logMailer struct{}

func (logMailer) SendPasswordResetMail(ctx context.Context, email, username, token string) error {
	logrus.WithFields(logrus.Fields{
		"email":    email,
		"username": username,
		"token":    token,
	}).Info("smtp not configured, password reset token logged")
	return nil
}

// NewMailer returns an SMTP mailer when a host is configured, otherwise the
// log-only fallback.
func NewMailer(cfg config.Config) (Mailer, error) {
	if strings.TrimSpace(cfg.SMTPHost) == "" {
		return logMailer{}, nil
	}
	return NewSMTPMailer(cfg)
}
