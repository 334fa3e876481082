package toast

import (
	"fmt"
	"log/slog"
	"net/smtp"
)

type MailSender interface {
	Send(to string, subject string, textBody string, htmlBody string) error
}

type SmtpConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	From     string
}

type SmtpMailSender struct {
	config SmtpConfig
}

func NewSmtpMailSender(config SmtpConfig) *SmtpMailSender {
	return &SmtpMailSender{config: config}
}

func (s *SmtpMailSender) Send(to string, subject string, textBody string, htmlBody string) error {
	auth := smtp.PlainAuth("", s.config.User, s.config.Password, s.config.Host)
	address := fmt.Sprintf("%s:%s", s.config.Host, s.config.Port)

	contentType := "text/html"
	body := htmlBody
	if htmlBody == "" {
		contentType = "text/plain"
		body = textBody
	}
	msg := []byte(fmt.Sprintf("To: %s\r\n"+
		"From: %s\r\n"+
		"Subject: %s\r\n"+
		"MIME-version: 1.0\r\n"+
		"Content-Type: %s; charset=\"UTF-8\"\r\n\r\n"+
		"%s", to, s.config.From, subject, contentType, body))

	if err := smtp.SendMail(address, auth, s.config.From, []string{to}, msg); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

type Renderer interface {
	Render(templateName string, data any) (string, error)
}

// MailSurface forwards warning and destructive toasts by e-mail. Default
// toasts are dropped. Sending happens off the caller's goroutine.
type MailSurface struct {
	Sender    MailSender
	Templates Renderer
	To        string
	Log       *slog.Logger

	// send is swapped in tests to run synchronously.
	send func(func())
}

func NewMailSurface(sender MailSender, tmpl Renderer, to string, log *slog.Logger) *MailSurface {
	return &MailSurface{Sender: sender, Templates: tmpl, To: to, Log: log, send: func(f func()) { go f() }}
}

func (s *MailSurface) Show(t Toast) {
	if t.Variant == VariantDefault || s.To == "" {
		return
	}
	s.send(func() {
		htmlBody, err := s.Templates.Render("toast.html", t)
		if err != nil {
			s.Log.Warn("failed to render toast email", "error", err)
		}
		subject := "[anishelf] " + t.Title
		if err := s.Sender.Send(s.To, subject, t.Description, htmlBody); err != nil {
			s.Log.Warn("failed to send toast email", "to", s.To, "error", err)
		}
	})
}
