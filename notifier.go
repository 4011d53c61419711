package credentials

import (
	"bytes"
	"context"
	"io/fs"
	"net/http"

	"github.com/gofiber/template/django/v3"
	goerrors "github.com/goliatone/go-errors"
)

// Email is a fully rendered message handed to a Sender.
type Email struct {
	To       string
	Subject  string
	HTMLBody string
	TextBody string
}

// Sender delivers rendered emails. Implementations wrap whatever transport
// the host application uses: SMTP, an API client, or a queue.
type Sender interface {
	Send(ctx context.Context, email Email) error
}

// SenderFunc adapts a function to the Sender interface.
type SenderFunc func(ctx context.Context, email Email) error

func (f SenderFunc) Send(ctx context.Context, email Email) error {
	return f(ctx, email)
}

// LogSender writes emails to the logger instead of delivering them. Useful
// for local development where no mail transport is configured.
type LogSender struct {
	Logger Logger
}

func (s LogSender) Send(_ context.Context, email Email) error {
	logger := s.Logger
	if logger == nil {
		logger = defLogger{}
	}
	logger.Warn("email not sent, no transport configured")
	logger.Warn("To: " + email.To)
	logger.Warn("Subject: " + email.Subject)
	logger.Warn(email.TextBody)
	return nil
}

// Mailer renders notifications against the bundled email templates and
// hands them to a Sender. Delivery runs fire-and-forget: a failed send is
// logged and swallowed, it never fails the flow that triggered it.
type Mailer struct {
	engine *django.Engine
	sender Sender
	logger Logger
}

// NewMailer loads the embedded templates and returns a ready notifier.
func NewMailer(sender Sender) (*Mailer, error) {
	sub, err := fs.Sub(templatesFS, "templates/emails")
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to scope template filesystem")
	}

	engine := django.NewFileSystem(http.FS(sub), ".html")
	if err := engine.Load(); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load email templates")
	}

	return &Mailer{
		engine: engine,
		sender: sender,
		logger: defLogger{},
	}, nil
}

func (m *Mailer) WithLogger(logger Logger) *Mailer {
	if logger != nil {
		m.logger = logger
	}
	return m
}

// Notify renders and dispatches the notification. The send happens on its
// own goroutine with a fresh context so it outlives the request.
func (m *Mailer) Notify(ctx context.Context, n Notification) {
	html, err := m.render(n.Template, n.Params)
	if err != nil {
		m.logger.Error("failed to render email template", "template", n.Template, "error", err)
		return
	}

	email := Email{
		To:       n.Recipient,
		Subject:  n.Subject,
		HTMLBody: html,
		TextBody: n.TextBody,
	}

	go func() {
		if err := m.sender.Send(context.WithoutCancel(ctx), email); err != nil {
			m.logger.Error("failed to send email", "to", email.To, "subject", email.Subject, "error", err)
		}
	}()
}

func (m *Mailer) render(template string, params map[string]any) (string, error) {
	var buf bytes.Buffer
	if err := m.engine.Render(&buf, template, params); err != nil {
		return "", err
	}
	return buf.String(), nil
}
