package email

import (
	"context"
	"fmt"
	"log/slog"
	"net/smtp"

	"inkwell/config"
)

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Mailer sends account emails over SMTP. With no host configured it only
// logs what it would have sent.
type Mailer struct {
	host     string
	port     string
	user     string
	password string
	from     string
	send     sendFunc
}

func NewMailer(cfg config.EmailConfig) *Mailer {
	return &Mailer{
		host:     cfg.SMTPHost,
		port:     cfg.SMTPPort,
		user:     cfg.SMTPUser,
		password: cfg.SMTPPassword,
		from:     cfg.From,
		send:     smtp.SendMail,
	}
}

func (m *Mailer) Enabled() bool {
	return m.host != ""
}

func welcomeMessage(from, to, name string) []byte {
	subject := "Welcome to Inkwell"
	body := fmt.Sprintf(`
Hi %s,

Your Inkwell account is ready. Sign in with %s to start writing.

Posts stay drafts until you publish them, so take your time.

---
Inkwell
`, name, to)

	return []byte(fmt.Sprintf("From: %s\r\n"+
		"To: %s\r\n"+
		"Subject: %s\r\n"+
		"\r\n"+
		"%s\r\n", from, to, subject, body))
}

// SendWelcome greets a newly registered user.
func (m *Mailer) SendWelcome(ctx context.Context, to, name string) error {
	if !m.Enabled() {
		slog.DebugContext(ctx, "SMTP not configured, skipping welcome email", "to", to)
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	var auth smtp.Auth
	if m.user != "" {
		auth = smtp.PlainAuth("", m.user, m.password, m.host)
	}
	addr := fmt.Sprintf("%s:%s", m.host, m.port)

	if err := m.send(addr, auth, m.from, []string{to}, welcomeMessage(m.from, to, name)); err != nil {
		return fmt.Errorf("send welcome email: %w", err)
	}
	slog.InfoContext(ctx, "Welcome email sent", "to", to)
	return nil
}
