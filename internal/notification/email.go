package notification

import (
	"context"
	"fmt"
	"html"
	"net"
	"time"

	gomail "github.com/wneessen/go-mail"

	"leadchat_backend/platform/config"
)

// EmailSender delivers admin alert emails over SMTP.
type EmailSender interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// SMTPSender implements EmailSender via go-mail.
type SMTPSender struct {
	host      string
	port      int
	username  string
	password  string
	fromEmail string
}

func NewSMTPSender(cfg config.NotificationConfig) *SMTPSender {
	return &SMTPSender{
		host:      cfg.GetSMTPHost(),
		port:      cfg.GetSMTPPort(),
		username:  cfg.GetSMTPUsername(),
		password:  cfg.GetSMTPPassword(),
		fromEmail: cfg.GetEmailFromAddress(),
	}
}

func (s *SMTPSender) Send(ctx context.Context, to, subject, htmlBody string) error {
	msg := gomail.NewMsg()
	if err := msg.From(s.fromEmail); err != nil {
		return fmt.Errorf("smtp from: %w", err)
	}
	if err := msg.To(to); err != nil {
		return fmt.Errorf("smtp to: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(gomail.TypeTextHTML, htmlBody)

	client, err := gomail.NewClient(s.host,
		gomail.WithPort(s.port),
		gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
		gomail.WithUsername(s.username),
		gomail.WithPassword(s.password),
		gomail.WithTLSPortPolicy(gomail.TLSOpportunistic),
		gomail.WithTimeout(15*time.Second),
		gomail.WithDialContextFunc(func(dctx context.Context, _ string, addr string) (net.Conn, error) {
			return (&net.Dialer{}).DialContext(dctx, "tcp4", addr)
		}),
	)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}

	return nil
}

func escalationEmailBody(contactName, sender, reason, lastMessage string, leadScore int) string {
	name := contactName
	if name == "" {
		name = "Unknown parent"
	}
	body := fmt.Sprintf(
		"<h2>Conversation escalated</h2>"+
			"<p><strong>%s</strong> (%s) needs a human.</p>"+
			"<p>Reason: %s<br>Lead score: %d</p>",
		html.EscapeString(name), html.EscapeString(sender), html.EscapeString(reason), leadScore,
	)
	if lastMessage != "" {
		body += fmt.Sprintf("<p>Last message: %q</p>", html.EscapeString(lastMessage))
	}
	body += "<p>The bot is paused for this conversation until someone takes over.</p>"
	return body
}
