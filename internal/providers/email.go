package providers

import (
	"context"
	"fmt"
	"net/smtp"
	"net/textproto"
	"strings"

	"MineSafetyAPI/internal/models"
)

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

type EmailSender struct {
	cfg      SMTPConfig
	sendMail sendMailFunc
}

func NewEmailSender(cfg SMTPConfig) *EmailSender {
	if cfg.From == "" {
		cfg.From = cfg.Username
	}
	return &EmailSender{cfg: cfg, sendMail: smtp.SendMail}
}

func (e *EmailSender) Configured() bool {
	return e.cfg.Host != "" && e.cfg.Port != 0 && e.cfg.From != ""
}

func (e *EmailSender) Send(ctx context.Context, r models.Recipient, message string) models.DeliveryResult {
	if !strings.Contains(r.Address, "@") {
		return models.DeliveryResult{Reason: fmt.Sprintf("invalid email address %q", r.Address), Permanent: true}
	}

	subject := "Mine safety alert"
	if strings.HasPrefix(message, "EMERGENCY") {
		subject = "EMERGENCY: mine safety alert"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", e.cfg.From)
	fmt.Fprintf(&b, "To: %s\r\n", r.Address)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=UTF-8\r\n\r\n")
	b.WriteString(message)
	b.WriteString("\r\n")

	var auth smtp.Auth
	if e.cfg.Username != "" {
		auth = smtp.PlainAuth("", e.cfg.Username, e.cfg.Password, e.cfg.Host)
	}
	addr := fmt.Sprintf("%s:%d", e.cfg.Host, e.cfg.Port)

	// net/smtp has no context support; the dispatcher bounds the call
	done := make(chan error, 1)
	go func() { done <- e.sendMail(addr, auth, e.cfg.From, []string{r.Address}, []byte(b.String())) }()

	select {
	case <-ctx.Done():
		return models.DeliveryResult{Reason: fmt.Sprintf("smtp send aborted: %v", ctx.Err())}
	case err := <-done:
		if err == nil {
			return models.DeliveryResult{Delivered: true}
		}
		if tpErr, ok := err.(*textproto.Error); ok && tpErr.Code >= 500 {
			return models.DeliveryResult{Reason: fmt.Sprintf("smtp rejected %s: %v", r.Address, err), Permanent: true}
		}
		return models.DeliveryResult{Reason: fmt.Sprintf("smtp send to %s failed: %v", r.Address, err)}
	}
}
