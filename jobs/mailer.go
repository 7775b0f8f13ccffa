package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"

	"github.com/hibiken/asynq"
)

// Mailer delivers transactional email over SMTP.
type Mailer struct {
	Addr   string
	From   string
	Logger *slog.Logger
}

// NewMailer constructs a Mailer for the given SMTP endpoint.
func NewMailer(host string, port int, from string, logger *slog.Logger) *Mailer {
	return &Mailer{
		Addr:   fmt.Sprintf("%s:%d", host, port),
		From:   from,
		Logger: logger,
	}
}

// HandleSendEmailTask processes TaskTypeSendEmail tasks.
func (m *Mailer) HandleSendEmailTask(ctx context.Context, t *asynq.Task) error {
	var payload SendEmailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.To == "" {
		return asynq.SkipRetry
	}

	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", m.From)
	fmt.Fprintf(&msg, "To: %s\r\n", payload.To)
	fmt.Fprintf(&msg, "Subject: %s\r\n", payload.Subject)
	msg.WriteString("\r\n")
	msg.WriteString(payload.Body)
	msg.WriteString("\r\n")

	if err := smtp.SendMail(m.Addr, nil, m.From, []string{payload.To}, []byte(msg.String())); err != nil {
		if m.Logger != nil {
			m.Logger.Warn("send email", slog.String("to", payload.To), slog.Any("error", err))
		}
		return err
	}
	return nil
}
