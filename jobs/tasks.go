package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeSendEmail is the task type for sending transactional emails.
	TaskTypeSendEmail = "mail:send"
	// TaskTypePurgeSessionAudit is the task type for cleaning expired
	// session audit rows.
	TaskTypePurgeSessionAudit = "sessions:purge_audit"
)

// SendEmailPayload describes the information required to send an email.
type SendEmailPayload struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// NewSendEmailTask constructs an Asynq task.
func NewSendEmailTask(payload SendEmailPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeSendEmail, data), nil
}

// NewPurgeSessionAuditTask constructs the scheduled audit cleanup task.
func NewPurgeSessionAuditTask() *asynq.Task {
	return asynq.NewTask(TaskTypePurgeSessionAudit, nil)
}
