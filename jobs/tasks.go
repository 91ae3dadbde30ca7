package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskQuoteExpireSweep moves overdue sent/viewed quotes to expired.
	TaskQuoteExpireSweep = "quotes:expire_sweep"
	// TaskQuoteExpiryWarn notifies contacts about quotes expiring soon.
	TaskQuoteExpiryWarn = "quotes:expiry_warn"
	// TaskSendEmail is the task type for sending transactional emails.
	TaskSendEmail = "mail:send"
)

// SendEmailPayload describes the information required to send an email.
type SendEmailPayload struct {
	To      string `json:"to"`
	From    string `json:"from"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// NewSendEmailTask constructs an Asynq task.
func NewSendEmailTask(payload SendEmailPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSendEmail, data), nil
}

// NewQuoteExpireSweepTask constructs the expiry sweep task. The sweep carries
// no payload; it scans for overdue quotes itself.
func NewQuoteExpireSweepTask() *asynq.Task {
	return asynq.NewTask(TaskQuoteExpireSweep, nil)
}

// NewQuoteExpiryWarnTask constructs the expiring-soon notification task.
func NewQuoteExpiryWarnTask() *asynq.Task {
	return asynq.NewTask(TaskQuoteExpiryWarn, nil)
}

// HandleSendEmailTask processes TaskSendEmail tasks.
func HandleSendEmailTask(ctx context.Context, t *asynq.Task) error {
	var payload SendEmailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	// Placeholder: SMTP delivery is handled by the messaging collaborator.
	slog.Default().Info("send email",
		slog.String("to", payload.To),
		slog.String("subject", payload.Subject))
	return nil
}
