package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/odyssey-auth/internal/jobs"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeSendEmail is the task type for sending transactional emails.
	TaskTypeSendEmail = "mail:send"
	// TaskTypePurgeArchived drops failed mail tasks kept by the queue.
	TaskTypePurgeArchived = "mail:purge-archived"
)

// SendEmailPayload describes the information required to send an email.
type SendEmailPayload struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Validate reports whether the payload can be delivered.
func (p SendEmailPayload) Validate() error {
	if _, err := mail.ParseAddress(p.To); err != nil {
		return fmt.Errorf("jobs: invalid recipient: %w", err)
	}
	if p.Subject == "" || p.Body == "" {
		return errors.New("jobs: subject and body are required")
	}
	return nil
}

// NewSendEmailTask constructs an Asynq task.
func NewSendEmailTask(payload SendEmailPayload) (*asynq.Task, error) {
	if err := payload.Validate(); err != nil {
		return nil, err
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeSendEmail, data), nil
}

// Sender performs the actual delivery.
type Sender interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// EmailJob delivers queued transactional emails.
type EmailJob struct {
	Sender  Sender
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewEmailJob wires dependencies for the mail handler.
func NewEmailJob(sender Sender, logger *slog.Logger, metrics *jobmetrics.Metrics) *EmailJob {
	return &EmailJob{Sender: sender, Logger: logger, Metrics: metrics}
}

// Handle processes TaskTypeSendEmail tasks.
func (j *EmailJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Sender == nil {
		return errors.New("mail send: handler not configured")
	}
	tracker := j.metrics().Track(TaskTypeSendEmail)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	var payload SendEmailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		j.metrics().AddDelivery("dropped")
		j.logger().Warn("decode mail payload", slog.Any("error", err))
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}
	if err := payload.Validate(); err != nil {
		j.metrics().AddDelivery("dropped")
		j.logger().Warn("invalid mail payload", slog.Any("error", err))
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}

	if err := j.Sender.Send(ctx, payload.To, payload.Subject, payload.Body); err != nil {
		j.metrics().AddDelivery("failed")
		j.logger().Error("send email", slog.String("subject", payload.Subject), slog.Any("error", err))
		return err
	}
	j.metrics().AddDelivery("sent")
	j.logger().Info("email sent", slog.String("subject", payload.Subject))
	return nil
}

func (j *EmailJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *EmailJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// ArchiveJanitor deletes archived tasks from the default queue. Mail tasks
// are enqueued without retries, so every failed delivery lands there.
type ArchiveJanitor struct {
	Inspector interface {
		DeleteAllArchivedTasks(queue string) (int, error)
	}
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewPurgeArchivedTask constructs the janitor task.
func NewPurgeArchivedTask() *asynq.Task {
	return asynq.NewTask(TaskTypePurgeArchived, nil)
}

// Handle processes TaskTypePurgeArchived tasks.
func (j *ArchiveJanitor) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Inspector == nil {
		return errors.New("purge archived: handler not configured")
	}
	tracker := j.Metrics.Track(TaskTypePurgeArchived)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()
	deleted, err := j.Inspector.DeleteAllArchivedTasks(QueueDefault)
	if err != nil {
		return fmt.Errorf("purge archived: %w", err)
	}
	j.Metrics.AddPurged(deleted)
	if j.Logger != nil {
		j.Logger.Info("archived tasks purged", slog.Int("deleted", deleted))
	}
	return nil
}
