package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/odyssey-erp/odyssey-auth/internal/jobs"
)

type stubSender struct {
	to, subject, body string
	calls             int
	err               error
}

func (s *stubSender) Send(ctx context.Context, to, subject, body string) error {
	s.calls++
	s.to, s.subject, s.body = to, subject, body
	return s.err
}

func newTestEmailJob(sender Sender) *EmailJob {
	return NewEmailJob(sender, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))
}

func TestNewSendEmailTaskValidates(t *testing.T) {
	task, err := NewSendEmailTask(SendEmailPayload{To: "a@example.com", Subject: "hi", Body: "<p>x</p>"})
	require.NoError(t, err)
	assert.Equal(t, TaskTypeSendEmail, task.Type())

	var decoded SendEmailPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &decoded))
	assert.Equal(t, "a@example.com", decoded.To)

	_, err = NewSendEmailTask(SendEmailPayload{To: "nope", Subject: "hi", Body: "x"})
	assert.Error(t, err)
	_, err = NewSendEmailTask(SendEmailPayload{To: "a@example.com"})
	assert.Error(t, err)
}

func TestEmailJobDelivers(t *testing.T) {
	sender := &stubSender{}
	job := newTestEmailJob(sender)
	task, err := NewSendEmailTask(SendEmailPayload{To: "a@example.com", Subject: "Verify", Body: "<p>link</p>"})
	require.NoError(t, err)

	require.NoError(t, job.Handle(context.Background(), task))
	assert.Equal(t, 1, sender.calls)
	assert.Equal(t, "a@example.com", sender.to)
	assert.Equal(t, "Verify", sender.subject)
	assert.Equal(t, "<p>link</p>", sender.body)
}

func TestEmailJobBadPayloadSkipsRetry(t *testing.T) {
	sender := &stubSender{}
	job := newTestEmailJob(sender)

	err := job.Handle(context.Background(), asynq.NewTask(TaskTypeSendEmail, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)

	err = job.Handle(context.Background(), asynq.NewTask(TaskTypeSendEmail, []byte(`{"to":"x"}`)))
	assert.ErrorIs(t, err, asynq.SkipRetry)
	assert.Zero(t, sender.calls)
}

func TestEmailJobPropagatesSendFailure(t *testing.T) {
	boom := errors.New("relay refused")
	job := newTestEmailJob(&stubSender{err: boom})
	task, err := NewSendEmailTask(SendEmailPayload{To: "a@example.com", Subject: "s", Body: "b"})
	require.NoError(t, err)

	assert.ErrorIs(t, job.Handle(context.Background(), task), boom)
}

func TestEmailJobUnconfigured(t *testing.T) {
	var job *EmailJob
	assert.Error(t, job.Handle(context.Background(), asynq.NewTask(TaskTypeSendEmail, nil)))
}

type stubArchive struct {
	queue   string
	deleted int
	err     error
}

func (s *stubArchive) DeleteAllArchivedTasks(queue string) (int, error) {
	s.queue = queue
	return s.deleted, s.err
}

func TestArchiveJanitor(t *testing.T) {
	inspector := &stubArchive{deleted: 3}
	janitor := &ArchiveJanitor{Inspector: inspector}
	require.NoError(t, janitor.Handle(context.Background(), NewPurgeArchivedTask()))
	assert.Equal(t, QueueDefault, inspector.queue)

	inspector.err = errors.New("redis down")
	assert.Error(t, janitor.Handle(context.Background(), NewPurgeArchivedTask()))
}
