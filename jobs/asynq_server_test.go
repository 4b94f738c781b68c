package jobs

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (s stubInspector) GetQueueInfo(queue string) (*asynq.QueueInfo, error) {
	return s.info, s.err
}

func serveHealth(t *testing.T, inspector QueueInspector) *httptest.ResponseRecorder {
	t.Helper()
	r := chi.NewRouter()
	r.Route("/jobs", NewHandler(inspector, nil).MountRoutes)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	return rec
}

func TestHealthReportsQueue(t *testing.T) {
	rec := serveHealth(t, stubInspector{info: &asynq.QueueInfo{Queue: "default", Pending: 4, Active: 1, Archived: 2}})
	require.Equal(t, http.StatusOK, rec.Code)

	var body QueueHealth
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, QueueHealth{Queue: "default", Pending: 4, Active: 1, Archived: 2}, body)
}

func TestHealthWithoutInspector(t *testing.T) {
	var inspector QueueInspector
	rec := serveHealth(t, inspector)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"queue":"default"`)
}

func TestHealthUnavailable(t *testing.T) {
	rec := serveHealth(t, stubInspector{err: errors.New("dial tcp: refused")})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.NotContains(t, rec.Body.String(), "refused")
}

func TestNewWorkerRequiresEmailJob(t *testing.T) {
	_, err := NewWorker(WorkerConfig{RedisOpts: asynq.RedisClientOpt{Addr: "127.0.0.1:0"}})
	assert.Error(t, err)
}

func TestServeMuxRoutesMailAndCustomHandlers(t *testing.T) {
	sender := &stubSender{}
	mux := newServeMux(newTestEmailJob(sender), []TaskHandler{
		{Type: TaskTypePurgeArchived, Handler: (&ArchiveJanitor{Inspector: &stubArchive{}}).Handle},
		{Type: "", Handler: nil},
	})

	task, err := NewSendEmailTask(SendEmailPayload{To: "a@example.com", Subject: "s", Body: "b"})
	require.NoError(t, err)
	require.NoError(t, mux.ProcessTask(t.Context(), task))
	assert.Equal(t, 1, sender.calls)

	require.NoError(t, mux.ProcessTask(t.Context(), NewPurgeArchivedTask()))
	assert.Error(t, mux.ProcessTask(t.Context(), asynq.NewTask("unknown", nil)))
}
