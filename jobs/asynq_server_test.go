package jobs

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
)

type stubEnqueuer struct {
	types []string
	fail  error
}

func (s *stubEnqueuer) Enqueue(ctx context.Context, task *asynq.Task) (*asynq.TaskInfo, error) {
	if s.fail != nil {
		return nil, s.fail
	}
	s.types = append(s.types, task.Type())
	return &asynq.TaskInfo{ID: "t1", Type: task.Type(), Queue: QueueDefault}, nil
}

func newJobsRouter(client Enqueuer) http.Handler {
	h := NewHandler(nil, client, slog.Default())
	r := chi.NewRouter()
	r.Route("/jobs", h.MountRoutes)
	return r
}

func TestRunEnqueuesScan(t *testing.T) {
	stub := &stubEnqueuer{}
	router := newJobsRouter(stub)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/jobs/run/ledger-integrity", nil))
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/jobs/run/stock-integrity", nil))
	require.Equal(t, http.StatusAccepted, rec.Code)

	require.Equal(t, []string{TaskLedgerIntegrity, TaskStockIntegrity}, stub.types)
}

func TestRunRejectsUnknownTask(t *testing.T) {
	stub := &stubEnqueuer{}
	router := newJobsRouter(stub)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/jobs/run/reconcile-everything", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Empty(t, stub.types)
}

func TestRunWithoutClient(t *testing.T) {
	router := newJobsRouter(nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/jobs/run/ledger-integrity", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
