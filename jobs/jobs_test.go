package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldbase/fieldbase/internal/authz"
	jobmetrics "github.com/fieldbase/fieldbase/internal/jobs"
	"github.com/fieldbase/fieldbase/internal/roles"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRolesRefreshTaskPayload(t *testing.T) {
	task, err := NewRolesRefreshTask("catalog import")
	require.NoError(t, err)
	assert.Equal(t, TaskRolesRefresh, task.Type())

	var payload RolesRefreshPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	assert.Equal(t, "catalog import", payload.Reason)
}

func TestRolesRefreshJobInvalidatesCache(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	cache := roles.NewCache(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	require.NoError(t, cache.Set(ctx, authz.Hierarchy{"SUPER_ADMIN": 1}, time.Minute))

	job := NewRolesRefreshJob(cache, quietLogger(), jobmetrics.NewMetrics(prometheus.NewRegistry()))
	task, err := NewRolesRefreshTask("")
	require.NoError(t, err)
	require.NoError(t, job.Handle(ctx, task))

	_, ok, err := cache.Get(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	ver, err := cache.Version(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, ver)
}

type bumpFunc func(ctx context.Context) (int64, error)

func (f bumpFunc) Bump(ctx context.Context) (int64, error) { return f(ctx) }

func TestRolesRefreshJobErrors(t *testing.T) {
	job := NewRolesRefreshJob(bumpFunc(func(ctx context.Context) (int64, error) {
		return 0, errors.New("redis down")
	}), quietLogger(), nil)

	err := job.Handle(context.Background(), asynq.NewTask(TaskRolesRefresh, nil))
	assert.EqualError(t, err, "redis down")

	err = job.Handle(context.Background(), asynq.NewTask(TaskRolesRefresh, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)

	var unconfigured *RolesRefreshJob
	assert.Error(t, unconfigured.Handle(context.Background(), asynq.NewTask(TaskRolesRefresh, nil)))
}

type inspectorFunc func(queue string) (*asynq.QueueInfo, error)

func (f inspectorFunc) GetQueueInfo(queue string) (*asynq.QueueInfo, error) { return f(queue) }

func TestHealthHandler(t *testing.T) {
	inspector := inspectorFunc(func(queue string) (*asynq.QueueInfo, error) {
		return &asynq.QueueInfo{Queue: queue, Pending: 3, Active: 1}, nil
	})
	r := chi.NewRouter()
	r.Route("/api/jobs", NewHandler(inspector, quietLogger(), nil).MountRoutes)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/jobs/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"queue":"default","pending":3,"active":1,"retry":0}`, rec.Body.String())
}

func TestHealthHandlerGuarded(t *testing.T) {
	deny := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
		})
	}
	r := chi.NewRouter()
	r.Route("/api/jobs", NewHandler(nil, quietLogger(), deny).MountRoutes)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/jobs/health", nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestHealthHandlerQueueUnavailable(t *testing.T) {
	inspector := inspectorFunc(func(queue string) (*asynq.QueueInfo, error) {
		return nil, errors.New("dial tcp: connection refused")
	})
	r := chi.NewRouter()
	r.Route("/api/jobs", NewHandler(inspector, quietLogger(), nil).MountRoutes)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/jobs/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
