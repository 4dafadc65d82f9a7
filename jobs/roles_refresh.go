package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/fieldbase/fieldbase/internal/jobs"
)

// HierarchyInvalidator bumps the role hierarchy cache version.
type HierarchyInvalidator interface {
	Bump(ctx context.Context) (int64, error)
}

// RolesRefreshJob forces every node to re-read the role catalog on its next
// hierarchy lookup. It bounds how long a catalog edit made outside the API
// stays invisible.
type RolesRefreshJob struct {
	Cache   HierarchyInvalidator
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewRolesRefreshJob wires dependencies for the refresh handler.
func NewRolesRefreshJob(cache HierarchyInvalidator, logger *slog.Logger, metrics *jobmetrics.Metrics) *RolesRefreshJob {
	return &RolesRefreshJob{Cache: cache, Logger: logger, Metrics: metrics}
}

// Handle processes TaskRolesRefresh tasks.
func (j *RolesRefreshJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Cache == nil {
		return errors.New("roles refresh: handler not configured")
	}
	var payload RolesRefreshPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	if payload.Reason == "" {
		payload.Reason = "scheduled"
	}

	tracker := j.Metrics.Track(TaskRolesRefresh)
	defer func() {
		err = tracker.End(err)
	}()

	version, err := j.Cache.Bump(ctx)
	if err != nil {
		j.logger().Error("roles refresh failed", slog.String("reason", payload.Reason), slog.Any("error", err))
		return err
	}
	j.logger().Info("roles refreshed", slog.String("reason", payload.Reason), slog.Int64("version", version))
	return nil
}

func (j *RolesRefreshJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
