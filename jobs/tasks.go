package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskRolesRefresh drops every cached role hierarchy.
	TaskRolesRefresh = "authz:roles:refresh"
)

// RolesRefreshPayload describes why a refresh was requested.
type RolesRefreshPayload struct {
	Reason string `json:"reason"`
}

// NewRolesRefreshTask constructs an Asynq task.
func NewRolesRefreshTask(reason string) (*asynq.Task, error) {
	data, err := json.Marshal(RolesRefreshPayload{Reason: reason})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskRolesRefresh, data), nil
}
