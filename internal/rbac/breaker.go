package rbac

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/fieldbase/fieldbase/internal/authz"
)

// ErrStoreUnavailable is returned while the breaker rejects calls.
var ErrStoreUnavailable = errors.New("rbac: permission store unavailable")

// BreakerConfig tunes the permission store circuit breaker.
type BreakerConfig struct {
	Name             string
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold uint32
}

// TransitionRecorder observes breaker state changes.
type TransitionRecorder interface {
	BreakerTransition(name, from, to string)
}

// BreakerStore guards a permission store with a circuit breaker so that an
// unhealthy database fails permission checks fast instead of queueing them.
// Failures still surface as errors; the evaluator turns them into
// InternalError verdicts.
type BreakerStore struct {
	store authz.PermissionStore
	cb    *gobreaker.CircuitBreaker[authz.Decision]
}

// NewBreakerStore wraps store. logger and recorder may be nil.
func NewBreakerStore(store authz.PermissionStore, cfg BreakerConfig, logger *slog.Logger, recorder TransitionRecorder) *BreakerStore {
	if cfg.Name == "" {
		cfg.Name = "permission-store"
	}
	if cfg.MaxRequests == 0 {
		cfg.MaxRequests = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if logger == nil {
		logger = slog.Default()
	}
	threshold := cfg.FailureThreshold
	cb := gobreaker.NewCircuitBreaker[authz.Decision](gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		// A caller giving up is not a store failure.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("permission store breaker state changed",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
			if recorder != nil {
				recorder.BreakerTransition(name, from.String(), to.String())
			}
		},
	})
	return &BreakerStore{store: store, cb: cb}
}

// CheckPermission implements authz.PermissionStore.
func (b *BreakerStore) CheckPermission(ctx context.Context, principalID string, action authz.Action, subject string) (authz.Decision, error) {
	decision, err := b.cb.Execute(func() (authz.Decision, error) {
		return b.store.CheckPermission(ctx, principalID, action, subject)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return authz.Decision{}, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return decision, err
}

// State reports the breaker state ("closed", "half-open" or "open").
func (b *BreakerStore) State() string {
	return b.cb.State().String()
}

var _ authz.PermissionStore = (*BreakerStore)(nil)
