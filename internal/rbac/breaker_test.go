package rbac

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldbase/fieldbase/internal/authz"
)

type transitions struct {
	mu   sync.Mutex
	seen []string
}

func (t *transitions) BreakerTransition(name, from, to string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.seen = append(t.seen, from+"->"+to)
}

func TestBreakerStoreOpensAfterConsecutiveFailures(t *testing.T) {
	var calls int
	failing := authz.PermissionStoreFunc(func(ctx context.Context, id string, a authz.Action, s string) (authz.Decision, error) {
		calls++
		return authz.Decision{}, errors.New("connection refused")
	})
	rec := &transitions{}
	store := NewBreakerStore(failing, BreakerConfig{FailureThreshold: 3, Timeout: time.Minute}, nil, rec)

	for i := 0; i < 3; i++ {
		_, err := store.CheckPermission(context.Background(), "1", authz.ActionRead, "Equipment")
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrStoreUnavailable)
	}
	assert.Equal(t, "open", store.State())

	_, err := store.CheckPermission(context.Background(), "1", authz.ActionRead, "Equipment")
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.Equal(t, 3, calls, "open breaker must not reach the store")
	assert.Equal(t, []string{"closed->open"}, rec.seen)
}

func TestBreakerStoreIgnoresCanceledCallers(t *testing.T) {
	canceled := authz.PermissionStoreFunc(func(ctx context.Context, id string, a authz.Action, s string) (authz.Decision, error) {
		return authz.Decision{}, context.Canceled
	})
	store := NewBreakerStore(canceled, BreakerConfig{FailureThreshold: 1}, nil, nil)

	for i := 0; i < 3; i++ {
		_, err := store.CheckPermission(context.Background(), "1", authz.ActionRead, "Equipment")
		assert.ErrorIs(t, err, context.Canceled)
	}
	assert.Equal(t, "closed", store.State())
}

func TestBreakerStorePassesDecisionsThrough(t *testing.T) {
	inner := authz.PermissionStoreFunc(func(ctx context.Context, id string, a authz.Action, s string) (authz.Decision, error) {
		return authz.Decision{Granted: a == authz.ActionRead, Reason: "checked"}, nil
	})
	store := NewBreakerStore(inner, BreakerConfig{}, nil, nil)

	d, err := store.CheckPermission(context.Background(), "1", authz.ActionRead, "Equipment")
	require.NoError(t, err)
	assert.True(t, d.Granted)

	d, err = store.CheckPermission(context.Background(), "1", authz.ActionDelete, "Equipment")
	require.NoError(t, err)
	assert.False(t, d.Granted)
	assert.Equal(t, "checked", d.Reason)
}

func TestBreakerStoreFailsGatewayClosed(t *testing.T) {
	failing := authz.PermissionStoreFunc(func(ctx context.Context, id string, a authz.Action, s string) (authz.Decision, error) {
		return authz.Decision{}, errors.New("connection refused")
	})
	store := NewBreakerStore(failing, BreakerConfig{FailureThreshold: 1, Timeout: time.Minute}, nil, nil)
	evaluator := authz.NewEvaluator(store, time.Second)
	p := &authz.Principal{ID: "1", Role: "MANAGER", Active: true}

	first := evaluator.Evaluate(context.Background(), p, authz.NewRequirement(authz.ActionRead, "Equipment"))
	second := evaluator.Evaluate(context.Background(), p, authz.NewRequirement(authz.ActionRead, "Equipment"))

	assert.Equal(t, authz.StatusInternalError, first.Status)
	assert.Equal(t, authz.StatusInternalError, second.Status)
	assert.ErrorIs(t, second.Err, ErrStoreUnavailable)
}
