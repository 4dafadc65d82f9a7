package authz

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// DefaultStoreTimeout bounds a permission store call when none is configured.
const DefaultStoreTimeout = 2 * time.Second

// Evaluator turns permission store answers into verdicts.
type Evaluator struct {
	store   PermissionStore
	timeout time.Duration
}

// NewEvaluator constructs an Evaluator. A non-positive timeout selects
// DefaultStoreTimeout.
func NewEvaluator(store PermissionStore, timeout time.Duration) *Evaluator {
	if timeout <= 0 {
		timeout = DefaultStoreTimeout
	}
	return &Evaluator{store: store, timeout: timeout}
}

// Evaluate asks the store whether p may perform req. It never panics and
// never returns an error: store failures become InternalError verdicts.
// The requirement is forwarded as-is; unknown pairs are the store's to deny.
func (e *Evaluator) Evaluate(ctx context.Context, p *Principal, req Requirement) Verdict {
	if p == nil {
		return Deny(nil, StatusUnauthenticated, "Authentication required")
	}
	if e == nil || e.store == nil {
		return internalVerdict(p, errors.New("permission store not configured"))
	}

	decision, err := e.check(ctx, p.ID, req)
	if err != nil {
		return internalVerdict(p, err)
	}
	if decision.Granted {
		return Allow(p)
	}
	return Deny(p, StatusForbidden, forbiddenReason(req, decision.Reason))
}

// check runs the store call on its own goroutine so a slow store cannot hold
// the request past the timeout. The call itself is detached from request
// cancellation and allowed to finish in the background.
func (e *Evaluator) check(ctx context.Context, principalID string, req Requirement) (Decision, error) {
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.timeout)

	type result struct {
		decision Decision
		err      error
	}
	done := make(chan result, 1)
	go func() {
		defer cancel()
		defer func() {
			if rec := recover(); rec != nil {
				done <- result{err: fmt.Errorf("permission store panic: %v", rec)}
			}
		}()
		d, err := e.store.CheckPermission(callCtx, principalID, req.Action, req.Subject)
		done <- result{decision: d, err: err}
	}()

	timer := time.NewTimer(e.timeout)
	defer timer.Stop()
	select {
	case res := <-done:
		if res.err != nil && errors.Is(res.err, context.DeadlineExceeded) {
			return Decision{}, fmt.Errorf("%w: %v", ErrStoreTimeout, res.err)
		}
		return res.decision, res.err
	case <-timer.C:
		return Decision{}, fmt.Errorf("%w after %s", ErrStoreTimeout, e.timeout)
	}
}

func forbiddenReason(req Requirement, storeReason string) string {
	reason := fmt.Sprintf("Insufficient permissions: %s.", req.String())
	if storeReason = strings.TrimSpace(storeReason); storeReason != "" {
		reason += " " + storeReason
	}
	return reason
}

func internalVerdict(p *Principal, err error) Verdict {
	v := Deny(p, StatusInternalError, "Permission check failed: "+err.Error())
	v.Err = err
	return v
}
