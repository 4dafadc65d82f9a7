package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fieldbase/fieldbase/internal/authz"
)

// CheckOptions defines the flags for the check command. Either Key or
// Action and Subject select the requirement.
type CheckOptions struct {
	PrincipalID string
	Key         string
	Action      string
	Subject     string
	JSONOutput  bool
	Stdout      io.Writer
	Stderr      io.Writer
}

// CheckResult describes the JSON response for check.
type CheckResult struct {
	PrincipalID string `json:"principal_id"`
	Requirement string `json:"requirement"`
	Authorized  bool   `json:"authorized"`
	Status      string `json:"status"`
	Reason      string `json:"reason,omitempty"`
}

// CheckCLI answers permission questions from the command line using the same
// evaluator the HTTP gateway uses.
type CheckCLI struct {
	evaluator *authz.Evaluator
	catalog   *authz.Catalog
}

// NewCheckCLI constructs the helper. A nil catalog selects the embedded one.
func NewCheckCLI(store authz.PermissionStore, catalog *authz.Catalog, timeout time.Duration) *CheckCLI {
	if catalog == nil {
		catalog = authz.DefaultCatalog()
	}
	return &CheckCLI{evaluator: authz.NewEvaluator(store, timeout), catalog: catalog}
}

// CheckCommand evaluates one requirement. Exit codes: 0 allowed, 10 denied,
// 1 usage or evaluation failure.
func (c *CheckCLI) CheckCommand(ctx context.Context, opts CheckOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	principalID := strings.TrimSpace(opts.PrincipalID)
	if principalID == "" {
		_, _ = fmt.Fprintln(opts.Stderr, "check: --user is required")
		return 1
	}
	req, err := c.requirement(opts)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "check: %v\n", err)
		return 1
	}

	verdict := c.evaluator.Evaluate(ctx, &authz.Principal{ID: principalID, Active: true}, req)
	result := CheckResult{
		PrincipalID: principalID,
		Requirement: req.String(),
		Authorized:  verdict.Authorized,
		Status:      verdict.Status.String(),
		Reason:      verdict.Reason,
	}
	if verdict.Authorized {
		result.Status = "allow"
	}
	if verdict.Status == authz.StatusInternalError && verdict.Err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "check: %v\n", verdict.Err)
	}

	if opts.JSONOutput {
		if err := json.NewEncoder(opts.Stdout).Encode(result); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "check: encode json: %v\n", err)
			return 1
		}
	} else if result.Authorized {
		_, _ = fmt.Fprintf(opts.Stdout, "ALLOW %s for user %s\n", result.Requirement, principalID)
	} else {
		_, _ = fmt.Fprintf(opts.Stdout, "DENY (%s) %s for user %s: %s\n", result.Status, result.Requirement, principalID, result.Reason)
	}

	switch {
	case verdict.Authorized:
		return 0
	case verdict.Status == authz.StatusInternalError:
		return 1
	default:
		return 10
	}
}

func (c *CheckCLI) requirement(opts CheckOptions) (authz.Requirement, error) {
	if key := strings.TrimSpace(opts.Key); key != "" {
		return c.catalog.Lookup(key)
	}
	action := authz.Action(strings.TrimSpace(opts.Action))
	subject := strings.TrimSpace(opts.Subject)
	if action == "" || subject == "" {
		return authz.Requirement{}, fmt.Errorf("either --key or both --action and --subject are required")
	}
	if !action.Valid() {
		return authz.Requirement{}, fmt.Errorf("unknown action %q", action)
	}
	return authz.NewRequirement(action, subject), nil
}
