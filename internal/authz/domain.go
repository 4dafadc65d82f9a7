package authz

import "strings"

// Action names a verb in the permission vocabulary.
type Action string

// Core actions shared by every subject.
const (
	ActionCreate  Action = "create"
	ActionRead    Action = "read"
	ActionUpdate  Action = "update"
	ActionDelete  Action = "delete"
	ActionManage  Action = "manage"
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
	ActionExport  Action = "export"
	ActionImport  Action = "import"
	ActionSync    Action = "sync"
	ActionReset   Action = "reset"
)

// Domain specific extensions.
const (
	ActionUpload   Action = "upload"
	ActionDownload Action = "download"
	ActionRenew    Action = "renew"
	ActionExpire   Action = "expire"
	ActionApply    Action = "apply"
)

// Actions lists every known action in declaration order.
func Actions() []Action {
	return []Action{
		ActionCreate, ActionRead, ActionUpdate, ActionDelete, ActionManage,
		ActionApprove, ActionReject, ActionExport, ActionImport, ActionSync, ActionReset,
		ActionUpload, ActionDownload, ActionRenew, ActionExpire, ActionApply,
	}
}

// Valid reports whether the action belongs to the vocabulary.
func (a Action) Valid() bool {
	for _, known := range Actions() {
		if a == known {
			return true
		}
	}
	return false
}

// Principal describes the authenticated caller.
type Principal struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
	Active      bool   `json:"active"`
}

// Requirement is the (action, subject) pair guarding an operation. Subjects
// may be dotted to express a sub-scope, e.g. "Timesheet.Foreman".
type Requirement struct {
	Action  Action `json:"action" yaml:"action"`
	Subject string `json:"subject" yaml:"subject"`
}

// NewRequirement builds a Requirement.
func NewRequirement(action Action, subject string) Requirement {
	return Requirement{Action: action, Subject: subject}
}

// String renders the requirement as "action.subject".
func (r Requirement) String() string {
	return string(r.Action) + "." + r.Subject
}

// BaseSubject strips any dotted sub-scope from the subject.
func (r Requirement) BaseSubject() string {
	if idx := strings.IndexByte(r.Subject, '.'); idx >= 0 {
		return r.Subject[:idx]
	}
	return r.Subject
}

// Role is a named, priority ranked classification. Lower priority means
// more privilege; a nil Priority means the catalog carried none.
type Role struct {
	Name     string
	Priority *int
	Active   bool
}

// Rank returns a pointer to priority, for building Role literals.
func Rank(priority int) *int { return &priority }

// StatusClass classifies a denial.
type StatusClass int

const (
	// StatusNone is carried by allowed verdicts.
	StatusNone StatusClass = iota
	StatusUnauthenticated
	StatusForbidden
	StatusInternalError
)

func (s StatusClass) String() string {
	switch s {
	case StatusUnauthenticated:
		return "unauthenticated"
	case StatusForbidden:
		return "forbidden"
	case StatusInternalError:
		return "internal_error"
	default:
		return "none"
	}
}

// Verdict is the outcome of one authorization attempt. Principal is set
// whenever one was resolved, including on denial. Err keeps the collaborator
// failure behind an InternalError verdict for server-side logging.
type Verdict struct {
	Authorized bool
	Principal  *Principal
	Reason     string
	Status     StatusClass
	Err        error
}

// Allow returns an authorized verdict for p.
func Allow(p *Principal) Verdict {
	return Verdict{Authorized: true, Principal: p}
}

// Deny returns a denial. An empty reason is replaced with a generic one so
// that denials always explain themselves.
func Deny(p *Principal, status StatusClass, reason string) Verdict {
	if status == StatusNone {
		status = StatusForbidden
	}
	if strings.TrimSpace(reason) == "" {
		reason = defaultReason(status)
	}
	return Verdict{Principal: p, Status: status, Reason: reason}
}

func defaultReason(status StatusClass) string {
	switch status {
	case StatusUnauthenticated:
		return "Authentication required"
	case StatusInternalError:
		return "Permission check failed"
	default:
		return "Insufficient permissions"
	}
}

// Decision is the permission store's answer for a single check.
type Decision struct {
	Granted bool
	Reason  string
}
