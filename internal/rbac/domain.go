package rbac

import (
	"sort"
	"strings"

	"github.com/fieldbase/fieldbase/internal/authz"
)

// Grant sources.
const (
	SourceUser = "user"
	SourceRole = "role"
)

// Grant is one permission row reachable from a user, either assigned
// directly or inherited through an active role. Direct rows may revoke
// (Granted=false); role rows always grant.
type Grant struct {
	Action  authz.Action
	Subject string
	Granted bool
	Source  string
}

// Key renders the grant as "action.subject".
func (g Grant) Key() string {
	return authz.NewRequirement(g.Action, g.Subject).String()
}

// covers reports whether g speaks about req. manage on a subject covers every
// action on it and on its dotted sub-scopes.
func (g Grant) covers(req authz.Requirement) bool {
	if g.Subject == req.Subject {
		return g.Action == req.Action || g.Action == authz.ActionManage
	}
	return g.Action == authz.ActionManage && strings.HasPrefix(req.Subject, g.Subject+".")
}

// Decide resolves the grants reachable by a user into a decision for req.
// A direct revocation of the exact action wins over everything; otherwise any
// covering direct or role grant is enough.
func Decide(req authz.Requirement, grants []Grant) authz.Decision {
	var direct, inherited bool
	for _, g := range grants {
		if !g.covers(req) {
			continue
		}
		if g.Source == SourceUser {
			if !g.Granted && g.Subject == req.Subject && g.Action == req.Action {
				return authz.Decision{Reason: "Permission revoked for this user."}
			}
			if g.Granted {
				direct = true
			}
			continue
		}
		inherited = true
	}
	if direct || inherited {
		return authz.Decision{Granted: true}
	}
	return authz.Decision{}
}

// Effective flattens grants into the sorted "action.subject" keys a user holds.
// Revoked keys are removed even when a role grants them.
func Effective(grants []Grant) []string {
	held := make(map[string]struct{}, len(grants))
	revoked := make(map[string]struct{})
	for _, g := range grants {
		if g.Source == SourceUser && !g.Granted {
			revoked[g.Key()] = struct{}{}
			continue
		}
		held[g.Key()] = struct{}{}
	}
	keys := make([]string, 0, len(held))
	for k := range held {
		if _, ok := revoked[k]; ok {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
