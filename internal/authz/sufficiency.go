package authz

import "context"

// Sufficient reports whether candidate satisfies any of the acceptable roles.
// A role satisfies a requirement when its priority is lower than or equal to
// the priority of at least one acceptable role. Roles missing from the
// hierarchy, candidate included, rank as LowestPriority, so two unranked
// roles satisfy each other. An empty acceptable list is never satisfied.
func (h Hierarchy) Sufficient(candidate string, acceptable ...string) bool {
	if len(acceptable) == 0 {
		return false
	}
	candidatePriority := h.Priority(candidate)
	for _, role := range acceptable {
		if h.Priority(role) >= candidatePriority {
			return true
		}
	}
	return false
}

// IsRoleSufficient resolves the live hierarchy and checks candidate against
// acceptable.
//
// Deprecated: role sufficiency predates fine-grained permissions and can
// disagree with them. New call sites should use Evaluator.Evaluate.
func (r *HierarchyResolver) IsRoleSufficient(ctx context.Context, candidate string, acceptable ...string) bool {
	if len(acceptable) == 0 {
		return false
	}
	return r.Resolve(ctx).Sufficient(candidate, acceptable...)
}
