package authority

import (
	"stateflow/common"
	"stateflow/domain"

	"github.com/fundwit/go-commons/types"
	"github.com/sirupsen/logrus"
)

const (
	RoleAdmin = "admin"

	// RoleWorkflowBypass lets its holder traverse any edge of a workflow,
	// regardless of the edge's role set.
	RoleWorkflowBypass = "workflow-bypass"

	// RoleOwner is granted transiently, for a single evaluation, when the
	// actor is the recorded owner of the target entity. It is never persisted.
	RoleOwner = "owner"
)

// Actor is the subject of one authorization decision.
type Actor struct {
	ID    types.ID
	Perms Permissions
}

// TransitionCandidate is one edge traversal to be authorized: the endpoints,
// the resolved edges between them, and the target's recorded owner.
type TransitionCandidate struct {
	WorkflowID types.ID
	FromSID    types.ID
	ToSID      types.ID

	TargetType string
	TargetID   types.ID
	OwnerID    types.ID

	Edges []domain.ConfigTransition
}

// CanTransit decides whether the actor may traverse the candidate edge.
// Rules in order, first match wins: force, no state change, workflow bypass
// capability, then role intersection over the matching edges (with the
// transient owner role applied first when the actor owns the target).
func CanTransit(actor Actor, cand TransitionCandidate, force bool) bool {
	if force {
		return true
	}
	if cand.FromSID == cand.ToSID {
		return true
	}
	if actor.Perms.HasWorkflowBypass(cand.WorkflowID) {
		return true
	}

	effective := actor.Perms
	if cand.OwnerID != 0 && actor.ID == cand.OwnerID {
		effective = append(append(Permissions{}, actor.Perms...), RoleOwner)
	}

	for _, edge := range cand.Edges {
		for _, role := range edge.Roles {
			if effective.HasRole(role) {
				return true
			}
		}
	}

	// Missing edges and role mismatches are reported the same way; callers
	// treat a missing edge as a configuration gap.
	common.Log.WithFields(logrus.Fields{
		"actor":      actor.ID,
		"workflowId": cand.WorkflowID,
		"fromSid":    cand.FromSID,
		"toSid":      cand.ToSID,
		"targetType": cand.TargetType,
		"targetId":   cand.TargetID,
	}).Warn("transition denied")
	return false
}
