// Package workflow holds the purchase request approval state machine.
// It is pure: callers load state, ask for the next status and persist the result.
package workflow

import (
	"p2p/internal/model"
	"p2p/pkg/apperror"
)

// Decision is what an approver does at their level.
type Decision string

const (
	Approve Decision = "approve"
	Reject  Decision = "reject"
)

type transitionKey struct {
	from     string
	level    string
	decision Decision
}

// transitions is the full table. Anything not listed is an invalid transition.
var transitions = map[transitionKey]string{
	{model.RequestStatusPending, model.ApprovalLevel1, Approve}:        model.RequestStatusApprovedLevel1,
	{model.RequestStatusPending, model.ApprovalLevel1, Reject}:         model.RequestStatusRejected,
	{model.RequestStatusApprovedLevel1, model.ApprovalLevel2, Approve}: model.RequestStatusApproved,
	{model.RequestStatusApprovedLevel1, model.ApprovalLevel2, Reject}:  model.RequestStatusRejected,
}

// IsTerminal reports whether no further decisions are accepted in status.
func IsTerminal(status string) bool {
	return status == model.RequestStatusApproved || status == model.RequestStatusRejected
}

// ActiveLevel returns the level whose decision the request is waiting for.
func ActiveLevel(status string) (string, bool) {
	switch status {
	case model.RequestStatusPending:
		return model.ApprovalLevel1, true
	case model.RequestStatusApprovedLevel1:
		return model.ApprovalLevel2, true
	}
	return "", false
}

// LevelForRole maps an approver role to the level it decides. Other roles have no level.
func LevelForRole(role string) (string, bool) {
	switch role {
	case model.RoleApproverLevel1:
		return model.ApprovalLevel1, true
	case model.RoleApproverLevel2:
		return model.ApprovalLevel2, true
	}
	return "", false
}

// Next returns the status a request moves to when level takes decision in status from.
func Next(from, level string, decision Decision) (string, error) {
	if IsTerminal(from) {
		return "", apperror.InvalidTransition("purchase request is already %s", from)
	}
	to, ok := transitions[transitionKey{from: from, level: level, decision: decision}]
	if !ok {
		active, _ := ActiveLevel(from)
		return "", apperror.InvalidTransition("cannot %s at %s: request in status %s is awaiting %s", decision, level, from, active)
	}
	return to, nil
}

// DecisionStatus is the approval row status recorded for a decision.
func DecisionStatus(decision Decision) string {
	if decision == Approve {
		return model.ApprovalApproved
	}
	return model.ApprovalRejected
}

// GeneratesPurchaseOrder reports whether moving into to must create the purchase order.
func GeneratesPurchaseOrder(to string) bool {
	return to == model.RequestStatusApproved
}

// DeriveStatus computes the request status from its approval rows.
// APPROVED iff both rows approved; REJECTED iff any row rejected.
func DeriveStatus(approvals []model.Approval) string {
	var level1, level2 string
	for _, a := range approvals {
		switch a.Level {
		case model.ApprovalLevel1:
			level1 = a.Status
		case model.ApprovalLevel2:
			level2 = a.Status
		}
	}
	switch {
	case level1 == model.ApprovalRejected || level2 == model.ApprovalRejected:
		return model.RequestStatusRejected
	case level1 == model.ApprovalApproved && level2 == model.ApprovalApproved:
		return model.RequestStatusApproved
	case level1 == model.ApprovalApproved:
		return model.RequestStatusApprovedLevel1
	}
	return model.RequestStatusPending
}
