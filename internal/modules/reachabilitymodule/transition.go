package reachabilitymodule

import (
	"github.com/tunegrab/tunegrab/internal/types"
)

// Transition is the outcome of evaluating one membership-change event.
type Transition int

const (
	TransitionNone Transition = iota
	TransitionToBlocked
	TransitionToActive
)

func (t Transition) String() string {
	switch t {
	case TransitionToBlocked:
		return "blocked"
	case TransitionToActive:
		return "active"
	default:
		return "none"
	}
}

// EvaluateTransition maps a membership status change to a reachability
// transition. Only two pairs are recognized: a member leaving or being
// kicked blocks delivery, and a kicked or departed requester rejoining
// restores it. Every other pair is a no-op, including repeated or
// out-of-order platform events.
func EvaluateTransition(oldStatus, newStatus types.MembershipStatus) Transition {
	if oldStatus == types.StatusMember && (newStatus == types.StatusKicked || newStatus == types.StatusLeft) {
		return TransitionToBlocked
	}
	if (oldStatus == types.StatusKicked || oldStatus == types.StatusLeft) && newStatus == types.StatusMember {
		return TransitionToActive
	}
	return TransitionNone
}
