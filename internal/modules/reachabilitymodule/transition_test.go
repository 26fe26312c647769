package reachabilitymodule

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tunegrab/tunegrab/internal/types"
)

func TestEvaluateTransition(t *testing.T) {
	tests := []struct {
		name string
		old  types.MembershipStatus
		new  types.MembershipStatus
		want Transition
	}{
		{"member kicked", types.StatusMember, types.StatusKicked, TransitionToBlocked},
		{"member left", types.StatusMember, types.StatusLeft, TransitionToBlocked},
		{"kicked rejoins", types.StatusKicked, types.StatusMember, TransitionToActive},
		{"left rejoins", types.StatusLeft, types.StatusMember, TransitionToActive},
		{"member stays member", types.StatusMember, types.StatusMember, TransitionNone},
		{"kicked to left", types.StatusKicked, types.StatusLeft, TransitionNone},
		{"left to kicked", types.StatusLeft, types.StatusKicked, TransitionNone},
		{"kicked stays kicked", types.StatusKicked, types.StatusKicked, TransitionNone},
		{"unknown old status", types.MembershipStatus("administrator"), types.StatusKicked, TransitionNone},
		{"unknown new status", types.StatusMember, types.MembershipStatus("restricted"), TransitionNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EvaluateTransition(tt.old, tt.new))
		})
	}
}

func TestTransitionSequenceKickedThenRejoinEndsActive(t *testing.T) {
	first := EvaluateTransition(types.StatusMember, types.StatusKicked)
	assert.Equal(t, TransitionToBlocked, first)

	// Rejoining restores delivery regardless of whether the prior status
	// was kicked or left.
	assert.Equal(t, TransitionToActive, EvaluateTransition(types.StatusKicked, types.StatusMember))
	assert.Equal(t, TransitionToActive, EvaluateTransition(types.StatusLeft, types.StatusMember))
}

func TestTransitionStringIsStable(t *testing.T) {
	assert.Equal(t, "blocked", TransitionToBlocked.String())
	assert.Equal(t, "active", TransitionToActive.String())
	assert.Equal(t, "none", TransitionNone.String())
}
