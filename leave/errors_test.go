package leave_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/warp/leave-engine/leave"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		err  error
		kind leave.Kind
	}{
		{&leave.NotFoundError{Entity: "leave request", ID: "r1"}, leave.KindNotFound},
		{fmt.Errorf("wrapped: %w", &leave.InsufficientBalanceError{BalanceID: "b"}), leave.KindInsufficientBalance},
		{fmt.Errorf("store: %w", leave.ErrConcurrentModification), leave.KindConcurrentModification},
		{&leave.BalanceNotOpenError{BalanceID: "b", Status: leave.BalanceClosed}, leave.KindBalanceNotOpen},
		{errors.New("disk full"), ""},
		{nil, ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.kind, leave.KindOf(tt.err), "%v", tt.err)
	}
}

func TestErrorClassification(t *testing.T) {
	assert.True(t, leave.IsDomainRule(&leave.EncashLimitExceededError{}))
	assert.True(t, leave.IsDomainRule(&leave.InvalidRangeError{}))
	assert.False(t, leave.IsDomainRule(&leave.NothingToReverseError{}))

	assert.True(t, leave.IsConflict(&leave.InvalidStateTransitionError{}))
	assert.True(t, leave.IsConflict(&leave.BalanceFinalizedError{}))
	assert.False(t, leave.IsConflict(&leave.NotFoundError{}))

	assert.True(t, leave.IsNotFound(fmt.Errorf("load: %w", &leave.NotFoundError{Entity: "employee", ID: "x"})))
}

func TestErrorMessages(t *testing.T) {
	err := &leave.InvalidStateTransitionError{Entity: "leave request", ID: "req-1", From: "REJECTED", To: "APPROVED"}
	assert.Contains(t, err.Error(), "req-1")
	assert.Contains(t, err.Error(), "REJECTED")

	ins := &leave.InsufficientBalanceError{BalanceID: "bal-1", Available: days(2), Requested: days(5)}
	assertDays(t, 3, ins.Shortfall())
	assert.Contains(t, ins.Error(), "bal-1")
}
