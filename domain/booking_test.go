package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNextStatusEdges(t *testing.T) {
	cases := []struct {
		from  BookingStatus
		event Event
		to    BookingStatus
		ok    bool
	}{
		{StatusPending, EventAccept, StatusAccepted, true},
		{StatusPending, EventReject, StatusRejected, true},
		{StatusPending, EventCancel, StatusCancelled, true},
		{StatusAccepted, EventStart, StatusInProgress, true},
		{StatusInProgress, EventComplete, StatusCompleted, true},
		{StatusCompleted, EventSettle, StatusPaymentCompleted, true},

		{StatusPending, EventStart, "", false},
		{StatusAccepted, EventAccept, "", false},
		{StatusAccepted, EventCancel, "", false},
		{StatusInProgress, EventCancel, "", false},
		{StatusCompleted, EventComplete, "", false},
		{StatusRejected, EventAccept, "", false},
		{StatusCancelled, EventAccept, "", false},
		{StatusPaymentCompleted, EventSettle, "", false},
	}
	for _, tc := range cases {
		to, ok := NextStatus(tc.from, tc.event)
		assert.Equal(t, tc.ok, ok, "%s + %s", tc.from, tc.event)
		assert.Equal(t, tc.to, to, "%s + %s", tc.from, tc.event)
	}
}

func TestTerminalStatuses(t *testing.T) {
	assert.True(t, StatusRejected.IsTerminal())
	assert.True(t, StatusCancelled.IsTerminal())
	assert.True(t, StatusPaymentCompleted.IsTerminal())

	assert.False(t, StatusPending.IsTerminal())
	assert.False(t, StatusAccepted.IsTerminal())
	assert.False(t, StatusInProgress.IsTerminal())
	assert.False(t, StatusCompleted.IsTerminal())
}

func TestRoleForEveryEvent(t *testing.T) {
	for event, want := range map[Event]Role{
		EventAccept:   RoleMechanic,
		EventReject:   RoleMechanic,
		EventCancel:   RoleCustomer,
		EventStart:    RoleMechanic,
		EventComplete: RoleMechanic,
		EventSettle:   RoleSettlement,
	} {
		got, ok := RoleFor(event)
		assert.True(t, ok, event)
		assert.Equal(t, want, got, event)
	}
	_, ok := RoleFor("teleport")
	assert.False(t, ok)
}

func TestEveryEventStampsAField(t *testing.T) {
	for _, event := range []Event{EventAccept, EventReject, EventCancel, EventStart, EventComplete, EventSettle} {
		assert.NotEmpty(t, StampField(event), event)
	}
}
