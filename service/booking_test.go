package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fadedreams/roadassist/catalog"
	"fadedreams/roadassist/domain"
)

type bookingFixture struct {
	svc       *BookingService
	bookings  *fakeBookingRepo
	mechanics *fakeMechanicRepo
	payments  *fakePaymentRepo
	outbox    *fakeOutboxRepo
}

func newBookingFixture(mechanics ...*domain.Mechanic) *bookingFixture {
	f := &bookingFixture{
		bookings:  newFakeBookingRepo(),
		mechanics: newFakeMechanicRepo(mechanics...),
		payments:  &fakePaymentRepo{},
		outbox:    &fakeOutboxRepo{},
	}
	f.svc = NewBookingService(f.bookings, f.mechanics, f.payments, f.outbox, testLogger())
	return f
}

func verifiedMechanic(id string) *domain.Mechanic {
	return &domain.Mechanic{
		ID:           id,
		FullName:     "Ravi Kumar",
		ServiceArea:  "Mumbai",
		VehicleTypes: []domain.VehicleCategory{domain.VehicleBike, domain.VehicleCar},
		Status:       domain.MechanicVerified,
		IsActive:     true,
	}
}

func validDraft() *domain.Booking {
	svc, _ := catalog.Lookup(domain.VehicleBike, "flat-tire")
	return &domain.Booking{
		CustomerID:   "cust-1",
		CustomerName: "Asha Patel",
		VehicleType:  domain.VehicleBike,
		Service:      svc,
		Address:      "14 Marine Drive, Churchgate",
		City:         "Mumbai",
		Pincode:      "400020",
		Description:  "Rear tire went flat on the highway",
		Urgency:      domain.UrgencyHigh,
	}
}

func (f *bookingFixture) createPending(t *testing.T) *domain.Booking {
	t.Helper()
	booking, err := f.svc.Create(context.Background(), validDraft())
	require.NoError(t, err)
	return booking
}

func (f *bookingFixture) advanceTo(t *testing.T, bookingID, mechanicID string, target domain.BookingStatus) *domain.Booking {
	t.Helper()
	actor := domain.Actor{ID: mechanicID, Role: domain.RoleMechanic}
	booking, err := f.svc.Transition(context.Background(), bookingID, domain.EventAccept, actor)
	require.NoError(t, err)
	if target == domain.StatusAccepted {
		return booking
	}
	booking, err = f.svc.Transition(context.Background(), bookingID, domain.EventStart, actor)
	require.NoError(t, err)
	if target == domain.StatusInProgress {
		return booking
	}
	booking, err = f.svc.Transition(context.Background(), bookingID, domain.EventComplete, actor)
	require.NoError(t, err)
	return booking
}

func TestCreateBooking(t *testing.T) {
	f := newBookingFixture()

	booking := f.createPending(t)
	assert.Equal(t, domain.StatusPending, booking.Status)
	assert.Equal(t, int64(200), booking.EstimatedCost)
	assert.False(t, booking.CreatedAt.IsZero())
	require.Len(t, f.outbox.events, 1)
	assert.Equal(t, "booking.created", f.outbox.events[0].EventType)
}

func TestCreateBookingValidation(t *testing.T) {
	f := newBookingFixture()

	draft := validDraft()
	draft.Pincode = "40002"
	draft.Description = "too short"

	_, err := f.svc.Create(context.Background(), draft)
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	fields := make([]string, 0, len(verr.Fields))
	for _, fe := range verr.Fields {
		fields = append(fields, fe.Field)
	}
	assert.ElementsMatch(t, []string{"pincode", "description"}, fields)
	assert.Empty(t, f.outbox.events)
}

func TestAcceptAssignsMechanicAndStamps(t *testing.T) {
	f := newBookingFixture(verifiedMechanic("mech-1"))
	booking := f.createPending(t)

	updated, err := f.svc.Transition(context.Background(), booking.ID, domain.EventAccept, domain.Actor{ID: "mech-1", Role: domain.RoleMechanic})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusAccepted, updated.Status)
	assert.Equal(t, "mech-1", updated.MechanicID)
	assert.Equal(t, "Ravi Kumar", updated.MechanicName)
	require.NotNil(t, updated.AcceptedAt)
	require.Len(t, f.bookings.events, 1)
	assert.Equal(t, "booking.accept", f.bookings.events[0].EventType)
}

func TestAcceptRaceSecondMechanicLoses(t *testing.T) {
	f := newBookingFixture(verifiedMechanic("mech-1"), verifiedMechanic("mech-2"))
	booking := f.createPending(t)

	_, err := f.svc.Transition(context.Background(), booking.ID, domain.EventAccept, domain.Actor{ID: "mech-1", Role: domain.RoleMechanic})
	require.NoError(t, err)

	_, err = f.svc.Transition(context.Background(), booking.ID, domain.EventAccept, domain.Actor{ID: "mech-2", Role: domain.RoleMechanic})
	assert.ErrorIs(t, err, domain.ErrIllegalTransition)

	stored, err := f.svc.Get(context.Background(), booking.ID)
	require.NoError(t, err)
	assert.Equal(t, "mech-1", stored.MechanicID)
}

func TestDuplicateEventIsIllegal(t *testing.T) {
	f := newBookingFixture(verifiedMechanic("mech-1"))
	booking := f.createPending(t)
	f.advanceTo(t, booking.ID, "mech-1", domain.StatusAccepted)

	actor := domain.Actor{ID: "mech-1", Role: domain.RoleMechanic}
	_, err := f.svc.Transition(context.Background(), booking.ID, domain.EventStart, actor)
	require.NoError(t, err)

	_, err = f.svc.Transition(context.Background(), booking.ID, domain.EventStart, actor)
	assert.ErrorIs(t, err, domain.ErrIllegalTransition)
}

func TestRoleMismatchIsUnauthorized(t *testing.T) {
	f := newBookingFixture(verifiedMechanic("mech-1"))
	booking := f.createPending(t)

	_, err := f.svc.Transition(context.Background(), booking.ID, domain.EventAccept, domain.Actor{ID: "cust-1", Role: domain.RoleCustomer})
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	stored, err := f.svc.Get(context.Background(), booking.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, stored.Status)
}

func TestCancelOnlyByOwningCustomer(t *testing.T) {
	f := newBookingFixture()
	booking := f.createPending(t)

	_, err := f.svc.Transition(context.Background(), booking.ID, domain.EventCancel, domain.Actor{ID: "cust-2", Role: domain.RoleCustomer})
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	updated, err := f.svc.Transition(context.Background(), booking.ID, domain.EventCancel, domain.Actor{ID: "cust-1", Role: domain.RoleCustomer})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, updated.Status)
	require.NotNil(t, updated.CancelledAt)
}

func TestAcceptGuardRejectsIneligibleMechanic(t *testing.T) {
	inactive := verifiedMechanic("mech-1")
	inactive.IsActive = false
	wrongCategory := verifiedMechanic("mech-2")
	wrongCategory.VehicleTypes = []domain.VehicleCategory{domain.VehicleCar}

	f := newBookingFixture(inactive, wrongCategory)
	booking := f.createPending(t)

	_, err := f.svc.Transition(context.Background(), booking.ID, domain.EventAccept, domain.Actor{ID: "mech-1", Role: domain.RoleMechanic})
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	_, err = f.svc.Transition(context.Background(), booking.ID, domain.EventAccept, domain.Actor{ID: "mech-2", Role: domain.RoleMechanic})
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestAcceptGuardRejectsMechanicWithActiveJob(t *testing.T) {
	f := newBookingFixture(verifiedMechanic("mech-1"))
	first := f.createPending(t)
	second := f.createPending(t)

	f.advanceTo(t, first.ID, "mech-1", domain.StatusAccepted)

	_, err := f.svc.Transition(context.Background(), second.ID, domain.EventAccept, domain.Actor{ID: "mech-1", Role: domain.RoleMechanic})
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestCompleteRecordsMechanicTotals(t *testing.T) {
	f := newBookingFixture(verifiedMechanic("mech-1"))
	booking := f.createPending(t)

	updated := f.advanceTo(t, booking.ID, "mech-1", domain.StatusCompleted)
	assert.Equal(t, domain.StatusCompleted, updated.Status)
	require.NotNil(t, updated.CompletedAt)

	mechanic, err := f.mechanics.GetMechanicByID(context.Background(), "mech-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), mechanic.TotalJobs)
	assert.Equal(t, int64(200), mechanic.TotalEarnings)
}

func TestSettleRequiresCompletedPayment(t *testing.T) {
	f := newBookingFixture(verifiedMechanic("mech-1"))
	booking := f.createPending(t)
	f.advanceTo(t, booking.ID, "mech-1", domain.StatusCompleted)

	actor := domain.Actor{ID: "pay-1", Role: domain.RoleSettlement}
	_, err := f.svc.Transition(context.Background(), booking.ID, domain.EventSettle, actor)
	assert.ErrorIs(t, err, domain.ErrIllegalTransition)

	f.payments.payments = append(f.payments.payments, &domain.Payment{
		ID: "pay-1", BookingID: booking.ID, CustomerID: "cust-1",
		Amount: 200, Method: domain.MethodCOD, Status: domain.PaymentCompleted,
	})
	updated, err := f.svc.Transition(context.Background(), booking.ID, domain.EventSettle, actor)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPaymentCompleted, updated.Status)
	require.NotNil(t, updated.PaymentCompletedAt)
	assert.True(t, updated.Status.IsTerminal())
}

func TestTransitionUnknownBooking(t *testing.T) {
	f := newBookingFixture(verifiedMechanic("mech-1"))

	_, err := f.svc.Transition(context.Background(), "missing", domain.EventAccept, domain.Actor{ID: "mech-1", Role: domain.RoleMechanic})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestTerminalStatesAcceptNoEvents(t *testing.T) {
	f := newBookingFixture()
	booking := f.createPending(t)

	_, err := f.svc.Transition(context.Background(), booking.ID, domain.EventCancel, domain.Actor{ID: "cust-1", Role: domain.RoleCustomer})
	require.NoError(t, err)

	for _, event := range []domain.Event{domain.EventCancel, domain.EventStart, domain.EventComplete} {
		role, _ := domain.RoleFor(event)
		_, err := f.svc.Transition(context.Background(), booking.ID, event, domain.Actor{ID: "cust-1", Role: role})
		assert.ErrorIs(t, err, domain.ErrIllegalTransition, "event %s", event)
	}
}
