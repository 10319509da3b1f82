package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	"fadedreams/roadassist/domain"
)

// In-memory repository fakes backing the service tests. ApplyTransition keeps
// the compare-and-swap contract of the real store so race behavior is
// observable without a database.

type fakeBookingRepo struct {
	bookings map[string]*domain.Booking
	nextID   int
	events   []*domain.OutboxEvent
}

func newFakeBookingRepo() *fakeBookingRepo {
	return &fakeBookingRepo{bookings: make(map[string]*domain.Booking)}
}

func (r *fakeBookingRepo) InsertBooking(_ context.Context, booking *domain.Booking) (*domain.Booking, error) {
	r.nextID++
	booking.ID = "bk-" + strconv.Itoa(r.nextID)
	copied := *booking
	r.bookings[booking.ID] = &copied
	return booking, nil
}

func (r *fakeBookingRepo) GetBookingByID(_ context.Context, id string) (*domain.Booking, error) {
	b, ok := r.bookings[id]
	if !ok {
		return nil, fmt.Errorf("%w: booking %s", domain.ErrNotFound, id)
	}
	copied := *b
	return &copied, nil
}

func (r *fakeBookingRepo) ListBookingsByCustomer(_ context.Context, customerID string) ([]*domain.Booking, error) {
	var out []*domain.Booking
	for _, b := range r.bookings {
		if b.CustomerID == customerID {
			copied := *b
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (r *fakeBookingRepo) ListBookingsByMechanic(_ context.Context, mechanicID string, statuses []domain.BookingStatus) ([]*domain.Booking, error) {
	var out []*domain.Booking
	for _, b := range r.bookings {
		if b.MechanicID != mechanicID {
			continue
		}
		for _, s := range statuses {
			if b.Status == s {
				copied := *b
				out = append(out, &copied)
				break
			}
		}
	}
	return out, nil
}

func (r *fakeBookingRepo) ListBookingsByStatus(_ context.Context, status domain.BookingStatus) ([]*domain.Booking, error) {
	var out []*domain.Booking
	for _, b := range r.bookings {
		if b.Status == status {
			copied := *b
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (r *fakeBookingRepo) ApplyTransition(_ context.Context, id string, from, to domain.BookingStatus, set map[string]any, event *domain.OutboxEvent) (*domain.Booking, error) {
	b, ok := r.bookings[id]
	if !ok {
		return nil, fmt.Errorf("%w: booking %s", domain.ErrNotFound, id)
	}
	if b.Status != from {
		return nil, fmt.Errorf("%w: booking %s is %q, expected %q", domain.ErrIllegalTransition, id, b.Status, from)
	}
	b.Status = to
	for field, value := range set {
		switch field {
		case "mechanicId":
			b.MechanicID = value.(string)
		case "mechanicName":
			b.MechanicName = value.(string)
		case "acceptedAt":
			t := value.(time.Time)
			b.AcceptedAt = &t
		case "rejectedAt":
			t := value.(time.Time)
			b.RejectedAt = &t
		case "cancelledAt":
			t := value.(time.Time)
			b.CancelledAt = &t
		case "startedAt":
			t := value.(time.Time)
			b.StartedAt = &t
		case "completedAt":
			t := value.(time.Time)
			b.CompletedAt = &t
		case "paymentCompletedAt":
			t := value.(time.Time)
			b.PaymentCompletedAt = &t
		}
	}
	r.events = append(r.events, event)
	copied := *b
	return &copied, nil
}

type fakeMechanicRepo struct {
	mechanics     map[string]*domain.Mechanic
	completedJobs map[string]int64
}

func newFakeMechanicRepo(mechanics ...*domain.Mechanic) *fakeMechanicRepo {
	r := &fakeMechanicRepo{
		mechanics:     make(map[string]*domain.Mechanic),
		completedJobs: make(map[string]int64),
	}
	for _, m := range mechanics {
		r.mechanics[m.ID] = m
	}
	return r
}

func (r *fakeMechanicRepo) GetMechanicByID(_ context.Context, id string) (*domain.Mechanic, error) {
	m, ok := r.mechanics[id]
	if !ok {
		return nil, fmt.Errorf("%w: mechanic %s", domain.ErrNotFound, id)
	}
	return m, nil
}

func (r *fakeMechanicRepo) ListEligibleMechanics(_ context.Context, category domain.VehicleCategory) ([]*domain.Mechanic, error) {
	var out []*domain.Mechanic
	for _, m := range r.mechanics {
		if m.Eligible() && m.Services(category) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *fakeMechanicRepo) InsertMechanic(_ context.Context, mechanic *domain.Mechanic) (*domain.Mechanic, error) {
	if mechanic.ID == "" {
		mechanic.ID = "mech-" + strconv.Itoa(len(r.mechanics)+1)
	}
	r.mechanics[mechanic.ID] = mechanic
	return mechanic, nil
}

func (r *fakeMechanicRepo) SetVerification(_ context.Context, id string, status domain.MechanicStatus, verifiedBy string) error {
	m, ok := r.mechanics[id]
	if !ok {
		return fmt.Errorf("%w: mechanic %s", domain.ErrNotFound, id)
	}
	m.Status = status
	m.VerifiedBy = verifiedBy
	return nil
}

func (r *fakeMechanicRepo) RecordCompletedJob(_ context.Context, id string, earnings int64) error {
	m, ok := r.mechanics[id]
	if !ok {
		return fmt.Errorf("%w: mechanic %s", domain.ErrNotFound, id)
	}
	m.TotalJobs++
	m.TotalEarnings += earnings
	r.completedJobs[id] += earnings
	return nil
}

type fakePaymentRepo struct {
	payments []*domain.Payment
}

func (r *fakePaymentRepo) InsertPayment(_ context.Context, payment *domain.Payment) (*domain.Payment, error) {
	payment.ID = "pay-" + strconv.Itoa(len(r.payments)+1)
	r.payments = append(r.payments, payment)
	return payment, nil
}

func (r *fakePaymentRepo) FindCompletedByBooking(_ context.Context, bookingID string) (*domain.Payment, error) {
	for _, p := range r.payments {
		if p.BookingID == bookingID && p.Status == domain.PaymentCompleted {
			return p, nil
		}
	}
	return nil, nil
}

func (r *fakePaymentRepo) ListPaymentsByCustomer(_ context.Context, customerID string) ([]*domain.Payment, error) {
	var out []*domain.Payment
	for _, p := range r.payments {
		if p.CustomerID == customerID {
			out = append(out, p)
		}
	}
	return out, nil
}

type fakeOutboxRepo struct {
	events []*domain.OutboxEvent
}

func (r *fakeOutboxRepo) InsertOutboxEvent(_ context.Context, event *domain.OutboxEvent) error {
	r.events = append(r.events, event)
	return nil
}

func (r *fakeOutboxRepo) GetUnprocessedOutboxEvents(_ context.Context) ([]*domain.OutboxEvent, error) {
	var out []*domain.OutboxEvent
	for _, e := range r.events {
		if !e.Processed {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *fakeOutboxRepo) MarkOutboxEventProcessed(_ context.Context, id string) error {
	for _, e := range r.events {
		if e.ID == id {
			now := time.Now()
			e.Processed = true
			e.ProcessedAt = &now
			return nil
		}
	}
	return fmt.Errorf("%w: outbox event %s", domain.ErrNotFound, id)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
