package domain

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
)

// OutboxEvent is a lifecycle event staged in the outbox collection for
// publication. Payload is the JSON-encoded event body.
type OutboxEvent struct {
	ID          string     `bson:"_id" json:"id"`
	EventType   string     `bson:"event_type" json:"event_type"`
	BookingID   string     `bson:"booking_id" json:"booking_id"`
	Payload     []byte     `bson:"payload" json:"payload"`
	CreatedAt   time.Time  `bson:"created_at" json:"created_at"`
	Processed   bool       `bson:"processed" json:"processed"`
	ProcessedAt *time.Time `bson:"processed_at,omitempty" json:"processed_at,omitempty"`
}

// BookingRepository defines the data access methods for bookings.
type BookingRepository interface {
	InsertBooking(ctx context.Context, booking *Booking) (*Booking, error)
	GetBookingByID(ctx context.Context, id string) (*Booking, error)
	ListBookingsByCustomer(ctx context.Context, customerID string) ([]*Booking, error)
	ListBookingsByMechanic(ctx context.Context, mechanicID string, statuses []BookingStatus) ([]*Booking, error)
	ListBookingsByStatus(ctx context.Context, status BookingStatus) ([]*Booking, error)

	// ApplyTransition atomically moves the booking from one status to another
	// with compare-and-swap semantics on the current status, sets the given
	// fields in the same write, and stages the outbox event with it. A lost
	// race yields ErrIllegalTransition; an unknown id yields ErrNotFound.
	ApplyTransition(ctx context.Context, id string, from, to BookingStatus, set map[string]any, event *OutboxEvent) (*Booking, error)
}

// MechanicRepository defines the data access methods for mechanics.
type MechanicRepository interface {
	GetMechanicByID(ctx context.Context, id string) (*Mechanic, error)
	// ListEligibleMechanics returns verified, active mechanics servicing the
	// category. City filtering happens in the matcher.
	ListEligibleMechanics(ctx context.Context, category VehicleCategory) ([]*Mechanic, error)
	InsertMechanic(ctx context.Context, mechanic *Mechanic) (*Mechanic, error)
	SetVerification(ctx context.Context, id string, status MechanicStatus, verifiedBy string) error
	// RecordCompletedJob bumps the mechanic's job and earnings totals after a
	// booking completes.
	RecordCompletedJob(ctx context.Context, id string, earnings int64) error
}

// PaymentRepository defines the data access methods for payments.
type PaymentRepository interface {
	InsertPayment(ctx context.Context, payment *Payment) (*Payment, error)
	// FindCompletedByBooking returns (nil, nil) when the booking has no
	// completed payment yet.
	FindCompletedByBooking(ctx context.Context, bookingID string) (*Payment, error)
	ListPaymentsByCustomer(ctx context.Context, customerID string) ([]*Payment, error)
}

// OutboxRepository defines access to staged lifecycle events.
type OutboxRepository interface {
	InsertOutboxEvent(ctx context.Context, event *OutboxEvent) error
	GetUnprocessedOutboxEvents(ctx context.Context) ([]*OutboxEvent, error)
	MarkOutboxEventProcessed(ctx context.Context, id string) error
}

// BookingWatcher exposes the change-subscription primitive used by the
// dashboard push hub, not by the state machine itself.
type BookingWatcher interface {
	WatchBookings(ctx context.Context) (*mongo.ChangeStream, error)
}
