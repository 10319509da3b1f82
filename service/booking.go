package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"fadedreams/roadassist/domain"
)

var pincodePattern = regexp.MustCompile(`^\d{6}$`)

// TransitionPayload is the JSON body staged in the outbox for every applied
// lifecycle event.
type TransitionPayload struct {
	BookingID     string                 `json:"bookingId"`
	Event         domain.Event           `json:"event"`
	From          domain.BookingStatus   `json:"from"`
	To            domain.BookingStatus   `json:"to"`
	ActorID       string                 `json:"actorId"`
	ActorRole     domain.Role            `json:"actorRole"`
	VehicleType   domain.VehicleCategory `json:"vehicleType"`
	ServiceID     string                 `json:"serviceId"`
	City          string                 `json:"city"`
	EstimatedCost int64                  `json:"estimatedCost"`
	OccurredAt    time.Time              `json:"occurredAt"`
}

// BookingService owns the booking lifecycle: creation and every transition
// through to settlement. Transitions are atomic per booking id; a race between
// two actors resolves to one winner, the loser sees ErrIllegalTransition.
type BookingService struct {
	bookings  domain.BookingRepository
	mechanics domain.MechanicRepository
	payments  domain.PaymentRepository
	outbox    domain.OutboxRepository
	tracer    trace.Tracer
	logger    *slog.Logger
}

// NewBookingService creates a new instance of the booking service
func NewBookingService(bookings domain.BookingRepository, mechanics domain.MechanicRepository, payments domain.PaymentRepository, outbox domain.OutboxRepository, logger *slog.Logger) *BookingService {
	return &BookingService{
		bookings:  bookings,
		mechanics: mechanics,
		payments:  payments,
		outbox:    outbox,
		tracer:    otel.Tracer("roadassist"),
		logger:    logger,
	}
}

// ValidateDraft applies the creation guard: service selected, location valid,
// description of at least 10 characters, urgency chosen.
func ValidateDraft(draft *domain.Booking) error {
	verr := &domain.ValidationError{}
	if draft.VehicleType != domain.VehicleBike && draft.VehicleType != domain.VehicleCar {
		verr.Add("vehicleType", "please select a vehicle type")
	}
	if draft.Service.ID == "" {
		verr.Add("service", "please select a service type")
	}
	if len(strings.TrimSpace(draft.Address)) < 10 {
		verr.Add("address", "please enter a complete address")
	}
	if len(strings.TrimSpace(draft.City)) < 2 {
		verr.Add("city", "please enter a valid city")
	}
	if !pincodePattern.MatchString(draft.Pincode) {
		verr.Add("pincode", "please enter a valid 6-digit pincode")
	}
	if len(strings.TrimSpace(draft.Description)) < 10 {
		verr.Add("description", "please provide a detailed description of the issue")
	}
	switch draft.Urgency {
	case domain.UrgencyLow, domain.UrgencyMedium, domain.UrgencyHigh:
	default:
		verr.Add("urgency", "please select urgency level")
	}
	return verr.Err()
}

// Create validates the assembled draft and stores it as a pending booking.
// The estimated cost is snapshotted from the selected service price and never
// recalculated afterwards.
func (s *BookingService) Create(ctx context.Context, draft *domain.Booking) (*domain.Booking, error) {
	ctx, span := s.tracer.Start(ctx, "ServiceCreateBooking")
	defer span.End()

	if err := ValidateDraft(draft); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Draft validation failed")
		return nil, err
	}

	now := time.Now()
	draft.Status = domain.StatusPending
	draft.CreatedAt = now
	draft.EstimatedCost = draft.Service.Price

	booking, err := s.bookings.InsertBooking(ctx, draft)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to insert booking")
		s.logger.Error("Failed to insert booking", "error", err, "app", "roadassist")
		return nil, err
	}
	span.SetAttributes(
		attribute.String("bookingID", booking.ID),
		attribute.Int64("estimatedCost", booking.EstimatedCost),
	)
	s.logger.Info("Created booking", "bookingID", booking.ID, "customerID", booking.CustomerID, "app", "roadassist")

	event, err := s.outboxEvent("booking.created", booking.ID, TransitionPayload{
		BookingID:     booking.ID,
		To:            domain.StatusPending,
		ActorID:       booking.CustomerID,
		ActorRole:     domain.RoleCustomer,
		VehicleType:   booking.VehicleType,
		ServiceID:     booking.Service.ID,
		City:          booking.City,
		EstimatedCost: booking.EstimatedCost,
		OccurredAt:    now,
	})
	if err == nil {
		err = s.outbox.InsertOutboxEvent(ctx, event)
	}
	if err != nil {
		// Booking already persisted; losing the created event only delays
		// dashboard refresh.
		s.logger.Error("Failed to stage created event", "bookingID", booking.ID, "error", err, "app", "roadassist")
	}
	return booking, nil
}

// Get retrieves a booking by id.
func (s *BookingService) Get(ctx context.Context, id string) (*domain.Booking, error) {
	ctx, span := s.tracer.Start(ctx, "ServiceGetBooking")
	defer span.End()
	return s.bookings.GetBookingByID(ctx, id)
}

// ListForCustomer retrieves a customer's bookings, newest first.
func (s *BookingService) ListForCustomer(ctx context.Context, customerID string) ([]*domain.Booking, error) {
	ctx, span := s.tracer.Start(ctx, "ServiceListCustomerBookings")
	defer span.End()
	return s.bookings.ListBookingsByCustomer(ctx, customerID)
}

// ListForMechanic retrieves a mechanic's bookings in the given statuses.
func (s *BookingService) ListForMechanic(ctx context.Context, mechanicID string, statuses []domain.BookingStatus) ([]*domain.Booking, error) {
	ctx, span := s.tracer.Start(ctx, "ServiceListMechanicBookings")
	defer span.End()
	return s.bookings.ListBookingsByMechanic(ctx, mechanicID, statuses)
}

// ListPending retrieves all pending bookings for the mechanic request feed.
func (s *BookingService) ListPending(ctx context.Context) ([]*domain.Booking, error) {
	ctx, span := s.tracer.Start(ctx, "ServiceListPendingBookings")
	defer span.End()
	return s.bookings.ListBookingsByStatus(ctx, domain.StatusPending)
}

// Transition applies a lifecycle event to the booking on behalf of the actor.
// It fails with ErrIllegalTransition when the current status has no edge for
// the event (including duplicate delivery), ErrUnauthorized on a role or
// guard mismatch, and ErrNotFound when the booking does not resolve. On
// success the new status is persisted atomically with its timestamp.
func (s *BookingService) Transition(ctx context.Context, bookingID string, event domain.Event, actor domain.Actor) (*domain.Booking, error) {
	ctx, span := s.tracer.Start(ctx, "ServiceTransitionBooking")
	defer span.End()
	span.SetAttributes(
		attribute.String("bookingID", bookingID),
		attribute.String("event", string(event)),
		attribute.String("actorID", actor.ID),
		attribute.String("actorRole", string(actor.Role)),
	)

	requiredRole, known := domain.RoleFor(event)
	if !known {
		return nil, fmt.Errorf("%w: unknown event %q", domain.ErrIllegalTransition, event)
	}
	if actor.Role != requiredRole {
		err := domain.UnauthorizedError(actor.Role, event)
		span.RecordError(err)
		span.SetStatus(codes.Error, "Role mismatch")
		s.logger.Warn("Role mismatch", "bookingID", bookingID, "event", event, "role", actor.Role, "app", "roadassist")
		return nil, err
	}

	booking, err := s.bookings.GetBookingByID(ctx, bookingID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to load booking")
		return nil, err
	}

	from := booking.Status
	to, ok := domain.NextStatus(from, event)
	if !ok {
		err := domain.IllegalTransitionError(from, event)
		span.RecordError(err)
		span.SetStatus(codes.Error, "Illegal transition")
		return nil, err
	}

	now := time.Now()
	set := map[string]any{domain.StampField(event): now}

	switch event {
	case domain.EventAccept:
		mechanic, err := s.guardAccept(ctx, booking, actor)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "Accept guard failed")
			return nil, err
		}
		set["mechanicId"] = mechanic.ID
		set["mechanicName"] = mechanic.FullName
	case domain.EventReject:
		if _, err := s.mechanics.GetMechanicByID(ctx, actor.ID); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "Unknown mechanic")
			return nil, err
		}
	case domain.EventCancel:
		if actor.ID != booking.CustomerID {
			err := fmt.Errorf("%w: booking belongs to another customer", domain.ErrUnauthorized)
			span.RecordError(err)
			return nil, err
		}
	case domain.EventStart, domain.EventComplete:
		if actor.ID != booking.MechanicID {
			err := fmt.Errorf("%w: booking is assigned to another mechanic", domain.ErrUnauthorized)
			span.RecordError(err)
			return nil, err
		}
	case domain.EventSettle:
		if err := s.guardSettle(ctx, booking); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "Settle guard failed")
			return nil, err
		}
	}

	outboxEvent, err := s.outboxEvent("booking."+string(event), booking.ID, TransitionPayload{
		BookingID:     booking.ID,
		Event:         event,
		From:          from,
		To:            to,
		ActorID:       actor.ID,
		ActorRole:     actor.Role,
		VehicleType:   booking.VehicleType,
		ServiceID:     booking.Service.ID,
		City:          booking.City,
		EstimatedCost: booking.EstimatedCost,
		OccurredAt:    now,
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	updated, err := s.bookings.ApplyTransition(ctx, booking.ID, from, to, set, outboxEvent)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to apply transition")
		s.logger.Warn("Transition rejected", "bookingID", booking.ID, "event", event, "error", err, "app", "roadassist")
		return nil, err
	}
	s.logger.Info("Applied transition", "bookingID", booking.ID, "event", event, "from", from, "to", to, "app", "roadassist")

	if event == domain.EventComplete {
		// Totals feed the mechanic dashboard; a miss here is repairable from
		// booking history and must not roll back the completed booking.
		if err := s.mechanics.RecordCompletedJob(ctx, updated.MechanicID, updated.EstimatedCost); err != nil {
			s.logger.Error("Failed to record completed job", "mechanicID", updated.MechanicID, "error", err, "app", "roadassist")
		}
	}
	return updated, nil
}

// guardAccept enforces the accept guard: the mechanic must be verified and
// active, service the booking's vehicle category, and hold no other active
// job.
func (s *BookingService) guardAccept(ctx context.Context, booking *domain.Booking, actor domain.Actor) (*domain.Mechanic, error) {
	mechanic, err := s.mechanics.GetMechanicByID(ctx, actor.ID)
	if err != nil {
		return nil, err
	}
	if !mechanic.Eligible() {
		return nil, fmt.Errorf("%w: mechanic %s is not verified and active", domain.ErrUnauthorized, mechanic.ID)
	}
	if !mechanic.Services(booking.VehicleType) {
		return nil, fmt.Errorf("%w: mechanic %s does not service %s", domain.ErrUnauthorized, mechanic.ID, booking.VehicleType)
	}
	active, err := s.bookings.ListBookingsByMechanic(ctx, mechanic.ID, []domain.BookingStatus{domain.StatusAccepted, domain.StatusInProgress})
	if err != nil {
		return nil, err
	}
	if len(active) > 0 {
		return nil, fmt.Errorf("%w: mechanic %s already holds an active job", domain.ErrUnauthorized, mechanic.ID)
	}
	return mechanic, nil
}

// guardSettle enforces the settle guard: exactly one completed payment with
// an amount matching the estimated cost.
func (s *BookingService) guardSettle(ctx context.Context, booking *domain.Booking) error {
	payment, err := s.payments.FindCompletedByBooking(ctx, booking.ID)
	if err != nil {
		return err
	}
	if payment == nil {
		return fmt.Errorf("%w: no completed payment for booking %s", domain.ErrIllegalTransition, booking.ID)
	}
	if payment.Amount != booking.EstimatedCost {
		return fmt.Errorf("%w: payment amount %d does not match estimated cost %d", domain.ErrIllegalTransition, payment.Amount, booking.EstimatedCost)
	}
	return nil
}

func (s *BookingService) outboxEvent(eventType, bookingID string, payload TransitionPayload) (*domain.OutboxEvent, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event payload: %w", err)
	}
	return &domain.OutboxEvent{
		ID:        uuid.NewString(),
		EventType: eventType,
		BookingID: bookingID,
		Payload:   body,
		CreatedAt: time.Now(),
	}, nil
}
