package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"fadedreams/roadassist/catalog"
	"fadedreams/roadassist/domain"
	"fadedreams/roadassist/service"
	"fadedreams/roadassist/wizard"
)

// Handler exposes the booking core over HTTP.
type Handler struct {
	bookings  *service.BookingService
	matcher   *service.MatcherService
	mechanics *service.MechanicService
	payments  *service.PaymentService
	logger    *slog.Logger
}

// NewHandler creates a new Handler
func NewHandler(bookings *service.BookingService, matcher *service.MatcherService, mechanics *service.MechanicService, payments *service.PaymentService, logger *slog.Logger) *Handler {
	return &Handler{
		bookings:  bookings,
		matcher:   matcher,
		mechanics: mechanics,
		payments:  payments,
		logger:    logger,
	}
}

// Register wires the routes onto the router.
func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/health", h.HealthCheck).Methods("GET")
	r.HandleFunc("/services/{vehicleType}", h.ListServices).Methods("GET")
	r.HandleFunc("/mechanics/available", h.FindMechanics).Methods("GET")
	r.HandleFunc("/mechanics", h.RegisterMechanic).Methods("POST")
	r.HandleFunc("/mechanics/{mechanicID}/verification", h.VerifyMechanic).Methods("POST")
	r.HandleFunc("/mechanics/{mechanicID}/bookings", h.ListMechanicBookings).Methods("GET")
	r.HandleFunc("/customers/{customerID}/bookings", h.ListCustomerBookings).Methods("GET")
	r.HandleFunc("/bookings/pending", h.ListPendingBookings).Methods("GET")
	r.HandleFunc("/bookings", h.CreateBooking).Methods("POST")
	r.HandleFunc("/bookings/{bookingID}", h.GetBooking).Methods("GET")
	for _, event := range []domain.Event{
		domain.EventAccept, domain.EventReject, domain.EventCancel,
		domain.EventStart, domain.EventComplete,
	} {
		r.HandleFunc("/bookings/{bookingID}/"+string(event), h.transitionHandler(event)).Methods("POST")
	}
	r.HandleFunc("/bookings/{bookingID}/payments", h.Pay).Methods("POST")
}

// HealthCheck reports liveness.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	_, span := otel.Tracer("roadassist").Start(r.Context(), "HealthCheck")
	defer span.End()
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "OK")
}

// ListServices returns the catalog for a vehicle category.
func (h *Handler) ListServices(w http.ResponseWriter, r *http.Request) {
	_, span := otel.Tracer("roadassist").Start(r.Context(), "ListServices")
	defer span.End()

	category := domain.VehicleCategory(mux.Vars(r)["vehicleType"])
	span.SetAttributes(attribute.String("vehicleType", string(category)))

	services, err := catalog.ListServices(category)
	if err != nil {
		h.writeError(w, span, err)
		return
	}
	h.writeJSON(w, http.StatusOK, services)
}

// FindMechanics returns the available mechanics for a category and city.
func (h *Handler) FindMechanics(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("roadassist").Start(r.Context(), "FindMechanics")
	defer span.End()

	category := domain.VehicleCategory(r.URL.Query().Get("vehicleType"))
	city := r.URL.Query().Get("city")
	if category != domain.VehicleBike && category != domain.VehicleCar {
		h.writeError(w, span, fmt.Errorf("%w: %q", domain.ErrUnknownCategory, category))
		return
	}

	mechanics, err := h.matcher.FindAvailable(ctx, category, city)
	if err != nil {
		h.writeError(w, span, err)
		return
	}
	h.writeJSON(w, http.StatusOK, mechanics)
}

// RegisterMechanic stores a new mechanic pending verification.
func (h *Handler) RegisterMechanic(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("roadassist").Start(r.Context(), "RegisterMechanic")
	defer span.End()

	var mechanic domain.Mechanic
	if err := json.NewDecoder(r.Body).Decode(&mechanic); err != nil {
		h.writeBadRequest(w, span, err)
		return
	}
	created, err := h.mechanics.Register(ctx, &mechanic)
	if err != nil {
		h.writeError(w, span, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, created)
}

// VerifyMechanic records the administrative verification decision.
func (h *Handler) VerifyMechanic(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("roadassist").Start(r.Context(), "VerifyMechanic")
	defer span.End()

	mechanicID := mux.Vars(r)["mechanicID"]
	var input struct {
		Approved bool   `json:"approved"`
		AdminID  string `json:"adminId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		h.writeBadRequest(w, span, err)
		return
	}
	if err := h.mechanics.Verify(ctx, mechanicID, input.Approved, input.AdminID); err != nil {
		h.writeError(w, span, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// createBookingRequest carries the fully collected wizard input.
type createBookingRequest struct {
	CustomerID    string `json:"customerId"`
	CustomerName  string `json:"customerName"`
	VehicleType   string `json:"vehicleType"`
	ServiceID     string `json:"serviceId"`
	MechanicID    string `json:"mechanicId"`
	Address       string `json:"address"`
	City          string `json:"city"`
	Pincode       string `json:"pincode"`
	Landmark      string `json:"landmark"`
	Description   string `json:"description"`
	Urgency       string `json:"urgency"`
	PreferredTime string `json:"preferredTime"`
	PhotoURL      string `json:"photoUrl"`
}

// CreateBooking runs the submitted payload through a wizard session so every
// step gate applies, then hands the draft to the booking lifecycle.
func (h *Handler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("roadassist").Start(r.Context(), "CreateBooking")
	defer span.End()

	var input createBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		h.writeBadRequest(w, span, err)
		return
	}
	span.SetAttributes(
		attribute.String("customerID", input.CustomerID),
		attribute.String("vehicleType", input.VehicleType),
		attribute.String("serviceID", input.ServiceID),
	)

	sess := wizard.NewSession(input.CustomerID, input.CustomerName)
	if err := sess.SelectVehicle(domain.VehicleCategory(input.VehicleType)); err != nil {
		h.writeError(w, span, err)
		return
	}
	if err := sess.SelectService(input.ServiceID); err != nil {
		h.writeError(w, span, err)
		return
	}
	if err := sess.Next(); err != nil {
		h.writeError(w, span, err)
		return
	}
	if err := sess.SelectMechanic(input.MechanicID); err != nil {
		h.writeError(w, span, err)
		return
	}
	if err := sess.Next(); err != nil {
		h.writeError(w, span, err)
		return
	}
	sess.SetLocation(input.Address, input.City, input.Pincode, input.Landmark)
	if err := sess.Next(); err != nil {
		h.writeError(w, span, err)
		return
	}
	sess.SetDetails(input.Description, input.Urgency, input.PreferredTime)
	if err := sess.Next(); err != nil {
		h.writeError(w, span, err)
		return
	}
	if input.PhotoURL != "" {
		sess.AttachPhoto(input.PhotoURL)
	}

	booking, err := sess.Submit(ctx, h.bookings)
	if err != nil {
		h.writeError(w, span, err)
		return
	}
	h.logger.Info("Booking created", "bookingID", booking.ID, "customerID", booking.CustomerID, "app", "roadassist")
	h.writeJSON(w, http.StatusCreated, booking)
}

// GetBooking retrieves a booking by id.
func (h *Handler) GetBooking(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("roadassist").Start(r.Context(), "GetBooking")
	defer span.End()

	booking, err := h.bookings.Get(ctx, mux.Vars(r)["bookingID"])
	if err != nil {
		h.writeError(w, span, err)
		return
	}
	h.writeJSON(w, http.StatusOK, booking)
}

// ListCustomerBookings returns a customer's booking history.
func (h *Handler) ListCustomerBookings(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("roadassist").Start(r.Context(), "ListCustomerBookings")
	defer span.End()

	bookings, err := h.bookings.ListForCustomer(ctx, mux.Vars(r)["customerID"])
	if err != nil {
		h.writeError(w, span, err)
		return
	}
	h.writeJSON(w, http.StatusOK, bookings)
}

// ListMechanicBookings returns a mechanic's bookings, optionally filtered by
// status.
func (h *Handler) ListMechanicBookings(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("roadassist").Start(r.Context(), "ListMechanicBookings")
	defer span.End()

	var statuses []domain.BookingStatus
	for _, s := range r.URL.Query()["status"] {
		statuses = append(statuses, domain.BookingStatus(s))
	}
	bookings, err := h.bookings.ListForMechanic(ctx, mux.Vars(r)["mechanicID"], statuses)
	if err != nil {
		h.writeError(w, span, err)
		return
	}
	h.writeJSON(w, http.StatusOK, bookings)
}

// ListPendingBookings returns the open request feed for mechanics.
func (h *Handler) ListPendingBookings(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("roadassist").Start(r.Context(), "ListPendingBookings")
	defer span.End()

	bookings, err := h.bookings.ListPending(ctx)
	if err != nil {
		h.writeError(w, span, err)
		return
	}
	h.writeJSON(w, http.StatusOK, bookings)
}

func (h *Handler) transitionHandler(event domain.Event) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := otel.Tracer("roadassist").Start(r.Context(), "TransitionBooking")
		defer span.End()

		bookingID := mux.Vars(r)["bookingID"]
		var actor domain.Actor
		if err := json.NewDecoder(r.Body).Decode(&actor); err != nil {
			h.writeBadRequest(w, span, err)
			return
		}
		span.SetAttributes(
			attribute.String("bookingID", bookingID),
			attribute.String("event", string(event)),
			attribute.String("actorID", actor.ID),
		)

		booking, err := h.bookings.Transition(ctx, bookingID, event, actor)
		if err != nil {
			h.writeError(w, span, err)
			return
		}
		h.writeJSON(w, http.StatusOK, booking)
	}
}

// payRequest carries one settlement attempt.
type payRequest struct {
	CustomerID string               `json:"customerId"`
	Method     domain.PaymentMethod `json:"method"`
	Amount     int64                `json:"amount"`
	Details    domain.MethodDetails `json:"details"`
}

// Pay settles a completed booking.
func (h *Handler) Pay(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("roadassist").Start(r.Context(), "Pay")
	defer span.End()

	bookingID := mux.Vars(r)["bookingID"]
	var input payRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		h.writeBadRequest(w, span, err)
		return
	}
	span.SetAttributes(
		attribute.String("bookingID", bookingID),
		attribute.String("method", string(input.Method)),
	)

	payment, err := h.payments.Pay(ctx, bookingID, input.CustomerID, input.Method, input.Details, input.Amount)
	if err != nil {
		h.writeError(w, span, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, payment)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("Failed to encode response", "error", err, "app", "roadassist")
	}
}

func (h *Handler) writeBadRequest(w http.ResponseWriter, span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, "Invalid request body")
	h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body: " + err.Error()})
}

// writeError maps the core error taxonomy onto HTTP statuses. Persistence
// failures surface as a retryable 503.
func (h *Handler) writeError(w http.ResponseWriter, span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		h.writeJSON(w, http.StatusBadRequest, map[string]any{"error": verr.Error(), "fields": verr.Fields})
	case errors.Is(err, domain.ErrUnknownCategory):
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, domain.ErrUnauthorized):
		h.writeJSON(w, http.StatusForbidden, map[string]string{"error": err.Error()})
	case errors.Is(err, domain.ErrNotFound):
		h.writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, domain.ErrIllegalTransition):
		h.writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.Is(err, domain.ErrAuthorizationFailed):
		h.writeJSON(w, http.StatusPaymentRequired, map[string]string{"error": err.Error()})
	default:
		h.logger.Error("Request failed", "error", err, "app", "roadassist")
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "temporary failure, please try again"})
	}
}
