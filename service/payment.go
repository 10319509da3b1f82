package service

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"fadedreams/roadassist/domain"
)

var (
	upiPattern    = regexp.MustCompile(`^[a-zA-Z0-9._-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	digitsPattern = regexp.MustCompile(`^\d+$`)
)

// Authorizer is the payment gateway capability. Implementations must honor
// context cancellation and leave no side effects when the caller abandons the
// call.
type Authorizer interface {
	Authorize(ctx context.Context, method domain.PaymentMethod, amount int64) (string, error)
}

// SimulatedGateway authorizes after a fixed latency with a configurable
// success rate. No real gateway is contacted.
type SimulatedGateway struct {
	Latency     time.Duration
	SuccessRate float64
	// Roll returns a value in [0, 1); overridable to force either outcome.
	Roll func() float64
}

// NewSimulatedGateway creates a gateway with the given latency and success
// rate.
func NewSimulatedGateway(latency time.Duration, successRate float64) *SimulatedGateway {
	return &SimulatedGateway{
		Latency:     latency,
		SuccessRate: successRate,
		Roll:        rand.Float64,
	}
}

// Authorize waits out the simulated latency, then succeeds with the
// configured probability.
func (g *SimulatedGateway) Authorize(ctx context.Context, method domain.PaymentMethod, amount int64) (string, error) {
	timer := time.NewTimer(g.Latency)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-timer.C:
	}
	if g.Roll() >= g.SuccessRate {
		return "", fmt.Errorf("%w: payment gateway temporarily unavailable", domain.ErrAuthorizationFailed)
	}
	return "TXN" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:20], nil
}

// ValidatePaymentDetails applies the method-specific input rules before any
// authorization attempt.
func ValidatePaymentDetails(method domain.PaymentMethod, details domain.MethodDetails) error {
	verr := &domain.ValidationError{}
	switch method {
	case domain.MethodCard:
		validateCard(verr, details.Card)
	case domain.MethodUPI:
		if details.UPI == nil || !upiPattern.MatchString(details.UPI.UPIID) {
			verr.Add("upiId", "please enter a valid UPI ID")
		}
	case domain.MethodWallet:
		if details.Wallet == nil || details.Wallet.WalletType == "" {
			verr.Add("walletType", "please select a wallet type")
		}
		if details.Wallet == nil || len(strings.TrimSpace(details.Wallet.WalletNumber)) < 5 {
			verr.Add("walletNumber", "please enter a valid wallet number")
		}
	case domain.MethodCOD:
		// Cash on delivery needs no upfront details.
	default:
		verr.Add("paymentMethod", "please select a payment method")
	}
	return verr.Err()
}

func validateCard(verr *domain.ValidationError, card *domain.CardDetails) {
	if card == nil {
		verr.Add("cardNumber", "please enter a valid card number")
		verr.Add("expiryDate", "please enter a valid expiry date")
		verr.Add("cvv", "please enter a valid CVV")
		verr.Add("cardName", "please enter the name on card")
		return
	}
	number := strings.ReplaceAll(card.Number, " ", "")
	if len(number) < 13 || len(number) > 19 || !digitsPattern.MatchString(number) {
		verr.Add("cardNumber", "please enter a valid card number")
	}
	if !expiryInFuture(card.Expiry, time.Now()) {
		verr.Add("expiryDate", "please enter a valid expiry date")
	}
	if len(card.CVV) != 3 || !digitsPattern.MatchString(card.CVV) {
		verr.Add("cvv", "please enter a valid CVV")
	}
	if len(strings.TrimSpace(card.HolderName)) < 2 {
		verr.Add("cardName", "please enter the name on card")
	}
}

// expiryInFuture checks an MM/YY expiry against the current month and year.
func expiryInFuture(expiry string, now time.Time) bool {
	parts := strings.Split(expiry, "/")
	if len(parts) != 2 {
		return false
	}
	month, err := strconv.Atoi(parts[0])
	if err != nil || month < 1 || month > 12 {
		return false
	}
	year, err := strconv.Atoi(parts[1])
	if err != nil {
		return false
	}
	curYear := now.Year() % 100
	curMonth := int(now.Month())
	return year > curYear || (year == curYear && month >= curMonth)
}

// PaymentService validates settlement input, drives the authorization
// capability and links a successful payment to the booking via the settle
// transition.
type PaymentService struct {
	payments   domain.PaymentRepository
	bookingSvc *BookingService
	gateway    Authorizer
	tracer     trace.Tracer
	logger     *slog.Logger
}

// NewPaymentService creates a new instance of the payment service
func NewPaymentService(payments domain.PaymentRepository, bookingSvc *BookingService, gateway Authorizer, logger *slog.Logger) *PaymentService {
	return &PaymentService{
		payments:   payments,
		bookingSvc: bookingSvc,
		gateway:    gateway,
		tracer:     otel.Tracer("roadassist"),
		logger:     logger,
	}
}

// Pay settles a completed booking. The amount must equal the booking's
// estimated cost and the method details must validate before the gateway is
// consulted. On decline no payment record is written and the booking stays in
// its prior state, so the caller may retry with the same or another method.
func (s *PaymentService) Pay(ctx context.Context, bookingID, customerID string, method domain.PaymentMethod, details domain.MethodDetails, amount int64) (*domain.Payment, error) {
	ctx, span := s.tracer.Start(ctx, "ServicePay")
	defer span.End()
	span.SetAttributes(
		attribute.String("bookingID", bookingID),
		attribute.String("method", string(method)),
		attribute.Int64("amount", amount),
	)

	booking, err := s.bookingSvc.Get(ctx, bookingID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to load booking")
		return nil, err
	}
	if booking.CustomerID != customerID {
		err := fmt.Errorf("%w: booking belongs to another customer", domain.ErrUnauthorized)
		span.RecordError(err)
		return nil, err
	}
	if booking.Status != domain.StatusCompleted {
		err := domain.IllegalTransitionError(booking.Status, domain.EventSettle)
		span.RecordError(err)
		return nil, err
	}
	existing, err := s.payments.FindCompletedByBooking(ctx, bookingID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if existing != nil {
		// The booking is still completed yet already carries a completed
		// payment: a prior attempt failed between the payment insert and the
		// settle write. Re-drive the transition instead of stranding the
		// booking, and hand back the existing record.
		if existing.Amount != booking.EstimatedCost {
			err := fmt.Errorf("%w: booking %s already has a completed payment", domain.ErrIllegalTransition, bookingID)
			span.RecordError(err)
			return nil, err
		}
		s.logger.Warn("Re-settling booking with existing completed payment", "bookingID", bookingID, "paymentID", existing.ID, "app", "roadassist")
		if _, err := s.bookingSvc.Transition(ctx, bookingID, domain.EventSettle, domain.Actor{ID: existing.ID, Role: domain.RoleSettlement}); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "Failed to settle booking")
			return nil, err
		}
		return existing, nil
	}
	if amount != booking.EstimatedCost {
		verr := (&domain.ValidationError{}).Add("amount",
			fmt.Sprintf("amount %d does not match estimated cost %d", amount, booking.EstimatedCost))
		span.RecordError(verr)
		return nil, verr
	}
	if err := ValidatePaymentDetails(method, details); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Payment details invalid")
		return nil, err
	}

	txnRef, err := s.gateway.Authorize(ctx, method, amount)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Authorization failed")
		s.logger.Warn("Payment authorization failed", "bookingID", bookingID, "method", method, "error", err, "app", "roadassist")
		return nil, err
	}

	payment, err := s.payments.InsertPayment(ctx, &domain.Payment{
		BookingID:     bookingID,
		CustomerID:    customerID,
		Amount:        amount,
		Method:        method,
		Status:        domain.PaymentCompleted,
		TransactionID: txnRef,
		CreatedAt:     time.Now(),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to insert payment")
		s.logger.Error("Failed to insert payment", "bookingID", bookingID, "error", err, "app", "roadassist")
		return nil, err
	}
	s.logger.Info("Recorded payment", "paymentID", payment.ID, "bookingID", bookingID, "transactionID", txnRef, "app", "roadassist")

	if _, err := s.bookingSvc.Transition(ctx, bookingID, domain.EventSettle, domain.Actor{ID: payment.ID, Role: domain.RoleSettlement}); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to settle booking")
		s.logger.Error("Failed to settle booking after payment", "bookingID", bookingID, "paymentID", payment.ID, "error", err, "app", "roadassist")
		return nil, err
	}
	return payment, nil
}
