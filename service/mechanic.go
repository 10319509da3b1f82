package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"fadedreams/roadassist/domain"
)

// MechanicService covers mechanic registration and administrative
// verification; the verified+active guard on accept and matching depends on
// these operations.
type MechanicService struct {
	mechanics domain.MechanicRepository
	tracer    trace.Tracer
	logger    *slog.Logger
}

// NewMechanicService creates a new instance of the mechanic service
func NewMechanicService(mechanics domain.MechanicRepository, logger *slog.Logger) *MechanicService {
	return &MechanicService{
		mechanics: mechanics,
		tracer:    otel.Tracer("roadassist"),
		logger:    logger,
	}
}

// Register stores a new mechanic in pending verification state.
func (s *MechanicService) Register(ctx context.Context, mechanic *domain.Mechanic) (*domain.Mechanic, error) {
	ctx, span := s.tracer.Start(ctx, "ServiceRegisterMechanic")
	defer span.End()

	verr := &domain.ValidationError{}
	if len(mechanic.FullName) < 2 {
		verr.Add("fullName", "please enter a full name")
	}
	if mechanic.ServiceArea == "" {
		verr.Add("serviceArea", "please enter a service area")
	}
	if len(mechanic.VehicleTypes) == 0 {
		verr.Add("vehicleTypes", "please select at least one vehicle type")
	}
	for _, v := range mechanic.VehicleTypes {
		if v != domain.VehicleBike && v != domain.VehicleCar {
			verr.Add("vehicleTypes", fmt.Sprintf("unknown vehicle type %q", v))
		}
	}
	if err := verr.Err(); err != nil {
		span.RecordError(err)
		return nil, err
	}

	mechanic.Status = domain.MechanicPending
	mechanic.IsActive = true
	mechanic.Rating = 0
	mechanic.TotalJobs = 0
	mechanic.TotalEarnings = 0
	mechanic.CreatedAt = time.Now()

	created, err := s.mechanics.InsertMechanic(ctx, mechanic)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to insert mechanic")
		s.logger.Error("Failed to insert mechanic", "error", err, "app", "roadassist")
		return nil, err
	}
	span.SetAttributes(attribute.String("mechanicID", created.ID))
	s.logger.Info("Registered mechanic", "mechanicID", created.ID, "app", "roadassist")
	return created, nil
}

// Get retrieves a mechanic by id.
func (s *MechanicService) Get(ctx context.Context, id string) (*domain.Mechanic, error) {
	ctx, span := s.tracer.Start(ctx, "ServiceGetMechanic")
	defer span.End()
	return s.mechanics.GetMechanicByID(ctx, id)
}

// Verify records the administrative verification decision. Only verified and
// approved states are valid outcomes.
func (s *MechanicService) Verify(ctx context.Context, mechanicID string, approved bool, adminID string) error {
	ctx, span := s.tracer.Start(ctx, "ServiceVerifyMechanic")
	defer span.End()

	status := domain.MechanicVerified
	if !approved {
		status = domain.MechanicRejected
	}
	if err := s.mechanics.SetVerification(ctx, mechanicID, status, adminID); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to set verification")
		s.logger.Error("Failed to set verification", "mechanicID", mechanicID, "error", err, "app", "roadassist")
		return err
	}
	span.SetAttributes(
		attribute.String("mechanicID", mechanicID),
		attribute.String("status", string(status)),
	)
	s.logger.Info("Updated mechanic verification", "mechanicID", mechanicID, "status", status, "app", "roadassist")
	return nil
}
