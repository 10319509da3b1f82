package service

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"fadedreams/roadassist/domain"
)

// MatcherService filters the mechanic population down to those who can take a
// booking in a given city.
type MatcherService struct {
	mechanics domain.MechanicRepository
	tracer    trace.Tracer
	logger    *slog.Logger
}

// NewMatcherService creates a new instance of the matcher service
func NewMatcherService(mechanics domain.MechanicRepository, logger *slog.Logger) *MatcherService {
	return &MatcherService{
		mechanics: mechanics,
		tracer:    otel.Tracer("roadassist"),
		logger:    logger,
	}
}

// FindAvailable returns the verified, active mechanics servicing the vehicle
// category whose service area contains the city, case-insensitive. The result
// is ordered by rating descending, then id, so identical inputs over an
// identical directory yield an identical sequence. No match is an empty
// result, not an error.
func (s *MatcherService) FindAvailable(ctx context.Context, category domain.VehicleCategory, city string) ([]*domain.Mechanic, error) {
	ctx, span := s.tracer.Start(ctx, "ServiceFindAvailableMechanics")
	defer span.End()
	span.SetAttributes(
		attribute.String("vehicleType", string(category)),
		attribute.String("city", city),
	)

	candidates, err := s.mechanics.ListEligibleMechanics(ctx, category)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to list mechanics")
		s.logger.Error("Failed to list mechanics", "error", err, "app", "roadassist")
		return nil, err
	}

	needle := normalize(city)
	matched := make([]*domain.Mechanic, 0, len(candidates))
	for _, m := range candidates {
		if !m.Eligible() || !m.Services(category) {
			continue
		}
		if needle != "" && !strings.Contains(normalize(m.ServiceArea), needle) {
			continue
		}
		matched = append(matched, m)
	}

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].Rating != matched[j].Rating {
			return matched[i].Rating > matched[j].Rating
		}
		return matched[i].ID < matched[j].ID
	})

	span.SetAttributes(attribute.Int("matchCount", len(matched)))
	s.logger.Info("Matched mechanics", "count", len(matched), "vehicleType", category, "city", city, "app", "roadassist")
	return matched, nil
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
