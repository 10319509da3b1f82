package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fadedreams/roadassist/domain"
)

func areaMechanic(id, area string, rating float64, categories ...domain.VehicleCategory) *domain.Mechanic {
	return &domain.Mechanic{
		ID:           id,
		FullName:     "Mechanic " + id,
		ServiceArea:  area,
		VehicleTypes: categories,
		Status:       domain.MechanicVerified,
		IsActive:     true,
		Rating:       rating,
	}
}

func TestFindAvailableFiltersAndOrders(t *testing.T) {
	repo := newFakeMechanicRepo(
		areaMechanic("m1", "Greater Mumbai Region", 4.2, domain.VehicleBike),
		areaMechanic("m2", "Mumbai and Thane", 4.8, domain.VehicleBike, domain.VehicleCar),
		areaMechanic("m3", "Pune", 4.9, domain.VehicleBike),
		areaMechanic("m4", "Mumbai", 4.8, domain.VehicleCar),
	)
	svc := NewMatcherService(repo, testLogger())

	matched, err := svc.FindAvailable(context.Background(), domain.VehicleBike, "Mumbai")
	require.NoError(t, err)
	require.Len(t, matched, 2)
	assert.Equal(t, "m2", matched[0].ID)
	assert.Equal(t, "m1", matched[1].ID)
}

func TestFindAvailableCityMatchIsCaseInsensitive(t *testing.T) {
	repo := newFakeMechanicRepo(
		areaMechanic("m1", "Greater Mumbai Region", 4.2, domain.VehicleBike),
	)
	svc := NewMatcherService(repo, testLogger())

	matched, err := svc.FindAvailable(context.Background(), domain.VehicleBike, "  mumbai ")
	require.NoError(t, err)
	require.Len(t, matched, 1)
	assert.Equal(t, "m1", matched[0].ID)
}

func TestFindAvailableExcludesIneligible(t *testing.T) {
	inactive := areaMechanic("m1", "Mumbai", 5.0, domain.VehicleBike)
	inactive.IsActive = false
	unverified := areaMechanic("m2", "Mumbai", 5.0, domain.VehicleBike)
	unverified.Status = domain.MechanicPending

	repo := newFakeMechanicRepo(inactive, unverified)
	svc := NewMatcherService(repo, testLogger())

	matched, err := svc.FindAvailable(context.Background(), domain.VehicleBike, "Mumbai")
	require.NoError(t, err)
	assert.Empty(t, matched)
}

func TestFindAvailableNoMatchIsEmptyNotError(t *testing.T) {
	svc := NewMatcherService(newFakeMechanicRepo(), testLogger())

	matched, err := svc.FindAvailable(context.Background(), domain.VehicleCar, "Nagpur")
	require.NoError(t, err)
	assert.NotNil(t, matched)
	assert.Empty(t, matched)
}

func TestFindAvailableTiesBreakByID(t *testing.T) {
	repo := newFakeMechanicRepo(
		areaMechanic("m9", "Mumbai", 4.5, domain.VehicleBike),
		areaMechanic("m1", "Mumbai", 4.5, domain.VehicleBike),
	)
	svc := NewMatcherService(repo, testLogger())

	for i := 0; i < 5; i++ {
		matched, err := svc.FindAvailable(context.Background(), domain.VehicleBike, "Mumbai")
		require.NoError(t, err)
		require.Len(t, matched, 2)
		assert.Equal(t, "m1", matched[0].ID)
		assert.Equal(t, "m9", matched[1].ID)
	}
}
