package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fadedreams/roadassist/domain"
)

func TestRegisterMechanicStartsUnverified(t *testing.T) {
	repo := newFakeMechanicRepo()
	svc := NewMechanicService(repo, testLogger())

	created, err := svc.Register(context.Background(), &domain.Mechanic{
		FullName:     "Ravi Kumar",
		ServiceArea:  "Mumbai",
		VehicleTypes: []domain.VehicleCategory{domain.VehicleBike},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.MechanicPending, created.Status)
	assert.True(t, created.IsActive)
	assert.False(t, created.Eligible())
	assert.Zero(t, created.TotalJobs)
}

func TestRegisterMechanicValidation(t *testing.T) {
	svc := NewMechanicService(newFakeMechanicRepo(), testLogger())

	_, err := svc.Register(context.Background(), &domain.Mechanic{
		FullName:     "R",
		VehicleTypes: []domain.VehicleCategory{"truck"},
	})
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	fields := make([]string, 0, len(verr.Fields))
	for _, fe := range verr.Fields {
		fields = append(fields, fe.Field)
	}
	assert.ElementsMatch(t, []string{"fullName", "serviceArea", "vehicleTypes"}, fields)
}

func TestVerifyMakesMechanicEligible(t *testing.T) {
	repo := newFakeMechanicRepo()
	svc := NewMechanicService(repo, testLogger())

	created, err := svc.Register(context.Background(), &domain.Mechanic{
		FullName:     "Ravi Kumar",
		ServiceArea:  "Mumbai",
		VehicleTypes: []domain.VehicleCategory{domain.VehicleBike},
	})
	require.NoError(t, err)

	require.NoError(t, svc.Verify(context.Background(), created.ID, true, "admin-1"))
	stored, err := svc.Get(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.MechanicVerified, stored.Status)
	assert.True(t, stored.Eligible())
}

func TestVerifyRejection(t *testing.T) {
	repo := newFakeMechanicRepo()
	svc := NewMechanicService(repo, testLogger())

	created, err := svc.Register(context.Background(), &domain.Mechanic{
		FullName:     "Ravi Kumar",
		ServiceArea:  "Mumbai",
		VehicleTypes: []domain.VehicleCategory{domain.VehicleCar},
	})
	require.NoError(t, err)

	require.NoError(t, svc.Verify(context.Background(), created.ID, false, "admin-1"))
	stored, err := svc.Get(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.MechanicRejected, stored.Status)
	assert.False(t, stored.Eligible())

	assert.ErrorIs(t, svc.Verify(context.Background(), "missing", true, "admin-1"), domain.ErrNotFound)
}
