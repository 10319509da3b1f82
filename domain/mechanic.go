package domain

import "time"

// MechanicStatus is the verification state of a mechanic.
type MechanicStatus string

const (
	MechanicPending  MechanicStatus = "pending"
	MechanicVerified MechanicStatus = "verified"
	MechanicRejected MechanicStatus = "rejected"
)

// Mechanic represents a service provider. Only verified and active mechanics
// are eligible for matching or acceptance of new bookings.
type Mechanic struct {
	ID            string            `json:"id" bson:"_id,omitempty"`
	FullName      string            `json:"fullName" bson:"fullName"`
	Email         string            `json:"email" bson:"email"`
	Phone         string            `json:"phone" bson:"phone"`
	Address       string            `json:"address" bson:"address"`
	ServiceArea   string            `json:"serviceArea" bson:"serviceArea"`
	Experience    string            `json:"experience,omitempty" bson:"experience,omitempty"`
	VehicleTypes  []VehicleCategory `json:"vehicleTypes" bson:"vehicleTypes"`
	Skills        string            `json:"skills,omitempty" bson:"skills,omitempty"`
	LicenseNumber string            `json:"licenseNumber,omitempty" bson:"licenseNumber,omitempty"`
	Status        MechanicStatus    `json:"status" bson:"status"`
	IsActive      bool              `json:"isActive" bson:"isActive"`
	Rating        float64           `json:"rating" bson:"rating"`
	TotalJobs     int64             `json:"totalJobs" bson:"totalJobs"`
	TotalEarnings int64             `json:"totalEarnings" bson:"totalEarnings"`
	CreatedAt     time.Time         `json:"createdAt" bson:"createdAt"`
	VerifiedAt    *time.Time        `json:"verifiedAt,omitempty" bson:"verifiedAt,omitempty"`
	VerifiedBy    string            `json:"verifiedBy,omitempty" bson:"verifiedBy,omitempty"`
}

// Eligible reports whether the mechanic may be matched with or accept new
// bookings.
func (m *Mechanic) Eligible() bool {
	return m.Status == MechanicVerified && m.IsActive
}

// Services reports whether the mechanic covers the vehicle category.
func (m *Mechanic) Services(category VehicleCategory) bool {
	for _, v := range m.VehicleTypes {
		if v == category {
			return true
		}
	}
	return false
}
