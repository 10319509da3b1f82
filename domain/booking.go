package domain

import "time"

// VehicleCategory is the kind of vehicle a booking or mechanic covers.
type VehicleCategory string

const (
	VehicleBike VehicleCategory = "bike"
	VehicleCar  VehicleCategory = "car"
)

// Urgency is how soon the customer needs the repair.
type Urgency string

const (
	UrgencyLow    Urgency = "low"
	UrgencyMedium Urgency = "medium"
	UrgencyHigh   Urgency = "high"
)

// BookingStatus is the lifecycle state of a booking.
type BookingStatus string

const (
	StatusPending          BookingStatus = "pending"
	StatusAccepted         BookingStatus = "accepted"
	StatusRejected         BookingStatus = "rejected"
	StatusInProgress       BookingStatus = "in-progress"
	StatusCompleted        BookingStatus = "completed"
	StatusCancelled        BookingStatus = "cancelled"
	StatusPaymentCompleted BookingStatus = "payment_completed"
)

// Event is a lifecycle event applied to a booking.
type Event string

const (
	EventAccept   Event = "accept"
	EventReject   Event = "reject"
	EventCancel   Event = "cancel"
	EventStart    Event = "start"
	EventComplete Event = "complete"
	EventSettle   Event = "settle"
)

// Role identifies which kind of actor drives an event.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleMechanic Role = "mechanic"
	// RoleSettlement is the payment flow acting on a completed booking.
	RoleSettlement Role = "settlement"
)

// Actor is the identity attempting a transition. The ID is validated against
// the customer/mechanic record before any transition is attempted.
type Actor struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

// Service is one catalog offering, snapshotted into the booking at creation.
type Service struct {
	ID          string `json:"id" bson:"id"`
	Name        string `json:"name" bson:"name"`
	Description string `json:"description" bson:"description"`
	// Price is in whole rupees. The core never converts currency.
	Price int64  `json:"price" bson:"price"`
	Icon  string `json:"icon" bson:"icon"`
}

// Booking is a single service request progressing through the lifecycle.
// Terminal states are retained for history, never deleted.
type Booking struct {
	ID            string          `json:"id" bson:"_id,omitempty"`
	CustomerID    string          `json:"customerId" bson:"customerId"`
	CustomerName  string          `json:"customerName" bson:"customerName"`
	VehicleType   VehicleCategory `json:"vehicleType" bson:"vehicleType"`
	Service       Service         `json:"service" bson:"service"`
	Address       string          `json:"address" bson:"address"`
	City          string          `json:"city" bson:"city"`
	Pincode       string          `json:"pincode" bson:"pincode"`
	Landmark      string          `json:"landmark,omitempty" bson:"landmark,omitempty"`
	Description   string          `json:"description" bson:"description"`
	Urgency       Urgency         `json:"urgency" bson:"urgency"`
	PreferredTime string          `json:"preferredTime,omitempty" bson:"preferredTime,omitempty"`
	Status        BookingStatus   `json:"status" bson:"status"`

	// EstimatedCost is copied from the service price at creation and never
	// recalculated, so later catalog changes do not move the agreed amount.
	EstimatedCost int64 `json:"estimatedCost" bson:"estimatedCost"`

	// RequestedMechanicID is set when the customer pre-selected a mechanic in
	// the wizard. Assignment only happens at accept.
	RequestedMechanicID string `json:"requestedMechanicId,omitempty" bson:"requestedMechanicId,omitempty"`

	MechanicID   string `json:"mechanicId,omitempty" bson:"mechanicId,omitempty"`
	MechanicName string `json:"mechanicName,omitempty" bson:"mechanicName,omitempty"`

	PhotoURL string `json:"photoUrl,omitempty" bson:"photoUrl,omitempty"`

	CreatedAt          time.Time  `json:"createdAt" bson:"createdAt"`
	AcceptedAt         *time.Time `json:"acceptedAt,omitempty" bson:"acceptedAt,omitempty"`
	RejectedAt         *time.Time `json:"rejectedAt,omitempty" bson:"rejectedAt,omitempty"`
	CancelledAt        *time.Time `json:"cancelledAt,omitempty" bson:"cancelledAt,omitempty"`
	StartedAt          *time.Time `json:"startedAt,omitempty" bson:"startedAt,omitempty"`
	CompletedAt        *time.Time `json:"completedAt,omitempty" bson:"completedAt,omitempty"`
	PaymentCompletedAt *time.Time `json:"paymentCompletedAt,omitempty" bson:"paymentCompletedAt,omitempty"`
}

// transitions is the edge table of the booking state machine. Any (status,
// event) pair absent here is an illegal transition.
var transitions = map[BookingStatus]map[Event]BookingStatus{
	StatusPending: {
		EventAccept: StatusAccepted,
		EventReject: StatusRejected,
		EventCancel: StatusCancelled,
	},
	StatusAccepted: {
		EventStart: StatusInProgress,
	},
	StatusInProgress: {
		EventComplete: StatusCompleted,
	},
	StatusCompleted: {
		EventSettle: StatusPaymentCompleted,
	},
}

// eventRoles maps each event to the single role allowed to trigger it.
var eventRoles = map[Event]Role{
	EventAccept:   RoleMechanic,
	EventReject:   RoleMechanic,
	EventCancel:   RoleCustomer,
	EventStart:    RoleMechanic,
	EventComplete: RoleMechanic,
	EventSettle:   RoleSettlement,
}

// stampFields maps each event to the timestamp field stamped on success.
var stampFields = map[Event]string{
	EventAccept:   "acceptedAt",
	EventReject:   "rejectedAt",
	EventCancel:   "cancelledAt",
	EventStart:    "startedAt",
	EventComplete: "completedAt",
	EventSettle:   "paymentCompletedAt",
}

// NextStatus resolves the target status for an event from the given status.
// The second return is false when no edge exists.
func NextStatus(from BookingStatus, event Event) (BookingStatus, bool) {
	edges, ok := transitions[from]
	if !ok {
		return "", false
	}
	to, ok := edges[event]
	return to, ok
}

// RoleFor returns the role allowed to trigger the event.
func RoleFor(event Event) (Role, bool) {
	r, ok := eventRoles[event]
	return r, ok
}

// StampField returns the booking field stamped when the event applies.
func StampField(event Event) string {
	return stampFields[event]
}

// IsTerminal reports whether no event can move the booking further.
func (s BookingStatus) IsTerminal() bool {
	return len(transitions[s]) == 0
}
