// Package wizard implements the multi-step booking data collection session.
// A Session is scoped to one customer interaction and driven by a single
// caller at a time; it holds the in-progress draft and enforces each step's
// gate before advancing.
package wizard

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"fadedreams/roadassist/catalog"
	"fadedreams/roadassist/domain"
)

// Step identifies the wizard's current position.
type Step int

const (
	StepVehicle Step = iota + 1
	StepMechanic
	StepLocation
	StepDetails
	StepConfirm
)

// ErrAlreadySubmitted is returned by any mutation after a successful submit.
var ErrAlreadySubmitted = errors.New("wizard session already submitted")

var pincodePattern = regexp.MustCompile(`^\d{6}$`)

// Submitter receives the completed draft. *service.BookingService satisfies
// it.
type Submitter interface {
	Create(ctx context.Context, draft *domain.Booking) (*domain.Booking, error)
}

// locationInput stages the location step's fields until its gate clears, so a
// rejected value never lands on the draft.
type locationInput struct {
	address  string
	city     string
	pincode  string
	landmark string
}

type detailsInput struct {
	description   string
	urgency       string
	preferredTime string
}

// Session is one in-progress booking wizard. The zero value is not usable;
// construct with NewSession.
type Session struct {
	customerID   string
	customerName string

	step      Step
	draft     domain.Booking
	services  []domain.Service
	location  locationInput
	details   detailsInput
	submitted bool
}

// NewSession starts the wizard at the vehicle selection step.
func NewSession(customerID, customerName string) *Session {
	return &Session{
		customerID:   customerID,
		customerName: customerName,
		step:         StepVehicle,
	}
}

// Step returns the current step.
func (s *Session) Step() Step {
	return s.step
}

// Draft returns a copy of the in-progress draft for display.
func (s *Session) Draft() domain.Booking {
	return s.draft
}

// Services returns the catalog offerings for the selected vehicle category.
func (s *Session) Services() []domain.Service {
	out := make([]domain.Service, len(s.services))
	copy(out, s.services)
	return out
}

// SelectVehicle picks the vehicle category and reloads the catalog for it. A
// service previously selected for a different category is cleared.
func (s *Session) SelectVehicle(category domain.VehicleCategory) error {
	if s.submitted {
		return ErrAlreadySubmitted
	}
	services, err := catalog.ListServices(category)
	if err != nil {
		return err
	}
	if s.draft.VehicleType != category {
		s.draft.Service = domain.Service{}
	}
	s.draft.VehicleType = category
	s.services = services
	return nil
}

// SelectService picks one of the loaded offerings.
func (s *Session) SelectService(serviceID string) error {
	if s.submitted {
		return ErrAlreadySubmitted
	}
	if s.draft.VehicleType == "" {
		return (&domain.ValidationError{}).Add("vehicleType", "please select a vehicle type")
	}
	svc, err := catalog.Lookup(s.draft.VehicleType, serviceID)
	if err != nil {
		return err
	}
	s.draft.Service = svc
	return nil
}

// SelectMechanic records the customer's preferred mechanic.
func (s *Session) SelectMechanic(mechanicID string) error {
	if s.submitted {
		return ErrAlreadySubmitted
	}
	s.draft.RequestedMechanicID = mechanicID
	return nil
}

// SetLocation stages the location fields. They reach the draft only when the
// location step's gate clears.
func (s *Session) SetLocation(address, city, pincode, landmark string) {
	s.location = locationInput{
		address:  strings.TrimSpace(address),
		city:     strings.TrimSpace(city),
		pincode:  strings.TrimSpace(pincode),
		landmark: strings.TrimSpace(landmark),
	}
}

// SetDetails stages the problem description fields.
func (s *Session) SetDetails(description, urgency, preferredTime string) {
	s.details = detailsInput{
		description:   strings.TrimSpace(description),
		urgency:       urgency,
		preferredTime: preferredTime,
	}
}

// AttachPhoto records an uploaded photo reference on the draft.
func (s *Session) AttachPhoto(url string) {
	s.draft.PhotoURL = url
}

// Next re-validates the current step and advances only on success. On failure
// the session stays on the same step and the returned error carries the
// field-level annotations.
func (s *Session) Next() error {
	if s.submitted {
		return ErrAlreadySubmitted
	}
	switch s.step {
	case StepVehicle:
		verr := &domain.ValidationError{}
		if s.draft.VehicleType == "" {
			verr.Add("vehicleType", "please select a vehicle type")
		}
		if s.draft.Service.ID == "" {
			verr.Add("service", "please select a service type")
		}
		if err := verr.Err(); err != nil {
			return err
		}
	case StepMechanic:
		if s.draft.RequestedMechanicID == "" {
			return (&domain.ValidationError{}).Add("mechanic", "please select a mechanic")
		}
	case StepLocation:
		if err := s.commitLocation(); err != nil {
			return err
		}
	case StepDetails:
		if err := s.commitDetails(); err != nil {
			return err
		}
	case StepConfirm:
		return errors.New("confirmation is the last step, submit the booking")
	}
	s.step++
	return nil
}

// Previous moves back one step without validation. Entered data is retained
// so the customer can edit back and forth.
func (s *Session) Previous() {
	if s.step > StepVehicle {
		s.step--
	}
}

func (s *Session) commitLocation() error {
	verr := &domain.ValidationError{}
	if len(s.location.address) < 10 {
		verr.Add("address", "please enter a complete address")
	}
	if len(s.location.city) < 2 {
		verr.Add("city", "please enter a valid city")
	}
	if !pincodePattern.MatchString(s.location.pincode) {
		verr.Add("pincode", "please enter a valid 6-digit pincode")
	}
	if err := verr.Err(); err != nil {
		return err
	}
	s.draft.Address = s.location.address
	s.draft.City = s.location.city
	s.draft.Pincode = s.location.pincode
	s.draft.Landmark = s.location.landmark
	return nil
}

func (s *Session) commitDetails() error {
	verr := &domain.ValidationError{}
	if len(s.details.description) < 10 {
		verr.Add("description", "please provide a detailed description of the issue")
	}
	switch domain.Urgency(s.details.urgency) {
	case domain.UrgencyLow, domain.UrgencyMedium, domain.UrgencyHigh:
	default:
		verr.Add("urgency", "please select urgency level")
	}
	if err := verr.Err(); err != nil {
		return err
	}
	s.draft.Description = s.details.description
	s.draft.Urgency = domain.Urgency(s.details.urgency)
	s.draft.PreferredTime = s.details.preferredTime
	return nil
}

// Submit hands the completed draft to the booking lifecycle from the
// confirmation step. On success the draft is cleared and the session cannot
// be reused; on failure the draft survives unmutated so the customer can
// retry.
func (s *Session) Submit(ctx context.Context, submitter Submitter) (*domain.Booking, error) {
	if s.submitted {
		return nil, ErrAlreadySubmitted
	}
	if s.step != StepConfirm {
		return nil, errors.New("wizard has not reached the confirmation step")
	}

	draft := s.draft
	draft.CustomerID = s.customerID
	draft.CustomerName = s.customerName

	booking, err := submitter.Create(ctx, &draft)
	if err != nil {
		return nil, err
	}
	s.draft = domain.Booking{}
	s.submitted = true
	return booking, nil
}
