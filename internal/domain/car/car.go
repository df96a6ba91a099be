package car

import (
	"errors"
	"math"
	"strings"
	"time"

	"car-fleet/internal/domain/geo"
	"car-fleet/internal/domain/ride"

	"github.com/google/uuid"
)

// Car is the domain entity corresponding to the `cars` table.
type Car struct {
	// Identity & audit
	ID          string
	NumberPlate string
	CreatedAt   time.Time
	UpdatedAt   time.Time

	// Administrative state
	Active           bool
	NeedsMaintenance bool

	// Operational state (reported by the vehicle)
	Online           bool
	RemainingRangeKm float64
	Location         geo.Point
	LastStateUpdate  time.Time

	// Non-owning back-references, resolved by id
	CurrentReservation *ReservationRef
	CurrentRide        *RideRef
}

// ReservationRef is the slice of the current reservation needed for admission checks.
type ReservationRef struct {
	ID         string
	UserID     string
	CreatedOn  time.Time
	ValidUntil time.Time
}

// RideRef is the slice of the current ride needed for admission checks.
type RideRef struct {
	ID     string
	UserID string
	State  ride.State
}

var (
	ErrPlateRequired    = errors.New("number plate is required")
	ErrNegativeRange    = errors.New("remaining range cannot be negative")
	ErrObservedAtNeeded = errors.New("observed-at timestamp is required")
)

// NewCar creates a new Car entity ready for registration.
func NewCar(plate string, location geo.Point, remainingRangeKm float64, active, online bool, now time.Time) (*Car, error) {
	if plate = strings.TrimSpace(plate); plate == "" {
		return nil, ErrPlateRequired
	}
	if err := location.Validate(); err != nil {
		return nil, err
	}
	if err := validateRange(remainingRangeKm); err != nil {
		return nil, err
	}

	now = now.UTC()
	return &Car{
		ID:               uuid.NewString(),
		NumberPlate:      plate,
		CreatedAt:        now,
		UpdatedAt:        now,
		Active:           active,
		Online:           online,
		RemainingRangeKm: remainingRangeKm,
		Location:         location,
		LastStateUpdate:  now,
	}, nil
}

// ---- Admission checks ----

// HasOpenReservation reports whether an unexpired reservation holds the car at now.
func (car *Car) HasOpenReservation(now time.Time) bool {
	return car.CurrentReservation != nil && !now.After(car.CurrentReservation.ValidUntil)
}

// HasActiveRide reports whether a ride is currently in progress on the car.
func (car *Car) HasActiveRide() bool {
	return car.CurrentRide != nil && car.CurrentRide.State == ride.StateInProgress
}

// operational is the part of admission shared by reservation and ride start.
func (car *Car) operational() bool {
	return car.Active && car.Online && !car.NeedsMaintenance && !car.HasActiveRide()
}

// CanBeReserved reports whether any user may place a reservation on the car at now.
func (car *Car) CanBeReserved(now time.Time) bool {
	return car.operational() && !car.HasOpenReservation(now)
}

// CanBeRidden reports whether userID may start a ride at now: the car must be
// free, or held by userID's own unexpired reservation.
func (car *Car) CanBeRidden(userID string, now time.Time) bool {
	if !car.operational() {
		return false
	}
	if !car.HasOpenReservation(now) {
		return true
	}
	return car.CurrentReservation.UserID == userID
}

// RiddenBy reports whether userID owns the ride currently in progress.
func (car *Car) RiddenBy(userID string) bool {
	return car.HasActiveRide() && car.CurrentRide.UserID == userID
}

// ---- State changes ----

// Reserve points the car at a new reservation.
func (car *Car) Reserve(ref ReservationRef) {
	car.CurrentReservation = &ref
	car.touch()
}

// StartRide points the car at an in-progress ride and consumes the reservation.
func (car *Car) StartRide(ref RideRef, now time.Time) {
	car.CurrentRide = &ref
	car.CurrentReservation = nil
	car.LastStateUpdate = now.UTC()
	car.touch()
}

// EndRide releases the car from its current ride.
func (car *Car) EndRide(now time.Time) {
	car.CurrentRide = nil
	car.LastStateUpdate = now.UTC()
	car.touch()
}

// MarkOffline records that the car failed to answer a command.
func (car *Car) MarkOffline(now time.Time) {
	car.Online = false
	car.LastStateUpdate = now.UTC()
	car.touch()
}

// SetActive toggles administrative availability; it is not a physical change.
func (car *Car) SetActive(active bool) {
	car.Active = active
	car.touch()
}

// SetMaintenance toggles the maintenance flag; it is not a physical change.
func (car *Car) SetMaintenance(required bool) {
	car.NeedsMaintenance = required
	car.touch()
}

// ApplyState overwrites the telemetry fields. Last write wins: observedAt is
// not compared with the stored LastStateUpdate.
func (car *Car) ApplyState(remainingRangeKm float64, location geo.Point, online bool, observedAt time.Time) error {
	if err := validateRange(remainingRangeKm); err != nil {
		return err
	}
	if err := location.Validate(); err != nil {
		return err
	}
	if observedAt.IsZero() {
		return ErrObservedAtNeeded
	}

	car.RemainingRangeKm = remainingRangeKm
	car.Location = location
	car.Online = online
	car.LastStateUpdate = observedAt.UTC()
	car.touch()
	return nil
}

// ---- internal helpers ----

func (car *Car) touch() {
	car.UpdatedAt = time.Now().UTC()
}

func validateRange(km float64) error {
	if math.IsNaN(km) || math.IsInf(km, 0) || km < 0 {
		return ErrNegativeRange
	}
	return nil
}
