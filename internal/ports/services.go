package ports

import (
	"context"
	"time"

	"car-fleet/internal/domain/car"
	"car-fleet/internal/domain/geo"
	"car-fleet/internal/domain/reservation"
)

// ----- DTOs for Car Service -----

// RegisterCarInput is the validated input for registering one car.
type RegisterCarInput struct {
	NumberPlate      string    `json:"number_plate"`
	Location         geo.Point `json:"location"`
	RemainingRangeKm float64   `json:"remaining_range_km"`
	Active           bool      `json:"active"`
	Online           bool      `json:"online"`
}

// RadiusQuery selects cars within RadiusKm of Center.
type RadiusQuery struct {
	Center   geo.Point
	RadiusKm float64
}

// StateUpdate is one telemetry report, from the broker or the admin API.
type StateUpdate struct {
	CarID            string
	RemainingRangeKm float64
	Location         geo.Point
	Online           bool
	ObservedAt       time.Time
}

// CarView is the API representation of a car.
type CarView struct {
	ID                   string     `json:"id"`
	NumberPlate          string     `json:"number_plate"`
	Active               bool       `json:"active"`
	Online               bool       `json:"online"`
	NeedsMaintenance     bool       `json:"needs_maintenance"`
	RemainingRangeKm     float64    `json:"remaining_range_km"`
	Location             geo.Point  `json:"location"`
	LastStateUpdate      time.Time  `json:"last_state_update"`
	CurrentReservationID string     `json:"current_reservation_id,omitempty"`
	ReservedUntil        *time.Time `json:"reserved_until,omitempty"`
	CurrentRideID        string     `json:"current_ride_id,omitempty"`
	CurrentRideState     string     `json:"current_ride_state,omitempty"`
	DistanceKm           *float64   `json:"distance_km,omitempty"`
}

// ReservationView is the API representation of a reservation.
type ReservationView struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	CarID      string    `json:"car_id"`
	CreatedOn  time.Time `json:"created_on"`
	ValidUntil time.Time `json:"valid_until"`
}

// ReserveResult is returned by CarService.Reserve.
type ReserveResult struct {
	Car         CarView         `json:"car"`
	Reservation ReservationView `json:"reservation"`
}

// RideResult is returned by ride start and completion.
type RideResult struct {
	RideID    string     `json:"ride_id"`
	CarID     string     `json:"car_id"`
	UserID    string     `json:"user_id"`
	State     string     `json:"state"`
	StartedAt *time.Time `json:"started_at,omitempty"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	Car       CarView    `json:"car"`
}

// LockResult is returned by CarService.LockCar.
type LockResult struct {
	CarID  string `json:"car_id"`
	Locked bool   `json:"locked"`
}

// NewCarView maps a domain car to its API view.
func NewCarView(c *car.Car) CarView {
	v := CarView{
		ID:               c.ID,
		NumberPlate:      c.NumberPlate,
		Active:           c.Active,
		Online:           c.Online,
		NeedsMaintenance: c.NeedsMaintenance,
		RemainingRangeKm: c.RemainingRangeKm,
		Location:         c.Location,
		LastStateUpdate:  c.LastStateUpdate,
	}
	if ref := c.CurrentReservation; ref != nil {
		until := ref.ValidUntil
		v.CurrentReservationID = ref.ID
		v.ReservedUntil = &until
	}
	if ref := c.CurrentRide; ref != nil {
		v.CurrentRideID = ref.ID
		v.CurrentRideState = ref.State.String()
	}
	return v
}

// NewReservationView maps a domain reservation to its API view.
func NewReservationView(r *reservation.Reservation) ReservationView {
	return ReservationView{
		ID:         r.ID,
		UserID:     r.UserID,
		CarID:      r.CarID,
		CreatedOn:  r.CreatedOn,
		ValidUntil: r.ValidUntil,
	}
}

// ----- Car Service Interface -----

// CarService exposes the boundary for the car coordination service.
type CarService interface {
	// registry
	RegisterCar(ctx context.Context, in RegisterCarInput) (CarView, error)
	RegisterCars(ctx context.Context, in []RegisterCarInput) ([]CarView, error)
	GetCar(ctx context.Context, carID string) (CarView, error)
	FindCars(ctx context.Context, q RadiusQuery) ([]CarView, error)
	FindAvailableCars(ctx context.Context, q RadiusQuery) ([]CarView, error)
	FindMaintenanceCars(ctx context.Context, q RadiusQuery) ([]CarView, error)
	SetActive(ctx context.Context, carID string, active bool) (CarView, error)
	SetMaintenance(ctx context.Context, carID string, required bool) (CarView, error)

	// reservations
	IsOnCooldown(ctx context.Context, userID string) (bool, error)
	Reserve(ctx context.Context, userID, carID string) (ReserveResult, error)

	// rides
	StartRide(ctx context.Context, userID, carID string) (RideResult, error)
	LockCar(ctx context.Context, userID, carID string, lock bool) (LockResult, error)
	CompleteRide(ctx context.Context, userID, carID string) (RideResult, error)

	// telemetry
	ApplyTelemetry(ctx context.Context, in StateUpdate) (CarView, error)

	RunBackgroundConsumers(ctx context.Context, prefetch int) error
}
