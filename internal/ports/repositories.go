package ports

import (
	"context"

	"car-fleet/internal/domain/car"
	"car-fleet/internal/domain/geo"
	"car-fleet/internal/domain/reservation"
	"car-fleet/internal/domain/ride"
)

// UnitOfWork interface is used to manage transactions across multiple repository operations.
type UnitOfWork interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// CarRepository defines the methods for managing car data.
// Get/GetForUpdate return apperr.ErrDoesNotExist for unknown ids.
type CarRepository interface {
	Create(ctx context.Context, c *car.Car) error
	Get(ctx context.Context, id string) (*car.Car, error)
	GetForUpdate(ctx context.Context, id string) (*car.Car, error)
	Save(ctx context.Context, c *car.Car) error
	ExistsByPlate(ctx context.Context, plate string) (bool, error)
	FindWithinRadius(ctx context.Context, center geo.Point, radiusKm float64) ([]*car.Car, error)
}

// ReservationRepository defines the methods for managing reservation data.
type ReservationRepository interface {
	Create(ctx context.Context, r *reservation.Reservation) error
	// MostRecentForUser returns (nil, nil) when the user never reserved.
	MostRecentForUser(ctx context.Context, userID string) (*reservation.Reservation, error)
	// LockUser serializes reservation attempts of one user until the transaction ends.
	LockUser(ctx context.Context, userID string) error
}

// RideRepository defines the methods for managing ride data.
type RideRepository interface {
	Create(ctx context.Context, r *ride.Ride) error
	Get(ctx context.Context, id string) (*ride.Ride, error)
	Save(ctx context.Context, r *ride.Ride) error
}
