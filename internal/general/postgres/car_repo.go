package postgres

import (
	"context"
	"time"

	"car-fleet/internal/domain/apperr"
	"car-fleet/internal/domain/car"
	"car-fleet/internal/domain/geo"
	"car-fleet/internal/domain/ride"
	"car-fleet/internal/ports"

	"github.com/jackc/pgx/v5"
)

// CarRepo persists cars using pgx and plain SQL.
// Reads resolve the current reservation/ride ids into back-references with outer joins.
type CarRepo struct{}

// NewCarRepo constructs a new CarRepo.
func NewCarRepo() ports.CarRepository {
	return &CarRepo{}
}

const carSelect = `
	SELECT
		c.id, c.number_plate, c.created_at, c.updated_at,
		c.active, c.needs_maintenance,
		c.online, c.remaining_range_km, c.latitude, c.longitude, c.last_state_update,
		r.id, r.user_id, r.created_on, r.valid_until,
		d.id, d.user_id, d.state
	FROM cars c
	LEFT JOIN reservations r ON r.id = c.current_reservation_id
	LEFT JOIN rides d ON d.id = c.current_ride_id
`

// Create inserts a new car row. A duplicate plate maps to apperr.AlreadyExists.
func (repo *CarRepo) Create(ctx context.Context, c *car.Car) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO cars (
			id, number_plate, active, online, needs_maintenance,
			remaining_range_km, latitude, longitude, last_state_update,
			created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
	`,
		c.ID, c.NumberPlate, c.Active, c.Online, c.NeedsMaintenance,
		c.RemainingRangeKm, c.Location.Latitude, c.Location.Longitude, c.LastStateUpdate,
		c.CreatedAt,
	)
	return mapConflict(err, "car with number plate %s already exists", c.NumberPlate)
}

// Get returns one car by id.
func (repo *CarRepo) Get(ctx context.Context, id string) (*car.Car, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	out, err := scanCar(tx.QueryRow(ctx, carSelect+` WHERE c.id = $1`, id))
	if err != nil {
		return nil, mapNotFound(err, "car", id)
	}
	return out, nil
}

// GetForUpdate returns one car by id and locks its row until the transaction ends.
func (repo *CarRepo) GetForUpdate(ctx context.Context, id string) (*car.Car, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	// lock only the car row; the joined rows are read as of the lock
	out, err := scanCar(tx.QueryRow(ctx, carSelect+` WHERE c.id = $1 FOR UPDATE OF c`, id))
	if err != nil {
		return nil, mapNotFound(err, "car", id)
	}
	return out, nil
}

// Save writes every mutable column of the car.
func (repo *CarRepo) Save(ctx context.Context, c *car.Car) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	var reservationID, rideID *string
	if c.CurrentReservation != nil {
		reservationID = &c.CurrentReservation.ID
	}
	if c.CurrentRide != nil {
		rideID = &c.CurrentRide.ID
	}

	tag, err := tx.Exec(ctx, `
		UPDATE cars
		SET active = $2,
		    online = $3,
		    needs_maintenance = $4,
		    remaining_range_km = $5,
		    latitude = $6,
		    longitude = $7,
		    last_state_update = $8,
		    current_reservation_id = $9,
		    current_ride_id = $10,
		    updated_at = now()
		WHERE id = $1
	`,
		c.ID, c.Active, c.Online, c.NeedsMaintenance,
		c.RemainingRangeKm, c.Location.Latitude, c.Location.Longitude, c.LastStateUpdate,
		reservationID, rideID,
	)
	if err != nil {
		return mapNotFound(err, "car", c.ID)
	}
	if tag.RowsAffected() == 0 {
		return apperr.DoesNotExist("car %s does not exist", c.ID)
	}
	return nil
}

// ExistsByPlate reports whether a car with the given plate is registered.
func (repo *CarRepo) ExistsByPlate(ctx context.Context, plate string) (bool, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return false, err
	}

	var exists bool
	err = tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM cars WHERE number_plate = $1)`, plate).Scan(&exists)
	return exists, err
}

// FindWithinRadius returns cars within radiusKm of center, nearest first.
func (repo *CarRepo) FindWithinRadius(ctx context.Context, center geo.Point, radiusKm float64) ([]*car.Car, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, carSelect+`
		WHERE ST_DWithin(
				ST_MakePoint(c.longitude, c.latitude)::geography,
				ST_MakePoint($2, $1)::geography,
				$3 * 1000.0
			  )
		ORDER BY
		  ST_Distance(
			ST_MakePoint(c.longitude, c.latitude)::geography,
			ST_MakePoint($2, $1)::geography
		  ),
		  c.number_plate
	`, center.Latitude, center.Longitude, radiusKm)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cars []*car.Car
	for rows.Next() {
		out, err := scanCar(rows)
		if err != nil {
			return nil, err
		}
		cars = append(cars, out)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return cars, nil
}

// scanCar maps one carSelect row, resolving the nullable joined columns.
func scanCar(row pgx.Row) (*car.Car, error) {
	var (
		out car.Car

		resID, resUser       *string
		resCreated, resValid *time.Time
		rideID, rideUser, st *string
	)

	if err := row.Scan(
		&out.ID, &out.NumberPlate, &out.CreatedAt, &out.UpdatedAt,
		&out.Active, &out.NeedsMaintenance,
		&out.Online, &out.RemainingRangeKm, &out.Location.Latitude, &out.Location.Longitude, &out.LastStateUpdate,
		&resID, &resUser, &resCreated, &resValid,
		&rideID, &rideUser, &st,
	); err != nil {
		return nil, err
	}

	if resID != nil && resUser != nil && resCreated != nil && resValid != nil {
		out.CurrentReservation = &car.ReservationRef{
			ID:         *resID,
			UserID:     *resUser,
			CreatedOn:  resCreated.UTC(),
			ValidUntil: resValid.UTC(),
		}
	}
	if rideID != nil && rideUser != nil && st != nil {
		out.CurrentRide = &car.RideRef{ID: *rideID, UserID: *rideUser, State: ride.State(*st)}
	}

	out.LastStateUpdate = out.LastStateUpdate.UTC()
	return &out, nil
}
