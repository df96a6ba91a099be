package postgres

import (
	"context"

	"car-fleet/internal/domain/apperr"
	"car-fleet/internal/domain/ride"
	"car-fleet/internal/ports"
)

// RideRepo persists ride attempts.
type RideRepo struct{}

// NewRideRepo constructs a new RideRepo.
func NewRideRepo() ports.RideRepository {
	return &RideRepo{}
}

// Create inserts a new ride row.
func (repo *RideRepo) Create(ctx context.Context, r *ride.Ride) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO rides (id, user_id, car_id, state, created_on, started_at, ended_at, failure_reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''))
	`, r.ID, r.UserID, r.CarID, r.State.String(), r.CreatedOn, r.StartedAt, r.EndedAt, r.FailureReason)
	return mapNotFound(err, "car", r.CarID)
}

// Get returns one ride by id.
func (repo *RideRepo) Get(ctx context.Context, id string) (*ride.Ride, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	var (
		out   ride.Ride
		state string
	)
	err = tx.QueryRow(ctx, `
		SELECT id, user_id, car_id, state, created_on, started_at, ended_at, COALESCE(failure_reason, '')
		FROM rides
		WHERE id = $1
	`, id).Scan(&out.ID, &out.UserID, &out.CarID, &state, &out.CreatedOn, &out.StartedAt, &out.EndedAt, &out.FailureReason)
	if err != nil {
		return nil, mapNotFound(err, "ride", id)
	}

	out.State, err = ride.ParseState(state)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Save writes the lifecycle columns of the ride.
func (repo *RideRepo) Save(ctx context.Context, r *ride.Ride) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	tag, err := tx.Exec(ctx, `
		UPDATE rides
		SET state = $2,
		    started_at = $3,
		    ended_at = $4,
		    failure_reason = NULLIF($5, '')
		WHERE id = $1
	`, r.ID, r.State.String(), r.StartedAt, r.EndedAt, r.FailureReason)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.DoesNotExist("ride %s does not exist", r.ID)
	}
	return nil
}
