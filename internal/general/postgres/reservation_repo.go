package postgres

import (
	"context"
	"errors"

	"car-fleet/internal/domain/reservation"
	"car-fleet/internal/ports"

	"github.com/jackc/pgx/v5"
)

// ReservationRepo persists reservations. Rows are append-only.
type ReservationRepo struct{}

// NewReservationRepo constructs a new ReservationRepo.
func NewReservationRepo() ports.ReservationRepository {
	return &ReservationRepo{}
}

// Create inserts a new reservation row.
func (repo *ReservationRepo) Create(ctx context.Context, r *reservation.Reservation) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO reservations (id, user_id, car_id, created_on, valid_until)
		VALUES ($1, $2, $3, $4, $5)
	`, r.ID, r.UserID, r.CarID, r.CreatedOn, r.ValidUntil)
	return mapNotFound(err, "car", r.CarID)
}

// MostRecentForUser returns the user's latest reservation, or nil if there is none.
func (repo *ReservationRepo) MostRecentForUser(ctx context.Context, userID string) (*reservation.Reservation, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	var out reservation.Reservation
	err = tx.QueryRow(ctx, `
		SELECT id, user_id, car_id, created_on, valid_until
		FROM reservations
		WHERE user_id = $1
		ORDER BY created_on DESC
		LIMIT 1
	`, userID).Scan(&out.ID, &out.UserID, &out.CarID, &out.CreatedOn, &out.ValidUntil)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	out.CreatedOn = out.CreatedOn.UTC()
	out.ValidUntil = out.ValidUntil.UTC()
	return &out, nil
}

// LockUser takes a transaction-scoped advisory lock on the user id.
func (repo *ReservationRepo) LockUser(ctx context.Context, userID string) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext('reservation:' || $1))`, userID)
	return err
}
