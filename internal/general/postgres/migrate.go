package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Migrate creates the schema if it does not exist. Statements are idempotent.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	migrations := []string{
		migrationPostGIS,
		migrationCreateCars,
		migrationCreateReservations,
		migrationCreateRides,
		migrationCarPointerIndexes,
	}

	for _, m := range migrations {
		if _, err := pool.Exec(ctx, m); err != nil {
			return fmt.Errorf("execute migration: %w", err)
		}
	}

	return nil
}

const migrationPostGIS = `CREATE EXTENSION IF NOT EXISTS postgis;`

const migrationCreateCars = `
CREATE TABLE IF NOT EXISTS cars (
    id                     UUID PRIMARY KEY,
    number_plate           TEXT NOT NULL UNIQUE,
    active                 BOOLEAN NOT NULL DEFAULT false,
    online                 BOOLEAN NOT NULL DEFAULT false,
    needs_maintenance      BOOLEAN NOT NULL DEFAULT false,
    remaining_range_km     DOUBLE PRECISION NOT NULL CHECK (remaining_range_km >= 0),
    latitude               DOUBLE PRECISION NOT NULL CHECK (latitude BETWEEN -90 AND 90),
    longitude              DOUBLE PRECISION NOT NULL CHECK (longitude BETWEEN -180 AND 180),
    last_state_update      TIMESTAMPTZ NOT NULL,
    current_reservation_id UUID,
    current_ride_id        UUID,
    created_at             TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at             TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_cars_geog
    ON cars USING GIST ((ST_MakePoint(longitude, latitude)::geography));
`

const migrationCreateReservations = `
CREATE TABLE IF NOT EXISTS reservations (
    id          UUID PRIMARY KEY,
    user_id     TEXT NOT NULL,
    car_id      UUID NOT NULL REFERENCES cars(id),
    created_on  TIMESTAMPTZ NOT NULL,
    valid_until TIMESTAMPTZ NOT NULL,
    CHECK (valid_until > created_on)
);

CREATE INDEX IF NOT EXISTS idx_reservations_user_created
    ON reservations (user_id, created_on DESC);
`

const migrationCreateRides = `
CREATE TABLE IF NOT EXISTS rides (
    id             UUID PRIMARY KEY,
    user_id        TEXT NOT NULL,
    car_id         UUID NOT NULL REFERENCES cars(id),
    state          TEXT NOT NULL CHECK (state IN ('REQUESTED', 'IN_PROGRESS', 'COMPLETED', 'FAILED')),
    created_on     TIMESTAMPTZ NOT NULL,
    started_at     TIMESTAMPTZ,
    ended_at       TIMESTAMPTZ,
    failure_reason TEXT
);

CREATE INDEX IF NOT EXISTS idx_rides_car ON rides (car_id);
`

// cars.current_* point at reservations/rides, which reference cars; the
// constraints are added once both tables exist.
const migrationCarPointerIndexes = `
DO $$
BEGIN
    IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = 'fk_cars_current_reservation') THEN
        ALTER TABLE cars ADD CONSTRAINT fk_cars_current_reservation
            FOREIGN KEY (current_reservation_id) REFERENCES reservations(id);
    END IF;
    IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = 'fk_cars_current_ride') THEN
        ALTER TABLE cars ADD CONSTRAINT fk_cars_current_ride
            FOREIGN KEY (current_ride_id) REFERENCES rides(id);
    END IF;
END
$$;
`
