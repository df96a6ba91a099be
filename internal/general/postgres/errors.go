package postgres

import (
	"errors"

	"car-fleet/internal/domain/apperr"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// SQLSTATE codes mapped to domain outcomes.
const (
	codeUniqueViolation   = "23505"
	codeInvalidTextRepr   = "22P02" // malformed uuid in a lookup
	codeForeignKeyMissing = "23503"
)

// mapNotFound turns "no such row" style failures for entity/id into apperr.DoesNotExist.
func mapNotFound(err error, entity, id string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.DoesNotExist("%s %s does not exist", entity, id)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeInvalidTextRepr, codeForeignKeyMissing:
			return apperr.DoesNotExist("%s %s does not exist", entity, id)
		}
	}
	return err
}

// mapConflict turns unique violations into apperr.AlreadyExists.
func mapConflict(err error, format string, args ...any) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation {
		return apperr.AlreadyExists(format, args...)
	}
	return err
}
