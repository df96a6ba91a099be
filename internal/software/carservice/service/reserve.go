package service

import (
	"context"
	"errors"

	"car-fleet/internal/domain/apperr"
	"car-fleet/internal/domain/car"
	"car-fleet/internal/domain/reservation"
	"car-fleet/internal/general/metrics"
	"car-fleet/internal/ports"
)

// Reserve places a reservation on the car for the user.
// Checks run in order: DoesNotExist, NotAvailable, OnCooldown. Attempts for the
// same car serialize on its row lock; attempts of the same user on an advisory lock.
func (service *carService) Reserve(ctx context.Context, userID, carID string) (ports.ReserveResult, error) {
	userID, err := requireUser(userID)
	if err != nil {
		return ports.ReserveResult{}, err
	}
	carID, err = normalizeCarID(carID)
	if err != nil {
		metrics.Reservations.WithLabelValues(resultLabel(err)).Inc()
		return ports.ReserveResult{}, err
	}
	ctx = service.logger.WithCarID(ctx, carID)

	var result ports.ReserveResult
	err = service.uow.WithinTx(ctx, func(ctx context.Context) error {
		// user lock first, car lock second; no other path takes them in reverse
		if err := service.reservations.LockUser(ctx, userID); err != nil {
			return err
		}

		c, err := service.cars.GetForUpdate(ctx, carID)
		if err != nil {
			return err
		}

		// read the clock under the locks so the decision matches the committed order
		now := service.clock.Now()
		if !c.CanBeReserved(now) {
			return apperr.NotAvailable("car %s is not available", carID)
		}

		mostRecent, err := service.reservations.MostRecentForUser(ctx, userID)
		if err != nil {
			return err
		}
		if reservation.OnCooldown(mostRecent, now, service.opts.ReservationCooldown) {
			return apperr.OnCooldown("user %s reserved at %s and is on cooldown", userID, mostRecent.CreatedOn.Format("15:04:05"))
		}

		r, err := reservation.NewReservation(userID, carID, now, service.opts.ReservationHold)
		if err != nil {
			return err
		}
		if err := service.reservations.Create(ctx, r); err != nil {
			return err
		}

		c.Reserve(car.ReservationRef{ID: r.ID, UserID: r.UserID, CreatedOn: r.CreatedOn, ValidUntil: r.ValidUntil})
		if err := service.cars.Save(ctx, c); err != nil {
			return err
		}

		result = ports.ReserveResult{Car: ports.NewCarView(c), Reservation: ports.NewReservationView(r)}
		return nil
	})

	metrics.Reservations.WithLabelValues(resultLabel(err)).Inc()
	if err != nil {
		if !apperr.IsExpected(err) {
			service.logger.Error(ctx, "reservation_failed", "Failed to reserve car", err, map[string]any{"user_id": userID})
		}
		return ports.ReserveResult{}, err
	}

	service.logger.Info(ctx, "car_reserved", "Reserved car", map[string]any{
		"user_id":        userID,
		"reservation_id": result.Reservation.ID,
		"valid_until":    result.Reservation.ValidUntil,
	})
	return result, nil
}

// resultLabel is the metrics label for an operation outcome.
func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	case apperr.IsExpected(err):
		return string(apperr.KindOf(err))
	default:
		return "error"
	}
}
