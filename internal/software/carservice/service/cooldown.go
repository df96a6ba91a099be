package service

import (
	"context"

	"car-fleet/internal/domain/reservation"
)

// IsOnCooldown reports whether the user must still wait before reserving again.
// It performs one read and has no side effects.
func (service *carService) IsOnCooldown(ctx context.Context, userID string) (bool, error) {
	userID, err := requireUser(userID)
	if err != nil {
		return false, err
	}

	var onCooldown bool
	err = service.uow.WithinTx(ctx, func(ctx context.Context) error {
		mostRecent, err := service.reservations.MostRecentForUser(ctx, userID)
		if err != nil {
			return err
		}
		onCooldown = reservation.OnCooldown(mostRecent, service.clock.Now(), service.opts.ReservationCooldown)
		return nil
	})
	return onCooldown, err
}
