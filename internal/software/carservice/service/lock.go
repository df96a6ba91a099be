package service

import (
	"context"
	"errors"
	"fmt"

	"car-fleet/internal/domain/apperr"
	"car-fleet/internal/general/contracts"
	"car-fleet/internal/general/messaging"
	"car-fleet/internal/ports"

	"github.com/google/uuid"
)

// LockCar asks the car to lock or unlock. Only the user riding the car may ask;
// that is checked before anything is sent. Success changes no stored state.
func (service *carService) LockCar(ctx context.Context, userID, carID string, lock bool) (ports.LockResult, error) {
	userID, err := requireUser(userID)
	if err != nil {
		return ports.LockResult{}, err
	}
	carID, err = normalizeCarID(carID)
	if err != nil {
		return ports.LockResult{}, err
	}
	ctx = service.logger.WithCarID(ctx, carID)

	var rideID string
	err = service.uow.WithinTx(ctx, func(ctx context.Context) error {
		c, err := service.cars.Get(ctx, carID)
		if err != nil {
			return err
		}
		if !c.RiddenBy(userID) {
			return apperr.NotAllowed("user %s has no ride in progress on car %s", userID, carID)
		}
		rideID = c.CurrentRide.ID
		return nil
	})
	if err != nil {
		return ports.LockResult{}, err
	}
	ctx = service.logger.WithRideID(ctx, rideID)

	lockRequestID := uuid.NewString()
	key := lockKey(lockRequestID, carID)
	req := contracts.CarLockRequest{
		LockRequestID:  lockRequestID,
		RideID:         rideID,
		CarID:          carID,
		Lock:           lock,
		CorrelationKey: key,
		Envelope: contracts.Envelope{
			CorrelationID: key,
			Producer:      contracts.ProducerCarService,
			SentAt:        service.clock.Now(),
		},
	}

	ack, err := service.gateway.SendAndAwaitReply(ctx, messaging.CarCommand(carID, contracts.CommandLock), key, req, service.opts.AckTimeout)
	switch {
	case errors.Is(err, messaging.ErrReplyTimeout):
		return ports.LockResult{}, service.onCarSilent(ctx, carID, "")
	case err != nil:
		return ports.LockResult{}, fmt.Errorf("lock request to car %s: %w", carID, err)
	case !ack.Confirms:
		service.logger.Warn(ctx, "lock_rejected", "Car rejected the lock request", map[string]any{"lock": lock})
		return ports.LockResult{}, apperr.NotAvailable("car %s rejected the lock request", carID)
	}

	service.logger.Info(ctx, "car_lock_changed", "Car acknowledged lock request", map[string]any{"lock": lock})
	return ports.LockResult{CarID: carID, Locked: lock}, nil
}
