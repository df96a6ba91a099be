package service

import (
	"context"
	"strings"

	"car-fleet/internal/domain/apperr"
	"car-fleet/internal/domain/car"
	"car-fleet/internal/domain/geo"
	"car-fleet/internal/ports"

	"github.com/google/uuid"
)

// rideKey correlates a ride request with its acknowledgement.
func rideKey(rideID, carID string) string {
	return "ride:" + rideID + ":" + carID
}

// lockKey correlates a lock request with its acknowledgement.
func lockKey(lockRequestID, carID string) string {
	return "lock:" + lockRequestID + ":" + carID
}

// normalizeCarID canonicalizes a car id; ids that cannot exist are DoesNotExist.
func normalizeCarID(carID string) (string, error) {
	id, err := uuid.Parse(strings.TrimSpace(carID))
	if err != nil {
		return "", apperr.DoesNotExist("car %s does not exist", carID)
	}
	return id.String(), nil
}

func requireUser(userID string) (string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", apperr.InvalidInput("user id is required")
	}
	return userID, nil
}

func validateRadius(q ports.RadiusQuery) error {
	if err := q.Center.Validate(); err != nil {
		return apperr.InvalidInput("%s", err.Error())
	}
	if err := geo.ValidateRadius(q.RadiusKm); err != nil {
		return apperr.InvalidInput("%s", err.Error())
	}
	return nil
}

// withinRadius loads cars around q.Center and keeps those accepted by keep.
func (service *carService) withinRadius(ctx context.Context, q ports.RadiusQuery, keep func(*car.Car) bool) ([]ports.CarView, error) {
	if err := validateRadius(q); err != nil {
		return nil, err
	}

	var found []*car.Car
	err := service.uow.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		found, err = service.cars.FindWithinRadius(ctx, q.Center, q.RadiusKm)
		return err
	})
	if err != nil {
		return nil, err
	}

	views := make([]ports.CarView, 0, len(found))
	for _, c := range found {
		if keep != nil && !keep(c) {
			continue
		}
		v := ports.NewCarView(c)
		d := geo.HaversineKM(q.Center, c.Location)
		v.DistanceKm = &d
		views = append(views, v)
	}
	return views, nil
}

// invalidInput wraps domain validation errors so they map to INVALID_INPUT.
func invalidInput(err error) error {
	if err == nil || apperr.IsExpected(err) {
		return err
	}
	return apperr.InvalidInput("%s", err.Error())
}
