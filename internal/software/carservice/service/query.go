package service

import (
	"context"

	"car-fleet/internal/domain/car"
	"car-fleet/internal/ports"
)

// GetCar returns one car.
func (service *carService) GetCar(ctx context.Context, carID string) (ports.CarView, error) {
	carID, err := normalizeCarID(carID)
	if err != nil {
		return ports.CarView{}, err
	}

	var view ports.CarView
	err = service.uow.WithinTx(ctx, func(ctx context.Context) error {
		c, err := service.cars.Get(ctx, carID)
		if err != nil {
			return err
		}
		view = ports.NewCarView(c)
		return nil
	})
	return view, err
}

// FindCars returns every car within the radius, nearest first.
func (service *carService) FindCars(ctx context.Context, q ports.RadiusQuery) ([]ports.CarView, error) {
	return service.withinRadius(ctx, q, nil)
}

// FindAvailableCars returns the cars within the radius that can be reserved now.
func (service *carService) FindAvailableCars(ctx context.Context, q ports.RadiusQuery) ([]ports.CarView, error) {
	now := service.clock.Now()
	return service.withinRadius(ctx, q, func(c *car.Car) bool {
		return c.CanBeReserved(now)
	})
}

// FindMaintenanceCars returns the cars within the radius flagged for maintenance.
func (service *carService) FindMaintenanceCars(ctx context.Context, q ports.RadiusQuery) ([]ports.CarView, error) {
	return service.withinRadius(ctx, q, func(c *car.Car) bool {
		return c.NeedsMaintenance
	})
}
