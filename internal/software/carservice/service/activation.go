package service

import (
	"context"

	"car-fleet/internal/domain/car"
	"car-fleet/internal/ports"
)

// SetActive toggles whether the car may be offered to users.
func (service *carService) SetActive(ctx context.Context, carID string, active bool) (ports.CarView, error) {
	view, err := service.mutateCar(ctx, carID, func(c *car.Car) { c.SetActive(active) })
	if err != nil {
		return view, err
	}

	service.logger.Info(ctx, "car_activation_changed", "Changed car activation", map[string]any{
		"car_id": view.ID,
		"active": active,
	})
	return view, nil
}

// SetMaintenance toggles the maintenance flag of the car.
func (service *carService) SetMaintenance(ctx context.Context, carID string, required bool) (ports.CarView, error) {
	view, err := service.mutateCar(ctx, carID, func(c *car.Car) { c.SetMaintenance(required) })
	if err != nil {
		return view, err
	}

	service.logger.Info(ctx, "car_maintenance_changed", "Changed car maintenance flag", map[string]any{
		"car_id":            view.ID,
		"needs_maintenance": required,
	})
	return view, nil
}

// mutateCar applies fn to the locked car row and saves it.
func (service *carService) mutateCar(ctx context.Context, carID string, fn func(*car.Car)) (ports.CarView, error) {
	carID, err := normalizeCarID(carID)
	if err != nil {
		return ports.CarView{}, err
	}

	var view ports.CarView
	err = service.uow.WithinTx(ctx, func(ctx context.Context) error {
		c, err := service.cars.GetForUpdate(ctx, carID)
		if err != nil {
			return err
		}
		fn(c)
		if err := service.cars.Save(ctx, c); err != nil {
			return err
		}
		view = ports.NewCarView(c)
		return nil
	})
	return view, err
}
