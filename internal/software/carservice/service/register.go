package service

import (
	"context"
	"sort"
	"strings"

	"car-fleet/internal/domain/apperr"
	"car-fleet/internal/domain/car"
	"car-fleet/internal/ports"
)

// RegisterCar adds one car. A plate that is already registered is AlreadyExists.
func (service *carService) RegisterCar(ctx context.Context, in ports.RegisterCarInput) (ports.CarView, error) {
	c, err := car.NewCar(in.NumberPlate, in.Location, in.RemainingRangeKm, in.Active, in.Online, service.clock.Now())
	if err != nil {
		return ports.CarView{}, invalidInput(err)
	}

	err = service.uow.WithinTx(ctx, func(ctx context.Context) error {
		exists, err := service.cars.ExistsByPlate(ctx, c.NumberPlate)
		if err != nil {
			return err
		}
		if exists {
			return apperr.AlreadyExists("car with number plate %s already exists", c.NumberPlate)
		}
		return service.cars.Create(ctx, c)
	})
	if err != nil {
		return ports.CarView{}, err
	}

	service.logger.Info(ctx, "car_registered", "Registered car", map[string]any{
		"car_id":       c.ID,
		"number_plate": c.NumberPlate,
	})
	return ports.NewCarView(c), nil
}

// RegisterCars adds a batch of cars atomically. Every duplicate plate, whether
// already registered or repeated within the batch, is reported in one AlreadyExists.
func (service *carService) RegisterCars(ctx context.Context, in []ports.RegisterCarInput) ([]ports.CarView, error) {
	if len(in) == 0 {
		return nil, apperr.InvalidInput("no cars to register")
	}

	now := service.clock.Now()
	batch := make([]*car.Car, 0, len(in))
	for i, item := range in {
		c, err := car.NewCar(item.NumberPlate, item.Location, item.RemainingRangeKm, item.Active, item.Online, now)
		if err != nil {
			return nil, apperr.InvalidInput("car #%d: %s", i+1, err.Error())
		}
		batch = append(batch, c)
	}

	err := service.uow.WithinTx(ctx, func(ctx context.Context) error {
		seen := make(map[string]bool, len(batch))
		duplicates := make(map[string]bool)
		for _, c := range batch {
			if seen[c.NumberPlate] {
				duplicates[c.NumberPlate] = true
				continue
			}
			seen[c.NumberPlate] = true

			exists, err := service.cars.ExistsByPlate(ctx, c.NumberPlate)
			if err != nil {
				return err
			}
			if exists {
				duplicates[c.NumberPlate] = true
			}
		}

		if len(duplicates) > 0 {
			plates := make([]string, 0, len(duplicates))
			for p := range duplicates {
				plates = append(plates, p)
			}
			sort.Strings(plates)
			return apperr.AlreadyExists("cars with number plates [%s] already exist", strings.Join(plates, ", "))
		}

		for _, c := range batch {
			if err := service.cars.Create(ctx, c); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	views := make([]ports.CarView, 0, len(batch))
	for _, c := range batch {
		views = append(views, ports.NewCarView(c))
	}

	service.logger.Info(ctx, "cars_registered", "Registered car batch", map[string]any{"count": len(batch)})
	return views, nil
}
