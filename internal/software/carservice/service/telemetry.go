package service

import (
	"context"

	"car-fleet/internal/domain/apperr"
	"car-fleet/internal/general/metrics"
	"car-fleet/internal/ports"
)

const (
	sourceAdmin  = "admin"
	sourceBroker = "amqp"
)

// ApplyTelemetry overwrites the car's reported state from the admin API.
func (service *carService) ApplyTelemetry(ctx context.Context, in ports.StateUpdate) (ports.CarView, error) {
	return service.applyState(ctx, in, sourceAdmin)
}

// applyState is last-write-wins: an update observed earlier than the stored one
// still replaces it. Reservation and ride pointers are never touched.
func (service *carService) applyState(ctx context.Context, in ports.StateUpdate, source string) (ports.CarView, error) {
	view, err := service.doApplyState(ctx, in, source)
	metrics.TelemetryApplied.WithLabelValues(source, resultLabel(err)).Inc()
	return view, err
}

func (service *carService) doApplyState(ctx context.Context, in ports.StateUpdate, source string) (ports.CarView, error) {
	carID, err := normalizeCarID(in.CarID)
	if err != nil {
		return ports.CarView{}, err
	}
	if err := in.Location.Validate(); err != nil {
		return ports.CarView{}, apperr.InvalidInput("%s", err.Error())
	}
	if in.RemainingRangeKm < 0 {
		return ports.CarView{}, apperr.InvalidInput("remaining range cannot be negative")
	}
	if in.ObservedAt.IsZero() {
		in.ObservedAt = service.clock.Now()
	}
	ctx = service.logger.WithCarID(ctx, carID)

	var view ports.CarView
	err = service.uow.WithinTx(ctx, func(ctx context.Context) error {
		c, err := service.cars.GetForUpdate(ctx, carID)
		if err != nil {
			return err
		}

		if in.ObservedAt.Before(c.LastStateUpdate) {
			service.logger.Debug(ctx, "car_state_out_of_order", "Applying state observed before the stored one", map[string]any{
				"observed_at":       in.ObservedAt,
				"last_state_update": c.LastStateUpdate,
				"source":            source,
			})
		}

		if err := c.ApplyState(in.RemainingRangeKm, in.Location, in.Online, in.ObservedAt); err != nil {
			return invalidInput(err)
		}
		if err := service.cars.Save(ctx, c); err != nil {
			return err
		}

		view = ports.NewCarView(c)
		return nil
	})
	if err != nil {
		return ports.CarView{}, err
	}

	service.logger.Debug(ctx, "car_state_applied", "Applied car state", map[string]any{
		"online":             in.Online,
		"remaining_range_km": in.RemainingRangeKm,
		"source":             source,
	})
	return view, nil
}
