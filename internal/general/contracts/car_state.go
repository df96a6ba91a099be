package contracts

import "time"

// CarStateUpdate is the telemetry a car reports on car.state.{car_id}.
// The car id on the wire is informative only; the routing key is authoritative.
type CarStateUpdate struct {
	CarID            string    `json:"car_id,omitempty"`
	RemainingRangeKm float64   `json:"remaining_range_km"`
	Location         GeoPoint  `json:"location"`
	Online           bool      `json:"online"`
	ObservedAt       time.Time `json:"observed_at"`
	Envelope
}
