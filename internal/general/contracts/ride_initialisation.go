package contracts

import "time"

// RideInitialisation tells ride tracking that a ride has started.
type RideInitialisation struct {
	RideID    string    `json:"ride_id"`
	CarID     string    `json:"car_id"`
	UserID    string    `json:"user_id"`
	StartedAt time.Time `json:"started_at"`
	Envelope
}
