package caragent

import (
	"math"
	"sync"
	"time"

	"car-fleet/internal/domain/geo"
	"car-fleet/internal/general/contracts"
)

// driveStepDeg is how far a car on a ride moves north per telemetry tick.
const driveStepDeg = 0.0005

// Vehicle is a simulated car. It accepts commands while online and reports its state.
type Vehicle struct {
	mu sync.Mutex

	id       string
	location geo.Point
	rangeKm  float64
	online   bool
	locked   bool
	rideID   string
}

// NewVehicle creates an online, locked vehicle at location.
func NewVehicle(id string, location geo.Point, rangeKm float64) *Vehicle {
	return &Vehicle{id: id, location: location, rangeKm: rangeKm, online: true, locked: true}
}

func (v *Vehicle) ID() string { return v.id }

// SetOnline toggles connectivity. An offline vehicle ignores every command.
func (v *Vehicle) SetOnline(online bool) {
	v.mu.Lock()
	v.online = online
	v.mu.Unlock()
}

// Online reports whether the vehicle answers commands.
func (v *Vehicle) Online() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.online
}

// AcceptRide binds the vehicle to rideID and unlocks it. A vehicle out of range refuses.
func (v *Vehicle) AcceptRide(rideID string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.rangeKm <= 0 {
		return false
	}
	v.rideID = rideID
	v.locked = false
	return true
}

// SetLock locks or unlocks the doors for the ride the vehicle is bound to.
func (v *Vehicle) SetLock(rideID string, lock bool) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.rideID == "" || v.rideID != rideID {
		return false
	}
	v.locked = lock
	return true
}

// Locked reports the door state.
func (v *Vehicle) Locked() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.locked
}

// Tick advances the simulation and returns the state to report.
// A vehicle bound to a ride and unlocked is driving: it moves and drains range.
func (v *Vehicle) Tick(now time.Time, drainKm float64) contracts.CarStateUpdate {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.rideID != "" && !v.locked && v.rangeKm > 0 {
		v.location.Latitude = math.Min(90, v.location.Latitude+driveStepDeg)
		v.rangeKm = math.Max(0, v.rangeKm-drainKm)
	}

	return contracts.CarStateUpdate{
		CarID:            v.id,
		RemainingRangeKm: v.rangeKm,
		Location:         contracts.GeoPoint{Lat: v.location.Latitude, Lng: v.location.Longitude},
		Online:           v.online,
		ObservedAt:       now.UTC(),
		Envelope: contracts.Envelope{
			Producer: contracts.ProducerCarAgent,
			SentAt:   now.UTC(),
		},
	}
}
