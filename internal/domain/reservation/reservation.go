package reservation

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultHoldWindow is how long a reservation keeps its car.
const DefaultHoldWindow = 2 * time.Hour

// Reservation is the domain entity corresponding to the `reservations` table.
// Reservations are append-only: once written they are never updated.
type Reservation struct {
	ID         string
	UserID     string
	CarID      string
	CreatedOn  time.Time
	ValidUntil time.Time
}

var (
	ErrUserRequired  = errors.New("user id is required")
	ErrCarRequired   = errors.New("car id is required")
	ErrInvalidWindow = errors.New("hold window must be positive")
)

// NewReservation creates a reservation created at now and valid for hold.
func NewReservation(userID, carID string, now time.Time, hold time.Duration) (*Reservation, error) {
	if userID = strings.TrimSpace(userID); userID == "" {
		return nil, ErrUserRequired
	}
	if carID = strings.TrimSpace(carID); carID == "" {
		return nil, ErrCarRequired
	}
	if hold <= 0 {
		return nil, ErrInvalidWindow
	}

	now = now.UTC()
	return &Reservation{
		ID:         uuid.NewString(),
		UserID:     userID,
		CarID:      carID,
		CreatedOn:  now,
		ValidUntil: now.Add(hold),
	}, nil
}

// Expired reports whether now is past ValidUntil.
func (r *Reservation) Expired(now time.Time) bool {
	return now.After(r.ValidUntil)
}

// OnCooldown reports whether a user whose most recent reservation is mostRecent
// must still wait at now. A nil mostRecent means the user never reserved.
// The window is half-open: reserving again at exactly CreatedOn+window is allowed.
func OnCooldown(mostRecent *Reservation, now time.Time, window time.Duration) bool {
	if mostRecent == nil {
		return false
	}
	return now.Sub(mostRecent.CreatedOn) < window
}
