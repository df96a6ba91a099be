package ride

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Ride is the domain entity corresponding to the `rides` table.
// One attempt per row: a failed start is never retried on the same ride.
type Ride struct {
	ID     string
	UserID string
	CarID  string

	State     State
	CreatedOn time.Time

	StartedAt     *time.Time
	EndedAt       *time.Time
	FailureReason string
}

// Failure reasons recorded on FAILED rides.
const (
	ReasonCarOffline = "car_offline"
	ReasonRejected   = "rejected"
	ReasonCarTaken   = "car_taken"
	ReasonSendFailed = "send_failed"
	ReasonCancelled  = "cancelled"
)

var (
	ErrUserRequired      = errors.New("user id is required")
	ErrCarRequired       = errors.New("car id is required")
	ErrInvalidTransition = errors.New("invalid ride state transition")
)

// NewRide creates a new ride attempt in REQUESTED state.
func NewRide(userID, carID string, now time.Time) (*Ride, error) {
	if userID = strings.TrimSpace(userID); userID == "" {
		return nil, ErrUserRequired
	}
	if carID = strings.TrimSpace(carID); carID == "" {
		return nil, ErrCarRequired
	}

	return &Ride{
		ID:        uuid.NewString(),
		UserID:    userID,
		CarID:     carID,
		State:     StateRequested,
		CreatedOn: now.UTC(),
	}, nil
}

// Confirm transitions REQUESTED -> IN_PROGRESS after a confirming acknowledgement.
func (ride *Ride) Confirm(ctx context.Context, at time.Time) error {
	return ride.fire(ctx, EventConfirm, at)
}

// Fail transitions a non-terminal ride to FAILED with a reason.
func (ride *Ride) Fail(ctx context.Context, at time.Time, reason string) error {
	return ride.fire(ctx, EventFail, at, reason)
}

// Complete transitions IN_PROGRESS -> COMPLETED.
func (ride *Ride) Complete(ctx context.Context, at time.Time) error {
	return ride.fire(ctx, EventComplete, at)
}

// Active reports whether the ride currently holds its car.
func (ride *Ride) Active() bool {
	return ride.State == StateInProgress
}
