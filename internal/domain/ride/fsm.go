package ride

import (
	"context"
	"errors"
	"time"

	"github.com/looplab/fsm"
)

const (
	// EventConfirm moves a requested ride into progress once the car acknowledged.
	EventConfirm = "confirm"
	// EventFail ends an attempt or an active ride unsuccessfully.
	EventFail = "fail"
	// EventComplete ends an active ride normally.
	EventComplete = "complete"
)

// newMachine builds a lifecycle machine positioned at the ride's current state.
// Enter callbacks stamp the ride; the first event argument is the transition time.
func newMachine(ride *Ride) *fsm.FSM {
	events := fsm.Events{
		{Name: EventConfirm, Src: []string{string(StateRequested)}, Dst: string(StateInProgress)},
		{Name: EventFail, Src: []string{string(StateRequested), string(StateInProgress)}, Dst: string(StateFailed)},
		{Name: EventComplete, Src: []string{string(StateInProgress)}, Dst: string(StateCompleted)},
	}

	callbacks := fsm.Callbacks{
		"enter_" + string(StateInProgress): func(_ context.Context, e *fsm.Event) {
			at := eventTime(e)
			ride.StartedAt = &at
		},
		"enter_" + string(StateFailed): func(_ context.Context, e *fsm.Event) {
			at := eventTime(e)
			ride.EndedAt = &at
			if len(e.Args) > 1 {
				if reason, ok := e.Args[1].(string); ok {
					ride.FailureReason = reason
				}
			}
		},
		"enter_" + string(StateCompleted): func(_ context.Context, e *fsm.Event) {
			at := eventTime(e)
			ride.EndedAt = &at
		},
	}

	return fsm.NewFSM(string(ride.State), events, callbacks)
}

// fire runs one event against the ride and syncs the resulting state back.
func (ride *Ride) fire(ctx context.Context, event string, args ...any) error {
	machine := newMachine(ride)
	if err := machine.Event(ctx, event, args...); err != nil {
		var invalid fsm.InvalidEventError
		if errors.As(err, &invalid) {
			return ErrInvalidTransition
		}
		return err
	}
	ride.State = State(machine.Current())
	return nil
}

func eventTime(e *fsm.Event) time.Time {
	if len(e.Args) > 0 {
		if at, ok := e.Args[0].(time.Time); ok {
			return at.UTC()
		}
	}
	return time.Now().UTC()
}
