package ride

import (
	"context"
	"errors"
	"testing"
	"time"
)

var base = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func TestRideLifecycle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	r, err := NewRide("alice", "car-1", base)
	if err != nil {
		t.Fatalf("NewRide: %v", err)
	}
	if r.State != StateRequested || r.Active() {
		t.Fatalf("new ride should be REQUESTED, got %s", r.State)
	}

	if err := r.Confirm(ctx, base.Add(time.Second)); err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if r.State != StateInProgress || r.StartedAt == nil || !r.StartedAt.Equal(base.Add(time.Second)) {
		t.Fatalf("confirm did not start ride: %+v", r)
	}

	if err := r.Complete(ctx, base.Add(time.Hour)); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if r.State != StateCompleted || r.EndedAt == nil {
		t.Fatalf("complete did not end ride: %+v", r)
	}
	if !r.State.Terminal() {
		t.Fatalf("COMPLETED must be terminal")
	}
}

func TestRideFailRecordsReason(t *testing.T) {
	t.Parallel()

	r, _ := NewRide("alice", "car-1", base)
	if err := r.Fail(context.Background(), base.Add(5*time.Second), ReasonCarOffline); err != nil {
		t.Fatalf("Fail: %v", err)
	}
	if r.State != StateFailed || r.FailureReason != ReasonCarOffline {
		t.Fatalf("unexpected ride after fail: %+v", r)
	}
}

func TestRideInvalidTransitions(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	r, _ := NewRide("alice", "car-1", base)
	if err := r.Complete(ctx, base); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("complete from REQUESTED: expected ErrInvalidTransition, got %v", err)
	}

	_ = r.Fail(ctx, base, ReasonRejected)
	if err := r.Confirm(ctx, base); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("confirm from FAILED: expected ErrInvalidTransition, got %v", err)
	}
	if r.State != StateFailed {
		t.Fatalf("state changed on rejected transition: %s", r.State)
	}
}

func TestParseState(t *testing.T) {
	t.Parallel()

	got, err := ParseState(" in_progress ")
	if err != nil || got != StateInProgress {
		t.Fatalf("ParseState = %q, %v", got, err)
	}
	if _, err := ParseState("parked"); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
}
