package reservation

import (
	"testing"
	"time"
)

var base = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func TestNewReservationWindow(t *testing.T) {
	t.Parallel()

	r, err := NewReservation("alice", "car-1", base, DefaultHoldWindow)
	if err != nil {
		t.Fatalf("NewReservation: %v", err)
	}
	if !r.ValidUntil.Equal(base.Add(2 * time.Hour)) {
		t.Fatalf("ValidUntil = %v", r.ValidUntil)
	}
	if r.Expired(base.Add(2 * time.Hour)) {
		t.Fatalf("reservation should still hold at ValidUntil")
	}
	if !r.Expired(base.Add(2*time.Hour + time.Nanosecond)) {
		t.Fatalf("reservation should expire after ValidUntil")
	}

	if _, err := NewReservation("", "car-1", base, time.Hour); err != ErrUserRequired {
		t.Fatalf("expected ErrUserRequired, got %v", err)
	}
	if _, err := NewReservation("alice", "car-1", base, 0); err != ErrInvalidWindow {
		t.Fatalf("expected ErrInvalidWindow, got %v", err)
	}
}

func TestOnCooldownBoundary(t *testing.T) {
	t.Parallel()

	window := 120 * time.Minute
	last := &Reservation{ID: "r1", UserID: "alice", CarID: "car-1", CreatedOn: base}

	cases := []struct {
		name string
		at   time.Time
		want bool
	}{
		{"never reserved", base, false},
		{"just after", base.Add(time.Second), true},
		{"one tick before", base.Add(window - time.Nanosecond), true},
		{"exactly at window", base.Add(window), false},
		{"after window", base.Add(window + time.Minute), false},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			mostRecent := last
			if tc.name == "never reserved" {
				mostRecent = nil
			}
			if got := OnCooldown(mostRecent, tc.at, window); got != tc.want {
				t.Fatalf("OnCooldown = %v, want %v", got, tc.want)
			}
		})
	}
}
