package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"car-fleet/internal/domain/apperr"
	"car-fleet/internal/domain/car"
	"car-fleet/internal/domain/ride"
	"car-fleet/internal/general/contracts"
	"car-fleet/internal/general/messaging"
)

func TestStartRideConfirmed(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture()
	carID := f.addCar("B-RD 1", berlin)

	if _, err := f.svc.Reserve(ctx, "alice", carID); err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	f.clock.Advance(5 * time.Minute)

	res, err := f.svc.StartRide(ctx, "alice", carID)
	if err != nil {
		t.Fatalf("StartRide: %v", err)
	}
	if res.State != string(ride.StateInProgress) || res.StartedAt == nil {
		t.Fatalf("unexpected ride result %+v", res)
	}

	cmds := f.gateway.sentCommands()
	if len(cmds) != 1 {
		t.Fatalf("expected one command, got %d", len(cmds))
	}
	req, ok := cmds[0].payload.(contracts.CarRideRequest)
	if !ok || req.RideID != res.RideID || req.UserID != "alice" {
		t.Fatalf("unexpected ride request %+v", cmds[0].payload)
	}
	if cmds[0].key != "ride:"+res.RideID+":"+carID || cmds[0].dest.RoutingKey != "car.command."+carID+".ride" {
		t.Fatalf("unexpected addressing %+v", cmds[0])
	}

	got := f.car(carID)
	if got.CurrentReservation != nil {
		t.Fatalf("starting the ride should consume the reservation")
	}
	if !got.RiddenBy("alice") || !got.LastStateUpdate.Equal(t0.Add(5*time.Minute)) {
		t.Fatalf("car not bound to the ride: %+v", got)
	}

	select {
	case msg := <-f.gateway.published:
		initMsg, ok := msg.payload.(contracts.RideInitialisation)
		if !ok || msg.dest.Exchange != contracts.ExchangeRideTopic || msg.dest.RoutingKey != contracts.RouteRideInitialisation {
			t.Fatalf("unexpected notification %+v", msg)
		}
		if initMsg.RideID != res.RideID || initMsg.CarID != carID || initMsg.UserID != "alice" {
			t.Fatalf("unexpected ride initialisation %+v", initMsg)
		}
	case <-time.After(time.Second):
		t.Fatalf("ride initialisation was not published")
	}
}

func TestStartRideWithoutReservation(t *testing.T) {
	t.Parallel()
	f := newFixture()
	carID := f.addCar("B-RD 2", berlin)

	if _, err := f.svc.StartRide(context.Background(), "erin", carID); err != nil {
		t.Fatalf("a free car can be ridden without reserving: %v", err)
	}
}

func TestStartRideBlockedByForeignReservation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture()
	carID := f.addCar("B-RD 3", berlin)

	if _, err := f.svc.Reserve(ctx, "alice", carID); err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if _, err := f.svc.StartRide(ctx, "bob", carID); !errors.Is(err, apperr.ErrNotAvailable) {
		t.Fatalf("expected NotAvailable, got %v", err)
	}
	if n := len(f.gateway.sentCommands()); n != 0 {
		t.Fatalf("no command may be sent for a refused ride, got %d", n)
	}
	f.db.inTx(func() {
		if len(f.db.rides) != 0 {
			t.Fatalf("refused start must not create a ride")
		}
	})
}

func TestStartRideTimeoutMarksCarOffline(t *testing.T) {
	t.Parallel()
	f := newFixture()
	carID := f.addCar("B-RD 4", berlin)
	f.gateway.reply = func(sentCommand) (contracts.CarAcknowledgement, error) {
		f.clock.Advance(time.Second)
		return contracts.CarAcknowledgement{}, messaging.ErrReplyTimeout
	}

	_, err := f.svc.StartRide(context.Background(), "alice", carID)
	if !errors.Is(err, apperr.ErrOfflineTimeout) {
		t.Fatalf("expected OfflineTimeout, got %v", err)
	}

	got := f.car(carID)
	if got.Online || !got.LastStateUpdate.Equal(t0.Add(time.Second)) {
		t.Fatalf("car should be offline as of the timeout: %+v", got)
	}
	if got.HasActiveRide() {
		t.Fatalf("car must not be bound to a failed ride")
	}

	rd := f.onlyRide()
	if rd.State != ride.StateFailed || rd.FailureReason != ride.ReasonCarOffline {
		t.Fatalf("ride should fail as car_offline: %+v", rd)
	}

	if _, err := f.svc.Reserve(context.Background(), "bob", carID); !errors.Is(err, apperr.ErrNotAvailable) {
		t.Fatalf("offline car must not be reservable, got %v", err)
	}
}

func TestStartRideRejectedByCar(t *testing.T) {
	t.Parallel()
	f := newFixture()
	carID := f.addCar("B-RD 5", berlin)
	f.gateway.reply = func(cmd sentCommand) (contracts.CarAcknowledgement, error) {
		return contracts.CarAcknowledgement{CorrelationKey: cmd.key, Confirms: false}, nil
	}

	if _, err := f.svc.StartRide(context.Background(), "alice", carID); !errors.Is(err, apperr.ErrNotAvailable) {
		t.Fatalf("expected NotAvailable, got %v", err)
	}

	rd := f.onlyRide()
	if rd.State != ride.StateFailed || rd.FailureReason != ride.ReasonRejected {
		t.Fatalf("ride should fail as rejected: %+v", rd)
	}
	if got := f.car(carID); !got.Online || got.HasActiveRide() {
		t.Fatalf("a rejection must not change the car: %+v", got)
	}
}

func TestStartRideLosesRaceWhileWaiting(t *testing.T) {
	t.Parallel()
	f := newFixture()
	carID := f.addCar("B-RD 6", berlin)

	// while alice waits for her ack, another ride takes the car
	f.gateway.reply = func(cmd sentCommand) (contracts.CarAcknowledgement, error) {
		f.db.inTx(func() {
			other := ride.Ride{ID: "other-ride", UserID: "mallory", CarID: carID, State: ride.StateInProgress, CreatedOn: t0}
			f.db.rides[other.ID] = other
			row := f.db.cars[carID]
			row.rideID = other.ID
			f.db.cars[carID] = row
		})
		return contracts.CarAcknowledgement{CorrelationKey: cmd.key, Confirms: true}, nil
	}

	if _, err := f.svc.StartRide(context.Background(), "alice", carID); !errors.Is(err, apperr.ErrNotAvailable) {
		t.Fatalf("expected NotAvailable, got %v", err)
	}

	var mine ride.Ride
	f.db.inTx(func() {
		for _, rd := range f.db.rides {
			if rd.UserID == "alice" {
				mine = rd
			}
		}
	})
	if mine.State != ride.StateFailed || mine.FailureReason != ride.ReasonCarTaken {
		t.Fatalf("losing ride should fail as car_taken: %+v", mine)
	}
	if got := f.car(carID); !got.RiddenBy("mallory") {
		t.Fatalf("winner must keep the car")
	}
}

func TestStartRidePublishFailure(t *testing.T) {
	t.Parallel()
	f := newFixture()
	carID := f.addCar("B-RD 7", berlin)
	boom := errors.New("broker unavailable")
	f.gateway.reply = func(sentCommand) (contracts.CarAcknowledgement, error) {
		return contracts.CarAcknowledgement{}, boom
	}

	_, err := f.svc.StartRide(context.Background(), "alice", carID)
	if !errors.Is(err, boom) || apperr.IsExpected(err) {
		t.Fatalf("expected internal publish error, got %v", err)
	}
	if rd := f.onlyRide(); rd.FailureReason != ride.ReasonSendFailed {
		t.Fatalf("ride should fail as send_failed: %+v", rd)
	}
	if got := f.car(carID); !got.Online {
		t.Fatalf("a broker failure says nothing about the car")
	}
}

// startedRide returns a car with alice's ride in progress.
func startedRide(t *testing.T, f *fixture, plate string) (carID, rideID string) {
	t.Helper()
	carID = f.addCar(plate, berlin)
	res, err := f.svc.StartRide(context.Background(), "alice", carID)
	if err != nil {
		t.Fatalf("StartRide: %v", err)
	}
	<-f.gateway.published
	return carID, res.RideID
}

func TestLockCar(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture()
	carID, rideID := startedRide(t, f, "B-LK 1")

	res, err := f.svc.LockCar(ctx, "alice", carID, true)
	if err != nil {
		t.Fatalf("LockCar: %v", err)
	}
	if !res.Locked || res.CarID != carID {
		t.Fatalf("unexpected lock result %+v", res)
	}

	cmds := f.gateway.sentCommands()
	req, ok := cmds[len(cmds)-1].payload.(contracts.CarLockRequest)
	if !ok || req.RideID != rideID || !req.Lock || req.CarID != carID {
		t.Fatalf("unexpected lock request %+v", cmds[len(cmds)-1].payload)
	}
	if cmds[len(cmds)-1].key != "lock:"+req.LockRequestID+":"+carID {
		t.Fatalf("unexpected lock key %q", cmds[len(cmds)-1].key)
	}

	unlock, err := f.svc.LockCar(ctx, "alice", carID, false)
	if err != nil || unlock.Locked {
		t.Fatalf("unlock: %+v, %v", unlock, err)
	}
}

func TestLockCarRequiresOwnRide(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture()
	carID, _ := startedRide(t, f, "B-LK 2")
	idle := f.addCar("B-LK 3", berlin)
	sent := len(f.gateway.sentCommands())

	if _, err := f.svc.LockCar(ctx, "bob", carID, true); !errors.Is(err, apperr.ErrNotAllowed) {
		t.Fatalf("expected NotAllowed for another user, got %v", err)
	}
	if _, err := f.svc.LockCar(ctx, "alice", idle, true); !errors.Is(err, apperr.ErrNotAllowed) {
		t.Fatalf("expected NotAllowed without a ride, got %v", err)
	}
	if _, err := f.svc.LockCar(ctx, "alice", "1b4e28ba-2fa1-11d2-883f-0016d3cca427", true); !errors.Is(err, apperr.ErrDoesNotExist) {
		t.Fatalf("expected DoesNotExist, got %v", err)
	}
	if n := len(f.gateway.sentCommands()); n != sent {
		t.Fatalf("refused lock requests must not be sent")
	}
}

func TestLockCarTimeoutAndRejection(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture()
	carID, rideID := startedRide(t, f, "B-LK 4")

	f.gateway.reply = func(cmd sentCommand) (contracts.CarAcknowledgement, error) {
		return contracts.CarAcknowledgement{CorrelationKey: cmd.key, Confirms: false}, nil
	}
	if _, err := f.svc.LockCar(ctx, "alice", carID, true); !errors.Is(err, apperr.ErrNotAvailable) {
		t.Fatalf("expected NotAvailable on rejection, got %v", err)
	}

	f.gateway.reply = func(sentCommand) (contracts.CarAcknowledgement, error) {
		return contracts.CarAcknowledgement{}, messaging.ErrReplyTimeout
	}
	if _, err := f.svc.LockCar(ctx, "alice", carID, true); !errors.Is(err, apperr.ErrOfflineTimeout) {
		t.Fatalf("expected OfflineTimeout, got %v", err)
	}
	if got := f.car(carID); got.Online {
		t.Fatalf("silent car should be marked offline")
	}
	if rd := f.ride(rideID); rd.State != ride.StateInProgress {
		t.Fatalf("a lock timeout must not end the ride: %s", rd.State)
	}
}

func TestCompleteRide(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture()
	carID, rideID := startedRide(t, f, "B-CP 1")

	if _, err := f.svc.CompleteRide(ctx, "bob", carID); !errors.Is(err, apperr.ErrNotAllowed) {
		t.Fatalf("expected NotAllowed, got %v", err)
	}

	f.clock.Advance(30 * time.Minute)
	res, err := f.svc.CompleteRide(ctx, "alice", carID)
	if err != nil {
		t.Fatalf("CompleteRide: %v", err)
	}
	if res.State != string(ride.StateCompleted) || res.EndedAt == nil {
		t.Fatalf("unexpected result %+v", res)
	}
	if rd := f.ride(rideID); rd.State != ride.StateCompleted {
		t.Fatalf("ride not completed: %s", rd.State)
	}

	got := f.car(carID)
	if got.CurrentRide != nil || !got.LastStateUpdate.Equal(t0.Add(30*time.Minute)) {
		t.Fatalf("car not released: %+v", got)
	}
	if !got.CanBeReserved(f.clock.Now()) {
		t.Fatalf("released car should be reservable")
	}
}

func TestStartRideOnMaintenanceCar(t *testing.T) {
	t.Parallel()
	f := newFixture()
	carID := f.addCar("B-MT 1", berlin, func(c *car.Car) { c.NeedsMaintenance = true })

	if _, err := f.svc.StartRide(context.Background(), "alice", carID); !errors.Is(err, apperr.ErrNotAvailable) {
		t.Fatalf("expected NotAvailable, got %v", err)
	}
}
