package caragent

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"car-fleet/internal/domain/geo"
	"car-fleet/internal/general/clock"
	"car-fleet/internal/general/contracts"
	"car-fleet/internal/general/logger"
	"car-fleet/internal/general/rabbitmq"

	amqp "github.com/rabbitmq/amqp091-go"
)

type recordingPublisher struct {
	mu   sync.Mutex
	sent []rabbitmq.Message
}

func (p *recordingPublisher) Publish(_ context.Context, msg rabbitmq.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, msg)
	return nil
}

func (p *recordingPublisher) messages() []rabbitmq.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]rabbitmq.Message(nil), p.sent...)
}

type idleConsumer struct{}

func (idleConsumer) ConsumeForever(ctx context.Context, _, _ string, _ int, _ rabbitmq.Handler) error {
	<-ctx.Done()
	return nil
}

var (
	t0   = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	home = geo.Point{Latitude: 52.52, Longitude: 13.405}
)

func newTestAgent() (*Agent, *recordingPublisher) {
	pub := &recordingPublisher{}
	a := NewAgent(logger.NewNop(), pub, idleConsumer{}, clock.NewManual(t0), Options{
		TelemetryInterval: time.Millisecond,
		DrainPerTickKm:    1,
		Home:              home,
		InitialRangeKm:    100,
	})
	return a, pub
}

func command(t *testing.T, carID, kind string, body any) amqp.Delivery {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return amqp.Delivery{
		RoutingKey: contracts.CommandRoute(carID, kind),
		ReplyTo:    contracts.AckRoute(carID),
		Body:       raw,
	}
}

func decodeAck(t *testing.T, msg rabbitmq.Message) contracts.CarAcknowledgement {
	t.Helper()
	ack, ok := msg.Body.(contracts.CarAcknowledgement)
	if !ok {
		t.Fatalf("not an acknowledgement: %T", msg.Body)
	}
	return ack
}

func TestRideThenLock(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	a, pub := newTestAgent()

	ride := contracts.CarRideRequest{RideID: "r1", CarID: "c1", UserID: "alice", CorrelationKey: "ride:r1:c1"}
	if err := a.HandleCommand(ctx, command(t, "c1", contracts.CommandRide, ride)); err != nil {
		t.Fatalf("HandleCommand: %v", err)
	}

	lock := contracts.CarLockRequest{LockRequestID: "l1", RideID: "r1", CarID: "c1", Lock: true, CorrelationKey: "lock:l1:c1"}
	if err := a.HandleCommand(ctx, command(t, "c1", contracts.CommandLock, lock)); err != nil {
		t.Fatalf("HandleCommand: %v", err)
	}

	msgs := pub.messages()
	if len(msgs) != 2 {
		t.Fatalf("expected two acknowledgements, got %d", len(msgs))
	}
	for i, want := range []string{"ride:r1:c1", "lock:l1:c1"} {
		ack := decodeAck(t, msgs[i])
		if ack.CorrelationKey != want || !ack.Confirms || ack.CarID != "c1" {
			t.Fatalf("ack %d: %+v", i, ack)
		}
		if msgs[i].RoutingKey != "car.ack.c1" || msgs[i].CorrelationID != want || msgs[i].Exchange != contracts.ExchangeCarTopic {
			t.Fatalf("ack %d misaddressed: %+v", i, msgs[i])
		}
	}
	if !a.Vehicle("c1").Locked() {
		t.Fatalf("vehicle should be locked")
	}
}

func TestLockForOtherRideIsRejected(t *testing.T) {
	t.Parallel()
	a, pub := newTestAgent()

	lock := contracts.CarLockRequest{RideID: "r9", Lock: false, CorrelationKey: "lock:l9:c2"}
	if err := a.HandleCommand(context.Background(), command(t, "c2", contracts.CommandLock, lock)); err != nil {
		t.Fatalf("HandleCommand: %v", err)
	}
	if ack := decodeAck(t, pub.messages()[0]); ack.Confirms {
		t.Fatalf("lock without a ride must be rejected")
	}
}

func TestOfflineVehicleStaysSilent(t *testing.T) {
	t.Parallel()
	a, pub := newTestAgent()
	a.Vehicle("c3").SetOnline(false)

	ride := contracts.CarRideRequest{RideID: "r3", CorrelationKey: "ride:r3:c3"}
	if err := a.HandleCommand(context.Background(), command(t, "c3", contracts.CommandRide, ride)); err != nil {
		t.Fatalf("HandleCommand: %v", err)
	}
	if n := len(pub.messages()); n != 0 {
		t.Fatalf("offline vehicle answered %d times", n)
	}
}

func TestCorrelationFallsBackToProperty(t *testing.T) {
	t.Parallel()
	a, pub := newTestAgent()

	d := command(t, "c4", contracts.CommandRide, contracts.CarRideRequest{RideID: "r4"})
	d.CorrelationId = "ride:r4:c4"
	d.ReplyTo = ""
	if err := a.HandleCommand(context.Background(), d); err != nil {
		t.Fatalf("HandleCommand: %v", err)
	}

	msg := pub.messages()[0]
	if decodeAck(t, msg).CorrelationKey != "ride:r4:c4" || msg.RoutingKey != contracts.AckRoute("c4") {
		t.Fatalf("unexpected ack %+v", msg)
	}

	if err := a.HandleCommand(context.Background(), amqp.Delivery{RoutingKey: "car.command.c4.honk"}); err == nil {
		t.Fatalf("unknown command kinds must be dropped")
	}
}

func TestTelemetryDrivesAndDrains(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	a, pub := newTestAgent()
	a.Track(NewVehicle("c5", home, 100))
	parked := NewVehicle("c6", home, 50)
	a.Track(parked)
	a.Vehicle("c5").AcceptRide("r5")

	a.ReportTelemetry(ctx)

	msgs := pub.messages()
	if len(msgs) != 2 {
		t.Fatalf("expected two state updates, got %d", len(msgs))
	}
	driving := msgs[0].Body.(contracts.CarStateUpdate)
	if msgs[0].RoutingKey != "car.state.c5" || driving.RemainingRangeKm != 99 || driving.Location.Lat <= home.Latitude {
		t.Fatalf("driving vehicle did not move: %+v", driving)
	}
	if !driving.ObservedAt.Equal(t0) {
		t.Fatalf("ObservedAt = %s", driving.ObservedAt)
	}
	still := msgs[1].Body.(contracts.CarStateUpdate)
	if still.RemainingRangeKm != 50 || still.Location.Lat != home.Latitude {
		t.Fatalf("parked vehicle moved: %+v", still)
	}
}

func TestRunStopsWithContext(t *testing.T) {
	t.Parallel()
	a, pub := newTestAgent()
	a.Track(NewVehicle("c7", home, 10))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx, 1) }()

	deadline := time.After(time.Second)
	for len(pub.messages()) == 0 {
		select {
		case <-deadline:
			t.Fatalf("no telemetry reported")
		case <-time.After(time.Millisecond):
		}
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("agent did not stop")
	}
}
