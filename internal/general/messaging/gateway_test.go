package messaging

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"car-fleet/internal/general/contracts"
	"car-fleet/internal/general/logger"
	"car-fleet/internal/general/rabbitmq"
)

// fakePublisher records messages and optionally answers them.
type fakePublisher struct {
	mu        sync.Mutex
	sent      []rabbitmq.Message
	err       error
	onPublish func(msg rabbitmq.Message)
}

func (p *fakePublisher) Publish(_ context.Context, msg rabbitmq.Message) error {
	p.mu.Lock()
	p.sent = append(p.sent, msg)
	hook := p.onPublish
	p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	if hook != nil {
		hook(msg)
	}
	return nil
}

func TestSendAndAwaitReplyConfirmed(t *testing.T) {
	t.Parallel()

	pub := &fakePublisher{}
	gw := NewGateway(pub, NewRegistry(), logger.NewNop())
	// reply synchronously from inside Publish: the wait must already be registered
	pub.onPublish = func(msg rabbitmq.Message) {
		gw.Deliver(context.Background(), contracts.CarAcknowledgement{CorrelationKey: msg.CorrelationID, CarID: "c1", Confirms: true})
	}

	dest := CarCommand("c1", contracts.CommandRide)
	ack, err := gw.SendAndAwaitReply(context.Background(), dest, "ride:r1:c1", contracts.CarRideRequest{RideID: "r1"}, time.Second)
	if err != nil {
		t.Fatalf("SendAndAwaitReply: %v", err)
	}
	if !ack.Confirms || ack.CarID != "c1" {
		t.Fatalf("unexpected ack %+v", ack)
	}

	msg := pub.sent[0]
	if msg.RoutingKey != "car.command.c1.ride" || msg.ReplyTo != "car.ack.c1" || msg.CorrelationID != "ride:r1:c1" {
		t.Fatalf("unexpected message addressing %+v", msg)
	}
	if gw.waits.Pending() != 0 {
		t.Fatalf("wait should be released")
	}
}

func TestSendAndAwaitReplyTimeoutThenLateAck(t *testing.T) {
	t.Parallel()

	gw := NewGateway(&fakePublisher{}, NewRegistry(), logger.NewNop())

	_, err := gw.SendAndAwaitReply(context.Background(), CarCommand("c1", contracts.CommandLock), "lock:l1:c1", nil, 20*time.Millisecond)
	if !errors.Is(err, ErrReplyTimeout) {
		t.Fatalf("expected ErrReplyTimeout, got %v", err)
	}
	if gw.waits.Pending() != 0 {
		t.Fatalf("timed-out wait should be released")
	}
	if gw.Deliver(context.Background(), contracts.CarAcknowledgement{CorrelationKey: "lock:l1:c1", Confirms: true}) {
		t.Fatalf("late ack must not match anything")
	}
}

func TestSendAndAwaitReplyCallerCancelled(t *testing.T) {
	t.Parallel()

	gw := NewGateway(&fakePublisher{}, NewRegistry(), logger.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := gw.SendAndAwaitReply(ctx, CarCommand("c1", contracts.CommandRide), "ride:r2:c1", nil, time.Second)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestSendAndAwaitReplyPublishFailure(t *testing.T) {
	t.Parallel()

	boom := errors.New("broker down")
	gw := NewGateway(&fakePublisher{err: boom}, NewRegistry(), logger.NewNop())

	_, err := gw.SendAndAwaitReply(context.Background(), CarCommand("c1", contracts.CommandRide), "ride:r3:c1", nil, time.Second)
	if !errors.Is(err, boom) {
		t.Fatalf("expected publish error, got %v", err)
	}
	if gw.waits.Pending() != 0 {
		t.Fatalf("failed send should release its wait")
	}
}

func TestRegistryRejectsDuplicateKeys(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	_, release, err := reg.Register("ride:r1:c1")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, _, err := reg.Register("ride:r1:c1"); !errors.Is(err, ErrDuplicateKey) {
		t.Fatalf("expected ErrDuplicateKey, got %v", err)
	}
	release()
	if _, _, err := reg.Register("ride:r1:c1"); err != nil {
		t.Fatalf("key should be reusable after release: %v", err)
	}
}

func TestRegistryResolvesExactlyOnce(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	replies, release, _ := reg.Register("k")
	defer release()

	var wg sync.WaitGroup
	var mu sync.Mutex
	matched := 0
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if reg.Resolve("k", contracts.CarAcknowledgement{CorrelationKey: "k", Confirms: true}) {
				mu.Lock()
				matched++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if matched != 1 {
		t.Fatalf("expected exactly one resolution, got %d", matched)
	}
	select {
	case <-replies:
	default:
		t.Fatalf("waiter did not receive the ack")
	}
}
