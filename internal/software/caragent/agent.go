package caragent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"car-fleet/internal/domain/geo"
	"car-fleet/internal/general/clock"
	"car-fleet/internal/general/contracts"
	"car-fleet/internal/general/logger"
	"car-fleet/internal/general/messaging"
	"car-fleet/internal/general/rabbitmq"
	"car-fleet/internal/ports"

	amqp "github.com/rabbitmq/amqp091-go"
	"golang.org/x/sync/errgroup"
)

// Options tune the simulation.
type Options struct {
	TelemetryInterval time.Duration
	DrainPerTickKm    float64
	// Vehicles seen for the first time in a command start here.
	Home           geo.Point
	InitialRangeKm float64
}

// Agent simulates the fleet side of the protocol: it answers commands on
// car.command.{id}.{kind} and reports telemetry on car.state.{id}.
type Agent struct {
	logger    *logger.Logger
	publisher messaging.Publisher
	consumer  ports.MessageConsumer
	clock     clock.Clock
	opts      Options

	mu    sync.Mutex
	fleet map[string]*Vehicle
}

func NewAgent(logger *logger.Logger, publisher messaging.Publisher, consumer ports.MessageConsumer, clk clock.Clock, opts Options) *Agent {
	if opts.TelemetryInterval <= 0 {
		opts.TelemetryInterval = 10 * time.Second
	}
	return &Agent{
		logger:    logger,
		publisher: publisher,
		consumer:  consumer,
		clock:     clk,
		opts:      opts,
		fleet:     make(map[string]*Vehicle),
	}
}

// Track adds a vehicle to the simulated fleet.
func (agent *Agent) Track(v *Vehicle) {
	agent.mu.Lock()
	agent.fleet[v.ID()] = v
	agent.mu.Unlock()
}

// Vehicle returns the simulated vehicle for carID, creating it on first use.
func (agent *Agent) Vehicle(carID string) *Vehicle {
	agent.mu.Lock()
	defer agent.mu.Unlock()

	v, ok := agent.fleet[carID]
	if !ok {
		v = NewVehicle(carID, agent.opts.Home, agent.opts.InitialRangeKm)
		agent.fleet[carID] = v
	}
	return v
}

func (agent *Agent) vehicles() []*Vehicle {
	agent.mu.Lock()
	defer agent.mu.Unlock()

	out := make([]*Vehicle, 0, len(agent.fleet))
	for _, v := range agent.fleet {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// Run consumes commands and reports telemetry until ctx is done.
func (agent *Agent) Run(ctx context.Context, prefetch int) error {
	agent.logger.Info(ctx, "car_agent_started", "Starting car agent", map[string]any{
		"vehicles":    len(agent.vehicles()),
		"interval_ms": agent.opts.TelemetryInterval.Milliseconds(),
	})

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return agent.consumer.ConsumeForever(ctx, contracts.QueueCarCommands, "car-agent", prefetch, agent.HandleCommand)
	})
	g.Go(func() error {
		ticker := time.NewTicker(agent.opts.TelemetryInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				agent.ReportTelemetry(ctx)
			}
		}
	})

	err := g.Wait()
	agent.logger.Info(context.Background(), "car_agent_stopped", "Car agent stopped", nil)
	return err
}

// HandleCommand answers one ride or lock command. Offline vehicles stay silent.
func (agent *Agent) HandleCommand(ctx context.Context, d amqp.Delivery) error {
	kind, ok := contracts.CommandKindFromRoute(d.RoutingKey)
	if !ok {
		return fmt.Errorf("unknown command route %q", d.RoutingKey)
	}
	carID, _ := contracts.CarIDFromRoute(d.RoutingKey)
	ctx = agent.logger.WithCarID(ctx, carID)

	v := agent.Vehicle(carID)
	if !v.Online() {
		agent.logger.Debug(ctx, "command_ignored", "Vehicle is offline; not answering", map[string]any{"kind": kind})
		return nil
	}

	var (
		key      string
		confirms bool
	)
	switch kind {
	case contracts.CommandRide:
		var req contracts.CarRideRequest
		if err := json.Unmarshal(d.Body, &req); err != nil {
			return fmt.Errorf("decode ride request: %w", err)
		}
		key = req.CorrelationKey
		confirms = v.AcceptRide(req.RideID)
	case contracts.CommandLock:
		var req contracts.CarLockRequest
		if err := json.Unmarshal(d.Body, &req); err != nil {
			return fmt.Errorf("decode lock request: %w", err)
		}
		key = req.CorrelationKey
		confirms = v.SetLock(req.RideID, req.Lock)
	}
	if key == "" {
		key = d.CorrelationId
	}
	if key == "" {
		return errors.New("command without correlation key")
	}

	replyTo := d.ReplyTo
	if replyTo == "" {
		replyTo = contracts.AckRoute(carID)
	}

	now := agent.clock.Now()
	err := agent.publisher.Publish(ctx, rabbitmq.Message{
		Exchange:      contracts.ExchangeCarTopic,
		RoutingKey:    replyTo,
		CorrelationID: key,
		Body: contracts.CarAcknowledgement{
			CorrelationKey: key,
			CarID:          carID,
			Confirms:       confirms,
			Envelope: contracts.Envelope{
				CorrelationID: key,
				Producer:      contracts.ProducerCarAgent,
				SentAt:        now,
			},
		},
	})
	if err != nil {
		agent.logger.Error(ctx, "ack_publish_failed", "Failed to publish acknowledgement", err, map[string]any{"kind": kind})
		return err
	}

	agent.logger.Info(ctx, "command_answered", "Answered command", map[string]any{"kind": kind, "confirms": confirms})
	return nil
}

// ReportTelemetry publishes the state of every online vehicle.
func (agent *Agent) ReportTelemetry(ctx context.Context) {
	now := agent.clock.Now()
	for _, v := range agent.vehicles() {
		if !v.Online() {
			continue
		}
		state := v.Tick(now, agent.opts.DrainPerTickKm)
		err := agent.publisher.Publish(ctx, rabbitmq.Message{
			Exchange:   contracts.ExchangeCarTopic,
			RoutingKey: contracts.StateRoute(v.ID()),
			Body:       state,
		})
		if err != nil {
			agent.logger.Warn(ctx, "telemetry_publish_failed", err.Error(), map[string]any{"car_id": v.ID()})
		}
	}
}
