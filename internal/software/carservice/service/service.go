package service

import (
	"time"

	"car-fleet/internal/general/clock"
	"car-fleet/internal/general/logger"
	"car-fleet/internal/ports"
)

// Options are the fleet policies the service enforces.
type Options struct {
	AckTimeout          time.Duration // wait for a car acknowledgement
	ReservationHold     time.Duration // how long a reservation keeps its car
	ReservationCooldown time.Duration // minimum gap between two reservations of one user
	NotifyAttempts      int           // publish attempts for ride initialisation
	NotifyBackoff       time.Duration // base delay between those attempts
}

// carService encapsulates the car coordination logic and dependencies.
type carService struct {
	logger       *logger.Logger
	uow          ports.UnitOfWork
	cars         ports.CarRepository
	reservations ports.ReservationRepository
	rides        ports.RideRepository
	gateway      ports.CommandGateway
	consumer     ports.MessageConsumer
	clock        clock.Clock
	opts         Options
}

// NewCarService creates a new instance of the CarService with the provided dependencies.
func NewCarService(
	logger *logger.Logger,
	uow ports.UnitOfWork,
	cars ports.CarRepository,
	reservations ports.ReservationRepository,
	rides ports.RideRepository,
	gateway ports.CommandGateway,
	consumer ports.MessageConsumer,
	clk clock.Clock,
	opts Options,
) ports.CarService {
	if opts.NotifyAttempts < 1 {
		opts.NotifyAttempts = 1
	}
	if opts.NotifyBackoff <= 0 {
		opts.NotifyBackoff = 200 * time.Millisecond
	}
	if clk == nil {
		clk = clock.NewSystem()
	}

	return &carService{
		logger:       logger,
		uow:          uow,
		cars:         cars,
		reservations: reservations,
		rides:        rides,
		gateway:      gateway,
		consumer:     consumer,
		clock:        clk,
		opts:         opts,
	}
}
