package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"car-fleet/internal/domain/apperr"
	"car-fleet/internal/domain/car"
	"car-fleet/internal/domain/geo"
	"car-fleet/internal/domain/reservation"
	"car-fleet/internal/domain/ride"
	"car-fleet/internal/general/clock"
	"car-fleet/internal/general/contracts"
	"car-fleet/internal/general/logger"
	"car-fleet/internal/general/messaging"
	"car-fleet/internal/general/rabbitmq"
	"car-fleet/internal/ports"
)

// ----- in-memory database -----

// carRow mirrors the cars table: back-references are stored as ids and resolved on read.
type carRow struct {
	car           car.Car
	reservationID string
	rideID        string
}

// memDB is a tiny transactional store. One transaction runs at a time, which is a
// stricter version of the row locks the SQL repositories take.
type memDB struct {
	txMu sync.Mutex

	cars         map[string]carRow
	reservations []reservation.Reservation
	rides        map[string]ride.Ride
}

func newMemDB() *memDB {
	return &memDB{cars: map[string]carRow{}, rides: map[string]ride.Ride{}}
}

type snapshot struct {
	cars         map[string]carRow
	reservations []reservation.Reservation
	rides        map[string]ride.Ride
}

func (db *memDB) snapshot() snapshot {
	s := snapshot{
		cars:         make(map[string]carRow, len(db.cars)),
		reservations: append([]reservation.Reservation(nil), db.reservations...),
		rides:        make(map[string]ride.Ride, len(db.rides)),
	}
	for k, v := range db.cars {
		s.cars[k] = v
	}
	for k, v := range db.rides {
		s.rides[k] = v
	}
	return s
}

func (db *memDB) restore(s snapshot) {
	db.cars, db.reservations, db.rides = s.cars, s.reservations, s.rides
}

type txKey struct{}

// fakeUoW serializes transactions and rolls back on error.
type fakeUoW struct{ db *memDB }

func (u fakeUoW) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}
	u.db.txMu.Lock()
	defer u.db.txMu.Unlock()

	before := u.db.snapshot()
	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		u.db.restore(before)
		return err
	}
	return nil
}

// inTx runs fn under the database lock, for test setup and inspection.
func (db *memDB) inTx(fn func()) {
	db.txMu.Lock()
	defer db.txMu.Unlock()
	fn()
}

// ----- repositories -----

type fakeCarRepo struct{ db *memDB }

func (r fakeCarRepo) Create(_ context.Context, c *car.Car) error {
	for _, row := range r.db.cars {
		if row.car.NumberPlate == c.NumberPlate {
			return apperr.AlreadyExists("car with number plate %s already exists", c.NumberPlate)
		}
	}
	r.db.cars[c.ID] = toRow(c)
	return nil
}

func (r fakeCarRepo) Get(_ context.Context, id string) (*car.Car, error) {
	row, ok := r.db.cars[id]
	if !ok {
		return nil, apperr.DoesNotExist("car %s does not exist", id)
	}
	return r.db.resolve(row), nil
}

func (r fakeCarRepo) GetForUpdate(ctx context.Context, id string) (*car.Car, error) {
	return r.Get(ctx, id)
}

func (r fakeCarRepo) Save(_ context.Context, c *car.Car) error {
	if _, ok := r.db.cars[c.ID]; !ok {
		return apperr.DoesNotExist("car %s does not exist", c.ID)
	}
	r.db.cars[c.ID] = toRow(c)
	return nil
}

func (r fakeCarRepo) ExistsByPlate(_ context.Context, plate string) (bool, error) {
	for _, row := range r.db.cars {
		if row.car.NumberPlate == plate {
			return true, nil
		}
	}
	return false, nil
}

func (r fakeCarRepo) FindWithinRadius(_ context.Context, center geo.Point, radiusKm float64) ([]*car.Car, error) {
	var out []*car.Car
	for _, row := range r.db.cars {
		if geo.HaversineKM(center, row.car.Location) <= radiusKm {
			out = append(out, r.db.resolve(row))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return geo.HaversineKM(center, out[i].Location) < geo.HaversineKM(center, out[j].Location)
	})
	return out, nil
}

func toRow(c *car.Car) carRow {
	row := carRow{car: *c}
	row.car.CurrentReservation, row.car.CurrentRide = nil, nil
	if c.CurrentReservation != nil {
		row.reservationID = c.CurrentReservation.ID
	}
	if c.CurrentRide != nil {
		row.rideID = c.CurrentRide.ID
	}
	return row
}

// resolve mimics the outer joins of the SQL repository.
func (db *memDB) resolve(row carRow) *car.Car {
	c := row.car
	if row.reservationID != "" {
		for _, r := range db.reservations {
			if r.ID == row.reservationID {
				c.CurrentReservation = &car.ReservationRef{ID: r.ID, UserID: r.UserID, CreatedOn: r.CreatedOn, ValidUntil: r.ValidUntil}
			}
		}
	}
	if row.rideID != "" {
		if rd, ok := db.rides[row.rideID]; ok {
			c.CurrentRide = &car.RideRef{ID: rd.ID, UserID: rd.UserID, State: rd.State}
		}
	}
	return &c
}

type fakeReservationRepo struct{ db *memDB }

func (r fakeReservationRepo) Create(_ context.Context, res *reservation.Reservation) error {
	r.db.reservations = append(r.db.reservations, *res)
	return nil
}

func (r fakeReservationRepo) MostRecentForUser(_ context.Context, userID string) (*reservation.Reservation, error) {
	var latest *reservation.Reservation
	for i := range r.db.reservations {
		res := r.db.reservations[i]
		if res.UserID == userID && (latest == nil || res.CreatedOn.After(latest.CreatedOn)) {
			latest = &res
		}
	}
	return latest, nil
}

func (r fakeReservationRepo) LockUser(context.Context, string) error { return nil }

type fakeRideRepo struct{ db *memDB }

func (r fakeRideRepo) Create(_ context.Context, rd *ride.Ride) error {
	r.db.rides[rd.ID] = *rd
	return nil
}

func (r fakeRideRepo) Get(_ context.Context, id string) (*ride.Ride, error) {
	rd, ok := r.db.rides[id]
	if !ok {
		return nil, apperr.DoesNotExist("ride %s does not exist", id)
	}
	return &rd, nil
}

func (r fakeRideRepo) Save(_ context.Context, rd *ride.Ride) error {
	r.db.rides[rd.ID] = *rd
	return nil
}

// ----- broker -----

type sentCommand struct {
	dest    messaging.Destination
	key     string
	payload any
}

// fakeGateway answers commands through reply and records everything it sends.
type fakeGateway struct {
	mu        sync.Mutex
	commands  []sentCommand
	delivered []contracts.CarAcknowledgement
	published chan sentCommand
	sendErr   error

	reply func(cmd sentCommand) (contracts.CarAcknowledgement, error)
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		published: make(chan sentCommand, 16),
		reply: func(cmd sentCommand) (contracts.CarAcknowledgement, error) {
			return contracts.CarAcknowledgement{CorrelationKey: cmd.key, Confirms: true}, nil
		},
	}
}

func (g *fakeGateway) Send(_ context.Context, dest messaging.Destination, correlationID string, payload any) error {
	if g.sendErr != nil {
		return g.sendErr
	}
	g.published <- sentCommand{dest: dest, key: correlationID, payload: payload}
	return nil
}

func (g *fakeGateway) SendAndAwaitReply(_ context.Context, dest messaging.Destination, key string, payload any, _ time.Duration) (contracts.CarAcknowledgement, error) {
	cmd := sentCommand{dest: dest, key: key, payload: payload}
	g.mu.Lock()
	g.commands = append(g.commands, cmd)
	reply := g.reply
	g.mu.Unlock()
	return reply(cmd)
}

func (g *fakeGateway) Deliver(_ context.Context, ack contracts.CarAcknowledgement) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.delivered = append(g.delivered, ack)
	return true
}

func (g *fakeGateway) sentCommands() []sentCommand {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]sentCommand(nil), g.commands...)
}

type noopConsumer struct{}

func (noopConsumer) ConsumeForever(ctx context.Context, _, _ string, _ int, _ rabbitmq.Handler) error {
	<-ctx.Done()
	return nil
}

// ----- fixture -----

var t0 = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

var berlin = geo.Point{Latitude: 52.5200, Longitude: 13.4050}

type fixture struct {
	db      *memDB
	gateway *fakeGateway
	clock   *clock.Manual
	svc     *carService
}

func newFixture() *fixture {
	db := newMemDB()
	gw := newFakeGateway()
	clk := clock.NewManual(t0)

	svc := NewCarService(
		logger.NewNop(),
		fakeUoW{db: db},
		fakeCarRepo{db: db},
		fakeReservationRepo{db: db},
		fakeRideRepo{db: db},
		gw,
		noopConsumer{},
		clk,
		Options{
			AckTimeout:          time.Second,
			ReservationHold:     2 * time.Hour,
			ReservationCooldown: 120 * time.Minute,
			NotifyAttempts:      3,
			NotifyBackoff:       time.Millisecond,
		},
	).(*carService)

	return &fixture{db: db, gateway: gw, clock: clk, svc: svc}
}

// addCar stores a ready car and returns its id.
func (f *fixture) addCar(plate string, at geo.Point, mutate ...func(*car.Car)) string {
	c, err := car.NewCar(plate, at, 250, true, true, f.clock.Now())
	if err != nil {
		panic(err)
	}
	for _, m := range mutate {
		m(c)
	}
	f.db.inTx(func() { f.db.cars[c.ID] = toRow(c) })
	return c.ID
}

// car reads the current state of a car as the repository would return it.
func (f *fixture) car(id string) *car.Car {
	var out *car.Car
	f.db.inTx(func() { out = f.db.resolve(f.db.cars[id]) })
	return out
}

func (f *fixture) ride(id string) ride.Ride {
	var out ride.Ride
	f.db.inTx(func() { out = f.db.rides[id] })
	return out
}

func (f *fixture) onlyRide() ride.Ride {
	var out ride.Ride
	f.db.inTx(func() {
		if len(f.db.rides) != 1 {
			panic("expected exactly one ride")
		}
		for _, rd := range f.db.rides {
			out = rd
		}
	})
	return out
}

var _ ports.CommandGateway = (*fakeGateway)(nil)
