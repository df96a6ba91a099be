package carservice

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"car-fleet/internal/general/clock"
	"car-fleet/internal/general/config"
	"car-fleet/internal/general/jwt"
	"car-fleet/internal/general/logger"
	"car-fleet/internal/general/messaging"
	"car-fleet/internal/general/postgres"
	"car-fleet/internal/general/rabbitmq"
	"car-fleet/internal/software/carservice/handler"
	"car-fleet/internal/software/carservice/service"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
)

// Options are the command-line knobs of the car service.
type Options struct {
	ConfigPath    string
	MaxConcurrent int
	Prefetch      int
}

// Run wires the car service and blocks until ctx is cancelled.
func Run(ctx context.Context, opts Options) error {
	// load a config from file
	cfg, err := config.LoadFromFile(opts.ConfigPath)
	if err != nil {
		return err
	}

	// set up a new logger and context for the car service with a static request ID for startup logs
	logger := logger.New("car-service", cfg.Log.Level, cfg.Log.Format)
	defer logger.Sync()
	ctx = logger.WithRequestID(ctx, "startup-001")

	// set up a Postgres connection pool and the schema
	pool, err := postgres.NewPool(ctx, cfg, logger)
	if err != nil {
		logger.Error(ctx, "db_connection_failed", "Failed to initialize Postgres pool", err, nil)
		return err
	}
	defer pool.Close()

	if err := postgres.Migrate(ctx, pool); err != nil {
		logger.Error(ctx, "db_migration_failed", "Failed to apply schema", err, nil)
		return err
	}

	// connect to RabbitMQ
	rmq, err := rabbitmq.ConnectRabbitMQ(ctx, cfg, "car-service", logger)
	if err != nil {
		logger.Error(ctx, "rabbitmq_connection_failed", "Failed to connect to RabbitMQ", err, nil)
		return err
	}
	defer rmq.Close()

	// command gateway: publisher plus the table of pending acknowledgements
	gateway := messaging.NewGateway(rabbitmq.NewMQPublisher(rmq), messaging.NewRegistry(), logger)

	// set up the car service
	svc := service.NewCarService(
		logger,
		postgres.NewUnitOfWork(pool),
		postgres.NewCarRepo(),
		postgres.NewReservationRepo(),
		postgres.NewRideRepo(),
		gateway,
		rmq,
		clock.NewSystem(),
		service.Options{
			AckTimeout:          cfg.Fleet.AckTimeout,
			ReservationHold:     cfg.Fleet.ReservationHold,
			ReservationCooldown: cfg.Fleet.ReservationCooldown,
			NotifyAttempts:      cfg.Fleet.NotifyAttempts,
			NotifyBackoff:       500 * time.Millisecond,
		},
	)

	// set up the HTTP handler and its routes
	gin.SetMode(gin.ReleaseMode)
	httpHandler := handler.NewCarHTTPHandler(svc, logger, jwt.NewManager(cfg.JWT.SecretKey, cfg.JWT.TTL),
		map[string]handler.Probe{
			"postgres": pool.Ping,
			"rabbitmq": func(context.Context) error {
				if !rmq.Ready() {
					return errors.New("not connected")
				}
				return nil
			},
		},
		cfg.JWT.IssueTokens,
	)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Services.CarServicePort),
		Handler:           withConcurrencyLimit(opts.MaxConcurrent, httpHandler.NewRouter()),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		// a ride start waits up to the ack timeout
		WriteTimeout: cfg.Fleet.AckTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	logger.Info(ctx, "service_started",
		fmt.Sprintf("Car Service started on port %d", cfg.Services.CarServicePort),
		map[string]any{"port": cfg.Services.CarServicePort, "max_concurrent": opts.MaxConcurrent, "prefetch": opts.Prefetch},
	)

	g, gctx := errgroup.WithContext(ctx)

	// acknowledgement and telemetry consumers
	g.Go(func() error {
		return svc.RunBackgroundConsumers(gctx, opts.Prefetch)
	})

	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(ctx, "http_server_error", "HTTP server terminated with error", err, map[string]any{"port": cfg.Services.CarServicePort})
			return err
		}
		return nil
	})

	// graceful HTTP shutdown once anything stops
	g.Go(func() error {
		<-gctx.Done()
		shCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		logger.Info(ctx, "shutdown_started", "Starting graceful shutdown", nil)
		if err := srv.Shutdown(shCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(ctx, "http_shutdown_failed", "Failed to gracefully shut down HTTP server", err, nil)
		}
		return nil
	})

	err = g.Wait()
	logger.Info(context.Background(), "service_stopped", "Car Service stopped", nil)
	return err
}

// withConcurrencyLimit wraps an http.Handler with a semaphore-based limiter.
// It controls how many HTTP requests can be in-progress at the same time.
func withConcurrencyLimit(n int, next http.Handler) http.Handler {
	if n <= 0 {
		return next
	}
	sem := make(chan struct{}, n)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case sem <- struct{}{}: // acquire
			defer func() { <-sem }() // release
			next.ServeHTTP(w, r)
		case <-r.Context().Done():
			// client canceled or server is shutting down
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		}
	})
}
