package caragent

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"car-fleet/internal/domain/geo"
	"car-fleet/internal/general/clock"
	"car-fleet/internal/general/config"
	"car-fleet/internal/general/logger"
	"car-fleet/internal/general/metrics"
	"car-fleet/internal/general/rabbitmq"
	"car-fleet/internal/software/caragent"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
)

// Options are the command-line knobs of the vehicle simulator.
type Options struct {
	ConfigPath        string
	Prefetch          int
	TelemetryInterval time.Duration
	Cars              []string
	Home              geo.Point
	InitialRangeKm    float64
	Offline           []string
}

// Run starts the simulated fleet and blocks until ctx is cancelled.
func Run(ctx context.Context, opts Options) error {
	cfg, err := config.LoadFromFile(opts.ConfigPath)
	if err != nil {
		return err
	}

	logger := logger.New("car-agent", cfg.Log.Level, cfg.Log.Format)
	defer logger.Sync()
	ctx = logger.WithRequestID(ctx, "startup-001")

	rmq, err := rabbitmq.ConnectRabbitMQ(ctx, cfg, "car-agent", logger)
	if err != nil {
		logger.Error(ctx, "rabbitmq_connection_failed", "Failed to connect to RabbitMQ", err, nil)
		return err
	}
	defer rmq.Close()

	agent := caragent.NewAgent(logger, rabbitmq.NewMQPublisher(rmq), rmq, clock.NewSystem(), caragent.Options{
		TelemetryInterval: opts.TelemetryInterval,
		DrainPerTickKm:    0.5,
		Home:              opts.Home,
		InitialRangeKm:    opts.InitialRangeKm,
	})
	for _, id := range opts.Cars {
		agent.Track(caragent.NewVehicle(id, opts.Home, opts.InitialRangeKm))
	}
	for _, id := range opts.Offline {
		agent.Vehicle(id).SetOnline(false)
	}

	// health and metrics only
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.GET("/healthz", func(c *gin.Context) {
		if !rmq.Ready() {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Services.CarAgentPort),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	logger.Info(ctx, "service_started",
		fmt.Sprintf("Car Agent started on port %d", cfg.Services.CarAgentPort),
		map[string]any{"port": cfg.Services.CarAgentPort, "cars": len(opts.Cars), "prefetch": opts.Prefetch},
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return agent.Run(gctx, opts.Prefetch)
	})
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shCtx)
	})

	return g.Wait()
}
