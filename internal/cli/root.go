package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"car-fleet/internal/domain/geo"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const (
	ModeCarService = "car-service"
	ModeCarAgent   = "car-agent"
	ModeToken      = "token"
)

// DefaultConfigPath is used when --config is not given.
const DefaultConfigPath = "config/config.yaml"

// CarServiceFlags are the flags of the car-service command.
type CarServiceFlags struct {
	ConfigPath    string
	MaxConcurrent int
	Prefetch      int
}

// CarAgentFlags are the flags of the car-agent command.
type CarAgentFlags struct {
	ConfigPath        string
	Prefetch          int
	TelemetryInterval time.Duration
	Cars              []string
	Offline           []string
	Home              geo.Point
	InitialRangeKm    float64
}

// Runners are the entry points the commands dispatch to.
type Runners struct {
	CarService func(ctx context.Context, flags CarServiceFlags) error
	CarAgent   func(ctx context.Context, flags CarAgentFlags) error
}

// NewRootCommand builds the car-fleet command tree.
func NewRootCommand(ctx context.Context, run Runners) *cobra.Command {
	root := &cobra.Command{
		Use:           "car-fleet",
		Short:         "Car sharing fleet coordinator and vehicle simulator",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newCarServiceCommand(ctx, run.CarService),
		newCarAgentCommand(ctx, run.CarAgent),
		newTokenCommand(),
	)
	return root
}

func newCarServiceCommand(ctx context.Context, run func(context.Context, CarServiceFlags) error) *cobra.Command {
	var flags CarServiceFlags
	cmd := &cobra.Command{
		Use:     ModeCarService,
		Aliases: []string{"service", "cs"},
		Short:   "HTTP API, reservations, rides and car command coordination",
		Example: "  car-fleet car-service --config=config/config.yaml --max-concurrent=150 --prefetch=16",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if flags.MaxConcurrent < 1 {
				return errors.New("--max-concurrent must be >= 1")
			}
			if flags.Prefetch <= 0 {
				return errors.New("--prefetch must be > 0")
			}
			return run(ctx, flags)
		},
	}

	fs := cmd.Flags()
	addConfigFlag(fs, &flags.ConfigPath)
	fs.IntVar(&flags.MaxConcurrent, "max-concurrent", 100, "Maximum number of concurrent HTTP requests to process")
	fs.IntVar(&flags.Prefetch, "prefetch", 16, "RabbitMQ prefetch count for consumer channels")
	return cmd
}

func newCarAgentCommand(ctx context.Context, run func(context.Context, CarAgentFlags) error) *cobra.Command {
	var (
		flags CarAgentFlags
		home  string
	)
	cmd := &cobra.Command{
		Use:     ModeCarAgent,
		Aliases: []string{"agent", "ca"},
		Short:   "Simulated vehicles answering commands and reporting telemetry",
		Example: "  car-fleet car-agent --car=<uuid> --car=<uuid> --home=52.52,13.405 --interval=5s",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if flags.Prefetch <= 0 {
				return errors.New("--prefetch must be > 0")
			}
			if flags.TelemetryInterval <= 0 {
				return errors.New("--interval must be > 0")
			}
			p, err := ParsePoint(home)
			if err != nil {
				return fmt.Errorf("--home: %w", err)
			}
			flags.Home = p
			return run(ctx, flags)
		},
	}

	fs := cmd.Flags()
	addConfigFlag(fs, &flags.ConfigPath)
	fs.IntVar(&flags.Prefetch, "prefetch", 8, "RabbitMQ prefetch count for the command consumer")
	fs.DurationVar(&flags.TelemetryInterval, "interval", 10*time.Second, "How often each vehicle reports its state")
	fs.StringSliceVar(&flags.Cars, "car", nil, "Car id to simulate from the start (repeatable)")
	fs.StringSliceVar(&flags.Offline, "offline", nil, "Car id that never answers commands (repeatable)")
	fs.StringVar(&home, "home", "52.5200,13.4050", "Starting position as latitude,longitude")
	fs.Float64Var(&flags.InitialRangeKm, "range", 300, "Starting remaining range in km")
	return cmd
}

func addConfigFlag(fs *pflag.FlagSet, dst *string) {
	fs.StringVarP(dst, "config", "c", DefaultConfigPath, "Path to the YAML config file")
}

// ParsePoint parses "latitude,longitude".
func ParsePoint(s string) (geo.Point, error) {
	lat, lng, ok := strings.Cut(s, ",")
	if !ok {
		return geo.Point{}, errors.New("expected latitude,longitude")
	}
	var p geo.Point
	if _, err := fmt.Sscanf(strings.TrimSpace(lat)+" "+strings.TrimSpace(lng), "%g %g", &p.Latitude, &p.Longitude); err != nil {
		return geo.Point{}, fmt.Errorf("expected latitude,longitude: %w", err)
	}
	return p, p.Validate()
}
