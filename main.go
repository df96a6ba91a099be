package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	caragentcmd "car-fleet/cmd/car_agent"
	carservicecmd "car-fleet/cmd/car_service"
	"car-fleet/internal/cli"

	_ "go.uber.org/automaxprocs"
)

func main() {
	// context cancelled on SIGINT/SIGTERM for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	root := cli.NewRootCommand(ctx, cli.Runners{
		CarService: func(ctx context.Context, flags cli.CarServiceFlags) error {
			return carservicecmd.Run(ctx, carservicecmd.Options{
				ConfigPath:    flags.ConfigPath,
				MaxConcurrent: flags.MaxConcurrent,
				Prefetch:      flags.Prefetch,
			})
		},
		CarAgent: func(ctx context.Context, flags cli.CarAgentFlags) error {
			return caragentcmd.Run(ctx, caragentcmd.Options{
				ConfigPath:        flags.ConfigPath,
				Prefetch:          flags.Prefetch,
				TelemetryInterval: flags.TelemetryInterval,
				Cars:              flags.Cars,
				Offline:           flags.Offline,
				Home:              flags.Home,
				InitialRangeKm:    flags.InitialRangeKm,
			})
		},
	})

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
