// Package main is the entry point of the JobGuard daemon.
// It assembles the resilience core and runs its maintenance schedule.
package main

import (
	"context"
	"flag"
	"os"

	"JobGuard/internal/biz"
	"JobGuard/internal/conf"
	"JobGuard/internal/service"
	zapLogger "JobGuard/pkg/log"

	"github.com/go-kratos/kratos/v2"
	"github.com/go-kratos/kratos/v2/log"

	_ "go.uber.org/automaxprocs"
)

// go build -ldflags "-X main.Version=x.y.z"
var (
	// Name is the name of the compiled software.
	Name = "JobGuard"
	// Version is the version of the compiled software.
	Version string
	// flagconf is the config flag.
	flagconf string

	id, _ = os.Hostname()
)

func init() {
	flag.StringVar(&flagconf, "conf", "../../configs/config.yaml", "config path, eg: -conf config.yaml")
}

func newApp(logger log.Logger, runner *service.JobRunner, pool *biz.ResourcePool) *kratos.App {
	maintenance := NewMaintenanceCron(pool, runner, logger)

	return kratos.New(
		kratos.ID(id),
		kratos.Name(Name),
		kratos.Version(Version),
		kratos.Metadata(map[string]string{}),
		kratos.Logger(logger),
		kratos.BeforeStart(func(context.Context) error {
			maintenance.Start()
			return nil
		}),
		kratos.BeforeStop(func(ctx context.Context) error {
			maintenance.Stop()
			// Drop any locks this process still holds so the next run is
			// never blocked by a stale record.
			return runner.Shutdown(ctx)
		}),
	)
}

func main() {
	flag.Parse()

	// Load configuration using Viper with environment variable support
	bc, err := conf.NewBootstrap(flagconf)
	if err != nil {
		// Use fallback logger before Zap is initialized
		log.Fatalf("failed to load configuration: %v", err)
	}

	// Initialize Zap logger from configuration
	zapLog, err := zapLogger.NewZapLogger(bc.Log)
	if err != nil {
		log.Fatalf("failed to initialize zap logger: %v", err)
	}
	defer zapLog.Sync()

	// Create Kratos adapter for Zap logger
	logger := zapLogger.NewKratosAdapter(zapLog)

	logger = log.With(logger,
		"service.id", id,
		"service.name", Name,
		"service.version", Version,
	)

	log.NewHelper(logger).Infow(
		"msg", "JobGuard starting",
		"log.level", bc.Log.Level,
		"log.format", bc.Log.Format,
	)

	app, cleanup, err := wireApp(bc.Guard, bc.Data, logger)
	if err != nil {
		panic(err)
	}
	defer cleanup()

	// start and wait for stop signal
	if err := app.Run(); err != nil {
		panic(err)
	}
}
