package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	apiserver "github.com/virtforensics/memory-inspector/internal/api_server"
	"github.com/virtforensics/memory-inspector/internal/config"
	"github.com/virtforensics/memory-inspector/internal/events"
	"github.com/virtforensics/memory-inspector/internal/forensics"
	"github.com/virtforensics/memory-inspector/internal/forensics/acquire"
	"github.com/virtforensics/memory-inspector/internal/forensics/runner"
	"github.com/virtforensics/memory-inspector/internal/forensics/symbols"
	"github.com/virtforensics/memory-inspector/internal/forensics/tools"
	"github.com/virtforensics/memory-inspector/internal/report"
	"github.com/virtforensics/memory-inspector/internal/store"
	"github.com/virtforensics/memory-inspector/internal/sweeper"
	"github.com/virtforensics/memory-inspector/pkg/log"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the inspector api",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.New()
		if err != nil {
			zap.S().Fatalw("reading configuration", "error", err)
		}

		logLvl, err := zap.ParseAtomicLevel(cfg.Service.LogLevel)
		if err != nil {
			logLvl = zap.NewAtomicLevelAt(zapcore.InfoLevel)
		}

		logger := log.InitLog(logLvl)
		defer func() { _ = logger.Sync() }()

		undo := zap.ReplaceGlobals(logger)
		defer undo()

		zap.S().Info("Starting inspector API service")
		defer zap.S().Info("Inspector API service stopped")

		zap.S().Info("Initializing data store")
		db, err := store.InitDB(cfg)
		if err != nil {
			zap.S().Fatalw("initializing data store", "error", err)
		}

		s := store.NewStore(db)
		defer s.Close()

		if err := s.InitialMigration(context.Background()); err != nil {
			zap.S().Fatalw("running initial migration", "error", err)
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGHUP, syscall.SIGTERM, syscall.SIGQUIT)
		defer cancel()

		run := runner.NewLocalRunner(cfg.Forensics.ToolTimeout, cfg.Forensics.MaxCaptureBytes)
		registry := tools.NewRegistry()
		if spec, ok := registry.Get("volatility"); ok {
			spec.Binary = cfg.Forensics.VolatilityBinary
			registry.Register(spec)
		}
		producer := events.NewEventProducer(&events.StdoutWriter{})
		acquirer := acquire.NewAcquirer(cfg, run)

		orchestrator := forensics.NewOrchestrator(
			cfg,
			s,
			acquirer,
			symbols.NewResolver(cfg, s, run),
			tools.NewDispatcher(cfg, run, registry),
			registry,
			report.NewRenderer(cfg.Forensics.ReportDirectory),
			producer,
		)

		// jobs interrupted by the previous process settle before new work
		if err := orchestrator.Recover(ctx); err != nil {
			zap.S().Fatalw("recovering interrupted jobs", "error", err)
		}

		go sweeper.New(s, cfg).Run(ctx)

		go func() {
			defer cancel()
			listener, err := newListener(cfg.Service.Address)
			if err != nil {
				zap.S().Fatalw("creating listener", "error", err)
			}

			server := apiserver.New(cfg, s, orchestrator, acquirer, listener)
			if err := server.Run(ctx); err != nil {
				zap.S().Fatalw("running api server", "error", err)
			}
		}()

		go func() {
			defer cancel()
			listener, err := newListener(cfg.Service.MetricsAddress)
			if err != nil {
				zap.S().Fatalw("creating metrics listener", "error", err)
			}

			server := apiserver.NewMetricServer(cfg.Service.MetricsAddress, listener)
			if err := server.Run(ctx); err != nil {
				zap.S().Fatalw("running metrics server", "error", err)
			}
		}()

		<-ctx.Done()
		return nil
	},
}

func newListener(address string) (net.Listener, error) {
	if address == "" {
		address = "localhost:0"
	}
	return net.Listen("tcp", address)
}
