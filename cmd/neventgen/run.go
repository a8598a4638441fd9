package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ajitpratap0/neventgen/internal/generator"
	"github.com/ajitpratap0/neventgen/pkg/config"
	"github.com/ajitpratap0/neventgen/pkg/logger"
	"github.com/ajitpratap0/neventgen/pkg/metrics"
	"github.com/ajitpratap0/neventgen/pkg/observability"
	"github.com/ajitpratap0/neventgen/pkg/source"
	"github.com/ajitpratap0/neventgen/pkg/transport"
	"github.com/ajitpratap0/neventgen/pkg/wire"
)

func newRunCmd() *cobra.Command {
	var configFile string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Stream events to a broker",
		Long: `Load the source events, amplify them and stream them to the configured
transport. Settings come from flags, NEVENTGEN_* environment variables and an
optional YAML file, in that order of precedence.

Example:
  neventgen run --source events.nev.zst --multiplier 4 --broker kafka:9092 --topic detector_events`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Resolve(cmd.Flags(), configFile)
			if err != nil {
				return err
			}
			if err := printEffective(cmd.OutOrStdout(), cfg); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			_, err = runStream(ctx, cfg, prometheus.NewRegistry())
			return err
		},
	}

	cmd.Flags().StringVarP(&configFile, "config", "c", "", "Path to a YAML configuration file")
	config.RegisterFlags(cmd.Flags())
	return cmd
}

func printEffective(w io.Writer, cfg *config.StreamConfig) error {
	effective, err := cfg.Effective()
	if err != nil {
		return err
	}
	fmt.Fprintln(w, "# effective configuration")
	fmt.Fprint(w, effective)
	return nil
}

// runStream executes one generator run described by cfg.
func runStream(ctx context.Context, cfg *config.StreamConfig, reg *prometheus.Registry) (generator.Report, error) {
	if err := logger.Init(cfg.Log); err != nil {
		return generator.Report{}, err
	}
	defer func() { _ = logger.Sync() }()

	runID := uuid.NewString()
	ctx = context.WithValue(ctx, logger.RunIDKey, runID)
	ctx = context.WithValue(ctx, logger.TopicKey, cfg.Transport.Topic)
	log := logger.WithContext(ctx).With(zap.String("component", "neventgen-cli"))

	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", zap.Error(err))
		return generator.Report{}, err
	}

	if cfg.Tracing {
		shutdown, err := observability.Init(observability.DefaultTracingConfig(version))
		if err != nil {
			return generator.Report{}, err
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(sctx); err != nil {
				log.Warn("failed to flush spans", zap.Error(err))
			}
		}()
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.New(reg)
	if cfg.MetricsAddr != "" {
		stopMetrics := serveMetrics(cfg.MetricsAddr, reg, log)
		defer stopMetrics()
	}

	batch, err := source.NewAdapter(source.WithLogger(log)).Acquire(ctx, cfg)
	if err != nil {
		log.Error("failed to acquire events", zap.String("source", cfg.Source), zap.Error(err))
		return generator.Report{}, err
	}
	defer batch.Release()

	serializer, err := wire.New(cfg.Format)
	if err != nil {
		return generator.Report{}, err
	}

	tx, err := transport.New(ctx, &cfg.Transport, transport.Options{
		RunID:  runID,
		Format: cfg.Format,
		Logger: log,
	})
	if err != nil {
		log.Error("failed to connect transport", zap.String("transport", cfg.Transport.Kind), zap.Error(err))
		return generator.Report{}, err
	}
	defer func() {
		if err := tx.Close(); err != nil {
			log.Warn("failed to close transport", zap.Error(err))
		}
	}()

	gen, err := generator.New(cfg, serializer, tx,
		generator.WithLogger(log),
		generator.WithMetrics(collector),
		generator.WithRunID(runID))
	if err != nil {
		return generator.Report{}, err
	}
	return gen.Run(ctx, batch)
}

// serveMetrics exposes reg on addr until the returned function is called.
func serveMetrics(addr string, reg *prometheus.Registry, log *zap.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(reg))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("serving metrics", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server failed", zap.Error(err))
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
