package main

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bambu-display/host"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
)

var Flags = []cli.Flag{
	FlagLogLevel,
	FlagLogWriter,
	FlagConfig,
	FlagSection,
	FlagOutput,
	FlagWidth,
	FlagHeight,
	FlagInterval,
	FlagMetricsAddr,
}

func main() {
	var logger zerolog.Logger

	app := cli.App{
		Name:    "bambu-display",
		Usage:   "renders bambu lab printer status for a dashboard display",
		Version: "v0.1.0",
		Flags:   Flags,
		Before: func(ctx *cli.Context) error {
			var logWriter io.Writer
			if ctx.String(FlagLogWriter.Name) == "console" {
				logWriter = zerolog.ConsoleWriter{
					Out:        os.Stderr,
					TimeFormat: time.RFC3339Nano,
				}
			} else if ctx.String(FlagLogWriter.Name) == "json" {
				logWriter = os.Stderr
			} else {
				return fmt.Errorf("invalid log writer: %s", ctx.String(FlagLogWriter.Name))
			}

			logger = zerolog.New(logWriter).With().Timestamp().
				Str("service", "bambu-display").
				Str("module", "main").
				Logger()

			level, err := zerolog.ParseLevel(ctx.String(FlagLogLevel.Name))
			if err != nil {
				return err
			}

			zerolog.SetGlobalLevel(level)

			return nil
		},
		Action: func(ctx *cli.Context) error {
			logger.Info().Msg("service starting...")

			appCtx, cancel := context.WithCancel(logger.WithContext(context.Background()))
			defer cancel()
			go func() {
				c := make(chan os.Signal, 1)
				signal.Notify(c, os.Interrupt, syscall.SIGTERM)

				<-c

				logger.Warn().Msg("interrupt signal received")
				cancel()
			}()

			canvas := image.Rect(0, 0, ctx.Int(FlagWidth.Name), ctx.Int(FlagHeight.Name))
			instances, err := loadModules(appCtx, ctx.String(FlagConfig.Name), ctx.StringSlice(FlagSection.Name), canvas, logger)
			if err != nil {
				return err
			}

			runner, err := host.NewRunner(host.RunnerParams{
				Instances: instances,
				Width:     canvas.Dx(),
				Height:    canvas.Dy(),
				Interval:  ctx.Duration(FlagInterval.Name),
				Output:    ctx.String(FlagOutput.Name),
				Log:       logger.With().Str("module", "runner").Logger(),
			})
			if err != nil {
				closeModules(instances, logger)
				return err
			}

			g, gctx := errgroup.WithContext(appCtx)
			g.Go(func() error {
				return runner.Run(gctx)
			})

			if addr := ctx.String(FlagMetricsAddr.Name); addr != "" {
				server := &http.Server{
					Addr:              addr,
					Handler:           metricsHandler(instances),
					ReadHeaderTimeout: 10 * time.Second,
				}
				g.Go(func() error {
					logger.Info().Str("addr", addr).Msg("metrics server listening")
					if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						return err
					}
					return nil
				})
				g.Go(func() error {
					<-gctx.Done()
					shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer shutdownCancel()
					return server.Shutdown(shutdownCtx)
				})
			}

			logger.Info().Int("modules", len(instances)).Msg("service started")
			if err := g.Wait(); err != nil {
				return err
			}

			logger.Info().Msg("service terminating...")
			return nil
		},
	}

	if err := app.Run(os.Args); err != nil {
		logger.Err(err).Msg("service terminated")
		os.Exit(1)
	}
}

func loadModules(ctx context.Context, path string, only []string, canvas image.Rectangle, logger zerolog.Logger) ([]host.Instance, error) {
	configs, err := host.LoadConfig(path)
	if err != nil {
		return nil, err
	}

	wanted := make(map[string]bool, len(only))
	for _, name := range only {
		wanted[name] = true
	}

	var instances []host.Instance
	for _, cfg := range configs {
		if len(wanted) > 0 && !wanted[cfg.Name] {
			continue
		}

		factory, ok := host.Lookup(cfg.Source)
		if !ok {
			logger.Warn().Str("section", cfg.Name).Str("source", cfg.Source).Msg("unknown module source, skipped")
			continue
		}

		region, err := host.RegionFor(cfg.Section, canvas)
		if err != nil {
			closeModules(instances, logger)
			return nil, fmt.Errorf("%s: %w", cfg.Name, err)
		}

		module, err := factory(ctx, cfg.Name, cfg.Section, logger.With().Str("module", cfg.Source).Logger())
		if err != nil {
			closeModules(instances, logger)
			return nil, fmt.Errorf("%s: %w", cfg.Name, err)
		}

		instances = append(instances, host.Instance{Name: cfg.Name, Module: module, Region: region})
	}

	if len(instances) == 0 {
		return nil, fmt.Errorf("no modules configured in %s, known sources: %v", path, host.Sources())
	}
	return instances, nil
}

func closeModules(instances []host.Instance, logger zerolog.Logger) {
	for _, inst := range instances {
		if err := inst.Module.Close(); err != nil {
			logger.Warn().Err(err).Str("instance", inst.Name).Msg("closing module failed")
		}
	}
}

func metricsHandler(instances []host.Instance) http.Handler {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	registered := make(map[prometheus.Collector]bool)
	for _, inst := range instances {
		c, ok := inst.Module.(host.Collector)
		if !ok {
			continue
		}
		for _, collector := range c.Collectors() {
			if registered[collector] {
				continue
			}
			registered[collector] = true
			registry.MustRegister(collector)
		}
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}
