// SPDX-License-Identifier: AGPL-3.0-or-later
// SubHub - A resumable long-poll subscription engine for pub/sub channels
// Copyright (C) 2023-2026 Jacob McSwain
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// The source code is available at <https://github.com/USA-RedDragon/SubHub>

package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/USA-RedDragon/SubHub/internal/config"
	"github.com/USA-RedDragon/SubHub/internal/metrics"
	"github.com/USA-RedDragon/SubHub/internal/pprof"
	"github.com/USA-RedDragon/SubHub/internal/pubsub"
	"github.com/USA-RedDragon/SubHub/internal/reftransport"
	"github.com/USA-RedDragon/SubHub/internal/subscribe"
	"github.com/USA-RedDragon/configulator"
	"github.com/go-co-op/gocron/v2"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
	"github.com/ztrue/shutdown"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// NewCommand builds the SubHub root command.
func NewCommand(version, commit string) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "SubHub",
		Version: fmt.Sprintf("%s - %s", version, commit),
		Annotations: map[string]string{
			"version": version,
			"commit":  commit,
		},
		RunE:              runRoot,
		SilenceErrors:     true,
		DisableAutoGenTag: true,
	}
	return cmd
}

func runRoot(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	fmt.Printf("SubHub - %s (%s)\n", cmd.Annotations["version"], cmd.Annotations["commit"])

	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}

	setupLogger(cfg)

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	cleanup, err := setupTracing(cfg)
	if err != nil {
		return fmt.Errorf("failed to setup tracing: %w", err)
	}
	defer func() {
		if err := cleanup(ctx); err != nil {
			slog.Error("failed to shut down tracer", "error", err)
		}
	}()

	startBackgroundServices(cfg)

	ps, err := pubsub.MakePubSub(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to connect to pubsub: %w", err)
	}

	promMetrics := metrics.NewMetrics()

	app, err := newApplication(cfg, ps, promMetrics)
	if err != nil {
		return fmt.Errorf("failed to start subscription manager: %w", err)
	}

	setupShutdownHandlers(app)

	return nil
}

// loadConfig loads the configuration from context.
func loadConfig(ctx context.Context) (*config.Config, error) {
	c, err := configulator.FromContext[config.Config](ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get config from context: %w", err)
	}

	cfg, err := c.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// setupLogger configures the structured logger.
func setupLogger(cfg *config.Config) {
	var logger *slog.Logger
	switch cfg.LogLevel {
	case config.LogLevelDebug:
		logger = slog.New(tint.NewHandler(os.Stdout, &tint.Options{Level: slog.LevelDebug}))
	case config.LogLevelInfo:
		logger = slog.New(tint.NewHandler(os.Stdout, &tint.Options{Level: slog.LevelInfo}))
	case config.LogLevelWarn:
		logger = slog.New(tint.NewHandler(os.Stderr, &tint.Options{Level: slog.LevelWarn}))
	case config.LogLevelError:
		logger = slog.New(tint.NewHandler(os.Stderr, &tint.Options{Level: slog.LevelError}))
	default:
		logger = slog.New(tint.NewHandler(os.Stdout, &tint.Options{Level: slog.LevelInfo}))
	}
	slog.SetDefault(logger)
}

// setupTracing initializes a local OpenTelemetry tracer provider when
// tracing is enabled. There is no OTLP exporter wired up: spans are
// produced and sampled, but nothing ships them off-box. This is enough to
// exercise the SubHub.SubscribeLoop spans the engine emits without
// depending on a collector being reachable.
func setupTracing(cfg *config.Config) (func(context.Context) error, error) {
	noop := func(context.Context) error { return nil }
	if !cfg.Tracing.Enabled {
		return noop, nil
	}

	resources, err := resource.New(
		context.Background(),
		resource.WithAttributes(
			attribute.String("service.name", "SubHub"),
			attribute.String("library.language", "go"),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace resources: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(resources),
	)
	otel.SetTracerProvider(provider)

	return provider.Shutdown, nil
}

// startBackgroundServices starts the metrics and pprof debug servers.
func startBackgroundServices(cfg *config.Config) {
	if err := metrics.CreateMetricsServer(cfg); err != nil {
		slog.Error("failed to start metrics server", "error", err)
	}
	if err := pprof.CreatePProfServer(cfg); err != nil {
		slog.Error("failed to start pprof server", "error", err)
	}
}

// demoListener logs every message and status it receives, standing in for
// a real application's subscribe.Listener. It implements the
// PresenceListener capability as well, so a demo presence event logs
// distinctly instead of falling back through OnMessage.
type demoListener struct{}

func (demoListener) OnMessage(msg subscribe.Message) {
	slog.Info("message received", "channel", msg.Channel, "type", msg.Type, "timetoken", msg.PublishTimetoken)
}

func (demoListener) OnPresence(msg subscribe.Message) {
	slog.Info("presence event received", "channel", msg.Channel, "timetoken", msg.PublishTimetoken)
}

func (demoListener) OnStatus(status subscribe.PublicStatus) {
	if status.Error != nil {
		slog.Warn("status event", "category", status.Category, "error", status.Error)
		return
	}
	slog.Info("status event", "category", status.Category)
}

// application wires the subscription manager to the reference transport
// and the demo publisher, and owns their shutdown order.
type application struct {
	manager   *subscribe.Manager
	ps        pubsub.PubSub
	scheduler gocron.Scheduler
}

func newApplication(cfg *config.Config, ps pubsub.PubSub, promMetrics *metrics.Metrics) (*application, error) {
	transport := reftransport.New(ps)
	server := reftransport.NewSimServer(ps)

	engineCfg := subscribe.DefaultConfig()
	engineCfg.HeartbeatInterval = cfg.Engine.HeartbeatInterval
	engineCfg.HeartbeatNotifications = subscribe.HeartbeatNotifications(cfg.Engine.HeartbeatNotifications)
	engineCfg.RequestMessageCountThreshold = cfg.Engine.RequestMessageCountThreshold
	engineCfg.SuppressLeaveEvents = cfg.Engine.SuppressLeaveEvents
	engineCfg.ReconnectionPolicy = subscribe.ReconnectionPolicy(cfg.Engine.ReconnectionPolicy)
	engineCfg.MaxReconnectionAttempts = cfg.Engine.MaxReconnectionAttempts

	manager, err := subscribe.NewManager(transport, engineCfg, promMetrics)
	if err != nil {
		return nil, fmt.Errorf("failed to construct subscription manager: %w", err)
	}

	manager.AddListener(demoListener{})
	promMetrics.SetListenerCount(1)

	if len(cfg.Demo.Channels) > 0 {
		manager.Subscribe(subscribe.SubscribeOp{Channels: cfg.Demo.Channels})
	}

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create demo publisher scheduler: %w", err)
	}

	if cfg.Demo.PublishInterval > 0 {
		_, err = scheduler.NewJob(
			gocron.DurationJob(cfg.Demo.PublishInterval),
			gocron.NewTask(func() { publishDemoTick(server, cfg.Demo.Channels) }),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to schedule demo publisher: %w", err)
		}
	}
	scheduler.Start()

	return &application{manager: manager, ps: ps, scheduler: scheduler}, nil
}

func publishDemoTick(server *reftransport.SimServer, channels []string) {
	payload, err := json.Marshal(map[string]any{"at": time.Now().UTC().Format(time.RFC3339)})
	if err != nil {
		slog.Error("failed to marshal demo payload", "error", err)
		return
	}
	for _, channel := range channels {
		if err := server.Publish(channel, subscribe.MessageTypeData, payload); err != nil {
			slog.Error("failed to publish demo message", "channel", channel, "error", err)
		}
	}
}

func (a *application) shutdown() {
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := a.scheduler.StopJobs(); err != nil {
			slog.Error("failed to stop demo publisher scheduler jobs", "error", err)
		}
		if err := a.scheduler.Shutdown(); err != nil {
			slog.Error("failed to shut down demo publisher scheduler", "error", err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		a.manager.Destroy(true)
	}()

	wg.Wait()

	if err := a.ps.Close(); err != nil {
		slog.Error("failed to close pubsub", "error", err)
	}
}

// setupShutdownHandlers registers a signal handler that performs an orderly
// shutdown of the subscription manager and its schedulers, then blocks
// until one of the listened-for signals arrives.
func setupShutdownHandlers(app *application) {
	stop := func(sig os.Signal) {
		slog.Error("shutting down due to signal", "signal", sig)

		done := make(chan struct{})
		go func() {
			defer close(done)
			app.shutdown()
		}()

		const timeout = 10 * time.Second
		select {
		case <-done:
			slog.Info("shutdown complete")
			os.Exit(0)
		case <-time.After(timeout):
			slog.Error("shutdown timed out, forcing exit")
			os.Exit(1)
		}
	}
	shutdown.AddWithParam(stop)
	shutdown.Listen(syscall.SIGINT, syscall.SIGKILL, syscall.SIGTERM, syscall.SIGQUIT, syscall.SIGHUP)
}
