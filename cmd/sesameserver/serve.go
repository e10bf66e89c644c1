package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/nerrad567/gray-logic-sesame/internal/api"
	"github.com/nerrad567/gray-logic-sesame/internal/audit"
	"github.com/nerrad567/gray-logic-sesame/internal/automation"
	"github.com/nerrad567/gray-logic-sesame/internal/engine/daemon"
	"github.com/nerrad567/gray-logic-sesame/internal/engine/mqttlink"
	"github.com/nerrad567/gray-logic-sesame/internal/history"
	"github.com/nerrad567/gray-logic-sesame/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-sesame/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-sesame/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-sesame/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-sesame/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-sesame/internal/observer"
	"github.com/nerrad567/gray-logic-sesame/internal/preferences"
	"github.com/nerrad567/gray-logic-sesame/internal/sesame"
	_ "github.com/nerrad567/gray-logic-sesame/migrations"
)

func newServeCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the server (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), opts)
		},
	}
}

// runServe runs the server until an interrupt signal. After a reset it
// re-executes the binary so the server starts unregistered.
func runServe(parent context.Context, opts *options) error {
	if parent == nil {
		parent = context.Background()
	}
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	restart := &restarter{cancel: cancel}

	if err := run(ctx, opts.resolveConfigPath(), restart); err != nil {
		return err
	}
	if restart.requested() {
		return reexec()
	}
	return nil
}

// restarter implements sesame.Restarter by stopping the running server;
// runServe then replaces the process.
type restarter struct {
	cancel context.CancelFunc
	flag   atomic.Bool
}

func (r *restarter) Restart() {
	r.flag.Store(true)
	r.cancel()
}

func (r *restarter) requested() bool {
	return r.flag.Load()
}

// reexec replaces the current process with a fresh copy of itself.
func reexec() error {
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("locating executable for restart: %w", err)
	}
	//nolint:gosec // Re-executes this same binary with its original arguments
	if err := syscall.Exec(exe, os.Args, os.Environ()); err != nil {
		return fmt.Errorf("restarting: %w", err)
	}
	return nil
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
func run(ctx context.Context, configPath string, restart sesame.Restarter) error { //nolint:gocognit,gocyclo // linear startup sequence
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting SESAME server",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)

	// Open database
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database ready", "path", cfg.Database.Path)

	prefs := preferences.NewStore(db)
	prefs.SetLogger(log.With("component", "preferences"))
	historyRepo := history.NewSQLiteRepository(db.DB)
	auditRepo := audit.NewSQLiteRepository(db.DB)
	recorder := audit.NewRecorder(auditRepo, log.With("component", "audit"))

	// Connect to MQTT broker
	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	mqttClient.SetLogger(log.With("component", "mqtt"))
	mqttClient.OnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.OnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(ctx, cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Engine link to the BLE daemon
	link, err := mqttlink.New(mqttlink.Options{
		Client:       mqttClient,
		TopicPrefix:  cfg.Engine.TopicPrefix,
		QoS:          mqttClient.QoS(),
		BeginTimeout: cfg.Engine.BeginTimeout,
		MaxSessions:  cfg.Sesame.MaxSessions,
	})
	if err != nil {
		return fmt.Errorf("creating engine link: %w", err)
	}
	link.SetLogger(log.With("component", "engine"))
	defer func() {
		if closeErr := link.Close(); closeErr != nil {
			log.Warn("error closing engine link", "error", closeErr)
		}
	}()

	// Engine daemon (optional)
	var engineDaemon *daemon.Supervisor
	if dc := cfg.Engine.Daemon; dc.Enabled {
		engineDaemon, err = daemon.New(daemon.Options{
			Binary:           dc.Binary,
			Args:             dc.Args,
			Env:              dc.Env,
			RestartDelay:     dc.RestartDelay,
			MaxRestartDelay:  dc.MaxRestartDelay,
			MaxRestarts:      dc.MaxRestarts,
			StopTimeout:      dc.StopTimeout,
			Watchdog:         link.CheckOnline,
			WatchdogInterval: dc.WatchdogInterval,
		})
		if err != nil {
			return fmt.Errorf("creating engine daemon supervisor: %w", err)
		}
		engineDaemon.SetLogger(log.With("component", "engine-daemon"))
		if err := engineDaemon.Start(ctx); err != nil {
			return fmt.Errorf("starting engine daemon: %w", err)
		}
		defer engineDaemon.Stop()
	}

	// Observers
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	var core *sesame.Server
	publisher := observer.NewPublisher(observer.PublisherOptions{
		Client: mqttClient,
		Topics: mqttClient.Topics(),
		QoS:    mqttClient.QoS(),
		Status: func() sesame.Status { return core.Status() },
	})
	historyRecorder := observer.NewHistoryRecorder(historyRepo)
	auditor := observer.NewAuditor(recorder)
	observers := sesame.Observers{
		publisher,
		historyRecorder,
		auditor,
		observer.NewMetrics(registry),
	}
	workers := []interface {
		Start(context.Context)
		Stop()
		SetLogger(observer.Logger)
	}{publisher, historyRecorder, auditor}
	for _, w := range workers {
		w.SetLogger(log.With("component", "observer"))
		w.Start(ctx)
	}
	defer func() {
		for _, w := range workers {
			w.Stop()
		}
	}()
	if influxClient != nil {
		observers = append(observers, observer.NewInfluxRecorder(influxClient))
	}

	var hub *api.Hub
	if cfg.API.Enabled {
		hub = api.NewHub(cfg.WebSocket, log.With("component", "websocket"))
		observers = append(observers, observer.NewStream(hub))
	}

	// SESAME server
	core, triggers, err := newCore(cfg, link, prefs, observers, restart)
	if err != nil {
		return err
	}
	core.SetLogger(log.With("component", "sesame"))

	// Trigger automations
	rules, err := automation.Compile(cfg.Sesame)
	if err != nil {
		return fmt.Errorf("loading automations: %w", err)
	}
	automations, err := automation.NewEngine(automation.Options{
		Locks:     core,
		Publisher: mqttClient,
		QoS:       mqttClient.QoS(),
		Recorder:  recorder,
	})
	if err != nil {
		return fmt.Errorf("creating automation engine: %w", err)
	}
	automations.SetLogger(log.With("component", "automation"))
	for _, rule := range rules {
		triggers[rule.Trigger].On(rule.On, automations.Handler(rule))
	}
	automations.Start(ctx)
	defer automations.Stop()
	if len(rules) > 0 {
		log.Info("automations loaded", "count", len(rules))
	}

	publishStatus := func() { publisher.ServerStatus(core.Status()) }
	runErr := startCore(ctx, core, log, publishStatus)

	lockCommands := observer.NewLockCommands(mqttClient, mqttClient.Topics(), core, recorder)
	lockCommands.SetLogger(log.With("component", "lock-commands"))
	if err := lockCommands.Start(ctx); err != nil {
		return err
	}
	defer func() {
		if stopErr := lockCommands.Stop(); stopErr != nil {
			log.Warn("error stopping lock commands", "error", stopErr)
		}
	}()

	// API server (optional)
	if cfg.API.Enabled {
		checks := map[string]api.HealthChecker{
			"database": db,
			"mqtt":     mqttClient,
		}
		if influxClient != nil {
			checks["influxdb"] = influxClient
		}
		if engineDaemon != nil {
			checks["engine_daemon"] = engineDaemon
		}
		var gatherer prometheus.Gatherer
		if cfg.Metrics.Enabled {
			gatherer = registry
		}
		apiServer, err := api.New(api.Deps{
			Config:      cfg.API,
			WS:          cfg.WebSocket,
			Security:    cfg.Security,
			Logger:      log.With("component", "api"),
			Core:        core,
			History:     historyRepo,
			Audit:       auditRepo,
			Recorder:    recorder,
			Gatherer:    gatherer,
			Checks:      checks,
			ExternalHub: hub,
			Version:     version,
		})
		if err != nil {
			return fmt.Errorf("creating API server: %w", err)
		}
		if err := apiServer.Start(ctx); err != nil {
			return fmt.Errorf("starting API server: %w", err)
		}
		defer func() {
			if closeErr := apiServer.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	} else {
		log.Info("API disabled")
	}

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("initialisation complete, waiting for shutdown signal")

	if err := awaitCore(ctx, runErr, log, publishStatus); err != nil {
		return err
	}
	log.Info("SESAME server stopped")
	return nil
}

// coreRunner is the part of sesame.Server that serve drives.
type coreRunner interface {
	Setup(ctx context.Context) error
	Run(ctx context.Context) error
}

// startCore sets the core up and starts its loop. When Setup fails the
// core stays failed, onFailed publishes that, and the returned channel is
// nil: the API and observers keep serving so the failure stays readable.
func startCore(ctx context.Context, core coreRunner, log *logging.Logger, onFailed func()) <-chan error {
	if err := core.Setup(ctx); err != nil {
		log.Error("SESAME server failed to start, serving status only", "error", err)
		onFailed()
		return nil
	}
	runErr := make(chan error, 1)
	go func() { runErr <- core.Run(ctx) }()
	return runErr
}

// awaitCore blocks until ctx is done. A core that fails while running
// leaves the process up; any other Run error is returned.
func awaitCore(ctx context.Context, runErr <-chan error, log *logging.Logger, onFailed func()) error {
	select {
	case <-ctx.Done():
	case err := <-runErr:
		runErr = nil
		switch {
		case errors.Is(err, sesame.ErrFailed):
			log.Error("SESAME server failed, serving status until shutdown")
			onFailed()
		case err != nil:
			return fmt.Errorf("SESAME server stopped: %w", err)
		}
		<-ctx.Done()
	}

	log.Info("shutting down")
	if runErr != nil {
		if err := <-runErr; err != nil && !errors.Is(err, context.Canceled) {
			log.Warn("SESAME server exited with error", "error", err)
		}
	}
	return nil
}

// newCore builds the sesame.Server and registers the configured triggers,
// returned by name.
func newCore(cfg *config.Config, engine sesame.Engine, prefs *preferences.Store, obs sesame.Observer, restart sesame.Restarter) (*sesame.Server, map[string]*sesame.Trigger, error) {
	initial, err := sesame.ParseLockState(cfg.Sesame.Lock.InitialState)
	if err != nil {
		return nil, nil, fmt.Errorf("shared lock: %w", err)
	}

	core, err := sesame.NewServer(sesame.ServerOptions{
		UUID:   cfg.Sesame.UUID,
		Engine: engine,
		Store:  prefs,
		SharedLock: sesame.LockEntity{
			ID:    cfg.Sesame.Lock.ID,
			Name:  cfg.Sesame.Lock.Name,
			State: initial,
		},
		LockStore:    prefs,
		Observer:     obs,
		Restarter:    restart,
		EchoOrigin:   cfg.Sesame.EchoOrigin,
		PollInterval: cfg.Sesame.PollInterval,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("creating SESAME server: %w", err)
	}

	triggers := make(map[string]*sesame.Trigger, len(cfg.Sesame.Triggers))
	for _, tc := range cfg.Sesame.Triggers {
		trigger, err := triggerConfig(tc)
		if err != nil {
			return nil, nil, err
		}
		t, err := core.AddTrigger(trigger)
		if err != nil {
			return nil, nil, fmt.Errorf("adding trigger %q: %w", tc.Name, err)
		}
		triggers[tc.Name] = t
	}
	return core, triggers, nil
}

// triggerConfig converts a configured trigger. A bound lock without an
// initial state starts unlocked.
func triggerConfig(tc config.TriggerConfig) (sesame.TriggerConfig, error) {
	addr, err := tc.PeerAddress()
	if err != nil {
		return sesame.TriggerConfig{}, fmt.Errorf("trigger %q: %w", tc.Name, err)
	}
	out := sesame.TriggerConfig{
		Name:              tc.Name,
		Address:           addr,
		PublishHistoryTag: tc.PublishesHistoryTag(),
		PublishConnection: tc.PublishesConnection(),
	}
	if tc.Lock != nil {
		lock := &sesame.LockEntity{ID: tc.Lock.ID, Name: tc.Lock.Name, State: sesame.LockUnlocked}
		if tc.Lock.InitialState != "" {
			if lock.State, err = sesame.ParseLockState(tc.Lock.InitialState); err != nil {
				return sesame.TriggerConfig{}, fmt.Errorf("trigger %q lock: %w", tc.Name, err)
			}
		}
		out.Lock = lock
	}
	return out, nil
}

// healthCheck verifies all infrastructure connections are healthy.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	return nil
}
