package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/nerrad567/hsm-core/internal/archive"
	"github.com/nerrad567/hsm-core/internal/infrastructure/config"
	"github.com/nerrad567/hsm-core/internal/infrastructure/database"
	"github.com/nerrad567/hsm-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/hsm-core/internal/infrastructure/logging"
	"github.com/nerrad567/hsm-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/hsm-core/internal/journal"
	"github.com/nerrad567/hsm-core/internal/process"
	"github.com/nerrad567/hsm-core/migrations"
)

const (
	// configPathEnv names an explicit configuration file.
	configPathEnv = "HSMCORE_CONFIG"

	// defaultEnvSelector names the variable whose value selects an
	// environment section of the configuration file.
	defaultEnvSelector = "HSMCORE_ENV"
)

// defaultSearchPaths are tried in order when no file is named explicitly.
var defaultSearchPaths = []string{
	"configs/config.yaml",
	"/etc/hsm-core/config.yaml",
}

// options holds the persistent flags shared by every subcommand.
type options struct {
	configPath string
	envVar     string

	stdout io.Writer
	stderr io.Writer
}

// searchPaths returns the --config flag, then HSMCORE_CONFIG, then the
// default search paths. An explicit path is the only one tried.
func (o *options) searchPaths() []string {
	if o.configPath != "" {
		return []string{o.configPath}
	}
	if path := os.Getenv(configPathEnv); path != "" {
		return []string{path}
	}
	return defaultSearchPaths
}

func (o *options) loadRegistry() (*config.Registry, error) {
	reg, err := config.Load(o.searchPaths(), o.envVar)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return reg, nil
}

// app is the wired set of components one hsmctl invocation works with.
type app struct {
	reg  *config.Registry
	cfg  *config.Config
	logs *logging.Registry
	log  *logging.Logger

	stderr io.Writer

	manager *archive.Manager

	db      *database.DB
	journal *journal.Journal
	mqtt    *mqtt.Client
	influx  *influxdb.Client

	closers []closer
}

type closer struct {
	name string
	fn   func() error
}

// newApp loads configuration, reconfigures logging from it and builds the
// archive manager. When withSinks is set the configured event sinks are
// opened and attached to the manager as observers.
func newApp(ctx context.Context, o *options, withSinks bool) (*app, error) {
	// Early logger until config is loaded
	logs := logging.NewRegistry(logging.WithStdout(o.stdout))
	logs.AddHandler(logging.NewStreamHandler("stderr", o.stderr), slog.LevelWarn)
	log := logs.Logger("hsmctl")

	reg, err := o.loadRegistry()
	if err != nil {
		return nil, err
	}
	cfg, err := reg.Config()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	if err := configureLogging(logs, cfg.Logging, o.stderr); err != nil {
		_ = logs.Close()
		return nil, err
	}
	log.Debug("starting hsmctl",
		"version", version,
		"commit", commit,
		"build_date", date,
		"config", reg.Path(),
	)

	a := &app{
		reg:    reg,
		cfg:    cfg,
		logs:   logs,
		log:    log,
		stderr: o.stderr,
	}

	var observers []archive.Observer
	if withSinks {
		observers, err = a.openSinks(ctx)
		if err != nil {
			a.Close()
			return nil, err
		}
		if err := a.healthCheck(ctx); err != nil {
			a.Close()
			return nil, fmt.Errorf("health check failed: %w", err)
		}
	}

	runner := process.NewRunner(process.Config{Timeout: cfg.Archive.CommandTimeout})
	runner.SetLogger(logs.Logger("process"))

	archiveLog := logs.Logger("archive")
	backend := archive.NewLFSBackend(cfg.Archive.Binary, runner)
	backend.SetLogger(archiveLog)

	opts := []archive.Option{
		archive.WithLogger(archiveLog),
		archive.WithRetryDelay(cfg.Archive.RetryDelay),
	}
	for _, obs := range observers {
		opts = append(opts, archive.WithObserver(obs))
	}
	a.manager = archive.NewManager(backend, opts...)

	return a, nil
}

// configureLogging replaces the handlers of logs with those configured in
// cfg. Stdout carries command output, so without configured handlers
// diagnostics go to stderr.
func configureLogging(logs *logging.Registry, cfg config.LoggingConfig, stderr io.Writer) error {
	// Previous handlers are owned by this registry, so close them
	if err := logs.Close(); err != nil {
		return fmt.Errorf("closing log handlers: %w", err)
	}
	err := logs.ConfigureFromConfig(cfg)
	if len(logs.Handlers()) == 0 {
		logs.AddHandler(logging.NewStreamHandler("stderr", stderr), logs.Level())
	}
	if err != nil {
		return fmt.Errorf("configuring logging: %w", err)
	}
	return nil
}

// watchLogging follows edits to the configuration file and applies the
// logging section of every successful reload. Other sections take effect
// on the next invocation.
func (a *app) watchLogging(ctx context.Context) {
	stop, err := a.reg.Watch(ctx, func(err error) {
		if err != nil {
			a.log.Warn("config reload failed", "error", err)
			return
		}
		cfg, err := a.reg.Config()
		if err != nil {
			a.log.Warn("reloaded config rejected", "error", err)
			return
		}
		if err := configureLogging(a.logs, cfg.Logging, a.stderr); err != nil {
			a.log.Warn("applying reloaded logging config", "error", err)
			return
		}
		a.log.Info("logging reconfigured", "path", a.reg.Path(), "level", cfg.Logging.Level)
	})
	if err != nil {
		a.log.Warn("not watching config", "error", err)
		return
	}
	a.onClose("config watcher", func() error {
		stop()
		return nil
	})
}

// openSinks connects every enabled event sink. A sink that is enabled but
// unreachable fails the command.
func (a *app) openSinks(ctx context.Context) ([]archive.Observer, error) {
	var observers []archive.Observer

	if a.cfg.Journal.Enabled {
		j, err := a.openJournal(ctx)
		if err != nil {
			return nil, err
		}
		observers = append(observers, j)
	}

	if a.cfg.MQTT.Enabled {
		client, err := a.connectMQTT()
		if err != nil {
			return nil, err
		}
		observers = append(observers, mqtt.NewPublisher(client))
	}

	if a.cfg.InfluxDB.Enabled {
		client, err := influxdb.Connect(ctx, a.cfg.InfluxDB)
		if err != nil {
			return nil, fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		influxLog := a.logs.Logger("influxdb")
		client.SetOnError(func(err error) {
			influxLog.Error("InfluxDB write error", "error", err)
		})
		a.onClose("InfluxDB", client.Close)
		a.influx = client
		a.log.Debug("InfluxDB connected",
			"url", a.cfg.InfluxDB.URL,
			"org", a.cfg.InfluxDB.Org,
			"bucket", a.cfg.InfluxDB.Bucket,
		)
		observers = append(observers, client)
	}

	return observers, nil
}

// openJournalDB opens the journal database without migrating it.
func (a *app) openJournalDB(ctx context.Context) (*database.DB, error) {
	db, err := database.Open(ctx, a.cfg.Journal)
	if err != nil {
		return nil, err
	}
	a.onClose("journal database", db.Close)
	a.db = db
	return db, nil
}

// openJournal opens the journal database and applies pending migrations.
func (a *app) openJournal(ctx context.Context) (*journal.Journal, error) {
	db, err := a.openJournalDB(ctx)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx, migrations.FS); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	a.log.Debug("journal ready", "path", db.Path())

	a.journal = journal.New(db.DB)
	return a.journal, nil
}

func (a *app) connectMQTT() (*mqtt.Client, error) {
	client, err := mqtt.Connect(a.cfg.MQTT)
	if err != nil {
		return nil, fmt.Errorf("connecting to MQTT: %w", err)
	}
	client.SetLogger(a.logs.Logger("mqtt"))
	a.onClose("MQTT", client.Close)
	a.mqtt = client
	a.log.Debug("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", a.cfg.MQTT.Broker.Host, a.cfg.MQTT.Broker.Port),
		"client_id", a.cfg.MQTT.Broker.ClientID,
	)
	return client, nil
}

// healthCheck verifies every opened sink is reachable.
func (a *app) healthCheck(ctx context.Context) error {
	if a.db != nil {
		if err := a.db.HealthCheck(ctx); err != nil {
			return err
		}
	}
	if a.mqtt != nil {
		if err := a.mqtt.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}
	if a.influx != nil {
		if err := a.influx.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	return nil
}

func (a *app) onClose(name string, fn func() error) {
	a.closers = append(a.closers, closer{name: name, fn: fn})
}

// Close releases resources in reverse order of acquisition, then closes
// the log handlers.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.fn(); err != nil {
			a.log.Error("error closing "+c.name, "error", err)
		}
	}
	a.closers = nil

	if err := a.logs.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "closing log handlers: %v\n", err)
	}
}
