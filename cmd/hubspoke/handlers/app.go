// Package handlers implements the hubspoke commands.
//
// Every handler builds an [App] from the configuration file, which wires the
// cloud provider, deployment store, rollback queue and orchestrator the same
// way the API server does.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/go-logr/logr"

	"github.com/imamik/hubspoke/internal/config"
	"github.com/imamik/hubspoke/internal/logging"
	"github.com/imamik/hubspoke/internal/platform/nats"
	"github.com/imamik/hubspoke/internal/provider"
	"github.com/imamik/hubspoke/internal/provisioning"
	"github.com/imamik/hubspoke/internal/provisioning/rollback"
	"github.com/imamik/hubspoke/internal/store"
)

// Factory function variables - can be replaced in tests.
var (
	// loadConfig reads and validates the configuration file.
	loadConfig = config.Load

	// newLogger builds the process logger.
	newLogger = logging.New

	// connectEvents connects the NATS publisher.
	connectEvents = func(url, subject string, log logr.Logger) (eventPublisher, error) {
		return nats.Connect(url, subject, log)
	}

	// stderr receives log output.
	stderr io.Writer = os.Stderr
)

// eventPublisher is an observer that holds a connection.
type eventPublisher interface {
	provisioning.Observer
	Close() error
}

// Options are the global flags shared by every command.
type Options struct {
	ConfigPath string
	LogLevel   string
	Trace      bool
}

// App is the wired application.
type App struct {
	Config       *config.Config
	Log          logr.Logger
	Cloud        provider.Cloud
	Store        *store.Locked
	Engine       *rollback.Engine
	Queue        *rollback.Queue
	Orchestrator *provisioning.Orchestrator

	closers []func(context.Context) error
}

// NewApp loads the configuration and wires every component.
func NewApp(ctx context.Context, opts Options) (*App, error) {
	cfg, err := loadConfig(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	if opts.LogLevel != "" {
		cfg.Logging.Level = opts.LogLevel
	}

	log, flush, err := newLogger(logging.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: stderr,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	app := &App{Config: cfg, Log: log}
	app.onClose(func(context.Context) error {
		flush()
		return nil
	})

	if err := app.wire(ctx, opts); err != nil {
		_ = app.Close(context.Background())
		return nil, err
	}
	return app, nil
}

func (a *App) wire(ctx context.Context, opts Options) error {
	if opts.Trace {
		shutdown, err := setupTracing(stderr)
		if err != nil {
			return err
		}
		a.onClose(shutdown)
	}

	cloud, err := newCloud(a.Config, a.Log)
	if err != nil {
		return err
	}
	a.Cloud = cloud

	st, err := openStore(ctx, a.Config)
	if err != nil {
		return err
	}
	a.onClose(func(context.Context) error { return st.Close() })
	a.Store = store.NewLocked(st)

	observer := provisioning.Observer(provisioning.NewLogObserver(a.Log))
	if url := a.Config.Events.NATSURL; url != "" {
		pub, err := connectEvents(url, a.Config.Events.Subject, a.Log)
		if err != nil {
			return fmt.Errorf("failed to connect to event bus: %w", err)
		}
		a.onClose(func(context.Context) error { return pub.Close() })
		observer = provisioning.NewMultiObserver(observer, pub)
	}

	a.Engine = rollback.NewEngine(a.Config, cloud, a.Store,
		rollback.WithObserver(observer),
		rollback.WithLogger(a.Log.WithName("rollback")),
	)
	a.Queue = rollback.NewQueue(a.Engine,
		a.Config.Deployment.RollbackWorkers,
		a.Config.Deployment.RollbackQueueSize,
		a.Log.WithName("rollback-queue"),
	)
	a.onClose(a.Queue.Stop)

	orch, err := provisioning.NewOrchestrator(a.Config, cloud, a.Store,
		provisioning.WithRollback(a.Queue),
		provisioning.WithObserver(observer),
		provisioning.WithLogger(a.Log.WithName("orchestrator")),
	)
	if err != nil {
		return err
	}
	a.Orchestrator = orch
	return nil
}

func (a *App) onClose(fn func(context.Context) error) {
	a.closers = append(a.closers, fn)
}

// Close drains the rollback queue and releases every resource in reverse
// order of acquisition. ctx bounds how long queued rollbacks may run.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
