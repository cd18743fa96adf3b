package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/scorekeep/internal/config"
	"github.com/fyrsmithlabs/scorekeep/internal/document"
	"github.com/fyrsmithlabs/scorekeep/internal/events"
	"github.com/fyrsmithlabs/scorekeep/internal/logging"
	"github.com/fyrsmithlabs/scorekeep/internal/metrics"
	"github.com/fyrsmithlabs/scorekeep/internal/midiimport"
	"github.com/fyrsmithlabs/scorekeep/internal/state"
	"github.com/fyrsmithlabs/scorekeep/internal/telemetry"
	"github.com/fyrsmithlabs/scorekeep/internal/templates"
	"github.com/fyrsmithlabs/scorekeep/internal/vcs"
	"github.com/fyrsmithlabs/scorekeep/internal/workspace"
)

// app holds everything a command needs. Build it with newApp and release
// it with close.
type app struct {
	cfg     *config.Config
	logger  *logging.Logger
	store   *state.Store
	tel     *telemetry.Telemetry
	bus     *events.Bus
	session *workspace.Session
	nc      *nats.Conn
}

// newApp loads the configuration, opens the state store and restores the
// saved workspace session.
func newApp(ctx context.Context, path string) (*app, error) {
	cfg, err := config.LoadWithFile(path)
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logCfg, err := logging.FromSettings(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("invalid logging configuration: %w", err)
	}

	// Telemetry starts first so that the logger can export through it.
	tel, err := telemetry.New(ctx, telemetry.FromSettings(cfg.Telemetry, version), nil)
	if err != nil {
		return nil, err
	}
	logger, err := logging.NewLogger(logCfg, tel.LoggerProvider())
	if err != nil {
		_ = tel.Shutdown(ctx)
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	z := logger.Underlying()
	if h := tel.Health(); h.Degraded {
		logger.Warn(ctx, "telemetry degraded", zap.Error(h.Err))
	}

	store, err := state.Open(cfg.State.Path)
	if err != nil {
		_ = tel.Shutdown(ctx)
		_ = logger.Sync()
		return nil, fmt.Errorf("failed to open state store: %w", err)
	}

	a := &app{
		cfg:    cfg,
		logger: logger,
		store:  store,
		tel:    tel,
		bus:    events.NewBus(z),
	}
	a.bus.Subscribe(metrics.Observer{})
	if err := a.connectNATS(); err != nil {
		// The bridge is optional; the workspace works without it.
		logger.Warn(ctx, "nats bridge disabled", zap.Error(err))
	}

	table, err := templates.Default().WithOverlay(cfg.Workspace.TemplatesDir)
	if err != nil {
		a.close(ctx)
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	root := workspace.New(workspace.Services{
		Logger: z,
		Bus:    a.bus,
		Documents: document.NewFactory(
			document.WithDebugMirror(cfg.Workspace.DebugMirror),
			document.WithLogger(z),
		),
		Templates: table,
		Importer:  midiimport.New(z),
		VCS: vcs.Options{
			Dir:         cfg.VCS.Dir,
			RemoteBase:  cfg.VCS.RemoteBase,
			AuthorName:  cfg.VCS.AuthorName,
			AuthorEmail: cfg.VCS.AuthorEmail,
			Logger:      z,
		},
		DocumentsDir: cfg.Workspace.DocumentsDir,
		Recent:       store,
		Tracer:       tel.Tracer(workspace.InstrumentationName),
	})
	a.session = workspace.NewSession(root, store)

	if err := a.session.Autoload(ctx); err != nil {
		a.close(ctx)
		return nil, fmt.Errorf("failed to restore workspace: %w", err)
	}
	return a, nil
}

func (a *app) connectNATS() error {
	if a.cfg.NATS.URL == "" {
		return nil
	}
	opts := []nats.Option{
		nats.Name("scorekeep"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(time.Second),
	}
	if a.cfg.NATS.Token.IsSet() {
		opts = append(opts, nats.Token(a.cfg.NATS.Token.Value()))
	}
	nc, err := nats.Connect(a.cfg.NATS.URL, opts...)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", a.cfg.NATS.URL, err)
	}
	bridge, err := events.NewNATSBridge(nc, a.cfg.NATS.SubjectPrefix, a.logger.Underlying())
	if err != nil {
		nc.Close()
		return err
	}
	a.nc = nc
	a.bus.Subscribe(bridge)
	return nil
}

// close saves the session and releases every resource. It is safe to call
// on a partially built app.
func (a *app) close(ctx context.Context) {
	var errs []error
	if a.session != nil {
		errs = append(errs, a.session.Close(ctx))
	}
	if a.nc != nil {
		errs = append(errs, a.nc.Drain())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	errs = append(errs, a.tel.Shutdown(ctx))
	if err := errors.Join(errs...); err != nil {
		a.logger.Warn(ctx, "workspace not closed cleanly", zap.Error(err))
	}
	_ = a.logger.Sync() // Best-effort sync
}

// withApp runs fn against a freshly restored workspace and saves it again
// afterwards.
func withApp(ctx context.Context, fn func(ctx context.Context, a *app) error) error {
	a, err := newApp(ctx, configPath)
	if err != nil {
		return err
	}
	defer a.close(context.WithoutCancel(ctx))
	return fn(ctx, a)
}
