package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	scorehttp "github.com/fyrsmithlabs/scorekeep/internal/http"
	"github.com/fyrsmithlabs/scorekeep/internal/watch"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the workspace over HTTP",
		Long: `Serve the workspace over HTTP until interrupted.

Depending on the configuration the daemon also follows the documents
directory, autosaves the session and republishes project notifications
to NATS.`,
		Args: cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			return withApp(c.Context(), serve)
		},
	}
}

// serve runs the HTTP server and the background workers until ctx is
// cancelled, then shuts the server down gracefully.
func serve(ctx context.Context, a *app) error {
	cfg := a.cfg
	logger := a.logger.Underlying()

	srv, err := scorehttp.NewServer(a.session, logger, &scorehttp.Config{
		Host:    cfg.HTTP.Host,
		Port:    cfg.HTTP.Port,
		Version: version,
	})
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.HTTP.ShutdownTimeout.Duration())
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if cfg.Workspace.Watch {
		w, err := watch.New(cfg.Workspace.DocumentsDir, a.store, logger.Named("watch"))
		if err != nil {
			return err
		}
		if err := w.Start(ctx); err != nil {
			return err
		}
		g.Go(func() error {
			<-ctx.Done()
			w.Stop()
			return nil
		})
	}

	if interval := cfg.Workspace.AutosaveInterval.Duration(); interval > 0 {
		g.Go(func() error {
			autosave(ctx, a, interval)
			return nil
		})
	}

	a.logger.Info(ctx, "scorekeep serving",
		zap.String("addr", cfg.HTTP.Addr()),
		zap.String("documents_dir", cfg.Workspace.DocumentsDir),
		zap.Bool("watch", cfg.Workspace.Watch),
		zap.Bool("nats_connected", a.nc != nil),
	)
	return g.Wait()
}

func autosave(ctx context.Context, a *app, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := a.session.Autosave(ctx); err != nil {
				a.logger.Warn(ctx, "workspace autosave failed", zap.Error(err))
			}
		}
	}
}
