package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/hyperjump/grain/internal/answer"
	"github.com/hyperjump/grain/internal/index"
	"github.com/hyperjump/grain/internal/server"
	"github.com/hyperjump/grain/internal/watcher"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newServeCmd(a *app) *cobra.Command {
	var (
		host    string
		port    int
		noWatch bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the search and ask API",
		Long: `serve loads the corpus snapshot and serves the HTTP API. When watching is enabled
the snapshot is reloaded whenever 'grain build' or 'grain combine' rewrites it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg := a.cfg
			if host != "" {
				cfg.Server.Host = host
			}
			if port != 0 {
				cfg.Server.Port = port
			}
			logger := a.logger
			defer func() { _ = logger.Sync() }()

			m, err := a.newManager(ctx)
			if err != nil {
				return err
			}
			defer m.Close()
			name := m.CorpusName()
			if ok, err := m.Load(ctx, name); err != nil {
				logger.Warn("corpus snapshot not loaded", zap.String("corpus", name), zap.Error(err))
			} else if !ok {
				logger.Warn("no corpus snapshot yet; searches return 503 until one is built",
					zap.String("corpus", name), zap.String("dir", m.Dir()))
			}

			if cfg.Server.WatchOrDefault() && !noWatch {
				w := newSnapshotWatcher(ctx, m, logger)
				if err := w.Start(ctx); err != nil {
					return fmt.Errorf("failed to start watcher: %w", err)
				}
				defer w.Stop()
			}

			asst := answer.NewAssistant(m, a.newGenerator(ctx), cfg,
				answer.WithLogger(logger),
				answer.WithMetrics(a.metrics))
			srv := server.NewServer(m, asst, a.metrics, cfg, logger)

			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start() }()
			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("server failed: %w", err)
				}
				return nil
			case <-ctx.Done():
			}

			logger.Info("Shutting down...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Stop(shutdownCtx)
		},
	}
	cmd.Flags().StringVar(&host, "host", "", "listen host (default from config)")
	cmd.Flags().IntVar(&port, "port", 0, "listen port (default from config)")
	cmd.Flags().BoolVar(&noWatch, "no-watch", false, "do not reload the snapshot when it changes on disk")
	return cmd
}

// newSnapshotWatcher reloads the corpus whenever its snapshot files are rewritten.
func newSnapshotWatcher(ctx context.Context, m *index.Manager, logger *zap.Logger) *watcher.Watcher {
	name := m.CorpusName()
	indexPath, chunksPath := m.Paths(name)
	return watcher.NewWatcher([]string{indexPath, chunksPath}, func() {
		ok, err := m.Load(ctx, name)
		switch {
		case err != nil:
			logger.Warn("snapshot reload failed", zap.String("corpus", name), zap.Error(err))
		case ok:
			logger.Info("snapshot reloaded", zap.String("corpus", name), zap.Int("chunks", m.Size()))
		}
	}, watcher.WithLogger(logger))
}
