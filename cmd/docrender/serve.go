package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/docrender/internal/async"
	"github.com/joseph-ayodele/docrender/internal/ingest"
	"github.com/joseph-ayodele/docrender/internal/server"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the gRPC health endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer func() {
				closeCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
				defer cancel()
				a.close(closeCtx)
			}()

			if swept, err := a.conv.Sweep(ctx, cfg.Store.SweepGrace); err != nil {
				logger.Warn("startup sweep failed", "error", err)
			} else if len(swept) > 0 {
				logger.Info("startup sweep removed incomplete keys", "count", len(swept))
			}

			queue := async.NewWarmQueue(a.conv, logger,
				async.WithWorkers(cfg.Queue.Workers),
				async.WithQueueSize(cfg.Queue.Size),
				async.WithProcessTimeout(cfg.Queue.Timeout),
			)

			deps := server.Deps{
				Converter:  a.conv,
				Queue:      queue,
				Mount:      a.store.Mount(),
				UploadRoot: cfg.Store.UploadRoot,
				Timeout:    cfg.Render.OfficeTimeout + cfg.Render.RasterizeTimeout + 30*time.Second,
				Logger:     logger,
			}
			if a.attempts != nil {
				deps.Attempts = a.attempts
			}
			router, err := server.NewRouter(deps)
			if err != nil {
				return err
			}

			httpSrv := &http.Server{
				Addr:              cfg.Server.HTTPAddr,
				Handler:           router,
				ReadHeaderTimeout: 10 * time.Second,
			}
			health := server.NewHealthServer(logger)

			var lis net.Listener
			if cfg.Server.GRPCAddr != "" {
				lis, err = net.Listen("tcp", cfg.Server.GRPCAddr)
				if err != nil {
					return err
				}
			}

			errCh := make(chan error, 2)
			if lis != nil {
				go func() {
					if err := health.Serve(lis); err != nil {
						errCh <- err
					}
				}()
			}
			go func() {
				logger.Info("docrender listening", "addr", cfg.Server.HTTPAddr, "artifact_root", a.store.Root())
				if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
			}()

			if len(cfg.Ingest.WatchDirs) > 0 {
				warmer := ingest.NewWarmer(queue, logger)
				go func() {
					err := warmer.Watch(ctx, ingest.WatchConfig{
						Roots:       cfg.Ingest.WatchDirs,
						InitialScan: true,
						SkipHidden:  true,
						Debounce:    cfg.Ingest.Debounce,
					})
					if err != nil {
						logger.Error("upload watcher stopped", "error", err)
					}
				}()
			}

			var serveErr error
			select {
			case <-ctx.Done():
				logger.Info("shutting down")
			case serveErr = <-errCh:
				logger.Error("server error", "error", serveErr)
				stop()
			}

			health.SetNotServing()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			if err := httpSrv.Shutdown(shutdownCtx); err != nil {
				logger.Warn("http shutdown", "error", err)
			}
			queue.Shutdown(shutdownCtx)
			health.Stop()
			if serveErr != nil {
				return fmt.Errorf("serve: %w", serveErr)
			}
			return nil
		},
	}
}
