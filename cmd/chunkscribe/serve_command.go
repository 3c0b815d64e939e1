package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"chunkscribe/internal/api"
	"chunkscribe/internal/deps"
	"chunkscribe/internal/logging"
	"chunkscribe/internal/preflight"
	"chunkscribe/internal/workflow"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var bind string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API for submitting and tracking transcriptions",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if err := cfg.ValidateCredentials(); err != nil {
				return err
			}
			logger, err := ctx.logger()
			if err != nil {
				return err
			}
			if bind == "" {
				bind = cfg.API.Bind
			}

			lockPath := filepath.Join(cfg.Paths.StateDir, "serve.lock")
			lock := flock.New(lockPath)
			ok, err := lock.TryLock()
			if err != nil {
				return fmt.Errorf("acquire lock: %w", err)
			}
			if !ok {
				return errors.New("another chunkscribe server is already running")
			}
			defer func() {
				if err := lock.Unlock(); err != nil {
					logger.Warn("failed to release server lock", logging.Error(err))
				}
			}()

			store, err := ctx.historyStore()
			if err != nil {
				return err
			}
			var reader api.HistoryReader
			if store != nil {
				reader = store
				if n, err := store.MarkInterrupted(cmd.Context()); err != nil {
					logging.WarnWithContext(logger, "failed to close out interrupted runs", "history_interrupted",
						logging.Error(err),
						logging.String(logging.FieldImpact, "stale runs stay listed as active"),
					)
				} else if n > 0 {
					logger.Info("marked interrupted runs", logging.Int64("count", n))
				}
			}

			overrides := runOverrides{retries: -1}
			factory := func() (*workflow.Pipeline, error) {
				pipelineDeps, settings := buildDependencies(cfg, overrides, store, logger)
				return workflow.NewPipeline(pipelineDeps, settings, logger)
			}
			manager := api.NewManager(factory, pipelineOptions(cfg, overrides), reader, logger)

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			server := api.NewServer(api.ServerConfig{
				Bind:    bind,
				Token:   cfg.API.Token,
				Manager: manager,
				Dependencies: func(c context.Context) []deps.Status {
					return preflight.CheckSystemDeps(c, cfg)
				},
				Logger:    logger,
				StartTime: time.Now(),
			})
			if err := server.Start(runCtx); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Listening on %s\n", server.Addr())
			if cfg.API.Token == "" {
				logging.WarnWithContext(logger, "api token not configured", "api_auth_disabled",
					logging.String(logging.FieldImpact, "any local client can submit runs"),
				)
			}

			<-runCtx.Done()
			server.Stop()
			logger.Info("api server stopped")
			return nil
		},
	}

	cmd.Flags().StringVar(&bind, "bind", "", "Listen address (default from api.bind)")
	return cmd
}
