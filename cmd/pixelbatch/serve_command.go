package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"pixelbatch/internal/api"
	"pixelbatch/internal/logging"
	"pixelbatch/internal/preflight"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var bind string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the conversion queue over HTTP",
	}
	opts := registerOverrides(cmd)
	cmd.Flags().StringVar(&bind, "bind", "", "Listen address (defaults to api.bind)")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		base, err := ctx.ensureConfig()
		if err != nil {
			return err
		}
		cfg, err := opts.apply(base)
		if err != nil {
			return err
		}
		if value := strings.TrimSpace(bind); value != "" {
			cfg.API.Bind = value
		}
		logger, err := newLogger(cfg)
		if err != nil {
			return err
		}

		runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := os.MkdirAll(cfg.Paths.OutputDir, 0o755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
		for _, result := range preflight.Failed(preflight.RunAll(runCtx, cfg, 0)) {
			logging.WarnWithContext(logger, "preflight check failed", "preflight_failed",
				logging.String("check", result.Name),
				logging.String("detail", result.Detail),
				logging.String(logging.FieldImpact, "conversions to the configured format will fail"),
			)
		}

		a := newApp(cfg, logger)
		srv, err := api.NewServer(api.Deps{
			Config:    cfg,
			Store:     a.store,
			Scheduler: a.scheduler,
			Ingestor:  a.ingestor,
			Registry:  a.registry,
			Packager:  a.packager,
			Logger:    logger,
			Context:   runCtx,
		})
		if err != nil {
			return err
		}
		defer a.scheduler.Stop()
		go a.watchBatches(runCtx)
		return srv.ListenAndServe(runCtx, cfg.API.Bind)
	}
	return cmd
}
