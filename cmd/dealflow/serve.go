package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/CavellTopDev/pitchey-app-sub015/api"
	audithook "github.com/CavellTopDev/pitchey-app-sub015/audit_hook"
	"github.com/CavellTopDev/pitchey-app-sub015/engine"
)

func newServeCommand(flags *globalFlags) *cobra.Command {
	var migrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the wake-up scheduler",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := flags.setup()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			st, err := openStore(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer st.Close()

			if migrate {
				if err := st.Migrate(ctx); err != nil {
					return fmt.Errorf("serve: migrate: %w", err)
				}
			}

			statuses, closeCache, err := openCache(ctx, cfg)
			if err != nil {
				return err
			}
			defer closeCache()

			eng, err := engine.New(st,
				engine.WithConfig(cfg),
				engine.WithLogger(logger),
				engine.WithCache(statuses),
				engine.WithExtension(audithook.New(audithook.NewLogRecorder(logger))),
			)
			if err != nil {
				return err
			}

			return serve(ctx, eng, logger)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", false, "apply database migrations before serving")
	return cmd
}

func serve(ctx context.Context, eng *engine.Engine, logger *slog.Logger) error {
	cfg := eng.Config()
	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           api.New(eng, logger).Handler(),
		ReadHeaderTimeout: cfg.HTTP.ShutdownTimeout,
	}

	if err := eng.Start(ctx); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http server listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.HTTP.ShutdownTimeout)
		defer cancel()

		httpErr := srv.Shutdown(shutdownCtx)
		engErr := eng.Stop(shutdownCtx)
		return errors.Join(httpErr, engErr)
	})
	return g.Wait()
}
