package cli

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"quiz-analytics/internal/config"
	transport "quiz-analytics/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the analytics API and live dashboard feed",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}

	if cfg.Postgres.URL != "" && cfg.Postgres.Migrate {
		if err := runMigrationsWithConfig(ctx, cfg, logger); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := buildStack(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()
	service := st.service

	if cfg.Refresh.Schedule != "" {
		cronLog := cron.PrintfLogger(logger)
		c := cron.New(cron.WithLogger(cronLog), cron.WithChain(cron.SkipIfStillRunning(cronLog)))
		_, err := c.AddFunc(cfg.Refresh.Schedule, func() {
			runCtx, cancel := context.WithTimeout(ctx, time.Minute)
			defer cancel()
			if _, err := service.Refresh(runCtx); err != nil {
				logger.WithError(err).Warn("scheduled refresh failed")
			}
		})
		if err != nil {
			return err
		}
		c.Start()
		defer c.Stop()
		logger.WithField("schedule", cfg.Refresh.Schedule).Info("scheduled refresh enabled")
	}

	api := transport.NewAPI(service, logger)
	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      api.Routes(transport.NewWSHandler(service, logger)),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := service.Run(ctx); err != nil {
			logger.WithError(err).Error("change feed stopped")
		}
		return nil
	})
	group.Go(func() error {
		logger.WithField("port", finalPort).Info("starting analytics service")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		logger.WithError(err).Error("server failed")
		return err
	}
	return nil
}
