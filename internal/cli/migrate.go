package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun/migrate"
	"quiz-analytics/internal/config"
	"quiz-analytics/internal/infra/memory"
	"quiz-analytics/internal/infra/postgres"
	pgmigrations "quiz-analytics/internal/infra/postgres/migrations"
)

// NewMigrateCmd applies database migrations.
func NewMigrateCmd(configPath *string) *cobra.Command {
	var seed bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg)
			if err != nil {
				return err
			}
			if err := runMigrationsWithConfig(cmd.Context(), cfg, logger); err != nil {
				return err
			}
			if seed {
				return seedSample(cmd.Context(), cfg, logger)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&seed, "seed", false, "load the demo roster, quizzes and submissions after migrating")
	return cmd
}

func runMigrationsWithConfig(ctx context.Context, cfg config.Config, logger logrus.FieldLogger) error {
	if cfg.Postgres.URL == "" {
		return fmt.Errorf("postgres url not configured")
	}

	db := openBunDB(cfg.Postgres.URL)
	defer db.Close()

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)

	if err := migrator.Init(ctx); err != nil {
		return err
	}

	group, err := migrator.Migrate(ctx)
	if err != nil {
		return err
	}
	if group.IsZero() {
		logger.Info("no new migrations")
		return nil
	}
	logger.WithField("group", group.String()).Info("migrations applied")
	return nil
}

// seedSample copies the in-memory demo data set into Postgres through the writer.
func seedSample(ctx context.Context, cfg config.Config, logger logrus.FieldLogger) error {
	db := openBunDB(cfg.Postgres.URL)
	defer db.Close()
	writer := postgres.NewWriter(db)

	sample := memory.NewSampleStore(time.Now().UTC())
	students, _ := sample.LoadStudents(ctx)
	quizzes, _ := sample.LoadQuizzes(ctx)
	subs, _ := sample.LoadSubmissions(ctx)

	for _, st := range students {
		if err := writer.SaveStudent(ctx, st); err != nil {
			return err
		}
	}
	for _, q := range quizzes {
		if err := writer.SaveQuiz(ctx, q); err != nil {
			return err
		}
	}
	for _, sub := range subs {
		if err := writer.SaveSubmission(ctx, sub); err != nil {
			return err
		}
	}
	logger.WithFields(logrus.Fields{
		"students":    len(students),
		"quizzes":     len(quizzes),
		"submissions": len(subs),
	}).Info("sample data seeded")
	return nil
}
