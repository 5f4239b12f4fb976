package cli

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"quiz-analytics/internal/analytics"
	"quiz-analytics/internal/app"
	"quiz-analytics/internal/config"
	"quiz-analytics/internal/domain"
	"quiz-analytics/internal/infra/memory"
	"quiz-analytics/internal/infra/postgres"
	redisinfra "quiz-analytics/internal/infra/redis"
	"quiz-analytics/internal/infra/sqlite"
)

func newLogger(cfg config.Config) (*logrus.Logger, error) {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)

	level := logrus.InfoLevel
	if cfg.Log.Level != "" {
		parsed, err := logrus.ParseLevel(cfg.Log.Level)
		if err != nil {
			return nil, fmt.Errorf("log.level: %w", err)
		}
		level = parsed
	}
	logger.SetLevel(level)

	switch strings.ToLower(cfg.Log.Format) {
	case "", "text":
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		return nil, fmt.Errorf("log.format: unknown format %q", cfg.Log.Format)
	}
	return logger, nil
}

func engineOptions(cfg config.Config, logger logrus.FieldLogger) (analytics.Options, error) {
	opts := analytics.Options{
		TrendConvention:     analytics.TrendConvention(strings.ToLower(cfg.Analytics.TrendConvention)),
		TrendThreshold:      cfg.Analytics.TrendThreshold,
		TrendWindow:         cfg.Analytics.TrendWindow,
		CompletionBaseline:  analytics.BaselineMode(strings.ToLower(cfg.Analytics.CompletionBaseline)),
		RecentActivityLimit: cfg.Analytics.RecentActivityLimit,
		OnSkip: func(d domain.Diagnostics) {
			logger.WithFields(logrus.Fields{
				"skipped": d.SkippedRecords,
				"total":   d.TotalRecords,
				"reasons": d.SkipReasons,
			}).Warn("invalid submissions skipped")
		},
	}
	switch opts.TrendConvention {
	case "", analytics.ConventionLiteral, analytics.ConventionChronological:
	default:
		return opts, fmt.Errorf("analytics.trend_convention: unknown value %q", cfg.Analytics.TrendConvention)
	}
	switch opts.CompletionBaseline {
	case "", analytics.BaselineExpected, analytics.BaselineRoster:
	default:
		return opts, fmt.Errorf("analytics.completion_baseline: unknown value %q", cfg.Analytics.CompletionBaseline)
	}
	return opts, nil
}

func openBunDB(url string) *bun.DB {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(url)))
	return bun.NewDB(sqldb, pgdialect.New())
}

// stack is the wired service plus everything that must be closed on exit.
type stack struct {
	service *app.AnalyticsService
	closers []func()
}

func (s *stack) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// buildStack picks the snapshot source (Postgres, then SQLite, then the
// in-memory sample roster), the report cache (Redis or memory) and the change
// notifier (Postgres LISTEN, then Redis pub/sub, then memory).
func buildStack(ctx context.Context, cfg config.Config, logger *logrus.Logger) (*stack, error) {
	opts, err := engineOptions(cfg, logger)
	if err != nil {
		return nil, err
	}
	engine := analytics.NewEngine(opts)
	st := &stack{}

	var (
		source   app.SnapshotSource
		writer   app.SubmissionWriter
		notifier app.ChangeNotifier
	)
	switch {
	case cfg.Postgres.URL != "":
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		st.closers = append(st.closers, pool.Close)
		db := openBunDB(cfg.Postgres.URL)
		st.closers = append(st.closers, func() { _ = db.Close() })

		source = postgres.NewSnapshotLoader(pool)
		writer = postgres.NewWriter(db)
		notifier = postgres.NewNotifier(pool)
		logger.Info("using postgres snapshot source")
	case cfg.SQLite.Path != "":
		store, err := sqlite.NewStore(cfg.SQLite.Path)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		st.closers = append(st.closers, func() { _ = store.Close() })
		source, writer = store, store
		logger.WithField("path", cfg.SQLite.Path).Info("using sqlite snapshot source")
	default:
		store := memory.NewSampleStore(time.Now().UTC())
		source, writer = store, store
		logger.Info("using in-memory sample roster")
	}

	builder := app.NewReportBuilder(source, engine)
	ttl := config.TTLDuration(cfg.Cache.TTL, time.Minute)

	var reports app.ReportRepository
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		st.closers = append(st.closers, func() { _ = client.Close() })
		reports = redisinfra.NewReportRepository(client, builder, cfg.Redis.Prefix, ttl)
		if notifier == nil {
			notifier = redisinfra.NewNotifier(client, cfg.Redis.Prefix)
		}
	} else {
		reports = memory.NewReportRepository(builder, ttl)
	}
	if notifier == nil {
		notifier = memory.NewNotifier()
	}

	st.service = app.NewAnalyticsService(app.Deps{
		Engine:   engine,
		Builder:  builder,
		Reports:  reports,
		Writer:   writer,
		Notifier: notifier,
		Logger:   logger,
		Debounce: config.TTLDuration(cfg.Refresh.Debounce, 500*time.Millisecond),
	})
	return st, nil
}
