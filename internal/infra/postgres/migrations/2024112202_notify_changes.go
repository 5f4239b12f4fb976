package migrations

import (
	"context"
	_ "embed"

	"github.com/uptrace/bun"
)

//go:embed 0002_notify_changes.sql
var notifyChangesSQL string

func init() {
	Migrations.MustRegister(
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.ExecContext(ctx, notifyChangesSQL)
			return err
		},
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.ExecContext(ctx, `
DROP TRIGGER IF EXISTS submissions_notify ON submissions;
DROP TRIGGER IF EXISTS students_notify ON students;
DROP TRIGGER IF EXISTS quizzes_notify ON quizzes;
DROP FUNCTION IF EXISTS quiz_analytics_notify()`)
			return err
		},
	)
}
