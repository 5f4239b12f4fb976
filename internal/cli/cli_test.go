package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
	"quiz-analytics/internal/config"
	"quiz-analytics/internal/domain"
	"quiz-analytics/internal/infra/sqlite"
)

func quietConfig() config.Config {
	var cfg config.Config
	cfg.Log.Level = "error"
	return cfg
}

func TestReportFromSampleRosterAsJSON(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, runReport(context.Background(), quietConfig(), "json", &out))

	var report domain.Report
	require.NoError(t, json.Unmarshal(out.Bytes(), &report))
	assert.Len(t, report.Leaderboard, 6)
	assert.Equal(t, 12, report.Overview.TotalSubmissions)
}

func TestReportFromSQLiteAsYAML(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "analytics.db")
	store, err := sqlite.NewStore(path)
	require.NoError(t, err)
	score := 64.0
	require.NoError(t, store.SaveStudent(ctx, domain.Student{ID: "a", DisplayName: "Ann", Department: "CS", Section: "A"}))
	require.NoError(t, store.SaveQuiz(ctx, domain.Quiz{Code: "Q1", Subject: "Math", TotalSubmissionsExpected: 1}))
	require.NoError(t, store.SaveSubmission(ctx, domain.Submission{ID: "s1", StudentID: "a", QuizCode: "Q1", Score: &score, SubmittedAt: time.Now().UTC()}))
	require.NoError(t, store.Close())

	cfg := quietConfig()
	cfg.SQLite.Path = path
	var out bytes.Buffer
	require.NoError(t, runReport(ctx, cfg, "yaml", &out))

	var doc map[string]any
	require.NoError(t, yaml.Unmarshal(out.Bytes(), &doc))
	overview, ok := doc["overview"].(map[string]any)
	require.True(t, ok, "expected overview key, got %v", doc)
	assert.Equal(t, 1, overview["totalSubmissions"])
	assert.Equal(t, 64, overview["averageScore"])
}

func TestReportRejectsUnknownFormat(t *testing.T) {
	assert.Error(t, runReport(context.Background(), quietConfig(), "xml", &bytes.Buffer{}))
}

func TestEngineOptionsFromConfig(t *testing.T) {
	cfg := quietConfig()
	cfg.Analytics.TrendConvention = "Chronological"
	cfg.Analytics.CompletionBaseline = "roster"
	logger, err := newLogger(cfg)
	require.NoError(t, err)

	opts, err := engineOptions(cfg, logger)
	require.NoError(t, err)
	assert.EqualValues(t, "chronological", opts.TrendConvention)
	assert.EqualValues(t, "roster", opts.CompletionBaseline)
	require.NotNil(t, opts.OnSkip)

	cfg.Analytics.TrendConvention = "sideways"
	_, err = engineOptions(cfg, logger)
	assert.Error(t, err)
}

func TestNewLoggerRejectsBadSettings(t *testing.T) {
	cfg := quietConfig()
	cfg.Log.Format = "xml"
	_, err := newLogger(cfg)
	assert.Error(t, err)

	cfg = quietConfig()
	cfg.Log.Level = "loud"
	_, err = newLogger(cfg)
	assert.Error(t, err)
}
