// Package analytics rolls quiz submissions up into per-student, per-group and
// per-quiz views. Every Engine method is a pure function of its arguments.
package analytics

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"quiz-analytics/internal/domain"
)

// TrendConvention decides which half of a score sequence counts as "up".
type TrendConvention string

const (
	// ConventionLiteral labels the sequence "up" when the earlier half outscores the later half.
	ConventionLiteral TrendConvention = "literal"
	// ConventionChronological labels the sequence "up" when the later half outscores the earlier half.
	ConventionChronological TrendConvention = "chronological"
)

// BaselineMode chooses where report-level completion baselines come from.
type BaselineMode string

const (
	// BaselineExpected uses only Quiz.TotalSubmissionsExpected.
	BaselineExpected BaselineMode = "expected"
	// BaselineRoster falls back to the roster size when a quiz has no expected count.
	BaselineRoster BaselineMode = "roster"
)

type Options struct {
	TrendConvention     TrendConvention
	TrendThreshold      float64
	TrendWindow         int
	CompletionBaseline  BaselineMode
	RecentActivityLimit int
	// OnSkip, when set, receives diagnostics every time an operation drops invalid records.
	OnSkip func(domain.Diagnostics)
}

// DefaultOptions mirrors the dashboard's original rules.
func DefaultOptions() Options {
	return Options{
		TrendConvention:     ConventionLiteral,
		TrendThreshold:      5,
		TrendWindow:         10,
		CompletionBaseline:  BaselineExpected,
		RecentActivityLimit: 10,
	}
}

// Engine computes derived views from a submission/roster snapshot.
type Engine struct {
	opts     Options
	validate *validator.Validate
}

// NewEngine fills unset options with defaults.
func NewEngine(opts Options) *Engine {
	def := DefaultOptions()
	if opts.TrendConvention == "" {
		opts.TrendConvention = def.TrendConvention
	}
	if opts.TrendThreshold <= 0 {
		opts.TrendThreshold = def.TrendThreshold
	}
	if opts.TrendWindow <= 0 {
		opts.TrendWindow = def.TrendWindow
	}
	if opts.CompletionBaseline == "" {
		opts.CompletionBaseline = def.CompletionBaseline
	}
	if opts.RecentActivityLimit <= 0 {
		opts.RecentActivityLimit = def.RecentActivityLimit
	}

	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Engine{opts: opts, validate: v}
}

// Options returns the effective options.
func (e *Engine) Options() Options {
	return e.opts
}

// ValidateSubmission checks a single record the way every operation does.
func (e *Engine) ValidateSubmission(s domain.Submission) error {
	if reason := e.check(s); reason != "" {
		return fmt.Errorf("%w: %s", domain.ErrInvalidSubmission, reason)
	}
	return nil
}

// Validate reports how many records the engine would skip and why.
func (e *Engine) Validate(subs []domain.Submission) domain.Diagnostics {
	_, diag := e.partition(subs)
	return diag
}

func (e *Engine) partition(subs []domain.Submission) ([]domain.Submission, domain.Diagnostics) {
	diag := domain.Diagnostics{TotalRecords: len(subs)}
	valid := make([]domain.Submission, 0, len(subs))
	for _, s := range subs {
		if reason := e.check(s); reason != "" {
			if diag.SkipReasons == nil {
				diag.SkipReasons = make(map[string]int)
			}
			diag.SkippedRecords++
			diag.SkipReasons[reason]++
			continue
		}
		valid = append(valid, s)
	}
	return valid, diag
}

// clean drops invalid records and reports them through OnSkip.
func (e *Engine) clean(subs []domain.Submission) ([]domain.Submission, domain.Diagnostics) {
	valid, diag := e.partition(subs)
	if diag.SkippedRecords > 0 && e.opts.OnSkip != nil {
		e.opts.OnSkip(diag)
	}
	return valid, diag
}

func (e *Engine) cleaned(subs []domain.Submission) []domain.Submission {
	valid, _ := e.clean(subs)
	return valid
}

func (e *Engine) check(s domain.Submission) string {
	err := e.validate.Struct(s)
	if err == nil {
		return ""
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return verrs[0].Field() + ":" + verrs[0].Tag()
	}
	return "invalid"
}

func indexByStudent(subs []domain.Submission) map[string][]domain.Submission {
	idx := make(map[string][]domain.Submission)
	for _, s := range subs {
		idx[s.StudentID] = append(idx[s.StudentID], s)
	}
	return idx
}
