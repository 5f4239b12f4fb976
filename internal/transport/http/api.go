package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/sirupsen/logrus"
	"quiz-analytics/internal/analytics"
	"quiz-analytics/internal/app"
	"quiz-analytics/internal/domain"
)

// API serves the read views and submission ingestion as JSON.
type API struct {
	service *app.AnalyticsService
	log     logrus.FieldLogger
}

func NewAPI(service *app.AnalyticsService, logger logrus.FieldLogger) *API {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &API{service: service, log: logger}
}

// Routes registers every endpoint, the websocket feed included, on a new mux.
func (a *API) Routes(ws *WSHandler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("GET /api/report", a.report)
	mux.HandleFunc("GET /api/overview", a.overview)
	mux.HandleFunc("GET /api/diagnostics", a.diagnostics)
	mux.HandleFunc("GET /api/groups", a.groups)
	mux.HandleFunc("GET /api/leaderboard", a.leaderboard)
	mux.HandleFunc("GET /api/students/{id}", a.studentProfile)
	mux.HandleFunc("GET /api/students/{id}/metrics", a.studentMetrics)
	mux.HandleFunc("GET /api/quizzes/{code}/stats", a.quizStats)
	mux.HandleFunc("POST /api/submissions", a.recordSubmission)
	if ws != nil {
		mux.HandleFunc("GET /ws", ws.ServeWS)
	}
	return mux
}

func (a *API) report(w http.ResponseWriter, r *http.Request) {
	report, err := a.service.Report(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (a *API) overview(w http.ResponseWriter, r *http.Request) {
	overview, err := a.service.Overview(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, overview)
}

func (a *API) diagnostics(w http.ResponseWriter, r *http.Request) {
	diag, err := a.service.Diagnostics(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, diag)
}

func (a *API) groups(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("level")
	if raw == "" {
		raw = string(domain.LevelSection)
	}
	level, err := analytics.ParseLevel(raw)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	groups, err := a.service.Groups(r.Context(), level)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, groups)
}

func (a *API) leaderboard(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	raw := q.Get("scope")
	if raw == "" {
		raw = string(domain.LevelInstitution)
	}
	level, err := analytics.ParseLevel(raw)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	entries, err := a.service.Leaderboard(r.Context(), domain.Scope{
		Level:      level,
		Department: q.Get("department"),
		Section:    q.Get("section"),
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (a *API) studentProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := a.service.StudentProfile(r.Context(), r.PathValue("id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (a *API) studentMetrics(w http.ResponseWriter, r *http.Request) {
	metrics, err := a.service.StudentMetrics(r.Context(), r.PathValue("id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, metrics)
}

func (a *API) quizStats(w http.ResponseWriter, r *http.Request) {
	baseline := 0
	if raw := r.URL.Query().Get("baseline"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "baseline must be an integer")
			return
		}
		baseline = n
	}
	stats, err := a.service.QuizStatistics(r.Context(), r.PathValue("code"), baseline)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (a *API) recordSubmission(w http.ResponseWriter, r *http.Request) {
	var sub domain.Submission
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&sub); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	saved, err := a.service.RecordSubmission(r.Context(), sub)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, saved)
}

// fail maps service errors onto status codes; anything unrecognized is a 500.
func (a *API) fail(w http.ResponseWriter, r *http.Request, err error) {
	var cfgErr *domain.ConfigurationError
	switch {
	case errors.Is(err, domain.ErrNoData):
		writeError(w, http.StatusNotFound, domain.ErrNoData.Error())
	case errors.Is(err, domain.ErrStudentNotFound), errors.Is(err, domain.ErrQuizNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &cfgErr):
		writeError(w, http.StatusUnprocessableEntity, cfgErr.Error())
	case errors.Is(err, domain.ErrInvalidSubmission), errors.Is(err, domain.ErrInvalidScope):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, app.ErrReadOnly):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		a.log.WithError(err).WithField("path", r.URL.Path).Error("request failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

type errorPayload struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorPayload{Error: message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
