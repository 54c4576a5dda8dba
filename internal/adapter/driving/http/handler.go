// Package httphandler is the JSON API over the sync and metrics services.
package httphandler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ericfisherdev/devmetrics/internal/application"
	"github.com/ericfisherdev/devmetrics/internal/domain/model"
)

const maxBodyBytes = 1 << 20

// Handler is the HTTP driving adapter that serves the REST API.
type Handler struct {
	accounts *application.AccountService
	sync     *application.SyncService
	metrics  *application.MetricsService
	logger   *slog.Logger
	now      func() time.Time
}

// NewHandler creates a Handler with all required dependencies.
func NewHandler(
	accounts *application.AccountService,
	sync *application.SyncService,
	metrics *application.MetricsService,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		accounts: accounts,
		sync:     sync,
		metrics:  metrics,
		logger:   logger,
		now:      time.Now,
	}
}

// RouterOptions configures the optional endpoints of NewServeMux.
type RouterOptions struct {
	// Notifications is served at /api/v1/ws when set.
	Notifications http.Handler
	// Gatherer backs /metrics; nil uses the default gatherer.
	Gatherer prometheus.Gatherer
	// Registerer receives the HTTP collectors; nil disables them.
	Registerer prometheus.Registerer
	// Cycles serves POST /api/v1/sync when set.
	Cycles CycleTrigger
}

// CycleTrigger runs a full sync and metrics cycle on demand.
type CycleTrigger interface {
	Trigger(ctx context.Context) (application.CycleResult, error)
}

// NewServeMux creates an http.Handler with all routes registered and wrapped
// with request id, metrics, logging and recovery middleware.
func NewServeMux(h *Handler, logger *slog.Logger, opts RouterOptions) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/health", h.Health)

	mux.HandleFunc("GET /api/v1/accounts", h.ListAccounts)
	mux.HandleFunc("POST /api/v1/accounts", h.AddAccount)
	mux.HandleFunc("DELETE /api/v1/accounts/{id}", h.DeleteAccount)
	mux.HandleFunc("POST /api/v1/accounts/{id}/sync", h.SyncAccount)
	mux.HandleFunc("POST /api/v1/accounts/{id}/sync/repositories", h.SyncRepositories)
	mux.HandleFunc("GET /api/v1/accounts/{id}/sync/status", h.SyncStatus)

	mux.HandleFunc("GET /api/v1/repositories", h.ListRepositories)
	mux.HandleFunc("POST /api/v1/repositories/{id}/sync/commits", h.SyncCommits)
	mux.HandleFunc("POST /api/v1/repositories/{id}/sync/pulls", h.SyncPullRequests)

	mux.HandleFunc("GET /api/v1/developers", h.ListDevelopers)
	mux.HandleFunc("GET /api/v1/developers/{id}/metrics", h.DeveloperMetrics)
	mux.HandleFunc("POST /api/v1/developers/{id}/metrics/calculate", h.CalculateDeveloperMetrics)
	mux.HandleFunc("POST /api/v1/metrics/calculate", h.CalculateAllMetrics)

	mux.HandleFunc("GET /api/v1/metrics/velocity", h.Velocity)
	mux.HandleFunc("GET /api/v1/metrics/review-time", h.ReviewTime)
	mux.HandleFunc("GET /api/v1/metrics/heatmap", h.Heatmap)
	mux.HandleFunc("GET /api/v1/metrics/leaderboard", h.Leaderboard)
	mux.HandleFunc("GET /api/v1/metrics/commit-activity", h.CommitActivity)
	mux.HandleFunc("GET /api/v1/metrics/pull-requests", h.PullRequestStats)

	if opts.Cycles != nil {
		mux.HandleFunc("POST /api/v1/sync", triggerCycle(opts.Cycles, logger))
	}
	if opts.Notifications != nil {
		mux.Handle("GET /api/v1/ws", opts.Notifications)
	}

	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{EnableOpenMetrics: true}))

	var metrics *httpMetrics
	if opts.Registerer != nil {
		metrics = newHTTPMetrics(opts.Registerer)
	}

	// Recovery innermost so panics are caught before logging. The request id
	// is outermost so every layer sees it.
	wrapped := recoveryMiddleware(logger, mux)
	wrapped = loggingMiddleware(logger, wrapped)
	wrapped = metricsMiddleware(metrics, wrapped)
	wrapped = requestIDMiddleware(wrapped)

	return wrapped
}

// Health returns a simple health check response.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status: "ok",
		Time:   formatTime(h.now()),
	})
}

func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.accounts.List(r.Context())
	if err != nil {
		writeFailure(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(accounts, toAccountResponse))
}

// AddAccount registers a login and token, replacing the token of a known login.
func (h *Handler) AddAccount(w http.ResponseWriter, r *http.Request) {
	var req application.AddAccountRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	account, err := h.accounts.Add(r.Context(), req)
	if err != nil {
		writeFailure(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAccountResponse(account))
}

func (h *Handler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeFailure(w, h.logger, r, err)
		return
	}
	if err := h.accounts.Delete(r.Context(), id); err != nil {
		writeFailure(w, h.logger, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SyncAccount runs a full sync and responds with its result once it ends.
func (h *Handler) SyncAccount(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeFailure(w, h.logger, r, err)
		return
	}
	writeSyncResult(w, h.sync.SyncAccount(r.Context(), id))
}

func (h *Handler) SyncRepositories(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeFailure(w, h.logger, r, err)
		return
	}
	writeSyncResult(w, h.sync.SyncRepositories(r.Context(), id))
}

func (h *Handler) SyncStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeFailure(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.sync.Status(id))
}

func (h *Handler) SyncCommits(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeFailure(w, h.logger, r, err)
		return
	}
	writeSyncResult(w, h.sync.SyncCommits(r.Context(), id))
}

func (h *Handler) SyncPullRequests(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeFailure(w, h.logger, r, err)
		return
	}
	writeSyncResult(w, h.sync.SyncPullRequests(r.Context(), id))
}

// ListRepositories lists every repository, or one account's with ?account_id=.
func (h *Handler) ListRepositories(w http.ResponseWriter, r *http.Request) {
	q := queryParams{values: r.URL.Query()}
	accountID := q.id("account_id")
	if q.err != nil {
		writeFailure(w, h.logger, r, q.err)
		return
	}

	repos, err := h.accounts.Repositories(r.Context(), accountID)
	if err != nil {
		writeFailure(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(repos, toRepositoryResponse))
}

func (h *Handler) ListDevelopers(w http.ResponseWriter, r *http.Request) {
	devs, err := h.accounts.Developers(r.Context())
	if err != nil {
		writeFailure(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(devs, toDeveloperResponse))
}

func (h *Handler) DeveloperMetrics(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeFailure(w, h.logger, r, err)
		return
	}
	rows, err := h.metrics.DeveloperMetrics(r.Context(), id)
	if err != nil {
		writeFailure(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(rows, toMetricResponse))
}

// calculateBody is the optional body of a developer recalculation. Dates are
// YYYY-MM-DD and the end date is inclusive.
type calculateBody struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

func (h *Handler) CalculateDeveloperMetrics(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeFailure(w, h.logger, r, err)
		return
	}

	var body calculateBody
	if err := decodeBody(w, r, &body); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	start, err := parseDate("start", body.Start, false)
	if err != nil {
		writeFailure(w, h.logger, r, err)
		return
	}
	end, err := parseDate("end", body.End, true)
	if err != nil {
		writeFailure(w, h.logger, r, err)
		return
	}

	rows, err := h.metrics.CalculateForDeveloper(r.Context(), application.CalculateRequest{DeveloperID: id, Start: start, End: end})
	if err != nil {
		writeFailure(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(rows, toMetricResponse))
}

// CalculateAllMetrics recomputes every developer over the default window.
func (h *Handler) CalculateAllMetrics(w http.ResponseWriter, r *http.Request) {
	res := h.metrics.CalculateForAll(r.Context())
	writeJSON(w, statusFor(res.ErrorKind), res)
}

func (h *Handler) Velocity(w http.ResponseWriter, r *http.Request) {
	q := queryParams{values: r.URL.Query()}
	query := application.VelocityQuery{
		DeveloperID: q.id("developer_id"),
		Weeks:       q.count("weeks"),
		Start:       q.date("from", false),
		End:         q.date("to", true),
	}
	if q.err != nil {
		writeFailure(w, h.logger, r, q.err)
		return
	}
	v, err := h.metrics.Velocity(r.Context(), query)
	writeResult(w, h.logger, r, v, err)
}

func (h *Handler) ReviewTime(w http.ResponseWriter, r *http.Request) {
	query, err := rangeQuery(r)
	if err != nil {
		writeFailure(w, h.logger, r, err)
		return
	}
	v, err := h.metrics.ReviewTime(r.Context(), query)
	writeResult(w, h.logger, r, v, err)
}

func (h *Handler) Heatmap(w http.ResponseWriter, r *http.Request) {
	q := queryParams{values: r.URL.Query()}
	query := application.HeatmapQuery{
		DeveloperID: q.id("developer_id"),
		Weeks:       q.count("weeks"),
	}
	if q.err != nil {
		writeFailure(w, h.logger, r, q.err)
		return
	}
	v, err := h.metrics.Heatmap(r.Context(), query)
	writeResult(w, h.logger, r, v, err)
}

func (h *Handler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	q := queryParams{values: r.URL.Query()}
	query := application.LeaderboardQuery{
		Metric: model.LeaderboardMetric(q.values.Get("metric")),
		TopN:   q.count("top_n"),
		Start:  q.date("from", false),
		End:    q.date("to", true),
	}
	if query.Metric == "" {
		query.Metric = model.LeaderboardCommits
	}
	if q.err != nil {
		writeFailure(w, h.logger, r, q.err)
		return
	}
	v, err := h.metrics.Leaderboard(r.Context(), query)
	writeResult(w, h.logger, r, v, err)
}

func (h *Handler) CommitActivity(w http.ResponseWriter, r *http.Request) {
	query, err := rangeQuery(r)
	if err != nil {
		writeFailure(w, h.logger, r, err)
		return
	}
	v, err := h.metrics.CommitActivity(r.Context(), query)
	writeResult(w, h.logger, r, v, err)
}

func (h *Handler) PullRequestStats(w http.ResponseWriter, r *http.Request) {
	query, err := rangeQuery(r)
	if err != nil {
		writeFailure(w, h.logger, r, err)
		return
	}
	v, err := h.metrics.PullRequestStats(r.Context(), query)
	writeResult(w, h.logger, r, v, err)
}

// triggerCycle runs one scheduler cycle and responds with every account's result.
func triggerCycle(cycles CycleTrigger, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := cycles.Trigger(r.Context())
		if err != nil {
			writeFailure(w, logger, r, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// writeResult writes a read model or its error.
func writeResult[T any](w http.ResponseWriter, logger *slog.Logger, r *http.Request, v T, err error) {
	if err != nil {
		writeFailure(w, logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func rangeQuery(r *http.Request) (application.RangeQuery, error) {
	q := queryParams{values: r.URL.Query()}
	query := application.RangeQuery{
		DeveloperID: q.id("developer_id"),
		Start:       q.date("from", false),
		End:         q.date("to", true),
	}
	return query, q.err
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, &model.ValidationError{Field: "id", Reason: "must be a positive integer"}
	}
	return id, nil
}
