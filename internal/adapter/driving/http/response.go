package httphandler

import (
	"encoding/json"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/ericfisherdev/devmetrics/internal/domain/model"
)

// statusClientClosedRequest reports a request abandoned by its caller.
const statusClientClosedRequest = 499

// writeJSON marshals v to JSON and writes it to the response with the given
// status code. If marshaling fails, a 500 error is written instead.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeError writes a JSON error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// errorResponse is the standard error response body.
type errorResponse struct {
	Error string          `json:"error"`
	Kind  model.ErrorKind `json:"kind,omitempty"`
}

// statusFor maps an error kind to its HTTP status.
func statusFor(kind model.ErrorKind) int {
	switch kind {
	case model.KindNone:
		return http.StatusOK
	case model.KindNotFound:
		return http.StatusNotFound
	case model.KindUnauthorized:
		return http.StatusUnauthorized
	case model.KindServiceUnavailable:
		return http.StatusServiceUnavailable
	case model.KindValidation:
		return http.StatusBadRequest
	case model.KindConflict:
		return http.StatusConflict
	case model.KindCanceled:
		return statusClientClosedRequest
	default:
		return http.StatusInternalServerError
	}
}

func setRetryAfter(w http.ResponseWriter, d time.Duration) {
	if d > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(d.Seconds()))))
	}
}

// writeFailure classifies err and writes the matching error response.
// Unexpected errors are logged and reported without detail.
func writeFailure(w http.ResponseWriter, logger *slog.Logger, r *http.Request, err error) {
	kind := model.KindOf(err)
	status := statusFor(kind)
	if status == http.StatusInternalServerError {
		logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "request_id", requestIDFrom(r.Context()), "error", err)
		writeJSON(w, status, errorResponse{Error: "internal server error", Kind: model.KindUnexpected})
		return
	}
	setRetryAfter(w, model.RetryAfterOf(err))
	writeJSON(w, status, errorResponse{Error: err.Error(), Kind: kind})
}

// writeSyncResult writes a sync result with the status of its error kind.
func writeSyncResult(w http.ResponseWriter, res model.SyncResult) {
	setRetryAfter(w, res.RetryAfter)
	writeJSON(w, statusFor(res.ErrorKind), res)
}

// HealthResponse is the JSON representation of the health check endpoint.
type HealthResponse struct {
	Status string `json:"status"`
	Time   string `json:"time"`
}

// AccountResponse never carries the token.
type AccountResponse struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// RepositoryResponse is the JSON representation of a tracked repository.
type RepositoryResponse struct {
	ID              int64   `json:"id"`
	AccountID       int64   `json:"account_id,omitempty"`
	Platform        string  `json:"platform"`
	ExternalID      string  `json:"external_id"`
	FullName        string  `json:"full_name"`
	Owner           string  `json:"owner"`
	Name            string  `json:"name"`
	Description     string  `json:"description"`
	URL             string  `json:"url"`
	DefaultBranch   string  `json:"default_branch"`
	Language        string  `json:"language"`
	IsPrivate       bool    `json:"is_private"`
	IsFork          bool    `json:"is_fork"`
	IsActive        bool    `json:"is_active"`
	StargazersCount int     `json:"stargazers_count"`
	ForksCount      int     `json:"forks_count"`
	OpenIssuesCount int     `json:"open_issues_count"`
	PushedAt        *string `json:"pushed_at"`
	LastSyncedAt    *string `json:"last_synced_at"`
}

// DeveloperResponse is the JSON representation of a developer identity.
type DeveloperResponse struct {
	ID             int64  `json:"id"`
	Name           string `json:"name"`
	Email          string `json:"email"`
	GitHubUsername string `json:"github_username"`
	AvatarURL      string `json:"avatar_url,omitempty"`
}

// MetricResponse is one stored developer metric.
type MetricResponse struct {
	Kind         string          `json:"kind"`
	Value        float64         `json:"value"`
	RepositoryID *int64          `json:"repository_id,omitempty"`
	Timestamp    string          `json:"timestamp"`
	Metadata     json.RawMessage `json:"metadata"`
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func formatOptionalTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}

func toAccountResponse(a model.Account) AccountResponse {
	return AccountResponse{
		ID:        a.ID,
		Login:     a.Login,
		CreatedAt: formatTime(a.CreatedAt),
		UpdatedAt: formatTime(a.UpdatedAt),
	}
}

func toRepositoryResponse(r model.Repository) RepositoryResponse {
	return RepositoryResponse{
		ID:              r.ID,
		AccountID:       r.AccountID,
		Platform:        string(r.Platform),
		ExternalID:      r.ExternalID,
		FullName:        r.FullName,
		Owner:           r.Owner(),
		Name:            r.Name,
		Description:     r.Description,
		URL:             r.URL,
		DefaultBranch:   r.DefaultBranch,
		Language:        r.Language,
		IsPrivate:       r.IsPrivate,
		IsFork:          r.IsFork,
		IsActive:        r.IsActive,
		StargazersCount: r.StargazersCount,
		ForksCount:      r.ForksCount,
		OpenIssuesCount: r.OpenIssuesCount,
		PushedAt:        formatOptionalTime(r.PushedAt),
		LastSyncedAt:    formatOptionalTime(r.LastSyncedAt),
	}
}

func toDeveloperResponse(d model.Developer) DeveloperResponse {
	return DeveloperResponse{
		ID:             d.ID,
		Name:           d.Name(),
		Email:          d.Email,
		GitHubUsername: d.GitHubUsername,
		AvatarURL:      d.AvatarURL,
	}
}

func toMetricResponse(m model.Metric) MetricResponse {
	meta := json.RawMessage(m.Metadata)
	if !json.Valid(meta) {
		meta = json.RawMessage(`{}`)
	}
	return MetricResponse{
		Kind:         string(m.Kind),
		Value:        m.Value,
		RepositoryID: m.RepositoryID,
		Timestamp:    formatTime(m.Timestamp),
		Metadata:     meta,
	}
}

func mapSlice[T, R any](in []T, fn func(T) R) []R {
	out := make([]R, 0, len(in))
	for _, v := range in {
		out = append(out, fn(v))
	}
	return out
}
