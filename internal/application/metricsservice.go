package application

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ericfisherdev/devmetrics/internal/domain/metrics"
	"github.com/ericfisherdev/devmetrics/internal/domain/model"
	"github.com/ericfisherdev/devmetrics/internal/domain/port/driven"
	"github.com/ericfisherdev/devmetrics/internal/telemetry"
)

// Defaults applied to read-model queries that leave a field unset.
const (
	DefaultMetricsWindow   = 30 * 24 * time.Hour
	DefaultVelocityWeeks   = 12
	DefaultHeatmapWeeks    = 52
	DefaultLeaderboardTopN = 10

	day        = 24 * time.Hour
	dateLayout = "2006-01-02"
)

// MetricsService recomputes the cached per-developer metrics and serves the
// read models computed on demand from commits and pull requests.
type MetricsService struct {
	uow       driven.UnitOfWork
	notify    notifier
	telemetry *telemetry.Metrics
	logger    *slog.Logger
	now       func() time.Time
	window    time.Duration
}

// MetricsOption configures a MetricsService.
type MetricsOption func(*MetricsService)

// WithMetricsNotifier sets the destination of metrics events.
func WithMetricsNotifier(n driven.Notifier) MetricsOption {
	return func(s *MetricsService) { s.notify.target = n }
}

// WithMetricsTelemetry sets the Prometheus collectors. Nil disables them.
func WithMetricsTelemetry(m *telemetry.Metrics) MetricsOption {
	return func(s *MetricsService) { s.telemetry = m }
}

// WithMetricsLogger sets the logger. Defaults to slog.Default.
func WithMetricsLogger(l *slog.Logger) MetricsOption {
	return func(s *MetricsService) { s.logger = l }
}

// WithMetricsClock replaces time.Now, for tests.
func WithMetricsClock(now func() time.Time) MetricsOption {
	return func(s *MetricsService) { s.now = now }
}

// WithMetricsWindow sets the range used by CalculateForAll and by queries
// without a start date. Non-positive values keep the default.
func WithMetricsWindow(d time.Duration) MetricsOption {
	return func(s *MetricsService) {
		if d > 0 {
			s.window = d
		}
	}
}

// NewMetricsService creates a MetricsService reading and writing through uow.
func NewMetricsService(uow driven.UnitOfWork, opts ...MetricsOption) *MetricsService {
	s := &MetricsService{
		uow:    uow,
		logger: slog.Default(),
		now:    time.Now,
		window: DefaultMetricsWindow,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.notify.logger = s.logger
	s.notify.now = s.now
	return s
}

// CalculateForDeveloper recomputes and stores one developer's metrics over
// [Start, End). A zero End means now; a zero Start means End minus the window.
func (s *MetricsService) CalculateForDeveloper(ctx context.Context, req CalculateRequest) ([]model.Metric, error) {
	if req.End.IsZero() {
		req.End = s.now().UTC()
	}
	if req.Start.IsZero() {
		req.Start = req.End.Add(-s.window)
	}
	if err := validateStruct(req); err != nil {
		return nil, err
	}

	rows, err := s.calculate(ctx, req.DeveloperID, req.Start, req.End)
	if err != nil {
		return nil, err
	}
	s.notify.send(ctx, model.EventMetricsUpdated, 0, map[string]any{
		"developer_ids": []int64{req.DeveloperID},
		"start":         req.Start,
		"end":           req.End,
	})
	return rows, nil
}

// CalculateForAll recomputes metrics for every developer over the configured
// window ending now. A failing developer is recorded and skipped.
func (s *MetricsService) CalculateForAll(ctx context.Context) model.MetricsRunResult {
	end := s.now().UTC()
	res := model.MetricsRunResult{
		RunID:   uuid.NewString(),
		Start:   end.Add(-s.window),
		End:     end,
		Success: true,
	}
	logger := s.logger.With("run_id", res.RunID)

	developers, err := s.uow.Developers().ListAll(ctx)
	if err != nil {
		failRun(&res, fmt.Errorf("list developers: %w", err))
	}

	for _, dev := range developers {
		if err := ctx.Err(); err != nil {
			failRun(&res, err)
			break
		}
		if _, err := s.calculate(ctx, dev.ID, res.Start, res.End); err != nil {
			res.Failed++
			res.FailedIDs = append(res.FailedIDs, dev.ID)
			logger.Error("developer metrics failed", "developer_id", dev.ID, "email", dev.Email, "error", err)
			continue
		}
		res.Succeeded++
	}

	s.telemetry.ObserveMetricsRun(res)
	if res.Success {
		logger.Info("metrics calculated", "succeeded", res.Succeeded, "failed", res.Failed)
	} else {
		logger.Warn("metrics run failed", "succeeded", res.Succeeded, "failed", res.Failed, "error", res.Error)
	}
	s.notify.send(ctx, model.EventMetricsUpdated, 0, res)
	return res
}

func failRun(res *model.MetricsRunResult, err error) {
	res.Success = false
	res.ErrorKind = model.KindOf(err)
	res.Error = err.Error()
}

type metricsWindow struct {
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
}

// calculate summarizes one developer and upserts every metric kind in a
// single transaction.
func (s *MetricsService) calculate(ctx context.Context, developerID int64, start, end time.Time) ([]model.Metric, error) {
	meta, err := json.Marshal(metricsWindow{StartDate: start.UTC().Format(dateLayout), EndDate: end.UTC().Format(dateLayout)})
	if err != nil {
		return nil, err
	}

	var rows []model.Metric
	err = driven.WithinTx(ctx, s.uow, func(tx driven.Tx) error {
		if _, err := tx.Developers().GetByID(ctx, developerID); err != nil {
			return err
		}

		commits, err := tx.Commits().Find(ctx, driven.CommitQuery{DeveloperID: developerID, From: start, Until: end})
		if err != nil {
			return err
		}
		prs, err := tx.PullRequests().Find(ctx, driven.PullRequestQuery{AuthorID: developerID, From: start, Until: end})
		if err != nil {
			return err
		}

		rows = metrics.Metrics(developerID, metrics.Summarize(commits, prs), s.now(), string(meta))
		for _, m := range rows {
			if err := tx.Metrics().Upsert(ctx, m); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("calculate metrics for developer %d: %w", developerID, err)
	}
	return rows, nil
}

// DeveloperMetrics returns the stored metrics of one developer.
func (s *MetricsService) DeveloperMetrics(ctx context.Context, developerID int64) ([]model.Metric, error) {
	if _, err := s.uow.Developers().GetByID(ctx, developerID); err != nil {
		return nil, err
	}
	return s.uow.Metrics().ListByDeveloper(ctx, developerID)
}

// Velocity reports weekly velocity over an explicit range, or over the last
// Weeks weeks ending at the end of today.
func (s *MetricsService) Velocity(ctx context.Context, q VelocityQuery) (model.Velocity, error) {
	if q.Weeks == 0 {
		q.Weeks = DefaultVelocityWeeks
	}
	if q.End.IsZero() {
		q.End = s.tomorrow()
	}
	if q.Start.IsZero() {
		q.Start = q.End.Add(-time.Duration(q.Weeks) * 7 * day)
	}
	if err := validateStruct(q); err != nil {
		return model.Velocity{}, err
	}
	if err := s.checkDeveloper(ctx, q.DeveloperID); err != nil {
		return model.Velocity{}, err
	}

	commits, err := s.uow.Commits().Find(ctx, driven.CommitQuery{DeveloperID: q.DeveloperID, From: q.Start, Until: q.End})
	if err != nil {
		return model.Velocity{}, err
	}
	merged, err := s.uow.PullRequests().Find(ctx, driven.PullRequestQuery{AuthorID: q.DeveloperID, MergedFrom: q.Start, MergedUntil: q.End})
	if err != nil {
		return model.Velocity{}, err
	}
	return metrics.Velocity(commits, merged, q.Start, q.End), nil
}

// ReviewTime reports hours-to-merge over pull requests opened in range.
func (s *MetricsService) ReviewTime(ctx context.Context, q RangeQuery) (model.ReviewTime, error) {
	prs, err := s.pullRequestsInRange(ctx, &q)
	if err != nil {
		return model.ReviewTime{}, err
	}
	return metrics.ReviewTime(prs), nil
}

// Heatmap counts commits per day over Weeks weeks ending today.
func (s *MetricsService) Heatmap(ctx context.Context, q HeatmapQuery) (model.Heatmap, error) {
	if q.Weeks == 0 {
		q.Weeks = DefaultHeatmapWeeks
	}
	if err := validateStruct(q); err != nil {
		return model.Heatmap{}, err
	}
	if err := s.checkDeveloper(ctx, q.DeveloperID); err != nil {
		return model.Heatmap{}, err
	}

	until := s.tomorrow()
	today := until.Add(-day)
	start := today.Add(-time.Duration(q.Weeks*7-1) * day)

	commits, err := s.uow.Commits().Find(ctx, driven.CommitQuery{DeveloperID: q.DeveloperID, From: start, Until: until})
	if err != nil {
		return model.Heatmap{}, err
	}
	return metrics.Heatmap(commits, start, today), nil
}

// Leaderboard ranks developers over [Start, End), by default the metrics window.
func (s *MetricsService) Leaderboard(ctx context.Context, q LeaderboardQuery) ([]model.LeaderboardEntry, error) {
	if q.TopN == 0 {
		q.TopN = DefaultLeaderboardTopN
	}
	q.Start, q.End = s.defaultRange(q.Start, q.End)
	if err := validateStruct(q); err != nil {
		return nil, err
	}

	commits, err := s.uow.Commits().Find(ctx, driven.CommitQuery{From: q.Start, Until: q.End})
	if err != nil {
		return nil, err
	}
	prs, err := s.uow.PullRequests().Find(ctx, driven.PullRequestQuery{From: q.Start, Until: q.End})
	if err != nil {
		return nil, err
	}

	seen := make(map[int64]struct{})
	var ids []int64
	note := func(id int64) {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	for _, c := range commits {
		note(c.DeveloperID)
	}
	for _, pr := range prs {
		note(pr.AuthorID)
	}

	developers, err := s.uow.Developers().ListByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	return metrics.Leaderboard(q.Metric, commits, prs, developers, q.TopN), nil
}

// CommitActivity returns a gap-free daily commit series over [Start, End).
func (s *MetricsService) CommitActivity(ctx context.Context, q RangeQuery) (model.CommitActivity, error) {
	q.Start, q.End = s.defaultRange(q.Start, q.End)
	if err := validateStruct(q); err != nil {
		return model.CommitActivity{}, err
	}
	if err := s.checkDeveloper(ctx, q.DeveloperID); err != nil {
		return model.CommitActivity{}, err
	}

	commits, err := s.uow.Commits().Find(ctx, driven.CommitQuery{DeveloperID: q.DeveloperID, From: q.Start, Until: q.End})
	if err != nil {
		return model.CommitActivity{}, err
	}
	return metrics.CommitActivity(commits, q.Start, q.End.Add(-time.Nanosecond)), nil
}

// PullRequestStats counts pull requests opened in range per status.
func (s *MetricsService) PullRequestStats(ctx context.Context, q RangeQuery) (model.PRStatusBreakdown, error) {
	prs, err := s.pullRequestsInRange(ctx, &q)
	if err != nil {
		return model.PRStatusBreakdown{}, err
	}
	return metrics.PullRequestBreakdown(prs), nil
}

func (s *MetricsService) pullRequestsInRange(ctx context.Context, q *RangeQuery) ([]model.PullRequest, error) {
	q.Start, q.End = s.defaultRange(q.Start, q.End)
	if err := validateStruct(*q); err != nil {
		return nil, err
	}
	if err := s.checkDeveloper(ctx, q.DeveloperID); err != nil {
		return nil, err
	}
	return s.uow.PullRequests().Find(ctx, driven.PullRequestQuery{AuthorID: q.DeveloperID, From: q.Start, Until: q.End})
}

// checkDeveloper returns a not-found error for an unknown developer. Zero
// means every developer.
func (s *MetricsService) checkDeveloper(ctx context.Context, developerID int64) error {
	if developerID == 0 {
		return nil
	}
	_, err := s.uow.Developers().GetByID(ctx, developerID)
	return err
}

// defaultRange fills a zero end with the end of today and a zero start with
// end minus the metrics window.
func (s *MetricsService) defaultRange(start, end time.Time) (time.Time, time.Time) {
	if end.IsZero() {
		end = s.tomorrow()
	}
	if start.IsZero() {
		start = end.Add(-s.window)
	}
	return start, end
}

// tomorrow returns midnight UTC at the end of today.
func (s *MetricsService) tomorrow() time.Time {
	return s.now().UTC().Truncate(day).Add(day)
}
