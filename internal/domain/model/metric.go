package model

import "time"

// Metric is a derived, cached statistic. At most one row exists per (DeveloperID, Kind).
type Metric struct {
	ID           int64
	DeveloperID  int64
	RepositoryID *int64
	Kind         MetricKind
	Value        float64
	Timestamp    time.Time
	Metadata     string // JSON document describing the calculation window.
}
