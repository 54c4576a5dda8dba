package httphandler

import (
	"net/url"
	"strconv"
	"time"

	"github.com/ericfisherdev/devmetrics/internal/domain/model"
)

const dateLayout = "2006-01-02"

// queryParams parses query values and keeps the first failure in err.
type queryParams struct {
	values url.Values
	err    error
}

// count parses a non-negative integer such as weeks or top_n.
func (q *queryParams) count(name string) int {
	return int(q.id(name))
}

// id parses a non-negative identifier. Zero means absent.
func (q *queryParams) id(name string) int64 {
	raw := q.values.Get(name)
	if raw == "" || q.err != nil {
		return 0
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n < 0 {
		q.err = &model.ValidationError{Field: name, Reason: "must be a non-negative integer"}
		return 0
	}
	return n
}

func (q *queryParams) date(name string, inclusiveEnd bool) time.Time {
	if q.err != nil {
		return time.Time{}
	}
	t, err := parseDate(name, q.values.Get(name), inclusiveEnd)
	if err != nil {
		q.err = err
	}
	return t
}

// parseDate reads a YYYY-MM-DD date as midnight UTC. An inclusive end date
// becomes the following midnight so ranges stay half-open. Empty input
// yields the zero time.
func parseDate(name, raw string, inclusiveEnd bool) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		return time.Time{}, &model.ValidationError{Field: name, Reason: "must be a date formatted as YYYY-MM-DD"}
	}
	if inclusiveEnd {
		t = t.AddDate(0, 0, 1)
	}
	return t.UTC(), nil
}
