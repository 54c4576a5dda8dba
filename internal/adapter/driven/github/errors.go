package github

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	gh "github.com/google/go-github/v82/github"

	"github.com/ericfisherdev/devmetrics/internal/domain/model"
)

// translateError maps go-github failures onto the domain taxonomy. Errors it
// does not recognize are returned unchanged and treated as transient.
func translateError(err error) error {
	if err == nil {
		return nil
	}

	var rateErr *gh.RateLimitError
	if errors.As(err, &rateErr) {
		return &model.RateLimitError{Reset: rateErr.Rate.Reset.Time, Err: err}
	}

	var abuseErr *gh.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		reset := time.Now()
		if abuseErr.RetryAfter != nil {
			reset = reset.Add(*abuseErr.RetryAfter)
		}
		return &model.RateLimitError{Reset: reset, Err: err}
	}

	if status := statusCode(err); status != 0 {
		switch status {
		case http.StatusNotFound:
			return fmt.Errorf("%w: %w", model.ErrNotFound, err)
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("%w: %w", model.ErrUnauthorized, err)
		}
	}

	return err
}

// statusCode extracts the HTTP status of a go-github error response, or 0.
func statusCode(err error) int {
	var errResp *gh.ErrorResponse
	if errors.As(err, &errResp) && errResp.Response != nil {
		return errResp.Response.StatusCode
	}
	return 0
}
