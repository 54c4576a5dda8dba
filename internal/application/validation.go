package application

import (
	"errors"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/ericfisherdev/devmetrics/internal/domain/model"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		// Report fields by their JSON names so errors match request payloads.
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
			if name == "" || name == "-" {
				return f.Name
			}
			return name
		})
	})
	return validate
}

// validateStruct returns a *model.ValidationError for the first failing field.
func validateStruct(s any) error {
	err := getValidator().Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return &model.ValidationError{Reason: err.Error()}
	}

	fe := fieldErrs[0]
	return &model.ValidationError{Field: fe.Field(), Reason: reason(fe)}
}

func reason(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	case "oneof":
		return "must be one of: " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "gtfield":
		return "must be after " + strings.ToLower(fe.Param())
	default:
		return "failed " + fe.Tag() + " check"
	}
}

// RangeQuery bounds a read model to [Start, End), optionally for one developer.
// Zero bounds are replaced with a default window before validation.
type RangeQuery struct {
	DeveloperID int64     `json:"developer_id" validate:"min=0"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end" validate:"gtfield=Start"`
}

// VelocityQuery covers the last Weeks weeks unless an explicit range is given.
type VelocityQuery struct {
	DeveloperID int64     `json:"developer_id" validate:"min=0"`
	Weeks       int       `json:"weeks" validate:"min=1,max=104"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end" validate:"gtfield=Start"`
}

// HeatmapQuery covers Weeks weeks ending today.
type HeatmapQuery struct {
	DeveloperID int64 `json:"developer_id" validate:"min=0"`
	Weeks       int   `json:"weeks" validate:"min=1,max=104"`
}

// LeaderboardQuery ranks developers by Metric over [Start, End).
type LeaderboardQuery struct {
	Metric model.LeaderboardMetric `json:"metric" validate:"required,oneof=commits pull_requests lines_changed active_days"`
	TopN   int                     `json:"top_n" validate:"min=1,max=100"`
	Start  time.Time               `json:"start"`
	End    time.Time               `json:"end" validate:"gtfield=Start"`
}

// CalculateRequest recomputes one developer's metrics over [Start, End).
type CalculateRequest struct {
	DeveloperID int64     `json:"developer_id" validate:"required,min=1"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end" validate:"gtfield=Start"`
}
