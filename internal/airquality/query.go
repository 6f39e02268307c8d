package airquality

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/ukaqn/air-quality-timeseries/internal/catalog"
)

// ErrValidation wraps every query rejection so callers can map it to a
// client error before any network call is dispatched.
var ErrValidation = errors.New("invalid query")

var validate = validator.New()

const (
	// Year bounds for the annual/monthly report endpoint.
	MinYear = 2000
	MaxYear = 2024

	// Range caps keep single batches at a size the source API serves reliably.
	maxHourlyRangeDays = 183
	maxDailyRangeDays  = 730
)

// Query describes one fetch-and-align batch.
type Query struct {
	Sites      []string        `json:"sites" validate:"required,min=1,dive,required"`
	Pollutants []PollutantKind `json:"pollutants" validate:"required,min=1"`
	Resolution Resolution      `json:"resolution" validate:"required"`
	Start      time.Time       `json:"start" validate:"required"`
	End        time.Time       `json:"end" validate:"required"`
}

// Validate checks structural and domain constraints. It never touches the
// network; a query that fails here is rejected before dispatch.
func (q Query) Validate() error {
	if err := validate.Struct(q); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}

	if _, ok := ParseResolution(string(q.Resolution)); !ok {
		return fmt.Errorf("%w: unknown resolution %q", ErrValidation, q.Resolution)
	}

	for _, site := range q.Sites {
		if _, ok := catalog.SiteByCode(site); !ok {
			return fmt.Errorf("%w: unknown site %q", ErrValidation, site)
		}
	}
	for _, p := range q.Pollutants {
		if _, ok := catalog.PollutantByCode(string(p)); !ok {
			return fmt.Errorf("%w: unknown pollutant %q", ErrValidation, p)
		}
	}

	if q.End.Before(q.Start) {
		return fmt.Errorf("%w: end %s is before start %s", ErrValidation,
			q.End.Format(time.RFC3339), q.Start.Format(time.RFC3339))
	}

	switch q.Resolution {
	case ResolutionAnnual, ResolutionMonthly:
		if q.Start.Year() < MinYear || q.End.Year() > MaxYear {
			return fmt.Errorf("%w: %s data is available for years %d-%d", ErrValidation,
				q.Resolution, MinYear, MaxYear)
		}
	case ResolutionHourly:
		if q.End.Sub(q.Start) > maxHourlyRangeDays*24*time.Hour {
			return fmt.Errorf("%w: hourly range must not exceed %d days", ErrValidation, maxHourlyRangeDays)
		}
	case ResolutionDaily:
		if q.End.Sub(q.Start) > maxDailyRangeDays*24*time.Hour {
			return fmt.Errorf("%w: daily range must not exceed %d days", ErrValidation, maxDailyRangeDays)
		}
	}

	return nil
}
