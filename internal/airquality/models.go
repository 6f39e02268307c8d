package airquality

import (
	"time"
)

// Resolution is the temporal granularity of a requested series.
type Resolution string

const (
	ResolutionAnnual  Resolution = "annual"
	ResolutionMonthly Resolution = "monthly"
	ResolutionDaily   Resolution = "daily"
	ResolutionHourly  Resolution = "hourly"
)

// ParseResolution maps a user-supplied string onto a Resolution.
func ParseResolution(s string) (Resolution, bool) {
	switch Resolution(s) {
	case ResolutionAnnual, ResolutionMonthly, ResolutionDaily, ResolutionHourly:
		return Resolution(s), true
	}
	return "", false
}

// PollutantKind is an LAQN species code (PM2.5 is reported as "PM25").
type PollutantKind string

const (
	PM10 PollutantKind = "PM10"
	PM25 PollutantKind = "PM25"
	NO2  PollutantKind = "NO2"
)

// SeriesKey identifies one fetched series within a batch.
type SeriesKey struct {
	Site      string        `json:"site"`
	Pollutant PollutantKind `json:"pollutant"`
}

// RawPoint is a single timestamped reading as returned by the source API.
type RawPoint struct {
	Timestamp time.Time
	Value     float64
}

// RawSeries is the ordered raw readings for one (site, pollutant) pair.
// Timestamps may be irregular or sparse; absent readings simply do not appear.
type RawSeries []RawPoint

// NormalizedPoint is one canonical grid tick: either a value or an explicit
// gap, never both. When Gap is true, Value is meaningless.
type NormalizedPoint struct {
	Timestamp time.Time
	Value     float64
	Gap       bool
}

// NormalizedSeries is a RawSeries resampled onto a canonical grid. Its length
// always equals the grid length.
type NormalizedSeries []NormalizedPoint

// TidyRow is one cell of the merged output table, unique per
// (timestamp, site, pollutant). Value is nil exactly when IsGap is true.
type TidyRow struct {
	Timestamp time.Time     `json:"timestamp"`
	Site      string        `json:"site"`
	Pollutant PollutantKind `json:"pollutant"`
	Value     *float64      `json:"value"`
	IsGap     bool          `json:"isGap"`
}

// FailureKind classifies why a fetch tuple failed.
type FailureKind string

const (
	// FailureNetwork covers timeouts and connection-level errors.
	FailureNetwork FailureKind = "network"
	// FailureProvider covers non-success HTTP statuses and malformed payloads.
	FailureProvider FailureKind = "provider"
	// FailureValidation covers queries rejected before dispatch.
	FailureValidation FailureKind = "validation"
)

// Failure records one (site, pollutant) tuple that exhausted its retries.
type Failure struct {
	Site      string        `json:"site"`
	Pollutant PollutantKind `json:"pollutant"`
	Kind      FailureKind   `json:"kind"`
	Reason    string        `json:"reason"`
}

// Result is the complete output of one batch: a full-shape tidy table plus
// the failures that degraded it. Rows always cover the whole
// grid x sites x pollutants cube even when every fetch failed.
type Result struct {
	BatchID  string    `json:"batchId"`
	Query    Query     `json:"query"`
	Rows     []TidyRow `json:"rows"`
	Failures []Failure `json:"failures"`
}
