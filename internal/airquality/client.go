package airquality

import (
	"context"
	"time"
)

// Client abstracts the external monitoring data source. One Fetch call covers
// one (site, pollutant, resolution, range) tuple; implementations make no
// retry decisions of their own — the coordinator owns the retry policy.
type Client interface {
	Fetch(ctx context.Context, site string, pollutant PollutantKind, res Resolution, start, end time.Time) (RawSeries, error)
}

// ClientError is the typed failure a Client returns instead of raising into
// the caller's control flow. Transient marks failures worth retrying
// (timeouts, connection errors, 429, 5xx); permanent failures (bad request,
// malformed payload) are recorded immediately.
type ClientError struct {
	Kind      FailureKind
	Transient bool
	Err       error
}

func (e *ClientError) Error() string {
	return string(e.Kind) + ": " + e.Err.Error()
}

func (e *ClientError) Unwrap() error {
	return e.Err
}
