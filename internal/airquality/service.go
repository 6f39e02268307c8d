package airquality

import (
	"context"
	"errors"
	"log"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ukaqn/air-quality-timeseries/internal/metrics"
)

// BackoffConfig controls the coordinator's exponential backoff between
// retries of a transient fetch failure.
type BackoffConfig struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// Options tunes the fetch coordinator. Zero values fall back to defaults.
type Options struct {
	// MaxInFlight bounds concurrent fetches; 0 means one slot per site.
	MaxInFlight int
	// MaxRetries is the retry budget per tuple for transient failures.
	MaxRetries int
	Backoff    BackoffConfig
	Tolerances Tolerances
}

// Service orchestrates one fetch-and-align batch: fan out the source client
// across sites x pollutants, normalize every series onto the canonical grid,
// and merge everything into the tidy table.
type Service struct {
	client Client
	opts   Options
	mx     *metrics.Metrics
}

// NewService creates a Service. mx may be nil.
func NewService(client Client, opts Options, mx *metrics.Metrics) *Service {
	if opts.MaxRetries == 0 {
		opts.MaxRetries = 2
	}
	if opts.Backoff.InitialInterval == 0 {
		opts.Backoff.InitialInterval = 500 * time.Millisecond
	}
	if opts.Backoff.MaxInterval == 0 {
		opts.Backoff.MaxInterval = 5 * time.Second
	}
	if (opts.Tolerances == Tolerances{}) {
		opts.Tolerances = DefaultTolerances()
	}
	return &Service{client: client, opts: opts, mx: mx}
}

// Run executes the whole pipeline for one query. Validation failures are
// rejected before any network call. Per-tuple fetch failures degrade the
// output to gaps but never shrink it: the returned table always covers the
// full grid x sites x pollutants cube.
func (s *Service) Run(ctx context.Context, q Query) (*Result, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	batchID := uuid.NewString()
	grid := BuildGrid(q.Resolution, q.Start, q.End)

	raw, failures := s.FetchAll(ctx, q, batchID)

	normalized := make(map[SeriesKey]NormalizedSeries, len(raw))
	for key, series := range raw {
		normalized[key] = Normalize(series, grid, q.Resolution, s.opts.Tolerances)
	}

	rows := Merge(normalized, grid, q.Sites, q.Pollutants)
	s.mx.BatchRows(len(rows))

	if len(failures) > 0 {
		log.Printf("batch %s: %d of %d tuples failed", batchID, len(failures), len(q.Sites)*len(q.Pollutants))
	}

	return &Result{
		BatchID:  batchID,
		Query:    q,
		Rows:     rows,
		Failures: failures,
	}, nil
}

// FetchAll dispatches one fetch per (site, pollutant) tuple with bounded
// concurrency and collects partial successes. One failed tuple never aborts
// the batch; FetchAll returns once every tuple is terminal. The result map
// and failure list are the only shared state, both append-only under mu.
func (s *Service) FetchAll(ctx context.Context, q Query, batchID string) (map[SeriesKey]RawSeries, []Failure) {
	maxInFlight := s.opts.MaxInFlight
	if maxInFlight <= 0 {
		maxInFlight = len(q.Sites)
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		results  = make(map[SeriesKey]RawSeries)
		failures []Failure
	)

	sem := make(chan struct{}, maxInFlight)

	for _, site := range q.Sites {
		for _, pollutant := range q.Pollutants {
			key := SeriesKey{Site: site, Pollutant: pollutant}
			wg.Add(1)
			go func() {
				defer wg.Done()

				sem <- struct{}{}
				defer func() { <-sem }()

				started := time.Now()
				series, err := s.fetchWithRetry(ctx, key, q)
				s.mx.FetchDone(key.Site, string(key.Pollutant), err == nil, time.Since(started))

				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					failures = append(failures, toFailure(key, err))
					log.Printf("batch %s: fetch failed for %s/%s: %v", batchID, key.Site, key.Pollutant, err)
					return
				}
				results[key] = series
			}()
		}
	}

	wg.Wait()
	return results, failures
}

// fetchWithRetry drives one tuple to a terminal state: transient failures are
// retried up to the budget with exponential backoff, permanent failures and
// context cancellation end the tuple immediately.
func (s *Service) fetchWithRetry(ctx context.Context, key SeriesKey, q Query) (RawSeries, error) {
	var lastErr error

	for attempt := 0; ; attempt++ {
		if ctx.Err() != nil {
			if lastErr != nil {
				return nil, lastErr
			}
			return nil, &ClientError{Kind: FailureNetwork, Err: ctx.Err()}
		}

		series, err := s.client.Fetch(ctx, key.Site, key.Pollutant, q.Resolution, q.Start, q.End)
		if err == nil {
			return series, nil
		}
		lastErr = err

		var ce *ClientError
		if !errors.As(err, &ce) || !ce.Transient || attempt >= s.opts.MaxRetries {
			return nil, lastErr
		}

		s.mx.FetchRetried()

		delay := s.opts.Backoff.InitialInterval * time.Duration(math.Pow(2, float64(attempt)))
		if delay > s.opts.Backoff.MaxInterval {
			delay = s.opts.Backoff.MaxInterval
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, lastErr
		case <-timer.C:
		}
	}
}

func toFailure(key SeriesKey, err error) Failure {
	kind := FailureNetwork
	var ce *ClientError
	if errors.As(err, &ce) {
		kind = ce.Kind
	}
	return Failure{
		Site:      key.Site,
		Pollutant: key.Pollutant,
		Kind:      kind,
		Reason:    err.Error(),
	}
}
