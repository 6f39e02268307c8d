package airquality

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeClient routes each fetch through a per-site handler and counts calls.
type fakeClient struct {
	mu       sync.Mutex
	calls    map[string]int
	handlers map[string]func() (RawSeries, error)
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		calls:    make(map[string]int),
		handlers: make(map[string]func() (RawSeries, error)),
	}
}

func (f *fakeClient) Fetch(ctx context.Context, site string, pollutant PollutantKind, res Resolution, start, end time.Time) (RawSeries, error) {
	f.mu.Lock()
	f.calls[site]++
	handler := f.handlers[site]
	f.mu.Unlock()

	if handler == nil {
		return nil, &ClientError{Kind: FailureProvider, Err: errors.New("no handler")}
	}
	return handler()
}

func (f *fakeClient) callCount(site string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[site]
}

func fastOptions() Options {
	return Options{
		MaxRetries: 2,
		Backoff:    BackoffConfig{InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond},
	}
}

func oneDayHourlyQuery(sites []string, pollutants []PollutantKind) Query {
	return Query{
		Sites:      sites,
		Pollutants: pollutants,
		Resolution: ResolutionHourly,
		Start:      time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		End:        time.Date(2024, 1, 1, 23, 0, 0, 0, time.UTC),
	}
}

func TestRunPartialFailure(t *testing.T) {
	client := newFakeClient()
	client.handlers["WA2"] = func() (RawSeries, error) {
		// Readings for 20 of 24 hours; the rest become gaps.
		var series RawSeries
		for h := 0; h < 20; h++ {
			series = append(series, RawPoint{
				Timestamp: time.Date(2024, 1, 1, h, 0, 0, 0, time.UTC),
				Value:     float64(30 + h),
			})
		}
		return series, nil
	}
	client.handlers["WA7"] = func() (RawSeries, error) {
		return nil, &ClientError{Kind: FailureNetwork, Transient: true, Err: errors.New("timeout")}
	}

	svc := NewService(client, fastOptions(), nil)
	result, err := svc.Run(context.Background(), oneDayHourlyQuery([]string{"WA2", "WA7"}, []PollutantKind{NO2}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(result.Rows) != 48 {
		t.Fatalf("expected 48 rows (24 per site), got %d", len(result.Rows))
	}

	var wa2Values, wa7Gaps int
	for _, row := range result.Rows {
		switch row.Site {
		case "WA2":
			if !row.IsGap {
				wa2Values++
			}
		case "WA7":
			if !row.IsGap {
				t.Fatalf("WA7 row should be a gap: %+v", row)
			}
			wa7Gaps++
		}
	}
	if wa2Values != 20 {
		t.Fatalf("expected 20 WA2 values, got %d", wa2Values)
	}
	if wa7Gaps != 24 {
		t.Fatalf("expected 24 fully-gapped WA7 rows, got %d", wa7Gaps)
	}

	if len(result.Failures) != 1 {
		t.Fatalf("expected 1 failure, got %d", len(result.Failures))
	}
	f := result.Failures[0]
	if f.Site != "WA7" || f.Pollutant != NO2 || f.Kind != FailureNetwork {
		t.Fatalf("unexpected failure record: %+v", f)
	}
}

func TestTransientFailureRetried(t *testing.T) {
	client := newFakeClient()
	client.handlers["WA2"] = func() (RawSeries, error) {
		return nil, &ClientError{Kind: FailureProvider, Transient: true, Err: errors.New("server error")}
	}

	svc := NewService(client, fastOptions(), nil)
	_, err := svc.Run(context.Background(), oneDayHourlyQuery([]string{"WA2"}, []PollutantKind{PM10}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Initial attempt plus the full retry budget.
	if got := client.callCount("WA2"); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
}

func TestPermanentFailureNotRetried(t *testing.T) {
	client := newFakeClient()
	client.handlers["WA2"] = func() (RawSeries, error) {
		return nil, &ClientError{Kind: FailureProvider, Err: errors.New("unexpected status code: 404")}
	}

	svc := NewService(client, fastOptions(), nil)
	result, err := svc.Run(context.Background(), oneDayHourlyQuery([]string{"WA2"}, []PollutantKind{PM10}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := client.callCount("WA2"); got != 1 {
		t.Fatalf("permanent failure must not be retried; got %d attempts", got)
	}
	if len(result.Failures) != 1 || result.Failures[0].Kind != FailureProvider {
		t.Fatalf("unexpected failures: %+v", result.Failures)
	}
}

func TestWholeBatchFailureStillFullShape(t *testing.T) {
	client := newFakeClient()
	fail := func() (RawSeries, error) {
		return nil, &ClientError{Kind: FailureNetwork, Transient: true, Err: errors.New("connection refused")}
	}
	client.handlers["WA2"] = fail
	client.handlers["WA7"] = fail

	svc := NewService(client, fastOptions(), nil)
	result, err := svc.Run(context.Background(), oneDayHourlyQuery([]string{"WA2", "WA7"}, []PollutantKind{PM10, NO2}))
	if err != nil {
		t.Fatalf("a degraded batch is not an error: %v", err)
	}

	if len(result.Rows) != 24*2*2 {
		t.Fatalf("expected the full cube even with zero data, got %d rows", len(result.Rows))
	}
	for _, row := range result.Rows {
		if !row.IsGap {
			t.Fatalf("expected only gaps, got %+v", row)
		}
	}
	if len(result.Failures) != 4 {
		t.Fatalf("expected 4 failures (one per tuple), got %d", len(result.Failures))
	}
}

func TestRunRejectsInvalidQueryBeforeDispatch(t *testing.T) {
	client := newFakeClient()
	svc := NewService(client, fastOptions(), nil)

	cases := []Query{
		// Unknown site.
		oneDayHourlyQuery([]string{"XX1"}, []PollutantKind{PM10}),
		// Unknown pollutant.
		oneDayHourlyQuery([]string{"WA2"}, []PollutantKind{"O3"}),
		// End before start.
		{
			Sites:      []string{"WA2"},
			Pollutants: []PollutantKind{PM10},
			Resolution: ResolutionHourly,
			Start:      time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
			End:        time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		},
		// Annual outside the supported year bounds.
		{
			Sites:      []string{"WA2"},
			Pollutants: []PollutantKind{PM10},
			Resolution: ResolutionAnnual,
			Start:      time.Date(1995, 1, 1, 0, 0, 0, 0, time.UTC),
			End:        time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		},
		// Hourly range over the cap.
		{
			Sites:      []string{"WA2"},
			Pollutants: []PollutantKind{PM10},
			Resolution: ResolutionHourly,
			Start:      time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
			End:        time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC),
		},
	}

	for i, q := range cases {
		if _, err := svc.Run(context.Background(), q); !errors.Is(err, ErrValidation) {
			t.Fatalf("case %d: expected ErrValidation, got %v", i, err)
		}
	}

	if got := client.callCount("WA2"); got != 0 {
		t.Fatalf("validation failures must never dispatch; saw %d calls", got)
	}
}

func TestFetchAllBoundedConcurrency(t *testing.T) {
	var (
		mu       sync.Mutex
		inFlight int
		peak     int
	)

	client := newFakeClient()
	handler := func() (RawSeries, error) {
		mu.Lock()
		inFlight++
		if inFlight > peak {
			peak = inFlight
		}
		mu.Unlock()

		time.Sleep(5 * time.Millisecond)

		mu.Lock()
		inFlight--
		mu.Unlock()
		return RawSeries{}, nil
	}
	for _, site := range []string{"WA2", "WA7", "WA8", "WA9"} {
		client.handlers[site] = handler
	}

	opts := fastOptions()
	opts.MaxInFlight = 2
	svc := NewService(client, opts, nil)

	q := oneDayHourlyQuery([]string{"WA2", "WA7", "WA8", "WA9"}, []PollutantKind{PM10, NO2})
	results, failures := svc.FetchAll(context.Background(), q, "test-batch")

	if len(failures) != 0 {
		t.Fatalf("unexpected failures: %+v", failures)
	}
	if len(results) != 8 {
		t.Fatalf("expected 8 series, got %d", len(results))
	}
	if peak > 2 {
		t.Fatalf("concurrency bound violated: peak %d", peak)
	}
}
