package laqn

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/sony/gobreaker"

	"github.com/ukaqn/air-quality-timeseries/internal/airquality"
)

var (
	errRateLimited = errors.New("rate limited")
	errServerError = errors.New("server error")
	errUnexpected  = errors.New("unexpected status code")
	errCircuitOpen = errors.New("circuit breaker open")
)

// doRequest executes a single HTTP attempt through the circuit breaker and
// classifies the outcome as a typed airquality.ClientError. There is no retry
// loop here: the fetch coordinator owns the retry policy, the breaker only
// sheds load once the source is persistently failing.
func (c *Client) doRequest(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &airquality.ClientError{Kind: airquality.FailureProvider, Err: err}
	}

	result, err := c.circuit.Execute(func() (interface{}, error) {
		resp, execErr := c.httpClient.Do(req)
		if execErr != nil {
			return nil, execErr
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			resp.Body.Close()
			return nil, errRateLimited
		}
		if resp.StatusCode >= 500 {
			resp.Body.Close()
			return nil, errServerError
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			resp.Body.Close()
			return nil, fmt.Errorf("%w: %d", errUnexpected, resp.StatusCode)
		}

		return resp, nil
	})
	if err != nil {
		return nil, classify(err)
	}

	resp, ok := result.(*http.Response)
	if !ok {
		return nil, &airquality.ClientError{
			Kind: airquality.FailureProvider,
			Err:  errors.New("unexpected result type from circuit breaker"),
		}
	}
	return resp, nil
}

func classify(err error) *airquality.ClientError {
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		// The breaker is already shedding load; retrying immediately would
		// only hit the open circuit again.
		return &airquality.ClientError{
			Kind: airquality.FailureNetwork,
			Err:  fmt.Errorf("%w: %v", errCircuitOpen, err),
		}
	case errors.Is(err, errRateLimited), errors.Is(err, errServerError):
		return &airquality.ClientError{Kind: airquality.FailureProvider, Transient: true, Err: err}
	case errors.Is(err, errUnexpected):
		return &airquality.ClientError{Kind: airquality.FailureProvider, Err: err}
	default:
		// Transport-level failure: timeout, refused connection, DNS.
		return &airquality.ClientError{Kind: airquality.FailureNetwork, Transient: true, Err: err}
	}
}
