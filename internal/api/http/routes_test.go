package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/ukaqn/air-quality-timeseries/internal/airquality"
)

// stubClient serves a fixed hourly series for every tuple.
type stubClient struct{}

func (stubClient) Fetch(ctx context.Context, site string, pollutant airquality.PollutantKind, res airquality.Resolution, start, end time.Time) (airquality.RawSeries, error) {
	return airquality.RawSeries{
		{Timestamp: start.Truncate(time.Hour), Value: 33.3},
	}, nil
}

func newTestApp() *fiber.App {
	app := fiber.New()
	svc := airquality.NewService(stubClient{}, airquality.Options{}, nil)
	RegisterRoutes(app, svc)
	return app
}

func TestSeriesRequiresParameters(t *testing.T) {
	app := newTestApp()

	// Missing everything.
	req := httptest.NewRequest(http.MethodGet, "/api/v1/airquality/series", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, resp.StatusCode)
	}

	// Unknown site is rejected before dispatch.
	req = httptest.NewRequest(http.MethodGet,
		"/api/v1/airquality/series?sites=ZZ9&pollutants=PM10&resolution=hourly&start=2024-01-01&end=2024-01-01", nil)
	resp, err = app.Test(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, resp.StatusCode)
	}

	// Bad resolution.
	req = httptest.NewRequest(http.MethodGet,
		"/api/v1/airquality/series?sites=WA2&pollutants=PM10&resolution=weekly&start=2024-01-01&end=2024-01-01", nil)
	resp, err = app.Test(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, resp.StatusCode)
	}
}

func TestSeriesReturnsFullCube(t *testing.T) {
	app := newTestApp()

	req := httptest.NewRequest(http.MethodGet,
		"/api/v1/airquality/series?sites=WA2,WA7&pollutants=NO2&resolution=hourly&start=2024-01-01&end=2024-01-01", nil)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.StatusCode)
	}

	var result airquality.Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	// A bare one-day hourly range covers 24 ticks for each of the 2 sites.
	if len(result.Rows) != 48 {
		t.Fatalf("expected 48 rows, got %d", len(result.Rows))
	}
	if result.BatchID == "" {
		t.Fatal("expected a batch id")
	}
}

func TestSeriesCSVExport(t *testing.T) {
	app := newTestApp()

	req := httptest.NewRequest(http.MethodGet,
		"/api/v1/airquality/series.csv?sites=WA2&pollutants=PM10&resolution=hourly&start=2024-01-01&end=2024-01-01", nil)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Fatalf("unexpected content type %q", ct)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read body: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(body)), "\n")
	if lines[0] != "timestamp,site,pollutant,value,is_gap" {
		t.Fatalf("unexpected header: %q", lines[0])
	}
	if len(lines) != 25 { // header + 24 hourly rows
		t.Fatalf("expected 25 lines, got %d", len(lines))
	}
}

func TestCatalogEndpoints(t *testing.T) {
	app := newTestApp()

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/airquality/sites", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.StatusCode)
	}

	var payload struct {
		Sites []struct {
			Code string `json:"code"`
		} `json:"sites"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(payload.Sites) != 11 {
		t.Fatalf("expected 11 sites, got %d", len(payload.Sites))
	}

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/airquality/pollutants", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.StatusCode)
	}
}
