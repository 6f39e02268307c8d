// Package laqn implements the source client for the London Air Quality
// Network API (api.erg.ic.ac.uk). Annual and monthly means come from the
// per-year monitoring report endpoint; hourly readings (and the daily means
// derived from them) come from the raw data endpoint.
package laqn

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/ukaqn/air-quality-timeseries/internal/airquality"
)

// DefaultBaseURL is the production LAQN API root.
const DefaultBaseURL = "https://api.erg.ic.ac.uk/AirQuality"

// measurementLayout is the timestamp format of @MeasurementDateGMT.
const measurementLayout = "2006-01-02 15:04:05"

// sentinel is the provider's in-band marker for an absent reading. It must
// never leak into a RawSeries as a real value.
const sentinel = "-999"

// Client fetches raw series from the LAQN API. It performs exactly one
// outbound call per report page and keeps no shared mutable state beyond the
// circuit breaker.
type Client struct {
	httpClient *http.Client
	baseURL    string
	circuit    *gobreaker.CircuitBreaker
}

// New creates a Client. baseURL may be empty to use the production API.
func New(httpClient *http.Client, baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "laqn",
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     2 * time.Minute,
	})

	return &Client{
		httpClient: httpClient,
		baseURL:    baseURL,
		circuit:    cb,
	}
}

// Fetch returns the raw series for one (site, pollutant, resolution, range)
// tuple. Readings the provider marks absent are simply omitted; downstream
// normalization turns the holes into explicit gaps.
func (c *Client) Fetch(ctx context.Context, site string, pollutant airquality.PollutantKind, res airquality.Resolution, start, end time.Time) (airquality.RawSeries, error) {
	switch res {
	case airquality.ResolutionAnnual, airquality.ResolutionMonthly:
		return c.fetchReport(ctx, site, pollutant, res, start.Year(), end.Year())
	case airquality.ResolutionDaily, airquality.ResolutionHourly:
		return c.fetchData(ctx, site, pollutant, res, start, end)
	default:
		return nil, &airquality.ClientError{
			Kind: airquality.FailureProvider,
			Err:  fmt.Errorf("unsupported resolution %q", res),
		}
	}
}

// annualReport is the shape of the per-year monitoring report response.
type annualReport struct {
	SiteReport struct {
		ReportItem []reportItem `json:"ReportItem"`
	} `json:"SiteReport"`
}

type reportItem struct {
	SpeciesCode    string `json:"@SpeciesCode"`
	ReportItem     string `json:"@ReportItem"`
	ReportItemName string `json:"@ReportItemName"`
	Annual         string `json:"@Annual"`
	Month1         string `json:"@Month1"`
	Month2         string `json:"@Month2"`
	Month3         string `json:"@Month3"`
	Month4         string `json:"@Month4"`
	Month5         string `json:"@Month5"`
	Month6         string `json:"@Month6"`
	Month7         string `json:"@Month7"`
	Month8         string `json:"@Month8"`
	Month9         string `json:"@Month9"`
	Month10        string `json:"@Month10"`
	Month11        string `json:"@Month11"`
	Month12        string `json:"@Month12"`
}

func (r reportItem) months() [12]string {
	return [12]string{
		r.Month1, r.Month2, r.Month3, r.Month4, r.Month5, r.Month6,
		r.Month7, r.Month8, r.Month9, r.Month10, r.Month11, r.Month12,
	}
}

// meanReportItem is the report row carrying the mean concentration; the
// report also contains capture-rate and exceedance rows we must skip.
const meanReportItem = "7"

// fetchReport collects annual or monthly means, one API call per year in the
// range. A year whose call fails transiently just yields no points for that
// year (a gap downstream); only a range where every year failed surfaces as a
// fetch failure.
func (c *Client) fetchReport(ctx context.Context, site string, pollutant airquality.PollutantKind, res airquality.Resolution, startYear, endYear int) (airquality.RawSeries, error) {
	var (
		series  airquality.RawSeries
		lastErr error
		failed  int
		years   int
	)

	for year := startYear; year <= endYear; year++ {
		years++

		points, err := c.fetchReportYear(ctx, site, pollutant, res, year)
		if err != nil {
			failed++
			lastErr = err
			if ctx.Err() != nil {
				break
			}
			continue
		}
		series = append(series, points...)
	}

	if failed == years && lastErr != nil {
		return nil, lastErr
	}
	return series, nil
}

func (c *Client) fetchReportYear(ctx context.Context, site string, pollutant airquality.PollutantKind, res airquality.Resolution, year int) (airquality.RawSeries, error) {
	url := fmt.Sprintf("%s/Annual/MonitoringReport/SiteCode=%s/Year=%d/json", c.baseURL, site, year)

	resp, err := c.doRequest(ctx, url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var payload annualReport
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, &airquality.ClientError{
			Kind: airquality.FailureProvider,
			Err:  fmt.Errorf("malformed report payload: %w", err),
		}
	}

	var series airquality.RawSeries
	for _, item := range payload.SiteReport.ReportItem {
		if item.SpeciesCode != string(pollutant) || item.ReportItem != meanReportItem {
			continue
		}
		if !strings.HasPrefix(item.ReportItemName, "Mean:") {
			continue
		}

		if res == airquality.ResolutionAnnual {
			if v, ok := parseReading(item.Annual); ok {
				series = append(series, airquality.RawPoint{
					Timestamp: time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC),
					Value:     v,
				})
			}
			continue
		}

		for i, raw := range item.months() {
			if v, ok := parseReading(raw); ok {
				series = append(series, airquality.RawPoint{
					Timestamp: time.Date(year, time.Month(i+1), 1, 0, 0, 0, 0, time.UTC),
					Value:     v,
				})
			}
		}
	}

	return series, nil
}

// hourlyData is the shape of the raw data endpoint response.
type hourlyData struct {
	AirQualityData struct {
		Data []hourlyItem `json:"Data"`
	} `json:"AirQualityData"`
}

type hourlyItem struct {
	SpeciesCode        string `json:"@SpeciesCode"`
	MeasurementDateGMT string `json:"@MeasurementDateGMT"`
	Value              string `json:"@Value"`
}

// fetchData collects hourly readings for the range and, for the daily
// resolution, averages them into per-day means the way the source network
// publishes daily figures.
func (c *Client) fetchData(ctx context.Context, site string, pollutant airquality.PollutantKind, res airquality.Resolution, start, end time.Time) (airquality.RawSeries, error) {
	url := fmt.Sprintf("%s/Data/Site/SiteCode=%s/StartDate=%s/EndDate=%s/Json",
		c.baseURL, site, start.UTC().Format("2006-01-02"), end.UTC().Format("2006-01-02"))

	resp, err := c.doRequest(ctx, url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var payload hourlyData
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, &airquality.ClientError{
			Kind: airquality.FailureProvider,
			Err:  fmt.Errorf("malformed data payload: %w", err),
		}
	}

	var series airquality.RawSeries
	for _, item := range payload.AirQualityData.Data {
		if item.SpeciesCode != string(pollutant) {
			continue
		}
		v, ok := parseReading(item.Value)
		if !ok {
			continue
		}
		ts, err := time.ParseInLocation(measurementLayout, item.MeasurementDateGMT, time.UTC)
		if err != nil {
			continue
		}
		series = append(series, airquality.RawPoint{Timestamp: ts, Value: v})
	}

	sort.Slice(series, func(i, j int) bool {
		return series[i].Timestamp.Before(series[j].Timestamp)
	})

	if res == airquality.ResolutionDaily {
		series = dailyMeans(series)
	}
	return series, nil
}

// dailyMeans collapses sorted hourly readings into one mean per calendar day,
// stamped at midnight UTC.
func dailyMeans(hourly airquality.RawSeries) airquality.RawSeries {
	type acc struct {
		sum float64
		n   int
	}

	byDay := make(map[time.Time]*acc)
	for _, p := range hourly {
		day := time.Date(p.Timestamp.Year(), p.Timestamp.Month(), p.Timestamp.Day(), 0, 0, 0, 0, time.UTC)
		a, ok := byDay[day]
		if !ok {
			a = &acc{}
			byDay[day] = a
		}
		a.sum += p.Value
		a.n++
	}

	daily := make(airquality.RawSeries, 0, len(byDay))
	for day, a := range byDay {
		daily = append(daily, airquality.RawPoint{Timestamp: day, Value: a.sum / float64(a.n)})
	}
	sort.Slice(daily, func(i, j int) bool {
		return daily[i].Timestamp.Before(daily[j].Timestamp)
	})
	return daily
}

// parseReading converts a wire value to a float, rejecting the provider's
// absent-data sentinel and anything non-numeric.
func parseReading(s string) (float64, bool) {
	if s == "" || s == sentinel {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
