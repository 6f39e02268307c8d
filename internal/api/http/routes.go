package httpapi

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/ukaqn/air-quality-timeseries/internal/airquality"
	"github.com/ukaqn/air-quality-timeseries/internal/catalog"
	"github.com/ukaqn/air-quality-timeseries/internal/export"
)

var validate = validator.New()

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, service *airquality.Service) {
	v1 := app.Group("/api/v1/airquality")

	v1.Get("/sites", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"sites": catalog.Sites()})
	})

	v1.Get("/pollutants", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"pollutants": catalog.Pollutants()})
	})

	v1.Get("/series", func(c *fiber.Ctx) error {
		result, err := runSeriesQuery(c, service)
		if err != nil {
			return err
		}
		return c.JSON(result)
	})

	v1.Get("/series.csv", func(c *fiber.Ctx) error {
		result, err := runSeriesQuery(c, service)
		if err != nil {
			return err
		}

		c.Set(fiber.HeaderContentType, "text/csv; charset=utf-8")
		c.Set(fiber.HeaderContentDisposition, `attachment; filename="airquality_`+result.BatchID+`.csv"`)

		var buf strings.Builder
		if err := export.WriteCSV(&buf, result.Rows); err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "failed to serialize export")
		}
		return c.SendString(buf.String())
	})
}

func runSeriesQuery(c *fiber.Ctx, service *airquality.Service) (*airquality.Result, error) {
	var req seriesQuery
	if err := req.bind(c); err != nil {
		return nil, fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	if err := validate.Struct(req); err != nil {
		return nil, fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	result, err := service.Run(c.UserContext(), req.toQuery())
	if err != nil {
		if errors.Is(err, airquality.ErrValidation) {
			return nil, fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		return nil, fiber.NewError(fiber.StatusInternalServerError, "failed to fetch air quality data")
	}
	return result, nil
}

// seriesQuery holds the query parameters of the series endpoints.
type seriesQuery struct {
	Sites      []string  `validate:"required,min=1"`
	Pollutants []string  `validate:"required,min=1"`
	Resolution string    `validate:"required"`
	Start      time.Time `validate:"required"`
	End        time.Time `validate:"required,gtefield=Start"`
}

func (q *seriesQuery) bind(c *fiber.Ctx) error {
	q.Sites = splitParam(c.Query("sites"))
	q.Pollutants = splitParam(c.Query("pollutants"))
	q.Resolution = c.Query("resolution")

	startStr := c.Query("start")
	endStr := c.Query("end")
	if startStr == "" || endStr == "" {
		return errors.New("start and end query parameters are required")
	}

	start, _, err := parseTime(startStr)
	if err != nil {
		return err
	}
	end, bareDate, err := parseTime(endStr)
	if err != nil {
		return err
	}

	// A bare end date on an hourly query means the whole of that day.
	if bareDate && q.Resolution == string(airquality.ResolutionHourly) {
		end = end.Add(23 * time.Hour)
	}

	q.Start = start
	q.End = end
	return nil
}

func (q seriesQuery) toQuery() airquality.Query {
	pollutants := make([]airquality.PollutantKind, 0, len(q.Pollutants))
	for _, p := range q.Pollutants {
		pollutants = append(pollutants, airquality.PollutantKind(p))
	}
	return airquality.Query{
		Sites:      q.Sites,
		Pollutants: pollutants,
		Resolution: airquality.Resolution(q.Resolution),
		Start:      q.Start,
		End:        q.End,
	}
}

func splitParam(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// parseTime accepts RFC3339, a bare date (2006-01-02) or a bare year. The
// second return reports whether the input was a bare date, so hourly queries
// can widen it to cover the whole day.
func parseTime(s string) (time.Time, bool, error) {
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts.UTC(), false, nil
	}
	if ts, err := time.Parse("2006-01-02", s); err == nil {
		return ts.UTC(), true, nil
	}
	if year, err := strconv.Atoi(s); err == nil && year >= 1900 && year <= 2100 {
		return time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC), false, nil
	}
	return time.Time{}, false, errors.New("invalid time format; use RFC3339, YYYY-MM-DD or a year")
}
