package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/ukaqn/air-quality-timeseries/internal/airquality"
	"github.com/ukaqn/air-quality-timeseries/internal/airquality/laqn"
	httpapi "github.com/ukaqn/air-quality-timeseries/internal/api/http"
	"github.com/ukaqn/air-quality-timeseries/internal/catalog"
	"github.com/ukaqn/air-quality-timeseries/internal/config"
	"github.com/ukaqn/air-quality-timeseries/internal/export"
	"github.com/ukaqn/air-quality-timeseries/internal/metrics"
	"github.com/ukaqn/air-quality-timeseries/internal/scheduler"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "airq",
		Short: "UK air quality time series aggregation",
		Long:  "Fetches, aligns and exports air quality series from the London Air Quality Network.",
	}

	rootCmd.AddCommand(serveCmd(), exportCmd(), sitesCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// buildService assembles the pipeline from config: shared HTTP client, LAQN
// source client and the fetch coordinator.
func buildService(cfg *config.AppConfig, mx *metrics.Metrics) *airquality.Service {
	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
	}

	client := laqn.New(httpClient, cfg.BaseURL)

	return airquality.NewService(client, airquality.Options{
		MaxInFlight: cfg.MaxInFlight,
		MaxRetries:  cfg.MaxRetries,
		Backoff:     cfg.Backoff,
		Tolerances:  cfg.Tolerances,
	}, mx)
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		Run: func(cmd *cobra.Command, args []string) {
			cfg, err := config.Load()
			if err != nil {
				log.Fatalf("failed to load config: %v", err)
			}

			registry := prometheus.NewRegistry()
			mx := metrics.New(registry)
			service := buildService(cfg, mx)

			if cfg.ExportInterval > 0 {
				sched := scheduler.New(service, scheduler.ExportJob{
					Sites:      cfg.ExportSites,
					Pollutants: cfg.ExportPollutants,
					Resolution: cfg.ExportResolution,
					Window:     cfg.ExportWindow,
					OutDir:     cfg.ExportDir,
				}, cfg.ExportInterval)
				if err := sched.Start(); err != nil {
					log.Fatalf("failed to start scheduler: %v", err)
				}
				defer sched.Stop()
			}

			app := fiber.New(fiber.Config{
				AppName:               "air-quality-timeseries",
				DisableStartupMessage: true,
				ReadTimeout:           10 * time.Second,
				WriteTimeout:          60 * time.Second,
				ErrorHandler: func(c *fiber.Ctx, err error) error {
					code := fiber.StatusInternalServerError
					if e, ok := err.(*fiber.Error); ok {
						code = e.Code
					}
					return c.Status(code).JSON(fiber.Map{
						"error":   true,
						"message": err.Error(),
					})
				},
			})

			app.Use(logger.New())
			app.Use(recover.New())

			app.Get("/health", func(c *fiber.Ctx) error {
				return c.JSON(fiber.Map{
					"status":  "ok",
					"service": "air-quality-timeseries",
				})
			})

			app.Get("/metrics", adaptor.HTTPHandler(
				promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

			httpapi.RegisterRoutes(app, service)

			go func() {
				if err := app.Listen(":" + cfg.Port); err != nil {
					log.Printf("fiber server stopped: %v", err)
				}
			}()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			<-ctx.Done()

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			if err := app.ShutdownWithContext(shutdownCtx); err != nil {
				log.Printf("error during shutdown: %v", err)
			}
		},
	}
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Run one query and write the tidy table as CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			sites, _ := cmd.Flags().GetStringSlice("sites")
			pollutantsFlag, _ := cmd.Flags().GetStringSlice("pollutants")
			resolutionFlag, _ := cmd.Flags().GetString("resolution")
			startFlag, _ := cmd.Flags().GetString("start")
			endFlag, _ := cmd.Flags().GetString("end")
			outPath, _ := cmd.Flags().GetString("out")

			resolution, ok := airquality.ParseResolution(resolutionFlag)
			if !ok {
				return fmt.Errorf("unknown resolution %q", resolutionFlag)
			}

			start, err := parseFlagTime(startFlag)
			if err != nil {
				return fmt.Errorf("invalid --start: %w", err)
			}
			end, err := parseFlagTime(endFlag)
			if err != nil {
				return fmt.Errorf("invalid --end: %w", err)
			}

			pollutants := make([]airquality.PollutantKind, 0, len(pollutantsFlag))
			for _, p := range pollutantsFlag {
				pollutants = append(pollutants, airquality.PollutantKind(p))
			}

			service := buildService(cfg, nil)

			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
			defer cancel()

			result, err := service.Run(ctx, airquality.Query{
				Sites:      sites,
				Pollutants: pollutants,
				Resolution: resolution,
				Start:      start,
				End:        end,
			})
			if err != nil {
				return err
			}

			out := os.Stdout
			if outPath != "" {
				f, err := os.Create(outPath)
				if err != nil {
					return err
				}
				defer f.Close()
				out = f
			}

			if err := export.WriteCSV(out, result.Rows); err != nil {
				return err
			}

			for _, f := range result.Failures {
				fmt.Fprintf(os.Stderr, "warning: %s/%s unavailable: %s\n", f.Site, f.Pollutant, f.Reason)
			}
			return nil
		},
	}

	cmd.Flags().StringSlice("sites", []string{"RI2"}, "site codes to fetch")
	cmd.Flags().StringSlice("pollutants", []string{"PM10"}, "pollutant species codes (PM10, PM25, NO2)")
	cmd.Flags().StringP("resolution", "r", "annual", "resolution (annual, monthly, daily, hourly)")
	cmd.Flags().String("start", "2000", "range start (RFC3339, YYYY-MM-DD or year)")
	cmd.Flags().String("end", "2024", "range end (RFC3339, YYYY-MM-DD or year)")
	cmd.Flags().StringP("out", "o", "", "output file (default stdout)")

	return cmd
}

func sitesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sites",
		Short: "List the monitoring site catalog",
		Run: func(cmd *cobra.Command, args []string) {
			for _, s := range catalog.Sites() {
				fmt.Printf("%-4s %-40s %s\n", s.Code, s.Name, s.Borough)
			}
		},
	}
}

func parseFlagTime(s string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts.UTC(), nil
	}
	if ts, err := time.Parse("2006-01-02", s); err == nil {
		return ts.UTC(), nil
	}
	if ts, err := time.Parse("2006", s); err == nil {
		return ts.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", s)
}
