package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/ukaqn/air-quality-timeseries/internal/airquality"
)

type AppConfig struct {
	Port string

	// LAQN API root; overridable for tests and mirrors.
	BaseURL string

	// HTTPTimeout bounds each outbound call to the source API.
	HTTPTimeout time.Duration

	// Fetch coordinator tuning.
	MaxInFlight int
	MaxRetries  int
	Backoff     airquality.BackoffConfig
	Tolerances  airquality.Tolerances

	// Scheduled export. Disabled when ExportInterval is zero.
	ExportInterval   time.Duration
	ExportDir        string
	ExportSites      []string
	ExportPollutants []airquality.PollutantKind
	ExportResolution airquality.Resolution
	ExportWindow     time.Duration
}

// Load reads configuration from environment with sensible defaults.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("INFO: No .env file found or error loading it: %v", err)
	}

	cfg := &AppConfig{}

	cfg.Port = getenvDefault("PORT", "8080")
	cfg.BaseURL = getenvDefault("LAQN_BASE_URL", "")

	httpTimeout, err := getenvDuration("HTTP_TIMEOUT", "30s")
	if err != nil {
		return nil, err
	}
	cfg.HTTPTimeout = httpTimeout

	// Zero means one in-flight fetch per selected site.
	cfg.MaxInFlight = getenvInt("FETCH_MAX_IN_FLIGHT", 0)
	cfg.MaxRetries = getenvInt("FETCH_MAX_RETRIES", 2)

	initial, err := getenvDuration("FETCH_BACKOFF_INITIAL", "500ms")
	if err != nil {
		return nil, err
	}
	maxBackoff, err := getenvDuration("FETCH_BACKOFF_MAX", "5s")
	if err != nil {
		return nil, err
	}
	cfg.Backoff = airquality.BackoffConfig{InitialInterval: initial, MaxInterval: maxBackoff}

	dailyTol, err := getenvDuration("TOLERANCE_DAILY", "12h")
	if err != nil {
		return nil, err
	}
	hourlyTol, err := getenvDuration("TOLERANCE_HOURLY", "30m")
	if err != nil {
		return nil, err
	}
	cfg.Tolerances = airquality.Tolerances{Daily: dailyTol, Hourly: hourlyTol}

	if err := loadExport(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadExport reads the scheduled-export settings. The job is opt-in: it only
// runs when EXPORT_INTERVAL is set to a positive duration.
func loadExport(cfg *AppConfig) error {
	intervalStr := os.Getenv("EXPORT_INTERVAL")
	if intervalStr == "" {
		return nil
	}
	interval, err := time.ParseDuration(intervalStr)
	if err != nil {
		return fmt.Errorf("invalid EXPORT_INTERVAL: %w", err)
	}
	cfg.ExportInterval = interval

	cfg.ExportDir = getenvDefault("EXPORT_DIR", "exports")

	for _, s := range splitList(getenvDefault("EXPORT_SITES", "RI2")) {
		cfg.ExportSites = append(cfg.ExportSites, s)
	}
	for _, p := range splitList(getenvDefault("EXPORT_POLLUTANTS", "PM10")) {
		cfg.ExportPollutants = append(cfg.ExportPollutants, airquality.PollutantKind(p))
	}

	res, ok := airquality.ParseResolution(getenvDefault("EXPORT_RESOLUTION", "hourly"))
	if !ok {
		return fmt.Errorf("invalid EXPORT_RESOLUTION")
	}
	cfg.ExportResolution = res

	window, err := getenvDuration("EXPORT_WINDOW", "24h")
	if err != nil {
		return err
	}
	cfg.ExportWindow = window

	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getenvDuration(key, def string) (time.Duration, error) {
	v := getenvDefault(key, def)
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
