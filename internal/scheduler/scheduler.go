// Package scheduler runs the optional periodic export job: a fresh
// fetch-and-align batch over a trailing window, written out as a timestamped
// CSV file. Every run is stateless; nothing is cached between runs.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/ukaqn/air-quality-timeseries/internal/airquality"
	"github.com/ukaqn/air-quality-timeseries/internal/export"
)

// ExportJob describes the recurring query and its output location.
type ExportJob struct {
	Sites      []string
	Pollutants []airquality.PollutantKind
	Resolution airquality.Resolution
	// Window is the trailing range each run covers, ending at run time.
	Window time.Duration
	OutDir string
}

// Scheduler periodically exports air-quality data for a configured query.
type Scheduler struct {
	scheduler *gocron.Scheduler
	service   *airquality.Service
	job       ExportJob
	interval  time.Duration
}

// New creates a new Scheduler.
func New(service *airquality.Service, job ExportJob, interval time.Duration) *Scheduler {
	s := gocron.NewScheduler(time.UTC)
	return &Scheduler{
		scheduler: s,
		service:   service,
		job:       job,
		interval:  interval,
	}
}

// Start schedules the periodic export and starts the underlying scheduler.
func (s *Scheduler) Start() error {
	if len(s.job.Sites) == 0 || len(s.job.Pollutants) == 0 {
		log.Println("scheduler: no sites or pollutants configured; nothing to schedule")
		return nil
	}

	minutes := int(s.interval.Minutes())
	if minutes <= 0 {
		minutes = 60
	}

	_, err := s.scheduler.Every(minutes).Minutes().Do(func() {
		log.Println("scheduler: running export job")
		if err := s.runOnce(); err != nil {
			log.Printf("scheduler: export failed: %v", err)
			return
		}
		log.Println("scheduler: completed export job")
	})
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	return nil
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}

func (s *Scheduler) runOnce() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	end := time.Now().UTC().Truncate(time.Hour)
	q := airquality.Query{
		Sites:      s.job.Sites,
		Pollutants: s.job.Pollutants,
		Resolution: s.job.Resolution,
		Start:      end.Add(-s.job.Window),
		End:        end,
	}

	result, err := s.service.Run(ctx, q)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(s.job.OutDir, 0o755); err != nil {
		return err
	}

	name := fmt.Sprintf("airquality_%s_%s.csv", s.job.Resolution, end.Format("20060102T1504"))
	path := filepath.Join(s.job.OutDir, name)

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := export.WriteCSV(f, result.Rows); err != nil {
		return err
	}

	log.Printf("scheduler: batch %s wrote %d rows to %s (%d failures)",
		result.BatchID, len(result.Rows), path, len(result.Failures))
	return nil
}
