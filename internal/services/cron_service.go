package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sawaari/driveshare-backend/internal/models"
	"github.com/sawaari/driveshare-backend/pkg/monitoring"
)

// CronSchedules holds the cron specs (with seconds) for the background jobs. An empty spec disables that job.
type CronSchedules struct {
	Sweep          string
	AutoComplete   string
	AuditRetention string
	AuditMaxAge    time.Duration
}

// CronService manages scheduled background jobs
type CronService struct {
	cron      *cron.Cron
	sweeper   *ExpirySweeper
	audit     *AuditService
	newRelic  *monitoring.NewRelicApp
	schedules CronSchedules
}

// NewCronService creates a new CronService
func NewCronService(sweeper *ExpirySweeper, audit *AuditService, newRelic *monitoring.NewRelicApp, schedules CronSchedules) *CronService {
	// Cron format: second minute hour day month weekday
	c := cron.New(cron.WithSeconds())

	return &CronService{
		cron:      c,
		sweeper:   sweeper,
		audit:     audit,
		newRelic:  newRelic,
		schedules: schedules,
	}
}

// Start starts all cron jobs
func (s *CronService) Start() error {
	log.Println("Starting cron service...")

	// Job 1: all-trips expiry pass; request paths still sweep lazily on their own
	if s.schedules.Sweep != "" {
		if _, err := s.cron.AddFunc(s.schedules.Sweep, s.sweepExpiredJob); err != nil {
			return fmt.Errorf("failed to schedule sweep job: %w", err)
		}
		log.Printf("✓ Scheduled: Sweep lapsed seat holds (%s)\n", s.schedules.Sweep)
	}

	// Job 2: mark trips whose date has passed as Completed
	if s.schedules.AutoComplete != "" {
		if _, err := s.cron.AddFunc(s.schedules.AutoComplete, s.completePastTripsJob); err != nil {
			return fmt.Errorf("failed to schedule auto-complete job: %w", err)
		}
		log.Printf("✓ Scheduled: Complete past trips (%s)\n", s.schedules.AutoComplete)
	}

	// Job 3: audit log retention
	if s.schedules.AuditRetention != "" && s.audit != nil {
		if _, err := s.cron.AddFunc(s.schedules.AuditRetention, s.cleanupAuditLogsJob); err != nil {
			return fmt.Errorf("failed to schedule audit cleanup job: %w", err)
		}
		log.Printf("✓ Scheduled: Cleanup audit logs older than %v (%s)\n", s.schedules.AuditMaxAge, s.schedules.AuditRetention)
	}

	s.cron.Start()
	log.Println("✓ Cron service started successfully")

	return nil
}

// Stop stops all cron jobs and waits for running ones to finish
func (s *CronService) Stop() {
	log.Println("Stopping cron service...")
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Println("✓ Cron service stopped")
}

// sweepExpiredJob expires lapsed pending bookings on every trip
func (s *CronService) sweepExpiredJob() {
	s.runSweep()
}

func (s *CronService) runSweep() (models.SweepResult, error) {
	startTime := time.Now()

	txn := s.newRelic.StartTransaction("cron/sweep-expired")
	defer txn.End()

	result, err := s.sweeper.SweepAll(context.Background())
	if err != nil {
		txn.NoticeError(err)
		log.Printf("[CRON ERROR] Failed to sweep expired bookings: %v\n", err)
		return result, err
	}

	duration := time.Since(startTime)
	s.newRelic.RecordSweep(len(result.Expired), result.SeatsReleased, result.TripsCompleted, duration)
	if len(result.Expired) > 0 || result.TripsCompleted > 0 {
		log.Printf("[CRON] ✓ Expired %d booking(s), released %d seat(s), completed %d trip(s) in %v\n",
			len(result.Expired), result.SeatsReleased, result.TripsCompleted, duration)
	}
	return result, nil
}

// completePastTripsJob marks trips dated before today as Completed
func (s *CronService) completePastTripsJob() {
	log.Println("[CRON] Starting complete past trips job...")
	startTime := time.Now()

	completed, err := s.sweeper.CompletePastTrips(context.Background())
	if err != nil {
		log.Printf("[CRON ERROR] Failed to complete past trips: %v\n", err)
		return
	}

	log.Printf("[CRON] ✓ Completed %d trip(s) in %v\n", completed, time.Since(startTime))
}

// cleanupAuditLogsJob removes audit rows past the retention window
func (s *CronService) cleanupAuditLogsJob() {
	log.Println("[CRON] Starting audit log cleanup job...")

	removed, err := s.audit.CleanupOldAuditLogs(s.schedules.AuditMaxAge)
	if err != nil {
		log.Printf("[CRON ERROR] Failed to cleanup audit logs: %v\n", err)
		return
	}

	log.Printf("[CRON] ✓ Removed %d audit log(s)\n", removed)
}

// RunSweepNow runs the expiry pass immediately (maintenance and admin use)
func (s *CronService) RunSweepNow() (models.SweepResult, error) {
	log.Println("[MANUAL] Running expiry sweep now...")
	return s.runSweep()
}

// GetJobStatus returns the status of scheduled jobs
func (s *CronService) GetJobStatus() map[string]interface{} {
	entries := s.cron.Entries()

	jobs := make([]map[string]interface{}, 0, len(entries))
	for _, entry := range entries {
		jobs = append(jobs, map[string]interface{}{
			"id":       entry.ID,
			"next_run": entry.Next,
			"prev_run": entry.Prev,
		})
	}

	return map[string]interface{}{
		"running":   len(entries) > 0,
		"job_count": len(entries),
		"jobs":      jobs,
	}
}
