package worker

import (
	"errors"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/pickgear/backend/internal/storage/models"
	"github.com/pickgear/backend/internal/storage/sqlite"
	"github.com/pickgear/backend/pkg/logger"
)

// ScheduleStore is the schedule surface of *sqlite.Store.
type ScheduleStore interface {
	GetSchedule() (*models.PipelineSchedule, error)
	CreateJob(trigger models.JobTrigger, category string, makers []string) (*models.PipelineJob, error)
}

// Scheduler keeps a single cron entry in sync with the stored schedule. The
// schedule row is the source of truth; Reconcile is called periodically so
// edits made through the api take effect without restarting the worker.
type Scheduler struct {
	store ScheduleStore
	cron  *cron.Cron

	entryID cron.EntryID
	spec    string
}

func NewScheduler(store ScheduleStore) *Scheduler {
	return &Scheduler{store: store, cron: cron.New()}
}

func (s *Scheduler) Start() { s.cron.Start() }
func (s *Scheduler) Stop()  { s.cron.Stop() }

// Reconcile reads the stored schedule and replaces the cron entry when it
// changed. A disabled schedule removes the entry.
func (s *Scheduler) Reconcile() error {
	sched, err := s.store.GetSchedule()
	if err != nil {
		return fmt.Errorf("load schedule: %w", err)
	}

	if !sched.Enabled {
		if s.entryID != 0 {
			s.cron.Remove(s.entryID)
			s.entryID = 0
			s.spec = ""
			logger.Info("Scheduled pipeline disabled")
		}
		return nil
	}

	spec, err := buildCronSpec(sched)
	if err != nil {
		return err
	}
	if spec == s.spec {
		return nil
	}

	if s.entryID != 0 {
		s.cron.Remove(s.entryID)
	}

	id, err := s.cron.AddFunc(spec, s.enqueue)
	if err != nil {
		return fmt.Errorf("register cron spec %q: %w", spec, err)
	}
	s.entryID = id
	s.spec = spec
	logger.Info("Scheduled pipeline updated", zap.String("cron", spec))
	return nil
}

// enqueue creates a SCHEDULER job. The schedule row is re-read at fire time
// so category and maker edits apply to the next run even when the fire time
// itself did not change. A conflict means a run is already in flight; the
// tick is simply skipped.
func (s *Scheduler) enqueue() {
	sched, err := s.store.GetSchedule()
	if err != nil {
		logger.Error("Failed to load schedule for scheduled run", zap.Error(err))
		return
	}
	if !sched.Enabled {
		return
	}

	job, err := s.store.CreateJob(models.TriggerScheduler, sched.Category, sched.Makers)
	if errors.Is(err, sqlite.ErrJobConflict) {
		logger.Info("Scheduled run skipped: a job is already active")
		return
	}
	if err != nil {
		logger.Error("Failed to enqueue scheduled job", zap.Error(err))
		return
	}
	logger.Info("Scheduled job enqueued", zap.String("job_id", job.ID))
}

func buildCronSpec(sched *models.PipelineSchedule) (string, error) {
	if sched.Hour < 0 || sched.Hour > 23 || sched.Minute < 0 || sched.Minute > 59 {
		return "", fmt.Errorf("invalid schedule time %02d:%02d", sched.Hour, sched.Minute)
	}

	switch sched.Frequency {
	case models.FrequencyDaily:
		return fmt.Sprintf("%d %d * * *", sched.Minute, sched.Hour), nil
	case models.FrequencyWeekly:
		if sched.DayOfWeek == nil || *sched.DayOfWeek < 0 || *sched.DayOfWeek > 6 {
			return "", errors.New("weekly schedule requires day_of_week in 0..6")
		}
		return fmt.Sprintf("%d %d * * %d", sched.Minute, sched.Hour, *sched.DayOfWeek), nil
	default:
		return "", fmt.Errorf("unknown schedule frequency %q", sched.Frequency)
	}
}
