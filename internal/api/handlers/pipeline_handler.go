package handlers

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/pickgear/backend/internal/storage/models"
	"github.com/pickgear/backend/internal/storage/sqlite"
	"github.com/pickgear/backend/pkg/logger"
)

const (
	latestLogLines  = 100
	historyPageSize = 20

	logStreamPollInterval = time.Second
)

// PipelineStore is the job-queue surface the handlers need from
// *sqlite.Store.
type PipelineStore interface {
	CreateJob(trigger models.JobTrigger, category string, makers []string) (*models.PipelineJob, error)
	LatestJob() (*models.PipelineJob, error)
	JobByID(jobID string) (*models.PipelineJob, error)
	RecentJobs(limit int) ([]models.PipelineJob, error)
	JobLogs(jobID string, limit int) ([]models.PipelineLog, error)
	JobLogsAfter(jobID string, afterID int64) ([]models.PipelineLog, error)
	GetSchedule() (*models.PipelineSchedule, error)
}

type PipelineHandler struct {
	store PipelineStore
}

func NewPipelineHandler(store PipelineStore) *PipelineHandler {
	return &PipelineHandler{store: store}
}

// CreateJob enqueues a manual pipeline run. Category and makers default to
// the stored schedule when the request body omits them. Returns 409 when a
// job is already pending or running.
func (h *PipelineHandler) CreateJob(c *fiber.Ctx) error {
	var req struct {
		Category string   `json:"category"`
		Makers   []string `json:"makers"`
	}
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid request body",
			})
		}
	}

	if req.Category == "" || len(req.Makers) == 0 {
		sched, err := h.store.GetSchedule()
		if err != nil {
			logger.Error("Failed to load schedule defaults", zap.Error(err))
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to create job",
			})
		}
		if req.Category == "" {
			req.Category = sched.Category
		}
		if len(req.Makers) == 0 {
			req.Makers = sched.Makers
		}
	}

	job, err := h.store.CreateJob(models.TriggerManual, req.Category, req.Makers)
	if errors.Is(err, sqlite.ErrJobConflict) {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "A pipeline job is already pending or running",
		})
	}
	if err != nil {
		logger.Error("Failed to create pipeline job", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create job",
		})
	}

	logger.Info("Pipeline job created",
		zap.String("job_id", job.ID),
		zap.String("category", job.Category))
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"jobId":  job.ID,
		"status": job.Status,
	})
}

// LatestStatus returns the most recent job with its last log lines, or 204
// when no job has ever run.
func (h *PipelineHandler) LatestStatus(c *fiber.Ctx) error {
	job, err := h.store.LatestJob()
	if err != nil {
		logger.Error("Failed to load latest job", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load job status",
		})
	}
	if job == nil {
		return c.SendStatus(fiber.StatusNoContent)
	}

	logs, err := h.store.JobLogs(job.ID, latestLogLines)
	if err != nil {
		logger.Error("Failed to load job logs", zap.String("job_id", job.ID), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load job logs",
		})
	}

	return c.JSON(fiber.Map{
		"job":  job,
		"logs": logMessages(logs),
	})
}

// History returns the most recent jobs, newest first.
func (h *PipelineHandler) History(c *fiber.Ctx) error {
	jobs, err := h.store.RecentJobs(historyPageSize)
	if err != nil {
		logger.Error("Failed to load job history", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load job history",
		})
	}
	if jobs == nil {
		jobs = []models.PipelineJob{}
	}
	return c.JSON(fiber.Map{"jobs": jobs})
}

// JobByID returns one job with its full log.
func (h *PipelineHandler) JobByID(c *fiber.Ctx) error {
	jobID := c.Params("jobId")

	job, err := h.store.JobByID(jobID)
	if err != nil {
		logger.Error("Failed to load job", zap.String("job_id", jobID), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load job",
		})
	}
	if job == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Job not found",
		})
	}

	logs, err := h.store.JobLogs(job.ID, 0)
	if err != nil {
		logger.Error("Failed to load job logs", zap.String("job_id", jobID), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load job logs",
		})
	}

	return c.JSON(fiber.Map{
		"job":  job,
		"logs": logMessages(logs),
	})
}

// StreamLogs streams log lines for a job over a websocket, polling the log
// table and pushing anything new. The stream closes once the job reaches a
// terminal state and all its lines have been sent.
func (h *PipelineHandler) StreamLogs(conn *websocket.Conn) {
	jobID := conn.Query("jobId")
	if jobID == "" {
		conn.WriteJSON(fiber.Map{"error": "jobId query parameter is required"})
		conn.Close()
		return
	}

	logger.Info("Log stream opened", zap.String("job_id", jobID))
	defer func() {
		conn.Close()
		logger.Info("Log stream closed", zap.String("job_id", jobID))
	}()

	var lastID int64
	for {
		job, err := h.store.JobByID(jobID)
		if err != nil {
			conn.WriteJSON(fiber.Map{"error": "Failed to load job"})
			return
		}
		if job == nil {
			conn.WriteJSON(fiber.Map{"error": "Job not found"})
			return
		}

		lines, err := h.store.JobLogsAfter(jobID, lastID)
		if err != nil {
			conn.WriteJSON(fiber.Map{"error": "Failed to load job logs"})
			return
		}
		for _, line := range lines {
			if err := conn.WriteJSON(fiber.Map{
				"type":    "log",
				"message": line.Message,
				"time":    line.CreatedAt.Unix(),
			}); err != nil {
				return
			}
			lastID = line.ID
		}

		if job.Status == models.JobDone || job.Status == models.JobFailed {
			conn.WriteJSON(fiber.Map{
				"type":   "done",
				"status": job.Status,
			})
			return
		}

		time.Sleep(logStreamPollInterval)
	}
}

func logMessages(logs []models.PipelineLog) []fiber.Map {
	out := make([]fiber.Map, 0, len(logs))
	for _, l := range logs {
		out = append(out, fiber.Map{
			"message": l.Message,
			"time":    l.CreatedAt.Unix(),
		})
	}
	return out
}
