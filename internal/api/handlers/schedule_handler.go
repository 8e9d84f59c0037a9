package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/pickgear/backend/internal/storage/models"
	"github.com/pickgear/backend/pkg/logger"
)

// ScheduleStore is the schedule surface of *sqlite.Store.
type ScheduleStore interface {
	GetSchedule() (*models.PipelineSchedule, error)
	SaveSchedule(sched *models.PipelineSchedule) error
}

type ScheduleHandler struct {
	store ScheduleStore
}

func NewScheduleHandler(store ScheduleStore) *ScheduleHandler {
	return &ScheduleHandler{store: store}
}

func (h *ScheduleHandler) GetSchedule(c *fiber.Ctx) error {
	sched, err := h.store.GetSchedule()
	if err != nil {
		logger.Error("Failed to load schedule", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load schedule",
		})
	}
	return c.JSON(sched)
}

// UpdateSchedule replaces the singleton schedule. The worker picks the
// change up on its next refresh tick.
func (h *ScheduleHandler) UpdateSchedule(c *fiber.Ctx) error {
	var sched models.PipelineSchedule
	if err := c.BodyParser(&sched); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if msg := validateSchedule(&sched); msg != "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": msg,
		})
	}

	if err := h.store.SaveSchedule(&sched); err != nil {
		logger.Error("Failed to save schedule", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to save schedule",
		})
	}

	logger.Info("Pipeline schedule updated",
		zap.Bool("enabled", sched.Enabled),
		zap.String("frequency", sched.Frequency))
	return c.JSON(&sched)
}

func validateSchedule(sched *models.PipelineSchedule) string {
	switch sched.Frequency {
	case models.FrequencyDaily:
	case models.FrequencyWeekly:
		if sched.DayOfWeek == nil || *sched.DayOfWeek < 0 || *sched.DayOfWeek > 6 {
			return "Weekly schedule requires dayOfWeek between 0 and 6"
		}
	default:
		return "Frequency must be daily or weekly"
	}

	if sched.Hour < 0 || sched.Hour > 23 {
		return "Hour must be between 0 and 23"
	}
	if sched.Minute < 0 || sched.Minute > 59 {
		return "Minute must be between 0 and 59"
	}
	if sched.Category == "" {
		return "Category is required"
	}
	if len(sched.Makers) == 0 {
		return "At least one maker is required"
	}
	return ""
}
