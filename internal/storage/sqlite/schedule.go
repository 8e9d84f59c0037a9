package sqlite

import (
	"database/sql"
	"fmt"

	"github.com/pickgear/backend/internal/storage/models"
)

// GetSchedule returns the singleton schedule row, falling back to the seed
// default when the row has never been written.
func (s *Store) GetSchedule() (*models.PipelineSchedule, error) {
	row := s.db.QueryRow(`
		SELECT enabled, frequency, hour, minute, day_of_week, category, makers
		FROM pipeline_schedule WHERE id = 1`)

	var sched models.PipelineSchedule
	var enabled int
	var dayOfWeek sql.NullInt64
	var makers string
	err := row.Scan(&enabled, &sched.Frequency, &sched.Hour, &sched.Minute,
		&dayOfWeek, &sched.Category, &makers)
	if err == sql.ErrNoRows {
		return models.DefaultSchedule(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan schedule: %w", err)
	}

	sched.Enabled = enabled != 0
	if dayOfWeek.Valid {
		d := int(dayOfWeek.Int64)
		sched.DayOfWeek = &d
	}
	sched.Makers = decodeMakers(makers)
	return &sched, nil
}

// SaveSchedule upserts the singleton row. The CHECK (id = 1) constraint in
// the schema keeps it singular.
func (s *Store) SaveSchedule(sched *models.PipelineSchedule) error {
	enabled := 0
	if sched.Enabled {
		enabled = 1
	}
	var dayOfWeek sql.NullInt64
	if sched.DayOfWeek != nil {
		dayOfWeek = sql.NullInt64{Int64: int64(*sched.DayOfWeek), Valid: true}
	}

	_, err := s.db.Exec(`
		INSERT INTO pipeline_schedule (id, enabled, frequency, hour, minute, day_of_week, category, makers)
		VALUES (1, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			enabled = excluded.enabled,
			frequency = excluded.frequency,
			hour = excluded.hour,
			minute = excluded.minute,
			day_of_week = excluded.day_of_week,
			category = excluded.category,
			makers = excluded.makers`,
		enabled, sched.Frequency, sched.Hour, sched.Minute, dayOfWeek,
		sched.Category, encodeMakers(sched.Makers))
	if err != nil {
		return fmt.Errorf("failed to save schedule: %w", err)
	}
	return nil
}
