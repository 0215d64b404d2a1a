// Package meetings is the read-side collaborator interface into the scheduling
// domain: the recording pipeline only needs to know a meeting exists, who its
// two participants are, and whether a requester may touch its recording.
package meetings

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pulsecheck-hq/backend/internal/models"
)

// Repository reads meeting rows.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a meetings repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetByID returns a meeting, or nil when it does not exist.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Meeting, error) {
	const q = `SELECT id, title, employee_id, employee_name, reporter_id, reporter_name, scheduled_at
		FROM meetings WHERE id = $1`
	var m models.Meeting
	err := r.pool.QueryRow(ctx, q, id).Scan(&m.ID, &m.Title, &m.EmployeeID, &m.EmployeeName, &m.ReporterID, &m.ReporterName, &m.ScheduledAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &m, nil
}

// CanAccess reports whether userID may touch the meeting's recording: admins
// always, otherwise only the meeting's two participants.
func CanAccess(meeting *models.Meeting, userID uuid.UUID, role string) bool {
	if meeting == nil {
		return false
	}
	if role == "admin" {
		return true
	}
	return meeting.EmployeeID == userID || meeting.ReporterID == userID
}
