package models

import (
	"time"

	"github.com/google/uuid"
)

// Meeting is the scheduling-domain record this service collaborates with. The
// recording pipeline only needs its identity and the two participants.
type Meeting struct {
	ID           uuid.UUID `json:"id"`
	Title        string    `json:"title"`
	EmployeeID   uuid.UUID `json:"employee_id"`
	EmployeeName string    `json:"employee_name"`
	ReporterID   uuid.UUID `json:"reporter_id"`
	ReporterName string    `json:"reporter_name"`
	ScheduledAt  time.Time `json:"scheduled_at"`
}
