// Package notify hands completion and failure notices to the external
// notification system. Delivery is not this service's concern; it only says
// which users to inform and why.
package notify

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pulsecheck-hq/backend/internal/models"
	"github.com/pulsecheck-hq/backend/pkg/queue"
)

// Notifier informs meeting participants about recording outcomes.
type Notifier interface {
	RecordingCompleted(ctx context.Context, meeting *models.Meeting) error
	RecordingFailed(ctx context.Context, meeting *models.Meeting, reason string) error
}

// QueueNotifier enqueues notification jobs for the external notification
// service to drain.
type QueueNotifier struct {
	queue  *queue.Queue
	logger *zap.Logger
}

// NewQueueNotifier creates a queue-backed notifier.
func NewQueueNotifier(q *queue.Queue, logger *zap.Logger) *QueueNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QueueNotifier{queue: q, logger: logger}
}

// RecordingCompleted notifies both participants that the recording insight is ready.
func (n *QueueNotifier) RecordingCompleted(ctx context.Context, meeting *models.Meeting) error {
	return n.queue.EnqueueNotification(ctx, queue.NotificationPayload{
		MeetingID: meeting.ID,
		UserIDs:   []uuid.UUID{meeting.EmployeeID, meeting.ReporterID},
		Event:     "recording_completed",
		Message:   "Your meeting recording has been transcribed and analyzed.",
	})
}

// RecordingFailed notifies both participants that processing failed and a new
// recording attempt is needed.
func (n *QueueNotifier) RecordingFailed(ctx context.Context, meeting *models.Meeting, reason string) error {
	return n.queue.EnqueueNotification(ctx, queue.NotificationPayload{
		MeetingID: meeting.ID,
		UserIDs:   []uuid.UUID{meeting.EmployeeID, meeting.ReporterID},
		Event:     "recording_failed",
		Message:   "Recording processing failed: " + reason,
	})
}
