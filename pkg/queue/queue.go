package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// QueuePipeline is the Redis list key for recording pipeline jobs.
	QueuePipeline = "worker:pipeline"
	// QueueNotifications is the Redis list key for participant notification jobs,
	// drained by the external notification service.
	QueueNotifications = "worker:notifications"
	// QueueDLQ is the dead-letter queue for failed jobs after retries.
	QueueDLQ = "worker:dlq"
	// MaxRetries is the number of times to retry a job before moving to DLQ.
	MaxRetries = 3
	// RetryBackoff is the delay between retries.
	RetryBackoff = 10 * time.Second
)

// JobType identifies the job kind.
type JobType string

const (
	JobTypePipeline     JobType = "recording_pipeline"
	JobTypeNotification JobType = "notification"
)

// PipelinePayload is the payload for recording pipeline jobs. SessionKey pins the
// job to the upload session it was created for; a job carrying a stale key is a no-op.
type PipelinePayload struct {
	MeetingID    uuid.UUID `json:"meeting_id"`
	SessionKey   string    `json:"session_key"`
	LanguageHint string    `json:"language_hint,omitempty"`
}

// NotificationPayload is the payload for participant notification jobs.
type NotificationPayload struct {
	MeetingID uuid.UUID   `json:"meeting_id"`
	UserIDs   []uuid.UUID `json:"user_ids"`
	Event     string      `json:"event"` // recording_completed / recording_failed
	Message   string      `json:"message"`
}

// Job is a generic job envelope.
type Job struct {
	ID        string          `json:"id"`
	Type      JobType         `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Attempt   int             `json:"attempt"`
	CreatedAt time.Time       `json:"created_at"`
}

// Queue enqueues and dequeues jobs via Redis.
type Queue struct {
	client *redis.Client
	logger *zap.Logger
}

// NewQueue creates a new Redis-backed job queue.
func NewQueue(client *redis.Client, logger *zap.Logger) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{client: client, logger: logger}
}

// EnqueuePipeline enqueues a recording pipeline job.
func (q *Queue) EnqueuePipeline(ctx context.Context, payload PipelinePayload) error {
	raw, err := wrap(JobTypePipeline, payload)
	if err != nil {
		return err
	}
	if err := q.client.RPush(ctx, QueuePipeline, raw).Err(); err != nil {
		return fmt.Errorf("rpush: %w", err)
	}
	q.logger.Debug("enqueued pipeline job",
		zap.String("meeting_id", payload.MeetingID.String()),
		zap.String("session_key", payload.SessionKey))
	return nil
}

// EnqueueNotification enqueues a participant notification job.
func (q *Queue) EnqueueNotification(ctx context.Context, payload NotificationPayload) error {
	raw, err := wrap(JobTypeNotification, payload)
	if err != nil {
		return err
	}
	if err := q.client.RPush(ctx, QueueNotifications, raw).Err(); err != nil {
		return fmt.Errorf("rpush: %w", err)
	}
	q.logger.Debug("enqueued notification job",
		zap.String("meeting_id", payload.MeetingID.String()),
		zap.String("event", payload.Event))
	return nil
}

func wrap(t JobType, payload interface{}) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	job := Job{
		ID:        uuid.New().String(),
		Type:      t,
		Payload:   body,
		Attempt:   0,
		CreatedAt: time.Now(),
	}
	raw, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("marshal job: %w", err)
	}
	return raw, nil
}

// Dequeue blocks until a pipeline job is available or ctx is done.
func (q *Queue) Dequeue(ctx context.Context) (*Job, error) {
	result, err := q.client.BLPop(ctx, 0, QueuePipeline).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}
	if len(result) < 2 {
		return nil, nil
	}
	var job Job
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		q.logger.Warn("invalid job payload", zap.String("raw", result[1]), zap.Error(err))
		return nil, nil
	}
	return &job, nil
}

// Retry re-enqueues a job with incremented attempt. If attempt >= MaxRetries, pushes to DLQ instead.
func (q *Queue) Retry(ctx context.Context, job *Job) error {
	job.Attempt++
	raw, err := json.Marshal(job)
	if err != nil {
		return err
	}
	if job.Attempt >= MaxRetries {
		if err := q.client.RPush(ctx, QueueDLQ, raw).Err(); err != nil {
			q.logger.Error("dlq push failed", zap.Error(err), zap.String("job_id", job.ID))
			return err
		}
		q.logger.Warn("job moved to DLQ", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt))
		return nil
	}
	if err := q.client.RPush(ctx, QueuePipeline, raw).Err(); err != nil {
		return err
	}
	q.logger.Info("job retried", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt))
	return nil
}
