// Package worker runs the recording pipeline: transcription then analysis,
// detached from the originating HTTP request. It is the single owner of
// terminal failure decisions; nothing below it writes the failed status.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pulsecheck-hq/backend/internal/models"
	"github.com/pulsecheck-hq/backend/internal/notify"
	"github.com/pulsecheck-hq/backend/internal/recordings"
	"github.com/pulsecheck-hq/backend/internal/transcribe"
	"github.com/pulsecheck-hq/backend/internal/upstream"
	"github.com/pulsecheck-hq/backend/pkg/queue"
	"github.com/pulsecheck-hq/backend/pkg/storage"
)

// recordingStore is the slice of the recordings repository the pipeline needs.
// Every mutation is guarded by session key; ErrStaleSession aborts the job.
type recordingStore interface {
	GetByMeeting(ctx context.Context, meetingID uuid.UUID) (*models.Recording, error)
	MarkTranscribing(ctx context.Context, meetingID uuid.UUID, sessionKey string) error
	MarkAnalyzing(ctx context.Context, meetingID uuid.UUID, sessionKey, transcript, language string, measuredDuration int) error
	MarkCompleted(ctx context.Context, meetingID uuid.UUID, sessionKey string, a *models.Analysis) error
	MarkFailed(ctx context.Context, meetingID uuid.UUID, sessionKey, message string) error
}

type meetingStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Meeting, error)
}

type transcriber interface {
	Transcribe(ctx context.Context, audio []byte, languageHint string) (*transcribe.Result, error)
}

type analyzer interface {
	Analyze(ctx context.Context, transcript, employeeName, reporterName string) (*models.Analysis, error)
}

// PipelineProcessor processes recording pipeline jobs.
type PipelineProcessor struct {
	recRepo     recordingStore
	meetingRepo meetingStore
	store       storage.BlobStore
	stt         transcriber
	llm         analyzer
	notifier    notify.Notifier
	queue       *queue.Queue
	jobTimeout  time.Duration
	logger      *zap.Logger
}

// NewPipelineProcessor creates a pipeline processor.
func NewPipelineProcessor(recRepo recordingStore, meetingRepo meetingStore, store storage.BlobStore, stt transcriber, llm analyzer, notifier notify.Notifier, q *queue.Queue, jobTimeout time.Duration, logger *zap.Logger) *PipelineProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if jobTimeout <= 0 {
		jobTimeout = 15 * time.Minute
	}
	return &PipelineProcessor{
		recRepo:     recRepo,
		meetingRepo: meetingRepo,
		store:       store,
		stt:         stt,
		llm:         llm,
		notifier:    notifier,
		queue:       q,
		jobTimeout:  jobTimeout,
		logger:      logger,
	}
}

// Process executes one pipeline job. It returns an error only for
// infrastructure failures worth a queue-level retry; upstream failures are
// terminal and persisted as the failed status instead.
func (p *PipelineProcessor) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypePipeline {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	var payload queue.PipelinePayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}
	log := p.logger.With(
		zap.String("meeting_id", payload.MeetingID.String()),
		zap.String("session_key", payload.SessionKey))

	ctx, cancel := context.WithTimeout(ctx, p.jobTimeout)
	defer cancel()

	rec, err := p.recRepo.GetByMeeting(ctx, payload.MeetingID)
	if err != nil {
		return fmt.Errorf("load recording: %w", err)
	}
	if rec == nil || rec.SessionKey != payload.SessionKey {
		log.Info("pipeline job is stale, skipping")
		return nil
	}
	if rec.Status == models.RecordingStatusCompleted {
		log.Info("recording already completed, skipping")
		return nil
	}

	meeting, err := p.meetingRepo.GetByID(ctx, payload.MeetingID)
	if err != nil || meeting == nil {
		return fmt.Errorf("load meeting: %w", err)
	}

	// Transcription stage. Status advances before the external call so readers
	// see progress, not a stale prior state.
	if err := p.recRepo.MarkTranscribing(ctx, payload.MeetingID, payload.SessionKey); err != nil {
		return p.abortOnStale(err, log)
	}
	audio, err := p.store.Get(ctx, storage.FinalKey(payload.SessionKey))
	if err != nil {
		return p.fail(ctx, meeting, payload,
			upstream.Newf(upstream.KindTransient, "storage", "canonical artifact unavailable"), log)
	}

	var result *transcribe.Result
	err = p.withSingleRetry(ctx, func() error {
		var terr error
		result, terr = p.stt.Transcribe(ctx, audio, payload.LanguageHint)
		return terr
	})
	if err != nil {
		return p.fail(ctx, meeting, payload, err, log)
	}
	if err := p.recRepo.MarkAnalyzing(ctx, payload.MeetingID, payload.SessionKey, result.Text, result.Language, result.Duration); err != nil {
		return p.abortOnStale(err, log)
	}
	log.Info("transcription completed", zap.String("language", result.Language), zap.Int("duration", result.Duration))

	// Analysis stage.
	var analysis *models.Analysis
	err = p.withSingleRetry(ctx, func() error {
		var aerr error
		analysis, aerr = p.llm.Analyze(ctx, result.Text, meeting.EmployeeName, meeting.ReporterName)
		return aerr
	})
	if err != nil {
		return p.fail(ctx, meeting, payload, err, log)
	}
	if err := p.recRepo.MarkCompleted(ctx, payload.MeetingID, payload.SessionKey, analysis); err != nil {
		return p.abortOnStale(err, log)
	}
	log.Info("analysis completed", zap.Int("quality_score", analysis.QualityScore))

	if err := p.notifier.RecordingCompleted(ctx, meeting); err != nil {
		log.Warn("completion notification failed", zap.Error(err))
	}
	return nil
}

// withSingleRetry runs fn, retrying exactly once after a short backoff when the
// failure is transient. All other upstream kinds are terminal immediately.
func (p *PipelineProcessor) withSingleRetry(ctx context.Context, fn func() error) error {
	attempt := 0
	operation := func() error {
		attempt++
		err := fn()
		if err == nil {
			return nil
		}
		if !upstream.Retryable(err) {
			return backoff.Permanent(err)
		}
		if attempt > 1 {
			return backoff.Permanent(err)
		}
		p.logger.Warn("transient upstream failure, retrying once", zap.Error(err))
		return err
	}
	bo := backoff.WithContext(backoff.NewExponentialBackOff(), ctx)
	return backoff.Retry(operation, bo)
}

// fail is the single place a pipeline run becomes terminal: sanitize, persist
// failed status, notify. Stale-session writes are discarded quietly.
func (p *PipelineProcessor) fail(ctx context.Context, meeting *models.Meeting, payload queue.PipelinePayload, cause error, log *zap.Logger) error {
	msg := upstream.Sanitize(upstream.UserMessage(cause))
	log.Error("pipeline failed", zap.Error(cause), zap.String("user_message", msg))
	if err := p.recRepo.MarkFailed(ctx, payload.MeetingID, payload.SessionKey, msg); err != nil {
		if errors.Is(err, recordings.ErrStaleSession) {
			log.Info("failure belongs to a superseded session, discarded")
			return nil
		}
		return fmt.Errorf("mark failed: %w", err)
	}
	if err := p.notifier.RecordingFailed(ctx, meeting, msg); err != nil {
		log.Warn("failure notification failed", zap.Error(err))
	}
	return nil
}

func (p *PipelineProcessor) abortOnStale(err error, log *zap.Logger) error {
	if errors.Is(err, recordings.ErrStaleSession) {
		log.Info("session superseded mid-pipeline, aborting")
		return nil
	}
	return err
}

// Run starts the worker loop: dequeue, process, retry on infrastructure error.
func (p *PipelineProcessor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("pipeline worker stopping")
			return
		default:
		}

		job, err := p.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				p.logger.Info("pipeline worker stopping")
				return
			}
			p.logger.Warn("dequeue error", zap.Error(err))
			time.Sleep(queue.RetryBackoff)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Error(err))
			if reErr := p.queue.Retry(ctx, job); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			time.Sleep(queue.RetryBackoff)
			continue
		}
	}
}
