package recordings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pulsecheck-hq/backend/internal/models"
	"github.com/pulsecheck-hq/backend/pkg/storage"
)

// ErrStaleSession is returned by guarded updates when the recording no longer
// references the caller's session key, i.e. a newer session has started and the
// caller's write must be discarded.
var ErrStaleSession = errors.New("recording session superseded")

// Repository persists the one-per-meeting Recording row. Every status-advancing
// update is conditional on the session key the caller started with, so a stale
// background job can never corrupt a newer session.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a recordings repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const recordingCols = `meeting_id, session_key, status, duration, file_size, final_key,
	transcript, language, summary, key_points, auto_todos, sentiment,
	quality_score, quality_details, error_message, recorded_at, processed_at, created_at, updated_at`

func scanRecording(row pgx.Row) (*models.Recording, error) {
	var rec models.Recording
	var keyPoints, autoTodos []byte
	var sentiment, qualityDetails []byte
	err := row.Scan(&rec.MeetingID, &rec.SessionKey, &rec.Status, &rec.Duration, &rec.FileSize, &rec.FinalKey,
		&rec.Transcript, &rec.Language, &rec.Summary, &keyPoints, &autoTodos, &sentiment,
		&rec.QualityScore, &qualityDetails, &rec.ErrorMessage, &rec.RecordedAt, &rec.ProcessedAt, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(keyPoints) > 0 {
		if err := json.Unmarshal(keyPoints, &rec.KeyPoints); err != nil {
			return nil, fmt.Errorf("decode key_points: %w", err)
		}
	}
	if len(autoTodos) > 0 {
		if err := json.Unmarshal(autoTodos, &rec.AutoTodos); err != nil {
			return nil, fmt.Errorf("decode auto_todos: %w", err)
		}
	}
	if len(sentiment) > 0 {
		rec.Sentiment = &models.Sentiment{}
		if err := json.Unmarshal(sentiment, rec.Sentiment); err != nil {
			return nil, fmt.Errorf("decode sentiment: %w", err)
		}
	}
	if len(qualityDetails) > 0 {
		rec.QualityDetails = &models.QualityDetails{}
		if err := json.Unmarshal(qualityDetails, rec.QualityDetails); err != nil {
			return nil, fmt.Errorf("decode quality_details: %w", err)
		}
	}
	return &rec, nil
}

// GetByMeeting returns the recording for a meeting, or nil when none exists.
func (r *Repository) GetByMeeting(ctx context.Context, meetingID uuid.UUID) (*models.Recording, error) {
	q := `SELECT ` + recordingCols + ` FROM recordings WHERE meeting_id = $1`
	rec, err := scanRecording(r.pool.QueryRow(ctx, q, meetingID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return rec, nil
}

// StartSession creates or resets the recording row for a meeting and returns
// the new session key. All derived fields are cleared; any in-flight pipeline
// for the previous session key becomes stale.
func (r *Repository) StartSession(ctx context.Context, meetingID uuid.UUID) (string, error) {
	sessionKey := storage.SessionKey(meetingID.String(), time.Now())
	const q = `INSERT INTO recordings (meeting_id, session_key, status, recorded_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (meeting_id) DO UPDATE SET
			session_key = EXCLUDED.session_key,
			status = EXCLUDED.status,
			duration = 0,
			file_size = 0,
			final_key = '',
			transcript = NULL,
			language = '',
			summary = NULL,
			key_points = '[]',
			auto_todos = '[]',
			sentiment = NULL,
			quality_score = 0,
			quality_details = NULL,
			error_message = NULL,
			recorded_at = NOW(),
			processed_at = NULL,
			updated_at = NOW()`
	if _, err := r.pool.Exec(ctx, q, meetingID, sessionKey, models.RecordingStatusNone); err != nil {
		return "", fmt.Errorf("start session: %w", err)
	}
	return sessionKey, nil
}

// AddChunkSize accumulates chunk bytes into file_size with a database-level
// atomic increment; concurrent chunk uploads for the same session must not
// read-modify-write.
func (r *Repository) AddChunkSize(ctx context.Context, meetingID uuid.UUID, sessionKey string, n int64) error {
	const q = `UPDATE recordings SET file_size = file_size + $1, updated_at = NOW()
		WHERE meeting_id = $2 AND session_key = $3`
	tag, err := r.pool.Exec(ctx, q, n, meetingID, sessionKey)
	if err != nil {
		return fmt.Errorf("add chunk size: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrStaleSession
	}
	return nil
}

// MarkUploaded records the canonical artifact: storage pointer swap, recomputed
// size, reported duration, status uploaded.
func (r *Repository) MarkUploaded(ctx context.Context, meetingID uuid.UUID, sessionKey, finalKey string, fileSize int64, duration int) error {
	const q = `UPDATE recordings SET status = $1, final_key = $2, file_size = $3, duration = $4, updated_at = NOW()
		WHERE meeting_id = $5 AND session_key = $6`
	return r.guarded(ctx, q, models.RecordingStatusUploaded, finalKey, fileSize, duration, meetingID, sessionKey)
}

// MarkTranscribing advances status before the speech-to-text call begins.
func (r *Repository) MarkTranscribing(ctx context.Context, meetingID uuid.UUID, sessionKey string) error {
	const q = `UPDATE recordings SET status = $1, updated_at = NOW()
		WHERE meeting_id = $2 AND session_key = $3`
	return r.guarded(ctx, q, models.RecordingStatusTranscribing, meetingID, sessionKey)
}

// MarkAnalyzing persists the transcript and detected language and advances
// status before the analysis call begins. A non-zero measured duration
// overrides the client-reported one.
func (r *Repository) MarkAnalyzing(ctx context.Context, meetingID uuid.UUID, sessionKey, transcript, language string, measuredDuration int) error {
	const q = `UPDATE recordings SET status = $1, transcript = $2, language = $3,
			duration = CASE WHEN $4 > 0 THEN $4 ELSE duration END, updated_at = NOW()
		WHERE meeting_id = $5 AND session_key = $6`
	return r.guarded(ctx, q, models.RecordingStatusAnalyzing, transcript, language, measuredDuration, meetingID, sessionKey)
}

// MarkCompleted persists the analysis result and finishes the pipeline.
func (r *Repository) MarkCompleted(ctx context.Context, meetingID uuid.UUID, sessionKey string, a *models.Analysis) error {
	keyPoints, err := json.Marshal(a.KeyPoints)
	if err != nil {
		return fmt.Errorf("encode key_points: %w", err)
	}
	autoTodos, err := json.Marshal(a.SuggestedTodos)
	if err != nil {
		return fmt.Errorf("encode auto_todos: %w", err)
	}
	sentiment, err := json.Marshal(a.Sentiment)
	if err != nil {
		return fmt.Errorf("encode sentiment: %w", err)
	}
	qualityDetails, err := json.Marshal(a.QualityDetails)
	if err != nil {
		return fmt.Errorf("encode quality_details: %w", err)
	}
	const q = `UPDATE recordings SET status = $1, summary = $2, key_points = $3, auto_todos = $4,
			sentiment = $5, quality_score = $6, quality_details = $7, error_message = NULL,
			processed_at = NOW(), updated_at = NOW()
		WHERE meeting_id = $8 AND session_key = $9`
	return r.guarded(ctx, q, models.RecordingStatusCompleted, a.Summary, keyPoints, autoTodos,
		sentiment, a.QualityScore, qualityDetails, meetingID, sessionKey)
}

// MarkFailed terminates the session with a sanitized message.
func (r *Repository) MarkFailed(ctx context.Context, meetingID uuid.UUID, sessionKey, message string) error {
	const q = `UPDATE recordings SET status = $1, error_message = $2, processed_at = NOW(), updated_at = NOW()
		WHERE meeting_id = $3 AND session_key = $4`
	return r.guarded(ctx, q, models.RecordingStatusFailed, message, meetingID, sessionKey)
}

// Delete removes the recording row. Administrative action; storage cleanup is
// the caller's concern.
func (r *Repository) Delete(ctx context.Context, meetingID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM recordings WHERE meeting_id = $1`, meetingID)
	return err
}

func (r *Repository) guarded(ctx context.Context, q string, args ...interface{}) error {
	tag, err := r.pool.Exec(ctx, q, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrStaleSession
	}
	return nil
}
