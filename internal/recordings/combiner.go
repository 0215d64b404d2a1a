package recordings

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pulsecheck-hq/backend/internal/models"
	"github.com/pulsecheck-hq/backend/pkg/queue"
	"github.com/pulsecheck-hq/backend/pkg/storage"
)

var (
	// ErrNoActiveSession means no upload session exists for the meeting.
	ErrNoActiveSession = errors.New("no active recording session")
	// ErrIncompleteUpload means at least one chunk in 0..totalChunks-1 is missing.
	ErrIncompleteUpload = errors.New("incomplete upload")
	// ErrEmptyArtifact means the combined audio is below the minimum plausible size.
	ErrEmptyArtifact = errors.New("combined recording is empty or too small")
)

// recordingStore is the slice of Repository the combiner needs.
type recordingStore interface {
	GetByMeeting(ctx context.Context, meetingID uuid.UUID) (*models.Recording, error)
	MarkUploaded(ctx context.Context, meetingID uuid.UUID, sessionKey, finalKey string, fileSize int64, duration int) error
}

// pipelineEnqueuer hands the finished artifact off to the background pipeline.
type pipelineEnqueuer interface {
	EnqueuePipeline(ctx context.Context, payload queue.PipelinePayload) error
}

// Combiner turns a session's chunks into the one canonical artifact and hands
// off to the pipeline worker. It is the single point that re-imposes sequence
// order on chunks that arrived concurrently and out of order.
type Combiner struct {
	store            storage.BlobStore
	repo             recordingStore
	queue            pipelineEnqueuer
	minArtifactBytes int64
	logger           *zap.Logger
}

// NewCombiner creates a combiner.
func NewCombiner(store storage.BlobStore, repo recordingStore, q pipelineEnqueuer, minArtifactBytes int64, logger *zap.Logger) *Combiner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Combiner{store: store, repo: repo, queue: q, minArtifactBytes: minArtifactBytes, logger: logger}
}

// Finalize downloads chunks 0..totalChunks-1 in sequence order, concatenates
// them, uploads the canonical artifact, swaps the recording's storage pointer
// with a recomputed size, and enqueues the transcription/analysis job. Chunk
// cleanup runs detached; its failure never fails finalization.
//
// The recording row is left untouched on any integrity failure so the caller
// can retry or start a fresh session.
func (cb *Combiner) Finalize(ctx context.Context, meetingID uuid.UUID, totalChunks, reportedDuration int, languageHint string) error {
	rec, err := cb.repo.GetByMeeting(ctx, meetingID)
	if err != nil {
		return fmt.Errorf("load recording: %w", err)
	}
	if rec == nil || rec.SessionKey == "" {
		return ErrNoActiveSession
	}
	sessionKey := rec.SessionKey

	var combined bytes.Buffer
	for seq := 0; seq < totalChunks; seq++ {
		data, err := cb.store.Get(ctx, storage.ChunkKey(sessionKey, seq))
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return fmt.Errorf("%w: chunk %d of %d missing", ErrIncompleteUpload, seq, totalChunks)
			}
			return fmt.Errorf("download chunk %d: %w", seq, err)
		}
		combined.Write(data)
	}

	if int64(combined.Len()) < cb.minArtifactBytes {
		return fmt.Errorf("%w: %d bytes", ErrEmptyArtifact, combined.Len())
	}

	finalKey := storage.FinalKey(sessionKey)
	if err := cb.store.Put(ctx, finalKey, combined.Bytes(), storage.AudioContentType); err != nil {
		return fmt.Errorf("upload combined artifact: %w", err)
	}

	// Size is recomputed from the artifact, not taken from the ingestion counter.
	if err := cb.repo.MarkUploaded(ctx, meetingID, sessionKey, finalKey, int64(combined.Len()), reportedDuration); err != nil {
		return fmt.Errorf("mark uploaded: %w", err)
	}

	if err := cb.queue.EnqueuePipeline(ctx, queue.PipelinePayload{
		MeetingID:    meetingID,
		SessionKey:   sessionKey,
		LanguageHint: languageHint,
	}); err != nil {
		return fmt.Errorf("enqueue pipeline: %w", err)
	}

	cb.logger.Info("recording finalized",
		zap.String("meeting_id", meetingID.String()),
		zap.String("final_key", finalKey),
		zap.Int("chunks", totalChunks),
		zap.Int("size", combined.Len()))

	go func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		CleanupChunks(cleanupCtx, cb.store, sessionKey, totalChunks, cb.logger)
	}()

	return nil
}
