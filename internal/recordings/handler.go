package recordings

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pulsecheck-hq/backend/internal/meetings"
	"github.com/pulsecheck-hq/backend/internal/middleware"
	"github.com/pulsecheck-hq/backend/internal/models"
	"github.com/pulsecheck-hq/backend/pkg/response"
	"github.com/pulsecheck-hq/backend/pkg/storage"
)

// Handler handles recording HTTP endpoints: session start, chunk ingress,
// finalize, read and delete.
type Handler struct {
	repo             *Repository
	meetingRepo      *meetings.Repository
	store            storage.BlobStore
	combiner         *Combiner
	maxChunkBytes    int64
	speechConfigured bool
	logger           *zap.Logger
}

// NewHandler creates a recordings handler. speechConfigured reports whether the
// transcription/analysis credential is present; finalize is rejected without it
// rather than failing mid-pipeline.
func NewHandler(repo *Repository, meetingRepo *meetings.Repository, store storage.BlobStore, combiner *Combiner, maxChunkBytes int64, speechConfigured bool, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		repo:             repo,
		meetingRepo:      meetingRepo,
		store:            store,
		combiner:         combiner,
		maxChunkBytes:    maxChunkBytes,
		speechConfigured: speechConfigured,
		logger:           logger,
	}
}

// requireMeeting loads the meeting and enforces participant access. On failure
// it writes the response and returns nil.
func (h *Handler) requireMeeting(c *gin.Context) *models.Meeting {
	meetingID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid meeting id")
		return nil
	}
	meeting, err := h.meetingRepo.GetByID(c.Request.Context(), meetingID)
	if err != nil {
		h.logger.Error("load meeting failed", zap.Error(err), zap.String("meeting_id", meetingID.String()))
		response.Internal(c, "failed to load meeting")
		return nil
	}
	if meeting == nil {
		response.NotFound(c, "meeting not found")
		return nil
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	role := c.GetString(middleware.ContextUserRole)
	if !meetings.CanAccess(meeting, userID, role) {
		response.Forbidden(c, "not a participant of this meeting")
		return nil
	}
	return meeting
}

// StartSession handles POST /meetings/:id/recording/session. Creates or resets
// the recording row and returns the new session key. Any previous in-flight
// pipeline for this meeting becomes stale.
func (h *Handler) StartSession(c *gin.Context) {
	meeting := h.requireMeeting(c)
	if meeting == nil {
		return
	}
	if h.store == nil || !h.store.IsConfigured() {
		response.ServiceUnavailable(c, "recording storage not configured")
		return
	}
	sessionKey, err := h.repo.StartSession(c.Request.Context(), meeting.ID)
	if err != nil {
		h.logger.Error("start session failed", zap.Error(err), zap.String("meeting_id", meeting.ID.String()))
		response.Internal(c, "failed to start recording session")
		return
	}
	h.logger.Info("recording session started", zap.String("meeting_id", meeting.ID.String()), zap.String("session_key", sessionKey))
	response.Created(c, gin.H{"session_key": sessionKey})
}

// UploadChunk handles POST /meetings/:id/recording/chunk?seq=N with a raw audio
// body. Chunks may arrive concurrently and out of order; a retried upload at
// the same sequence overwrites the same object key, which is the idempotence
// contract. Ordering is re-imposed at finalize time.
func (h *Handler) UploadChunk(c *gin.Context) {
	meeting := h.requireMeeting(c)
	if meeting == nil {
		return
	}
	seq, err := strconv.Atoi(c.Query("seq"))
	if err != nil || seq < 0 {
		response.BadRequest(c, "seq must be a non-negative integer")
		return
	}

	rec, err := h.repo.GetByMeeting(c.Request.Context(), meeting.ID)
	if err != nil {
		h.logger.Error("load recording failed", zap.Error(err), zap.String("meeting_id", meeting.ID.String()))
		response.Internal(c, "failed to load recording")
		return
	}
	if rec == nil || rec.SessionKey == "" || rec.Status != models.RecordingStatusNone {
		response.BadRequest(c, "no active recording session, start a session first")
		return
	}

	body := http.MaxBytesReader(c.Writer, c.Request.Body, h.maxChunkBytes)
	data, err := io.ReadAll(body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.PayloadTooLarge(c, "chunk exceeds maximum size")
			return
		}
		response.BadRequest(c, "failed to read chunk body")
		return
	}
	if len(data) == 0 {
		response.BadRequest(c, "chunk payload is empty")
		return
	}

	chunkKey := storage.ChunkKey(rec.SessionKey, seq)
	if err := h.store.Put(c.Request.Context(), chunkKey, data, storage.AudioContentType); err != nil {
		h.logger.Error("chunk upload failed", zap.Error(err), zap.String("chunk_key", chunkKey))
		response.Internal(c, "failed to store chunk")
		return
	}
	if err := h.repo.AddChunkSize(c.Request.Context(), meeting.ID, rec.SessionKey, int64(len(data))); err != nil {
		if errors.Is(err, ErrStaleSession) {
			response.Conflict(c, "recording session was replaced")
			return
		}
		h.logger.Error("accumulate chunk size failed", zap.Error(err), zap.String("meeting_id", meeting.ID.String()))
		response.Internal(c, "failed to record chunk")
		return
	}
	response.OK(c, gin.H{"chunk_key": chunkKey, "sequence": seq})
}

// FinalizeRequest is the body for POST /meetings/:id/recording/finalize.
type FinalizeRequest struct {
	TotalChunks int    `json:"total_chunks" binding:"required,min=1"`
	Duration    int    `json:"duration"`
	Language    string `json:"language"`
}

// Finalize handles POST /meetings/:id/recording/finalize. Combines the chunks
// into the canonical artifact and schedules transcription and analysis; the
// response is a 202-style acknowledgment, the pipeline continues in the
// background worker.
func (h *Handler) Finalize(c *gin.Context) {
	meeting := h.requireMeeting(c)
	if meeting == nil {
		return
	}
	var req FinalizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if h.store == nil || !h.store.IsConfigured() {
		response.ServiceUnavailable(c, "recording storage not configured")
		return
	}
	if !h.speechConfigured {
		response.BadRequest(c, "transcription service credential not configured")
		return
	}

	err := h.combiner.Finalize(c.Request.Context(), meeting.ID, req.TotalChunks, req.Duration, req.Language)
	switch {
	case err == nil:
	case errors.Is(err, ErrNoActiveSession):
		response.BadRequest(c, "no active recording session")
		return
	case errors.Is(err, ErrIncompleteUpload):
		response.BadRequest(c, err.Error())
		return
	case errors.Is(err, ErrEmptyArtifact):
		response.BadRequest(c, err.Error())
		return
	default:
		h.logger.Error("finalize failed", zap.Error(err), zap.String("meeting_id", meeting.ID.String()))
		response.Internal(c, "failed to finalize recording")
		return
	}

	response.Accepted(c, gin.H{"message": "Processing started", "meeting_id": meeting.ID})
}

// Get handles GET /meetings/:id/recording. Collaborator-facing read of the full
// recording record, including pipeline status and derived insight.
func (h *Handler) Get(c *gin.Context) {
	meeting := h.requireMeeting(c)
	if meeting == nil {
		return
	}
	rec, err := h.repo.GetByMeeting(c.Request.Context(), meeting.ID)
	if err != nil {
		h.logger.Error("load recording failed", zap.Error(err), zap.String("meeting_id", meeting.ID.String()))
		response.Internal(c, "failed to load recording")
		return
	}
	if rec == nil {
		response.NotFound(c, "no recording for this meeting")
		return
	}
	response.OK(c, rec)
}

// Delete handles DELETE /meetings/:id/recording. Removes the row and the whole
// storage prefix for the meeting. Admin only (enforced at the route).
func (h *Handler) Delete(c *gin.Context) {
	meeting := h.requireMeeting(c)
	if meeting == nil {
		return
	}
	if err := h.repo.Delete(c.Request.Context(), meeting.ID); err != nil {
		h.logger.Error("delete recording failed", zap.Error(err), zap.String("meeting_id", meeting.ID.String()))
		response.Internal(c, "failed to delete recording")
		return
	}
	if h.store != nil && h.store.IsConfigured() {
		prefix := storage.FolderRecordings + "/" + meeting.ID.String()
		if n, err := h.store.DeletePrefix(c.Request.Context(), prefix); err != nil {
			h.logger.Warn("storage cleanup after delete failed", zap.Error(err), zap.String("prefix", prefix))
		} else {
			h.logger.Info("recording storage removed", zap.String("prefix", prefix), zap.Int("deleted", n))
		}
	}
	response.NoContent(c)
}
