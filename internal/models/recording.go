package models

import (
	"time"

	"github.com/google/uuid"
)

// Recording status lifecycle. A session starts at "none" (awaiting chunks) and
// is advanced by the combiner and the pipeline worker.
const (
	RecordingStatusNone         = "none"
	RecordingStatusUploaded     = "uploaded"
	RecordingStatusTranscribing = "transcribing"
	RecordingStatusAnalyzing    = "analyzing"
	RecordingStatusCompleted    = "completed"
	RecordingStatusFailed       = "failed"
)

// Todo priorities and assignee roles produced by analysis.
const (
	PriorityHigh   = "HIGH"
	PriorityMedium = "MEDIUM"
	PriorityLow    = "LOW"

	AssigneeEmployee = "employee"
	AssigneeReporter = "reporter"
)

// Recording is the single evolving record of a meeting's audio: upload session,
// combined artifact, transcript, and derived insight. One row per meeting.
type Recording struct {
	MeetingID      uuid.UUID       `json:"meeting_id"`
	SessionKey     string          `json:"session_key,omitempty"`
	Status         string          `json:"status"`
	Duration       int             `json:"duration"`
	FileSize       int64           `json:"file_size"`
	FinalKey       string          `json:"final_key,omitempty"`
	Transcript     *string         `json:"transcript,omitempty"`
	Language       string          `json:"language,omitempty"`
	Summary        *string         `json:"summary,omitempty"`
	KeyPoints      []string        `json:"key_points"`
	AutoTodos      []Todo          `json:"auto_todos"`
	Sentiment      *Sentiment      `json:"sentiment,omitempty"`
	QualityScore   int             `json:"quality_score"`
	QualityDetails *QualityDetails `json:"quality_details,omitempty"`
	ErrorMessage   *string         `json:"error_message,omitempty"`
	RecordedAt     time.Time       `json:"recorded_at"`
	ProcessedAt    *time.Time      `json:"processed_at,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Todo is a suggested action item derived from the conversation.
type Todo struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	AssignTo    string `json:"assign_to"` // employee | reporter
	Priority    string `json:"priority"`  // HIGH | MEDIUM | LOW
}

// Sentiment describes the conversation's emotional tenor.
type Sentiment struct {
	Score              float64 `json:"score"` // -1..1
	Label              string  `json:"label"` // positive | neutral | negative
	EmployeeMood       string  `json:"employee_mood"`
	ReporterEngagement string  `json:"reporter_engagement"`
	OverallTone        string  `json:"overall_tone"`
}

// QualityDetails breaks the 1-100 quality score into 1-10 sub-scores.
type QualityDetails struct {
	Clarity         int    `json:"clarity"`
	Actionability   int    `json:"actionability"`
	Engagement      int    `json:"engagement"`
	GoalAlignment   int    `json:"goal_alignment"`
	FollowUp        int    `json:"follow_up"`
	OverallFeedback string `json:"overall_feedback"`
}

// Analysis is the full structured result of the analysis stage.
type Analysis struct {
	Summary        string         `json:"summary"`
	KeyPoints      []string       `json:"key_points"`
	SuggestedTodos []Todo         `json:"suggested_todos"`
	Sentiment      Sentiment      `json:"sentiment"`
	QualityScore   int            `json:"quality_score"`
	QualityDetails QualityDetails `json:"quality_details"`
}
