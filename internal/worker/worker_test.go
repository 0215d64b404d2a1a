package worker

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulsecheck-hq/backend/internal/models"
	"github.com/pulsecheck-hq/backend/internal/recordings"
	"github.com/pulsecheck-hq/backend/internal/transcribe"
	"github.com/pulsecheck-hq/backend/internal/upstream"
	"github.com/pulsecheck-hq/backend/pkg/queue"
	"github.com/pulsecheck-hq/backend/pkg/storage"
)

type fakeRecStore struct {
	rec *models.Recording

	transcribingCalls int
	analyzingCalls    int
	completedCalls    int
	failedCalls       int

	transcript    string
	language      string
	duration      int
	analysis      *models.Analysis
	failedMessage string

	staleOnTranscribing bool
}

func (f *fakeRecStore) GetByMeeting(_ context.Context, _ uuid.UUID) (*models.Recording, error) {
	return f.rec, nil
}

func (f *fakeRecStore) MarkTranscribing(_ context.Context, _ uuid.UUID, _ string) error {
	f.transcribingCalls++
	if f.staleOnTranscribing {
		return recordings.ErrStaleSession
	}
	return nil
}

func (f *fakeRecStore) MarkAnalyzing(_ context.Context, _ uuid.UUID, _, transcript, language string, duration int) error {
	f.analyzingCalls++
	f.transcript = transcript
	f.language = language
	f.duration = duration
	return nil
}

func (f *fakeRecStore) MarkCompleted(_ context.Context, _ uuid.UUID, _ string, a *models.Analysis) error {
	f.completedCalls++
	f.analysis = a
	return nil
}

func (f *fakeRecStore) MarkFailed(_ context.Context, _ uuid.UUID, _, message string) error {
	f.failedCalls++
	f.failedMessage = message
	return nil
}

type fakeMeetingStore struct {
	meeting *models.Meeting
}

func (f *fakeMeetingStore) GetByID(_ context.Context, _ uuid.UUID) (*models.Meeting, error) {
	return f.meeting, nil
}

type fakeBlob struct {
	audio []byte
}

func (f *fakeBlob) Put(context.Context, string, []byte, string) error { return nil }
func (f *fakeBlob) Get(context.Context, string) ([]byte, error) {
	if f.audio == nil {
		return nil, storage.ErrNotFound
	}
	return f.audio, nil
}
func (f *fakeBlob) Delete(context.Context, string) error { return nil }
func (f *fakeBlob) ListPrefix(context.Context, string) ([]string, error) { return nil, nil }
func (f *fakeBlob) DeletePrefix(context.Context, string) (int, error) { return 0, nil }
func (f *fakeBlob) IsConfigured() bool { return true }

type fakeTranscriber struct {
	calls  int
	errs   []error // consumed per call; nil entry means success
	result *transcribe.Result
}

func (f *fakeTranscriber) Transcribe(_ context.Context, _ []byte, _ string) (*transcribe.Result, error) {
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	return f.result, nil
}

type fakeAnalyzer struct {
	calls    int
	err      error
	analysis *models.Analysis
}

func (f *fakeAnalyzer) Analyze(_ context.Context, _, _, _ string) (*models.Analysis, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.analysis, nil
}

type fakeNotifier struct {
	completed int
	failed    int
	reason    string
}

func (f *fakeNotifier) RecordingCompleted(_ context.Context, _ *models.Meeting) error {
	f.completed++
	return nil
}

func (f *fakeNotifier) RecordingFailed(_ context.Context, _ *models.Meeting, reason string) error {
	f.failed++
	f.reason = reason
	return nil
}

const testSession = "recordings/m/1712345678"

func pipelineJob(t *testing.T, meetingID uuid.UUID, sessionKey string) *queue.Job {
	t.Helper()
	raw, err := json.Marshal(queue.PipelinePayload{MeetingID: meetingID, SessionKey: sessionKey, LanguageHint: "en"})
	require.NoError(t, err)
	return &queue.Job{ID: uuid.New().String(), Type: queue.JobTypePipeline, Payload: raw, CreatedAt: time.Now()}
}

func testFixture(rec *fakeRecStore, stt *fakeTranscriber, llm *fakeAnalyzer, n *fakeNotifier) (*PipelineProcessor, uuid.UUID) {
	meetingID := uuid.New()
	meetings := &fakeMeetingStore{meeting: &models.Meeting{
		ID:           meetingID,
		EmployeeID:   uuid.New(),
		ReporterID:   uuid.New(),
		EmployeeName: "Ana",
		ReporterName: "Bram",
	}}
	if rec.rec == nil {
		rec.rec = &models.Recording{MeetingID: meetingID, SessionKey: testSession, Status: models.RecordingStatusUploaded}
	}
	p := NewPipelineProcessor(rec, meetings, &fakeBlob{audio: []byte("webm")}, stt, llm, n, nil, time.Minute, nil)
	return p, meetingID
}

func TestProcessHappyPath(t *testing.T) {
	rec := &fakeRecStore{}
	stt := &fakeTranscriber{result: &transcribe.Result{Text: "we talked", Language: "en", Duration: 90}}
	llm := &fakeAnalyzer{analysis: &models.Analysis{Summary: "good talk", QualityScore: 75}}
	n := &fakeNotifier{}
	p, meetingID := testFixture(rec, stt, llm, n)

	require.NoError(t, p.Process(context.Background(), pipelineJob(t, meetingID, testSession)))

	assert.Equal(t, 1, rec.transcribingCalls)
	assert.Equal(t, 1, rec.analyzingCalls)
	assert.Equal(t, "we talked", rec.transcript)
	assert.Equal(t, "en", rec.language)
	assert.Equal(t, 90, rec.duration, "measured duration persisted")
	assert.Equal(t, 1, rec.completedCalls)
	assert.Equal(t, "good talk", rec.analysis.Summary)
	assert.Equal(t, 0, rec.failedCalls)
	assert.Equal(t, 1, n.completed)
	assert.Equal(t, 0, n.failed)
}

func TestProcessAuthFailureIsTerminal(t *testing.T) {
	rec := &fakeRecStore{}
	stt := &fakeTranscriber{errs: []error{
		upstream.Newf(upstream.KindAuth, "transcription", "credential rejected (401): invalid key sk-abcdefgh12345678"),
	}}
	llm := &fakeAnalyzer{analysis: &models.Analysis{Summary: "unused"}}
	n := &fakeNotifier{}
	p, meetingID := testFixture(rec, stt, llm, n)

	require.NoError(t, p.Process(context.Background(), pipelineJob(t, meetingID, testSession)),
		"upstream failures are terminal, not queue retries")

	assert.Equal(t, 1, stt.calls, "auth errors are never retried")
	assert.Equal(t, 0, llm.calls)
	assert.Equal(t, 0, rec.analyzingCalls)
	assert.Equal(t, 0, rec.completedCalls)
	assert.Equal(t, 1, rec.failedCalls)
	assert.NotContains(t, rec.failedMessage, "sk-abcdefgh12345678", "credential must not reach the stored message")
	assert.Equal(t, 1, n.failed)
	assert.Equal(t, rec.failedMessage, n.reason)
	assert.Equal(t, 0, n.completed)
}

func TestProcessTransientRetriedOnce(t *testing.T) {
	rec := &fakeRecStore{}
	stt := &fakeTranscriber{
		errs:   []error{upstream.Newf(upstream.KindTransient, "transcription", "service error (502)")},
		result: &transcribe.Result{Text: "second try", Language: "en", Duration: 30},
	}
	llm := &fakeAnalyzer{analysis: &models.Analysis{Summary: "fine", QualityScore: 60}}
	n := &fakeNotifier{}
	p, meetingID := testFixture(rec, stt, llm, n)

	require.NoError(t, p.Process(context.Background(), pipelineJob(t, meetingID, testSession)))

	assert.Equal(t, 2, stt.calls)
	assert.Equal(t, 1, rec.completedCalls)
	assert.Equal(t, 0, rec.failedCalls)
}

func TestProcessTransientExhaustedFails(t *testing.T) {
	transient := upstream.Newf(upstream.KindTransient, "transcription", "service error (503)")
	rec := &fakeRecStore{}
	stt := &fakeTranscriber{errs: []error{transient, transient, transient}}
	llm := &fakeAnalyzer{}
	n := &fakeNotifier{}
	p, meetingID := testFixture(rec, stt, llm, n)

	require.NoError(t, p.Process(context.Background(), pipelineJob(t, meetingID, testSession)))

	assert.Equal(t, 2, stt.calls, "exactly one retry")
	assert.Equal(t, 1, rec.failedCalls)
	assert.Equal(t, 1, n.failed)
}

func TestProcessStaleSessionSkipped(t *testing.T) {
	meetingID := uuid.New()
	rec := &fakeRecStore{rec: &models.Recording{
		MeetingID:  meetingID,
		SessionKey: "recordings/m/9999999999", // a newer session superseded the job's
		Status:     models.RecordingStatusUploaded,
	}}
	stt := &fakeTranscriber{}
	n := &fakeNotifier{}
	p, _ := testFixture(rec, stt, &fakeAnalyzer{}, n)

	require.NoError(t, p.Process(context.Background(), pipelineJob(t, meetingID, testSession)))

	assert.Equal(t, 0, rec.transcribingCalls)
	assert.Equal(t, 0, stt.calls)
	assert.Equal(t, 0, rec.failedCalls)
	assert.Equal(t, 0, n.failed)
}

func TestProcessCompletedSkipped(t *testing.T) {
	meetingID := uuid.New()
	rec := &fakeRecStore{rec: &models.Recording{
		MeetingID:  meetingID,
		SessionKey: testSession,
		Status:     models.RecordingStatusCompleted,
	}}
	stt := &fakeTranscriber{}
	p, _ := testFixture(rec, stt, &fakeAnalyzer{}, &fakeNotifier{})

	require.NoError(t, p.Process(context.Background(), pipelineJob(t, meetingID, testSession)))
	assert.Equal(t, 0, rec.transcribingCalls)
	assert.Equal(t, 0, stt.calls)
}

func TestProcessAbortsWhenSupersededMidPipeline(t *testing.T) {
	rec := &fakeRecStore{staleOnTranscribing: true}
	stt := &fakeTranscriber{}
	p, meetingID := testFixture(rec, stt, &fakeAnalyzer{}, &fakeNotifier{})

	require.NoError(t, p.Process(context.Background(), pipelineJob(t, meetingID, testSession)))
	assert.Equal(t, 1, rec.transcribingCalls)
	assert.Equal(t, 0, stt.calls)
}

func TestProcessAnalysisBadResponseFails(t *testing.T) {
	rec := &fakeRecStore{}
	stt := &fakeTranscriber{result: &transcribe.Result{Text: "ok", Language: "en", Duration: 10}}
	llm := &fakeAnalyzer{err: upstream.Newf(upstream.KindBadResponse, "analysis", "invalid analysis: summary is empty")}
	n := &fakeNotifier{}
	p, meetingID := testFixture(rec, stt, llm, n)

	require.NoError(t, p.Process(context.Background(), pipelineJob(t, meetingID, testSession)))

	assert.Equal(t, 1, rec.analyzingCalls, "transcript is kept even when analysis fails")
	assert.Equal(t, 1, llm.calls, "malformed output is not retried")
	assert.Equal(t, 0, rec.completedCalls)
	assert.Equal(t, 1, rec.failedCalls)
}

func TestProcessRejectsUnknownJobType(t *testing.T) {
	p, _ := testFixture(&fakeRecStore{}, &fakeTranscriber{}, &fakeAnalyzer{}, &fakeNotifier{})
	err := p.Process(context.Background(), &queue.Job{ID: "x", Type: queue.JobTypeNotification})
	assert.Error(t, err)
}
