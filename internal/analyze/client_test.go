package analyze

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulsecheck-hq/backend/internal/upstream"
)

const validContent = `{
  "summary": "Discussed Q3 goals and a blocked migration.",
  "keyPoints": ["migration blocked on infra", "promotion timeline clarified"],
  "suggestedTodos": [
    {"title": "Unblock migration", "description": "Escalate the infra ticket", "assignTo": "reporter", "priority": "HIGH"},
    {"title": "Draft goals doc", "description": "First pass by Friday", "assignTo": "employee", "priority": "MEDIUM"}
  ],
  "sentiment": {"score": 0.4, "label": "positive", "employeeMood": "engaged", "reporterEngagement": "high", "overallTone": "constructive"},
  "qualityScore": 82,
  "qualityDetails": {"clarity": 8, "actionability": 9, "engagement": 8, "goalAlignment": 7, "followUp": 8, "overallFeedback": "Solid meeting with clear next steps."}
}`

func chatServer(t *testing.T, content string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": content}},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
}

func newTestClient(baseURL string) *Client {
	return NewClient(Config{APIKey: "test-key", BaseURL: baseURL, Model: "gpt-4o-mini"}, nil)
}

func TestAnalyzeParsesContract(t *testing.T) {
	srv := chatServer(t, validContent)
	defer srv.Close()

	a, err := newTestClient(srv.URL).Analyze(context.Background(), "long transcript", "Ana", "Bram")
	require.NoError(t, err)

	assert.Equal(t, "Discussed Q3 goals and a blocked migration.", a.Summary)
	assert.Len(t, a.KeyPoints, 2)
	require.Len(t, a.SuggestedTodos, 2)
	assert.Equal(t, "reporter", a.SuggestedTodos[0].AssignTo)
	assert.Equal(t, "HIGH", a.SuggestedTodos[0].Priority)
	assert.InDelta(t, 0.4, a.Sentiment.Score, 1e-9)
	assert.Equal(t, "positive", a.Sentiment.Label)
	assert.Equal(t, 82, a.QualityScore)
	assert.Equal(t, 9, a.QualityDetails.Actionability)
}

func TestAnalyzeFencedJSON(t *testing.T) {
	srv := chatServer(t, "```json\n"+validContent+"\n```")
	defer srv.Close()

	a, err := newTestClient(srv.URL).Analyze(context.Background(), "transcript", "Ana", "Bram")
	require.NoError(t, err)
	assert.Equal(t, 82, a.QualityScore)
}

func TestAnalyzeMalformedResponse(t *testing.T) {
	for name, content := range map[string]string{
		"no json":            "I could not analyze this meeting.",
		"truncated":          `{"summary": "half`,
		"empty summary":      `{"summary":"  ","keyPoints":[],"suggestedTodos":[],"sentiment":{"score":0,"label":"neutral"},"qualityScore":50,"qualityDetails":{"clarity":5,"actionability":5,"engagement":5,"goalAlignment":5,"followUp":5}}`,
		"score out of range": `{"summary":"ok","keyPoints":[],"suggestedTodos":[],"sentiment":{"score":3,"label":"neutral"},"qualityScore":50,"qualityDetails":{"clarity":5,"actionability":5,"engagement":5,"goalAlignment":5,"followUp":5}}`,
		"bad quality score":  `{"summary":"ok","keyPoints":[],"suggestedTodos":[],"sentiment":{"score":0,"label":"neutral"},"qualityScore":0,"qualityDetails":{"clarity":5,"actionability":5,"engagement":5,"goalAlignment":5,"followUp":5}}`,
		"bad todo assignee":  `{"summary":"ok","keyPoints":[],"suggestedTodos":[{"title":"x","description":"y","assignTo":"manager","priority":"HIGH"}],"sentiment":{"score":0,"label":"neutral"},"qualityScore":50,"qualityDetails":{"clarity":5,"actionability":5,"engagement":5,"goalAlignment":5,"followUp":5}}`,
	} {
		t.Run(name, func(t *testing.T) {
			srv := chatServer(t, content)
			defer srv.Close()

			_, err := newTestClient(srv.URL).Analyze(context.Background(), "transcript", "Ana", "Bram")
			require.Error(t, err)
			assert.Equal(t, upstream.KindBadResponse, upstream.KindOf(err))
			assert.False(t, upstream.Retryable(err))
		})
	}
}

func TestAnalyzeStatusClassification(t *testing.T) {
	for _, tc := range []struct {
		status int
		kind   upstream.Kind
	}{
		{http.StatusUnauthorized, upstream.KindAuth},
		{http.StatusTooManyRequests, upstream.KindRateLimited},
		{http.StatusBadRequest, upstream.KindInvalidInput},
		{http.StatusServiceUnavailable, upstream.KindTransient},
	} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
		}))
		_, err := newTestClient(srv.URL).Analyze(context.Background(), "transcript", "Ana", "Bram")
		srv.Close()
		require.Error(t, err)
		assert.Equal(t, tc.kind, upstream.KindOf(err), "status %d", tc.status)
	}
}

func TestAnalyzeEmptyTranscript(t *testing.T) {
	_, err := newTestClient("http://localhost:0").Analyze(context.Background(), "   ", "Ana", "Bram")
	require.Error(t, err)
	assert.Equal(t, upstream.KindInvalidInput, upstream.KindOf(err))
}

func TestAnalyzeMissingCredential(t *testing.T) {
	c := NewClient(Config{BaseURL: "http://localhost:0", Model: "gpt-4o-mini"}, nil)
	assert.False(t, c.IsConfigured())
	_, err := c.Analyze(context.Background(), "transcript", "Ana", "Bram")
	require.Error(t, err)
	assert.Equal(t, upstream.KindAuth, upstream.KindOf(err))
}
