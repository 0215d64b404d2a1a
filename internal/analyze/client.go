// Package analyze derives structured insight (summary, key points, action
// items, sentiment, quality score) from a meeting transcript via an external
// language model under a strict structured-output contract.
package analyze

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pulsecheck-hq/backend/internal/models"
	"github.com/pulsecheck-hq/backend/internal/upstream"
)

const op = "analysis"

// Config holds the service endpoint and credential.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
}

// Client calls the language model.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates an analysis client.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 3 * time.Minute},
		logger:     logger,
	}
}

// IsConfigured reports whether a credential is present.
func (c *Client) IsConfigured() bool { return c.cfg.APIKey != "" }

// wire types for the model's structured-output contract.
type wireAnalysis struct {
	Summary        string             `json:"summary"`
	KeyPoints      []string           `json:"keyPoints"`
	SuggestedTodos []wireTodo         `json:"suggestedTodos"`
	Sentiment      wireSentiment      `json:"sentiment"`
	QualityScore   int                `json:"qualityScore"`
	QualityDetails wireQualityDetails `json:"qualityDetails"`
}

type wireTodo struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	AssignTo    string `json:"assignTo"`
	Priority    string `json:"priority"`
}

type wireSentiment struct {
	Score              float64 `json:"score"`
	Label              string  `json:"label"`
	EmployeeMood       string  `json:"employeeMood"`
	ReporterEngagement string  `json:"reporterEngagement"`
	OverallTone        string  `json:"overallTone"`
}

type wireQualityDetails struct {
	Clarity         int    `json:"clarity"`
	Actionability   int    `json:"actionability"`
	Engagement      int    `json:"engagement"`
	GoalAlignment   int    `json:"goalAlignment"`
	FollowUp        int    `json:"followUp"`
	OverallFeedback string `json:"overallFeedback"`
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	Temperature    float64       `json:"temperature"`
	ResponseFormat respFormat    `json:"response_format"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type respFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

const systemPrompt = `You analyze one-on-one meeting transcripts between an employee and their reporting manager. Respond with a single JSON object of this exact shape and nothing else:
{
  "summary": string,
  "keyPoints": [string],
  "suggestedTodos": [{"title": string, "description": string, "assignTo": "employee"|"reporter", "priority": "HIGH"|"MEDIUM"|"LOW"}],
  "sentiment": {"score": number in [-1,1], "label": "positive"|"neutral"|"negative", "employeeMood": string, "reporterEngagement": string, "overallTone": string},
  "qualityScore": integer in [1,100],
  "qualityDetails": {"clarity": 1-10, "actionability": 1-10, "engagement": 1-10, "goalAlignment": 1-10, "followUp": 1-10, "overallFeedback": string}
}`

// Analyze derives insight from the transcript. A response that does not parse
// and validate against the contract is a typed failure, never a partial result.
func (c *Client) Analyze(ctx context.Context, transcript, employeeName, reporterName string) (*models.Analysis, error) {
	if c.cfg.APIKey == "" {
		return nil, upstream.Newf(upstream.KindAuth, op, "service credential not configured")
	}
	if strings.TrimSpace(transcript) == "" {
		return nil, upstream.Newf(upstream.KindInvalidInput, op, "transcript is empty")
	}

	userPrompt := fmt.Sprintf("Employee: %s\nManager (reporter): %s\n\nTranscript:\n%s", employeeName, reporterName, transcript)
	payload, err := json.Marshal(chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Temperature:    0.2,
		ResponseFormat: respFormat{Type: "json_object"},
	})
	if err != nil {
		return nil, upstream.New(upstream.KindTransient, op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, upstream.New(upstream.KindTransient, op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, upstream.New(upstream.KindTransient, op, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, upstream.New(upstream.KindTransient, op, err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, upstream.Newf(upstream.KindAuth, op, "credential rejected (%d)", resp.StatusCode)
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, upstream.Newf(upstream.KindRateLimited, op, "rate limited")
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return nil, upstream.Newf(upstream.KindInvalidInput, op, "request rejected (%d): %s", resp.StatusCode, trim(raw))
	case resp.StatusCode != http.StatusOK:
		return nil, upstream.Newf(upstream.KindTransient, op, "service error (%d): %s", resp.StatusCode, trim(raw))
	}

	var out chatResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, upstream.Newf(upstream.KindBadResponse, op, "decode response: %v", err)
	}
	if len(out.Choices) == 0 {
		return nil, upstream.Newf(upstream.KindBadResponse, op, "response has no choices")
	}

	content := out.Choices[0].Message.Content
	// Models occasionally fence the JSON; take the outermost object.
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return nil, upstream.Newf(upstream.KindBadResponse, op, "response contains no JSON object")
	}

	var wa wireAnalysis
	dec := json.NewDecoder(strings.NewReader(content[start : end+1]))
	if err := dec.Decode(&wa); err != nil {
		return nil, upstream.Newf(upstream.KindBadResponse, op, "decode analysis: %v", err)
	}
	if err := validate(&wa); err != nil {
		return nil, upstream.Newf(upstream.KindBadResponse, op, "invalid analysis: %v", err)
	}

	return toModel(&wa), nil
}

func trim(raw []byte) string {
	s := strings.TrimSpace(string(raw))
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}

func validate(a *wireAnalysis) error {
	if strings.TrimSpace(a.Summary) == "" {
		return fmt.Errorf("summary is empty")
	}
	if a.Sentiment.Score < -1 || a.Sentiment.Score > 1 {
		return fmt.Errorf("sentiment score %v out of [-1,1]", a.Sentiment.Score)
	}
	switch a.Sentiment.Label {
	case "positive", "neutral", "negative":
	default:
		return fmt.Errorf("sentiment label %q", a.Sentiment.Label)
	}
	if a.QualityScore < 1 || a.QualityScore > 100 {
		return fmt.Errorf("quality score %d out of [1,100]", a.QualityScore)
	}
	for _, sub := range []struct {
		name string
		v    int
	}{
		{"clarity", a.QualityDetails.Clarity},
		{"actionability", a.QualityDetails.Actionability},
		{"engagement", a.QualityDetails.Engagement},
		{"goalAlignment", a.QualityDetails.GoalAlignment},
		{"followUp", a.QualityDetails.FollowUp},
	} {
		if sub.v < 1 || sub.v > 10 {
			return fmt.Errorf("%s %d out of [1,10]", sub.name, sub.v)
		}
	}
	for i, td := range a.SuggestedTodos {
		if td.AssignTo != models.AssigneeEmployee && td.AssignTo != models.AssigneeReporter {
			return fmt.Errorf("todo %d assignTo %q", i, td.AssignTo)
		}
		switch td.Priority {
		case models.PriorityHigh, models.PriorityMedium, models.PriorityLow:
		default:
			return fmt.Errorf("todo %d priority %q", i, td.Priority)
		}
	}
	return nil
}

func toModel(a *wireAnalysis) *models.Analysis {
	todos := make([]models.Todo, 0, len(a.SuggestedTodos))
	for _, td := range a.SuggestedTodos {
		todos = append(todos, models.Todo{
			Title:       td.Title,
			Description: td.Description,
			AssignTo:    td.AssignTo,
			Priority:    td.Priority,
		})
	}
	return &models.Analysis{
		Summary:        a.Summary,
		KeyPoints:      a.KeyPoints,
		SuggestedTodos: todos,
		Sentiment: models.Sentiment{
			Score:              a.Sentiment.Score,
			Label:              a.Sentiment.Label,
			EmployeeMood:       a.Sentiment.EmployeeMood,
			ReporterEngagement: a.Sentiment.ReporterEngagement,
			OverallTone:        a.Sentiment.OverallTone,
		},
		QualityScore: a.QualityScore,
		QualityDetails: models.QualityDetails{
			Clarity:         a.QualityDetails.Clarity,
			Actionability:   a.QualityDetails.Actionability,
			Engagement:      a.QualityDetails.Engagement,
			GoalAlignment:   a.QualityDetails.GoalAlignment,
			FollowUp:        a.QualityDetails.FollowUp,
			OverallFeedback: a.QualityDetails.OverallFeedback,
		},
	}
}
