// Package transcribe converts the canonical audio artifact into text via an
// external speech-to-text service. The client classifies failures for the
// pipeline worker but performs no retries itself.
package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pulsecheck-hq/backend/internal/upstream"
)

const op = "transcription"

// supportedLanguages is the allow-list of language hints the service accepts.
// An unsupported hint is dropped and auto-detection is used instead; that is a
// deliberate fallback, not a failure.
var supportedLanguages = map[string]bool{
	"en": true, "es": true, "fr": true, "de": true, "it": true,
	"pt": true, "nl": true, "pl": true, "ru": true, "uk": true,
	"ja": true, "ko": true, "zh": true, "hi": true, "ar": true,
	"tr": true, "sv": true, "da": true, "no": true, "fi": true,
}

// Result is the transcription outcome.
type Result struct {
	Text     string
	Language string // detected (or confirmed hinted) language code
	Duration int    // measured audio duration in whole seconds
}

// Config holds the service endpoint and credential.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
}

// Client calls the speech-to-text service.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a transcription client. The HTTP timeout covers one full
// audio upload and response; the caller's context can shorten it.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 10 * time.Minute},
		logger:     logger,
	}
}

// IsConfigured reports whether a credential is present.
func (c *Client) IsConfigured() bool { return c.cfg.APIKey != "" }

// NormalizeLanguageHint lowercases the hint and drops it if unsupported.
func NormalizeLanguageHint(hint string) string {
	hint = strings.ToLower(strings.TrimSpace(hint))
	if hint == "" || !supportedLanguages[hint] {
		return ""
	}
	return hint
}

type verboseResponse struct {
	Text     string  `json:"text"`
	Language string  `json:"language"`
	Duration float64 `json:"duration"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Transcribe uploads audio and returns the transcript with detected language
// and measured duration. Audio is staged to a temp file for the multipart
// upload and removed before returning, success or not.
func (c *Client) Transcribe(ctx context.Context, audio []byte, languageHint string) (*Result, error) {
	if c.cfg.APIKey == "" {
		return nil, upstream.Newf(upstream.KindAuth, op, "service credential not configured")
	}

	staged, err := os.CreateTemp("", "transcribe-*.webm")
	if err != nil {
		return nil, upstream.New(upstream.KindTransient, op, fmt.Errorf("stage audio: %w", err))
	}
	stagedPath := staged.Name()
	defer os.Remove(stagedPath)
	if _, err := staged.Write(audio); err != nil {
		staged.Close()
		return nil, upstream.New(upstream.KindTransient, op, fmt.Errorf("stage audio: %w", err))
	}
	if err := staged.Close(); err != nil {
		return nil, upstream.New(upstream.KindTransient, op, fmt.Errorf("stage audio: %w", err))
	}

	hint := NormalizeLanguageHint(languageHint)
	if languageHint != "" && hint == "" {
		c.logger.Info("unsupported language hint dropped, using auto-detection",
			zap.String("hint", languageHint))
	}

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", filepath.Base(stagedPath))
	if err != nil {
		return nil, upstream.New(upstream.KindTransient, op, err)
	}
	f, err := os.Open(stagedPath)
	if err != nil {
		return nil, upstream.New(upstream.KindTransient, op, err)
	}
	if _, err := io.Copy(part, f); err != nil {
		f.Close()
		return nil, upstream.New(upstream.KindTransient, op, err)
	}
	f.Close()
	_ = w.WriteField("model", c.cfg.Model)
	_ = w.WriteField("response_format", "verbose_json")
	if hint != "" {
		_ = w.WriteField("language", hint)
	}
	if err := w.Close(); err != nil {
		return nil, upstream.New(upstream.KindTransient, op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/audio/transcriptions", &body)
	if err != nil {
		return nil, upstream.New(upstream.KindTransient, op, err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
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

	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus(resp.StatusCode, raw)
	}

	var out verboseResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, upstream.Newf(upstream.KindBadResponse, op, "decode response: %v", err)
	}
	if strings.TrimSpace(out.Text) == "" {
		return nil, upstream.Newf(upstream.KindBadResponse, op, "service returned an empty transcript")
	}

	return &Result{
		Text:     out.Text,
		Language: out.Language,
		Duration: int(out.Duration + 0.5),
	}, nil
}

func classifyStatus(status int, raw []byte) error {
	var er errorResponse
	msg := strings.TrimSpace(string(raw))
	if err := json.Unmarshal(raw, &er); err == nil && er.Error.Message != "" {
		msg = er.Error.Message
	}
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return upstream.Newf(upstream.KindAuth, op, "credential rejected (%d): %s", status, msg)
	case status == http.StatusTooManyRequests:
		return upstream.Newf(upstream.KindRateLimited, op, "rate limited: %s", msg)
	case status >= 400 && status < 500:
		return upstream.Newf(upstream.KindInvalidInput, op, "audio rejected (%d): %s", status, msg)
	default:
		return upstream.Newf(upstream.KindTransient, op, "service error (%d): %s", status, msg)
	}
}
