package transcribe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulsecheck-hq/backend/internal/upstream"
)

func newTestClient(baseURL string) *Client {
	return NewClient(Config{APIKey: "test-key", BaseURL: baseURL, Model: "whisper-1"}, nil)
}

func TestTranscribeSuccess(t *testing.T) {
	var gotAuth, gotModel, gotLanguage, gotFormat string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		gotAuth = r.Header.Get("Authorization")
		gotModel = r.FormValue("model")
		gotLanguage = r.FormValue("language")
		gotFormat = r.FormValue("response_format")
		_, _, err := r.FormFile("file")
		require.NoError(t, err)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"text":"we agreed on three action items","language":"en","duration":61.7}`))
	}))
	defer srv.Close()

	res, err := newTestClient(srv.URL).Transcribe(context.Background(), []byte("webm-bytes"), "en")
	require.NoError(t, err)
	assert.Equal(t, "we agreed on three action items", res.Text)
	assert.Equal(t, "en", res.Language)
	assert.Equal(t, 62, res.Duration, "duration rounded to whole seconds")

	assert.Equal(t, "Bearer test-key", gotAuth)
	assert.Equal(t, "whisper-1", gotModel)
	assert.Equal(t, "en", gotLanguage)
	assert.Equal(t, "verbose_json", gotFormat)
}

func TestTranscribeUnsupportedHintDropped(t *testing.T) {
	var gotLanguage string
	sawLanguage := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		if vals, ok := r.MultipartForm.Value["language"]; ok && len(vals) > 0 {
			sawLanguage = true
			gotLanguage = vals[0]
		}
		w.Write([]byte(`{"text":"hello","language":"en","duration":3}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Transcribe(context.Background(), []byte("x"), "klingon")
	require.NoError(t, err)
	assert.False(t, sawLanguage, "unsupported hint must not be sent, got %q", gotLanguage)
}

func TestTranscribeAuthError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"Incorrect API key provided","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Transcribe(context.Background(), []byte("x"), "")
	require.Error(t, err)
	assert.Equal(t, upstream.KindAuth, upstream.KindOf(err))
	assert.False(t, upstream.Retryable(err))
	assert.Contains(t, err.Error(), "Incorrect API key provided")
}

func TestTranscribeRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"Rate limit reached"}}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Transcribe(context.Background(), []byte("x"), "")
	require.Error(t, err)
	assert.Equal(t, upstream.KindRateLimited, upstream.KindOf(err))
}

func TestTranscribeServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Transcribe(context.Background(), []byte("x"), "")
	require.Error(t, err)
	assert.Equal(t, upstream.KindTransient, upstream.KindOf(err))
	assert.True(t, upstream.Retryable(err))
}

func TestTranscribeEmptyTranscript(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"text":"   ","language":"en","duration":10}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Transcribe(context.Background(), []byte("x"), "")
	require.Error(t, err)
	assert.Equal(t, upstream.KindBadResponse, upstream.KindOf(err))
}

func TestTranscribeMissingCredential(t *testing.T) {
	c := NewClient(Config{BaseURL: "http://localhost:0", Model: "whisper-1"}, nil)
	assert.False(t, c.IsConfigured())
	_, err := c.Transcribe(context.Background(), []byte("x"), "")
	require.Error(t, err)
	assert.Equal(t, upstream.KindAuth, upstream.KindOf(err))
}

func TestNormalizeLanguageHint(t *testing.T) {
	assert.Equal(t, "en", NormalizeLanguageHint("EN"))
	assert.Equal(t, "pt", NormalizeLanguageHint("  pt "))
	assert.Equal(t, "", NormalizeLanguageHint("xx"))
	assert.Equal(t, "", NormalizeLanguageHint(""))
}
