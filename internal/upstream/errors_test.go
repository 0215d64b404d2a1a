package upstream

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindAuth, KindOf(Newf(KindAuth, "transcription", "bad key")))
	assert.Equal(t, KindRateLimited, KindOf(New(KindRateLimited, "analysis", errors.New("429"))))

	// Wrapped typed errors keep their kind.
	wrapped := fmt.Errorf("stage: %w", Newf(KindInvalidInput, "transcription", "bad audio"))
	assert.Equal(t, KindInvalidInput, KindOf(wrapped))

	// Untyped errors stay retryable.
	assert.Equal(t, KindTransient, KindOf(errors.New("connection reset")))
}

func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(Newf(KindTransient, "transcription", "503")))
	assert.True(t, Retryable(errors.New("untyped")))
	assert.False(t, Retryable(Newf(KindAuth, "transcription", "401")))
	assert.False(t, Retryable(Newf(KindRateLimited, "analysis", "429")))
	assert.False(t, Retryable(Newf(KindBadResponse, "analysis", "garbage")))
}

func TestUserMessagePerKind(t *testing.T) {
	assert.Contains(t, UserMessage(Newf(KindAuth, "transcription", "401")), "credential")
	assert.Contains(t, UserMessage(Newf(KindRateLimited, "analysis", "429")), "rate limiting")
	assert.Contains(t, UserMessage(Newf(KindInvalidInput, "transcription", "bad")), "rejected")
	assert.Contains(t, UserMessage(Newf(KindTransient, "analysis", "503")), "temporarily unavailable")
	assert.NotEmpty(t, UserMessage(errors.New("untyped")))
}
