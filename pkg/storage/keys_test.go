package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSessionKey(t *testing.T) {
	now := time.Unix(1712345678, 0)
	key := SessionKey("9a1b2c3d", now)
	assert.Equal(t, "recordings/9a1b2c3d/1712345678", key)

	// A later session for the same meeting gets a distinct prefix.
	later := SessionKey("9a1b2c3d", now.Add(time.Second))
	assert.NotEqual(t, key, later)
}

func TestChunkKey(t *testing.T) {
	assert.Equal(t, "recordings/m/1/chunk_0000.webm", ChunkKey("recordings/m/1", 0))
	assert.Equal(t, "recordings/m/1/chunk_0007.webm", ChunkKey("recordings/m/1", 7))
	assert.Equal(t, "recordings/m/1/chunk_1234.webm", ChunkKey("recordings/m/1", 1234))
}

func TestFinalKey(t *testing.T) {
	assert.Equal(t, "recordings/m/1/final.webm", FinalKey("recordings/m/1"))
}

func TestChunkKeysShareSessionPrefix(t *testing.T) {
	session := SessionKey("abc", time.Now())
	assert.Contains(t, ChunkKey(session, 3), session+"/")
	assert.Contains(t, FinalKey(session), session+"/")
}
