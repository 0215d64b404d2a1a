package storage

import (
	"fmt"
	"path"
	"time"
)

const (
	// FolderRecordings is the key prefix for all recording objects.
	FolderRecordings = "recordings"
	// AudioExt is the container extension for uploaded audio.
	AudioExt = ".webm"
	// AudioContentType is the MIME type for uploaded audio.
	AudioContentType = "audio/webm"
)

// SessionKey returns the storage prefix for a new upload session:
// recordings/{meeting_id}/{unix_timestamp}. Every session for the same meeting
// gets a distinct prefix, so stale chunks can never collide with a newer session.
func SessionKey(meetingID string, now time.Time) string {
	return path.Join(FolderRecordings, meetingID, fmt.Sprintf("%d", now.Unix()))
}

// ChunkKey returns the object key for one uploaded chunk:
// {session_key}/chunk_0007.webm.
func ChunkKey(sessionKey string, seq int) string {
	return path.Join(sessionKey, fmt.Sprintf("chunk_%04d%s", seq, AudioExt))
}

// FinalKey returns the object key for the combined artifact: {session_key}/final.webm.
func FinalKey(sessionKey string) string {
	return path.Join(sessionKey, "final"+AudioExt)
}
