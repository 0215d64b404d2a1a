package recordings

import (
	"context"

	"go.uber.org/zap"

	"github.com/pulsecheck-hq/backend/pkg/storage"
)

// CleanupChunks deletes the session's chunk objects after a successful
// combination. Best-effort: individual failures are logged and skipped, and the
// function never reports an error to its caller. Running it twice is safe since
// deleting a missing key is a no-op.
func CleanupChunks(ctx context.Context, store storage.BlobStore, sessionKey string, totalChunks int, logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	deleted := 0
	for seq := 0; seq < totalChunks; seq++ {
		key := storage.ChunkKey(sessionKey, seq)
		if err := store.Delete(ctx, key); err != nil {
			logger.Warn("chunk cleanup delete failed", zap.String("key", key), zap.Error(err))
			continue
		}
		deleted++
	}
	logger.Info("chunk cleanup finished",
		zap.String("session_key", sessionKey),
		zap.Int("deleted", deleted),
		zap.Int("total", totalChunks))
}
