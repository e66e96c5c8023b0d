package whatsapp

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/citaplan/pkg/logging"
)

// dedupTTL covers Meta's webhook retry window with plenty of slack.
const dedupTTL = 24 * time.Hour

// ProcessedStore remembers which webhook message IDs were already handled,
// so Meta's redeliveries don't double-drive a conversation.
type ProcessedStore struct {
	client *redis.Client
	logger *logging.Logger
}

// NewProcessedStore creates a Redis-backed dedup store.
func NewProcessedStore(client *redis.Client, logger *logging.Logger) *ProcessedStore {
	if logger == nil {
		logger = logging.Default()
	}
	return &ProcessedStore{client: client, logger: logger}
}

// MarkProcessed records the message ID and reports whether this is the first
// time it was seen. Redis failures fail open: a rare duplicate beats a
// dropped message.
func (s *ProcessedStore) MarkProcessed(ctx context.Context, messageID string) bool {
	if s == nil || s.client == nil || messageID == "" {
		return true
	}
	key := fmt.Sprintf("citaplan:wa:msg:%s", messageID)
	first, err := s.client.SetNX(ctx, key, "1", dedupTTL).Result()
	if err != nil {
		s.logger.Warn("webhook dedup check failed", "error", err, "message_id", messageID)
		return true
	}
	return first
}
