package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/voicegate/stt-gateway-api/internal/domain/usage"
)

// UsageRetentionHandler deletes usage log rows older than the configured
// retention window. The sweep is idempotent, so a retried task just deletes
// nothing the second time.
type UsageRetentionHandler struct {
	repo   usage.Repository
	logger *zap.Logger
}

func NewUsageRetentionHandler(repo usage.Repository, logger *zap.Logger) *UsageRetentionHandler {
	return &UsageRetentionHandler{
		repo:   repo,
		logger: logger.Named("UsageRetentionHandler"),
	}
}

func (h *UsageRetentionHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	if t.Type() != TypeUsageRetentionSweep {
		return fmt.Errorf("unexpected task type: %s", t.Type())
	}

	var p UsageRetentionPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		h.logger.Error("Failed to unmarshal payload for usage retention task", zap.Error(err), zap.ByteString("payload", t.Payload()))
		return fmt.Errorf("invalid payload: %v", err)
	}
	if p.TTL <= 0 {
		h.logger.Warn("Usage retention task carries non-positive ttl, skipping", zap.Duration("ttl", p.TTL))
		return nil
	}

	cutoff := time.Now().UTC().Add(-p.TTL)
	h.logger.Info("Running usage log retention sweep", zap.Time("cutoff", cutoff))

	deleted, err := h.repo.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		h.logger.Error("Usage log retention sweep failed", zap.Error(err))
		return fmt.Errorf("repository error deleting old usage events: %w", err)
	}

	h.logger.Info("Usage log retention sweep finished", zap.Int64("deleted_rows", deleted), zap.Duration("ttl", p.TTL))
	return nil
}
