package tasks

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	TypeUsageRetentionSweep = "usage:retention:sweep"
)

// UsageRetentionPayload carries the retention window so a sweep enqueued
// under one configuration still deletes the window it was scheduled with.
type UsageRetentionPayload struct {
	TTL time.Duration `json:"ttl"`
}

func NewUsageRetentionTask(ttl time.Duration, opts ...asynq.Option) (*asynq.Task, error) {
	payloadBytes, err := json.Marshal(UsageRetentionPayload{TTL: ttl})
	if err != nil {
		return nil, err
	}

	uniqueOpt := asynq.Unique(1 * time.Hour)
	allOpts := append(opts, uniqueOpt)

	return asynq.NewTask(TypeUsageRetentionSweep, payloadBytes, allOpts...), nil
}
