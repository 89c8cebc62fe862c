package apikey

import (
	"context"
	"time"
)

type Repository interface {
	Create(ctx context.Context, key *APIKey) error
	// FindByHash returns the key regardless of status; callers decide how
	// to treat a revoked key.
	FindByHash(ctx context.Context, keyHash string) (*APIKey, error)
	ListByOwner(ctx context.Context, userUUID string) ([]*APIKey, error)
	// TouchUsage increments usage_count and sets last_used_at in a single
	// statement so concurrent verifications of the same key never lose
	// increments.
	TouchUsage(ctx context.Context, keyHash string, usedAt time.Time) error
	Revoke(ctx context.Context, keyHash string, revokedAt time.Time) error
	LabelExists(ctx context.Context, userUUID, label string) (bool, error)
}
