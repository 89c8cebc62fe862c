package usage

import (
	"context"
	"time"
)

type Repository interface {
	Insert(ctx context.Context, e *Event) error
	// ListByOwner returns events most-recent-first, bounded by limit.
	ListByOwner(ctx context.Context, userUUID string, limit int) ([]*Event, error)
	// StatsSince aggregates events created at or after since: totals,
	// 2xx count and per-endpoint request counts with mean latency.
	StatsSince(ctx context.Context, since time.Time) (*Stats, error)
	// DeleteOlderThan removes events created before the cutoff and reports
	// how many rows went away. Used by the retention sweep, never by the
	// request path.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
