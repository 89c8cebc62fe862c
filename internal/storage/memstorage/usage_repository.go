package memstorage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/voicegate/stt-gateway-api/internal/domain/usage"
)

type UsageRepository struct {
	mu     sync.Mutex
	nextID int64
	events []*usage.Event
}

func NewUsageRepository() *UsageRepository {
	return &UsageRepository{}
}

var _ usage.Repository = (*UsageRepository)(nil)

func (r *UsageRepository) Insert(_ context.Context, e *usage.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	cp := *e
	cp.ID = r.nextID
	r.events = append(r.events, &cp)
	return nil
}

func (r *UsageRepository) ListByOwner(_ context.Context, userUUID string, limit int) ([]*usage.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var events []*usage.Event
	for _, e := range r.events {
		if e.UserUUID == userUUID {
			cp := *e
			events = append(events, &cp)
		}
	}
	sort.Slice(events, func(i, j int) bool {
		if events[i].CreatedAt.Equal(events[j].CreatedAt) {
			return events[i].ID > events[j].ID
		}
		return events[i].CreatedAt.After(events[j].CreatedAt)
	})
	if limit > 0 && len(events) > limit {
		events = events[:limit]
	}
	return events, nil
}

func (r *UsageRepository) StatsSince(_ context.Context, since time.Time) (*usage.Stats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stats := &usage.Stats{}
	type bucket struct {
		count     int64
		totalTime float64
	}
	buckets := make(map[string]*bucket)
	for _, e := range r.events {
		if e.CreatedAt.Before(since) {
			continue
		}
		stats.TotalRequests++
		if e.StatusCode >= 200 && e.StatusCode < 300 {
			stats.SuccessfulRequests++
		}
		b, ok := buckets[e.Endpoint]
		if !ok {
			b = &bucket{}
			buckets[e.Endpoint] = b
		}
		b.count++
		b.totalTime += e.ProcessingTime
	}

	for endpoint, b := range buckets {
		stats.Endpoints = append(stats.Endpoints, usage.EndpointStat{
			Endpoint:          endpoint,
			RequestCount:      b.count,
			AvgProcessingTime: b.totalTime / float64(b.count),
		})
	}
	sort.Slice(stats.Endpoints, func(i, j int) bool {
		if stats.Endpoints[i].RequestCount == stats.Endpoints[j].RequestCount {
			return stats.Endpoints[i].Endpoint < stats.Endpoints[j].Endpoint
		}
		return stats.Endpoints[i].RequestCount > stats.Endpoints[j].RequestCount
	})
	return stats, nil
}

func (r *UsageRepository) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var kept []*usage.Event
	var removed int64
	for _, e := range r.events {
		if e.CreatedAt.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	r.events = kept
	return removed, nil
}

// Len reports the number of stored events; used by tests.
func (r *UsageRepository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}
