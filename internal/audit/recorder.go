package audit

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/voicegate/stt-gateway-api/internal/domain/usage"
)

// Recorder appends usage events without ever slowing down or failing the
// request that produced them. Record hands the event to a bounded queue; a
// single background goroutine drains it into the repository. A full queue
// drops the event with a warning rather than blocking.
type Recorder struct {
	repo   usage.Repository
	queue  chan *usage.Event
	logger *zap.Logger

	closeOnce sync.Once
	done      chan struct{}
}

func NewRecorder(repo usage.Repository, queueSize int, logger *zap.Logger) *Recorder {
	if queueSize <= 0 {
		queueSize = 1024
	}
	r := &Recorder{
		repo:   repo,
		queue:  make(chan *usage.Event, queueSize),
		logger: logger.Named("UsageRecorder"),
		done:   make(chan struct{}),
	}
	go r.drain()
	return r
}

// Record never blocks and never returns an error.
func (r *Recorder) Record(e *usage.Event) {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	select {
	case r.queue <- e:
	default:
		r.logger.Warn("Usage event dropped, audit queue full",
			zap.String("endpoint", e.Endpoint),
			zap.String("user_uuid", e.UserUUID),
		)
	}
}

func (r *Recorder) drain() {
	defer close(r.done)
	for e := range r.queue {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := r.repo.Insert(ctx, e); err != nil {
			r.logger.Warn("Failed to persist usage event",
				zap.String("endpoint", e.Endpoint),
				zap.String("user_uuid", e.UserUUID),
				zap.Error(err),
			)
		}
		cancel()
	}
}

// Close stops accepting events and waits for the queue to flush.
func (r *Recorder) Close() {
	r.closeOnce.Do(func() {
		close(r.queue)
	})
	<-r.done
}
