package memstorage

import (
	"context"
	"sort"
	"sync"

	"github.com/voicegate/stt-gateway-api/internal/domain/transcription"
	"github.com/voicegate/stt-gateway-api/internal/ierr"
)

type TranscriptionRepository struct {
	mu        sync.Mutex
	requests  map[string]*transcription.Request
	responses map[string]*transcription.Response // keyed by request_id
}

func NewTranscriptionRepository() *TranscriptionRepository {
	return &TranscriptionRepository{
		requests:  make(map[string]*transcription.Request),
		responses: make(map[string]*transcription.Response),
	}
}

var _ transcription.Repository = (*TranscriptionRepository)(nil)

func (r *TranscriptionRepository) CreateRequest(_ context.Context, req *transcription.Request) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *req
	r.requests[req.RequestID] = &cp
	return nil
}

func (r *TranscriptionRepository) CreateResponse(_ context.Context, resp *transcription.Response) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *resp
	r.responses[resp.RequestID] = &cp
	return nil
}

func (r *TranscriptionRepository) ListRequestsByOwner(_ context.Context, userUUID string, limit int) ([]*transcription.Request, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var requests []*transcription.Request
	for _, req := range r.requests {
		if req.UserUUID == userUUID {
			cp := *req
			requests = append(requests, &cp)
		}
	}
	sort.Slice(requests, func(i, j int) bool { return requests[i].CreatedAt.After(requests[j].CreatedAt) })
	if limit > 0 && len(requests) > limit {
		requests = requests[:limit]
	}
	return requests, nil
}

func (r *TranscriptionRepository) FindRequestWithResponse(_ context.Context, requestID string) (*transcription.Request, *transcription.Response, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	req, ok := r.requests[requestID]
	if !ok {
		return nil, nil, ierr.ErrNotFound
	}
	reqCp := *req

	resp, ok := r.responses[requestID]
	if !ok {
		return &reqCp, nil, nil
	}
	respCp := *resp
	return &reqCp, &respCp, nil
}
