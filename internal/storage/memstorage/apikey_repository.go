package memstorage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/voicegate/stt-gateway-api/internal/domain/apikey"
	"github.com/voicegate/stt-gateway-api/internal/ierr"
)

// APIKeyRepository is an in-memory apikey.Repository. The mutex stands in
// for the row lock Postgres provides, so TouchUsage keeps the same
// no-lost-updates guarantee.
type APIKeyRepository struct {
	mu   sync.Mutex
	keys map[string]*apikey.APIKey
}

func NewAPIKeyRepository() *APIKeyRepository {
	return &APIKeyRepository{
		keys: make(map[string]*apikey.APIKey),
	}
}

var _ apikey.Repository = (*APIKeyRepository)(nil)

func (r *APIKeyRepository) Create(_ context.Context, key *apikey.APIKey) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.keys[key.KeyHash]; ok {
		return ierr.ErrConflict
	}
	for _, existing := range r.keys {
		if existing.UserUUID == key.UserUUID && existing.Label == key.Label {
			return ierr.ErrDuplicateLabel
		}
	}
	cp := *key
	r.keys[key.KeyHash] = &cp
	return nil
}

func (r *APIKeyRepository) FindByHash(_ context.Context, keyHash string) (*apikey.APIKey, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key, ok := r.keys[keyHash]
	if !ok {
		return nil, ierr.ErrKeyNotFound
	}
	cp := *key
	return &cp, nil
}

func (r *APIKeyRepository) ListByOwner(_ context.Context, userUUID string) ([]*apikey.APIKey, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var keys []*apikey.APIKey
	for _, key := range r.keys {
		if key.UserUUID == userUUID {
			cp := *key
			keys = append(keys, &cp)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].CreatedAt.After(keys[j].CreatedAt) })
	return keys, nil
}

func (r *APIKeyRepository) TouchUsage(_ context.Context, keyHash string, usedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key, ok := r.keys[keyHash]
	if !ok {
		return ierr.ErrKeyNotFound
	}
	key.UsageCount++
	key.LastUsedAt = &usedAt
	return nil
}

func (r *APIKeyRepository) Revoke(_ context.Context, keyHash string, revokedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key, ok := r.keys[keyHash]
	if !ok {
		return ierr.ErrKeyNotFound
	}
	if key.Status == apikey.StatusRevoked {
		return nil
	}
	key.Status = apikey.StatusRevoked
	key.RevokedAt = &revokedAt
	return nil
}

func (r *APIKeyRepository) LabelExists(_ context.Context, userUUID, label string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, key := range r.keys {
		if key.UserUUID == userUUID && key.Label == label {
			return true, nil
		}
	}
	return false, nil
}
