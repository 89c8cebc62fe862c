package memstorage

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/voicegate/stt-gateway-api/internal/domain/user"
	"github.com/voicegate/stt-gateway-api/internal/ierr"
)

type UserRepository struct {
	mu    sync.RWMutex
	users map[string]*user.User // keyed by user_uuid
}

func NewUserRepository() *UserRepository {
	return &UserRepository{
		users: make(map[string]*user.User),
	}
}

var _ user.Repository = (*UserRepository)(nil)

func (r *UserRepository) Create(_ context.Context, u *user.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.users {
		if strings.EqualFold(existing.UserID, u.UserID) {
			return fmt.Errorf("%w: user %q already exists", ierr.ErrConflict, u.UserID)
		}
	}
	if u.UserUUID == "" {
		u.UserUUID = uuid.NewString()
	}
	cp := *u
	r.users[u.UserUUID] = &cp
	return nil
}

func (r *UserRepository) FindByUserID(_ context.Context, userID string) (*user.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, u := range r.users {
		if strings.EqualFold(u.UserID, userID) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ierr.ErrUserNotFound
}

func (r *UserRepository) FindByUUID(_ context.Context, userUUID string) (*user.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[userUUID]
	if !ok {
		return nil, ierr.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}
