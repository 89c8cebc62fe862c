package user

import "context"

type Repository interface {
	Create(ctx context.Context, u *User) error
	FindByUserID(ctx context.Context, userID string) (*User, error)
	FindByUUID(ctx context.Context, userUUID string) (*User, error)
}
