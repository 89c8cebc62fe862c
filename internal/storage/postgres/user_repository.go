package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/voicegate/stt-gateway-api/internal/domain/user"
	"github.com/voicegate/stt-gateway-api/internal/ierr"
)

type UserRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewUserRepository(db *pgxpool.Pool, logger *zap.Logger) *UserRepository {
	return &UserRepository{
		db:     db,
		logger: logger.Named("UserRepository"),
	}
}

var _ user.Repository = (*UserRepository)(nil)

const userColumns = `user_uuid, user_id, email, name, user_type, phone_number, password_hash, is_active, created_at`

func (r *UserRepository) Create(ctx context.Context, u *user.User) error {
	query := `
		INSERT INTO users (user_id, email, name, user_type, phone_number, password_hash, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING user_uuid
	`
	err := r.db.QueryRow(ctx, query,
		u.UserID,
		u.Email,
		u.Name,
		u.UserType,
		u.PhoneNumber,
		u.PasswordHash,
		u.IsActive,
		u.CreatedAt,
	).Scan(&u.UserUUID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("%w: user %q already exists", ierr.ErrConflict, u.UserID)
		}
		r.logger.Error("Failed to create user", zap.Error(err))
		return fmt.Errorf("db error creating user: %w", err)
	}
	return nil
}

func (r *UserRepository) FindByUserID(ctx context.Context, userID string) (*user.User, error) {
	return r.findBy(ctx, `SELECT `+userColumns+` FROM users WHERE user_id = $1`, userID)
}

func (r *UserRepository) FindByUUID(ctx context.Context, userUUID string) (*user.User, error) {
	return r.findBy(ctx, `SELECT `+userColumns+` FROM users WHERE user_uuid = $1`, userUUID)
}

func (r *UserRepository) findBy(ctx context.Context, query string, arg any) (*user.User, error) {
	var u user.User
	err := r.db.QueryRow(ctx, query, arg).Scan(
		&u.UserUUID,
		&u.UserID,
		&u.Email,
		&u.Name,
		&u.UserType,
		&u.PhoneNumber,
		&u.PasswordHash,
		&u.IsActive,
		&u.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ierr.ErrUserNotFound
		}
		r.logger.Error("Failed to find user", zap.Error(err))
		return nil, fmt.Errorf("db error finding user: %w", err)
	}
	return &u, nil
}
