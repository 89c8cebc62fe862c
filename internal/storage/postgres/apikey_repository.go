package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/voicegate/stt-gateway-api/internal/domain/apikey"
	"github.com/voicegate/stt-gateway-api/internal/ierr"
)

type APIKeyRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewAPIKeyRepository(db *pgxpool.Pool, logger *zap.Logger) *APIKeyRepository {
	return &APIKeyRepository{
		db:     db,
		logger: logger.Named("APIKeyRepository"),
	}
}

var _ apikey.Repository = (*APIKeyRepository)(nil)

const apiKeyColumns = `key_hash, prefix, user_uuid, label, description, status, usage_count, created_at, last_used_at, revoked_at`

func (r *APIKeyRepository) Create(ctx context.Context, key *apikey.APIKey) error {
	query := `
		INSERT INTO api_keys (key_hash, prefix, user_uuid, label, description, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.Exec(ctx, query,
		key.KeyHash,
		key.Prefix,
		key.UserUUID,
		key.Label,
		key.Description,
		key.Status,
		key.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			r.logger.Warn("Unique constraint violation creating api key",
				zap.String("constraint", pgErr.ConstraintName),
				zap.String("prefix", key.Prefix),
			)
			if pgErr.ConstraintName == "api_keys_user_label_key" {
				return fmt.Errorf("%w: %q", ierr.ErrDuplicateLabel, key.Label)
			}
			return fmt.Errorf("%w: api key hash collision", ierr.ErrConflict)
		}
		r.logger.Error("Failed to create api key", zap.Error(err))
		return fmt.Errorf("db error creating api key: %w", err)
	}
	return nil
}

func (r *APIKeyRepository) FindByHash(ctx context.Context, keyHash string) (*apikey.APIKey, error) {
	query := `SELECT ` + apiKeyColumns + ` FROM api_keys WHERE key_hash = $1`
	key, err := scanAPIKey(r.db.QueryRow(ctx, query, keyHash))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ierr.ErrKeyNotFound
		}
		r.logger.Error("Failed to find api key by hash", zap.Error(err))
		return nil, fmt.Errorf("db error finding api key: %w", err)
	}
	return key, nil
}

func (r *APIKeyRepository) ListByOwner(ctx context.Context, userUUID string) ([]*apikey.APIKey, error) {
	query := `SELECT ` + apiKeyColumns + ` FROM api_keys WHERE user_uuid = $1 ORDER BY created_at DESC`
	rows, err := r.db.Query(ctx, query, userUUID)
	if err != nil {
		r.logger.Error("Failed to list api keys", zap.String("user_uuid", userUUID), zap.Error(err))
		return nil, fmt.Errorf("db error listing api keys: %w", err)
	}
	defer rows.Close()

	var keys []*apikey.APIKey
	for rows.Next() {
		key, err := scanAPIKey(rows)
		if err != nil {
			return nil, fmt.Errorf("db error scanning api key: %w", err)
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// TouchUsage is a single UPDATE so concurrent verifications of one key are
// serialized by the row lock and no increment is lost.
func (r *APIKeyRepository) TouchUsage(ctx context.Context, keyHash string, usedAt time.Time) error {
	query := `UPDATE api_keys SET usage_count = usage_count + 1, last_used_at = $1 WHERE key_hash = $2`
	cmdTag, err := r.db.Exec(ctx, query, usedAt, keyHash)
	if err != nil {
		r.logger.Error("Failed to update api key usage", zap.Error(err))
		return fmt.Errorf("db error updating api key usage: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ierr.ErrKeyNotFound
	}
	return nil
}

func (r *APIKeyRepository) Revoke(ctx context.Context, keyHash string, revokedAt time.Time) error {
	query := `UPDATE api_keys SET status = $1, revoked_at = $2 WHERE key_hash = $3 AND status = $4`
	_, err := r.db.Exec(ctx, query, apikey.StatusRevoked, revokedAt, keyHash, apikey.StatusActive)
	if err != nil {
		r.logger.Error("Failed to revoke api key", zap.Error(err))
		return fmt.Errorf("db error revoking api key: %w", err)
	}
	return nil
}

func (r *APIKeyRepository) LabelExists(ctx context.Context, userUUID, label string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM api_keys WHERE user_uuid = $1 AND label = $2)`
	var exists bool
	if err := r.db.QueryRow(ctx, query, userUUID, label).Scan(&exists); err != nil {
		return false, fmt.Errorf("db error checking label: %w", err)
	}
	return exists, nil
}

func scanAPIKey(row pgx.Row) (*apikey.APIKey, error) {
	var key apikey.APIKey
	err := row.Scan(
		&key.KeyHash,
		&key.Prefix,
		&key.UserUUID,
		&key.Label,
		&key.Description,
		&key.Status,
		&key.UsageCount,
		&key.CreatedAt,
		&key.LastUsedAt,
		&key.RevokedAt,
	)
	if err != nil {
		return nil, err
	}
	return &key, nil
}
