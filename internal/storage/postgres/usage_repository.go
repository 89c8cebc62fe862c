package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/voicegate/stt-gateway-api/internal/domain/usage"
)

type UsageRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewUsageRepository(db *pgxpool.Pool, logger *zap.Logger) *UsageRepository {
	return &UsageRepository{
		db:     db,
		logger: logger.Named("UsageRepository"),
	}
}

var _ usage.Repository = (*UsageRepository)(nil)

func (r *UsageRepository) Insert(ctx context.Context, e *usage.Event) error {
	query := `
		INSERT INTO api_usage_logs (user_uuid, endpoint, method, status_code, processing_time, client_ip, user_agent, api_key_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.db.Exec(ctx, query,
		e.UserUUID,
		e.Endpoint,
		e.Method,
		e.StatusCode,
		e.ProcessingTime,
		e.ClientIP,
		e.UserAgent,
		e.APIKeyHash,
		e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("db error inserting usage event: %w", err)
	}
	return nil
}

func (r *UsageRepository) ListByOwner(ctx context.Context, userUUID string, limit int) ([]*usage.Event, error) {
	query := `
		SELECT id, user_uuid, endpoint, method, status_code, processing_time, client_ip, user_agent, api_key_hash, created_at
		FROM api_usage_logs
		WHERE user_uuid = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := r.db.Query(ctx, query, userUUID, limit)
	if err != nil {
		r.logger.Error("Failed to list usage events", zap.String("user_uuid", userUUID), zap.Error(err))
		return nil, fmt.Errorf("db error listing usage events: %w", err)
	}
	defer rows.Close()

	var events []*usage.Event
	for rows.Next() {
		var e usage.Event
		if err := rows.Scan(
			&e.ID,
			&e.UserUUID,
			&e.Endpoint,
			&e.Method,
			&e.StatusCode,
			&e.ProcessingTime,
			&e.ClientIP,
			&e.UserAgent,
			&e.APIKeyHash,
			&e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("db error scanning usage event: %w", err)
		}
		events = append(events, &e)
	}
	return events, rows.Err()
}

func (r *UsageRepository) StatsSince(ctx context.Context, since time.Time) (*usage.Stats, error) {
	query := `
		SELECT endpoint,
		       COUNT(*),
		       COUNT(*) FILTER (WHERE status_code >= 200 AND status_code < 300),
		       COALESCE(AVG(processing_time), 0)
		FROM api_usage_logs
		WHERE created_at >= $1
		GROUP BY endpoint
		ORDER BY COUNT(*) DESC, endpoint
	`
	rows, err := r.db.Query(ctx, query, since)
	if err != nil {
		r.logger.Error("Failed to aggregate usage stats", zap.Error(err))
		return nil, fmt.Errorf("db error aggregating usage stats: %w", err)
	}
	defer rows.Close()

	stats := &usage.Stats{}
	for rows.Next() {
		var stat usage.EndpointStat
		var successful int64
		if err := rows.Scan(&stat.Endpoint, &stat.RequestCount, &successful, &stat.AvgProcessingTime); err != nil {
			return nil, fmt.Errorf("db error scanning usage stats: %w", err)
		}
		stats.TotalRequests += stat.RequestCount
		stats.SuccessfulRequests += successful
		stats.Endpoints = append(stats.Endpoints, stat)
	}
	return stats, rows.Err()
}

func (r *UsageRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	cmdTag, err := r.db.Exec(ctx, `DELETE FROM api_usage_logs WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("db error deleting old usage events: %w", err)
	}
	return cmdTag.RowsAffected(), nil
}
