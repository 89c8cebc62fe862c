package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/voicegate/stt-gateway-api/internal/domain/transcription"
	"github.com/voicegate/stt-gateway-api/internal/ierr"
)

type TranscriptionRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewTranscriptionRepository(db *pgxpool.Pool, logger *zap.Logger) *TranscriptionRepository {
	return &TranscriptionRepository{
		db:     db,
		logger: logger.Named("TranscriptionRepository"),
	}
}

var _ transcription.Repository = (*TranscriptionRepository)(nil)

func (r *TranscriptionRepository) CreateRequest(ctx context.Context, req *transcription.Request) error {
	query := `
		INSERT INTO transcription_requests (
			request_id, user_uuid, filename, file_size, service_requested,
			language, audio_duration, status, processing_time, client_ip, user_agent, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err := r.db.Exec(ctx, query,
		req.RequestID,
		req.UserUUID,
		req.Filename,
		req.FileSize,
		req.ServiceRequested,
		req.Language,
		req.AudioDuration,
		req.Status,
		req.ProcessingTime,
		req.ClientIP,
		req.UserAgent,
		req.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create transcription request", zap.String("request_id", req.RequestID), zap.Error(err))
		return fmt.Errorf("db error creating transcription request: %w", err)
	}
	return nil
}

func (r *TranscriptionRepository) CreateResponse(ctx context.Context, resp *transcription.Response) error {
	query := `
		INSERT INTO transcription_responses (
			response_id, request_id, transcription_text, summary_text, confidence_score,
			service_provider, duration, processing_time, language_detected,
			audio_duration_minutes, tokens_used, response_data, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err := r.db.Exec(ctx, query,
		resp.ResponseID,
		resp.RequestID,
		resp.TranscriptionText,
		resp.SummaryText,
		resp.ConfidenceScore,
		resp.ServiceProvider,
		resp.Duration,
		resp.ProcessingTime,
		resp.LanguageDetected,
		resp.AudioDurationMinutes,
		resp.TokensUsed,
		resp.ResponseData,
		resp.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create transcription response", zap.String("request_id", resp.RequestID), zap.Error(err))
		return fmt.Errorf("db error creating transcription response: %w", err)
	}
	return nil
}

func (r *TranscriptionRepository) ListRequestsByOwner(ctx context.Context, userUUID string, limit int) ([]*transcription.Request, error) {
	query := `
		SELECT request_id, user_uuid, filename, file_size, service_requested,
		       language, audio_duration, status, processing_time, client_ip, user_agent, created_at
		FROM transcription_requests
		WHERE user_uuid = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := r.db.Query(ctx, query, userUUID, limit)
	if err != nil {
		return nil, fmt.Errorf("db error listing transcription requests: %w", err)
	}
	defer rows.Close()

	var requests []*transcription.Request
	for rows.Next() {
		req, err := scanTranscriptionRequest(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, req)
	}
	return requests, rows.Err()
}

func (r *TranscriptionRepository) FindRequestWithResponse(ctx context.Context, requestID string) (*transcription.Request, *transcription.Response, error) {
	reqQuery := `
		SELECT request_id, user_uuid, filename, file_size, service_requested,
		       language, audio_duration, status, processing_time, client_ip, user_agent, created_at
		FROM transcription_requests
		WHERE request_id = $1
	`
	req, err := scanTranscriptionRequest(r.db.QueryRow(ctx, reqQuery, requestID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, ierr.ErrNotFound
		}
		return nil, nil, err
	}

	respQuery := `
		SELECT response_id, request_id, transcription_text, summary_text, confidence_score,
		       service_provider, duration, processing_time, language_detected,
		       audio_duration_minutes, tokens_used, response_data, created_at
		FROM transcription_responses
		WHERE request_id = $1
	`
	var resp transcription.Response
	err = r.db.QueryRow(ctx, respQuery, requestID).Scan(
		&resp.ResponseID,
		&resp.RequestID,
		&resp.TranscriptionText,
		&resp.SummaryText,
		&resp.ConfidenceScore,
		&resp.ServiceProvider,
		&resp.Duration,
		&resp.ProcessingTime,
		&resp.LanguageDetected,
		&resp.AudioDurationMinutes,
		&resp.TokensUsed,
		&resp.ResponseData,
		&resp.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// A request that failed before dispatch has no response row.
			return req, nil, nil
		}
		return nil, nil, fmt.Errorf("db error finding transcription response: %w", err)
	}
	return req, &resp, nil
}

func scanTranscriptionRequest(row pgx.Row) (*transcription.Request, error) {
	var req transcription.Request
	err := row.Scan(
		&req.RequestID,
		&req.UserUUID,
		&req.Filename,
		&req.FileSize,
		&req.ServiceRequested,
		&req.Language,
		&req.AudioDuration,
		&req.Status,
		&req.ProcessingTime,
		&req.ClientIP,
		&req.UserAgent,
		&req.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("db error scanning transcription request: %w", err)
	}
	return &req, nil
}
