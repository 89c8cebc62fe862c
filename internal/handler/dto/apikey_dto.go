package dto

import "time"

type IssueAPIKeyRequest struct {
	Description string `json:"description"`
}

// IssueAPIKeyResponse is the only place the plaintext key ever appears.
type IssueAPIKeyResponse struct {
	APIKey      string    `json:"api_key"`
	Prefix      string    `json:"prefix"`
	Label       string    `json:"label"`
	Description string    `json:"description,omitempty"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}

type APIKeyResponse struct {
	KeyHash     string     `json:"key_hash"`
	Prefix      string     `json:"prefix"`
	Label       string     `json:"label"`
	Description string     `json:"description,omitempty"`
	Status      string     `json:"status"`
	UsageCount  int64      `json:"usage_count"`
	CreatedAt   time.Time  `json:"created_at"`
	LastUsedAt  *time.Time `json:"last_used_at,omitempty"`
	RevokedAt   *time.Time `json:"revoked_at,omitempty"`
}

type VerifyAPIKeyResponse struct {
	Valid      bool   `json:"valid"`
	Prefix     string `json:"prefix"`
	Label      string `json:"label"`
	UserUUID   string `json:"user_uuid"`
	UsageCount int64  `json:"usage_count"`
}

type RevokeAPIKeyRequest struct {
	KeyHash string `json:"key_hash" binding:"required"`
}

type UsageEventResponse struct {
	Endpoint       string    `json:"endpoint"`
	Method         string    `json:"method"`
	StatusCode     int       `json:"status_code"`
	ProcessingTime float64   `json:"processing_time"`
	ClientIP       string    `json:"client_ip,omitempty"`
	UserAgent      string    `json:"user_agent,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

type UsageStatsResponse struct {
	Status             string                 `json:"status"`
	PeriodDays         int                    `json:"period_days"`
	TotalRequests      int64                  `json:"total_requests"`
	SuccessfulRequests int64                  `json:"successful_requests"`
	SuccessRate        float64                `json:"success_rate"`
	EndpointStats      []EndpointStatResponse `json:"endpoint_stats"`
}

type EndpointStatResponse struct {
	Endpoint          string  `json:"endpoint"`
	RequestCount      int64   `json:"request_count"`
	AvgProcessingTime float64 `json:"avg_processing_time"`
}
