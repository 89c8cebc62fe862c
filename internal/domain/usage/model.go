package usage

import "time"

// Event is one append-only row per credentialed (or anonymous) call.
// Events are never mutated or deleted by the request path; retention is
// handled by the background sweep worker.
type Event struct {
	ID             int64     `db:"id"`
	UserUUID       string    `db:"user_uuid"`
	Endpoint       string    `db:"endpoint"`
	Method         string    `db:"method"`
	StatusCode     int       `db:"status_code"`
	ProcessingTime float64   `db:"processing_time"`
	ClientIP       string    `db:"client_ip"`
	UserAgent      string    `db:"user_agent"`
	APIKeyHash     string    `db:"api_key_hash"`
	CreatedAt      time.Time `db:"created_at"`
}

// AnonymousCaller marks events produced by the unauthenticated path.
const AnonymousCaller = "anonymous"

// Stats aggregates the usage log over a time window.
type Stats struct {
	TotalRequests      int64
	SuccessfulRequests int64
	Endpoints          []EndpointStat
}

type EndpointStat struct {
	Endpoint          string
	RequestCount      int64
	AvgProcessingTime float64
}
