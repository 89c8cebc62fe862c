package transcription

import "context"

type Repository interface {
	CreateRequest(ctx context.Context, req *Request) error
	CreateResponse(ctx context.Context, resp *Response) error
	ListRequestsByOwner(ctx context.Context, userUUID string, limit int) ([]*Request, error)
	// FindRequestWithResponse returns the request and its response when one
	// exists; the response pointer is nil for requests that never produced
	// an outcome.
	FindRequestWithResponse(ctx context.Context, requestID string) (*Request, *Response, error)
}
