package ierr

import "errors"

var (
	ErrValidation     = errors.New("validation failed")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource conflict")
	ErrInternalServer = errors.New("internal server error")

	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid user id or password")
	ErrAccountLocked      = errors.New("account is locked")
	ErrInvalidToken       = errors.New("invalid token")
	ErrTokenExpired       = errors.New("token expired")

	ErrKeyNotFound    = errors.New("api key not found")
	ErrKeyRevoked     = errors.New("api key revoked")
	ErrDuplicateLabel = errors.New("api key label already exists")

	ErrUnsupportedFormat  = errors.New("unsupported audio format")
	ErrAllProvidersFailed = errors.New("all transcription providers failed")
)
