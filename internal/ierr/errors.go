package ierr

import "errors"

var (
	ErrValidation     = errors.New("validation failed")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource conflict")
	ErrInternalServer = errors.New("internal server error")

	ErrInvalidToken = errors.New("invalid or expired token")

	ErrAPIKeyNotFound  = errors.New("api key not found or invalid")
	ErrAPIKeyExpired   = errors.New("api key expired")
	ErrAPIKeyRevoked   = errors.New("api key revoked")
	ErrAPIKeySuspended = errors.New("api key suspended")
	ErrIPNotAllowed    = errors.New("source ip not allowed for this api key")

	ErrRateLimited          = errors.New("rate limit exceeded")
	ErrRateLimitUnavailable = errors.New("rate limiting unavailable")

	ErrAPIKeyUpdateFailed = errors.New("api key update failed")
)
