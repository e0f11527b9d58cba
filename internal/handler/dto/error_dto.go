package dto

type APIErrorResponse struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// RateLimitDetails mirrors the rate limit headers in the 429 body.
type RateLimitDetails struct {
	Layer      string `json:"layer"`
	Limit      int64  `json:"limit"`
	Remaining  int64  `json:"remaining"`
	Reset      int64  `json:"reset"`
	RetryAfter int64  `json:"retry_after"`
	Window     int64  `json:"window"`
	Algorithm  string `json:"algorithm"`
}
