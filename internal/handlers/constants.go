package handlers

import "time"

const (
	ErrInvalidJSON         = "Invalid request body"
	ErrUnauthorized        = "Unauthorized"
	ErrInternalServerError = "Internal server error"
	ErrTooManyRequests     = "Too many requests"
	ErrRetryLater          = "Progress could not be saved, please try again"

	// maxBodyBytes bounds every JSON request body
	maxBodyBytes = 1 << 16

	requestTimeout  = 10 * time.Second
	streamHeartbeat = 25 * time.Second
)
