package utils

import "github.com/google/uuid"

// NewRequestID returns a unique identifier for correlating a request with its response.
func NewRequestID() string {
	return uuid.NewString()
}
