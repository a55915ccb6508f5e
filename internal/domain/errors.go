package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidCredentials = errors.New("invalid API key or missing permissions")
	ErrIndexMissing       = errors.New("mastery achievement index has not been built yet, run the database build first")
	ErrNoAPIKey           = errors.New("no API key configured")
)

// FetchError is a non-2xx response from the achievement API.
type FetchError struct {
	Status     int
	StatusText string
	URL        string
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch failed: %d %s", e.Status, e.StatusText)
}
