package weather

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidSnapshot rejects malformed readings at construction.
	ErrInvalidSnapshot = errors.New("invalid snapshot")
	// ErrEmptyBatch is returned when aggregation is asked to summarise nothing.
	ErrEmptyBatch = errors.New("empty batch")
)

// ProviderError reports a failed fetch for one city. Any ProviderError aborts the whole batch.
type ProviderError struct {
	City   string
	Status int
	Err    error
}

func (e *ProviderError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("provider error for %s (status %d): %v", e.City, e.Status, e.Err)
	}
	return fmt.Sprintf("provider error for %s: %v", e.City, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}
