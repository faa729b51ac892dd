package carsensor

import (
	"errors"
	"fmt"
)

// NetworkError is returned once a fetch has used up its retries.
type NetworkError struct {
	URL      string
	Attempts int
	Err      error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("fetch %s failed after %d attempts: %v", e.URL, e.Attempts, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// networkError builds a NetworkError from the error of a retry loop, whose
// message already names the operation and attempt count. Only the cause
// underneath is kept.
func networkError(url string, attempts int, err error) *NetworkError {
	if cause := errors.Unwrap(err); cause != nil {
		err = cause
	}
	return &NetworkError{URL: url, Attempts: attempts, Err: err}
}

// ExtractionError describes one listing block that could not be turned into a record.
type ExtractionError struct {
	PageURL string
	Block   int
	Field   string
	Reason  string
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract %s block %d: %s: %s", e.PageURL, e.Block, e.Field, e.Reason)
}
