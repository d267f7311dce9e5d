package source

import (
	"errors"
	"fmt"
)

// ErrArchiveTooLarge is returned when decompressed content exceeds the configured ceiling.
var ErrArchiveTooLarge = errors.New("archive exceeds decompressed size limit")

// FetchError reports a failed retrieval. Status is the HTTP status when one was received.
type FetchError struct {
	Op     string
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("fetch failed: %s: status %d: %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("fetch failed: %s: %v", e.Op, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }
