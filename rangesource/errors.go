package rangesource

import (
	"errors"
	"fmt"
)

var (
	// ErrFetch is matched by every error returned from Fetcher.Fetch.
	ErrFetch = errors.New("range fetch failed")

	// ErrSnapshotNotFound reports that a SnapshotStore holds no snapshot yet.
	ErrSnapshotNotFound = errors.New("range snapshot not found")

	// ErrEmptyRanges reports a fetch or snapshot that carried no blocks at
	// all. Publishing it would silently disable trust.
	ErrEmptyRanges = errors.New("range list is empty")

	// ErrNoSnapshotStore is returned by Source.Load and Source.Watch when no
	// SnapshotStore was configured.
	ErrNoSnapshotStore = errors.New("no snapshot store configured")
)

// FetchError describes a failed retrieval of one remote range list.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%v: %s (status=%d): %v", ErrFetch, e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%v: %s: %v", ErrFetch, e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrFetch) match any FetchError.
func (e *FetchError) Is(target error) bool {
	return target == ErrFetch
}
