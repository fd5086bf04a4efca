package schedule

import "errors"

var (
	// ErrExtractionFailed means the page loaded but no lessons or
	// no-lessons marker could be recognized. Never cached.
	ErrExtractionFailed = errors.New("schedule: extraction failed")
	// ErrAuthRequired means the stored cookies no longer authenticate.
	ErrAuthRequired = errors.New("schedule: authentication required")
	// ErrTimeout means the fetch did not finish within its deadline.
	ErrTimeout = errors.New("schedule: fetch timed out")
	// ErrPersistence means a durable snapshot could not be written.
	ErrPersistence = errors.New("schedule: persistence failed")
)
