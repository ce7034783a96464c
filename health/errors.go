package health

import "errors"

var (
	// ErrCheckFailed indicates a health check failed.
	ErrCheckFailed = errors.New("health: check failed")

	// ErrCheckTimeout indicates a health check did not finish in time.
	ErrCheckTimeout = errors.New("health: check timeout")

	// ErrCheckPanicked indicates a health check panicked.
	ErrCheckPanicked = errors.New("health: check panicked")

	// ErrNilChecker indicates a Check without a Checker function.
	ErrNilChecker = errors.New("health: check has no checker")

	// ErrStartupChecksFailed indicates mandatory checks failed at startup.
	ErrStartupChecksFailed = errors.New("health: startup checks failed")

	// ErrInvalidCheckNames indicates check names that are not valid metric names.
	ErrInvalidCheckNames = errors.New("health: invalid healthcheck names")
)
