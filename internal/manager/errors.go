package manager

import (
	"errors"

	"shardgen/internal/pipeline"
)

// tooBusyError signals queue timeout/overflow for 429 mapping.
type tooBusyError struct{ what string }

func (e tooBusyError) Error() string { return "too busy: " + e.what }

// IsTooBusy reports whether err indicates backpressure (return 429).
func IsTooBusy(err error) bool {
	var e tooBusyError
	return errors.As(err, &e)
}

// notReadyError is returned while the pipeline is still being built or
// after it failed or closed.
type notReadyError struct{ state State }

func (e notReadyError) Error() string { return "pipeline not ready: " + string(e.state) }

// IsNotReady reports whether err means the pipeline cannot serve yet (503).
func IsNotReady(err error) bool {
	var e notReadyError
	return errors.As(err, &e)
}

// dependencyUnavailableError signals a missing external dependency (e.g. no
// runtime configured) so the HTTP layer can return 503 instead of 500.
type dependencyUnavailableError struct{ msg string }

func (e dependencyUnavailableError) Error() string { return e.msg }

// ErrDependencyUnavailable constructs a dependencyUnavailableError.
func ErrDependencyUnavailable(msg string) error { return dependencyUnavailableError{msg: msg} }

// IsDependencyUnavailable reports whether err indicates a missing/failed runtime dependency.
func IsDependencyUnavailable(err error) bool {
	var e dependencyUnavailableError
	return errors.As(err, &e)
}

// IsNotMaterialized reports a generation attempt on a structure without
// real weights (409).
func IsNotMaterialized(err error) bool {
	return errors.Is(err, pipeline.ErrNotMaterialized)
}
