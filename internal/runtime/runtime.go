// Package runtime talks to the external sharded-inference runtime. The
// runtime owns weight loading (keyed by the checkpoint manifest), device
// placement and greedy decoding; this package only drives it over HTTP,
// either by spawning it (subprocess mode) or by attaching to a running
// instance (server mode).
package runtime

import (
	"context"
	"fmt"

	"shardgen/internal/skeleton"
)

// LoadSpec is what the runtime needs to materialize weights.
type LoadSpec struct {
	ModelType      string
	ManifestPath   string
	DType          skeleton.Precision
	TensorParallel int
	Device         string
	Skeleton       *skeleton.Skeleton
}

// Options are decoding parameters for one generate call.
type Options struct {
	MaxNewTokens int
	// DoSample is always false for greedy decoding; kept explicit on the wire.
	DoSample bool
}

// Info describes a materialized engine for status reporting.
type Info struct {
	Mode string
	URL  string
	PID  int
}

// Runtime materializes a skeleton into a ready engine.
type Runtime interface {
	Materialize(ctx context.Context, spec LoadSpec) (Engine, error)
}

// Engine is a runtime holding real weights.
type Engine interface {
	// Generate returns, for each row, the input ids followed by the new ids.
	Generate(ctx context.Context, batch Batch, opts Options) ([][]int, error)
	Info() Info
	Close() error
}

// HTTPError is a non-2xx answer from the runtime.
type HTTPError struct {
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("runtime http error: %d: %s", e.Status, e.Body)
}
