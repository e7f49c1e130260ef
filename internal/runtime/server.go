package runtime

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"shardgen/internal/events"
)

// ServerOptions configure attaching to an already running runtime.
type ServerOptions struct {
	URL            string
	APIKey         string
	RequestTimeout time.Duration
	ReadyTimeout   time.Duration
	Log            zerolog.Logger
	Publisher      events.Publisher
}

// serverRuntime drives a runtime the operator started out-of-band.
type serverRuntime struct {
	opts ServerOptions
	c    *client
}

// NewServer returns a Runtime that attaches to opts.URL.
func NewServer(opts ServerOptions) Runtime {
	opts.Publisher = events.OrNop(opts.Publisher)
	if opts.ReadyTimeout <= 0 {
		opts.ReadyTimeout = 30 * time.Second
	}
	return &serverRuntime{opts: opts, c: newClient(opts.URL, opts.APIKey, opts.RequestTimeout)}
}

func (r *serverRuntime) Materialize(ctx context.Context, spec LoadSpec) (Engine, error) {
	if strings.TrimSpace(r.opts.URL) == "" {
		return nil, fmt.Errorf("runtime url is empty")
	}
	if err := waitHealthy(ctx, r.c, r.opts.ReadyTimeout, nil); err != nil {
		return nil, err
	}
	r.opts.Log.Info().Str("adapter", "server").Str("url", r.c.baseURL).Str("manifest", spec.ManifestPath).Msg("load")
	if err := r.c.load(ctx, spec); err != nil {
		r.opts.Publisher.Publish(events.Event{Name: "runtime_load_failed", Subject: spec.ModelType, Fields: map[string]any{"url": r.c.baseURL, "error": err.Error()}})
		return nil, fmt.Errorf("runtime load: %w", err)
	}
	r.opts.Publisher.Publish(events.Event{Name: "runtime_ready", Subject: spec.ModelType, Fields: map[string]any{"url": r.c.baseURL}})
	return &httpEngine{c: r.c, info: Info{Mode: "server", URL: r.c.baseURL}}, nil
}

// waitHealthy polls /health until it answers, the deadline passes, ctx ends
// or exited yields a process exit.
func waitHealthy(ctx context.Context, c *client, timeout time.Duration, exited <-chan error) error {
	deadline := time.Now().Add(timeout)
	for {
		if c.healthy(ctx, time.Second) {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("runtime not ready in time: %s", c.baseURL)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-exited:
			return &exitError{err: err}
		case <-time.After(100 * time.Millisecond):
		}
	}
}

type exitError struct{ err error }

func (e *exitError) Error() string {
	if e.err == nil {
		return "runtime exited before ready"
	}
	return "runtime exited early: " + e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }
