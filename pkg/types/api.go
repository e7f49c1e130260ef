package types

import (
	"bytes"
	"encoding/json"
	"errors"
)

// Inputs accepts either a single string or an array of strings on the wire.
// A single string is normalized to a one-element sequence.
type Inputs []string

// UnmarshalJSON implements json.Unmarshaler.
func (in *Inputs) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*in = Inputs{s}
		return nil
	}
	var list []string
	if err := json.Unmarshal(b, &list); err != nil {
		return errors.New("inputs must be a string or an array of strings")
	}
	*in = list
	return nil
}

// GenerateRequest represents a generation request payload.
type GenerateRequest struct {
	// One prompt or an ordered list of prompts.
	// example: ["Hello","Hi there, how are you?"]
	Inputs Inputs `json:"inputs" swaggertype:"array,string"`
	// Maximum number of new tokens per input. Omitted means the server default (100).
	// example: 5
	MaxNewTokens *int `json:"max_new_tokens,omitempty" example:"5"`
}

// GenerateResponse carries one decoded string per input, in input order.
type GenerateResponse struct {
	// Decoded outputs (input text followed by the generated continuation).
	Outputs []string `json:"outputs"`
	// True when the result was served from the greedy result cache.
	Cached bool `json:"cached,omitempty"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: invalid JSON body
	Error string `json:"error" example:"invalid JSON body"`
	// HTTP status code.
	// example: 400
	Code int `json:"code" example:"400"`
}

// RuntimeStatus summarizes the external inference runtime for /status.
type RuntimeStatus struct {
	// Adapter mode (subprocess or server).
	// example: subprocess
	Mode string `json:"mode" example:"subprocess"`
	// Base URL of the runtime.
	// example: http://127.0.0.1:30001
	URL string `json:"url,omitempty" example:"http://127.0.0.1:30001"`
	// Process ID of the managed runtime (subprocess mode only).
	// example: 12345
	PID int `json:"pid,omitempty" example:"12345"`
	// Compute device inputs are placed on.
	// example: cuda:0
	Device string `json:"device,omitempty" example:"cuda:0"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	// Pipeline lifecycle state (constructing, constructed, materializing, ready, error).
	// example: ready
	State string `json:"state" example:"ready"`
	// Identifier of the current construction attempt.
	ConstructionID string `json:"construction_id,omitempty"`
	// Resolved model artifacts, once known.
	Model *ResolvedModel `json:"model,omitempty"`
	// Number of checkpoint shards listed in the manifest.
	// example: 2
	Shards int `json:"shards"`
	// Fingerprint of the manifest contents.
	ManifestDigest string `json:"manifest_digest,omitempty"`
	// Parameter count of the skeleton.
	// example: 3002557440
	Params int64 `json:"params"`
	// Human readable skeleton size at the configured precision.
	// example: 6.005GB
	SkeletonSize string `json:"skeleton_size,omitempty" example:"6.005GB"`
	// Runtime details.
	Runtime *RuntimeStatus `json:"runtime,omitempty"`
	// Current queue length for incoming requests.
	QueueLen int `json:"queue_len"`
	// Number of in-flight generations (0 or 1).
	Inflight int `json:"inflight"`
	// Maximum queued requests allowed before backpressure triggers.
	// example: 32
	MaxQueueDepth int `json:"max_queue_depth" example:"32"`
	// Total generation calls served.
	GenerationsTotal uint64 `json:"generations_total"`
	// Generation calls served from cache.
	CacheHitsTotal uint64 `json:"cache_hits_total"`
	// Last error observed (if any).
	LastError string `json:"last_error,omitempty"`
	// Uptime of the server in seconds.
	UptimeSeconds int64 `json:"uptime_seconds"`
	// Server time in unix seconds.
	ServerTimeUnix int64 `json:"server_time_unix"`
}
