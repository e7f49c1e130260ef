package types

import "encoding/json"

// ManifestVersion is the only schema version the sharded loader understands.
// It is kept as a number literal so it serializes as 1.0, not 1.
const ManifestVersion = json.Number("1.0")

// Manifest lists checkpoint shards for the external sharded-inference loader.
// The JSON shape must stay exactly {"type", "checkpoints", "version"}.
type Manifest struct {
	// Model family tag taken from config.json model_type.
	// example: bloom
	Type string `json:"type" example:"bloom"`
	// Absolute paths of every checkpoint shard, in discovery order.
	// example: ["/home/user/.cache/huggingface/hub/models--bigscience--bloom-3b/snapshots/abc/pytorch_model.bin"]
	Checkpoints []string `json:"checkpoints"`
	// Schema version, always 1.0.
	// example: 1.0
	Version json.Number `json:"version" swaggertype:"number" example:"1.0"`
}

// ResolvedModel describes the artifacts a pipeline was constructed from.
type ResolvedModel struct {
	// Hub identifier of the model.
	// example: bigscience/bloom-3b
	ID string `json:"id" example:"bigscience/bloom-3b"`
	// Local snapshot directory holding config, tokenizer and shards.
	Root string `json:"root"`
	// Path of the manifest written for the runtime.
	// example: checkpoints.json
	ManifestPath string `json:"manifest_path" example:"checkpoints.json"`
	// Model family (config.json model_type).
	// example: bloom
	Family string `json:"family,omitempty" example:"bloom"`
	// Numeric precision of the placeholder skeleton.
	// example: fp16
	DType string `json:"dtype" example:"fp16"`
}
