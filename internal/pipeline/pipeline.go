// Package pipeline composes the resolver, manifest writer, skeleton builder,
// tokenizer and runtime into a generation pipeline with two phases:
//
//	New         -> *Constructed  (files resolved, manifest written, skeleton built)
//	Materialize -> *Pipeline     (runtime loaded real weights; Generate works)
//
// Only *Pipeline has Generate, so generation cannot be requested on a
// structure whose weights were never materialized.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"

	"shardgen/internal/events"
	"shardgen/internal/hub"
	"shardgen/internal/manifest"
	"shardgen/internal/modelcfg"
	"shardgen/internal/runtime"
	"shardgen/internal/skeleton"
	"shardgen/internal/tokenizer"
	"shardgen/pkg/types"
)

// DefaultMaxNewTokens applies when a caller does not bound generation.
const DefaultMaxNewTokens = 100

// ErrNotMaterialized is returned when generation is requested from a
// pipeline whose runtime never loaded (or has released) real weights.
var ErrNotMaterialized = errors.New("pipeline not materialized: weights are not loaded")

// Config selects the model and where its manifest goes.
type Config struct {
	ModelID   string
	Precision skeleton.Precision
	// ManifestPath is where the checkpoint manifest is written; relative
	// paths are resolved against the working directory.
	ManifestPath      string
	CheckpointPattern string
	Device            string
	TensorParallel    int
	Hub               hub.Options
}

// ResolvedRepo locates the model files and the manifest describing them.
type ResolvedRepo struct {
	Root         string
	ManifestPath string
}

// Resolver fetches model repositories.
type Resolver interface {
	Resolve(ctx context.Context, modelID string) (hub.Snapshot, error)
}

// Codec encodes prompt batches and decodes generated ids.
type Codec interface {
	BatchEncode(inputs []string) runtime.Batch
	BatchDecode(seqs [][]int, skipSpecial bool) []string
}

// TokenizerFunc opens the tokenizer for a resolved snapshot.
type TokenizerFunc func(snap hub.Snapshot, desc modelcfg.Descriptor) (Codec, error)

// Deps are the collaborators; zero fields get production defaults.
type Deps struct {
	Resolver      Resolver
	OpenTokenizer TokenizerFunc
	Log           zerolog.Logger
	Publisher     events.Publisher
}

// Constructed is a pipeline whose structure exists but whose weights do not.
type Constructed struct {
	cfg      Config
	repo     ResolvedRepo
	desc     modelcfg.Descriptor
	manifest types.Manifest
	skel     *skeleton.Skeleton
	tok      Codec
	device   string
	log      zerolog.Logger
	pub      events.Publisher
}

// New resolves cfg.ModelID, writes the checkpoint manifest (replacing any
// previous one at the same path), loads the tokenizer and builds the
// shape-only skeleton. Collaborator errors are returned wrapped but intact.
func New(ctx context.Context, cfg Config, deps Deps) (*Constructed, error) {
	if cfg.ManifestPath == "" {
		cfg.ManifestPath = "checkpoints.json"
	}
	if cfg.Precision == "" {
		cfg.Precision = skeleton.FP16
	}
	if cfg.TensorParallel <= 0 {
		cfg.TensorParallel = 1
	}
	pub := events.OrNop(deps.Publisher)
	log := deps.Log.With().Str("model", cfg.ModelID).Logger()
	if deps.Resolver == nil {
		deps.Resolver = hub.NewResolver(cfg.Hub, deps.Log)
	}
	if deps.OpenTokenizer == nil {
		deps.OpenTokenizer = func(snap hub.Snapshot, desc modelcfg.Descriptor) (Codec, error) {
			return tokenizer.Open(snap.Root, desc)
		}
	}
	pub.Publish(events.Event{Name: "construct_start", Subject: cfg.ModelID})

	snap, err := deps.Resolver.Resolve(ctx, cfg.ModelID)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", cfg.ModelID, err)
	}
	desc, err := modelcfg.Load(snap.Root)
	if err != nil {
		return nil, fmt.Errorf("model config: %w", err)
	}

	shards, err := manifest.Discover(snap.Root, cfg.CheckpointPattern)
	if err != nil {
		return nil, err
	}
	mpath, err := filepath.Abs(cfg.ManifestPath)
	if err != nil {
		return nil, fmt.Errorf("manifest path: %w", err)
	}
	m := manifest.New(desc.ModelType, shards)
	if err := manifest.Write(mpath, m); err != nil {
		return nil, err
	}
	log.Info().Str("path", mpath).Int("shards", len(shards)).Str("type", desc.ModelType).Msg("manifest written")
	pub.Publish(events.Event{Name: "manifest_written", Subject: cfg.ModelID, Fields: map[string]any{"path": mpath, "shards": len(shards)}})

	tok, err := deps.OpenTokenizer(snap, desc)
	if err != nil {
		return nil, err
	}
	skel, err := skeleton.Build(desc, cfg.Precision)
	if err != nil {
		return nil, err
	}
	log.Info().Str("params", skel.HumanParams()).Str("size", skel.HumanSize()).Msg("skeleton built")
	pub.Publish(events.Event{Name: "constructed", Subject: cfg.ModelID, Fields: map[string]any{"params": skel.NumParams()}})

	return &Constructed{
		cfg:      cfg,
		repo:     ResolvedRepo{Root: snap.Root, ManifestPath: mpath},
		desc:     desc,
		manifest: m,
		skel:     skel,
		tok:      tok,
		device:   runtime.ActiveDevice(cfg.Device),
		log:      log,
		pub:      pub,
	}, nil
}

func (c *Constructed) Config() Config                  { return c.cfg }
func (c *Constructed) Repo() ResolvedRepo              { return c.repo }
func (c *Constructed) Descriptor() modelcfg.Descriptor { return c.desc }
func (c *Constructed) Manifest() types.Manifest        { return c.manifest }
func (c *Constructed) Skeleton() *skeleton.Skeleton    { return c.skel }
func (c *Constructed) Device() string                  { return c.device }

// LoadSpec is what the runtime receives to materialize this structure.
func (c *Constructed) LoadSpec() runtime.LoadSpec {
	return runtime.LoadSpec{
		ModelType:      c.desc.ModelType,
		ManifestPath:   c.repo.ManifestPath,
		DType:          c.cfg.Precision,
		TensorParallel: c.cfg.TensorParallel,
		Device:         c.device,
		Skeleton:       c.skel,
	}
}

// Materialize hands the skeleton and manifest to rt and returns the ready
// pipeline once real weights are loaded.
func (c *Constructed) Materialize(ctx context.Context, rt runtime.Runtime) (*Pipeline, error) {
	if rt == nil {
		return nil, errors.New("runtime is nil")
	}
	c.pub.Publish(events.Event{Name: "materialize_start", Subject: c.cfg.ModelID})
	eng, err := rt.Materialize(ctx, c.LoadSpec())
	if err != nil {
		return nil, fmt.Errorf("materialize: %w", err)
	}
	c.log.Info().Str("device", c.device).Msg("materialized")
	c.pub.Publish(events.Event{Name: "materialized", Subject: c.cfg.ModelID, Fields: map[string]any{"device": c.device}})
	return &Pipeline{c: c, engine: eng}, nil
}

// Pipeline generates text with materialized weights. Calls are serialized.
type Pipeline struct {
	mu     sync.Mutex
	c      *Constructed
	engine runtime.Engine
}

// Constructed returns the structure this pipeline was materialized from.
func (p *Pipeline) Constructed() *Constructed { return p.c }

// RuntimeInfo describes the engine behind the pipeline.
func (p *Pipeline) RuntimeInfo() runtime.Info {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.engine == nil {
		return runtime.Info{}
	}
	return p.engine.Info()
}

// Generate runs greedy decoding for up to maxNewTokens new tokens per input
// and returns one decoded string per input, in input order. Tokenizer and
// runtime failures (a negative maxNewTokens included) are returned as-is.
func (p *Pipeline) Generate(ctx context.Context, inputs []string, maxNewTokens int) ([]string, error) {
	if p == nil {
		return nil, ErrNotMaterialized
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.engine == nil || p.c == nil {
		return nil, ErrNotMaterialized
	}
	if len(inputs) == 0 {
		return []string{}, nil
	}
	batch := p.c.tok.BatchEncode(inputs).To(p.c.device)
	seqs, err := p.engine.Generate(ctx, batch, runtime.Options{MaxNewTokens: maxNewTokens, DoSample: false})
	if err != nil {
		return nil, err
	}
	if len(seqs) != len(inputs) {
		return nil, fmt.Errorf("runtime returned %d sequences for %d inputs", len(seqs), len(inputs))
	}
	return p.c.tok.BatchDecode(seqs, true), nil
}

// GenerateOne is Generate for a single prompt.
func (p *Pipeline) GenerateOne(ctx context.Context, input string, maxNewTokens int) (string, error) {
	out, err := p.Generate(ctx, []string{input}, maxNewTokens)
	if err != nil {
		return "", err
	}
	return out[0], nil
}

// Close releases the runtime. Generate afterwards returns ErrNotMaterialized.
func (p *Pipeline) Close() error {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	eng := p.engine
	p.engine = nil
	p.mu.Unlock()
	if eng == nil {
		return nil
	}
	return eng.Close()
}
