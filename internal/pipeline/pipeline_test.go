package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"shardgen/internal/events"
	"shardgen/internal/hub"
	"shardgen/internal/manifest"
	"shardgen/internal/modelcfg"
	"shardgen/internal/runtime"
	"shardgen/internal/skeleton"
	"shardgen/internal/tokenizer"
)

const bloomConfig = `{"model_type":"bloom","architectures":["BloomForCausalLM"],"hidden_size":16,"n_layer":2,"n_head":2,"vocab_size":64,"pad_token_id":3,"eos_token_id":2}`

// dirResolver serves a fixed local directory.
type dirResolver struct {
	root string
	err  error
}

func (r dirResolver) Resolve(ctx context.Context, modelID string) (hub.Snapshot, error) {
	if r.err != nil {
		return hub.Snapshot{}, r.err
	}
	return hub.Snapshot{ModelID: modelID, Root: r.root}, nil
}

// wordCodec maps words to stable ids starting at 10; 2 is eos and 3 is pad.
type wordCodec struct {
	mu    sync.Mutex
	vocab map[string]int
	words map[int]string
}

func newWordCodec() *wordCodec {
	return &wordCodec{vocab: map[string]int{}, words: map[int]string{2: "</s>", 3: "<pad>"}}
}

func (c *wordCodec) Encode(text string) []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	var ids []int
	for _, w := range strings.Fields(text) {
		id, ok := c.vocab[w]
		if !ok {
			id = 10 + len(c.vocab)
			c.vocab[w] = id
			c.words[id] = w
		}
		ids = append(ids, id)
	}
	return ids
}

func (c *wordCodec) Decode(ids []int) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		w, ok := c.words[id]
		if !ok {
			w = "tok" + strings.Repeat("+", id%5)
		}
		parts = append(parts, w)
	}
	return strings.Join(parts, " ")
}

func testTokenizer(codec *wordCodec) TokenizerFunc {
	return func(hub.Snapshot, modelcfg.Descriptor) (Codec, error) {
		return tokenizer.New(codec, tokenizer.Config{PadID: 3, PaddingSide: "left", Special: map[int]struct{}{2: {}, 3: {}}}), nil
	}
}

// greedyRuntime appends a deterministic function of each row, then eos.
type greedyRuntime struct {
	mu       sync.Mutex
	spec     runtime.LoadSpec
	devices  []string
	closed   int
	loadErr  error
	genCalls int
}

func (g *greedyRuntime) Materialize(ctx context.Context, spec runtime.LoadSpec) (runtime.Engine, error) {
	if g.loadErr != nil {
		return nil, g.loadErr
	}
	g.spec = spec
	return g, nil
}

func (g *greedyRuntime) Generate(ctx context.Context, b runtime.Batch, opts runtime.Options) ([][]int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.genCalls++
	if opts.MaxNewTokens < 0 {
		return nil, &runtime.HTTPError{Status: 400, Body: "max_new_tokens must be >= 0"}
	}
	if opts.DoSample {
		return nil, errors.New("sampling requested")
	}
	g.devices = append(g.devices, b.InputIDs.Device, b.AttentionMask.Device)
	out := make([][]int, len(b.InputIDs.Data))
	for i, row := range b.InputIDs.Data {
		sum := 0
		for j, id := range row {
			if b.AttentionMask.Data[i][j] == 1 {
				sum += id
			}
		}
		seq := append([]int{}, row...)
		for k := 0; k < opts.MaxNewTokens; k++ {
			seq = append(seq, 40+(sum+k)%7)
		}
		out[i] = append(seq, 2)
	}
	return out, nil
}

func (g *greedyRuntime) Info() runtime.Info { return runtime.Info{Mode: "fake"} }

func (g *greedyRuntime) Close() error {
	g.mu.Lock()
	g.closed++
	g.mu.Unlock()
	return nil
}

func writeRepo(t *testing.T, shards ...string) string {
	t.Helper()
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "config.json"), []byte(bloomConfig), 0o644); err != nil {
		t.Fatal(err)
	}
	for _, s := range shards {
		p := filepath.Join(root, s)
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte("w"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return root
}

func construct(t *testing.T, root, manifestPath string, codec *wordCodec) *Constructed {
	t.Helper()
	c, err := New(context.Background(), Config{ModelID: "bigscience/bloom-test", Precision: skeleton.FP16, ManifestPath: manifestPath, Device: "cuda:0"},
		Deps{Resolver: dirResolver{root: root}, OpenTokenizer: testTokenizer(codec), Log: zerolog.Nop()})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	return c
}

func ready(t *testing.T) (*Pipeline, *greedyRuntime) {
	t.Helper()
	root := writeRepo(t, "pytorch_model.bin")
	c := construct(t, root, filepath.Join(t.TempDir(), "checkpoints.json"), newWordCodec())
	rt := &greedyRuntime{}
	p, err := c.Materialize(context.Background(), rt)
	if err != nil {
		t.Fatalf("materialize: %v", err)
	}
	return p, rt
}

func TestNewWritesManifestAndSkeleton(t *testing.T) {
	root := writeRepo(t, "pytorch_model-00001-of-00002.bin", "pytorch_model-00002-of-00002.bin", "model.safetensors")
	mpath := filepath.Join(t.TempDir(), "out", "checkpoints.json")
	pub := events.NewMemory()
	c, err := New(context.Background(), Config{ModelID: "m", ManifestPath: mpath},
		Deps{Resolver: dirResolver{root: root}, OpenTokenizer: testTokenizer(newWordCodec()), Publisher: pub})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	m, err := manifest.Read(mpath)
	if err != nil {
		t.Fatalf("read manifest: %v", err)
	}
	want := []string{filepath.Join(root, "pytorch_model-00001-of-00002.bin"), filepath.Join(root, "pytorch_model-00002-of-00002.bin")}
	if m.Type != "bloom" || m.Version.String() != "1.0" || !reflect.DeepEqual(m.Checkpoints, want) {
		t.Fatalf("manifest=%+v", m)
	}
	if c.Repo().Root != root || c.Repo().ManifestPath != mpath {
		t.Fatalf("repo=%+v", c.Repo())
	}
	if c.Skeleton() == nil || c.Skeleton().Precision != skeleton.FP16 || c.Skeleton().NumParams() == 0 {
		t.Fatalf("skeleton=%+v", c.Skeleton())
	}
	spec := c.LoadSpec()
	if spec.ManifestPath != mpath || spec.ModelType != "bloom" || spec.TensorParallel != 1 {
		t.Fatalf("load spec=%+v", spec)
	}
	names := pub.Names()
	if names[0] != "construct_start" || names[len(names)-1] != "constructed" {
		t.Fatalf("events=%v", names)
	}
}

func TestSecondConstructionOverwritesManifest(t *testing.T) {
	mpath := filepath.Join(t.TempDir(), "checkpoints.json")
	first := writeRepo(t, "a.bin", "b.bin", "c.bin")
	second := writeRepo(t, "only.bin", "ignored.pt")
	construct(t, first, mpath, newWordCodec())
	construct(t, second, mpath, newWordCodec())
	m, err := manifest.Read(mpath)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !reflect.DeepEqual(m.Checkpoints, []string{filepath.Join(second, "only.bin")}) {
		t.Fatalf("manifest should reflect second construction: %v", m.Checkpoints)
	}
}

func TestNewPropagatesCollaboratorErrors(t *testing.T) {
	sentinel := errors.New("repository not found")
	_, err := New(context.Background(), Config{ModelID: "nope", ManifestPath: filepath.Join(t.TempDir(), "m.json")},
		Deps{Resolver: dirResolver{err: sentinel}, OpenTokenizer: testTokenizer(newWordCodec())})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected resolver error, got %v", err)
	}

	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "config.json"), []byte(`{"model_type":"t5"}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := New(context.Background(), Config{ModelID: "t5", ManifestPath: filepath.Join(t.TempDir(), "m.json")},
		Deps{Resolver: dirResolver{root: root}, OpenTokenizer: testTokenizer(newWordCodec())}); err == nil {
		t.Fatalf("expected unsupported architecture error")
	}

	tokErr := errors.New("no tokenizer.json")
	_, err = New(context.Background(), Config{ModelID: "m", ManifestPath: filepath.Join(t.TempDir(), "m.json")},
		Deps{Resolver: dirResolver{root: writeRepo(t)}, OpenTokenizer: func(hub.Snapshot, modelcfg.Descriptor) (Codec, error) { return nil, tokErr }})
	if !errors.Is(err, tokErr) {
		t.Fatalf("expected tokenizer error, got %v", err)
	}
}

func TestMaterializeErrors(t *testing.T) {
	c := construct(t, writeRepo(t, "a.bin"), filepath.Join(t.TempDir(), "m.json"), newWordCodec())
	if _, err := c.Materialize(context.Background(), nil); err == nil {
		t.Fatalf("expected nil runtime error")
	}
	loadErr := errors.New("out of memory")
	if _, err := c.Materialize(context.Background(), &greedyRuntime{loadErr: loadErr}); !errors.Is(err, loadErr) {
		t.Fatalf("expected load error, got %v", err)
	}
}

func TestGenerateOrderAndCardinality(t *testing.T) {
	p, rt := ready(t)
	out, err := p.Generate(context.Background(), []string{"Hello", "Hi there, how are you?"}, 5)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("want 2 outputs, got %d", len(out))
	}
	if !strings.HasPrefix(out[0], "Hello ") || !strings.HasPrefix(out[1], "Hi there, how are you? ") {
		t.Fatalf("outputs out of order: %q", out)
	}
	for _, s := range out {
		if strings.Contains(s, "<pad>") || strings.Contains(s, "</s>") {
			t.Fatalf("special tokens not stripped: %q", s)
		}
		if n := len(strings.Fields(s)); n > 5+5 {
			t.Fatalf("too many tokens in %q", s)
		}
	}
	for _, d := range rt.devices {
		if d != "cuda:0" {
			t.Fatalf("tensor on %s, want cuda:0", d)
		}
	}
}

func TestGenerateSingleStringNormalization(t *testing.T) {
	p, _ := ready(t)
	one, err := p.GenerateOne(context.Background(), "Hello world", 4)
	if err != nil {
		t.Fatalf("generate one: %v", err)
	}
	list, err := p.Generate(context.Background(), []string{"Hello world"}, 4)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if one != list[0] {
		t.Fatalf("normalization changed output: %q vs %q", one, list[0])
	}
}

func TestGenerateZeroTokensEchoesInput(t *testing.T) {
	p, _ := ready(t)
	out, err := p.Generate(context.Background(), []string{"a b c", "d"}, 0)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if !reflect.DeepEqual(out, []string{"a b c", "d"}) {
		t.Fatalf("got %q", out)
	}
}

func TestGenerateDeterministic(t *testing.T) {
	p, _ := ready(t)
	in := []string{"the quick brown fox", "jumps"}
	a, err := p.Generate(context.Background(), in, 6)
	if err != nil {
		t.Fatal(err)
	}
	b, err := p.Generate(context.Background(), in, 6)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("greedy decoding not deterministic: %q vs %q", a, b)
	}
}

func TestGenerateNegativeTokensPropagates(t *testing.T) {
	p, _ := ready(t)
	_, err := p.Generate(context.Background(), []string{"x"}, -1)
	var he *runtime.HTTPError
	if !errors.As(err, &he) || he.Status != 400 {
		t.Fatalf("expected runtime error, got %v", err)
	}
}

func TestGenerateEmptyInputs(t *testing.T) {
	p, rt := ready(t)
	out, err := p.Generate(context.Background(), nil, 3)
	if err != nil || len(out) != 0 {
		t.Fatalf("got %v, %v", out, err)
	}
	if rt.genCalls != 0 {
		t.Fatalf("runtime should not be called for an empty batch")
	}
}

func TestNotMaterialized(t *testing.T) {
	var zero Pipeline
	if _, err := zero.Generate(context.Background(), []string{"x"}, 1); !errors.Is(err, ErrNotMaterialized) {
		t.Fatalf("zero pipeline: %v", err)
	}
	var nilp *Pipeline
	if _, err := nilp.GenerateOne(context.Background(), "x", 1); !errors.Is(err, ErrNotMaterialized) {
		t.Fatalf("nil pipeline: %v", err)
	}

	p, rt := ready(t)
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if rt.closed != 1 {
		t.Fatalf("engine closed %d times", rt.closed)
	}
	if _, err := p.Generate(context.Background(), []string{"x"}, 1); !errors.Is(err, ErrNotMaterialized) {
		t.Fatalf("closed pipeline: %v", err)
	}
}
