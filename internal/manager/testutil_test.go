package manager

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"shardgen/internal/hub"
	"shardgen/internal/modelcfg"
	"shardgen/internal/pipeline"
	"shardgen/internal/runtime"
	"shardgen/internal/tokenizer"
)

// fixedResolver serves a local directory as the model snapshot.
type fixedResolver struct{ root string }

func (r fixedResolver) Resolve(ctx context.Context, id string) (hub.Snapshot, error) {
	if r.root == "" {
		return hub.Snapshot{}, errors.New("repository not found: " + id)
	}
	return hub.Snapshot{ModelID: id, Root: r.root}, nil
}

// letterCodec encodes each byte as an id (offset by 10); 1 is pad.
type letterCodec struct{}

func (letterCodec) Encode(s string) []int {
	ids := make([]int, 0, len(s))
	for i := 0; i < len(s); i++ {
		ids = append(ids, int(s[i])+10)
	}
	return ids
}

func (letterCodec) Decode(ids []int) string {
	var b strings.Builder
	for _, id := range ids {
		b.WriteByte(byte(id - 10))
	}
	return b.String()
}

// fakeEngine appends "!" for every requested token. It can block on gate.
type fakeEngine struct {
	mu     sync.Mutex
	calls  int
	gate   chan struct{}
	genErr error
	closed bool
}

func (f *fakeEngine) Materialize(ctx context.Context, spec runtime.LoadSpec) (runtime.Engine, error) {
	return f, nil
}

func (f *fakeEngine) Generate(ctx context.Context, b runtime.Batch, opts runtime.Options) ([][]int, error) {
	f.mu.Lock()
	f.calls++
	gate, genErr := f.gate, f.genErr
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if genErr != nil {
		return nil, genErr
	}
	out := make([][]int, len(b.InputIDs.Data))
	for i, row := range b.InputIDs.Data {
		seq := append([]int{}, row...)
		for k := 0; k < opts.MaxNewTokens; k++ {
			seq = append(seq, int('!')+10)
		}
		out[i] = seq
	}
	return out, nil
}

func (f *fakeEngine) Info() runtime.Info { return runtime.Info{Mode: "fake", URL: "http://fake"} }

func (f *fakeEngine) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *fakeEngine) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func writeModelDir(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	cfg := `{"model_type":"bloom","hidden_size":8,"n_layer":1,"n_head":2,"vocab_size":300}`
	if err := os.WriteFile(filepath.Join(root, "config.json"), []byte(cfg), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "pytorch_model.bin"), []byte("w"), 0o644); err != nil {
		t.Fatal(err)
	}
	return root
}

func testConfig(t *testing.T, rt runtime.Runtime) Config {
	t.Helper()
	return Config{
		Pipeline: pipeline.Config{
			ModelID:      "bigscience/bloom-test",
			ManifestPath: filepath.Join(t.TempDir(), "checkpoints.json"),
			Device:       "cuda:0",
		},
		Deps: pipeline.Deps{
			Resolver: fixedResolver{root: writeModelDir(t)},
			OpenTokenizer: func(hub.Snapshot, modelcfg.Descriptor) (pipeline.Codec, error) {
				return tokenizer.New(letterCodec{}, tokenizer.Config{PadID: 1, Special: map[int]struct{}{1: {}}}), nil
			},
		},
		Runtime: rt,
		MaxWait: 200 * time.Millisecond,
	}
}

// newReady returns a bootstrapped manager over a fake engine.
func newReady(t *testing.T, mutate func(*Config)) (*Manager, *fakeEngine) {
	t.Helper()
	eng := &fakeEngine{}
	cfg := testConfig(t, eng)
	if mutate != nil {
		mutate(&cfg)
	}
	m := New(cfg)
	t.Cleanup(func() { _ = m.Close() })
	if err := m.Bootstrap(context.Background()); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	return m, eng
}

func intPtr(v int) *int { return &v }
