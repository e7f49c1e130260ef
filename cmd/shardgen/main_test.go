package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"shardgen/internal/config"
	"shardgen/internal/skeleton"
)

func TestOverlayFlags(t *testing.T) {
	base := config.Config{ModelID: "from-file", DType: "fp32", Offline: false}
	flags := config.Config{ModelID: "gpt2", DType: "bf16", Offline: true}
	changed := map[string]bool{"model": true, "offline": true}
	got := overlayFlags(base, flags, func(n string) bool { return changed[n] })
	if got.ModelID != "gpt2" || !got.Offline {
		t.Fatalf("changed flags not applied: %+v", got)
	}
	if got.DType != "fp32" {
		t.Fatalf("unchanged flag overrode file value: %s", got.DType)
	}
}

func TestFindConfig(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "shardgen.toml")
	if err := os.WriteFile(p, []byte("model_id = \"gpt2\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	got := findConfig([]string{filepath.Join(dir, "shardgen.yaml"), p})
	if got != p {
		t.Fatalf("findConfig=%q", got)
	}
	if findConfig([]string{filepath.Join(dir, "nope.json")}) != "" {
		t.Fatalf("expected no config")
	}
}

func TestPipelineConfig(t *testing.T) {
	cfg := config.Config{ModelID: "bigscience/bloom-560m", DType: "bf16", Revision: "v1", Offline: true}.WithDefaults()
	pc, err := pipelineConfig(cfg)
	if err != nil {
		t.Fatalf("pipelineConfig: %v", err)
	}
	if pc.Precision != skeleton.BF16 || pc.ManifestPath != "checkpoints.json" || pc.TensorParallel != 1 {
		t.Fatalf("unexpected pipeline cfg: %+v", pc)
	}
	if !pc.Hub.Offline || pc.Hub.Revision != "v1" || len(pc.Hub.AllowPatterns) != 1 {
		t.Fatalf("unexpected hub opts: %+v", pc.Hub)
	}
	cfg.DType = "fp8"
	if _, err := pipelineConfig(cfg); err == nil {
		t.Fatalf("expected precision error")
	}
}

func TestNewRuntimeModes(t *testing.T) {
	a := &app{log: zerolog.Nop()}
	for _, mode := range []string{config.RuntimeModeSubprocess, config.RuntimeModeServer} {
		cfg := config.Config{Runtime: config.RuntimeConfig{Mode: mode, Bin: "/bin/true", URL: "http://127.0.0.1:1"}}.WithDefaults()
		rt, err := newRuntime(cfg, a)
		if err != nil || rt == nil {
			t.Fatalf("%s: rt=%v err=%v", mode, rt, err)
		}
	}
	cfg := config.Config{Runtime: config.RuntimeConfig{Mode: "pigeon"}}
	if _, err := newRuntime(cfg, a); err == nil {
		t.Fatalf("expected unknown mode error")
	}
}

func TestNewManagerValidates(t *testing.T) {
	a := &app{log: zerolog.Nop(), cfg: config.Config{}.WithDefaults()}
	// subprocess mode without a binary
	if _, err := a.newManager(nil); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestRenderSkeleton(t *testing.T) {
	s := &skeleton.Skeleton{
		ModelType: "toy",
		Precision: skeleton.FP16,
		NumLayers: 1,
		Params: []skeleton.Param{
			{Name: "embed.weight", Shape: []int64{10, 4}, DType: skeleton.FP16},
			{Name: "head.bias", Shape: []int64{10}, DType: skeleton.FP16},
		},
	}
	var buf bytes.Buffer
	renderSkeleton(&buf, s, false)
	out := buf.String()
	for _, want := range []string{"NAME", "embed.weight", "[10, 4]", "40", "head.bias", "toy: 1 layers, 2 tensors"} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in:\n%s", want, out)
		}
	}
	buf.Reset()
	renderSkeleton(&buf, s, true)
	if strings.Contains(buf.String(), "embed.weight") {
		t.Fatalf("summary printed the table:\n%s", buf.String())
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	l := newLogger(&buf, "warn", "json")
	l.Info().Msg("hidden")
	l.Warn().Msg("shown")
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), `"message":"shown"`) {
		t.Fatalf("unexpected output: %s", buf.String())
	}
}

func TestRootCommandWiring(t *testing.T) {
	root := newRootCmd()
	want := map[string]bool{"serve": false, "generate": false, "manifest": false, "inspect": false}
	for _, c := range root.Commands() {
		if _, ok := want[c.Name()]; ok {
			want[c.Name()] = true
		}
	}
	for name, ok := range want {
		if !ok {
			t.Fatalf("subcommand %s not registered", name)
		}
	}
}
