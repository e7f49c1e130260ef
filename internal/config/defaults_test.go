package config

import (
	"testing"
)

func TestWithDefaults(t *testing.T) {
	cfg := Config{}.WithDefaults()
	if cfg.ModelID != DefaultModelID || cfg.DType != DefaultDType {
		t.Fatalf("unexpected model defaults: %+v", cfg)
	}
	if cfg.ManifestPath != "checkpoints.json" || cfg.CheckpointPattern != "*.[bp][it][n]" {
		t.Fatalf("unexpected manifest defaults: %q %q", cfg.ManifestPath, cfg.CheckpointPattern)
	}
	if len(cfg.AllowPatterns) != 1 || cfg.AllowPatterns[0] != "*" {
		t.Fatalf("allow patterns=%v", cfg.AllowPatterns)
	}
	if cfg.DefaultMaxNewTokens != 100 {
		t.Fatalf("default tokens=%d", cfg.DefaultMaxNewTokens)
	}
	if cfg.Runtime.Mode != RuntimeModeSubprocess || cfg.Runtime.TensorParallel != 1 {
		t.Fatalf("unexpected runtime defaults: %+v", cfg.Runtime)
	}
}

func TestWithDefaultsInfersServerMode(t *testing.T) {
	cfg := Config{Runtime: RuntimeConfig{URL: "http://rt:9000"}}.WithDefaults()
	if cfg.Runtime.Mode != RuntimeModeServer {
		t.Fatalf("mode=%s", cfg.Runtime.Mode)
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("SHARDGEN_ADDR", ":1234")
	t.Setenv("HF_TOKEN", "hf_x")
	t.Setenv("HF_HUB_OFFLINE", "1")
	cfg := Config{}.ApplyEnv()
	if cfg.Addr != ":1234" || cfg.HFToken != "hf_x" || !cfg.Offline {
		t.Fatalf("unexpected env cfg: %+v", cfg)
	}
	// explicit token wins over env
	cfg = Config{HFToken: "mine"}.ApplyEnv()
	if cfg.HFToken != "mine" {
		t.Fatalf("token overridden: %s", cfg.HFToken)
	}
}

func TestValidate(t *testing.T) {
	ok := Config{Runtime: RuntimeConfig{Bin: "/bin/launcher"}}.WithDefaults()
	if err := ok.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
	cases := map[string]Config{
		"dtype":      func() Config { c := ok; c.DType = "int3"; return c }(),
		"bin":        func() Config { c := ok; c.Runtime.Bin = ""; return c }(),
		"server url": func() Config { c := ok; c.Runtime.Mode = RuntimeModeServer; return c }(),
		"mode":       func() Config { c := ok; c.Runtime.Mode = "carrier-pigeon"; return c }(),
		"tokens":     func() Config { c := ok; c.DefaultMaxNewTokens = -1; return c }(),
		"ports":      func() Config { c := ok; c.Runtime.PortStart = 10; c.Runtime.PortEnd = 5; return c }(),
	}
	for name, c := range cases {
		if err := c.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}
