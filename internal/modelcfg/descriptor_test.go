package modelcfg

import (
	"os"
	"path/filepath"
	"testing"
)

const bloomConfig = `{
  "architectures": ["BloomForCausalLM"],
  "model_type": "bloom",
  "n_embed": 2560,
  "hidden_size": 2560,
  "n_layer": 30,
  "n_head": 32,
  "vocab_size": 250880,
  "bos_token_id": 1,
  "eos_token_id": 2,
  "pad_token_id": 3
}`

func TestParseBloomAliases(t *testing.T) {
	d, err := Parse([]byte(bloomConfig))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if d.ModelType != "bloom" || d.NumLayers != 30 || d.NumHeads != 32 || d.HiddenSize != 2560 || d.VocabSize != 250880 {
		t.Fatalf("unexpected descriptor: %+v", d)
	}
	if d.NumKVHeads != 32 {
		t.Fatalf("kv heads should default to heads, got %d", d.NumKVHeads)
	}
	if d.PadTokenID == nil || *d.PadTokenID != 3 || len(d.EOSTokenIDs) != 1 || d.EOSTokenIDs[0] != 2 {
		t.Fatalf("unexpected special ids: pad=%v eos=%v", d.PadTokenID, d.EOSTokenIDs)
	}
	if d.HeadDim() != 80 {
		t.Fatalf("head dim=%d", d.HeadDim())
	}
}

func TestParseGPT2Aliases(t *testing.T) {
	d, err := Parse([]byte(`{"model_type":"gpt2","n_embd":768,"n_layer":12,"n_head":12,"n_positions":1024,"vocab_size":50257,"n_inner":null}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if d.HiddenSize != 768 || d.NumLayers != 12 || d.MaxPositions != 1024 {
		t.Fatalf("unexpected descriptor: %+v", d)
	}
	if d.IntermediateSize != 0 {
		t.Fatalf("null n_inner should stay zero, got %d", d.IntermediateSize)
	}
	if !d.TiedEmbeddings(true) {
		t.Fatalf("expected default tie")
	}
}

func TestParseLlamaEOSList(t *testing.T) {
	d, err := Parse([]byte(`{"model_type":"llama","hidden_size":4096,"num_hidden_layers":32,"num_attention_heads":32,"num_key_value_heads":8,"intermediate_size":14336,"vocab_size":128256,"eos_token_id":[128001,128009],"tie_word_embeddings":false}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(d.EOSTokenIDs) != 2 || d.EOSTokenIDs[1] != 128009 {
		t.Fatalf("eos=%v", d.EOSTokenIDs)
	}
	if d.NumKVHeads != 8 || d.TiedEmbeddings(true) {
		t.Fatalf("unexpected descriptor: %+v", d)
	}
}

func TestParseErrors(t *testing.T) {
	if _, err := Parse([]byte(`{`)); err == nil {
		t.Fatalf("expected json error")
	}
	if _, err := Parse([]byte(`{"hidden_size":1}`)); err == nil {
		t.Fatalf("expected missing model_type error")
	}
}

func TestLoadFromDir(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(bloomConfig), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	d, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if d.Raw["n_embed"] == nil {
		t.Fatalf("raw map not kept")
	}
	if _, err := Load(t.TempDir()); err == nil {
		t.Fatalf("expected error for missing config")
	}
}
