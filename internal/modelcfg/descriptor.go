// Package modelcfg reads a model's config.json into an architecture
// descriptor. Families spell the same hyperparameter differently (n_layer,
// num_hidden_layers, ...); aliases are folded onto one canonical key before
// decoding.
package modelcfg

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mitchellh/mapstructure"
)

// FileName is the config file expected at the snapshot root.
const FileName = "config.json"

// Descriptor holds the architecture hyperparameters needed to lay out a model.
type Descriptor struct {
	ModelType         string   `mapstructure:"model_type"`
	Architectures     []string `mapstructure:"architectures"`
	VocabSize         int      `mapstructure:"vocab_size"`
	HiddenSize        int      `mapstructure:"hidden_size"`
	NumLayers         int      `mapstructure:"num_hidden_layers"`
	NumHeads          int      `mapstructure:"num_attention_heads"`
	NumKVHeads        int      `mapstructure:"num_key_value_heads"`
	IntermediateSize  int      `mapstructure:"intermediate_size"`
	MaxPositions      int      `mapstructure:"max_position_embeddings"`
	TieWordEmbeddings *bool    `mapstructure:"tie_word_embeddings"`
	PadTokenID        *int     `mapstructure:"pad_token_id"`
	BOSTokenID        *int     `mapstructure:"bos_token_id"`
	EOSTokenIDs       []int    `mapstructure:"eos_token_id"`

	// Raw keeps the full decoded document for family-specific lookups.
	Raw map[string]any `mapstructure:"-"`
}

// aliases maps canonical keys to the spellings used by other families.
var aliases = map[string][]string{
	"hidden_size":             {"n_embd", "n_embed", "d_model"},
	"num_hidden_layers":       {"n_layer", "num_layers"},
	"num_attention_heads":     {"n_head"},
	"intermediate_size":       {"n_inner", "ffn_dim"},
	"max_position_embeddings": {"n_positions", "seq_length"},
}

// Load reads root/config.json.
func Load(root string) (Descriptor, error) {
	b, err := os.ReadFile(filepath.Join(root, FileName))
	if err != nil {
		return Descriptor{}, err
	}
	return Parse(b)
}

// Parse decodes a config.json document.
func Parse(b []byte) (Descriptor, error) {
	var raw map[string]any
	if err := json.Unmarshal(b, &raw); err != nil {
		return Descriptor{}, fmt.Errorf("parse %s: %w", FileName, err)
	}
	return FromMap(raw)
}

// FromMap decodes an already-parsed config document.
func FromMap(raw map[string]any) (Descriptor, error) {
	canon := make(map[string]any, len(raw))
	for k, v := range raw {
		canon[k] = v
	}
	for key, alts := range aliases {
		if _, ok := canon[key]; ok {
			continue
		}
		for _, a := range alts {
			if v, ok := raw[a]; ok {
				canon[key] = v
				break
			}
		}
	}

	var d Descriptor
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &d,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return Descriptor{}, err
	}
	if err := dec.Decode(canon); err != nil {
		return Descriptor{}, fmt.Errorf("decode %s: %w", FileName, err)
	}
	if d.ModelType == "" {
		return Descriptor{}, fmt.Errorf("%s: model_type missing", FileName)
	}
	if d.NumKVHeads == 0 {
		d.NumKVHeads = d.NumHeads
	}
	d.Raw = raw
	return d, nil
}

// TiedEmbeddings reports whether the LM head shares the input embedding,
// falling back to def when config.json is silent.
func (d Descriptor) TiedEmbeddings(def bool) bool {
	if d.TieWordEmbeddings == nil {
		return def
	}
	return *d.TieWordEmbeddings
}

// HeadDim is hidden_size / num_attention_heads (0 when heads are unknown).
func (d Descriptor) HeadDim() int {
	if v, ok := d.Raw["head_dim"].(float64); ok && v > 0 {
		return int(v)
	}
	if d.NumHeads == 0 {
		return 0
	}
	return d.HiddenSize / d.NumHeads
}
