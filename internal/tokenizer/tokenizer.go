// Package tokenizer turns prompt batches into padded id tensors and decodes
// generated ids back to text. The vocabulary itself is a collaborator
// (Codec); this package only owns batching, padding and special-token
// stripping.
package tokenizer

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/daulet/tokenizers"

	"shardgen/internal/modelcfg"
	"shardgen/internal/runtime"
)

// Codec is a single-sequence tokenizer.
type Codec interface {
	Encode(text string) []int
	Decode(ids []int) string
}

// Tokenizer encodes and decodes batches.
type Tokenizer struct {
	codec Codec
	cfg   Config
}

// New wraps codec with batching rules from cfg.
func New(codec Codec, cfg Config) *Tokenizer {
	if cfg.PaddingSide == "" {
		cfg.PaddingSide = "right"
	}
	if cfg.Special == nil {
		cfg.Special = map[int]struct{}{}
	}
	return &Tokenizer{codec: codec, cfg: cfg}
}

// hfCodec adapts a tokenizer.json pipeline to Codec. Special ids are
// stripped by BatchDecode, so decoding keeps everything it is given.
type hfCodec struct {
	tk *tokenizers.Tokenizer
}

func (c hfCodec) Encode(text string) []int {
	raw, _ := c.tk.Encode(text, true)
	ids := make([]int, len(raw))
	for i, id := range raw {
		ids[i] = int(id)
	}
	return ids
}

func (c hfCodec) Decode(ids []int) string {
	raw := make([]uint32, len(ids))
	for i, id := range ids {
		raw[i] = uint32(id)
	}
	return c.tk.Decode(raw, false)
}

func (c hfCodec) Close() error { return c.tk.Close() }

// Open loads root/tokenizer.json together with the special-token files
// next to it. Works the same for hub snapshots and local directories.
func Open(root string, desc modelcfg.Descriptor) (*Tokenizer, error) {
	path := filepath.Join(root, "tokenizer.json")
	tk, err := tokenizers.FromFile(path)
	if err != nil {
		return nil, fmt.Errorf("load tokenizer %s: %w", path, err)
	}
	cfg, err := LoadConfig(root, desc)
	if err != nil {
		_ = tk.Close()
		return nil, err
	}
	return New(hfCodec{tk: tk}, cfg), nil
}

// Close releases the codec when it holds native resources.
func (t *Tokenizer) Close() error {
	if c, ok := t.codec.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Config returns the padding/special-token settings in effect.
func (t *Tokenizer) Config() Config { return t.cfg }

// BatchEncode tokenizes inputs and pads every row to the longest one. The
// attention mask marks real tokens with 1 and padding with 0.
func (t *Tokenizer) BatchEncode(inputs []string) runtime.Batch {
	rows := make([][]int, len(inputs))
	lengths := make([]int, len(inputs))
	longest := 0
	for i, in := range inputs {
		rows[i] = t.codec.Encode(in)
		lengths[i] = len(rows[i])
		if lengths[i] > longest {
			longest = lengths[i]
		}
	}
	ids := make([][]int, len(rows))
	mask := make([][]int, len(rows))
	for i, row := range rows {
		ids[i] = make([]int, longest)
		mask[i] = make([]int, longest)
		pad := longest - len(row)
		off := 0
		if t.cfg.PaddingSide == "left" {
			off = pad
		}
		for j := range ids[i] {
			ids[i][j] = t.cfg.PadID
		}
		copy(ids[i][off:], row)
		for j := off; j < off+len(row); j++ {
			mask[i][j] = 1
		}
	}
	return runtime.Batch{
		InputIDs:      &runtime.Tensor{Data: ids, Device: "cpu"},
		AttentionMask: &runtime.Tensor{Data: mask, Device: "cpu"},
		Lengths:       lengths,
		PaddingSide:   t.cfg.PaddingSide,
	}
}

// BatchDecode decodes each sequence; with skipSpecial, special ids
// (padding included) are removed first.
func (t *Tokenizer) BatchDecode(seqs [][]int, skipSpecial bool) []string {
	out := make([]string, len(seqs))
	for i, seq := range seqs {
		if skipSpecial {
			kept := make([]int, 0, len(seq))
			for _, id := range seq {
				if !t.cfg.IsSpecial(id) {
					kept = append(kept, id)
				}
			}
			seq = kept
		}
		out[i] = t.codec.Decode(seq)
	}
	return out
}
