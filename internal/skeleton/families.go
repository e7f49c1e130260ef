package skeleton

import (
	"fmt"

	"shardgen/internal/modelcfg"
)

func init() {
	Register("bloom", buildBloom)
	Register("gpt2", buildGPT2)
	Register("llama", buildLlama)
	Register("mistral", buildLlama)
	Register("opt", buildOPT)
	Register("gpt_neox", buildGPTNeoX)
}

// layout accumulates placeholder params for one skeleton.
type layout struct {
	p      Precision
	params []Param
}

func (l *layout) add(name string, shape ...int64) {
	l.params = append(l.params, Param{Name: name, Shape: shape, DType: l.p})
}

// weightBias adds name.weight with shape and name.bias sized to the first dim.
func (l *layout) weightBias(name string, shape ...int64) {
	l.add(name+".weight", shape...)
	l.add(name+".bias", shape[0])
}

func buildBloom(d modelcfg.Descriptor, p Precision) (*Skeleton, error) {
	if err := requirePositive(d, map[string]int{"hidden_size": d.HiddenSize, "n_layer": d.NumLayers, "n_head": d.NumHeads, "vocab_size": d.VocabSize}); err != nil {
		return nil, err
	}
	h, v := int64(d.HiddenSize), int64(d.VocabSize)
	l := &layout{p: p}
	l.add("transformer.word_embeddings.weight", v, h)
	l.weightBias("transformer.word_embeddings_layernorm", h)
	for i := 0; i < d.NumLayers; i++ {
		pre := fmt.Sprintf("transformer.h.%d.", i)
		l.weightBias(pre+"input_layernorm", h)
		l.weightBias(pre+"self_attention.query_key_value", 3*h, h)
		l.weightBias(pre+"self_attention.dense", h, h)
		l.weightBias(pre+"post_attention_layernorm", h)
		l.weightBias(pre+"mlp.dense_h_to_4h", 4*h, h)
		l.weightBias(pre+"mlp.dense_4h_to_h", h, 4*h)
	}
	l.weightBias("transformer.ln_f", h)
	return &Skeleton{ModelType: d.ModelType, Precision: p, NumLayers: d.NumLayers, Params: l.params}, nil
}

func buildGPT2(d modelcfg.Descriptor, p Precision) (*Skeleton, error) {
	if err := requirePositive(d, map[string]int{"n_embd": d.HiddenSize, "n_layer": d.NumLayers, "n_positions": d.MaxPositions, "vocab_size": d.VocabSize}); err != nil {
		return nil, err
	}
	h, v := int64(d.HiddenSize), int64(d.VocabSize)
	inner := int64(d.IntermediateSize)
	if inner == 0 {
		inner = 4 * h
	}
	l := &layout{p: p}
	l.add("transformer.wte.weight", v, h)
	l.add("transformer.wpe.weight", int64(d.MaxPositions), h)
	for i := 0; i < d.NumLayers; i++ {
		pre := fmt.Sprintf("transformer.h.%d.", i)
		// GPT-2 uses Conv1D, so weights are stored (in, out).
		l.weightBias(pre+"ln_1", h)
		l.add(pre+"attn.c_attn.weight", h, 3*h)
		l.add(pre+"attn.c_attn.bias", 3*h)
		l.add(pre+"attn.c_proj.weight", h, h)
		l.add(pre+"attn.c_proj.bias", h)
		l.weightBias(pre+"ln_2", h)
		l.add(pre+"mlp.c_fc.weight", h, inner)
		l.add(pre+"mlp.c_fc.bias", inner)
		l.add(pre+"mlp.c_proj.weight", inner, h)
		l.add(pre+"mlp.c_proj.bias", h)
	}
	l.weightBias("transformer.ln_f", h)
	if !d.TiedEmbeddings(true) {
		l.add("lm_head.weight", v, h)
	}
	return &Skeleton{ModelType: d.ModelType, Precision: p, NumLayers: d.NumLayers, Params: l.params}, nil
}

func buildLlama(d modelcfg.Descriptor, p Precision) (*Skeleton, error) {
	if err := requirePositive(d, map[string]int{"hidden_size": d.HiddenSize, "num_hidden_layers": d.NumLayers, "num_attention_heads": d.NumHeads, "intermediate_size": d.IntermediateSize, "vocab_size": d.VocabSize}); err != nil {
		return nil, err
	}
	h, v := int64(d.HiddenSize), int64(d.VocabSize)
	hd := int64(d.HeadDim())
	q, kv := int64(d.NumHeads)*hd, int64(d.NumKVHeads)*hd
	inter := int64(d.IntermediateSize)
	l := &layout{p: p}
	l.add("model.embed_tokens.weight", v, h)
	for i := 0; i < d.NumLayers; i++ {
		pre := fmt.Sprintf("model.layers.%d.", i)
		l.add(pre+"input_layernorm.weight", h)
		l.add(pre+"self_attn.q_proj.weight", q, h)
		l.add(pre+"self_attn.k_proj.weight", kv, h)
		l.add(pre+"self_attn.v_proj.weight", kv, h)
		l.add(pre+"self_attn.o_proj.weight", h, q)
		l.add(pre+"post_attention_layernorm.weight", h)
		l.add(pre+"mlp.gate_proj.weight", inter, h)
		l.add(pre+"mlp.up_proj.weight", inter, h)
		l.add(pre+"mlp.down_proj.weight", h, inter)
	}
	l.add("model.norm.weight", h)
	if !d.TiedEmbeddings(false) {
		l.add("lm_head.weight", v, h)
	}
	return &Skeleton{ModelType: d.ModelType, Precision: p, NumLayers: d.NumLayers, Params: l.params}, nil
}

// OPT offsets learned positions by 2; opt-350m projects embeddings to a
// narrower word_embed_proj_dim and drops the final layer norm.
func buildOPT(d modelcfg.Descriptor, p Precision) (*Skeleton, error) {
	if err := requirePositive(d, map[string]int{"hidden_size": d.HiddenSize, "num_hidden_layers": d.NumLayers, "ffn_dim": d.IntermediateSize, "max_position_embeddings": d.MaxPositions, "vocab_size": d.VocabSize}); err != nil {
		return nil, err
	}
	h, v, ffn := int64(d.HiddenSize), int64(d.VocabSize), int64(d.IntermediateSize)
	proj := int64(rawInt(d, "word_embed_proj_dim", d.HiddenSize))
	l := &layout{p: p}
	l.add("model.decoder.embed_tokens.weight", v, proj)
	l.add("model.decoder.embed_positions.weight", int64(d.MaxPositions)+2, h)
	if proj != h {
		l.add("model.decoder.project_out.weight", proj, h)
		l.add("model.decoder.project_in.weight", h, proj)
	}
	if rawBool(d, "do_layer_norm_before", true) && !rawBool(d, "_remove_final_layer_norm", false) {
		l.weightBias("model.decoder.final_layer_norm", h)
	}
	for i := 0; i < d.NumLayers; i++ {
		pre := fmt.Sprintf("model.decoder.layers.%d.", i)
		l.weightBias(pre+"self_attn.k_proj", h, h)
		l.weightBias(pre+"self_attn.v_proj", h, h)
		l.weightBias(pre+"self_attn.q_proj", h, h)
		l.weightBias(pre+"self_attn.out_proj", h, h)
		l.weightBias(pre+"self_attn_layer_norm", h)
		l.weightBias(pre+"fc1", ffn, h)
		l.weightBias(pre+"fc2", h, ffn)
		l.weightBias(pre+"final_layer_norm", h)
	}
	if !d.TiedEmbeddings(true) {
		l.add("lm_head.weight", v, proj)
	}
	return &Skeleton{ModelType: d.ModelType, Precision: p, NumLayers: d.NumLayers, Params: l.params}, nil
}

func buildGPTNeoX(d modelcfg.Descriptor, p Precision) (*Skeleton, error) {
	if err := requirePositive(d, map[string]int{"hidden_size": d.HiddenSize, "num_hidden_layers": d.NumLayers, "num_attention_heads": d.NumHeads, "intermediate_size": d.IntermediateSize, "vocab_size": d.VocabSize}); err != nil {
		return nil, err
	}
	h, v, inter := int64(d.HiddenSize), int64(d.VocabSize), int64(d.IntermediateSize)
	l := &layout{p: p}
	l.add("gpt_neox.embed_in.weight", v, h)
	for i := 0; i < d.NumLayers; i++ {
		pre := fmt.Sprintf("gpt_neox.layers.%d.", i)
		l.weightBias(pre+"input_layernorm", h)
		l.weightBias(pre+"post_attention_layernorm", h)
		l.weightBias(pre+"attention.query_key_value", 3*h, h)
		l.weightBias(pre+"attention.dense", h, h)
		l.weightBias(pre+"mlp.dense_h_to_4h", inter, h)
		l.weightBias(pre+"mlp.dense_4h_to_h", h, inter)
	}
	l.weightBias("gpt_neox.final_layer_norm", h)
	if !d.TiedEmbeddings(false) {
		l.add("embed_out.weight", v, h)
	}
	return &Skeleton{ModelType: d.ModelType, Precision: p, NumLayers: d.NumLayers, Params: l.params}, nil
}

// rawInt reads an integer hyperparameter that has no Descriptor field.
func rawInt(d modelcfg.Descriptor, key string, def int) int {
	if v, ok := d.Raw[key].(float64); ok && v > 0 {
		return int(v)
	}
	return def
}

func rawBool(d modelcfg.Descriptor, key string, def bool) bool {
	if v, ok := d.Raw[key].(bool); ok {
		return v
	}
	return def
}
