package tokenizer

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"shardgen/internal/modelcfg"
)

// Config carries the padding and special-token facts the batch codec needs.
type Config struct {
	PadID       int
	PaddingSide string
	// Special ids are dropped when decoding with skipSpecial.
	Special map[int]struct{}
}

// IsSpecial reports whether id is a special/control token.
func (c Config) IsSpecial(id int) bool {
	_, ok := c.Special[id]
	return ok
}

type addedToken struct {
	ID      int    `json:"id"`
	Content string `json:"content"`
	Special bool   `json:"special"`
}

// tokenValue is either "<pad>" or {"content": "<pad>", ...}.
type tokenValue string

func (v *tokenValue) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*v = tokenValue(s)
		return nil
	}
	var obj struct {
		Content string `json:"content"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	*v = tokenValue(obj.Content)
	return nil
}

type specialTokens struct {
	PaddingSide string     `json:"padding_side"`
	PadToken    tokenValue `json:"pad_token"`
	BOSToken    tokenValue `json:"bos_token"`
	EOSToken    tokenValue `json:"eos_token"`
	UNKToken    tokenValue `json:"unk_token"`
}

// merge fills empty fields of s from o.
func (s *specialTokens) merge(o specialTokens) {
	if s.PaddingSide == "" {
		s.PaddingSide = o.PaddingSide
	}
	if s.PadToken == "" {
		s.PadToken = o.PadToken
	}
	if s.BOSToken == "" {
		s.BOSToken = o.BOSToken
	}
	if s.EOSToken == "" {
		s.EOSToken = o.EOSToken
	}
	if s.UNKToken == "" {
		s.UNKToken = o.UNKToken
	}
}

func readJSON(path string, v any) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return nil
}

// LoadConfig reads special_tokens_map.json, tokenizer_config.json and the
// added_tokens of tokenizer.json under root. Missing files are fine; the
// model descriptor fills remaining gaps.
func LoadConfig(root string, desc modelcfg.Descriptor) (Config, error) {
	var st specialTokens
	for _, name := range []string{"special_tokens_map.json", "tokenizer_config.json"} {
		var part specialTokens
		if err := readJSON(filepath.Join(root, name), &part); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, err
		}
		st.merge(part)
	}
	var tj struct {
		AddedTokens []addedToken `json:"added_tokens"`
	}
	if err := readJSON(filepath.Join(root, "tokenizer.json"), &tj); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, err
	}
	return buildConfig(st, tj.AddedTokens, desc), nil
}

func buildConfig(st specialTokens, added []addedToken, desc modelcfg.Descriptor) Config {
	cfg := Config{PaddingSide: "right", Special: map[int]struct{}{}}
	if strings.EqualFold(st.PaddingSide, "left") {
		cfg.PaddingSide = "left"
	}
	byContent := make(map[string]int, len(added))
	for _, t := range added {
		byContent[t.Content] = t.ID
		if t.Special {
			cfg.Special[t.ID] = struct{}{}
		}
	}
	lookup := func(v tokenValue) (int, bool) {
		if v == "" {
			return 0, false
		}
		id, ok := byContent[string(v)]
		return id, ok
	}
	for _, v := range []tokenValue{st.PadToken, st.BOSToken, st.EOSToken, st.UNKToken} {
		if id, ok := lookup(v); ok {
			cfg.Special[id] = struct{}{}
		}
	}
	for _, p := range []*int{desc.PadTokenID, desc.BOSTokenID} {
		if p != nil {
			cfg.Special[*p] = struct{}{}
		}
	}
	for _, id := range desc.EOSTokenIDs {
		cfg.Special[id] = struct{}{}
	}

	switch id, ok := lookup(st.PadToken); {
	case ok:
		cfg.PadID = id
	case desc.PadTokenID != nil:
		cfg.PadID = *desc.PadTokenID
	default:
		if eos, ok := lookup(st.EOSToken); ok {
			cfg.PadID = eos
		} else if len(desc.EOSTokenIDs) > 0 {
			cfg.PadID = desc.EOSTokenIDs[0]
		}
	}
	return cfg
}
