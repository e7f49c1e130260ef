package config

import (
	"testing"
	"time"
)

func TestLoadMalformed(t *testing.T) {
	d := t.TempDir()
	docs := map[string]string{
		"bad.yaml": "model_id: gpt2\n: broken\n",
		"bad.yml":  "runtime: [unterminated\n",
		"bad.json": `{ "model_id": }`,
		"bad.toml": "model_id\n",
		// runtime.args must be a list
		"args.json": `{"runtime":{"args":"--manifest"}}`,
	}
	for name, body := range docs {
		if _, err := Load(writeTempFile(t, d, name, body)); err == nil {
			t.Fatalf("%s: expected decode error", name)
		}
	}
	if _, err := Load("/definitely/not/a/real/shardgen.yaml"); err == nil {
		t.Fatalf("expected error for nonexistent file")
	}
}

func TestDurationText(t *testing.T) {
	var d Duration
	if err := d.UnmarshalText([]byte(" 1m30s ")); err != nil || d.Std() != 90*time.Second {
		t.Fatalf("d=%v err=%v", d.Std(), err)
	}
	b, _ := d.MarshalText()
	if string(b) != "1m30s" {
		t.Fatalf("marshal=%s", b)
	}
	if err := d.UnmarshalText(nil); err != nil || d != 0 {
		t.Fatalf("empty duration: d=%v err=%v", d, err)
	}
	if err := d.UnmarshalText([]byte("ninety")); err == nil {
		t.Fatalf("expected parse error")
	}
}
