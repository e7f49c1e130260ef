package fsutil

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestExpandHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	if runtime.GOOS == "windows" {
		t.Setenv("USERPROFILE", home)
	}
	cases := map[string]string{
		"":                         "",
		"/tmp":                     "/tmp",
		"~":                        home,
		"~/.cache/huggingface/hub": filepath.Join(home, ".cache", "huggingface", "hub"),
		"~bob/models":              "~bob/models",
	}
	for in, want := range cases {
		got, err := ExpandHome(in)
		if err != nil {
			t.Fatalf("%q: %v", in, err)
		}
		if got != want {
			t.Fatalf("%q -> %q, want %q", in, got, want)
		}
	}
}

func TestFileKinds(t *testing.T) {
	dir := t.TempDir()
	blob := filepath.Join(dir, "blob")
	if err := os.WriteFile(blob, []byte("w"), 0o644); err != nil {
		t.Fatal(err)
	}
	link := filepath.Join(dir, "pytorch_model.bin")
	if err := os.Symlink(blob, link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}
	dangling := filepath.Join(dir, "gone.bin")
	if err := os.Symlink(filepath.Join(dir, "missing"), dangling); err != nil {
		t.Fatal(err)
	}

	if !IsFile(blob) || !IsFile(link) {
		t.Fatalf("regular file or symlink to file not recognized")
	}
	if IsFile(dir) || IsFile(dangling) {
		t.Fatalf("directory or dangling link reported as file")
	}
	if !IsDir(dir) || IsDir(blob) {
		t.Fatalf("IsDir mismatch")
	}
	if !PathExists(blob) || PathExists(filepath.Join(dir, "nope")) {
		t.Fatalf("PathExists mismatch")
	}
}
