// Package manifest discovers checkpoint shards under a resolved model root and
// persists the checkpoint manifest consumed by the sharded-inference runtime.
//
// The document shape is fixed:
//
//	{"type": "bloom", "checkpoints": ["/abs/shard-1.bin", ...], "version": 1.0}
package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"github.com/cespare/xxhash/v2"
	"github.com/docker/go-units"
	"github.com/google/renameio"

	"shardgen/internal/common/fsutil"
	"shardgen/pkg/types"
)

// DefaultPattern matches three-letter shard extensions such as .bin (and
// the rarer .pin, .btn, ...), mirroring the loader's historical glob. Two
// letter names like .pt do not match.
const DefaultPattern = "*.[bp][it][n]"

// Discover walks root in lexical order and returns the absolute path of every
// non-directory entry whose base name matches pattern. Symlinks (the HF cache
// layout links snapshot files to blobs) are kept when they point at files.
func Discover(root, pattern string) ([]string, error) {
	if pattern == "" {
		pattern = DefaultPattern
	}
	if _, err := filepath.Match(pattern, ""); err != nil {
		return nil, fmt.Errorf("checkpoint pattern %q: %w", pattern, err)
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("abs path: %w", err)
	}
	var out []string
	err = filepath.WalkDir(abs, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ok, _ := filepath.Match(pattern, d.Name())
		if !ok {
			return nil
		}
		if d.Type()&fs.ModeSymlink != 0 && !fsutil.IsFile(p) {
			return nil
		}
		out = append(out, p)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("discover checkpoints: %w", err)
	}
	return out, nil
}

// New builds a manifest document. The checkpoint slice is copied.
func New(modelType string, checkpoints []string) types.Manifest {
	cp := make([]string, len(checkpoints))
	copy(cp, checkpoints)
	return types.Manifest{Type: modelType, Checkpoints: cp, Version: types.ManifestVersion}
}

// Write replaces the manifest at path atomically. Any previous document is
// overwritten in full.
func Write(path string, m types.Manifest) error {
	if path == "" {
		return errors.New("manifest path is empty")
	}
	if m.Checkpoints == nil {
		m.Checkpoints = []string{}
	}
	if m.Version == "" {
		m.Version = types.ManifestVersion
	}
	b, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create manifest dir: %w", err)
		}
	}
	if err := renameio.WriteFile(path, append(b, '\n'), 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}

// Read loads a manifest written by Write (or by any compatible producer).
func Read(path string) (types.Manifest, error) {
	var m types.Manifest
	b, err := os.ReadFile(path)
	if err != nil {
		return m, fmt.Errorf("read manifest: %w", err)
	}
	if err := json.Unmarshal(b, &m); err != nil {
		return m, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	return m, nil
}

// Fingerprint is a stable digest of the manifest contents.
func Fingerprint(m types.Manifest) string {
	h := xxhash.New()
	_, _ = h.WriteString(m.Type)
	for _, c := range m.Checkpoints {
		_, _ = h.WriteString("\x00")
		_, _ = h.WriteString(c)
	}
	return strconv.FormatUint(h.Sum64(), 16)
}

// Summary describes the shard set on disk.
type Summary struct {
	Shards     int
	TotalBytes int64
	Missing    []string
}

// HumanSize formats TotalBytes, e.g. "6.01GB".
func (s Summary) HumanSize() string { return units.HumanSize(float64(s.TotalBytes)) }

// Summarize stats every checkpoint. Files that cannot be stat'ed are listed
// in Missing rather than failing the call.
func Summarize(m types.Manifest) Summary {
	s := Summary{Shards: len(m.Checkpoints)}
	for _, c := range m.Checkpoints {
		fi, err := os.Stat(c)
		if err != nil {
			s.Missing = append(s.Missing, c)
			continue
		}
		s.TotalBytes += fi.Size()
	}
	return s
}
