package hub

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"shardgen/internal/common/fsutil"
)

// ErrNotCached is returned in offline mode when the model has no local snapshot.
var ErrNotCached = errors.New("model not found in local cache")

// DefaultCacheDir resolves the hub cache the same way the Python and Go
// clients do: HF_HUB_CACHE, then HF_HOME/hub, then ~/.cache/huggingface/hub.
func DefaultCacheDir() string {
	if v := os.Getenv("HF_HUB_CACHE"); v != "" {
		return v
	}
	if v := os.Getenv("HF_HOME"); v != "" {
		return filepath.Join(v, "hub")
	}
	p, err := fsutil.ExpandHome("~/.cache/huggingface/hub")
	if err != nil {
		return filepath.Join(".cache", "huggingface", "hub")
	}
	return p
}

// repoFolder maps "org/name" to "models--org--name".
func repoFolder(modelID string) string {
	return "models--" + strings.ReplaceAll(modelID, "/", "--")
}

// SnapshotDir locates the cached snapshot for modelID at revision (a branch,
// tag or commit hash; empty means "main").
func SnapshotDir(cacheDir, modelID, revision string) (string, error) {
	if revision == "" {
		revision = "main"
	}
	base := filepath.Join(cacheDir, repoFolder(modelID))
	commit := revision
	if b, err := os.ReadFile(filepath.Join(base, "refs", revision)); err == nil {
		commit = strings.TrimSpace(string(b))
	}
	dir := filepath.Join(base, "snapshots", commit)
	fi, err := os.Stat(dir)
	if err != nil || !fi.IsDir() {
		return "", fmt.Errorf("%w: %s@%s (looked in %s)", ErrNotCached, modelID, revision, base)
	}
	return dir, nil
}

// dirSource serves files already present in a local directory: either a
// cached snapshot (offline mode) or a model directory given in place of an id.
type dirSource struct {
	root string
}

// NewDirSource returns a Source over the files under root.
func NewDirSource(root string) Source { return &dirSource{root: root} }

func (s *dirSource) ListFiles(ctx context.Context) ([]string, error) {
	var names []string
	err := filepath.WalkDir(s.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}
		names = append(names, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", s.root, err)
	}
	return names, nil
}

func (s *dirSource) Download(_ context.Context, name string) (string, error) {
	p := filepath.Join(s.root, filepath.FromSlash(name))
	if _, err := os.Stat(p); err != nil {
		return "", fmt.Errorf("local file %s: %w", name, err)
	}
	return p, nil
}
