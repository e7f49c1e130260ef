// Package hub resolves a model identifier to a local directory holding the
// repository files (config, tokenizer, checkpoint shards), downloading on
// demand and reusing the standard hub cache otherwise.
package hub

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/rs/zerolog"

	"shardgen/internal/common/fsutil"
)

// Options mirror the hub client's knobs.
type Options struct {
	CacheDir string
	Revision string
	Token    string
	// Offline resolves from the local cache only (local_files_only).
	Offline bool
	// AllowPatterns filters repository files; "*" (or empty) selects all.
	AllowPatterns []string
}

// requiredFiles are fetched even when AllowPatterns would skip them.
var requiredFiles = []string{
	"config.json",
	"tokenizer.json",
	"tokenizer_config.json",
	"special_tokens_map.json",
	"generation_config.json",
}

// Snapshot is the local copy of a model repository.
type Snapshot struct {
	ModelID string
	Root    string
	// Files are repository-relative names present under Root.
	Files []string
	// Source produced the snapshot.
	Source Source
}

// SourceFunc builds the Source for a model id.
type SourceFunc func(modelID string, opts Options) (Source, error)

// Resolver fetches model repositories.
type Resolver struct {
	opts      Options
	log       zerolog.Logger
	progress  Progress
	newSource SourceFunc
}

// NewResolver returns a resolver backed by the hub (or the cache when offline).
func NewResolver(opts Options, log zerolog.Logger) *Resolver {
	if opts.CacheDir == "" {
		opts.CacheDir = DefaultCacheDir()
	}
	return &Resolver{opts: opts, log: log, progress: nopProgress{}, newSource: defaultSource}
}

// WithProgress sets the download progress observer.
func (r *Resolver) WithProgress(p Progress) *Resolver {
	if p == nil {
		p = nopProgress{}
	}
	r.progress = p
	return r
}

// WithSource overrides how sources are built.
func (r *Resolver) WithSource(fn SourceFunc) *Resolver {
	r.newSource = fn
	return r
}

func defaultSource(modelID string, opts Options) (Source, error) {
	if fsutil.IsDir(modelID) {
		return NewDirSource(modelID), nil
	}
	if opts.Offline {
		dir, err := SnapshotDir(opts.CacheDir, modelID, opts.Revision)
		if err != nil {
			return nil, err
		}
		return NewDirSource(dir), nil
	}
	return NewHubSource(modelID, opts), nil
}

// Resolve makes every selected file of modelID available locally and returns
// the directory holding them. Errors from the source propagate unchanged.
func (r *Resolver) Resolve(ctx context.Context, modelID string) (Snapshot, error) {
	if strings.TrimSpace(modelID) == "" {
		return Snapshot{}, errors.New("model id is empty")
	}
	r.log.Info().Str("model", modelID).Bool("offline", r.opts.Offline).Str("revision", r.opts.Revision).Msg("resolve start")
	src, err := r.newSource(modelID, r.opts)
	if err != nil {
		return Snapshot{}, err
	}
	names, err := src.ListFiles(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	selected := selectFiles(names, r.opts.AllowPatterns)
	if !contains(selected, "config.json") {
		return Snapshot{}, fmt.Errorf("%s: config.json not found in repository", modelID)
	}

	r.progress.Start(len(selected))
	defer r.progress.Finish()
	paths, err := r.fetch(ctx, src, selected)
	if err != nil {
		return Snapshot{}, err
	}
	var root string
	for i, name := range selected {
		if root == "" {
			root = rootOf(paths[i], name)
		}
	}
	r.log.Info().Str("model", modelID).Str("root", root).Int("files", len(selected)).Msg("resolve done")
	return Snapshot{ModelID: modelID, Root: root, Files: selected, Source: src}, nil
}

// fetch downloads selected in one batch when src supports it, file by file
// otherwise. Progress is reported per file either way.
func (r *Resolver) fetch(ctx context.Context, src Source, selected []string) ([]string, error) {
	if bs, ok := src.(BatchSource); ok {
		paths, err := bs.DownloadAll(ctx, selected)
		if err != nil {
			return nil, err
		}
		if len(paths) != len(selected) {
			return nil, fmt.Errorf("batch download returned %d paths for %d files", len(paths), len(selected))
		}
		for i, name := range selected {
			r.progress.Done(name)
			r.log.Debug().Str("file", name).Str("path", paths[i]).Msg("file ready")
		}
		return paths, nil
	}
	paths := make([]string, 0, len(selected))
	for _, name := range selected {
		local, err := src.Download(ctx, name)
		if err != nil {
			return nil, err
		}
		r.progress.Done(name)
		r.log.Debug().Str("file", name).Str("path", local).Msg("file ready")
		paths = append(paths, local)
	}
	return paths, nil
}

// selectFiles keeps names matching any pattern plus the required files, in
// listing order.
func selectFiles(names, patterns []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if matchAny(patterns, n) || contains(requiredFiles, n) {
			out = append(out, n)
		}
	}
	return out
}

// matchAny follows fnmatch semantics loosely: a pattern may match either the
// full repository path or its base name.
func matchAny(patterns []string, name string) bool {
	if len(patterns) == 0 {
		return true
	}
	for _, p := range patterns {
		if p == "*" {
			return true
		}
		if ok, _ := path.Match(p, name); ok {
			return true
		}
		if ok, _ := path.Match(p, path.Base(name)); ok {
			return true
		}
	}
	return false
}

// rootOf strips the repository-relative name from a local path.
func rootOf(local, name string) string {
	l := strings.ReplaceAll(local, "\\", "/")
	if strings.HasSuffix(l, "/"+name) {
		return local[:len(local)-len(name)-1]
	}
	return path.Dir(l)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
