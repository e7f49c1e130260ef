package hub

import (
	"context"
	"fmt"

	hf "github.com/gomlx/go-huggingface/hub"
)

// Source is a model repository the resolver can list and fetch from.
type Source interface {
	// ListFiles returns repository-relative file names.
	ListFiles(ctx context.Context) ([]string, error)
	// Download ensures name is present locally and returns its path.
	Download(ctx context.Context, name string) (string, error)
}

// BatchSource is implemented by sources that fetch several files at once.
// Paths come back in the order of names.
type BatchSource interface {
	DownloadAll(ctx context.Context, names []string) ([]string, error)
}

// hubSource fetches from the Hugging Face hub through the go-huggingface
// client, which keeps the standard models--org--name cache layout.
type hubSource struct {
	repo *hf.Repo
}

// NewHubSource returns a Source backed by the remote hub.
func NewHubSource(modelID string, opts Options) Source {
	return &hubSource{repo: NewRepo(modelID, opts)}
}

// NewRepo configures a hub client for modelID.
func NewRepo(modelID string, opts Options) *hf.Repo {
	repo := hf.New(modelID)
	if opts.Token != "" {
		repo = repo.WithAuth(opts.Token)
	}
	if opts.CacheDir != "" {
		repo = repo.WithCacheDir(opts.CacheDir)
	}
	if opts.Revision != "" {
		repo = repo.WithRevision(opts.Revision)
	}
	return repo
}

func (s *hubSource) ListFiles(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.repo.DownloadInfo(false); err != nil {
		return nil, fmt.Errorf("repo info: %w", err)
	}
	var names []string
	for name, err := range s.repo.IterFileNames() {
		if err != nil {
			return nil, fmt.Errorf("list files: %w", err)
		}
		names = append(names, name)
	}
	return names, nil
}

func (s *hubSource) Download(ctx context.Context, name string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p, err := s.repo.DownloadFile(name)
	if err != nil {
		return "", fmt.Errorf("download %s: %w", name, err)
	}
	return p, nil
}

// DownloadAll fetches names in parallel through the hub client.
func (s *hubSource) DownloadAll(ctx context.Context, names []string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	paths, err := s.repo.DownloadFiles(names...)
	if err != nil {
		return nil, fmt.Errorf("download %d files: %w", len(names), err)
	}
	return paths, nil
}
