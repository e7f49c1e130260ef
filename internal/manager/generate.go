package manager

import (
	"context"

	"shardgen/internal/pipeline"
	"shardgen/pkg/types"
)

// Generate serves one request: defaults, admission, cache lookup, then the
// pipeline. Output order and cardinality follow req.Inputs.
func (m *Manager) Generate(ctx context.Context, req types.GenerateRequest) (types.GenerateResponse, error) {
	n := m.cfg.DefaultMaxNewTokens
	if req.MaxNewTokens != nil {
		n = *req.MaxNewTokens
	}
	inputs := []string(req.Inputs)

	m.mu.RLock()
	st, p, digest := m.state, m.pipe, m.digest
	m.mu.RUnlock()
	switch st {
	case StateReady:
	case StateConstructed:
		if m.cfg.Runtime == nil {
			return types.GenerateResponse{}, ErrDependencyUnavailable("no inference runtime configured")
		}
		return types.GenerateResponse{}, pipeline.ErrNotMaterialized
	default:
		return types.GenerateResponse{}, notReadyError{state: st}
	}

	key := cacheKey(digest, inputs, n)
	if out, ok := m.cache.get(key); ok {
		m.cacheHits.Add(1)
		m.generations.Add(1)
		return types.GenerateResponse{Outputs: out, Cached: true}, nil
	}

	release, err := m.beginGeneration(ctx)
	if err != nil {
		return types.GenerateResponse{}, err
	}
	defer release()

	out, err := p.Generate(ctx, inputs, n)
	if err != nil {
		m.cfg.Log.Debug().Err(err).Int("inputs", len(inputs)).Msg("generate failed")
		return types.GenerateResponse{}, err
	}
	m.generations.Add(1)
	m.cache.set(key, out)
	return types.GenerateResponse{Outputs: out}, nil
}
