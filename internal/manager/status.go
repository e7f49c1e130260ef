package manager

import (
	"time"

	"shardgen/internal/pipeline"
	"shardgen/pkg/types"
)

// Constructed returns the pipeline structure once construction succeeded.
func (m *Manager) Constructed() (*pipeline.Constructed, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.constructed, m.constructed != nil
}

// Manifest returns the manifest written during construction.
func (m *Manager) Manifest() (types.Manifest, bool) {
	c, ok := m.Constructed()
	if !ok {
		return types.Manifest{}, false
	}
	return c.Manifest(), true
}

// Status builds a detailed status response for /status.
func (m *Manager) Status() types.StatusResponse {
	m.mu.RLock()
	c, p := m.constructed, m.pipe
	resp := types.StatusResponse{
		State:            string(m.state),
		ConstructionID:   m.constructionID,
		ManifestDigest:   m.digest,
		LastError:        m.err,
		QueueLen:         len(m.queueCh),
		Inflight:         len(m.genCh),
		MaxQueueDepth:    cap(m.queueCh),
		GenerationsTotal: m.generations.Load(),
		CacheHitsTotal:   m.cacheHits.Load(),
		UptimeSeconds:    int64(time.Since(m.startTime).Seconds()),
		ServerTimeUnix:   time.Now().Unix(),
	}
	m.mu.RUnlock()

	if c != nil {
		repo := c.Repo()
		resp.Model = &types.ResolvedModel{
			ID:           c.Config().ModelID,
			Root:         repo.Root,
			ManifestPath: repo.ManifestPath,
			Family:       c.Descriptor().ModelType,
			DType:        c.Config().Precision.String(),
		}
		resp.Shards = len(c.Manifest().Checkpoints)
		if s := c.Skeleton(); s != nil {
			resp.Params = s.NumParams()
			resp.SkeletonSize = s.HumanSize()
		}
		if p != nil {
			info := p.RuntimeInfo()
			resp.Runtime = &types.RuntimeStatus{Mode: info.Mode, URL: info.URL, PID: info.PID, Device: c.Device()}
		}
	}
	return resp
}
