package manager

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"shardgen/internal/events"
	"shardgen/internal/manifest"
	"shardgen/internal/pipeline"
)

type Manager struct {
	cfg Config

	mu             sync.RWMutex
	state          State
	err            string
	constructionID string
	constructed    *pipeline.Constructed
	pipe           *pipeline.Pipeline
	digest         string

	// Queueing primitives
	genCh   chan struct{} // size 1: single in-flight generation
	queueCh chan struct{} // buffered: queue slots

	cache     *resultCache
	startTime time.Time

	generations atomic.Uint64
	cacheHits   atomic.Uint64
}

// New constructs an idle Manager; call Bootstrap to build the pipeline.
func New(cfg Config) *Manager {
	cfg = cfg.withDefaults()
	m := &Manager{
		cfg:       cfg,
		state:     StateIdle,
		genCh:     make(chan struct{}, 1),
		queueCh:   make(chan struct{}, cfg.MaxQueueDepth),
		startTime: time.Now(),
	}
	if cfg.ResultCacheTTL > 0 {
		m.cache = newResultCache(cfg.ResultCacheTTL, cfg.ResultCacheSize)
	}
	return m
}

func (m *Manager) setState(s State, errMsg string) {
	m.mu.Lock()
	if m.state == StateClosed {
		m.mu.Unlock()
		return
	}
	m.state = s
	m.err = errMsg
	id := m.constructionID
	m.mu.Unlock()
	fields := map[string]any{"construction_id": id}
	if errMsg != "" {
		fields["error"] = errMsg
	}
	m.cfg.Publisher.Publish(events.Event{Name: "state_" + string(s), Subject: m.cfg.Pipeline.ModelID, Fields: fields})
}

// Bootstrap constructs the pipeline and, when a runtime is configured,
// materializes it. The manager is Ready only after both phases succeed.
func (m *Manager) Bootstrap(ctx context.Context) error {
	m.mu.Lock()
	if m.state != StateIdle && m.state != StateError {
		st := m.state
		m.mu.Unlock()
		return notReadyError{state: st}
	}
	m.constructionID = uuid.NewString()
	m.mu.Unlock()

	log := m.cfg.Log.With().Str("construction_id", m.constructionID).Logger()
	m.setState(StateConstructing, "")
	deps := m.cfg.Deps
	deps.Log = m.cfg.Log
	if deps.Publisher == nil {
		deps.Publisher = m.cfg.Publisher
	}
	c, err := pipeline.New(ctx, m.cfg.Pipeline, deps)
	if err != nil {
		log.Error().Err(err).Msg("construct failed")
		m.setState(StateError, err.Error())
		return err
	}
	m.mu.Lock()
	m.constructed = c
	m.digest = manifest.Fingerprint(c.Manifest())
	m.mu.Unlock()
	m.setState(StateConstructed, "")

	if m.cfg.Runtime == nil {
		log.Warn().Msg("no runtime configured; pipeline stays constructed")
		return nil
	}
	m.setState(StateMaterializing, "")
	p, err := c.Materialize(ctx, m.cfg.Runtime)
	if err != nil {
		log.Error().Err(err).Msg("materialize failed")
		m.setState(StateError, err.Error())
		return err
	}
	m.mu.Lock()
	if m.state == StateClosed {
		m.mu.Unlock()
		_ = p.Close()
		return notReadyError{state: StateClosed}
	}
	m.pipe = p
	m.mu.Unlock()
	m.setState(StateReady, "")
	log.Info().Msg("ready")
	return nil
}

// Ready reports whether generation requests can be served.
func (m *Manager) Ready() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state == StateReady && m.pipe != nil
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Close releases the runtime and stops the cache. Safe to call twice.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.state == StateClosed {
		m.mu.Unlock()
		return nil
	}
	p := m.pipe
	m.pipe = nil
	m.state = StateClosed
	m.mu.Unlock()
	m.cache.stop()
	m.cfg.Publisher.Publish(events.Event{Name: "state_closed", Subject: m.cfg.Pipeline.ModelID})
	if p != nil {
		return p.Close()
	}
	return nil
}
