package manager

import (
	"time"

	"github.com/rs/zerolog"

	"shardgen/internal/events"
	"shardgen/internal/pipeline"
	"shardgen/internal/runtime"
)

// Defaults applied when corresponding Config fields are unset.
const (
	defaultMaxQueueDepth = 32
	defaultMaxWait       = 30 * time.Second
)

// Config encapsulates all tunables for Manager construction.
type Config struct {
	Pipeline pipeline.Config
	Deps     pipeline.Deps
	// Runtime materializes weights; nil leaves the pipeline constructed only.
	Runtime runtime.Runtime

	DefaultMaxNewTokens int
	MaxQueueDepth       int
	MaxWait             time.Duration
	// ResultCacheTTL > 0 enables the greedy result cache.
	ResultCacheTTL  time.Duration
	ResultCacheSize uint64

	Log       zerolog.Logger
	Publisher events.Publisher
}

func (cfg Config) withDefaults() Config {
	if cfg.MaxQueueDepth <= 0 {
		cfg.MaxQueueDepth = defaultMaxQueueDepth
	}
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = defaultMaxWait
	}
	if cfg.DefaultMaxNewTokens <= 0 {
		cfg.DefaultMaxNewTokens = pipeline.DefaultMaxNewTokens
	}
	if cfg.ResultCacheSize == 0 {
		cfg.ResultCacheSize = 1024
	}
	cfg.Publisher = events.OrNop(cfg.Publisher)
	return cfg
}
