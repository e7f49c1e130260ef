package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"shardgen/internal/skeleton"
)

// Defaults applied when corresponding Config fields are unset.
const (
	DefaultAddr              = ":8080"
	DefaultModelID           = "bigscience/bloom-3b"
	DefaultDType             = "fp16"
	DefaultCheckpointPattern = "*.[bp][it][n]"
	DefaultManifestPath      = "checkpoints.json"
	DefaultMaxNewTokens      = 100
	DefaultMaxQueueDepth     = 32
	DefaultMaxWait           = 30 * time.Second
	DefaultReadyTimeout      = 5 * time.Minute
	DefaultMaxBodyBytes      = 1 << 20

	RuntimeModeSubprocess = "subprocess"
	RuntimeModeServer     = "server"
)

// WithDefaults returns a copy of cfg with unspecified fields filled in.
func (cfg Config) WithDefaults() Config {
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = "console"
	}
	if cfg.ModelID == "" {
		cfg.ModelID = DefaultModelID
	}
	if cfg.DType == "" {
		cfg.DType = DefaultDType
	}
	if len(cfg.AllowPatterns) == 0 {
		cfg.AllowPatterns = []string{"*"}
	}
	if cfg.CheckpointPattern == "" {
		cfg.CheckpointPattern = DefaultCheckpointPattern
	}
	if cfg.ManifestPath == "" {
		cfg.ManifestPath = DefaultManifestPath
	}
	if cfg.DefaultMaxNewTokens == 0 {
		cfg.DefaultMaxNewTokens = DefaultMaxNewTokens
	}
	if cfg.MaxQueueDepth <= 0 {
		cfg.MaxQueueDepth = DefaultMaxQueueDepth
	}
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = Duration(DefaultMaxWait)
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if cfg.Runtime.Mode == "" {
		if cfg.Runtime.URL != "" {
			cfg.Runtime.Mode = RuntimeModeServer
		} else {
			cfg.Runtime.Mode = RuntimeModeSubprocess
		}
	}
	if cfg.Runtime.Host == "" {
		cfg.Runtime.Host = "127.0.0.1"
	}
	if cfg.Runtime.TensorParallel <= 0 {
		cfg.Runtime.TensorParallel = 1
	}
	if cfg.Runtime.ReadyTimeout <= 0 {
		cfg.Runtime.ReadyTimeout = Duration(DefaultReadyTimeout)
	}
	return cfg
}

// ApplyEnv overrides fields from well-known environment variables.
func (cfg Config) ApplyEnv() Config {
	if v := os.Getenv("SHARDGEN_ADDR"); v != "" {
		cfg.Addr = v
	}
	if v := os.Getenv("SHARDGEN_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if cfg.HFToken == "" {
		cfg.HFToken = os.Getenv("HF_TOKEN")
	}
	if cfg.CacheDir == "" {
		if v := os.Getenv("HF_HUB_CACHE"); v != "" {
			cfg.CacheDir = v
		}
	}
	if os.Getenv("HF_HUB_OFFLINE") == "1" {
		cfg.Offline = true
	}
	return cfg
}

// Validate reports the first configuration problem found.
func (cfg Config) Validate() error {
	if strings.TrimSpace(cfg.ModelID) == "" {
		return errors.New("model_id is required")
	}
	if _, err := skeleton.ParsePrecision(cfg.DType); err != nil {
		return fmt.Errorf("dtype: %w", err)
	}
	if cfg.DefaultMaxNewTokens < 0 {
		return errors.New("default_max_new_tokens must be >= 0")
	}
	switch cfg.Runtime.Mode {
	case RuntimeModeSubprocess:
		if strings.TrimSpace(cfg.Runtime.Bin) == "" {
			return errors.New("runtime.bin is required in subprocess mode")
		}
	case RuntimeModeServer:
		if strings.TrimSpace(cfg.Runtime.URL) == "" {
			return errors.New("runtime.url is required in server mode")
		}
	default:
		return fmt.Errorf("unknown runtime mode: %s", cfg.Runtime.Mode)
	}
	if cfg.Runtime.PortStart > 0 && cfg.Runtime.PortEnd < cfg.Runtime.PortStart {
		return fmt.Errorf("invalid runtime port range %d-%d", cfg.Runtime.PortStart, cfg.Runtime.PortEnd)
	}
	return nil
}
