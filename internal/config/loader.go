package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config holds runtime parameters for the service and the CLI.
// Zero values mean "unspecified" and are replaced by WithDefaults.
type Config struct {
	Addr      string `json:"addr" yaml:"addr" toml:"addr"`
	LogLevel  string `json:"log_level" yaml:"log_level" toml:"log_level"`
	LogFormat string `json:"log_format" yaml:"log_format" toml:"log_format"`

	ModelID           string   `json:"model_id" yaml:"model_id" toml:"model_id"`
	DType             string   `json:"dtype" yaml:"dtype" toml:"dtype"`
	Revision          string   `json:"revision" yaml:"revision" toml:"revision"`
	Offline           bool     `json:"offline" yaml:"offline" toml:"offline"`
	HFToken           string   `json:"hf_token" yaml:"hf_token" toml:"hf_token"`
	CacheDir          string   `json:"cache_dir" yaml:"cache_dir" toml:"cache_dir"`
	AllowPatterns     []string `json:"allow_patterns" yaml:"allow_patterns" toml:"allow_patterns"`
	CheckpointPattern string   `json:"checkpoint_pattern" yaml:"checkpoint_pattern" toml:"checkpoint_pattern"`
	ManifestPath      string   `json:"manifest_path" yaml:"manifest_path" toml:"manifest_path"`
	Device            string   `json:"device" yaml:"device" toml:"device"`

	DefaultMaxNewTokens int      `json:"default_max_new_tokens" yaml:"default_max_new_tokens" toml:"default_max_new_tokens"`
	MaxQueueDepth       int      `json:"max_queue_depth" yaml:"max_queue_depth" toml:"max_queue_depth"`
	MaxWait             Duration `json:"max_wait" yaml:"max_wait" toml:"max_wait"`
	ResultCacheTTL      Duration `json:"result_cache_ttl" yaml:"result_cache_ttl" toml:"result_cache_ttl"`
	MaxBodyBytes        int64    `json:"max_body_bytes" yaml:"max_body_bytes" toml:"max_body_bytes"`

	Runtime RuntimeConfig `json:"runtime" yaml:"runtime" toml:"runtime"`
	CORS    CORSConfig    `json:"cors" yaml:"cors" toml:"cors"`
}

// RuntimeConfig selects and tunes the external sharded-inference runtime.
type RuntimeConfig struct {
	// Mode is "subprocess" (spawn Bin with Args) or "server" (talk to URL).
	Mode           string   `json:"mode" yaml:"mode" toml:"mode"`
	Bin            string   `json:"bin" yaml:"bin" toml:"bin"`
	Args           []string `json:"args" yaml:"args" toml:"args"`
	URL            string   `json:"url" yaml:"url" toml:"url"`
	APIKey         string   `json:"api_key" yaml:"api_key" toml:"api_key"`
	Host           string   `json:"host" yaml:"host" toml:"host"`
	PortStart      int      `json:"port_start" yaml:"port_start" toml:"port_start"`
	PortEnd        int      `json:"port_end" yaml:"port_end" toml:"port_end"`
	TensorParallel int      `json:"tensor_parallel" yaml:"tensor_parallel" toml:"tensor_parallel"`
	ReadyTimeout   Duration `json:"ready_timeout" yaml:"ready_timeout" toml:"ready_timeout"`
	RequestTimeout Duration `json:"request_timeout" yaml:"request_timeout" toml:"request_timeout"`
}

// CORSConfig is opt-in; when disabled no CORS middleware is installed.
type CORSConfig struct {
	Enabled bool     `json:"enabled" yaml:"enabled" toml:"enabled"`
	Origins []string `json:"origins" yaml:"origins" toml:"origins"`
	Methods []string `json:"methods" yaml:"methods" toml:"methods"`
	Headers []string `json:"headers" yaml:"headers" toml:"headers"`
}

// Duration is a time.Duration that reads "30s"-style strings from any format.
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) MarshalText() ([]byte, error) { return []byte(time.Duration(d).String()), nil }

func (d *Duration) UnmarshalText(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "" {
		*d = 0
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}
