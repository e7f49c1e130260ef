package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"shardgen/internal/common/fsutil"
	"shardgen/internal/config"
)

// defaultConfigFiles are tried in order when --config is not given.
var defaultConfigFiles = []string{"shardgen.yaml", "shardgen.yml", "shardgen.toml", "shardgen.json"}

// app is the state shared by every subcommand once flags are parsed.
type app struct {
	configPath string
	flags      config.Config
	cfg        config.Config
	log        zerolog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "shardgen",
		Short:         "Greedy text generation over sharded checkpoints",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&a.configPath, "config", "c", "", "config file (.yaml, .toml or .json)")
	pf.StringVar(&a.flags.LogLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.StringVar(&a.flags.LogFormat, "log-format", "", "log format: console or json")
	pf.StringVarP(&a.flags.ModelID, "model", "m", "", "hub model id or local directory")
	pf.StringVar(&a.flags.DType, "dtype", "", "skeleton precision: fp16, bf16 or fp32")
	pf.StringVar(&a.flags.Revision, "revision", "", "hub revision (branch, tag or commit)")
	pf.BoolVar(&a.flags.Offline, "offline", false, "resolve from the local cache only")
	pf.StringVar(&a.flags.CacheDir, "cache-dir", "", "hub cache directory")
	pf.StringVar(&a.flags.ManifestPath, "manifest", "", "where to write the checkpoint manifest")
	pf.StringVar(&a.flags.Device, "device", "", "device inputs are moved to (default cuda:$LOCAL_RANK)")

	root.AddCommand(newServeCmd(a), newGenerateCmd(a), newManifestCmd(a), newInspectCmd(a))
	return root
}

// init layers defaults < config file < environment < flags.
func (a *app) init(cmd *cobra.Command) error {
	var cfg config.Config
	path := a.configPath
	if path == "" {
		path = findConfig(defaultConfigFiles)
	}
	if path != "" {
		var err error
		if path, err = fsutil.ExpandHome(path); err != nil {
			return err
		}
		if cfg, err = config.Load(path); err != nil {
			return fmt.Errorf("load config %s: %w", path, err)
		}
	}
	cfg = cfg.ApplyEnv()
	cfg = overlayFlags(cfg, a.flags, cmd.Flags().Changed)
	cfg = cfg.WithDefaults()

	a.log = newLogger(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat)
	if path != "" {
		a.log.Debug().Str("path", path).Msg("config loaded")
	}
	a.cfg = cfg
	return nil
}

func findConfig(candidates []string) string {
	for _, c := range candidates {
		if fsutil.PathExists(c) {
			return c
		}
	}
	return ""
}

// overlayFlags copies every flag the user set explicitly onto cfg.
func overlayFlags(cfg, f config.Config, changed func(string) bool) config.Config {
	if changed("log-level") {
		cfg.LogLevel = f.LogLevel
	}
	if changed("log-format") {
		cfg.LogFormat = f.LogFormat
	}
	if changed("model") {
		cfg.ModelID = f.ModelID
	}
	if changed("dtype") {
		cfg.DType = f.DType
	}
	if changed("revision") {
		cfg.Revision = f.Revision
	}
	if changed("offline") {
		cfg.Offline = f.Offline
	}
	if changed("cache-dir") {
		cfg.CacheDir = f.CacheDir
	}
	if changed("manifest") {
		cfg.ManifestPath = f.ManifestPath
	}
	if changed("device") {
		cfg.Device = f.Device
	}
	return cfg
}

func newLogger(w io.Writer, level, format string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	if format != "json" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger()
}
