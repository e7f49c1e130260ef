package main

import (
	"fmt"
	"io"

	"shardgen/internal/common/fsutil"
	"shardgen/internal/config"
	"shardgen/internal/events"
	"shardgen/internal/hub"
	"shardgen/internal/manager"
	"shardgen/internal/pipeline"
	"shardgen/internal/runtime"
	"shardgen/internal/skeleton"
)

// pipelineConfig translates the flat service config into pipeline terms.
func pipelineConfig(cfg config.Config) (pipeline.Config, error) {
	prec, err := skeleton.ParsePrecision(cfg.DType)
	if err != nil {
		return pipeline.Config{}, err
	}
	cacheDir, err := fsutil.ExpandHome(cfg.CacheDir)
	if err != nil {
		return pipeline.Config{}, err
	}
	manifestPath, err := fsutil.ExpandHome(cfg.ManifestPath)
	if err != nil {
		return pipeline.Config{}, err
	}
	return pipeline.Config{
		ModelID:           cfg.ModelID,
		Precision:         prec,
		ManifestPath:      manifestPath,
		CheckpointPattern: cfg.CheckpointPattern,
		Device:            cfg.Device,
		TensorParallel:    cfg.Runtime.TensorParallel,
		Hub: hub.Options{
			CacheDir:      cacheDir,
			Revision:      cfg.Revision,
			Token:         cfg.HFToken,
			Offline:       cfg.Offline,
			AllowPatterns: cfg.AllowPatterns,
		},
	}, nil
}

// pipelineDeps wires the hub resolver; progress goes to w when non-nil.
func (a *app) pipelineDeps(pc pipeline.Config, progress io.Writer) pipeline.Deps {
	res := hub.NewResolver(pc.Hub, a.log)
	if progress != nil {
		res = res.WithProgress(hub.NewBarProgress(progress))
	}
	return pipeline.Deps{
		Resolver:  res,
		Log:       a.log,
		Publisher: a.publisher(),
	}
}

func (a *app) publisher() events.Publisher { return events.Log{L: a.log} }

// newRuntime picks the runtime adapter named by cfg.Runtime.Mode.
func newRuntime(cfg config.Config, a *app) (runtime.Runtime, error) {
	rc := cfg.Runtime
	switch rc.Mode {
	case config.RuntimeModeSubprocess:
		return runtime.NewSubprocess(runtime.SubprocessOptions{
			Bin:            rc.Bin,
			Args:           rc.Args,
			Host:           rc.Host,
			PortStart:      rc.PortStart,
			PortEnd:        rc.PortEnd,
			APIKey:         rc.APIKey,
			ReadyTimeout:   rc.ReadyTimeout.Std(),
			RequestTimeout: rc.RequestTimeout.Std(),
			Log:            a.log,
			Publisher:      a.publisher(),
		}), nil
	case config.RuntimeModeServer:
		return runtime.NewServer(runtime.ServerOptions{
			URL:            rc.URL,
			APIKey:         rc.APIKey,
			RequestTimeout: rc.RequestTimeout.Std(),
			ReadyTimeout:   rc.ReadyTimeout.Std(),
			Log:            a.log,
			Publisher:      a.publisher(),
		}), nil
	}
	return nil, fmt.Errorf("unknown runtime mode: %s", rc.Mode)
}

// newManager validates the config and assembles a manager with a runtime.
func (a *app) newManager(progress io.Writer) (*manager.Manager, error) {
	cfg := a.cfg
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	pc, err := pipelineConfig(cfg)
	if err != nil {
		return nil, err
	}
	rt, err := newRuntime(cfg, a)
	if err != nil {
		return nil, err
	}
	return manager.New(manager.Config{
		Pipeline:            pc,
		Deps:                a.pipelineDeps(pc, progress),
		Runtime:             rt,
		DefaultMaxNewTokens: cfg.DefaultMaxNewTokens,
		MaxQueueDepth:       cfg.MaxQueueDepth,
		MaxWait:             cfg.MaxWait.Std(),
		ResultCacheTTL:      cfg.ResultCacheTTL.Std(),
		Log:                 a.log,
		Publisher:           a.publisher(),
	}), nil
}
