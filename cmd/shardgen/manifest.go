package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"shardgen/internal/manifest"
	"shardgen/internal/pipeline"
)

func newManifestCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "manifest",
		Short: "Resolve the model and write its checkpoint manifest without loading weights",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			pc, err := pipelineConfig(a.cfg)
			if err != nil {
				return err
			}
			c, err := pipeline.New(ctx, pc, a.pipelineDeps(pc, os.Stderr))
			if err != nil {
				return err
			}
			sum := manifest.Summarize(c.Manifest())
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "manifest: %s\n", c.Repo().ManifestPath)
			fmt.Fprintf(out, "type:     %s\n", c.Manifest().Type)
			fmt.Fprintf(out, "shards:   %d (%s)\n", sum.Shards, sum.HumanSize())
			if len(sum.Missing) > 0 {
				fmt.Fprintf(out, "missing:  %d\n", len(sum.Missing))
			}
			fmt.Fprintf(out, "digest:   %s\n", manifest.Fingerprint(c.Manifest()))
			return nil
		},
	}
}
