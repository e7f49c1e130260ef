package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"shardgen/internal/hub"
	"shardgen/internal/modelcfg"
	"shardgen/internal/skeleton"
)

func newInspectCmd(a *app) *cobra.Command {
	var summaryOnly bool
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Print the placeholder parameter layout built from the model config",
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
			// config.json is all the layout needs
			opts := pc.Hub
			opts.AllowPatterns = []string{modelcfg.FileName}
			snap, err := hub.NewResolver(opts, a.log).Resolve(ctx, pc.ModelID)
			if err != nil {
				return err
			}
			desc, err := modelcfg.Load(snap.Root)
			if err != nil {
				return err
			}
			skel, err := skeleton.Build(desc, pc.Precision)
			if err != nil {
				return err
			}
			renderSkeleton(cmd.OutOrStdout(), skel, summaryOnly)
			return nil
		},
	}
	cmd.Flags().BoolVar(&summaryOnly, "summary", false, "only print totals")
	return cmd
}

func renderSkeleton(w io.Writer, s *skeleton.Skeleton, summaryOnly bool) {
	if !summaryOnly {
		table := tablewriter.NewWriter(w)
		table.SetHeader([]string{"NAME", "SHAPE", "DTYPE", "ELEMENTS"})
		table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
		table.SetAlignment(tablewriter.ALIGN_LEFT)
		table.SetHeaderLine(false)
		table.SetBorder(false)
		table.SetNoWhiteSpace(true)
		table.SetTablePadding("  ")
		for _, p := range s.Params {
			table.Append([]string{p.Name, formatShape(p.Shape), string(p.DType), strconv.FormatInt(p.NumElements(), 10)})
		}
		table.Render()
	}
	fmt.Fprintf(w, "%s: %d layers, %d tensors, %s params, %s at %s\n",
		s.ModelType, s.NumLayers, len(s.Params), s.HumanParams(), s.HumanSize(), s.Precision)
}

func formatShape(shape []int64) string {
	parts := make([]string, len(shape))
	for i, d := range shape {
		parts[i] = strconv.FormatInt(d, 10)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
