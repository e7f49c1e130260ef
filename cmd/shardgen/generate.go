package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"shardgen/pkg/types"
)

func newGenerateCmd(a *app) *cobra.Command {
	var (
		numTokens int
		asJSON    bool
	)
	cmd := &cobra.Command{
		Use:   "generate [input...]",
		Short: "Run one greedy generation batch and print the outputs",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			mgr, err := a.newManager(os.Stderr)
			if err != nil {
				return err
			}
			defer mgr.Close()
			if err := mgr.Bootstrap(ctx); err != nil {
				return err
			}
			req := types.GenerateRequest{Inputs: args}
			if cmd.Flags().Changed("num-tokens") {
				req.MaxNewTokens = &numTokens
			}
			resp, err := mgr.Generate(ctx, req)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(resp)
			}
			for _, s := range resp.Outputs {
				fmt.Fprintln(out, s)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&numTokens, "num-tokens", "n", 0, "new tokens per input (default from config, 100)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the response as JSON")
	return cmd
}
