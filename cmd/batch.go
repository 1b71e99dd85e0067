package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/quarkbyte/domscout/internal/batch"
	"github.com/quarkbyte/domscout/internal/observability"
)

// newBatchCmd creates and configures the `batch` command.
func newBatchCmd() *cobra.Command {
	batchCmd := &cobra.Command{
		Use:   "batch",
		Short: "Resolves a JSON lines file of element queries and writes a report",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := configFromContext(ctx)
			if err != nil {
				return err
			}

			inputPath, _ := cmd.Flags().GetString("input")
			outputPath, _ := cmd.Flags().GetString("output")
			noAI, _ := cmd.Flags().GetBool("no-ai")

			f, err := os.Open(inputPath)
			if err != nil {
				return fmt.Errorf("failed to open batch input: %w", err)
			}
			items, err := batch.ReadItems(f)
			f.Close()
			if err != nil {
				return err
			}
			if len(items) == 0 {
				return fmt.Errorf("batch input %s contains no items", inputPath)
			}

			runCfg := *cfg
			if noAI {
				runCfg.Resolver.UseAI = false
			}

			components, err := initializeComponents(ctx, &runCfg, logger)
			if err != nil {
				components.Shutdown()
				return err
			}
			defer components.Shutdown()

			runner := batch.NewRunner(components.Pages, components.Engine, logger)
			report, runErr := runner.Run(ctx, items)

			// An interrupted run still writes the partial report; work done so
			// far should not be thrown away.
			if report != nil {
				out, err := report.ToJSON()
				if err != nil {
					return fmt.Errorf("failed to encode batch report: %w", err)
				}
				if outputPath == "" {
					cmd.Println(string(out))
				} else {
					if err := os.WriteFile(outputPath, out, 0o644); err != nil {
						return fmt.Errorf("failed to write batch report: %w", err)
					}
					logger.Info("Batch report written",
						zap.String("path", outputPath),
						zap.Int("items", report.Summary["total"]),
						zap.Int("errors", report.Summary["errors"]))
				}
			}

			if runErr != nil {
				if errors.Is(runErr, context.Canceled) {
					return fmt.Errorf("batch aborted by user signal")
				}
				return runErr
			}
			return nil
		},
	}

	batchCmd.Flags().StringP("input", "i", "", "Path to a JSON lines file of batch items (required).")
	batchCmd.Flags().StringP("output", "o", "", "Output file path for the JSON report. Prints to stdout when unset.")
	batchCmd.Flags().Bool("no-ai", false, "Disable the AI synthesis and fallback strategies for this run.")
	_ = batchCmd.MarkFlagRequired("input")

	return batchCmd
}
