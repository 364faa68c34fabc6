package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Train and evaluate the risk model on the processed bundle",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx, "train")
		if err != nil {
			return err
		}
		defer env.Close()

		report, err := env.Pipeline.Train(ctx)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Accuracy: %.4f\n\n", report.Accuracy)
		if err := report.WriteText(out); err != nil {
			return err
		}
		fmt.Fprintf(out, "\nModel -> %s\nMetrics -> %s\n", cfg.Paths.Model, cfg.Paths.Metrics)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(trainCmd)
}
