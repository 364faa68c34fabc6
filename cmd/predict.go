package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var predictCmd = &cobra.Command{
	Use:   "predict [input]",
	Short: "Score new applicants with the persisted preprocessor and model",
	Long:  "Reads a raw file (default paths.new_data), applies the fitted preprocessor and model, and writes the input columns plus a prediction column.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		input := cfg.Paths.NewData
		if len(args) == 1 {
			input = args[0]
		}
		if output, _ := cmd.Flags().GetString("output"); output != "" {
			cfg.Paths.Predictions = output
		}

		env, err := initPipeline(ctx, "predict")
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := env.Pipeline.Predict(ctx, input, cfg.Paths.Predictions)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Scored %d rows -> %s\n", res.Rows, cfg.Paths.Predictions)
		return nil
	},
}

func init() {
	predictCmd.Flags().StringP("output", "o", "", "predictions file (overrides paths.predictions)")
	rootCmd.AddCommand(predictCmd)
}
