package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var prepareCmd = &cobra.Command{
	Use:   "prepare",
	Short: "Split raw data, fit the preprocessor and persist the processed bundle",
	Long:  "Loads the raw credit file, makes a stratified train/test split, fits the preprocessor on the training rows only, and writes the processed dataset and the fitted preprocessor.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if input, _ := cmd.Flags().GetString("input"); input != "" {
			cfg.Paths.RawData = input
		}

		env, err := initPipeline(ctx, "prepare")
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := env.Pipeline.Prepare(ctx)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Prepared %d rows: %d train, %d test, %d features\n",
			res.Rows, res.TrainRows, res.TestRows, res.Features)
		fmt.Fprintf(out, "Preprocessor %s -> %s\n", res.PreprocessorFingerprint, cfg.Paths.Preprocessor)
		fmt.Fprintf(out, "Processed data -> %s\n", cfg.Paths.ProcessedData)
		return nil
	},
}

func init() {
	prepareCmd.Flags().String("input", "", "raw data file (overrides paths.raw_data)")
	rootCmd.AddCommand(prepareCmd)
}
