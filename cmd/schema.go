package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/credit-risk-cli/internal/schema"
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the active column schema as YAML",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("schema"); err != nil {
			return err
		}
		return writeSchema(cmd, cfg.Schema)
	},
}

func writeSchema(cmd *cobra.Command, s schema.Schema) error {
	enc := yaml.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent(2)
	if err := enc.Encode(struct {
		Schema schema.Schema `yaml:"schema"`
	}{s}); err != nil {
		return eris.Wrap(err, "schema: encode")
	}
	return eris.Wrap(enc.Close(), "schema: flush")
}

func init() {
	rootCmd.AddCommand(schemaCmd)
}
