package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	cmds := rootCmd.Commands()

	names := make(map[string]bool)
	for _, c := range cmds {
		names[c.Name()] = true
	}

	expected := []string{"prepare", "train", "predict", "runs", "schema"}
	for _, name := range expected {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "credit-risk", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
	assert.True(t, rootCmd.SilenceUsage)
}

func TestPrepareCommand_Flags(t *testing.T) {
	flag := prepareCmd.Flags().Lookup("input")
	require.NotNil(t, flag, "prepare command should have --input flag")
	assert.Equal(t, "", flag.DefValue)
}

func TestPredictCommand_Flags(t *testing.T) {
	flag := predictCmd.Flags().Lookup("output")
	require.NotNil(t, flag, "predict command should have --output flag")
	assert.Equal(t, "o", flag.Shorthand)
	assert.Equal(t, "predict [input]", predictCmd.Use)
}

func TestRunsCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range runsCmd.Commands() {
		names[c.Name()] = true
	}

	for _, name := range []string{"list", "show", "stats"} {
		assert.True(t, names[name], "expected runs subcommand %q not found", name)
	}
}

func TestRunsListCommand_Flags(t *testing.T) {
	limit := runsListCmd.Flags().Lookup("limit")
	require.NotNil(t, limit)
	assert.Equal(t, "50", limit.DefValue)

	format := runsListCmd.Flags().Lookup("format")
	require.NotNil(t, format)
	assert.Equal(t, "table", format.DefValue)

	assert.NotNil(t, runsListCmd.Flags().Lookup("stage"))
	assert.NotNil(t, runsListCmd.Flags().Lookup("status"))
}
