package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRootHelp(t *testing.T) {
	out, err := execute(t, "--help")
	require.NoError(t, err)
	assert.Contains(t, out, "Available Commands")
	for _, name := range []string{"point", "interval", "ahead", "models", "datasets"} {
		assert.Contains(t, out, name)
	}
}

func TestFlags(t *testing.T) {
	cmd := NewRootCommand()
	flags := cmd.PersistentFlags()
	assert.Equal(t, "intSlice", flags.Lookup("partitions").Value.Type())
	assert.Equal(t, "stringSlice", flags.Lookup("models").Value.Type())
	assert.Equal(t, "duration", flags.Lookup("job-timeout").Value.Type())
	for flag := range viperFlags {
		assert.NotNil(t, flags.Lookup(flag), flag)
	}
}

func TestModelsCommand(t *testing.T) {
	out, err := execute(t, "models")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[0], "ARIMA\tbenchmark"))
	assert.Contains(t, out, "HOFTS\tfts\thigh-order=true\tmin-order=2")
}

func TestDatasetsCommand(t *testing.T) {
	out, err := execute(t, "datasets")
	require.NoError(t, err)
	assert.Equal(t, "NASDAQ\nSP500\nTAIEX\n", out)
}

func TestRunRequiresDataset(t *testing.T) {
	_, err := execute(t, "point")
	assert.ErrorContains(t, err, "--dataset is required")
}

func TestRunPoint(t *testing.T) {
	out, err := execute(t, "point",
		"--dataset", filepath.Join("testdata", "series.csv"),
		"--window-size", "60",
		"--train-ratio", "0.8",
		"--inc-ratio", "0.5",
		"--models", "CFTS",
		"--partitions", "5,8",
		"--synthetic",
		"--log-level", "error",
	)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "Model;"))
	assert.Contains(t, lines[0], "rmseAVG")
	assert.Contains(t, out, "CFTS")
}

func TestRunRejectsBadConfiguration(t *testing.T) {
	_, err := execute(t, "interval",
		"--dataset", filepath.Join("testdata", "series.csv"),
		"--window-size", "1000",
		"--models", "CFTS",
		"--log-level", "error",
	)
	assert.Error(t, err)
}
