package main

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slog"
)

func TestRunWithConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kernel.yaml")
	require.NoError(t, os.WriteFile(path, []byte("heapSize: 2048\nblockSizes: [112, 112, 112]\nmaxProcesses: 2\n"), 0o644))

	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	require.NoError(t, run(logger, path, 3, 3, 100, true))
}

func TestRunMissingConfig(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	require.Error(t, run(logger, filepath.Join(t.TempDir(), "missing.yaml"), 1, 1, 16, false))
}
