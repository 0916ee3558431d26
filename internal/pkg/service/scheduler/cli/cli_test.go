package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootHelp(t *testing.T) {
	t.Parallel()

	stdout := bytes.Buffer{}
	stderr := bytes.Buffer{}
	root := NewRootCommand(&stdout, &stderr)
	root.cmd.SetArgs([]string{"--help"})

	assert.Equal(t, 0, root.Execute())
	assert.Contains(t, stdout.String(), "gridrun")
	assert.Contains(t, stdout.String(), "run")
	assert.Contains(t, stdout.String(), "inspect")
}

func TestLoadConfigDefaultsAndFlags(t *testing.T) {
	t.Parallel()

	root := NewRootCommand(&bytes.Buffer{}, &bytes.Buffer{})
	root.cmd.SetContext(context.Background())
	require.NoError(t, root.cmd.ParseFlags([]string{"--grid-url", "https://grid.example.com", "--node-id", "cli-node"}))

	cfg, err := loadConfig(root.cmd)
	require.NoError(t, err)
	assert.Equal(t, "https://grid.example.com", cfg.Grid.URL)
	assert.Equal(t, "cli-node", cfg.NodeID)

	// Untouched policies keep their defaults.
	assert.Equal(t, 15*time.Minute, cfg.ClaimTTL)
	assert.Equal(t, 3, cfg.PoolWidth)
	assert.Equal(t, "ZA1", cfg.Grid.StateCell)
}

func TestLoadConfigFile(t *testing.T) {
	t.Parallel()

	file := filepath.Join(t.TempDir(), "gridrun.yml")
	require.NoError(t, os.WriteFile(file, []byte("node-id: file-node\ngrid:\n  url: https://grid.example.com\npool-width: 5\n"), 0o600))

	root := NewRootCommand(&bytes.Buffer{}, &bytes.Buffer{})
	root.cmd.SetContext(context.Background())
	require.NoError(t, root.cmd.ParseFlags([]string{"--config", file}))

	cfg, err := loadConfig(root.cmd)
	require.NoError(t, err)
	assert.Equal(t, "file-node", cfg.NodeID)
	assert.Equal(t, "https://grid.example.com", cfg.Grid.URL)
	assert.Equal(t, 5, cfg.PoolWidth)
}

func TestLoadConfigMissingFile(t *testing.T) {
	t.Parallel()

	root := NewRootCommand(&bytes.Buffer{}, &bytes.Buffer{})
	root.cmd.SetContext(context.Background())
	require.NoError(t, root.cmd.ParseFlags([]string{"--config", "/does/not/exist.yml"}))

	_, err := loadConfig(root.cmd)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `cannot read configuration file "/does/not/exist.yml"`)
}

func TestInspectEmptyGrid(t *testing.T) {
	t.Parallel()

	stdout := bytes.Buffer{}
	stderr := bytes.Buffer{}
	root := NewRootCommand(&stdout, &stderr)
	root.cmd.SetArgs([]string{"inspect"})

	// The in-memory grid is empty, the header analysis fails.
	assert.Equal(t, 1, root.Execute())
	assert.Contains(t, stderr.String(), "missing header row")
}
