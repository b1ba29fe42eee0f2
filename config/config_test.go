package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadCreatesDefaultFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, Default().RPCAddress, cfg.RPCAddress)
	require.FileExists(t, path)

	// A second load reads the file just written.
	again, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg, again)
}

func TestLoadAppliesDefaultsToPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("RPCAddress = \"0.0.0.0:9000\"\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "0.0.0.0:9000", cfg.RPCAddress)
	require.Equal(t, Default().DefaultFilterSize, cfg.DefaultFilterSize)
	require.Equal(t, Default().DefaultNumberOfHashes, cfg.DefaultNumberOfHashes)
	require.Equal(t, Default().RPCRequestsPerMinute, cfg.RPCRequestsPerMinute)
}

func TestValidateRejectsBadRanges(t *testing.T) {
	cfg := Default()
	cfg.DefaultTimeoutSeconds = -5
	require.Error(t, cfg.Validate())

	cfg = Default()
	cfg.DefaultFilterSize = 1
	require.Error(t, cfg.Validate())

	cfg = Default()
	cfg.RPCAddress = ""
	require.Error(t, cfg.Validate())
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("RPCAddress = [not toml"), 0o644))
	_, err := Load(path)
	require.Error(t, err)
}
