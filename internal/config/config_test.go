package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_PassesValidate(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestValidate_RejectsUnknownFunctionMetaScope(t *testing.T) {
	c := Default()
	c.FunctionMetaScope = "bogus"
	assert.Error(t, c.Validate())
}

func TestValidate_RejectsEmptyMetastoreEndpoints(t *testing.T) {
	c := Default()
	c.MetadataStoreEndpoints = nil
	assert.Error(t, c.Validate())
}

func TestLoadFile_OverlaysOntoDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("runtimeRecoverEnable: true\nkillTimeoutMs: 5000\n"), 0o600))

	c := Default()
	require.NoError(t, c.LoadFile(path))

	assert.True(t, c.RuntimeRecoverEnable)
	assert.Equal(t, int64(5000), c.KillTimeoutMs)
	assert.Equal(t, int64(15000), c.RetryKillIntervalMs, "fields absent from the file keep their default")
}

func TestDurationAccessors(t *testing.T) {
	c := Default()
	assert.Equal(t, int64(15000), c.RetryKillInterval().Milliseconds())
	assert.Equal(t, int64(30000), c.KillTimeout().Milliseconds())
	assert.Equal(t, int64(30000), c.WatchSyncPeriod().Milliseconds())
}
