package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"POSTGRUSTQL_USER", "POSTGRUSTQL_PASSWORD", "POSTGRUSTQL_DATABASE",
		"POSTGRUSTQL_HOST", "POSTGRUSTQL_PORT", "POSTGRUSTQL_DATA_DIR", "POSTGRUSTQL_INITDB"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestLoadFallsBackToDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("POSTGRUSTQL_DATA_DIR", t.TempDir())
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.User)
	assert.Equal(t, 5432, cfg.Port)
}

func TestLoadEnvOverridesToml(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, tomlFileName), []byte(`
user = "fromtoml"
port = 6000
`), 0o644))

	t.Setenv("POSTGRUSTQL_DATA_DIR", dir)
	t.Setenv("POSTGRUSTQL_USER", "fromenv")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "fromenv", cfg.User, "environment wins over the TOML file")
	assert.Equal(t, 6000, cfg.Port, "TOML value used when the environment doesn't set it")
}

func TestInitDBDefaultsTrueAndEnvFalseWins(t *testing.T) {
	clearEnv(t)
	t.Setenv("POSTGRUSTQL_DATA_DIR", t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.InitDB)

	t.Setenv("POSTGRUSTQL_INITDB", "false")
	cfg, err = Load()
	require.NoError(t, err)
	assert.False(t, cfg.InitDB, "an explicit false must beat the true default")
}

func TestLockDataDirRefusesSecondLock(t *testing.T) {
	dir := t.TempDir()
	fl, err := LockDataDir(dir)
	require.NoError(t, err)
	defer fl.Unlock()

	_, err = LockDataDir(dir)
	assert.Error(t, err)
}
