package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "main", cfg.DefaultBranch)
	assert.Equal(t, []string{"main"}, cfg.ProtectedBranches)
	assert.Equal(t, 4, cfg.Pool.PersistentMax)
	assert.Equal(t, 32, cfg.Pool.EphemeralMax)
	assert.Equal(t, "public", cfg.Namespace.Default)
	assert.Equal(t, "stdio", cfg.Transport.Mode)
	assert.Equal(t, 30*time.Second, cfg.Call.DefaultDeadline)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "membank.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
default_branch = "trunk"

[backend]
host = "db.internal"
port = 3307

[pool]
persistent_max = 8
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "trunk", cfg.DefaultBranch)
	assert.Equal(t, "db.internal", cfg.Backend.Host)
	assert.Equal(t, 3307, cfg.Backend.Port)
	assert.Equal(t, 8, cfg.Pool.PersistentMax)
	// Unset-in-file fields keep their defaults.
	assert.Equal(t, 32, cfg.Pool.EphemeralMax)
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "membank.toml")
	require.NoError(t, os.WriteFile(path, []byte(`default_branch = "trunk"`), 0o644))

	t.Setenv("MEMBANK_DEFAULT_BRANCH", "release")
	t.Setenv("MEMBANK_POOL_PERSISTENT_MAX", "16")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "release", cfg.DefaultBranch)
	assert.Equal(t, 16, cfg.Pool.PersistentMax)
}

func TestValidateRejectsBadTransport(t *testing.T) {
	cfg := defaults()
	cfg.Transport.Mode = "carrier-pigeon"
	require.NoError(t, cfg.resolveDurations())
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsNonPositivePoolSizes(t *testing.T) {
	cfg := defaults()
	cfg.Pool.EphemeralMax = 0
	require.NoError(t, cfg.resolveDurations())
	assert.Error(t, cfg.Validate())
}

func TestIsProtected(t *testing.T) {
	cfg := defaults()
	cfg.ProtectedBranches = []string{"main", "release"}

	assert.True(t, cfg.IsProtected("main"))
	assert.True(t, cfg.IsProtected("release"))
	assert.False(t, cfg.IsProtected("feature/x"))
}

func TestDSN(t *testing.T) {
	b := BackendConfig{Host: "localhost", Port: 3306, Database: "membank", User: "root", Password: "secret"}
	assert.Equal(t, "root:secret@tcp(localhost:3306)/membank?parseTime=true&multiStatements=true", b.DSN())
}
