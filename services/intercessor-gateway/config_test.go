package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gateway.toml")
	contents := `
ListenAddress = ":9090"
Environment = "staging"
StorageBackend = "leveldb"
DataDir = "/var/lib/intercessor"
AuthorityAddress = "icx1qqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqpn35r0"
Assets = ["USDC", "DAI"]
TimestampSkew = "90s"

[[APIKeys]]
Key = "partner-a"
Secret = "secret-a"
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, ":9090", cfg.ListenAddress)
	require.Equal(t, "staging", cfg.Environment)
	require.Equal(t, storageBackendLevelDB, cfg.StorageBackend)
	require.Equal(t, []string{"USDC", "DAI"}, cfg.Assets)
	require.Len(t, cfg.APIKeys, 1)

	skew, err := cfg.Skew()
	require.NoError(t, err)
	require.Equal(t, 90*time.Second, skew)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gateway.toml")
	contents := `
AuthorityAddress = "icx1qqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqpn35r0"

[[APIKeys]]
Key = "partner-a"
Secret = "secret-a"
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	t.Setenv("INTERCESSOR_GATEWAY_LISTEN", ":7070")
	t.Setenv("INTERCESSOR_GATEWAY_STORAGE", "memory")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, ":7070", cfg.ListenAddress)
	require.Equal(t, storageBackendMemory, cfg.StorageBackend)
}

func TestLoadConfigRejectsBadBackend(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gateway.toml")
	contents := `
StorageBackend = "postgres"
AuthorityAddress = "icx1qqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqpn35r0"

[[APIKeys]]
Key = "partner-a"
Secret = "secret-a"
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	_, err := LoadConfig(path)
	require.ErrorContains(t, err, "unsupported storage backend")
}

func TestLoadConfigRequiresAPIKeys(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gateway.toml")
	contents := `AuthorityAddress = "icx1qqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqpn35r0"`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	_, err := LoadConfig(path)
	require.ErrorContains(t, err, "API key")
}
