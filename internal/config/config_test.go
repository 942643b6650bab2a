package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	for _, k := range []string{
		"GITHUB_ORG", "GITHUB_TOKEN", "GH_TOKEN", "RAW_CONTENT_URL", "FETCH_TIMEOUT",
		"BATCH_TIMEOUT", "MAX_CONCURRENCY", "OTEL_SERVICE_NAME", "HOST", "PORT",
		"FALLBACK_REPOS", "LOG_LEVEL",
	} {
		t.Setenv(k, "")
	}
	cfg := New()

	assert.Equal(t, "NIBM-Workshops", cfg.GetOrganization())
	assert.Equal(t, "https://raw.githubusercontent.com", cfg.GetRawContentURL())
	assert.Equal(t, 10*time.Second, cfg.GetFetchTimeout())
	assert.Equal(t, 60*time.Second, cfg.GetBatchTimeout())
	assert.Equal(t, 8, cfg.GetMaxConcurrency())
	assert.Equal(t, "workshops", cfg.GetServiceName())
	assert.Equal(t, "localhost:8080", cfg.GetAddr())
	assert.Empty(t, cfg.GetGitHubToken())
	assert.Nil(t, cfg.GetFallbackRepos())
	assert.Equal(t, slog.LevelInfo, cfg.GetLogLevel())
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("GITHUB_ORG", "acme")
	t.Setenv("GITHUB_TOKEN", "")
	t.Setenv("GH_TOKEN", "gh-secret")
	t.Setenv("FETCH_TIMEOUT", "2s")
	t.Setenv("BATCH_TIMEOUT", "not-a-duration")
	t.Setenv("MAX_CONCURRENCY", "3")
	t.Setenv("FALLBACK_REPOS", " intro-to-git, ,ui-ux ")
	t.Setenv("HOST", "0.0.0.0")
	t.Setenv("PORT", "9000")
	t.Setenv("LOG_LEVEL", "WARNING")
	cfg := New()

	assert.Equal(t, "acme", cfg.GetOrganization())
	assert.Equal(t, "gh-secret", cfg.GetGitHubToken())
	assert.Equal(t, 2*time.Second, cfg.GetFetchTimeout())
	assert.Equal(t, 60*time.Second, cfg.GetBatchTimeout())
	assert.Equal(t, 3, cfg.GetMaxConcurrency())
	assert.Equal(t, []string{"intro-to-git", "ui-ux"}, cfg.GetFallbackRepos())
	assert.Equal(t, "0.0.0.0:9000", cfg.GetAddr())
	assert.Equal(t, slog.LevelWarn, cfg.GetLogLevel())
}

func TestGetDsn(t *testing.T) {
	t.Run("explicit", func(t *testing.T) {
		t.Setenv("DSN", "postgres://u:p@db:5432/w?sslmode=disable")
		u, err := New().GetDsn()
		require.NoError(t, err)
		assert.Equal(t, "db:5432", u.Host)
	})
	t.Run("tcp", func(t *testing.T) {
		t.Setenv("DSN", "")
		t.Setenv("PGUSER", "alice")
		t.Setenv("PGHOST", "pg.internal")
		t.Setenv("PGPORT", "6543")
		t.Setenv("PGDATABASE", "catalog")
		u, err := New().GetDsn()
		require.NoError(t, err)
		assert.Equal(t, "postgres://alice@pg.internal:6543/catalog?sslmode=disable", u.String())
	})
	t.Run("socket file", func(t *testing.T) {
		dir := t.TempDir()
		sock := filepath.Join(dir, ".s.PGSQL.5433")
		require.NoError(t, os.WriteFile(sock, nil, 0o600))
		t.Setenv("DSN", "")
		t.Setenv("PGUSER", "bob")
		t.Setenv("PGHOST", sock)
		t.Setenv("PGPORT", "")
		t.Setenv("PGDATABASE", "")
		u, err := New().GetDsn()
		require.NoError(t, err)
		assert.Equal(t, dir, u.Query().Get("host"))
		assert.Equal(t, "5433", u.Query().Get("port"))
		assert.Equal(t, "/workshops", u.Path)
	})
	t.Run("invalid", func(t *testing.T) {
		t.Setenv("DSN", "no-scheme")
		_, err := New().GetDsn()
		require.Error(t, err)
	})
}

func TestLoadConfigFile(t *testing.T) {
	t.Setenv("GITHUB_ORG", "")
	path := filepath.Join(t.TempDir(), "workshops.yaml")
	require.NoError(t, os.WriteFile(path, []byte("GITHUB_ORG: from-file\nMAX_CONCURRENCY: 2\n"), 0o600))

	cfg := New()
	require.NoError(t, cfg.Load(path))
	assert.Equal(t, "from-file", cfg.GetOrganization())
	assert.Equal(t, 2, cfg.GetMaxConcurrency())

	require.Error(t, New().Load(filepath.Join(t.TempDir(), "missing.yaml")))
	require.NoError(t, New().Load(""))
}

func TestSetupLogFollowsLevel(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })
	t.Setenv("LOG_LEVEL", "error")

	var buf bytes.Buffer
	SetupLogTo(&buf, New())
	slog.Info("hidden")
	slog.Error("shown", "key", "value")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "msg=shown key=value")
}
