package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8090, cfg.Server.Port)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 5*time.Second, cfg.Database.QueryTimeout)
	assert.Equal(t, "cohort_membership", cfg.Database.Postgres.Database)
	assert.True(t, cfg.NATS.Enabled)
	assert.Equal(t, -1, cfg.NATS.MaxReconnects)
	assert.False(t, cfg.Cache.UserCacheEnabled)
	assert.Equal(t, "cohort-groups", cfg.Telemetry.OpenSearch.IndexPrefix)
	assert.Equal(t, "invalid_request", cfg.Validation.EmptinessPolicy)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "membership.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9000
cache:
  user_cache_enabled: true
validation:
  emptiness_policy: missing
telemetry:
  opensearch:
    enabled: true
    url: https://search.internal:9200
`), 0o600))
	t.Setenv("MEMBERSHIP_LOGGING_LEVEL", "debug")
	t.Setenv("MEMBERSHIP_DATABASE_DRIVER", "memory")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.True(t, cfg.Cache.UserCacheEnabled)
	assert.Equal(t, "missing", cfg.Validation.EmptinessPolicy)
	assert.True(t, cfg.Telemetry.OpenSearch.Enabled)
	assert.Equal(t, "https://search.internal:9200", cfg.Telemetry.OpenSearch.URL)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "memory", cfg.Database.Driver)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "bad log level", env: map[string]string{"MEMBERSHIP_LOGGING_LEVEL": "loud"}},
		{name: "bad driver", env: map[string]string{"MEMBERSHIP_DATABASE_DRIVER": "sqlite"}},
		{name: "bad policy", env: map[string]string{"MEMBERSHIP_VALIDATION_EMPTINESS_POLICY": "ignore"}},
		{name: "short jwt secret", env: map[string]string{"MEMBERSHIP_AUTH_JWT_SECRET": "short"}},
		{name: "port out of range", env: map[string]string{"MEMBERSHIP_SERVER_PORT": "70000"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Chdir(t.TempDir())
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load("")
			assert.ErrorContains(t, err, "invalid config")
		})
	}
}

func TestPostgresConnString(t *testing.T) {
	p := PostgresConfig{Host: "db", Port: 5432, User: "cohort", Password: "p@ss", Database: "groups", SSLMode: "disable"}
	assert.Equal(t, "postgres://cohort:p%40ss@db:5432/groups?sslmode=disable", p.ConnString())
}
