package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/openCoreEMR/oce-module-sinch-conversations/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, cfg map[string]interface{}) string {
	t.Helper()

	data, err := json.Marshal(cfg)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, data, 0600))
	return path
}

func validConfigFile(t *testing.T) string {
	t.Helper()
	return writeConfigFile(t, map[string]interface{}{
		"sinch": map[string]interface{}{
			"project_id": "proj-1",
			"app_id":     "app-1",
			"api_key":    "key-1",
		},
		"database": map[string]interface{}{
			"path": filepath.Join(t.TempDir(), "sinch.db"),
		},
	})
}

func TestLoad_Success(t *testing.T) {
	t.Setenv("SINCH_API_SECRET", "secret-1")

	cfg, err := Load(validConfigFile(t))
	require.NoError(t, err)

	assert.Equal(t, "proj-1", cfg.Sinch.ProjectID)
	assert.Equal(t, "secret-1", cfg.Sinch.APISecret)

	// Defaults
	assert.Equal(t, "us", cfg.Sinch.Region)
	assert.Equal(t, 8084, cfg.Server.Port)
	assert.Equal(t, 3, cfg.Retry.MaxRetries)
	assert.Equal(t, 60, cfg.Polling.IntervalSec)
	assert.Equal(t, 365, cfg.RetentionDays)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
}

func TestLoad_InvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0600))

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoad_SecretNeverFromFile(t *testing.T) {
	t.Setenv("SINCH_API_SECRET", "")

	// A secret smuggled into the JSON file must be ignored
	path := writeConfigFile(t, map[string]interface{}{
		"sinch": map[string]interface{}{
			"project_id": "proj-1",
			"app_id":     "app-1",
			"api_key":    "key-1",
			"api_secret": "file-secret",
		},
		"database": map[string]interface{}{"path": "/tmp/sinch.db"},
	})

	_, err := Load(path)
	require.ErrorIs(t, err, ErrMissingAPISecret)
}

func TestLoad_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(cfg map[string]interface{})
		wantErr error
	}{
		{
			name: "missing project id",
			mutate: func(cfg map[string]interface{}) {
				cfg["sinch"].(map[string]interface{})["project_id"] = ""
			},
			wantErr: ErrMissingProjectID,
		},
		{
			name: "missing app id",
			mutate: func(cfg map[string]interface{}) {
				cfg["sinch"].(map[string]interface{})["app_id"] = ""
			},
			wantErr: ErrMissingAppID,
		},
		{
			name: "missing api key",
			mutate: func(cfg map[string]interface{}) {
				cfg["sinch"].(map[string]interface{})["api_key"] = ""
			},
			wantErr: ErrMissingAPIKey,
		},
		{
			name: "missing database path",
			mutate: func(cfg map[string]interface{}) {
				cfg["database"].(map[string]interface{})["path"] = ""
			},
			wantErr: ErrMissingDBPath,
		},
		{
			name: "invalid region",
			mutate: func(cfg map[string]interface{}) {
				cfg["sinch"].(map[string]interface{})["region"] = "apac"
			},
			wantErr: ErrInvalidRegion,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("SINCH_API_SECRET", "secret-1")

			cfg := map[string]interface{}{
				"sinch": map[string]interface{}{
					"project_id": "proj-1",
					"app_id":     "app-1",
					"api_key":    "key-1",
				},
				"database": map[string]interface{}{"path": "/tmp/sinch.db"},
			}
			tt.mutate(cfg)

			_, err := Load(writeConfigFile(t, cfg))
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestLoad_RejectsExcessiveRetention(t *testing.T) {
	t.Setenv("SINCH_API_SECRET", "secret-1")

	path := writeConfigFile(t, map[string]interface{}{
		"sinch": map[string]interface{}{
			"project_id": "proj-1",
			"app_id":     "app-1",
			"api_key":    "key-1",
		},
		"database":       map[string]interface{}{"path": "/tmp/sinch.db"},
		"retention_days": 99999,
	})

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "retention days")
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("SINCH_API_SECRET", "secret-1")
	t.Setenv("SINCH_PROJECT_ID", "env-proj")
	t.Setenv("SINCH_REGION", "eu")
	t.Setenv("OCE_SINCH_DB_PATH", "/var/lib/oce/sinch.db")
	t.Setenv("OCE_SINCH_PORT", "9090")

	cfg, err := Load(validConfigFile(t))
	require.NoError(t, err)

	assert.Equal(t, "env-proj", cfg.Sinch.ProjectID)
	assert.Equal(t, "eu", cfg.Sinch.Region)
	assert.Equal(t, "/var/lib/oce/sinch.db", cfg.Database.Path)
	assert.Equal(t, 9090, cfg.Server.Port)
}

func TestLoad_ProductionSecurity(t *testing.T) {
	t.Setenv("SINCH_API_SECRET", "secret-1")
	t.Setenv("OCE_SINCH_ENV", "production")

	t.Run("missing webhook secret", func(t *testing.T) {
		_, err := Load(validConfigFile(t))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "webhook secret is required")
	})

	t.Run("short webhook secret", func(t *testing.T) {
		t.Setenv("OCE_SINCH_WEBHOOK_SECRET", "too-short")
		_, err := Load(validConfigFile(t))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "at least 32 characters")
	})

	t.Run("debug logging rejected", func(t *testing.T) {
		t.Setenv("OCE_SINCH_WEBHOOK_SECRET", "0123456789abcdef0123456789abcdef")
		path := writeConfigFile(t, map[string]interface{}{
			"sinch": map[string]interface{}{
				"project_id": "proj-1",
				"app_id":     "app-1",
				"api_key":    "key-1",
			},
			"database":  map[string]interface{}{"path": "/tmp/sinch.db"},
			"log_level": "debug",
		})
		_, err := Load(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "debug logging")
	})

	t.Run("valid production config", func(t *testing.T) {
		t.Setenv("OCE_SINCH_WEBHOOK_SECRET", "0123456789abcdef0123456789abcdef")
		cfg, err := Load(validConfigFile(t))
		require.NoError(t, err)
		assert.IsType(t, &models.Config{}, cfg)
	})
}

func TestLoad_RejectsTraversalPath(t *testing.T) {
	_, err := Load("configs/../../etc/passwd")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config path")
}
