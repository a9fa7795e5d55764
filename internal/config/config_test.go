package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, int64(50<<20), cfg.Server.MaxBodyBytes)
	assert.Equal(t, []string{"*"}, cfg.Server.CORSAllowedOrigins)
	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, "memory", cfg.Queue.Driver)
	assert.Equal(t, 100, cfg.Queue.Capacity)
	assert.Equal(t, 2, cfg.Render.Concurrency)
	assert.Equal(t, "ffmpeg", cfg.Render.FFmpegPath)
	assert.Equal(t, "none", cfg.Output.Provider)
	assert.Zero(t, cfg.Reaper.Retention)
	assert.NotEmpty(t, cfg.InstanceID)
	assert.False(t, cfg.UsesRedis())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("HTTP_PORT", "9000")
	t.Setenv("MAX_BODY_MB", "10")
	t.Setenv("CORS_ALLOWED_ORIGINS", "http://a.test, http://b.test ,")
	t.Setenv("JOB_STORE", "SQLite")
	t.Setenv("JOB_QUEUE", "redis")
	t.Setenv("RENDER_CONCURRENCY", "4")
	t.Setenv("RENDER_TIMEOUT", "90s")
	t.Setenv("JOB_RETENTION", "24h")
	t.Setenv("LOG_SOURCE", "true")
	t.Setenv("FFPROBE_PATH", "none")
	t.Setenv("INSTANCE_ID", "render-node-2")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, int64(10<<20), cfg.Server.MaxBodyBytes)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.Server.CORSAllowedOrigins)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, 4, cfg.Render.Concurrency)
	assert.Equal(t, 90*time.Second, cfg.Render.Timeout)
	assert.Equal(t, 24*time.Hour, cfg.Reaper.Retention)
	assert.True(t, cfg.Log.Source)
	assert.Empty(t, cfg.Render.FFprobePath)
	assert.Equal(t, "render-node-2", cfg.InstanceID)
	assert.True(t, cfg.UsesRedis())
}

func TestLoadRejectsMalformedValues(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"RENDER_CONCURRENCY", "many"},
		{"RENDER_CONCURRENCY", "0"},
		{"QUEUE_CAPACITY", "-1"},
		{"RENDER_TIMEOUT", "soon"},
		{"JOB_RETENTION", "-1h"},
		{"JOB_STORE", "mongo"},
		{"JOB_QUEUE", "kafka"},
		{"OUTPUT_PROVIDER", "ftp"},
		{"LOG_SOURCE", "maybe"},
		{"X264_CRF", "60"},
	}

	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.key)
		})
	}
}

func TestLoadRequiresProviderSettings(t *testing.T) {
	t.Run("postgres", func(t *testing.T) {
		t.Setenv("JOB_STORE", "postgres")
		t.Setenv("DATABASE_URL", "")
		_, err := Load()
		assert.ErrorContains(t, err, "DATABASE_URL")
	})

	t.Run("localfs", func(t *testing.T) {
		t.Setenv("OUTPUT_PROVIDER", "localfs")
		_, err := Load()
		assert.ErrorContains(t, err, "OUTPUT_LOCAL_ROOT")
	})

	t.Run("s3", func(t *testing.T) {
		t.Setenv("OUTPUT_PROVIDER", "s3")
		_, err := Load()
		assert.ErrorContains(t, err, "S3_BUCKET")
	})

	t.Run("gdrive", func(t *testing.T) {
		t.Setenv("OUTPUT_PROVIDER", "gdrive")
		t.Setenv("GDRIVE_CLIENT_ID", "id")
		_, err := Load()
		assert.ErrorContains(t, err, "GDRIVE_REFRESH_TOKEN")
	})
}
