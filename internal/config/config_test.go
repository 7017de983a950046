package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	for _, key := range []string{
		"PORT", "MAX_UPLOAD_SIZE", "PUBLIC_BASE_URL", "DB_TYPE", "MONGODB_URI", "MONGODB_DB",
		"STORAGE_BACKEND", "AI_PROVIDER", "GEMINI_API_KEY", "OPENAI_API_KEY", "AI_MAX_ATTEMPTS",
		"KAFKA_BROKERS", "DETECT_CONCURRENCY", "AI_REQUEST_TIMEOUT", "MINIO_ACCESS_KEY", "MINIO_SECRET_KEY",
		"FETCH_ALLOWED_HOSTS",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, int64(104857600), cfg.MaxUploadSize)
	assert.Equal(t, "sqlite", cfg.Database.Type)
	assert.Equal(t, "local", cfg.Storage.Backend)
	assert.Equal(t, "gemini", cfg.AI.Provider)
	assert.Equal(t, 1, cfg.DetectConcurrency)
	assert.Equal(t, 2, cfg.AI.MaxAttempts)
	assert.Equal(t, 60*time.Second, cfg.AI.RequestTimeout)
	assert.Equal(t, "http://localhost:8080", cfg.PublicBaseURL)
	assert.False(t, cfg.AI.Configured())
	assert.Empty(t, cfg.FetchAllowedHosts)
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("MONGODB_URI", "mongodb://localhost:27017")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("DETECT_CONCURRENCY", "4")
	t.Setenv("AI_REQUEST_TIMEOUT", "15s")
	t.Setenv("PUBLIC_BASE_URL", "https://media.example.com/")
	t.Setenv("FETCH_ALLOWED_HOSTS", "ik.imagekit.io,media.example.com")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "mongo", cfg.Database.Type)
	assert.Equal(t, "media_db", cfg.Database.MongoDatabase)
	assert.Equal(t, "openai", cfg.AI.Provider)
	assert.True(t, cfg.AI.Configured())
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 4, cfg.DetectConcurrency)
	assert.Equal(t, 15*time.Second, cfg.AI.RequestTimeout)
	assert.Equal(t, "https://media.example.com", cfg.PublicBaseURL)
	assert.Equal(t, []string{"ik.imagekit.io", "media.example.com"}, cfg.FetchAllowedHosts)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T)
	}{
		{"mongo without uri", func(t *testing.T) { t.Setenv("DB_TYPE", "mongo") }},
		{"unknown database", func(t *testing.T) { t.Setenv("DB_TYPE", "oracle") }},
		{"minio without keys", func(t *testing.T) { t.Setenv("STORAGE_BACKEND", "minio") }},
		{"unknown provider", func(t *testing.T) { t.Setenv("AI_PROVIDER", "llama") }},
		{"zero attempts", func(t *testing.T) { t.Setenv("AI_MAX_ATTEMPTS", "0") }},
		{"zero concurrency", func(t *testing.T) { t.Setenv("DETECT_CONCURRENCY", "0") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			tt.setup(t)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
