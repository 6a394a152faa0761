package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFromEnvDefaults(t *testing.T) {
	for _, k := range []string{"MODE", "HTTP_ADDR", "DB_DRIVER", "MAX_ATTEMPTS", "AUTO_FINALIZE_INTERVAL", "REDIS_ADDR", "RABBITMQ_URI"} {
		t.Setenv(k, "")
	}
	c := FromEnv()
	assert.Equal(t, ModeOffline, c.Mode)
	assert.Equal(t, ":8080", c.HTTPAddr)
	assert.Equal(t, "sqlite", c.DBDriver)
	assert.Zero(t, c.MaxAttempts)
	assert.Equal(t, time.Minute, c.AutoFinalizeInterval)
	assert.Empty(t, c.RedisAddr)
	assert.Empty(t, c.RabbitMQURI)
	assert.Equal(t, c.CORSOriginsOffline, c.CORSOrigins())
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("MODE", "online")
	t.Setenv("MAX_ATTEMPTS", "3")
	t.Setenv("AUTO_FINALIZE_INTERVAL", "0")
	t.Setenv("ENROLLMENT_CACHE_TTL", "45s")
	t.Setenv("ENABLE_LOCAL_AUTH", "no")
	t.Setenv("CORS_ORIGINS_ONLINE", " https://a.example , ,https://b.example")
	t.Setenv("SEED_FILE", "/etc/quizgate/seed.json")

	c := FromEnv()
	assert.Equal(t, 3, c.MaxAttempts)
	assert.Zero(t, c.AutoFinalizeInterval)
	assert.Equal(t, 45*time.Second, c.EnrollmentCacheTTL)
	assert.False(t, c.EnableLocalAuth)
	assert.Equal(t, "/etc/quizgate/seed.json", c.SeedFile)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, c.CORSOrigins())
}

func TestEnvIntFallsBackOnGarbage(t *testing.T) {
	t.Setenv("MAX_ATTEMPTS", "lots")
	assert.Zero(t, FromEnv().MaxAttempts)
}
