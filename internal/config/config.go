package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Mode string

const (
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"
)

type Config struct {
	Mode     Mode
	HTTPAddr string
	SiteID   string

	DBDriver string // sqlite|postgres|memory
	DBDSN    string

	AuthSecret      string
	EnableLocalAuth bool
	AdminUser       string
	AdminPassHash   string // bcrypt

	// JSON fixture of users, course modules and enrollments applied at startup
	SeedFile string

	CORSOriginsOnline  []string
	CORSOriginsOffline []string

	LogLevel       string
	MetricsEnabled bool

	// Attempt policy
	MaxAttempts          int           // 0 = unlimited
	AutoFinalizeInterval time.Duration // 0 = sweeper off
	AutoFinalizeBatch    int

	// Enrollment cache; empty addr disables it
	RedisAddr          string
	RedisPassword      string
	RedisDB            int
	EnrollmentCacheTTL time.Duration

	// Progress events; empty URI disables publishing
	RabbitMQURI      string
	RabbitMQExchange string
}

func FromEnv() Config {
	mode := Mode(os.Getenv("MODE"))
	if mode == "" {
		mode = ModeOffline
	}
	return Config{
		Mode:               mode,
		HTTPAddr:           envOr("HTTP_ADDR", ":8080"),
		SiteID:             envOr("SITE_ID", "local"),
		DBDriver:           envOr("DB_DRIVER", "sqlite"),
		DBDSN:              envOr("DB_DSN", ""),
		AuthSecret:         envOr("AUTH_HMAC_SECRET", "supersecret-dev-key"),
		EnableLocalAuth:    envBool("ENABLE_LOCAL_AUTH", true),
		AdminUser:          envOr("ADMIN_USER", "admin"),
		AdminPassHash:      os.Getenv("ADMIN_PASS_HASH"),
		SeedFile:           os.Getenv("SEED_FILE"),
		CORSOriginsOnline:  csvOr("CORS_ORIGINS_ONLINE", "https://quizgate.mindengage.ai"),
		CORSOriginsOffline: csvOr("CORS_ORIGINS_OFFLINE", "http://localhost:3000,http://localhost:3010"),
		LogLevel:           envOr("LOG_LEVEL", "info"),
		MetricsEnabled:     envBool("METRICS_ENABLED", true),

		MaxAttempts:          envInt("MAX_ATTEMPTS", 0),
		AutoFinalizeInterval: envDuration("AUTO_FINALIZE_INTERVAL", time.Minute),
		AutoFinalizeBatch:    envInt("AUTO_FINALIZE_BATCH", 100),

		RedisAddr:          os.Getenv("REDIS_ADDR"),
		RedisPassword:      os.Getenv("REDIS_PASSWORD"),
		RedisDB:            envInt("REDIS_DB", 0),
		EnrollmentCacheTTL: envDuration("ENROLLMENT_CACHE_TTL", 2*time.Minute),

		RabbitMQURI:      os.Getenv("RABBITMQ_URI"),
		RabbitMQExchange: envOr("RABBITMQ_EXCHANGE", "quizgate.events"),
	}
}

// CORSOrigins returns the allow-list for the configured mode.
func (c Config) CORSOrigins() []string {
	if c.Mode == ModeOnline {
		return c.CORSOriginsOnline
	}
	return c.CORSOriginsOffline
}

func envOr(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}
func envBool(k string, def bool) bool {
	switch os.Getenv(k) {
	case "1", "true", "TRUE", "yes", "YES":
		return true
	case "0", "false", "FALSE", "no", "NO":
		return false
	default:
		return def
	}
}
func envInt(k string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(os.Getenv(k)))
	if err != nil {
		return def
	}
	return n
}

// envDuration accepts Go durations ("90s") or bare seconds ("90").
func envDuration(k string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	return def
}
func csvOr(k, def string) []string {
	v := envOr(k, def)
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
