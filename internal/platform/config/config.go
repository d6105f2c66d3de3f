package config

import (
	"os"
	"strings"
)

// Config captures process-level configuration. Persistence and messaging
// backends are optional: an empty DSN/URL/broker list selects the in-memory
// implementation, which keeps local development and unit tests dependency
// free.
type Config struct {
	Addr          string
	DevMode       bool
	JWTSigningKey string

	// AllowedOrigins lists front-end hosts accepted by the origin guard.
	AllowedOrigins []string

	// TrustedProxies lists proxy IPs or CIDR blocks whose X-Forwarded-For
	// header is honored when resolving the client address. Empty means no
	// proxy is trusted and the connection address always wins.
	TrustedProxies []string

	PostgresDSN  string
	RedisURL     string
	KafkaBrokers []string
	AuditTopic   string
}

// FromEnv builds a Config from environment variables so main stays lean.
func FromEnv() Config {
	addr := os.Getenv("TRUSTBOARD_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	jwtSigningKey := os.Getenv("JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		// Development default; must be overridden in production.
		jwtSigningKey = "dev-secret-key-change-in-production"
	}

	origins := splitList(os.Getenv("ALLOWED_ORIGINS"))
	if len(origins) == 0 {
		origins = []string{"localhost", "127.0.0.1"}
	}

	topic := os.Getenv("AUDIT_TOPIC")
	if topic == "" {
		topic = "trustboard.abuse-audit"
	}

	return Config{
		Addr:           addr,
		DevMode:        os.Getenv("DEV_MODE") == "true",
		JWTSigningKey:  jwtSigningKey,
		AllowedOrigins: origins,
		TrustedProxies: splitList(os.Getenv("TRUSTED_PROXIES")),
		PostgresDSN:    os.Getenv("POSTGRES_DSN"),
		RedisURL:       os.Getenv("REDIS_URL"),
		KafkaBrokers:   splitList(os.Getenv("KAFKA_BROKERS")),
		AuditTopic:     topic,
	}
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := parts[:0]
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
