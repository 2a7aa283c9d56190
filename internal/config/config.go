package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	HTTPAddr    string
	PostgresDSN string
	LogLevel    string

	AdminAPIKey string
	APIKeys     []string

	ReplayWindowSeconds int
	ReplaySweepSeconds  int

	RateAnonCapacity     int
	RateAnonRefillPerSec float64
	RateKeyCapacity      int
	RateKeyRefillPerSec  float64
	RateLimitMaxKeys     int

	ResultFreshnessSeconds    int
	PendingProofMaxAgeSeconds int
	LookupTimeoutSeconds      int

	RevocationSources        []string
	RevocationTimeoutSeconds int
	AttestationSeedDir       string

	MediaHeuristicsEnabled  bool
	MediaMaxFieldBytes      int
	MediaMinPrintableRatio  float64
	ManifestSummaryMaxBytes int

	PolicyBundlePath string
	PolicyBundleID   string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

func FromEnv() Config {
	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	return Config{
		HTTPAddr:    addr,
		PostgresDSN: os.Getenv("POSTGRES_DSN"),
		LogLevel:    envDefault("LOG_LEVEL", "info"),

		AdminAPIKey: os.Getenv("ADMIN_API_KEY"),
		APIKeys:     envList("API_KEYS"),

		ReplayWindowSeconds: envIntDefault("REPLAY_WINDOW_SECONDS", 300),
		ReplaySweepSeconds:  envIntDefault("REPLAY_SWEEP_SECONDS", 60),

		RateAnonCapacity:     envIntDefault("RATE_ANON_CAPACITY", 10),
		RateAnonRefillPerSec: envFloatDefault("RATE_ANON_REFILL_PER_SEC", 0.5),
		RateKeyCapacity:      envIntDefault("RATE_KEY_CAPACITY", 100),
		RateKeyRefillPerSec:  envFloatDefault("RATE_KEY_REFILL_PER_SEC", 10),
		RateLimitMaxKeys:     envIntDefault("RATE_LIMIT_MAX_KEYS", 10000),

		ResultFreshnessSeconds:    envIntDefault("RESULT_FRESHNESS_SECONDS", 600),
		PendingProofMaxAgeSeconds: envIntDefault("PENDING_PROOF_MAX_AGE_SECONDS", 30*24*3600),
		LookupTimeoutSeconds:      envIntDefault("LOOKUP_TIMEOUT_SECONDS", 5),

		RevocationSources:        envList("REVOCATION_SOURCES"),
		RevocationTimeoutSeconds: envIntDefault("REVOCATION_FETCH_TIMEOUT_SECONDS", 30),
		AttestationSeedDir:       os.Getenv("ATTESTATION_SEED_DIR"),

		MediaHeuristicsEnabled:  envBoolDefault("MEDIA_HEURISTICS_ENABLED", true),
		MediaMaxFieldBytes:      envIntDefault("MEDIA_MAX_FIELD_BYTES", 512),
		MediaMinPrintableRatio:  envFloatDefault("MEDIA_MIN_PRINTABLE_RATIO", 0.9),
		ManifestSummaryMaxBytes: envIntDefault("MANIFEST_SUMMARY_MAX_BYTES", 2048),

		PolicyBundlePath: os.Getenv("POLICY_BUNDLE_PATH"),
		PolicyBundleID:   os.Getenv("POLICY_BUNDLE_ID"),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       envIntDefault("REDIS_DB", 0),
	}
}

func (c Config) ReplayWindow() time.Duration {
	return time.Duration(c.ReplayWindowSeconds) * time.Second
}

func (c Config) ReplaySweepInterval() time.Duration {
	return time.Duration(c.ReplaySweepSeconds) * time.Second
}

func (c Config) ResultFreshnessWindow() time.Duration {
	return time.Duration(c.ResultFreshnessSeconds) * time.Second
}

func (c Config) PendingProofMaxAge() time.Duration {
	return time.Duration(c.PendingProofMaxAgeSeconds) * time.Second
}

func (c Config) LookupTimeout() time.Duration {
	return time.Duration(c.LookupTimeoutSeconds) * time.Second
}

func (c Config) RevocationFetchTimeout() time.Duration {
	return time.Duration(c.RevocationTimeoutSeconds) * time.Second
}

func envDefault(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func envList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func envIntDefault(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parsed, err := strconv.Atoi(v)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func envFloatDefault(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(v, 64)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func envBoolDefault(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	switch v {
	case "1", "true", "TRUE", "True", "yes", "YES", "Yes":
		return true
	case "0", "false", "FALSE", "False", "no", "NO", "No":
		return false
	default:
		return def
	}
}
