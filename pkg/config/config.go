package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Remote GraphQL API
	APIURL         string
	WSURL          string
	APIKey         string
	RequestTimeout time.Duration
	MaxRetries     int

	// Launchpad subscription filter
	NetworkIDs []int
	Protocol   string

	// Token queries
	PageSize         int
	CacheTTL         time.Duration
	SnapshotInterval time.Duration

	RedisURL    string
	HTTPPort    int
	MetricsPort int

	KafkaBrokers []string
	KafkaTopic   string

	JWTSecret string
	// RateLimit is the API's per-client requests per second; 0 disables it.
	RateLimit float64

	AnomalyWindowSize int
	AnomalyThreshold  float64
	MaxWorkers        int
	BatchSize         int
}

// Load reads .env (if present), environment variables and the process
// flags, strips out any -test.* flags, and validates required fields.
func Load() (*Config, error) {
	var appArgs []string
	for _, arg := range os.Args[1:] {
		if strings.HasPrefix(arg, "-test.") {
			continue
		}
		appArgs = append(appArgs, arg)
	}
	cfg, err := Parse(appArgs)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse builds a Config from args and the environment without checking
// required fields. Commands that only talk to the API use it directly.
func Parse(args []string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	flags := flag.NewFlagSet("config", flag.ContinueOnError)

	var (
		apiURL      string
		wsURL       string
		apiKey      string
		redisURL    string
		httpPort    int
		metricsPort int
	)
	flags.StringVar(&apiURL, "api-url", getEnvOrDefault("API_URL", "http://localhost:4000/graphql"), "GraphQL HTTP endpoint")
	flags.StringVar(&wsURL, "ws-url", os.Getenv("WS_URL"), "GraphQL WebSocket endpoint (derived from -api-url when empty)")
	flags.StringVar(&apiKey, "api-key", os.Getenv("API_KEY"), "API key sent in the Authorization header")
	flags.StringVar(&redisURL, "redis", os.Getenv("REDIS_URL"), "Redis connection URL")
	flags.IntVar(&httpPort, "port", 8080, "HTTP listen port")
	flags.IntVar(&metricsPort, "metrics-port", 8082, "Metrics server port")

	if err := flags.Parse(args); err != nil {
		return nil, err
	}

	cfg := &Config{
		APIURL:            apiURL,
		WSURL:             wsURL,
		APIKey:            apiKey,
		RequestTimeout:    10 * time.Second,
		MaxRetries:        3,
		Protocol:          os.Getenv("LAUNCHPAD_PROTOCOL"),
		PageSize:          50,
		CacheTTL:          15 * time.Second,
		SnapshotInterval:  5 * time.Minute,
		RedisURL:          redisURL,
		HTTPPort:          httpPort,
		MetricsPort:       metricsPort,
		KafkaTopic:        getEnvOrDefault("KAFKA_TOPIC", "launchpad-events"),
		JWTSecret:         os.Getenv("JWT_SECRET"),
		RateLimit:         20,
		AnomalyWindowSize: 20,
		AnomalyThreshold:  3.0,
		MaxWorkers:        50,
		BatchSize:         100,
	}
	if cfg.WSURL == "" {
		cfg.WSURL = deriveWSURL(cfg.APIURL)
	}

	if portEnv := os.Getenv("PORT"); portEnv != "" {
		portVal, err := strconv.Atoi(portEnv)
		if err != nil {
			return nil, fmt.Errorf("invalid PORT env var: %v", err)
		}
		cfg.HTTPPort = portVal
	}
	if portEnv := os.Getenv("METRICS_PORT"); portEnv != "" {
		portVal, err := strconv.Atoi(portEnv)
		if err != nil {
			return nil, fmt.Errorf("invalid METRICS_PORT env var: %v", err)
		}
		cfg.MetricsPort = portVal
	}

	if ids := os.Getenv("NETWORK_IDS"); ids != "" {
		for _, s := range splitAndTrim(ids, ",") {
			id, err := strconv.Atoi(s)
			if err != nil {
				return nil, fmt.Errorf("invalid NETWORK_IDS entry %q: %v", s, err)
			}
			cfg.NetworkIDs = append(cfg.NetworkIDs, id)
		}
	}
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = splitAndTrim(brokers, ",")
	}

	// Tuning knobs keep their defaults when the value does not parse.
	cfg.RequestTimeout = getDurationEnvOrDefault("REQUEST_TIMEOUT", cfg.RequestTimeout)
	cfg.CacheTTL = getDurationEnvOrDefault("CACHE_TTL", cfg.CacheTTL)
	cfg.SnapshotInterval = getDurationEnvOrDefault("SNAPSHOT_INTERVAL", cfg.SnapshotInterval)
	cfg.MaxRetries = getIntEnvOrDefault("MAX_RETRIES", cfg.MaxRetries)
	cfg.PageSize = getIntEnvOrDefault("PAGE_SIZE", cfg.PageSize)
	cfg.AnomalyWindowSize = getIntEnvOrDefault("ANOMALY_WINDOW_SIZE", cfg.AnomalyWindowSize)
	cfg.MaxWorkers = getIntEnvOrDefault("MAX_WORKERS", cfg.MaxWorkers)
	cfg.BatchSize = getIntEnvOrDefault("BATCH_SIZE", cfg.BatchSize)
	if rps := os.Getenv("RATE_LIMIT_RPS"); rps != "" {
		if v, err := strconv.ParseFloat(rps, 64); err == nil {
			cfg.RateLimit = v
		}
	}
	if threshold := os.Getenv("ANOMALY_THRESHOLD"); threshold != "" {
		if thresh, err := strconv.ParseFloat(threshold, 64); err == nil {
			cfg.AnomalyThreshold = thresh
		}
	}

	return cfg, nil
}

// Validate checks the fields every pipeline command needs.
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("missing required config: API_KEY or -api-key")
	}
	if c.RedisURL == "" {
		return fmt.Errorf("missing required config: REDIS_URL or -redis")
	}
	if c.PageSize <= 0 || c.PageSize > 200 {
		return fmt.Errorf("PAGE_SIZE must be between 1 and 200, got %d", c.PageSize)
	}
	if c.SnapshotInterval <= 0 {
		return fmt.Errorf("SNAPSHOT_INTERVAL must be positive, got %s", c.SnapshotInterval)
	}
	return nil
}

// deriveWSURL maps http(s) to ws(s) on the same host and path.
func deriveWSURL(apiURL string) string {
	switch {
	case strings.HasPrefix(apiURL, "https://"):
		return "wss://" + strings.TrimPrefix(apiURL, "https://")
	case strings.HasPrefix(apiURL, "http://"):
		return "ws://" + strings.TrimPrefix(apiURL, "http://")
	default:
		return apiURL
	}
}

// splitAndTrim splits s on sep, trims spaces, and drops empty entries.
func splitAndTrim(s, sep string) []string {
	parts := []string{}
	for _, p := range strings.Split(s, sep) {
		if t := strings.TrimSpace(p); t != "" {
			parts = append(parts, t)
		}
	}
	return parts
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnvOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getDurationEnvOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
