package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
)

type Config struct {
	Port            string
	Env             string
	StorageDir      string
	PublicBaseURL   string
	GracePeriod     time.Duration
	DebugErrors     bool
	WorkerCount     int
	FetchTimeout    time.Duration
	SettleDelay     time.Duration
	StoreBackend    string
	RedisAddr       string
	RedisPassword   string
	RedisDB         int
	JobTTL          time.Duration
	KafkaBrokers    []string
	KafkaTopic      string
	JanitorInterval time.Duration
	MaxFileAge      time.Duration
	YtdlpPath       string
	ShutdownTimeout time.Duration
}

func Load() *Config {
	return &Config{
		Port:            getEnv("SERVICE_PORT", "8081"),
		Env:             getEnv("ENV", "production"),
		StorageDir:      getEnv("STORAGE_DIR", "./downloads"),
		PublicBaseURL:   getEnv("PUBLIC_BASE_URL", ""),
		GracePeriod:     getEnvAsDuration("CLEANUP_GRACE_PERIOD", 10*time.Second),
		DebugErrors:     getEnvAsBool("DEBUG_ERRORS", false),
		WorkerCount:     getEnvAsInt("WORKER_COUNT", 4),
		FetchTimeout:    getEnvAsDuration("FETCH_TIMEOUT", 30*time.Minute),
		SettleDelay:     getEnvAsDuration("SETTLE_DELAY", 2*time.Second),
		StoreBackend:    strings.ToLower(getEnv("STORE_BACKEND", StoreMemory)),
		RedisAddr:       getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:   getEnv("REDIS_PASSWORD", ""),
		RedisDB:         getEnvAsInt("REDIS_DB", 0),
		JobTTL:          getEnvAsDuration("JOB_TTL", time.Hour),
		KafkaBrokers:    getEnvAsList("KAFKA_BROKERS"),
		KafkaTopic:      getEnv("KAFKA_TOPIC", "media_jobs"),
		JanitorInterval: getEnvAsDuration("JANITOR_INTERVAL", time.Minute),
		MaxFileAge:      getEnvAsDuration("MAX_FILE_AGE", time.Hour),
		YtdlpPath:       getEnv("YTDLP_PATH", ""),
		ShutdownTimeout: getEnvAsDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
	}
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func (c *Config) Validate() error {
	var errs []error

	if c.Port == "" {
		errs = append(errs, errors.New("SERVICE_PORT is required"))
	}
	if c.StorageDir == "" {
		errs = append(errs, errors.New("STORAGE_DIR is required"))
	}
	if c.WorkerCount < 1 {
		errs = append(errs, fmt.Errorf("WORKER_COUNT must be positive, got %d", c.WorkerCount))
	}
	if c.GracePeriod < 0 || c.FetchTimeout < 0 || c.SettleDelay < 0 || c.MaxFileAge < 0 {
		errs = append(errs, errors.New("durations must not be negative"))
	}
	if c.JobTTL <= 0 {
		errs = append(errs, errors.New("JOB_TTL must be positive"))
	}
	if c.JanitorInterval <= 0 {
		errs = append(errs, errors.New("JANITOR_INTERVAL must be positive"))
	}
	if c.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("SHUTDOWN_TIMEOUT must be positive"))
	}
	switch c.StoreBackend {
	case StoreMemory:
	case StoreRedis:
		if c.RedisAddr == "" {
			errs = append(errs, errors.New("REDIS_ADDR is required for the redis store"))
		}
		// Redis records expire JOB_TTL after creation, so a fetch must finish
		// well inside it or its terminal write finds no record.
		if c.FetchTimeout == 0 || c.FetchTimeout+c.SettleDelay >= c.JobTTL {
			errs = append(errs, fmt.Errorf("FETCH_TIMEOUT (%v) must be set and shorter than JOB_TTL (%v) for the redis store", c.FetchTimeout, c.JobTTL))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend))
	}
	if len(c.KafkaBrokers) > 0 && c.KafkaTopic == "" {
		errs = append(errs, errors.New("KAFKA_TOPIC is required when KAFKA_BROKERS is set"))
	}
	if c.PublicBaseURL != "" {
		u, err := url.Parse(c.PublicBaseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, fmt.Errorf("PUBLIC_BASE_URL must be an absolute http(s) URL, got %q", c.PublicBaseURL))
		}
	}

	return errors.Join(errs...)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvAsList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
