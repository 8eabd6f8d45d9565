package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultPollInterval = 5000 * time.Millisecond
	defaultRPCTimeout   = 30000 * time.Millisecond
	defaultDBMaxConns   = 5
	defaultEOACacheTTL  = time.Hour
	defaultKafkaTopic   = "native-transfers"

	defaultLogMaxSizeMB  = 100
	defaultLogMaxBackups = 3
)

type Config struct {
	InfuraAPIKey  string
	DatabaseURL   string
	PollInterval  time.Duration
	RPCTimeout    time.Duration
	DBMaxConns    int32
	LogLevel      string
	LogFile       string
	LogMaxSizeMB  int
	LogMaxBackups int
	HTTPAddr      string
	RedisAddr     string
	EOACacheTTL   time.Duration
	KafkaBrokers  []string
	KafkaTopic    string
	OtelEndpoint  string
}

// ConfigError reports a missing or unparseable environment variable.
type ConfigError struct {
	Key string
	Err error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config %s: %v", e.Key, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

var (
	ErrMissing       = errors.New("is required")
	errMissingSource = errors.New("env source is required")
)

type EnvSource interface {
	Lookup(key string) (string, bool)
}

type EnvMap map[string]string

func (e EnvMap) Lookup(key string) (string, bool) {
	value, ok := e[key]
	return value, ok
}

func FromEnviron() EnvSource {
	env := make(EnvMap)
	for _, entry := range os.Environ() {
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, "=", 2)
		if len(parts) != 2 {
			continue
		}
		env[parts[0]] = parts[1]
	}
	return env
}

func Load(source EnvSource) (Config, error) {
	if source == nil {
		return Config{}, errMissingSource
	}

	apiKey, err := requireEnv(source, "INFURA_API_KEY")
	if err != nil {
		return Config{}, err
	}
	databaseURL, err := requireEnv(source, "DATABASE_URL")
	if err != nil {
		return Config{}, err
	}

	pollInterval, err := parseMillisEnv(source, "POLL_INTERVAL", defaultPollInterval)
	if err != nil {
		return Config{}, err
	}
	rpcTimeout, err := parseMillisEnv(source, "RPC_TIMEOUT", defaultRPCTimeout)
	if err != nil {
		return Config{}, err
	}
	maxConns, err := parseUintEnv(source, "DB_MAX_CONNS", defaultDBMaxConns, 32)
	if err != nil {
		return Config{}, err
	}
	if maxConns == 0 {
		return Config{}, &ConfigError{Key: "DB_MAX_CONNS", Err: errors.New("must be positive")}
	}
	logMaxSize, err := parseUintEnv(source, "LOG_MAX_SIZE_MB", defaultLogMaxSizeMB, 31)
	if err != nil {
		return Config{}, err
	}
	logMaxBackups, err := parseUintEnv(source, "LOG_MAX_BACKUPS", defaultLogMaxBackups, 31)
	if err != nil {
		return Config{}, err
	}

	eoaCacheTTL := defaultEOACacheTTL
	if raw, ok := source.Lookup("EOA_CACHE_TTL"); ok && strings.TrimSpace(raw) != "" {
		duration, err := time.ParseDuration(strings.TrimSpace(raw))
		if err != nil {
			return Config{}, &ConfigError{Key: "EOA_CACHE_TTL", Err: err}
		}
		// a negative TTL disables the cache; zero is ambiguous
		if duration == 0 {
			return Config{}, &ConfigError{Key: "EOA_CACHE_TTL", Err: errors.New("must be non-zero, use a negative duration to disable caching")}
		}
		eoaCacheTTL = duration
	}

	return Config{
		InfuraAPIKey:  apiKey,
		DatabaseURL:   databaseURL,
		PollInterval:  pollInterval,
		RPCTimeout:    rpcTimeout,
		DBMaxConns:    int32(maxConns),
		LogLevel:      lookupTrimmed(source, "LOG_LEVEL"),
		LogFile:       lookupTrimmed(source, "LOG_FILE"),
		LogMaxSizeMB:  int(logMaxSize),
		LogMaxBackups: int(logMaxBackups),
		HTTPAddr:      lookupTrimmed(source, "HTTP_ADDR"),
		RedisAddr:     lookupTrimmed(source, "REDIS_ADDR"),
		EOACacheTTL:   eoaCacheTTL,
		KafkaBrokers:  parseList(source, "KAFKA_BROKERS"),
		KafkaTopic:    kafkaTopic(source),
		OtelEndpoint:  lookupTrimmed(source, "OTEL_EXPORTER_OTLP_ENDPOINT"),
	}, nil
}

func requireEnv(source EnvSource, key string) (string, error) {
	value, ok := source.Lookup(key)
	if !ok || strings.TrimSpace(value) == "" {
		return "", &ConfigError{Key: key, Err: ErrMissing}
	}
	return strings.TrimSpace(value), nil
}

func lookupTrimmed(source EnvSource, key string) string {
	value, _ := source.Lookup(key)
	return strings.TrimSpace(value)
}

func parseMillisEnv(source EnvSource, key string, defaultValue time.Duration) (time.Duration, error) {
	raw, ok := source.Lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return defaultValue, nil
	}
	millis, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 32)
	if err != nil {
		return 0, &ConfigError{Key: key, Err: err}
	}
	return time.Duration(millis) * time.Millisecond, nil
}

func parseUintEnv(source EnvSource, key string, defaultValue uint64, bitSize int) (uint64, error) {
	raw, ok := source.Lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseUint(strings.TrimSpace(raw), 10, bitSize)
	if err != nil {
		return 0, &ConfigError{Key: key, Err: err}
	}
	return value, nil
}

func parseList(source EnvSource, key string) []string {
	raw, ok := source.Lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return nil
	}
	var values []string
	for _, item := range strings.Split(raw, ",") {
		value := strings.TrimSpace(item)
		if value == "" {
			continue
		}
		values = append(values, value)
	}
	return values
}
