package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requiredEnv() EnvMap {
	return EnvMap{
		"INFURA_API_KEY": "key-123",
		"DATABASE_URL":   "postgres://indexer@localhost:5432/transfers",
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(requiredEnv())
	require.NoError(t, err)

	assert.Equal(t, "key-123", cfg.InfuraAPIKey)
	assert.Equal(t, "postgres://indexer@localhost:5432/transfers", cfg.DatabaseURL)
	assert.Equal(t, 5*time.Second, cfg.PollInterval)
	assert.Equal(t, 30*time.Second, cfg.RPCTimeout)
	assert.Equal(t, int32(5), cfg.DBMaxConns)
	assert.Equal(t, time.Hour, cfg.EOACacheTTL)
	assert.Equal(t, "native-transfers", cfg.KafkaTopic)
	assert.Empty(t, cfg.KafkaBrokers)
	assert.Empty(t, cfg.HTTPAddr)
	assert.Empty(t, cfg.RedisAddr)
	assert.Equal(t, 100, cfg.LogMaxSizeMB)
	assert.Equal(t, 3, cfg.LogMaxBackups)
}

func TestLoadMissingRequired(t *testing.T) {
	for _, key := range []string{"INFURA_API_KEY", "DATABASE_URL"} {
		t.Run(key, func(t *testing.T) {
			env := requiredEnv()
			env[key] = "  "

			_, err := Load(env)
			var cfgErr *ConfigError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, key, cfgErr.Key)
			assert.ErrorIs(t, err, ErrMissing)
		})
	}
}

func TestLoadNilSource(t *testing.T) {
	_, err := Load(nil)
	require.Error(t, err)
}

func TestLoadOverrides(t *testing.T) {
	env := requiredEnv()
	env["POLL_INTERVAL"] = "1500"
	env["RPC_TIMEOUT"] = "10000"
	env["DB_MAX_CONNS"] = "8"
	env["EOA_CACHE_TTL"] = "15m"
	env["KAFKA_BROKERS"] = "kafka-1:9092, ,kafka-2:9092"
	env["KAFKA_TOPIC"] = "eoa-transfers"
	env["HTTP_ADDR"] = ":8080"
	env["REDIS_ADDR"] = "127.0.0.1:6379"
	env["LOG_LEVEL"] = "debug"

	cfg, err := Load(env)
	require.NoError(t, err)
	assert.Equal(t, 1500*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, 10*time.Second, cfg.RPCTimeout)
	assert.Equal(t, int32(8), cfg.DBMaxConns)
	assert.Equal(t, 15*time.Minute, cfg.EOACacheTTL)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "eoa-transfers", cfg.KafkaTopic)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "127.0.0.1:6379", cfg.RedisAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadInvalidValues(t *testing.T) {
	tests := map[string]string{
		"POLL_INTERVAL":   "5s",
		"RPC_TIMEOUT":     "-1",
		"DB_MAX_CONNS":    "0",
		"EOA_CACHE_TTL":   "forever",
		"LOG_MAX_BACKUPS": "-3",
		"LOG_MAX_SIZE_MB": "big",
	}
	for key, value := range tests {
		t.Run(key, func(t *testing.T) {
			env := requiredEnv()
			env[key] = value

			_, err := Load(env)
			var cfgErr *ConfigError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, key, cfgErr.Key)
		})
	}
}

func TestLoadDotEnvMissingFile(t *testing.T) {
	require.NoError(t, loadDotEnv(filepath.Join(t.TempDir(), ".env")))
}

func TestLoadDotEnvDoesNotOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("TRANSFERINDEX_TEST_A=file\nTRANSFERINDEX_TEST_B=file\n"), 0o600))
	t.Setenv("TRANSFERINDEX_TEST_A", "env")
	t.Setenv("TRANSFERINDEX_TEST_B", "")
	os.Unsetenv("TRANSFERINDEX_TEST_B")

	require.NoError(t, loadDotEnv(path))
	t.Cleanup(func() { os.Unsetenv("TRANSFERINDEX_TEST_B") })

	assert.Equal(t, "env", os.Getenv("TRANSFERINDEX_TEST_A"))
	assert.Equal(t, "file", os.Getenv("TRANSFERINDEX_TEST_B"))

	source := FromEnviron()
	value, ok := source.Lookup("TRANSFERINDEX_TEST_A")
	assert.True(t, ok)
	assert.Equal(t, "env", value)
}

func TestLoadStream(t *testing.T) {
	_, err := LoadStream(EnvMap{})
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "KAFKA_BROKERS", cfgErr.Key)

	cfg, err := LoadStream(EnvMap{"KAFKA_BROKERS": "kafka:9092"})
	require.NoError(t, err)
	assert.Equal(t, []string{"kafka:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "native-transfers", cfg.KafkaTopic)
	assert.Equal(t, "transfer-tail", cfg.KafkaGroupID)
	assert.Equal(t, 100, cfg.LogMaxSizeMB)
}

func TestLoadEOACacheTTL(t *testing.T) {
	env := requiredEnv()
	env["EOA_CACHE_TTL"] = "0s"
	_, err := Load(env)
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "EOA_CACHE_TTL", cfgErr.Key)

	env["EOA_CACHE_TTL"] = "-1s"
	cfg, err := Load(env)
	require.NoError(t, err)
	assert.Equal(t, -time.Second, cfg.EOACacheTTL)
}
