package config

const defaultKafkaGroupID = "transfer-tail"

// StreamConfig configures consumers of the transfer topic.
type StreamConfig struct {
	KafkaBrokers  []string
	KafkaTopic    string
	KafkaGroupID  string
	LogLevel      string
	LogFile       string
	LogMaxSizeMB  int
	LogMaxBackups int
	OtelEndpoint  string
}

func LoadStream(source EnvSource) (StreamConfig, error) {
	if source == nil {
		return StreamConfig{}, errMissingSource
	}
	brokers := parseList(source, "KAFKA_BROKERS")
	if len(brokers) == 0 {
		return StreamConfig{}, &ConfigError{Key: "KAFKA_BROKERS", Err: ErrMissing}
	}
	logMaxSize, err := parseUintEnv(source, "LOG_MAX_SIZE_MB", defaultLogMaxSizeMB, 31)
	if err != nil {
		return StreamConfig{}, err
	}
	logMaxBackups, err := parseUintEnv(source, "LOG_MAX_BACKUPS", defaultLogMaxBackups, 31)
	if err != nil {
		return StreamConfig{}, err
	}

	groupID := lookupTrimmed(source, "KAFKA_GROUP_ID")
	if groupID == "" {
		groupID = defaultKafkaGroupID
	}
	return StreamConfig{
		KafkaBrokers:  brokers,
		KafkaTopic:    kafkaTopic(source),
		KafkaGroupID:  groupID,
		LogLevel:      lookupTrimmed(source, "LOG_LEVEL"),
		LogFile:       lookupTrimmed(source, "LOG_FILE"),
		LogMaxSizeMB:  int(logMaxSize),
		LogMaxBackups: int(logMaxBackups),
		OtelEndpoint:  lookupTrimmed(source, "OTEL_EXPORTER_OTLP_ENDPOINT"),
	}, nil
}

func kafkaTopic(source EnvSource) string {
	topic := lookupTrimmed(source, "KAFKA_TOPIC")
	if topic == "" {
		return defaultKafkaTopic
	}
	return topic
}
