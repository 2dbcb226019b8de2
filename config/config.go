package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	LOCAL_REDIS_URL     = "redis://localhost:6379"
	DEFAULT_MODEL_PATH  = "./distilbert-base-uncased-finetuned-sst2"
	DEFAULT_MODEL_NAME  = "winegarj/distilbert-base-uncased-finetuned-sst2"
	DEFAULT_API_PREFIX  = "/project"
	DEFAULT_CACHE_TABLE = "SentimentCache"
)

type ServerConfig struct {
	Port            string
	APIPrefix       string
	ShutdownTimeout time.Duration
}

type CacheConfig struct {
	// Backend is one of valkey, dynamodb, memory or none.
	Backend     string
	RedisURL    string
	Prefix      string
	Timeout     time.Duration
	DynamoTable string
}

type AWSConfig struct {
	Region   string
	Endpoint string
}

type ClassifierConfig struct {
	// Backend is onnx or vader.
	Backend     string
	Runtime     string
	LibraryPath string
	ModelPath   string
	ModelName   string
	Download    bool
	Concurrency int
	BatchSize   int
}

type KafkaConfig struct {
	Broker          string
	PredictionTopic string
}

type Config struct {
	AppEnv     string
	LogLevel   string
	Server     ServerConfig
	Cache      CacheConfig
	AWS        AWSConfig
	Classifier ClassifierConfig
	Kafka      KafkaConfig
}

// Load reads the service configuration from the environment, falling back to
// defaults for anything unset or unparsable.
func Load() Config {
	return Config{
		AppEnv:   getEnv("APP_ENV", "dev"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		Server: ServerConfig{
			Port:            getEnv("PORT", "8000"),
			APIPrefix:       normalizePrefix(getEnv("API_PREFIX", DEFAULT_API_PREFIX)),
			ShutdownTimeout: getDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Cache: CacheConfig{
			Backend:     strings.ToLower(getEnv("CACHE_BACKEND", "valkey")),
			RedisURL:    getEnv("REDIS_URL", LOCAL_REDIS_URL),
			Prefix:      getEnv("CACHE_PREFIX", "mlapi-cache"),
			Timeout:     getDuration("CACHE_TIMEOUT", 500*time.Millisecond),
			DynamoTable: getEnv("DYNAMODB_CACHE_TABLE", DEFAULT_CACHE_TABLE),
		},
		AWS: AWSConfig{
			Region:   getEnv("AWS_REGION", "us-west-2"),
			Endpoint: os.Getenv("AWS_ENDPOINT"),
		},
		Classifier: ClassifierConfig{
			Backend:     strings.ToLower(getEnv("CLASSIFIER_BACKEND", "onnx")),
			Runtime:     strings.ToLower(getEnv("CLASSIFIER_RUNTIME", "ort")),
			LibraryPath: os.Getenv("ONNXRUNTIME_LIB_PATH"),
			ModelPath:   getEnv("MODEL_PATH", DEFAULT_MODEL_PATH),
			ModelName:   getEnv("MODEL_NAME", DEFAULT_MODEL_NAME),
			Download:    getBool("MODEL_DOWNLOAD", false),
			Concurrency: getInt("CLASSIFIER_CONCURRENCY", 1),
			BatchSize:   getInt("CLASSIFIER_BATCH_SIZE", 64),
		},
		Kafka: KafkaConfig{
			Broker:          os.Getenv("KAFKA_BROKER"),
			PredictionTopic: getEnv("KAFKA_PREDICTION_TOPIC", "sentiment-predictions"),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return defaultValue
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		slog.Warn("[Config] Invalid integer, using default",
			slog.String("key", key),
			slog.String("value", raw),
			slog.Int("default", defaultValue))
		return defaultValue
	}
	return v
}

func getBool(key string, defaultValue bool) bool {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return defaultValue
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		slog.Warn("[Config] Invalid boolean, using default",
			slog.String("key", key),
			slog.String("value", raw))
		return defaultValue
	}
	return v
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return defaultValue
	}
	v, err := time.ParseDuration(raw)
	if err != nil || v <= 0 {
		slog.Warn("[Config] Invalid duration, using default",
			slog.String("key", key),
			slog.String("value", raw),
			slog.Duration("default", defaultValue))
		return defaultValue
	}
	return v
}

func normalizePrefix(prefix string) string {
	prefix = strings.TrimRight(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		return ""
	}
	if !strings.HasPrefix(prefix, "/") {
		prefix = "/" + prefix
	}
	return prefix
}
