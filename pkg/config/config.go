package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	ClickHouse ClickHouseConfig
	NATS       NATSConfig
	AWS        AWSConfig
	Ingestion  IngestionConfig
	Detector   DetectorConfig
	Incident   IncidentConfig
	Escalation EscalationConfig
	Security   SecurityConfig
	Logging    LoggingConfig
}

type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

type DatabaseConfig struct {
	Enabled         bool
	Host            string
	Port            string
	User            string
	Password        string
	Database        string
	SSLMode         string
	AutoMigrate     bool
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

type RedisConfig struct {
	Enabled         bool
	Host            string
	Port            string
	Password        string
	DB              int
	TTL             time.Duration
	ModelMetricsTTL time.Duration
	PoolSize        int
	MinIdleConns    int
	DialTimeout     time.Duration
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
}

type ClickHouseConfig struct {
	Enabled         bool
	Addresses       []string
	Database        string
	Username        string
	Password        string
	DialTimeout     time.Duration
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	TLSEnabled      bool
}

type NATSConfig struct {
	Enabled       bool
	URL           string
	SubjectPrefix string
}

type AWSConfig struct {
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	CloudWatch      CloudWatchConfig
	S3              S3Config
}

type CloudWatchConfig struct {
	Enabled       bool
	Namespace     string
	LogGroupName  string
	LogStreamName string
	AutoCreate    bool
}

type S3Config struct {
	Enabled      bool
	Bucket       string
	Endpoint     string
	UsePathStyle bool
	KeyPrefix    string
}

type IngestionConfig struct {
	FlushInterval time.Duration
	MaxBatchSize  int
}

type DetectorConfig struct {
	HistoryCapacity int
	WindowSize      int
	MinHistory      int
	ZThreshold      float64
	ModelMinHistory int
	RetrainEvery    int
	Trees           int
	SampleSize      int
	Contamination   float64
	Seed            int64
	SeriesTTL       time.Duration
	MaxSeries       int
}

type IncidentConfig struct {
	Enabled         bool
	MinSeverity     string
	DedupWindow     time.Duration
	RulesFile       string
	MetricsCacheTTL time.Duration
}

type EscalationConfig struct {
	Enabled  bool
	Interval time.Duration
}

type SecurityConfig struct {
	AllowedOrigins []string
	AuthEnabled    bool
	AuthToken      string
	RateLimitRPS   float64
	RateLimitBurst int
}

type LoggingConfig struct {
	Level  string
	Format string
}

func Load() (*Config, error) {
	// Загружаем .env файл (игнорируем ошибку если файла нет)
	_ = godotenv.Load()

	var errs []string
	dur := func(key, def string) time.Duration {
		d, err := parseDuration(getEnv(key, def))
		if err != nil {
			errs = append(errs, fmt.Sprintf("invalid %s: %v", key, err))
		}
		return d
	}
	num := func(key string, def int) int {
		n, err := getEnvInt(key, def)
		if err != nil {
			errs = append(errs, fmt.Sprintf("invalid %s: %v", key, err))
		}
		return n
	}
	float := func(key string, def float64) float64 {
		f, err := getEnvFloat(key, def)
		if err != nil {
			errs = append(errs, fmt.Sprintf("invalid %s: %v", key, err))
		}
		return f
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnv("SERVER_PORT", "8080"),
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: dur("SERVER_SHUTDOWN_TIMEOUT", "30s"),
		},
		Database: DatabaseConfig{
			Enabled:         getEnvBool("DB_ENABLED", true),
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnv("DB_PORT", "5432"),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", "postgres"),
			Database:        getEnv("DB_NAME", "reskpoints"),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			AutoMigrate:     getEnvBool("DB_AUTO_MIGRATE", true),
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
			ConnMaxIdleTime: 10 * time.Minute,
		},
		Redis: RedisConfig{
			Enabled:         getEnvBool("REDIS_ENABLED", false),
			Host:            getEnv("REDIS_HOST", "localhost"),
			Port:            getEnv("REDIS_PORT", "6379"),
			Password:        getEnv("REDIS_PASSWORD", ""),
			DB:              num("REDIS_DB", 0),
			TTL:             dur("REDIS_TTL", "60s"),
			ModelMetricsTTL: dur("MODEL_METRICS_CACHE_TTL", "5m"),
			PoolSize:        10,
			MinIdleConns:    2,
			DialTimeout:     5 * time.Second,
			ReadTimeout:     3 * time.Second,
			WriteTimeout:    3 * time.Second,
		},
		ClickHouse: ClickHouseConfig{
			Enabled:         getEnvBool("CLICKHOUSE_ENABLED", false),
			Addresses:       splitCSV(getEnv("CLICKHOUSE_ADDRESSES", "localhost:9000")),
			Database:        getEnv("CLICKHOUSE_DATABASE", "reskpoints"),
			Username:        getEnv("CLICKHOUSE_USERNAME", "default"),
			Password:        getEnv("CLICKHOUSE_PASSWORD", ""),
			DialTimeout:     dur("CLICKHOUSE_DIAL_TIMEOUT", "10s"),
			MaxOpenConns:    num("CLICKHOUSE_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    num("CLICKHOUSE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: time.Hour,
			TLSEnabled:      getEnvBool("CLICKHOUSE_TLS_ENABLED", false),
		},
		NATS: NATSConfig{
			Enabled:       getEnvBool("NATS_ENABLED", false),
			URL:           getEnv("NATS_URL", "nats://localhost:4222"),
			SubjectPrefix: getEnv("NATS_SUBJECT_PREFIX", "reskpoints"),
		},
		AWS: AWSConfig{
			Region:          getEnv("AWS_REGION", "us-east-1"),
			Endpoint:        getEnv("AWS_ENDPOINT", ""),
			AccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
			CloudWatch: CloudWatchConfig{
				Enabled:       getEnvBool("CLOUDWATCH_ENABLED", false),
				Namespace:     getEnv("CLOUDWATCH_NAMESPACE", "ResKPoints"),
				LogGroupName:  getEnv("CLOUDWATCH_LOG_GROUP", "/reskpoints/errors"),
				LogStreamName: getEnv("CLOUDWATCH_LOG_STREAM", "ingestion"),
				AutoCreate:    getEnvBool("CLOUDWATCH_AUTO_CREATE", true),
			},
			S3: S3Config{
				Enabled:      getEnvBool("S3_ENABLED", false),
				Bucket:       getEnv("S3_BUCKET", ""),
				Endpoint:     getEnv("S3_ENDPOINT", ""),
				UsePathStyle: getEnvBool("S3_USE_PATH_STYLE", true),
				KeyPrefix:    getEnv("S3_KEY_PREFIX", "errors"),
			},
		},
		Ingestion: IngestionConfig{
			FlushInterval: dur("INGEST_FLUSH_INTERVAL", "30s"),
			MaxBatchSize:  num("INGEST_MAX_BATCH_SIZE", 1000),
		},
		Detector: DetectorConfig{
			HistoryCapacity: num("DETECTOR_HISTORY_CAPACITY", 1000),
			WindowSize:      num("DETECTOR_WINDOW_SIZE", 50),
			MinHistory:      num("DETECTOR_MIN_HISTORY", 10),
			ZThreshold:      float("DETECTOR_Z_THRESHOLD", 3.0),
			ModelMinHistory: num("DETECTOR_MODEL_MIN_HISTORY", 50),
			RetrainEvery:    num("DETECTOR_RETRAIN_EVERY", 100),
			Trees:           num("DETECTOR_TREES", 100),
			SampleSize:      num("DETECTOR_SAMPLE_SIZE", 256),
			Contamination:   float("DETECTOR_CONTAMINATION", 0.1),
			Seed:            int64(num("DETECTOR_SEED", 42)),
			SeriesTTL:       dur("DETECTOR_SERIES_TTL", "24h"),
			MaxSeries:       num("DETECTOR_MAX_SERIES", 10000),
		},
		Incident: IncidentConfig{
			Enabled:         getEnvBool("INCIDENT_BRIDGE_ENABLED", true),
			MinSeverity:     getEnv("INCIDENT_MIN_SEVERITY", "medium"),
			DedupWindow:     dur("INCIDENT_DEDUP_WINDOW", "1h"),
			RulesFile:       getEnv("TICKET_RULES_FILE", ""),
			MetricsCacheTTL: dur("TICKET_METRICS_CACHE_TTL", "60s"),
		},
		Escalation: EscalationConfig{
			Enabled:  getEnvBool("ESCALATION_ENABLED", true),
			Interval: dur("ESCALATION_INTERVAL", "300s"),
		},
		Security: SecurityConfig{
			AllowedOrigins: splitCSV(getEnv("ALLOWED_ORIGINS", "http://localhost:8080,http://127.0.0.1:8080")),
			AuthEnabled:    getEnvBool("AUTH_ENABLED", false),
			AuthToken:      getEnv("AUTH_BEARER_TOKEN", ""),
			RateLimitRPS:   float("RATE_LIMIT_RPS", 200),
			RateLimitBurst: num("RATE_LIMIT_BURST", 400),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid configuration: %s", strings.Join(errs, "; "))
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate проверяет взаимные требования между настройками.
func (c *Config) Validate() error {
	if c.Security.AuthEnabled && c.Security.AuthToken == "" {
		return fmt.Errorf("AUTH_BEARER_TOKEN is required when AUTH_ENABLED=true")
	}
	if c.AWS.S3.Enabled && strings.TrimSpace(c.AWS.S3.Bucket) == "" {
		return fmt.Errorf("S3_BUCKET is required when S3_ENABLED=true")
	}
	if c.ClickHouse.Enabled && len(c.ClickHouse.Addresses) == 0 {
		return fmt.Errorf("CLICKHOUSE_ADDRESSES is required when CLICKHOUSE_ENABLED=true")
	}
	if c.Ingestion.FlushInterval <= 0 {
		return fmt.Errorf("INGEST_FLUSH_INTERVAL must be positive")
	}
	if c.Ingestion.MaxBatchSize <= 0 {
		return fmt.Errorf("INGEST_MAX_BATCH_SIZE must be positive")
	}
	if c.Escalation.Interval <= 0 {
		return fmt.Errorf("ESCALATION_INTERVAL must be positive")
	}
	if c.Detector.Contamination <= 0 || c.Detector.Contamination >= 0.5 {
		return fmt.Errorf("DETECTOR_CONTAMINATION must be in (0, 0.5)")
	}
	return nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}

	return parsed
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	return strconv.Atoi(value)
}

func getEnvFloat(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	return strconv.ParseFloat(value, 64)
}

func splitCSV(raw string) []string {
	items := make([]string, 0)
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}

func parseDuration(s string) (time.Duration, error) {
	return time.ParseDuration(s)
}
