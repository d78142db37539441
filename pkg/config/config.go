package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database      DatabaseConfig
	Redis         RedisConfig
	JWT           JWTConfig
	CORS          CORSConfig
	Log           LogConfig
	Catalog       CatalogConfig
	Sync          SyncConfig
	Proposals     ProposalConfig
	Notifications NotificationConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// CatalogConfig points the sync engine at the external course catalog.
type CatalogConfig struct {
	BaseURL       string
	Token         string
	TermType      string
	PreTermWindow time.Duration
	Timeout       time.Duration
	Concurrency   int
}

// SyncConfig controls scheduled catalog synchronisation.
type SyncConfig struct {
	ScheduleEnabled  bool
	Schedule         string
	LockTTL          time.Duration
	ProgressCacheTTL time.Duration
}

// ProposalConfig tunes meeting proposal expiry.
type ProposalConfig struct {
	DefaultExpirationMinutes int
	SweepSchedule            string
}

// NotificationConfig selects the push transport and fanout limits.
type NotificationConfig struct {
	Provider     string
	FCMEndpoint  string
	FCMServerKey string
	Concurrency  int
	Timeout      time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		var pathErr *fs.PathError
		if !errors.As(err, &notFound) && !errors.As(err, &pathErr) {
			return nil, err
		}
	}

	return fromViper(v), nil
}

func fromViper(v *viper.Viper) *Config {
	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Enabled:  v.GetBool("ENABLE_REDIS"),
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{Secret: v.GetString("JWT_SECRET")}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	concurrency := v.GetInt("CATALOG_CONCURRENCY")
	if concurrency <= 0 {
		concurrency = 1
	}
	cfg.Catalog = CatalogConfig{
		BaseURL:       strings.TrimRight(v.GetString("CATALOG_BASE_URL"), "/"),
		Token:         v.GetString("CATALOG_TOKEN"),
		TermType:      v.GetString("CATALOG_TERM_TYPE"),
		PreTermWindow: parseDuration(v.GetString("CATALOG_PRETERM_WINDOW"), 14*24*time.Hour),
		Timeout:       parseDuration(v.GetString("CATALOG_TIMEOUT"), 30*time.Second),
		Concurrency:   concurrency,
	}

	cfg.Sync = SyncConfig{
		ScheduleEnabled:  v.GetBool("ENABLE_SYNC_SCHEDULE"),
		Schedule:         v.GetString("SYNC_SCHEDULE"),
		LockTTL:          parseDuration(v.GetString("SYNC_LOCK_TTL"), 2*time.Hour),
		ProgressCacheTTL: parseDuration(v.GetString("SYNC_PROGRESS_CACHE_TTL"), 15*time.Second),
	}

	expiration := v.GetInt("PROPOSAL_DEFAULT_EXPIRATION_MINUTES")
	if expiration <= 0 {
		expiration = 60
	}
	cfg.Proposals = ProposalConfig{
		DefaultExpirationMinutes: expiration,
		SweepSchedule:            v.GetString("PROPOSAL_SWEEP_SCHEDULE"),
	}

	pushConcurrency := v.GetInt("PUSH_CONCURRENCY")
	if pushConcurrency <= 0 {
		pushConcurrency = 8
	}
	cfg.Notifications = NotificationConfig{
		Provider:     strings.ToLower(v.GetString("PUSH_PROVIDER")),
		FCMEndpoint:  v.GetString("FCM_ENDPOINT"),
		FCMServerKey: v.GetString("FCM_SERVER_KEY"),
		Concurrency:  pushConcurrency,
		Timeout:      parseDuration(v.GetString("PUSH_TIMEOUT"), 10*time.Second),
	}

	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "gtcollab")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("ENABLE_REDIS", true)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("CATALOG_BASE_URL", "https://m.gatech.edu/api/coursecatalog")
	v.SetDefault("CATALOG_TOKEN", "")
	v.SetDefault("CATALOG_TERM_TYPE", "2")
	v.SetDefault("CATALOG_PRETERM_WINDOW", "336h")
	v.SetDefault("CATALOG_TIMEOUT", "30s")
	v.SetDefault("CATALOG_CONCURRENCY", 4)

	v.SetDefault("ENABLE_SYNC_SCHEDULE", false)
	v.SetDefault("SYNC_SCHEDULE", "0 3 * * *")
	v.SetDefault("SYNC_LOCK_TTL", "2h")
	v.SetDefault("SYNC_PROGRESS_CACHE_TTL", "15s")

	v.SetDefault("PROPOSAL_DEFAULT_EXPIRATION_MINUTES", 60)
	v.SetDefault("PROPOSAL_SWEEP_SCHEDULE", "@every 1m")

	v.SetDefault("PUSH_PROVIDER", "log")
	v.SetDefault("FCM_ENDPOINT", "https://fcm.googleapis.com/fcm/send")
	v.SetDefault("FCM_SERVER_KEY", "")
	v.SetDefault("PUSH_CONCURRENCY", 8)
	v.SetDefault("PUSH_TIMEOUT", "10s")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
