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

// Store backends for the remote document store collaborator.
const (
	StoreBackendMemory   = "memory"
	StoreBackendPostgres = "postgres"
	StoreBackendKV       = "kv"
)

// Object store backends for record images.
const (
	ObjectStoreLocal = "local"
	ObjectStoreS3    = "s3"
)

// Upload failure policies.
const (
	UploadPolicyAbort    = "abort"
	UploadPolicyContinue = "continue"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database    DatabaseConfig
	Redis       RedisConfig
	JWT         JWTConfig
	CORS        CORSConfig
	Log         LogConfig
	Store       StoreConfig
	ObjectStore ObjectStoreConfig
	Upload      UploadConfig
	Retry       RetryConfig
	Session     SessionConfig
	Exports     ExportsConfig
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
	AutoMigrate  bool
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret              string
	Expiration          time.Duration
	PasswordResetExpiry time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// StoreConfig selects where collections are persisted.
type StoreConfig struct {
	Backend     string
	KVBackend   string
	KVKeyPrefix string
}

// ObjectStoreConfig selects where record images are uploaded.
type ObjectStoreConfig struct {
	Backend         string
	Dir             string
	PublicBaseURL   string
	SignedURLSecret string
	SignedURLTTL    time.Duration
	S3              S3Config
}

// S3Config carries the bucket coordinates for the S3 object store.
type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

// UploadConfig controls how image uploads behave during record writes.
type UploadConfig struct {
	FailurePolicy string
	MaxBytes      int64
}

// RetryConfig is the caller-level backoff applied to refresh jobs.
type RetryConfig struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
}

// SessionConfig lists what a viewer session mirrors after sign-in.
type SessionConfig struct {
	Collections    []string
	RefreshWorkers int
}

// ExportsConfig gates the roster export endpoint.
type ExportsConfig struct {
	Enabled bool
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
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
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
		AutoMigrate:  v.GetBool("DB_AUTO_MIGRATE"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:              v.GetString("JWT_SECRET"),
		Expiration:          parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
		PasswordResetExpiry: parseDuration(v.GetString("PASSWORD_RESET_EXPIRATION"), time.Hour),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Store = StoreConfig{
		Backend:     oneOf(v.GetString("STORE_BACKEND"), StoreBackendMemory, StoreBackendMemory, StoreBackendPostgres, StoreBackendKV),
		KVBackend:   oneOf(v.GetString("KV_BACKEND"), "memory", "memory", "redis"),
		KVKeyPrefix: v.GetString("KV_KEY_PREFIX"),
	}

	cfg.ObjectStore = ObjectStoreConfig{
		Backend:         oneOf(v.GetString("OBJECT_STORE_BACKEND"), ObjectStoreLocal, ObjectStoreLocal, ObjectStoreS3),
		Dir:             v.GetString("OBJECT_STORE_DIR"),
		PublicBaseURL:   strings.TrimRight(v.GetString("OBJECT_STORE_PUBLIC_URL"), "/"),
		SignedURLSecret: v.GetString("OBJECT_STORE_SIGNED_URL_SECRET"),
		SignedURLTTL:    parseDuration(v.GetString("OBJECT_STORE_SIGNED_URL_TTL"), 7*24*time.Hour),
		S3: S3Config{
			Bucket:          v.GetString("S3_BUCKET"),
			Region:          v.GetString("S3_REGION"),
			Endpoint:        v.GetString("S3_ENDPOINT"),
			AccessKeyID:     v.GetString("S3_ACCESS_KEY_ID"),
			SecretAccessKey: v.GetString("S3_SECRET_ACCESS_KEY"),
		},
	}

	maxUpload := v.GetInt64("UPLOAD_MAX_BYTES")
	if maxUpload <= 0 {
		maxUpload = 5 * 1024 * 1024
	}
	cfg.Upload = UploadConfig{
		FailurePolicy: oneOf(v.GetString("UPLOAD_FAILURE_POLICY"), UploadPolicyAbort, UploadPolicyAbort, UploadPolicyContinue),
		MaxBytes:      maxUpload,
	}

	multiplier := v.GetFloat64("RETRY_MULTIPLIER")
	if multiplier < 1 {
		multiplier = 2
	}
	cfg.Retry = RetryConfig{
		MaxAttempts:    v.GetInt("RETRY_MAX_ATTEMPTS"),
		InitialBackoff: parseDuration(v.GetString("RETRY_INITIAL_BACKOFF"), 200*time.Millisecond),
		MaxBackoff:     parseDuration(v.GetString("RETRY_MAX_BACKOFF"), 5*time.Second),
		Multiplier:     multiplier,
	}

	cfg.Session = SessionConfig{
		Collections:    splitAndTrim(v.GetString("SESSION_COLLECTIONS")),
		RefreshWorkers: v.GetInt("REFRESH_WORKERS"),
	}

	cfg.Exports = ExportsConfig{Enabled: v.GetBool("ENABLE_EXPORTS")}

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
	v.SetDefault("DB_NAME", "educore")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_AUTO_MIGRATE", true)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "24h")
	v.SetDefault("PASSWORD_RESET_EXPIRATION", "1h")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("STORE_BACKEND", StoreBackendMemory)
	v.SetDefault("KV_BACKEND", "memory")
	v.SetDefault("KV_KEY_PREFIX", "educore:")

	v.SetDefault("OBJECT_STORE_BACKEND", ObjectStoreLocal)
	v.SetDefault("OBJECT_STORE_DIR", "./uploads")
	v.SetDefault("OBJECT_STORE_PUBLIC_URL", "http://localhost:8080/files")
	v.SetDefault("OBJECT_STORE_SIGNED_URL_SECRET", "dev_uploads_secret")
	v.SetDefault("OBJECT_STORE_SIGNED_URL_TTL", "168h")
	v.SetDefault("S3_BUCKET", "")
	v.SetDefault("S3_REGION", "us-east-1")
	v.SetDefault("S3_ENDPOINT", "")
	v.SetDefault("S3_ACCESS_KEY_ID", "")
	v.SetDefault("S3_SECRET_ACCESS_KEY", "")

	v.SetDefault("UPLOAD_FAILURE_POLICY", UploadPolicyAbort)
	v.SetDefault("UPLOAD_MAX_BYTES", 5*1024*1024)

	v.SetDefault("RETRY_MAX_ATTEMPTS", 3)
	v.SetDefault("RETRY_INITIAL_BACKOFF", "200ms")
	v.SetDefault("RETRY_MAX_BACKOFF", "5s")
	v.SetDefault("RETRY_MULTIPLIER", 2.0)

	v.SetDefault("SESSION_COLLECTIONS", "students,teachers,announcements")
	v.SetDefault("REFRESH_WORKERS", 2)

	v.SetDefault("ENABLE_EXPORTS", true)
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

// oneOf lower-cases raw and falls back when it is not an allowed value.
func oneOf(raw, fallback string, allowed ...string) string {
	value := strings.ToLower(strings.TrimSpace(raw))
	for _, a := range allowed {
		if value == a {
			return value
		}
	}
	return fallback
}
