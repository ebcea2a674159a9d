package config

import (
	"errors"
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

	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	CORS      CORSConfig
	Log       LogConfig
	Storage   StorageConfig
	Materials MaterialsConfig
	Backups   BackupConfig
	Reports   ReportsConfig
}

// DatabaseConfig points at the embedded SQLite file.
type DatabaseConfig struct {
	Path string
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
	CacheTTL time.Duration
}

type JWTConfig struct {
	Secret     string
	Expiration time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// StorageConfig locates the content-addressed blob stores.
type StorageConfig struct {
	DataDir         string
	MaxUploadBytes  int64
	SignedURLSecret string
	SignedURLTTL    time.Duration
}

// MaterialsConfig tunes the catalog retention policy.
type MaterialsConfig struct {
	MaxVersions int
}

// BackupConfig carries the freshness windows the destructive operations
// are gated on, plus the interval of the periodic backup loop.
type BackupConfig struct {
	Dir          string
	FullMaxAge   time.Duration
	IncMaxAge    time.Duration
	AutoInterval time.Duration
	Enabled      bool
}

// ReportsConfig toggles the owner report exports.
type ReportsConfig struct {
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
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{Path: v.GetString("SQLITE_PATH")}

	cfg.Redis = RedisConfig{
		Enabled:  v.GetBool("ENABLE_REDIS_CACHE"),
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
		CacheTTL: parseDuration(v.GetString("REDIS_CACHE_TTL"), 5*time.Minute),
	}

	cfg.JWT = JWTConfig{
		Secret:     v.GetString("JWT_SECRET"),
		Expiration: parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	maxUpload := v.GetInt64("MAX_UPLOAD_BYTES")
	if maxUpload <= 0 {
		maxUpload = 20 * 1024 * 1024
	}
	cfg.Storage = StorageConfig{
		DataDir:         v.GetString("DATA_DIR"),
		MaxUploadBytes:  maxUpload,
		SignedURLSecret: v.GetString("SIGNED_URL_SECRET"),
		SignedURLTTL:    parseDuration(v.GetString("SIGNED_URL_TTL"), 30*time.Minute),
	}

	cfg.Materials = MaterialsConfig{
		MaxVersions: v.GetInt("MATERIALS_MAX_VERSIONS"),
	}

	cfg.Backups = BackupConfig{
		Dir:          v.GetString("BACKUP_DIR"),
		FullMaxAge:   parseDuration(v.GetString("BACKUP_FULL_MAX_AGE"), 24*time.Hour),
		IncMaxAge:    parseDuration(v.GetString("BACKUP_INC_MAX_AGE"), time.Hour),
		AutoInterval: parseDuration(v.GetString("BACKUP_AUTO_INTERVAL"), time.Hour),
		Enabled:      v.GetBool("ENABLE_BACKUPS"),
	}

	cfg.Reports = ReportsConfig{Enabled: v.GetBool("ENABLE_REPORTS")}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("SQLITE_PATH", "./var/app.db")
	v.SetDefault("DATA_DIR", "./var")
	v.SetDefault("MAX_UPLOAD_BYTES", 20*1024*1024)

	v.SetDefault("ENABLE_REDIS_CACHE", false)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_CACHE_TTL", "5m")

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "24h")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("SIGNED_URL_SECRET", "dev_signed_url_secret")
	v.SetDefault("SIGNED_URL_TTL", "30m")

	v.SetDefault("MATERIALS_MAX_VERSIONS", 20)

	v.SetDefault("ENABLE_BACKUPS", false)
	v.SetDefault("BACKUP_DIR", "./var/backup")
	v.SetDefault("BACKUP_FULL_MAX_AGE", "24h")
	v.SetDefault("BACKUP_INC_MAX_AGE", "1h")
	v.SetDefault("BACKUP_AUTO_INTERVAL", "1h")

	v.SetDefault("ENABLE_REPORTS", false)
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
