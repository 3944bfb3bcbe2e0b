package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the grade book API.
type Config struct {
	AppName                string
	AppEnv                 string
	AppPort                string
	DatabaseURL            string
	RedisURL               string
	NATSURL                string
	NATSSubjectPrefix      string
	JWTSecret              string
	CloudinaryCloudName    string
	CloudinaryAPIKey       string
	CloudinaryAPISecret    string
	CloudinaryUploadFolder string
	DashboardCacheTTL      time.Duration
	RosterCacheTTL         time.Duration
	AutoSaveInterval       time.Duration
	SavedBannerTTL         time.Duration
	ImportMaxBytes         int64
	ImportRateLimit        int
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// AuthEnabled reports whether bearer tokens are required on write routes.
func (c Config) AuthEnabled() bool {
	return c.JWTSecret != ""
}

// CloudinaryEnabled reports whether generated exports are uploaded.
func (c Config) CloudinaryEnabled() bool {
	return c.CloudinaryCloudName != "" && c.CloudinaryAPIKey != "" && c.CloudinaryAPISecret != ""
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("GRADEBOOK")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "Gradebook API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("nats.subject_prefix", "gradebook")
	v.SetDefault("cloudinary.folder", "gradebook/exports")
	v.SetDefault("dashboard.cache_ttl", "5m")
	v.SetDefault("roster.cache_ttl", "1m")
	v.SetDefault("autosave.interval", "30s")
	v.SetDefault("autosave.saved_banner_ttl", "3s")
	v.SetDefault("import.max_bytes", 5<<20)
	v.SetDefault("import.rate_limit", 10)

	durations := map[string]time.Duration{}
	for _, key := range []string{"dashboard.cache_ttl", "roster.cache_ttl", "autosave.interval", "autosave.saved_banner_ttl"} {
		parsed, err := time.ParseDuration(v.GetString(key))
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", key, err)
		}
		if parsed <= 0 {
			return Config{}, fmt.Errorf("invalid %s: must be positive", key)
		}
		durations[key] = parsed
	}

	cfg := Config{
		AppName:                v.GetString("app.name"),
		AppEnv:                 v.GetString("app.env"),
		AppPort:                v.GetString("app.port"),
		DatabaseURL:            v.GetString("database.url"),
		RedisURL:               v.GetString("redis.url"),
		NATSURL:                v.GetString("nats.url"),
		NATSSubjectPrefix:      strings.Trim(v.GetString("nats.subject_prefix"), "."),
		JWTSecret:              v.GetString("jwt.secret"),
		CloudinaryCloudName:    v.GetString("cloudinary.cloud_name"),
		CloudinaryAPIKey:       v.GetString("cloudinary.api_key"),
		CloudinaryAPISecret:    v.GetString("cloudinary.api_secret"),
		CloudinaryUploadFolder: v.GetString("cloudinary.folder"),
		DashboardCacheTTL:      durations["dashboard.cache_ttl"],
		RosterCacheTTL:         durations["roster.cache_ttl"],
		AutoSaveInterval:       durations["autosave.interval"],
		SavedBannerTTL:         durations["autosave.saved_banner_ttl"],
		ImportMaxBytes:         v.GetInt64("import.max_bytes"),
		ImportRateLimit:        v.GetInt("import.rate_limit"),
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("database url must be provided")
	}

	if cfg.ImportMaxBytes <= 0 {
		cfg.ImportMaxBytes = 5 << 20
	}

	if cfg.ImportRateLimit <= 0 {
		cfg.ImportRateLimit = 10
	}

	return cfg, nil
}
