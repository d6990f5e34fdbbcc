package config

import (
	"fmt"
	"strings"

	"github.com/foreko/ingest/internal/db"

	"github.com/spf13/viper"
)

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Host           string
	Port           int
	AllowedOrigins []string
}

// ObjectStoreConfig holds settings for the raw file archive bucket.
type ObjectStoreConfig struct {
	Enabled   bool
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// LLMConfig holds settings for the column mapping model provider.
type LLMConfig struct {
	Enabled        bool
	APIKey         string
	Model          string
	BaseURL        string
	TimeoutSeconds int
}

// PipelineConfig tunes ingestion and standardization behavior.
type PipelineConfig struct {
	MaxUploadBytes      int64
	AllowedFileTypes    []string
	RowConcurrency      int
	WarningErrorCeiling int
	MigrationsPath      string

	// Confidence assigned per deterministic match strategy.
	ExactConfidence     int
	LearnedConfidence   int
	SubstringConfidence int
	FallbackConfidence  int
	// Minimum historical success rate before a learned mapping is trusted.
	LearnedMinSuccessRate float64
}

// Config is the full application configuration.
type Config struct {
	Server      ServerConfig
	Database    db.Config
	ObjectStore ObjectStoreConfig
	LLM         LLMConfig
	Pipeline    PipelineConfig
}

// Load reads config.yaml from the given path, with FOREKO_-prefixed
// environment variables overriding file values.
func Load(configPath string) (Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.SetEnvPrefix("FOREKO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
		// No config file; defaults plus env vars apply.
	}

	cfg := Config{
		Server: ServerConfig{
			Host:           v.GetString("server.host"),
			Port:           v.GetInt("server.port"),
			AllowedOrigins: v.GetStringSlice("server.allowed_origins"),
		},
		Database: db.Config{
			Host:     v.GetString("database.host"),
			Port:     v.GetInt("database.port"),
			User:     v.GetString("database.user"),
			Password: v.GetString("database.password"),
			DBName:   v.GetString("database.dbname"),
			SSLMode:  v.GetString("database.sslmode"),
		},
		ObjectStore: ObjectStoreConfig{
			Enabled:   v.GetBool("objectstore.enabled"),
			Endpoint:  v.GetString("objectstore.endpoint"),
			AccessKey: v.GetString("objectstore.access_key"),
			SecretKey: v.GetString("objectstore.secret_key"),
			Bucket:    v.GetString("objectstore.bucket"),
			UseSSL:    v.GetBool("objectstore.use_ssl"),
		},
		LLM: LLMConfig{
			Enabled:        v.GetBool("llm.enabled"),
			APIKey:         v.GetString("llm.api_key"),
			Model:          v.GetString("llm.model"),
			BaseURL:        v.GetString("llm.base_url"),
			TimeoutSeconds: v.GetInt("llm.timeout_seconds"),
		},
		Pipeline: PipelineConfig{
			MaxUploadBytes:        v.GetInt64("pipeline.max_upload_bytes"),
			AllowedFileTypes:      v.GetStringSlice("pipeline.allowed_file_types"),
			RowConcurrency:        v.GetInt("pipeline.row_concurrency"),
			WarningErrorCeiling:   v.GetInt("pipeline.warning_error_ceiling"),
			MigrationsPath:        v.GetString("pipeline.migrations_path"),
			ExactConfidence:       v.GetInt("pipeline.confidence.exact"),
			LearnedConfidence:     v.GetInt("pipeline.confidence.learned"),
			SubstringConfidence:   v.GetInt("pipeline.confidence.substring"),
			FallbackConfidence:    v.GetInt("pipeline.confidence.fallback"),
			LearnedMinSuccessRate: v.GetFloat64("pipeline.learned_min_success_rate"),
		},
	}

	if cfg.LLM.Enabled && cfg.LLM.APIKey == "" {
		return Config{}, fmt.Errorf("llm.api_key is required when llm.enabled is true")
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})

	defaults := db.DefaultConfig()
	v.SetDefault("database.host", defaults.Host)
	v.SetDefault("database.port", defaults.Port)
	v.SetDefault("database.user", defaults.User)
	v.SetDefault("database.password", defaults.Password)
	v.SetDefault("database.dbname", defaults.DBName)
	v.SetDefault("database.sslmode", defaults.SSLMode)

	v.SetDefault("objectstore.enabled", false)
	v.SetDefault("objectstore.endpoint", "localhost:9000")
	v.SetDefault("objectstore.bucket", "foreko-uploads")
	v.SetDefault("objectstore.use_ssl", false)

	v.SetDefault("llm.enabled", false)
	v.SetDefault("llm.model", "claude-3-5-haiku-20241022")
	v.SetDefault("llm.base_url", "https://api.anthropic.com/v1")
	v.SetDefault("llm.timeout_seconds", 30)

	v.SetDefault("pipeline.max_upload_bytes", int64(25*1024*1024))
	v.SetDefault("pipeline.allowed_file_types", []string{"csv", "xlsx", "xls"})
	v.SetDefault("pipeline.row_concurrency", 8)
	v.SetDefault("pipeline.warning_error_ceiling", 2)
	v.SetDefault("pipeline.migrations_path", "migrations")
	v.SetDefault("pipeline.confidence.exact", 95)
	v.SetDefault("pipeline.confidence.learned", 80)
	v.SetDefault("pipeline.confidence.substring", 75)
	v.SetDefault("pipeline.confidence.fallback", 50)
	v.SetDefault("pipeline.learned_min_success_rate", 0.7)
}
