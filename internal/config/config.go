package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Screenshot ScreenshotConfig `mapstructure:"screenshot"`
	Analysis   AnalysisConfig   `mapstructure:"analysis"`
	Roast      RoastConfig      `mapstructure:"roast"`
	Storage    StorageConfig    `mapstructure:"storage"`
}

type ServerConfig struct {
	Port int        `mapstructure:"port"`
	Mode string     `mapstructure:"mode"`
	CORS CORSConfig `mapstructure:"cors"`

	// AdminToken guards the admin routes. Empty leaves them open.
	AdminToken      string        `mapstructure:"admin_token"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type CORSConfig struct {
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	AllowAllOrigins bool     `mapstructure:"allow_all_origins"`
}

// ScreenshotConfig configures the imaging service used to capture landing pages.
type ScreenshotConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	AccessKey string        `mapstructure:"access_key"`
	Width     int           `mapstructure:"width"`
	Height    int           `mapstructure:"height"`
	Timeout   time.Duration `mapstructure:"timeout"`
	// Archive copies captured images into object storage.
	Archive bool `mapstructure:"archive"`
}

// AnalysisConfig configures the OpenAI-compatible critique backend.
type AnalysisConfig struct {
	Provider    string        `mapstructure:"provider"`
	Model       string        `mapstructure:"model"`
	APIKey      string        `mapstructure:"api_key"`
	BaseURL     string        `mapstructure:"base_url"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Timeout     time.Duration `mapstructure:"timeout"`
	RateLimit   float64       `mapstructure:"rate_limit"` // requests per second, 0 disables
	Burst       int           `mapstructure:"burst"`
	InspectPage bool          `mapstructure:"inspect_page"`

	// InspectTimeout bounds the page fetch inside one analysis.
	InspectTimeout time.Duration `mapstructure:"inspect_timeout"`
}

// RoastConfig configures background execution of roast jobs.
type RoastConfig struct {
	Workers        int           `mapstructure:"workers"`
	QueueSize      int           `mapstructure:"queue_size"`
	ExecuteTimeout time.Duration `mapstructure:"execute_timeout"`
	StaleAfter     time.Duration `mapstructure:"stale_after"`
	RecoverOnStart bool          `mapstructure:"recover_on_start"`
	CacheTTL       time.Duration `mapstructure:"cache_ttl"`
}

func Load(configPath string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Secrets and deployment overrides use their conventional names.
	v.BindEnv("server.admin_token", "ADMIN_TOKEN")
	v.BindEnv("database.driver", "DATABASE_DRIVER")
	v.BindEnv("database.dsn", "DATABASE_URL")
	v.BindEnv("screenshot.access_key", "APIFLASH_ACCESS_KEY")
	v.BindEnv("analysis.api_key", "OPENAI_API_KEY")
	v.BindEnv("analysis.base_url", "OPENAI_BASE_URL")
	v.BindEnv("analysis.model", "ANALYSIS_MODEL")
	v.BindEnv("storage.endpoint", "S3_ENDPOINT")
	v.BindEnv("storage.access_key", "S3_ACCESS_KEY")
	v.BindEnv("storage.secret_key", "S3_SECRET_KEY")
	v.BindEnv("storage.bucket", "S3_BUCKET")
	v.BindEnv("storage.public_url", "S3_PUBLIC_URL")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.cors.allow_all_origins", true)
	v.SetDefault("server.cors.allowed_origins", []string{})
	v.SetDefault("server.shutdown_timeout", 30*time.Second)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/roasts.db")
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("database.log_level", "warn")

	v.SetDefault("screenshot.base_url", "https://api.apiflash.com/v1/urltoimage")
	v.SetDefault("screenshot.width", 1920)
	v.SetDefault("screenshot.height", 1080)
	v.SetDefault("screenshot.timeout", 120*time.Second)
	v.SetDefault("screenshot.archive", false)

	v.SetDefault("analysis.provider", "openai")
	v.SetDefault("analysis.model", "gpt-4o-mini")
	v.SetDefault("analysis.base_url", "https://api.openai.com/v1")
	v.SetDefault("analysis.max_tokens", 4000)
	v.SetDefault("analysis.timeout", 120*time.Second)
	v.SetDefault("analysis.rate_limit", 1.0)
	v.SetDefault("analysis.burst", 2)
	v.SetDefault("analysis.inspect_page", true)
	v.SetDefault("analysis.inspect_timeout", 15*time.Second)

	v.SetDefault("roast.workers", 4)
	v.SetDefault("roast.queue_size", 100)
	v.SetDefault("roast.execute_timeout", 5*time.Minute)
	v.SetDefault("roast.stale_after", 10*time.Minute)
	v.SetDefault("roast.recover_on_start", true)
	v.SetDefault("roast.cache_ttl", 5*time.Minute)

	v.SetDefault("storage.type", "")
	v.SetDefault("storage.use_ssl", true)
	v.SetDefault("storage.bucket", "roast-screenshots")
	v.SetDefault("storage.prefix", "screenshots")
}

// Validate rejects settings the service cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("database.driver %q: must be sqlite or postgres", c.Database.Driver)
	}
	if c.Roast.Workers < 1 {
		return fmt.Errorf("roast.workers must be at least 1")
	}
	if c.Roast.QueueSize < 1 {
		return fmt.Errorf("roast.queue_size must be at least 1")
	}
	if c.Screenshot.Timeout <= 0 || c.Analysis.Timeout <= 0 {
		return fmt.Errorf("screenshot.timeout and analysis.timeout must be positive")
	}
	if c.Screenshot.Archive && !c.Storage.Enabled() {
		return fmt.Errorf("screenshot.archive requires storage.endpoint and storage.bucket")
	}
	return nil
}
