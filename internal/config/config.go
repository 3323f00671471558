package config

import (
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/aiworkforme/outreach-engine/internal/validator"
)

// Config holds all configuration for the service
type Config struct {
	Environment string `mapstructure:"environment" validate:"required,oneof=development staging production"`
	LogLevel    string `mapstructure:"logLevel"`
	Server      struct {
		Port int `mapstructure:"port" validate:"gt=0"`
	} `mapstructure:"server"`
	Tenant struct {
		ID string `mapstructure:"id" validate:"required"`
	} `mapstructure:"tenant"`
	Database struct {
		PostgresDSN         string `mapstructure:"postgresDSN" validate:"required"`
		PostgresAutoMigrate bool   `mapstructure:"postgresAutoMigrate"`
	} `mapstructure:"database"`
	NATS struct {
		URL         string `mapstructure:"url"`
		WakeSubject string `mapstructure:"wakeSubject"` // carries newly-inserted inbound message ids
	} `mapstructure:"nats"`
	Metrics struct {
		Enabled bool `mapstructure:"enabled"`
		Port    int  `mapstructure:"port"`
	} `mapstructure:"metrics"`
	Intake    IntakeConfig    `mapstructure:"intake"`
	Dispatch  DispatchConfig  `mapstructure:"dispatch"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Media     MediaConfig     `mapstructure:"media"`
	Policy    PolicyConfig    `mapstructure:"policy"`
}

// IntakeConfig holds configuration for the inbound intake worker.
type IntakeConfig struct {
	PollInterval time.Duration `mapstructure:"pollInterval"` // fallback scan for missed notifications
	BatchSize    int           `mapstructure:"batchSize"`    // max messages processed per cycle
	PoolSize     int           `mapstructure:"poolSize"`     // concurrent message processors
	QueueSize    int           `mapstructure:"queueSize"`    // task queue buffer size
	ExpiryTime   time.Duration `mapstructure:"expiryTime"`   // idle worker expiry time
}

// DispatchConfig holds configuration for the outbound dispatch queue.
type DispatchConfig struct {
	PollInterval time.Duration `mapstructure:"pollInterval"`
	MaxRetries   int           `mapstructure:"maxRetries"`
	BackoffBase  time.Duration `mapstructure:"backoffBase"` // doubled per retry
}

// SchedulerConfig holds configuration for the scheduling loop.
type SchedulerConfig struct {
	ReviewSpec     string `mapstructure:"reviewSpec"`   // cron spec for the follow-up review pass
	DispatchSpec   string `mapstructure:"dispatchSpec"` // cron spec for the due-lead dispatch pass
	ReviewBatch    int    `mapstructure:"reviewBatch"`
	DueBatch       int    `mapstructure:"dueBatch"`
	DefaultChannel string `mapstructure:"defaultChannel"` // channel for proactive follow-up turns
}

// MediaConfig holds limits for the media preparation stage.
type MediaConfig struct {
	MaxFetchBytes   int64 `mapstructure:"maxFetchBytes"`
	MaxExtractChars int   `mapstructure:"maxExtractChars"`
}

// PolicyConfig holds tunables for the policy evaluator.
type PolicyConfig struct {
	SensitiveTerms []string `mapstructure:"sensitiveTerms"` // extends workspace-level terms
}

// LoadConfig reads configuration from file or environment variables
func LoadConfig(path string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("environment", "development")
	v.SetDefault("logLevel", "info")
	v.SetDefault("server.port", 8080)
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 2112)
	v.SetDefault("nats.wakeSubject", "v1.outreach.inbound")

	// Intake defaults
	v.SetDefault("intake.pollInterval", 15*time.Second)
	v.SetDefault("intake.batchSize", 50)
	v.SetDefault("intake.poolSize", 8)
	v.SetDefault("intake.queueSize", 1000)
	v.SetDefault("intake.expiryTime", time.Minute)

	// Dispatch defaults
	v.SetDefault("dispatch.pollInterval", 2*time.Second)
	v.SetDefault("dispatch.maxRetries", 3)
	v.SetDefault("dispatch.backoffBase", 30*time.Second)

	// Scheduler defaults
	v.SetDefault("scheduler.reviewSpec", "@every 15m")
	v.SetDefault("scheduler.dispatchSpec", "@every 1m")
	v.SetDefault("scheduler.reviewBatch", 200)
	v.SetDefault("scheduler.dueBatch", 50)
	v.SetDefault("scheduler.defaultChannel", "whatsapp")

	// Media defaults
	v.SetDefault("media.maxFetchBytes", int64(20*1024*1024))
	v.SetDefault("media.maxExtractChars", 20000)

	// Config file settings
	v.SetConfigName("default")
	v.SetConfigType("yaml")

	// Add lookup paths
	if path != "" {
		v.AddConfigPath(path)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("./internal/config")
	v.AddConfigPath("$HOME/.outreach-engine")
	v.AddConfigPath("/etc/outreach-engine")

	// Try to read from config file
	if err := v.ReadInConfig(); err != nil {
		// It's ok if config file is not found, we'll use env vars
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	// Override with environment variables
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Map environment variables to config fields
	bindEnvs(v, Config{})

	// Read directly from ENV for critical values
	if dsn := os.Getenv("POSTGRES_DSN"); dsn != "" {
		v.Set("database.postgresDSN", dsn)
	}
	if lgLevel := os.Getenv("LOG_LEVEL"); lgLevel != "" {
		v.Set("logLevel", lgLevel)
	}
	if url := os.Getenv("NATS_URL"); url != "" {
		v.Set("nats.url", url)
	}
	if tenantID := os.Getenv("TENANT_ID"); tenantID != "" {
		v.Set("tenant.id", tenantID)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	if err := validator.Validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// bindEnvs recursively binds environment variables to config struct fields
func bindEnvs(v *viper.Viper, cfg interface{}, parts ...string) {
	ifv := reflect.ValueOf(cfg)
	ift := reflect.TypeOf(cfg)
	for i := 0; i < ift.NumField(); i++ {
		fieldVal := ifv.Field(i)
		fieldType := ift.Field(i)

		tag := fieldType.Tag.Get("mapstructure")
		if tag == "" || tag == "-" {
			continue
		}

		path := append(parts, tag)
		key := strings.Join(path, ".")

		if fieldType.Type.Kind() == reflect.Struct {
			bindEnvs(v, fieldVal.Interface(), path...)
			continue
		}

		_ = v.BindEnv(key)
	}
}
