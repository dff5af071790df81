package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store       StoreConfig       `yaml:"store" mapstructure:"store"`
	Rules       RulesConfig       `yaml:"rules" mapstructure:"rules"`
	Eligibility EligibilityConfig `yaml:"eligibility" mapstructure:"eligibility"`
	Composition CompositionConfig `yaml:"composition" mapstructure:"composition"`
	Coherence   CoherenceConfig   `yaml:"coherence" mapstructure:"coherence"`
	Import      ImportConfig      `yaml:"import" mapstructure:"import"`
	Sync        SyncConfig        `yaml:"sync" mapstructure:"sync"`
	Batch       BatchConfig       `yaml:"batch" mapstructure:"batch"`
	Server      ServerConfig      `yaml:"server" mapstructure:"server"`
	Log         LogConfig         `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// RulesConfig locates the field rule table.
type RulesConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// EligibilityConfig configures the canonical-record eligibility gate.
type EligibilityConfig struct {
	PurchaseWindowDays int `yaml:"purchase_window_days" mapstructure:"purchase_window_days"`
}

// CompositionConfig configures composition reconciliation.
type CompositionConfig struct {
	// PercentEpsilon is the absolute delta below which two percentages
	// are considered equal.
	PercentEpsilon float64 `yaml:"percent_epsilon" mapstructure:"percent_epsilon"`
	// ToleranceMin/Max bound the acceptable component percentage sum.
	ToleranceMin float64 `yaml:"tolerance_min" mapstructure:"tolerance_min"`
	ToleranceMax float64 `yaml:"tolerance_max" mapstructure:"tolerance_max"`
	// RecomputeThreshold is the minimum match score at which an incoming
	// composition is averaged into the master. Below it the submission is
	// kept standalone for review.
	RecomputeThreshold float64 `yaml:"recompute_threshold" mapstructure:"recompute_threshold"`
}

// CoherenceConfig sets the per-severity score deductions and the minimum
// score a submission needs to be accepted for canonicalization.
type CoherenceConfig struct {
	CriticalDeduction int `yaml:"critical_deduction" mapstructure:"critical_deduction"`
	WarningDeduction  int `yaml:"warning_deduction" mapstructure:"warning_deduction"`
	InfoDeduction     int `yaml:"info_deduction" mapstructure:"info_deduction"`
	AcceptThreshold   int `yaml:"accept_threshold" mapstructure:"accept_threshold"`
}

// ImportConfig configures supplier submission import.
type ImportConfig struct {
	FTPTimeoutSecs int `yaml:"ftp_timeout_secs" mapstructure:"ftp_timeout_secs"`
	SkipRows       int `yaml:"skip_rows" mapstructure:"skip_rows"`
}

// SyncConfig configures downstream propagation of canonical records.
type SyncConfig struct {
	WebhookURL     string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	RatePerSecond  float64 `yaml:"rate_per_second" mapstructure:"rate_per_second"`
	Burst          int     `yaml:"burst" mapstructure:"burst"`
	MaxAttempts    int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	TimeoutSecs    int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	DisableOutSync bool    `yaml:"disable" mapstructure:"disable"`
}

// BatchConfig configures batch resolution.
type BatchConfig struct {
	MaxConcurrentMaterials int `yaml:"max_concurrent_materials" mapstructure:"max_concurrent_materials"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("BLUELINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "blueline.db")
	v.SetDefault("rules.path", "rules.yaml")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("eligibility.purchase_window_days", 1095)
	v.SetDefault("composition.percent_epsilon", 0.1)
	v.SetDefault("composition.tolerance_min", 95.0)
	v.SetDefault("composition.tolerance_max", 105.0)
	v.SetDefault("composition.recompute_threshold", 80.0)
	v.SetDefault("coherence.critical_deduction", 40)
	v.SetDefault("coherence.warning_deduction", 15)
	v.SetDefault("coherence.info_deduction", 5)
	v.SetDefault("coherence.accept_threshold", 50)
	v.SetDefault("import.ftp_timeout_secs", 30)
	v.SetDefault("import.skip_rows", 1)
	v.SetDefault("sync.rate_per_second", 2.0)
	v.SetDefault("sync.burst", 1)
	v.SetDefault("sync.max_attempts", 3)
	v.SetDefault("sync.timeout_secs", 10)
	v.SetDefault("batch.max_concurrent_materials", 5)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
