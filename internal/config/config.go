package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Importer  ImporterConfig  `yaml:"importer" mapstructure:"importer"`
	Analyzers AnalyzersConfig `yaml:"analyzers" mapstructure:"analyzers"`
	Workflow  WorkflowConfig  `yaml:"workflow" mapstructure:"workflow"`
	Review    ReviewConfig    `yaml:"review" mapstructure:"review"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string     `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string     `yaml:"database_url" mapstructure:"database_url"`
	Pool        PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// PoolConfig bounds the postgres connection pool.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// ImporterConfig configures the importer schedule and run limits.
type ImporterConfig struct {
	ChunkSize           int           `yaml:"chunk_size" mapstructure:"chunk_size"`
	Interval            time.Duration `yaml:"interval" mapstructure:"interval"`
	SoftTimeLimit       time.Duration `yaml:"soft_time_limit" mapstructure:"soft_time_limit"`
	SeedFile            string        `yaml:"seed_file" mapstructure:"seed_file"`
	DiagnosticsInterval time.Duration `yaml:"diagnostics_interval" mapstructure:"diagnostics_interval"`
	DiagnosticsWindow   time.Duration `yaml:"diagnostics_window" mapstructure:"diagnostics_window"`
}

// AnalyzersConfig carries the explicit per-analyzer switches and
// credentials. Switches replace the original process-wide flags.
type AnalyzersConfig struct {
	Vision     AnalyzerConfig `yaml:"vision" mapstructure:"vision"`
	Translate  AnalyzerConfig `yaml:"translate" mapstructure:"translate"`
	Toxicity   AnalyzerConfig `yaml:"toxicity" mapstructure:"toxicity"`
	SafeSearch AnalyzerConfig `yaml:"safe_search" mapstructure:"safe_search"`
}

// AnalyzerConfig enables one analyzer and names its credential.
type AnalyzerConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	APIKey  string `yaml:"api_key" mapstructure:"api_key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// WorkflowConfig holds the analysis thresholds and schedule.
type WorkflowConfig struct {
	ThreatThreshold   float64       `yaml:"threat_threshold" mapstructure:"threat_threshold"`
	ViolenceThreshold string        `yaml:"violence_threshold" mapstructure:"violence_threshold"`
	ReindexInterval   time.Duration `yaml:"reindex_interval" mapstructure:"reindex_interval"`
}

// ReviewConfig configures publishing and delivery of reviews.
type ReviewConfig struct {
	PublishDelay time.Duration `yaml:"publish_delay" mapstructure:"publish_delay"`
	CallbackURL  string        `yaml:"callback_url" mapstructure:"callback_url"`
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
	v.SetEnvPrefix("SIGNAL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.pool.max_conns", 10)
	v.SetDefault("store.pool.min_conns", 2)
	v.SetDefault("server.port", 8080)
	v.SetDefault("importer.chunk_size", 50)
	v.SetDefault("importer.interval", "30m")
	v.SetDefault("importer.soft_time_limit", "45m")
	v.SetDefault("importer.seed_file", "sources.yaml")
	v.SetDefault("importer.diagnostics_interval", "24h")
	v.SetDefault("importer.diagnostics_window", "24h")
	// Credential and URL keys default to empty so environment-only values
	// survive Unmarshal.
	for _, a := range []string{"vision", "translate", "toxicity", "safe_search"} {
		v.SetDefault("analyzers."+a+".enabled", true)
		v.SetDefault("analyzers."+a+".api_key", "")
		v.SetDefault("analyzers."+a+".base_url", "")
	}
	v.SetDefault("workflow.threat_threshold", 0.7)
	v.SetDefault("workflow.violence_threshold", "LIKELY")
	v.SetDefault("workflow.reindex_interval", "1h")
	v.SetDefault("review.publish_delay", "15m")
	v.SetDefault("review.callback_url", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

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

// Validate checks that the configuration is complete for the given run
// mode. Modes: "serve", "import", "migrate".
func (c *Config) Validate(mode string) error {
	var missing []string

	check := func(ok bool, msg string) {
		if !ok {
			missing = append(missing, msg)
		}
	}

	switch c.Store.Driver {
	case "postgres":
		check(c.Store.DatabaseURL != "", "store.database_url is required for the postgres driver")
	case "sqlite":
	default:
		missing = append(missing, "store.driver must be postgres or sqlite")
	}

	check(c.Importer.ChunkSize >= 1 && c.Importer.ChunkSize <= 500,
		"importer.chunk_size must be between 1 and 500")
	check(c.Workflow.ThreatThreshold >= 0 && c.Workflow.ThreatThreshold <= 1,
		"workflow.threat_threshold must be between 0 and 1")

	switch mode {
	case "serve":
		check(c.Server.Port > 0, "server.port must be > 0")
	case "import", "migrate":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(missing) > 0 {
		return eris.Errorf("config: invalid configuration: %s", strings.Join(missing, "; "))
	}
	return nil
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
