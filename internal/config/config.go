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
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
	Analysis AnalysisConfig `yaml:"analysis" mapstructure:"analysis"`
}

// StoreConfig configures the run persistence backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// ServerConfig configures the metrics API server.
type ServerConfig struct {
	Port      int     `yaml:"port" mapstructure:"port"`
	RateLimit float64 `yaml:"rate_limit" mapstructure:"rate_limit"` // requests per second
	RateBurst int     `yaml:"rate_burst" mapstructure:"rate_burst"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// AnalysisConfig supplies the business rules for a metrics computation: the
// analysis window, the locations actually being sold, the asking price, and
// the fallback constants used when source data is absent.
type AnalysisConfig struct {
	WindowStart            string   `yaml:"window_start" mapstructure:"window_start"` // YYYY-MM-DD
	WindowEnd              string   `yaml:"window_end" mapstructure:"window_end"`
	Locations              []string `yaml:"locations" mapstructure:"locations"`
	AskingPrice            float64  `yaml:"asking_price" mapstructure:"asking_price"`
	EBITDAMarginTarget     float64  `yaml:"ebitda_margin_target" mapstructure:"ebitda_margin_target"`
	EquipmentFallbackValue float64  `yaml:"equipment_fallback_value" mapstructure:"equipment_fallback_value"`
	AnnualizeMonths        int      `yaml:"annualize_months" mapstructure:"annualize_months"`
	RevenuePatterns        []string `yaml:"revenue_patterns" mapstructure:"revenue_patterns"`
	ExcludePatterns        []string `yaml:"exclude_patterns" mapstructure:"exclude_patterns"`
}

// Window parses the configured analysis window.
func (a AnalysisConfig) Window() (start, end time.Time, err error) {
	start, err = time.Parse("2006-01-02", a.WindowStart)
	if err != nil {
		return start, end, eris.Wrapf(err, "config: parse window_start %q", a.WindowStart)
	}
	end, err = time.Parse("2006-01-02", a.WindowEnd)
	if err != nil {
		return start, end, eris.Wrapf(err, "config: parse window_end %q", a.WindowEnd)
	}
	if end.Before(start) {
		return start, end, eris.Errorf("config: window_end %s before window_start %s", a.WindowEnd, a.WindowStart)
	}
	return start, end, nil
}

// InScope reports whether a statement column belongs to a configured
// in-scope location. Matching is case-insensitive on trimmed names.
func (a AnalysisConfig) InScope(column string) bool {
	c := strings.TrimSpace(column)
	for _, loc := range a.Locations {
		if strings.EqualFold(c, strings.TrimSpace(loc)) {
			return true
		}
	}
	return false
}

// Merge overlays the non-zero fields of override, typically a deal file's
// embedded analysis settings, onto a.
func (a AnalysisConfig) Merge(override *AnalysisConfig) AnalysisConfig {
	if override == nil {
		return a
	}
	if override.WindowStart != "" {
		a.WindowStart = override.WindowStart
	}
	if override.WindowEnd != "" {
		a.WindowEnd = override.WindowEnd
	}
	if len(override.Locations) > 0 {
		a.Locations = override.Locations
	}
	if override.AskingPrice > 0 {
		a.AskingPrice = override.AskingPrice
	}
	if override.EBITDAMarginTarget > 0 {
		a.EBITDAMarginTarget = override.EBITDAMarginTarget
	}
	if override.EquipmentFallbackValue > 0 {
		a.EquipmentFallbackValue = override.EquipmentFallbackValue
	}
	if override.AnnualizeMonths > 0 {
		a.AnnualizeMonths = override.AnnualizeMonths
	}
	if len(override.RevenuePatterns) > 0 {
		a.RevenuePatterns = override.RevenuePatterns
	}
	if len(override.ExcludePatterns) > 0 {
		a.ExcludePatterns = override.ExcludePatterns
	}
	return a
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("SALEREADY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "saleready.db")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.rate_limit", 10.0)
	v.SetDefault("server.rate_burst", 20)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("analysis.ebitda_margin_target", 0.15)
	v.SetDefault("analysis.equipment_fallback_value", 125000.0)
	v.SetDefault("analysis.annualize_months", 12)

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
