package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "COVERAGE"

// Backend names.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
)

// Settings are the runtime settings of the coverage commands.
type Settings struct {
	Env            string        `mapstructure:"env"`
	LogLevel       string        `mapstructure:"log_level"`
	Backend        string        `mapstructure:"backend"`
	Dataset        string        `mapstructure:"dataset"`
	DatabaseURL    string        `mapstructure:"database_url"`
	RedisAddr      string        `mapstructure:"redis_addr"`
	RedisPassword  string        `mapstructure:"redis_password"`
	RedisDB        int           `mapstructure:"redis_db"`
	CacheTTL       time.Duration `mapstructure:"cache_ttl"`
	CurrencyPlaces int32         `mapstructure:"currency_places"`
}

var settingKeys = []string{
	"env", "log_level", "backend", "dataset", "database_url",
	"redis_addr", "redis_password", "redis_db", "cache_ttl", "currency_places",
}

// NewViper returns a viper instance with defaults and COVERAGE_* environment
// bindings. Commands bind their flags to it before calling Load.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("env", "production")
	v.SetDefault("log_level", "info")
	v.SetDefault("backend", BackendMemory)
	v.SetDefault("redis_db", 0)
	v.SetDefault("cache_ttl", "10m")
	v.SetDefault("currency_places", 0)

	for _, key := range settingKeys {
		_ = v.BindEnv(key)
	}
	return v
}

// Load reads settings from v, optionally merging a settings file.
func Load(v *viper.Viper, file string) (*Settings, error) {
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read settings file %s: %w", file, err)
		}
	}

	s := &Settings{}
	if err := v.Unmarshal(s); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}
	s.Backend = strings.ToLower(strings.TrimSpace(s.Backend))

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate checks that the selected backend is usable.
func (s *Settings) Validate() error {
	switch s.Backend {
	case BackendMemory:
		if s.Dataset == "" {
			return fmt.Errorf("the memory backend needs a dataset file (--dataset or %s_DATASET)", EnvPrefix)
		}
	case BackendPostgres:
		if s.DatabaseURL == "" {
			return fmt.Errorf("the postgres backend needs %s_DATABASE_URL", EnvPrefix)
		}
	default:
		return fmt.Errorf("unknown backend %q (want %s or %s)", s.Backend, BackendMemory, BackendPostgres)
	}
	if s.CurrencyPlaces < 0 || s.CurrencyPlaces > 8 {
		return fmt.Errorf("currency places %d is outside [0, 8]", s.CurrencyPlaces)
	}
	return nil
}

// IsDev reports whether development logging is wanted.
func (s *Settings) IsDev() bool {
	return s.Env == "development"
}

// CacheEnabled reports whether a Redis tariff cache is configured.
func (s *Settings) CacheEnabled() bool {
	return s.RedisAddr != ""
}
