package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Load reads configuration from file and environment.
// Priority (highest to lowest): env vars > config file > defaults.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigType("yaml")

	setDefaults(v, cfg)

	v.SetEnvPrefix("LISTINGSCOUT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("listingscout")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(home, ".listingscout"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		// A missing default config file is fine; an explicit one is not.
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

// setDefaults registers default values in viper so env overrides resolve.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("engine.workers", cfg.Engine.Workers)
	v.SetDefault("engine.settle_delay", cfg.Engine.SettleDelay)
	v.SetDefault("engine.request_timeout", cfg.Engine.RequestTimeout)
	v.SetDefault("engine.max_retries", cfg.Engine.MaxRetries)
	v.SetDefault("engine.retry_delay", cfg.Engine.RetryDelay)
	v.SetDefault("engine.url_template", cfg.Engine.URLTemplate)
	v.SetDefault("engine.base_url", cfg.Engine.BaseURL)

	v.SetDefault("session.driver", cfg.Session.Driver)
	v.SetDefault("session.control_url", cfg.Session.ControlURL)
	v.SetDefault("session.headless", cfg.Session.Headless)
	v.SetDefault("session.stealth", cfg.Session.Stealth)
	v.SetDefault("session.window_size", cfg.Session.WindowSize)
	v.SetDefault("session.user_data_dir", cfg.Session.UserDataDir)
	v.SetDefault("session.user_agents", cfg.Session.UserAgents)
	v.SetDefault("session.max_body_size", cfg.Session.MaxBodySize)

	v.SetDefault("extractor.type", cfg.Extractor.Type)
	v.SetDefault("extractor.image_label", cfg.Extractor.ImageLabel)
	v.SetDefault("extractor.sold_out_label", cfg.Extractor.SoldOutLabel)
	v.SetDefault("extractor.info_delimiter", cfg.Extractor.InfoDelimiter)

	v.SetDefault("store.type", cfg.Store.Type)
	v.SetDefault("store.uri", cfg.Store.URI)
	v.SetDefault("store.database", cfg.Store.Database)
	v.SetDefault("store.collection", cfg.Store.Collection)
	v.SetDefault("store.timeout", cfg.Store.Timeout)

	v.SetDefault("search.timeout", cfg.Search.Timeout)
	v.SetDefault("search.default_size", cfg.Search.DefaultSize)
	v.SetDefault("search.max_size", cfg.Search.MaxSize)

	v.SetDefault("lock.enabled", cfg.Lock.Enabled)
	v.SetDefault("lock.redis_addr", cfg.Lock.RedisAddr)
	v.SetDefault("lock.password", cfg.Lock.Password)
	v.SetDefault("lock.db", cfg.Lock.DB)
	v.SetDefault("lock.ttl", cfg.Lock.TTL)

	v.SetDefault("runlog.enabled", cfg.RunLog.Enabled)
	v.SetDefault("runlog.dsn", cfg.RunLog.DSN)

	v.SetDefault("api.port", cfg.API.Port)
	v.SetDefault("api.request_timeout", cfg.API.RequestTimeout)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.format", cfg.Logging.Format)

	v.SetDefault("metrics.enabled", cfg.Metrics.Enabled)
	v.SetDefault("metrics.port", cfg.Metrics.Port)
	v.SetDefault("metrics.path", cfg.Metrics.Path)
}
