package config

import (
	"fmt"
	"net/url"
	"strings"
)

// Validate checks the configuration for invalid values.
func Validate(cfg *Config) error {
	if cfg.Engine.Workers < 1 {
		return fmt.Errorf("engine.workers must be >= 1, got %d", cfg.Engine.Workers)
	}
	if cfg.Engine.Workers > 64 {
		return fmt.Errorf("engine.workers must be <= 64, got %d", cfg.Engine.Workers)
	}
	if cfg.Engine.SettleDelay < 0 {
		return fmt.Errorf("engine.settle_delay must be >= 0")
	}
	if cfg.Engine.RequestTimeout <= 0 {
		return fmt.Errorf("engine.request_timeout must be > 0")
	}
	if cfg.Engine.MaxRetries < 0 {
		return fmt.Errorf("engine.max_retries must be >= 0, got %d", cfg.Engine.MaxRetries)
	}
	if !strings.Contains(cfg.Engine.URLTemplate, "{page}") || !strings.Contains(cfg.Engine.URLTemplate, "{query}") {
		return fmt.Errorf("engine.url_template must contain {page} and {query}, got %q", cfg.Engine.URLTemplate)
	}
	if err := ValidateURL(cfg.Engine.BaseURL); err != nil {
		return fmt.Errorf("engine.base_url: %w", err)
	}

	switch cfg.Session.Driver {
	case "rod", "chromedp", "http":
	default:
		return fmt.Errorf("session.driver must be 'rod', 'chromedp' or 'http', got %q", cfg.Session.Driver)
	}
	if cfg.Session.MaxBodySize <= 0 {
		return fmt.Errorf("session.max_body_size must be > 0")
	}

	if cfg.Extractor.Type != "css" && cfg.Extractor.Type != "xpath" {
		return fmt.Errorf("extractor.type must be 'css' or 'xpath', got %q", cfg.Extractor.Type)
	}
	if cfg.Extractor.ImageLabel == "" {
		return fmt.Errorf("extractor.image_label must not be empty")
	}
	if cfg.Extractor.InfoDelimiter == "" {
		return fmt.Errorf("extractor.info_delimiter must not be empty")
	}

	switch cfg.Store.Type {
	case "mongo":
		if cfg.Store.URI == "" {
			return fmt.Errorf("store.uri is required for the mongo store")
		}
		if cfg.Store.Database == "" || cfg.Store.Collection == "" {
			return fmt.Errorf("store.database and store.collection are required for the mongo store")
		}
	case "memory":
	default:
		return fmt.Errorf("store.type %q is not supported (valid: mongo, memory)", cfg.Store.Type)
	}
	if cfg.Store.Timeout <= 0 {
		return fmt.Errorf("store.timeout must be > 0")
	}

	if cfg.Search.Timeout <= 0 {
		return fmt.Errorf("search.timeout must be > 0")
	}
	if cfg.Search.MaxSize < 1 || cfg.Search.MaxSize > 100 {
		return fmt.Errorf("search.max_size must be 1-100, got %d", cfg.Search.MaxSize)
	}
	if cfg.Search.DefaultSize < 1 || cfg.Search.DefaultSize > cfg.Search.MaxSize {
		return fmt.Errorf("search.default_size must be 1-%d, got %d", cfg.Search.MaxSize, cfg.Search.DefaultSize)
	}

	if cfg.Lock.Enabled {
		if cfg.Lock.RedisAddr == "" {
			return fmt.Errorf("lock.redis_addr is required when lock.enabled")
		}
		if cfg.Lock.TTL <= 0 {
			return fmt.Errorf("lock.ttl must be > 0")
		}
	}

	if cfg.RunLog.Enabled && cfg.RunLog.DSN == "" {
		return fmt.Errorf("runlog.dsn is required when runlog.enabled")
	}

	if cfg.API.Port < 1 || cfg.API.Port > 65535 {
		return fmt.Errorf("api.port must be 1-65535, got %d", cfg.API.Port)
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[cfg.Logging.Level] {
		return fmt.Errorf("logging.level must be debug/info/warn/error, got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" && cfg.Logging.Format != "json" {
		return fmt.Errorf("logging.format must be 'text' or 'json', got %q", cfg.Logging.Format)
	}

	if cfg.Metrics.Enabled {
		if cfg.Metrics.Port < 1 || cfg.Metrics.Port > 65535 {
			return fmt.Errorf("metrics.port must be 1-65535, got %d", cfg.Metrics.Port)
		}
	}

	return nil
}

// ValidateURL checks if a URL string is an absolute http(s) URL.
func ValidateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("URL must have a host")
	}
	return nil
}
