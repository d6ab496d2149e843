package config

import (
	"time"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Config is the root configuration for ListingScout.
type Config struct {
	Engine    EngineConfig    `mapstructure:"engine"    yaml:"engine"`
	Session   SessionConfig   `mapstructure:"session"   yaml:"session"`
	Extractor ExtractorConfig `mapstructure:"extractor" yaml:"extractor"`
	Store     StoreConfig     `mapstructure:"store"     yaml:"store"`
	Search    SearchConfig    `mapstructure:"search"    yaml:"search"`
	Lock      LockConfig      `mapstructure:"lock"      yaml:"lock"`
	RunLog    RunLogConfig    `mapstructure:"runlog"    yaml:"runlog"`
	API       APIConfig       `mapstructure:"api"       yaml:"api"`
	Logging   LoggingConfig   `mapstructure:"logging"   yaml:"logging"`
	Metrics   MetricsConfig   `mapstructure:"metrics"   yaml:"metrics"`
}

// EngineConfig controls the crawl orchestrator.
type EngineConfig struct {
	// Workers is the number of options crawled in parallel, one session each.
	Workers        int           `mapstructure:"workers"         yaml:"workers"`
	SettleDelay    time.Duration `mapstructure:"settle_delay"    yaml:"settle_delay"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
	MaxRetries     int           `mapstructure:"max_retries"     yaml:"max_retries"`
	RetryDelay     time.Duration `mapstructure:"retry_delay"     yaml:"retry_delay"`

	// URLTemplate has {page} and {query} placeholders.
	URLTemplate string `mapstructure:"url_template" yaml:"url_template"`

	// BaseURL resolves relative card links.
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`
}

// SessionConfig controls the page fetch transport.
type SessionConfig struct {
	Driver      string   `mapstructure:"driver"        yaml:"driver"` // rod, chromedp, http
	ControlURL  string   `mapstructure:"control_url"   yaml:"control_url"`
	Headless    bool     `mapstructure:"headless"      yaml:"headless"`
	Stealth     bool     `mapstructure:"stealth"       yaml:"stealth"`
	WindowSize  string   `mapstructure:"window_size"   yaml:"window_size"`
	UserDataDir string   `mapstructure:"user_data_dir" yaml:"user_data_dir"`
	UserAgents  []string `mapstructure:"user_agents"   yaml:"user_agents"`
	MaxBodySize int64    `mapstructure:"max_body_size" yaml:"max_body_size"`
}

// ExtractorConfig controls how listing cards are located in a page.
type ExtractorConfig struct {
	Type          string `mapstructure:"type"            yaml:"type"` // css, xpath
	ImageLabel    string `mapstructure:"image_label"     yaml:"image_label"`
	SoldOutLabel  string `mapstructure:"sold_out_label"  yaml:"sold_out_label"`
	InfoDelimiter string `mapstructure:"info_delimiter"  yaml:"info_delimiter"`
}

// StoreConfig controls the listing store.
type StoreConfig struct {
	Type       string        `mapstructure:"type"       yaml:"type"` // mongo, memory
	URI        string        `mapstructure:"uri"        yaml:"uri"`
	Database   string        `mapstructure:"database"   yaml:"database"`
	Collection string        `mapstructure:"collection" yaml:"collection"`
	Timeout    time.Duration `mapstructure:"timeout"    yaml:"timeout"`
}

// SearchConfig controls the query path.
type SearchConfig struct {
	Timeout     time.Duration `mapstructure:"timeout"      yaml:"timeout"`
	DefaultSize int           `mapstructure:"default_size" yaml:"default_size"`
	MaxSize     int           `mapstructure:"max_size"     yaml:"max_size"`
}

// LockConfig controls the cross-process crawl lock.
type LockConfig struct {
	Enabled   bool          `mapstructure:"enabled"    yaml:"enabled"`
	RedisAddr string        `mapstructure:"redis_addr" yaml:"redis_addr"`
	Password  string        `mapstructure:"password"   yaml:"password"`
	DB        int           `mapstructure:"db"         yaml:"db"`
	TTL       time.Duration `mapstructure:"ttl"        yaml:"ttl"`
}

// RunLogConfig controls the Postgres crawl run audit log.
type RunLogConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	DSN     string `mapstructure:"dsn"     yaml:"dsn"`
}

// APIConfig controls the HTTP API server.
type APIConfig struct {
	Port           int           `mapstructure:"port"            yaml:"port"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// MetricsConfig controls Prometheus metrics.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Port    int    `mapstructure:"port"    yaml:"port"`
	Path    string `mapstructure:"path"    yaml:"path"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Engine: EngineConfig{
			Workers:        1,
			SettleDelay:    3 * time.Second,
			RequestTimeout: 30 * time.Second,
			MaxRetries:     2,
			RetryDelay:     time.Second,
			URLTemplate:    "https://m.bunjang.co.kr/search/products?order=price_asc&page={page}&q={query}",
			BaseURL:        "https://m.bunjang.co.kr",
		},
		Session: SessionConfig{
			Driver:   "rod",
			Headless: true,
			Stealth:  true,
			UserAgents: []string{
				"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
				"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			},
			MaxBodySize: 10 * 1024 * 1024, // 10MB
		},
		Extractor: ExtractorConfig{
			Type:          "css",
			ImageLabel:    "상품 이미지",
			SoldOutLabel:  "판매 완료",
			InfoDelimiter: ";;;",
		},
		Store: StoreConfig{
			Type:       "mongo",
			URI:        "mongodb://localhost:27017",
			Database:   "listingscout",
			Collection: "items",
			Timeout:    10 * time.Second,
		},
		Search: SearchConfig{
			Timeout:     5 * time.Second,
			DefaultSize: 10,
			MaxSize:     100,
		},
		Lock: LockConfig{
			Enabled:   false,
			RedisAddr: "localhost:6379",
			TTL:       30 * time.Minute,
		},
		RunLog: RunLogConfig{
			Enabled: false,
			DSN:     "postgres://localhost:5432/listingscout",
		},
		API: APIConfig{
			Port:           8080,
			RequestTimeout: 10 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Port:    9090,
			Path:    "/metrics",
		},
	}
}
