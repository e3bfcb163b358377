// Package config loads and validates pipeline configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides, e.g. YACHTFEEDS_HTTP_TIMEOUT_SECONDS.
const EnvPrefix = "YACHTFEEDS"

// Config captures all pipeline configuration knobs loaded via Viper.
type Config struct {
	Logging   LoggingConfig   `mapstructure:"logging"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Throttle  ThrottleConfig  `mapstructure:"throttle"`
	Headless  HeadlessConfig  `mapstructure:"headless"`
	Detector  DetectorConfig  `mapstructure:"detector"`
	Discovery DiscoveryConfig `mapstructure:"discovery"`
	Entries   EntriesConfig   `mapstructure:"entries"`
	Search    SearchConfig    `mapstructure:"search"`
	Output    OutputConfig    `mapstructure:"output"`
	Storage   StorageConfig   `mapstructure:"storage"`
	DB        DBConfig        `mapstructure:"db"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

// LoggingConfig toggles zap development features and the minimum level.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// HTTPConfig configures the resilient client.
type HTTPConfig struct {
	UserAgent              string `mapstructure:"user_agent"`
	TimeoutSeconds         int    `mapstructure:"timeout_seconds"`
	MaxAttempts            int    `mapstructure:"max_attempts"`
	BackoffInitialMs       int    `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs           int    `mapstructure:"backoff_max_ms"`
	RespectRobots          bool   `mapstructure:"respect_robots"`
	BreakerThreshold       int    `mapstructure:"breaker_threshold"`
	BreakerCooldownSeconds int    `mapstructure:"breaker_cooldown_seconds"`
}

// Timeout is the per-request timeout.
func (c HTTPConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// BackoffInitial is the base retry delay.
func (c HTTPConfig) BackoffInitial() time.Duration {
	return time.Duration(c.BackoffInitialMs) * time.Millisecond
}

// BackoffMax caps retry delays, including Retry-After.
func (c HTTPConfig) BackoffMax() time.Duration {
	return time.Duration(c.BackoffMaxMs) * time.Millisecond
}

// BreakerCooldown is how long an open breaker rejects a host.
func (c HTTPConfig) BreakerCooldown() time.Duration {
	return time.Duration(c.BreakerCooldownSeconds) * time.Second
}

// ThrottleConfig sets the pause taken before every request.
type ThrottleConfig struct {
	BaseMs   int `mapstructure:"base_ms"`
	JitterMs int `mapstructure:"jitter_ms"`
}

// Base is the fixed part of the pause.
func (c ThrottleConfig) Base() time.Duration { return time.Duration(c.BaseMs) * time.Millisecond }

// Jitter is the random part of the pause.
func (c ThrottleConfig) Jitter() time.Duration { return time.Duration(c.JitterMs) * time.Millisecond }

// HeadlessConfig configures the browser fallback.
type HeadlessConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	MaxParallel       int     `mapstructure:"max_parallel"`
	NavTimeoutSeconds int     `mapstructure:"nav_timeout_seconds"`
	ProxyServer       string  `mapstructure:"proxy_server"`
	DomainQPS         float64 `mapstructure:"domain_qps"`
}

// NavTimeout bounds one browser navigation.
func (c HeadlessConfig) NavTimeout() time.Duration {
	return time.Duration(c.NavTimeoutSeconds) * time.Second
}

// DetectorConfig tunes bot-challenge detection. Empty lists use built-in
// defaults.
type DetectorConfig struct {
	ChallengeStatuses []int    `mapstructure:"challenge_statuses"`
	Markers           []string `mapstructure:"markers"`
	// ScriptShell also promotes client-rendered pages to the browser.
	ScriptShell          bool `mapstructure:"script_shell"`
	ScriptShellMaxLength int  `mapstructure:"script_shell_max_length"`
}

// DiscoveryConfig tunes the feed discovery strategies.
type DiscoveryConfig struct {
	// FeedFinder is "heuristic" or "none".
	FeedFinder             string   `mapstructure:"feed_finder"`
	FinderMaxChecks        int      `mapstructure:"finder_max_checks"`
	DefaultPaths           []string `mapstructure:"default_paths"`
	ExtensionProbes        []string `mapstructure:"extension_probes"`
	AnchorTokens           []string `mapstructure:"anchor_tokens"`
	ValidationCacheMinutes int      `mapstructure:"validation_cache_minutes"`
	// WaybackFallback mines the newest archived homepage when the live one is empty.
	WaybackFallback bool   `mapstructure:"wayback_fallback"`
	WaybackEndpoint string `mapstructure:"wayback_endpoint"`
}

// ValidationCacheTTL is how long candidate verdicts are remembered.
func (c DiscoveryConfig) ValidationCacheTTL() time.Duration {
	return time.Duration(c.ValidationCacheMinutes) * time.Minute
}

// EntriesConfig bounds entry collection.
type EntriesConfig struct {
	Limit int `mapstructure:"limit"`
}

// SearchConfig drives upstream domain discovery.
type SearchConfig struct {
	Queries     []string `mapstructure:"queries"`
	ResultCount int      `mapstructure:"result_count"`
	Whitelist   []string `mapstructure:"whitelist"`
	Blacklist   []string `mapstructure:"blacklist"`
	APIKey      string   `mapstructure:"api_key"`
	CX          string   `mapstructure:"cx"`
	Endpoint    string   `mapstructure:"endpoint"`
}

// OutputConfig names the artifacts a run writes.
type OutputConfig struct {
	Dir         string `mapstructure:"dir"`
	FeedsFile   string `mapstructure:"feeds_file"`
	RecordsFile string `mapstructure:"records_file"`
	CSVFile     string `mapstructure:"csv_file"`
	XLSXFile    string `mapstructure:"xlsx_file"`
	ReportFile  string `mapstructure:"report_file"`
}

// StorageConfig selects where artifacts go.
type StorageConfig struct {
	// Provider stores run artifacts: "local", "memory" or "gcs".
	Provider string `mapstructure:"provider"`
	// SyncProvider mirrors artifacts after a run: "none", "memory" or "gcs".
	SyncProvider string `mapstructure:"sync_provider"`
	GCSBucket    string `mapstructure:"gcs_bucket"`
	Prefix       string `mapstructure:"prefix"`
}

// DBConfig controls the record store.
type DBConfig struct {
	// Provider is "postgres" or "none".
	Provider string `mapstructure:"provider"`
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// PubSubConfig holds the run-notification topic. An empty topic keeps
// notifications in memory.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// MetricsConfig configures the Pushgateway push at the end of a run.
type MetricsConfig struct {
	PushgatewayURL string `mapstructure:"pushgateway_url"`
	Job            string `mapstructure:"job"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "info")
	v.SetDefault("http.user_agent",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/118 Safari/537.36")
	v.SetDefault("http.timeout_seconds", 10)
	v.SetDefault("http.max_attempts", 5)
	v.SetDefault("http.backoff_initial_ms", 1000)
	v.SetDefault("http.backoff_max_ms", 30000)
	v.SetDefault("http.respect_robots", false)
	v.SetDefault("http.breaker_threshold", 5)
	v.SetDefault("http.breaker_cooldown_seconds", 3600)
	v.SetDefault("throttle.base_ms", 200)
	v.SetDefault("throttle.jitter_ms", 600)
	v.SetDefault("headless.enabled", true)
	v.SetDefault("headless.max_parallel", 2)
	v.SetDefault("headless.nav_timeout_seconds", 15)
	v.SetDefault("headless.proxy_server", "")
	v.SetDefault("headless.domain_qps", 0)
	v.SetDefault("detector.challenge_statuses", []int{})
	v.SetDefault("detector.markers", []string{})
	v.SetDefault("detector.script_shell", false)
	v.SetDefault("detector.script_shell_max_length", 2048)
	v.SetDefault("discovery.feed_finder", "heuristic")
	v.SetDefault("discovery.finder_max_checks", 25)
	v.SetDefault("discovery.default_paths", []string{})
	v.SetDefault("discovery.extension_probes", []string{})
	v.SetDefault("discovery.anchor_tokens", []string{})
	v.SetDefault("discovery.validation_cache_minutes", 10)
	v.SetDefault("discovery.wayback_fallback", false)
	v.SetDefault("discovery.wayback_endpoint", "https://web.archive.org")
	v.SetDefault("entries.limit", 20)
	v.SetDefault("search.queries", []string{})
	v.SetDefault("search.result_count", 10)
	v.SetDefault("search.whitelist", []string{})
	v.SetDefault("search.blacklist", []string{})
	v.SetDefault("search.api_key", "")
	v.SetDefault("search.cx", "")
	v.SetDefault("search.endpoint", "")
	v.SetDefault("output.dir", "data")
	v.SetDefault("output.feeds_file", "feeds.json")
	v.SetDefault("output.records_file", "records.json")
	v.SetDefault("output.csv_file", "exports/yachts.csv")
	v.SetDefault("output.xlsx_file", "exports/yachts.xlsx")
	v.SetDefault("output.report_file", "dq_report.html")
	v.SetDefault("storage.provider", "local")
	v.SetDefault("storage.sync_provider", "none")
	v.SetDefault("storage.gcs_bucket", "")
	v.SetDefault("storage.prefix", "yacht-feeds")
	v.SetDefault("db.provider", "none")
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.table", "yacht_records")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "")
	v.SetDefault("metrics.pushgateway_url", "")
	v.SetDefault("metrics.job", "yacht_feeds")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.HTTP.MaxAttempts <= 0 {
		return fmt.Errorf("http.max_attempts must be > 0")
	}
	if c.HTTP.BackoffInitialMs < 0 || c.HTTP.BackoffMaxMs < c.HTTP.BackoffInitialMs {
		return fmt.Errorf("http.backoff_max_ms must be >= http.backoff_initial_ms >= 0")
	}
	if c.HTTP.BreakerThreshold < 0 {
		return fmt.Errorf("http.breaker_threshold must be >= 0")
	}
	if c.Throttle.BaseMs < 0 || c.Throttle.JitterMs < 0 {
		return fmt.Errorf("throttle.base_ms and throttle.jitter_ms must be >= 0")
	}
	if c.Headless.Enabled && c.Headless.MaxParallel <= 0 {
		return fmt.Errorf("headless.max_parallel must be > 0 when headless is enabled")
	}
	if c.Headless.DomainQPS < 0 {
		return fmt.Errorf("headless.domain_qps must be >= 0")
	}
	if c.Entries.Limit <= 0 {
		return fmt.Errorf("entries.limit must be > 0")
	}
	switch c.Discovery.FeedFinder {
	case "heuristic", "none":
	default:
		return fmt.Errorf("discovery.feed_finder must be heuristic or none, got %q", c.Discovery.FeedFinder)
	}
	switch c.Storage.Provider {
	case "local", "memory":
	case "gcs":
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket must be set when storage.provider is gcs")
		}
	default:
		return fmt.Errorf("storage.provider must be local, memory or gcs, got %q", c.Storage.Provider)
	}
	switch c.Storage.SyncProvider {
	case "none", "memory":
	case "gcs":
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket must be set when storage.sync_provider is gcs")
		}
	default:
		return fmt.Errorf("storage.sync_provider must be none, memory or gcs, got %q", c.Storage.SyncProvider)
	}
	switch c.DB.Provider {
	case "none":
	case "postgres":
		if c.DB.DSN == "" {
			return fmt.Errorf("db.dsn must be set when db.provider is postgres")
		}
	default:
		return fmt.Errorf("db.provider must be postgres or none, got %q", c.DB.Provider)
	}
	if c.PubSub.TopicName != "" && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id must be set when pubsub.topic_name is set")
	}
	if strings.TrimSpace(c.Output.FeedsFile) == "" || strings.TrimSpace(c.Output.RecordsFile) == "" {
		return fmt.Errorf("output.feeds_file and output.records_file must be set")
	}
	return nil
}
