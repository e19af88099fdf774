package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the complete application configuration.
type Config struct {
	Store      StoreConfig     `mapstructure:"store"`
	Logging    LoggingConfig   `mapstructure:"logging"`
	Cache      CacheConfig     `mapstructure:"cache"`
	Canonical  CanonicalConfig `mapstructure:"canonical"`
	TitleRules []TitleRule     `mapstructure:"title_rules"`
	Categories []CategoryRule  `mapstructure:"categories"`
	Metrics    MetricsConfig   `mapstructure:"metrics"`
}

// StoreConfig selects and configures the event store backend.
type StoreConfig struct {
	Type  string      `mapstructure:"type"` // "memory" or "redis"
	Redis RedisConfig `mapstructure:"redis"`
}

// RedisConfig defines the Redis backend connection.
type RedisConfig struct {
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	Password    string `mapstructure:"password"`
	DB          int    `mapstructure:"db"`
	PoolSize    int    `mapstructure:"pool_size"`
	DialTimeout string `mapstructure:"dial_timeout"`
	ReadTimeout string `mapstructure:"read_timeout"`
}

// LoggingConfig defines logging behavior.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // "json" or "console"
}

// CacheConfig defines the bucket discovery cache.
type CacheConfig struct {
	BucketTTL string `mapstructure:"bucket_ttl"`
}

// TTL parses the discovery cache TTL, falling back to 30s.
func (c CacheConfig) TTL() time.Duration {
	ttl, err := time.ParseDuration(c.BucketTTL)
	if err != nil || ttl <= 0 {
		return 30 * time.Second
	}
	return ttl
}

// CanonicalConfig maps window app names onto the browser and editor
// bucket kinds. Browser/editor streams are only trusted for the
// sub-periods in which one of these apps held window focus.
type CanonicalConfig struct {
	BrowserApps []string `mapstructure:"browser_apps"`
	EditorApps  []string `mapstructure:"editor_apps"`
}

// TitleRule routes a window app to a title-parsing heuristic when no
// structured enrichment covers its interval.
type TitleRule struct {
	App  string `mapstructure:"app"`  // regex over the app name
	Kind string `mapstructure:"kind"` // "terminal" or "ide"
}

// CategoryRule is one user-defined classification rule. Hierarchy is
// positional: deeper Name arrays are more specific. Rules are CRUD'd
// elsewhere; this process only reads them.
type CategoryRule struct {
	ID    int      `mapstructure:"id"`
	Name  []string `mapstructure:"name"`
	Regex string   `mapstructure:"regex"`
}

// MetricsConfig defines the Prometheus endpoint.
type MetricsConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Port        int    `mapstructure:"port"`
	BindAddress string `mapstructure:"bind_address"`
}

// Load loads configuration from file and environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(configPath)
	v.SetEnvPrefix("TIMELENS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, use defaults and environment variables
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Store defaults
	v.SetDefault("store.type", "memory")
	v.SetDefault("store.redis.host", "127.0.0.1")
	v.SetDefault("store.redis.port", 6379)
	v.SetDefault("store.redis.db", 0)
	v.SetDefault("store.redis.pool_size", 10)
	v.SetDefault("store.redis.dial_timeout", "5s")
	v.SetDefault("store.redis.read_timeout", "3s")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	// Cache defaults
	v.SetDefault("cache.bucket_ttl", "30s")

	// Canonical defaults cover the common watchers out of the box.
	v.SetDefault("canonical.browser_apps", []string{
		"Chrome", "Google Chrome", "Chromium", "chromium",
		"Firefox", "firefox", "Safari", "Brave", "brave",
		"Microsoft Edge", "msedge", "Vivaldi", "Opera",
	})
	v.SetDefault("canonical.editor_apps", []string{
		"Code", "code", "VSCodium", "Cursor",
		"vim", "gvim", "nvim", "Emacs", "emacs",
		"IntelliJ IDEA", "GoLand", "PyCharm", "WebStorm", "CLion",
		"Sublime Text", "Zed",
	})

	// Title-parsing heuristics for apps with no structured watcher.
	v.SetDefault("title_rules", []map[string]any{
		{"app": `(?i)^(alacritty|kitty|wezterm|iterm2?|terminal|gnome-terminal|konsole|xterm|st)$`, "kind": "terminal"},
		{"app": `(?i)^(intellij idea|goland|pycharm|webstorm|clion|rider|android studio)$`, "kind": "ide"},
	})

	// Metrics defaults
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.port", 9090)
	v.SetDefault("metrics.bind_address", "127.0.0.1")
}

// validate validates the configuration.
func validate(cfg *Config) error {
	switch cfg.Store.Type {
	case "memory", "redis":
	case "":
		cfg.Store.Type = "memory"
	default:
		return fmt.Errorf("unknown store type: %s", cfg.Store.Type)
	}

	if cfg.Store.Type == "redis" && cfg.Store.Redis.Host == "" {
		return fmt.Errorf("redis host is required")
	}

	if cfg.Metrics.Enabled && (cfg.Metrics.Port <= 0 || cfg.Metrics.Port > 65535) {
		return fmt.Errorf("invalid metrics port: %d", cfg.Metrics.Port)
	}

	for i, rule := range cfg.Categories {
		if len(rule.Name) == 0 {
			return fmt.Errorf("category rule %d has an empty name", i)
		}
		if rule.Regex == "" {
			return fmt.Errorf("category rule %d (%s) has an empty regex", i, strings.Join(rule.Name, " > "))
		}
	}

	return nil
}
