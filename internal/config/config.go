package config

import (
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/ehrlich-b/chatsync/internal/l10n"
)

// Config represents the application configuration
type Config struct {
	APIURL    string          `yaml:"api_url"`
	WebsiteID string          `yaml:"website_id"`
	Greeting  string          `yaml:"greeting,omitempty"`
	Locale    string          `yaml:"locale,omitempty"`
	KeyPrefix string          `yaml:"key_prefix,omitempty"`
	Storage   StorageConfig   `yaml:"storage"`
	Reconnect ReconnectConfig `yaml:"reconnect"`
	Timeouts  TimeoutConfig   `yaml:"timeouts"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type StorageConfig struct {
	Backend   string `yaml:"backend"` // memory, file, sqlite, redis
	Path      string `yaml:"path,omitempty"`
	RedisAddr string `yaml:"redis_addr,omitempty"`
	RedisDB   int    `yaml:"redis_db,omitempty"`
	Secret    string `yaml:"secret,omitempty"` // non-empty seals values at rest
}

type ReconnectConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	Interval    time.Duration `yaml:"interval"`
}

type TimeoutConfig struct {
	Connect      time.Duration `yaml:"connect"`
	LoginConnect time.Duration `yaml:"login_connect"`
	AuthResult   time.Duration `yaml:"auth_result"`
	Logout       time.Duration `yaml:"logout"`
	Delivery     time.Duration `yaml:"delivery"`
	HistoryDelay time.Duration `yaml:"history_delay"`
	HTTP         time.Duration `yaml:"http"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file,omitempty"`
}

const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// Defaults returns the stock timings of the widget.
func Defaults() Config {
	return Config{
		Locale:    l10n.Default,
		KeyPrefix: "mirza",
		Storage:   StorageConfig{Backend: BackendFile},
		Reconnect: ReconnectConfig{MaxAttempts: 5, Interval: 3 * time.Second},
		Timeouts: TimeoutConfig{
			Connect:      10 * time.Second,
			LoginConnect: 5 * time.Second,
			AuthResult:   10 * time.Second,
			Logout:       3 * time.Second,
			Delivery:     30 * time.Second,
			HistoryDelay: 500 * time.Millisecond,
			HTTP:         4 * time.Second,
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load reads configuration from a file layered over Defaults. An empty path skips
// the file. A .env file in the working directory is loaded first if present.
// Overrides run after the environment, before validation.
func Load(path string, overrides ...func(*Config)) (*Config, error) {
	_ = godotenv.Load()

	cfg := Defaults()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(err, "failed to read config file")
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, errors.Wrap(err, "failed to parse config file")
		}
	}

	cfg.ApplyEnv()
	for _, fn := range overrides {
		fn(&cfg)
	}
	if cfg.Storage.Backend == BackendFile && cfg.Storage.Path == "" {
		dir, err := GetUserConfigDir()
		if err != nil {
			return nil, errors.Wrap(err, "resolve config dir")
		}
		cfg.Storage.Path = SessionFile(dir)
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	return &cfg, nil
}

// ApplyEnv overrides fields from CHATSYNC_* variables.
func (c *Config) ApplyEnv() {
	c.APIURL = getEnv("CHATSYNC_API_URL", c.APIURL)
	c.WebsiteID = getEnv("CHATSYNC_WEBSITE_ID", c.WebsiteID)
	c.Greeting = getEnv("CHATSYNC_GREETING", c.Greeting)
	c.Locale = getEnv("CHATSYNC_LOCALE", c.Locale)
	c.KeyPrefix = getEnv("CHATSYNC_KEY_PREFIX", c.KeyPrefix)
	c.Storage.Backend = getEnv("CHATSYNC_STORAGE_BACKEND", c.Storage.Backend)
	c.Storage.Path = getEnv("CHATSYNC_STORAGE_PATH", c.Storage.Path)
	c.Storage.RedisAddr = getEnv("CHATSYNC_REDIS_ADDR", c.Storage.RedisAddr)
	c.Storage.RedisDB = getEnvInt("CHATSYNC_REDIS_DB", c.Storage.RedisDB)
	c.Storage.Secret = getEnv("CHATSYNC_STORAGE_SECRET", c.Storage.Secret)
	c.Logging.Level = getEnv("CHATSYNC_LOG_LEVEL", c.Logging.Level)
	c.Logging.File = getEnv("CHATSYNC_LOG_FILE", c.Logging.File)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.APIURL == "" {
		return errors.New("api_url is required")
	}
	u, err := url.Parse(c.APIURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.Errorf("api_url must be an http(s) URL, got %q", c.APIURL)
	}
	if c.WebsiteID == "" {
		return errors.New("website_id is required")
	}
	if c.KeyPrefix == "" {
		return errors.New("key_prefix must not be empty")
	}
	if !l10n.Supported(c.Locale) {
		return errors.Errorf("locale %q is not supported", c.Locale)
	}
	switch c.Storage.Backend {
	case BackendMemory:
	case BackendFile, BackendSQLite:
		if c.Storage.Path == "" {
			return errors.Errorf("storage.path is required for the %s backend", c.Storage.Backend)
		}
	case BackendRedis:
		if c.Storage.RedisAddr == "" {
			return errors.New("storage.redis_addr is required for the redis backend")
		}
	default:
		return errors.Errorf("storage.backend must be one of memory, file, sqlite, redis")
	}
	if c.Reconnect.MaxAttempts <= 0 {
		return errors.New("reconnect.max_attempts must be positive")
	}
	if c.Reconnect.Interval <= 0 {
		return errors.New("reconnect.interval must be positive")
	}
	t := c.Timeouts
	for name, d := range map[string]time.Duration{
		"connect":       t.Connect,
		"login_connect": t.LoginConnect,
		"auth_result":   t.AuthResult,
		"logout":        t.Logout,
		"delivery":      t.Delivery,
		"http":          t.HTTP,
	} {
		if d <= 0 {
			return errors.Errorf("timeouts.%s must be positive", name)
		}
	}
	if t.HistoryDelay < 0 {
		return errors.New("timeouts.history_delay must not be negative")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}
