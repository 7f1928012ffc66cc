package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	configPathEnv       = "SCOUT_CONFIG"
	databaseDriverEnv   = "DATABASE_DRIVER"
	databaseDSNEnv      = "DATABASE_DSN"
	httpAddrEnv         = "SCOUT_HTTP_ADDR"
	redisURLEnv         = "REDIS_URL"
	telegramTokenEnv    = "TELEGRAM_BOT_TOKEN"
	telegramChatIDEnv   = "TELEGRAM_CHAT_ID"
	logLevelEnv         = "SCOUT_LOG_LEVEL"
	intervalOverrideEnv = "SCOUT_INTERVAL_OVERRIDE"
)

// Config holds high-level settings required across the application.
type Config struct {
	Logging       LoggingConfig      `yaml:"logging"`
	Database      DatabaseConfig     `yaml:"database"`
	HTTP          HTTPConfig         `yaml:"http"`
	Scheduler     SchedulerConfig    `yaml:"scheduler"`
	Scoring       ScoringConfig      `yaml:"scoring"`
	Notifications NotificationConfig `yaml:"notifications"`
	Platforms     []PlatformConfig   `yaml:"platforms"`
}

// LoggingConfig controls the slog handler.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DatabaseConfig selects the SQL driver and its DSN.
type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// HTTPConfig configures the control API listener.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// SchedulerConfig tunes the daemon and the queue expiry job.
type SchedulerConfig struct {
	// IntervalOverride replaces every configuration's interval when set.
	IntervalOverride time.Duration `yaml:"intervalOverride"`
	ExpireAfterDays  int           `yaml:"expireAfterDays"`
	ExpiryCron       string        `yaml:"expiryCron"`
}

// ScoringConfig holds the margin model knobs shared by every configuration.
type ScoringConfig struct {
	FeeRate          float64  `yaml:"feeRate"`
	DefaultPlatforms []string `yaml:"defaultPlatforms"`
}

// NotificationConfig encapsulates outbound channels.
type NotificationConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
	Redis    RedisConfig    `yaml:"redis"`
}

// TelegramConfig wires all data required to send messages.
type TelegramConfig struct {
	BotToken string `yaml:"botToken"`
	ChatID   string `yaml:"chatId"`
	BaseURL  string `yaml:"baseUrl"`
}

// RedisConfig enables pub/sub events for queued opportunities.
type RedisConfig struct {
	URL     string `yaml:"url"`
	Channel string `yaml:"channel"`
}

// PlatformConfig describes one source platform scanned by the HTML listing
// scanner. SearchURL carries a {keyword} placeholder.
type PlatformConfig struct {
	Name      string            `yaml:"name"`
	SearchURL string            `yaml:"searchUrl"`
	UserAgent string            `yaml:"userAgent"`
	Selectors SelectorConfig    `yaml:"selectors"`
	Headers   map[string]string `yaml:"headers"`
}

// SelectorConfig holds the CSS selectors used to read a results page. Item
// scopes every other selector.
type SelectorConfig struct {
	Item     string `yaml:"item"`
	Name     string `yaml:"name"`
	Price    string `yaml:"price"`
	Link     string `yaml:"link"`
	Image    string `yaml:"image"`
	Brand    string `yaml:"brand"`
	Category string `yaml:"category"`
	// IDAttr is an attribute of the item element carrying the product id.
	IDAttr string `yaml:"idAttr"`
}

// Load reads YAML configuration (if present) and applies environment overrides.
func Load() Config {
	cfg := defaultConfig()

	if path := os.Getenv(configPathEnv); path != "" {
		if raw, err := os.ReadFile(path); err != nil {
			log.Printf("config: cannot read %s: %v (falling back to defaults)", path, err)
		} else {
			fileCfg, err := Parse(raw)
			if err != nil {
				log.Printf("config: cannot parse %s: %v (falling back to defaults)", path, err)
			} else {
				cfg = mergeConfig(cfg, fileCfg)
			}
		}
	}

	cfg.applyEnvOverrides()
	return cfg
}

// Parse decodes a YAML document without applying defaults.
func Parse(raw []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(databaseDriverEnv); v != "" {
		c.Database.Driver = v
	}
	if v := os.Getenv(databaseDSNEnv); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv(httpAddrEnv); v != "" {
		c.HTTP.Addr = v
	}
	if v := os.Getenv(redisURLEnv); v != "" {
		c.Notifications.Redis.URL = v
	}
	if v := os.Getenv(telegramTokenEnv); v != "" {
		c.Notifications.Telegram.BotToken = v
	}
	if v := os.Getenv(telegramChatIDEnv); v != "" {
		c.Notifications.Telegram.ChatID = v
	}
	if v := os.Getenv(logLevelEnv); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv(intervalOverrideEnv); v != "" {
		if d, ok := parseInterval(v); ok {
			c.Scheduler.IntervalOverride = d
		} else {
			log.Printf("config: ignoring invalid %s=%q", intervalOverrideEnv, v)
		}
	}
}

// parseInterval accepts a Go duration ("30s") or a bare millisecond count.
func parseInterval(v string) (time.Duration, bool) {
	v = strings.TrimSpace(v)
	if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
		if ms <= 0 {
			return 0, false
		}
		return time.Duration(ms) * time.Millisecond, true
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, false
	}
	return d, true
}

func mergeConfig(base, override Config) Config {
	if override.Logging.Level != "" {
		base.Logging.Level = override.Logging.Level
	}

	if override.Database.Driver != "" {
		base.Database.Driver = override.Database.Driver
	}
	if override.Database.DSN != "" {
		base.Database.DSN = override.Database.DSN
	}

	if override.HTTP.Addr != "" {
		base.HTTP.Addr = override.HTTP.Addr
	}

	if override.Scheduler.IntervalOverride > 0 {
		base.Scheduler.IntervalOverride = override.Scheduler.IntervalOverride
	}
	if override.Scheduler.ExpireAfterDays > 0 {
		base.Scheduler.ExpireAfterDays = override.Scheduler.ExpireAfterDays
	}
	if override.Scheduler.ExpiryCron != "" {
		base.Scheduler.ExpiryCron = override.Scheduler.ExpiryCron
	}

	if override.Scoring.FeeRate > 0 && override.Scoring.FeeRate < 1 {
		base.Scoring.FeeRate = override.Scoring.FeeRate
	}
	if len(override.Scoring.DefaultPlatforms) > 0 {
		base.Scoring.DefaultPlatforms = override.Scoring.DefaultPlatforms
	}

	if override.Notifications.Telegram.BotToken != "" {
		base.Notifications.Telegram.BotToken = override.Notifications.Telegram.BotToken
	}
	if override.Notifications.Telegram.ChatID != "" {
		base.Notifications.Telegram.ChatID = override.Notifications.Telegram.ChatID
	}
	if override.Notifications.Telegram.BaseURL != "" {
		base.Notifications.Telegram.BaseURL = override.Notifications.Telegram.BaseURL
	}
	if override.Notifications.Redis.URL != "" {
		base.Notifications.Redis.URL = override.Notifications.Redis.URL
	}
	if override.Notifications.Redis.Channel != "" {
		base.Notifications.Redis.Channel = override.Notifications.Redis.Channel
	}

	if len(override.Platforms) > 0 {
		base.Platforms = override.Platforms
	}

	return base
}

func defaultConfig() Config {
	return Config{
		Logging:  LoggingConfig{Level: "info"},
		Database: DatabaseConfig{Driver: "sqlite", DSN: "file:scout.db?_pragma=busy_timeout(5000)"},
		HTTP:     HTTPConfig{Addr: ":8080"},
		Scheduler: SchedulerConfig{
			ExpireAfterDays: 14,
			ExpiryCron:      "@daily",
		},
		Scoring: ScoringConfig{
			FeeRate:          0.15,
			DefaultPlatforms: []string{"amazon", "walmart", "target"},
		},
		Notifications: NotificationConfig{
			Telegram: TelegramConfig{BaseURL: "https://api.telegram.org"},
			Redis:    RedisConfig{Channel: "scout.opportunity.queued"},
		},
	}
}
