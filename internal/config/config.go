// Package config provides configuration management for the application.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/timetable/timetable-sync/internal/model"
	"github.com/timetable/timetable-sync/internal/validation"
)

// Config holds all configuration for the application.
//
//nolint:govet // fieldalignment: Accept minor memory overhead for better readability
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	RabbitMQ  RabbitMQConfig
	Logging   LoggingConfig
	Sync      SyncConfig
	Freshness FreshnessConfig
	Heuristic HeuristicConfig
	GC        GCConfig
	YouTube   YouTubeConfig
	Twitch    TwitchConfig
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Port            int
	ShutdownTimeout time.Duration
	AdminAPIKey     string
}

// DatabaseConfig contains database connection configuration.
//
//nolint:govet // fieldalignment: Accept minor memory overhead for better readability
type DatabaseConfig struct {
	Host           string
	Name           string
	User           string
	Password       string
	SSLMode        string
	Port           int
	MaxConnections int
	MinConnections int
	MaxIdleTime    time.Duration
	MaxLifetime    time.Duration
}

// RedisConfig contains the Redis connection used by the gc lock and the
// timetable view.
type RedisConfig struct {
	URL             string
	TimetablePrefix string
	TimetableTTL    time.Duration
	LockKey         string
	LockTTL         time.Duration
}

// RabbitMQConfig contains RabbitMQ connection and event configuration.
//
//nolint:govet // fieldalignment: Accept minor memory overhead for better readability
type RabbitMQConfig struct {
	Enabled             bool
	Host                string
	User                string
	Password            string
	Exchange            string
	ThumbnailQueue      string
	ThumbnailRoutingKey string
	GCRoutingKey        string
	Port                int
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level  string
	Format string
	File   string
}

// SyncConfig drives the sync loop. Accounts are "platform:id" pairs.
type SyncConfig struct {
	Interval          time.Duration
	Accounts          []string
	AccountTimeout    time.Duration
	Concurrency       int
	ChannelMaxAge     time.Duration
	ExpiredVideoLimit int
}

// FreshnessConfig holds the freshness policies.
//
//nolint:govet // fieldalignment: Accept minor memory overhead for better readability
type FreshnessConfig struct {
	FreeChatDuration   time.Duration
	LiveDuration       time.Duration
	DefaultDuration    time.Duration
	SoonLimit          time.Duration
	MaxAgeDefault      time.Duration
	MaxAgeMax          time.Duration
	RecentlyBorder     time.Duration
	UpperLimitActive   time.Duration
	UpperLimitInactive time.Duration
	MaxAgeBroadcaster  time.Duration
}

// HeuristicConfig holds the free chat keywords. Empty selects the built-in
// list.
type HeuristicConfig struct {
	Keywords []string
}

// GCConfig bounds garbage collection passes.
type GCConfig struct {
	Enabled bool
	Timeout time.Duration
}

// YouTubeConfig contains the YouTube Data API settings.
type YouTubeConfig struct {
	APIKey                string
	QuotaDailyLimit       int
	QuotaThresholdPercent int
	FeedFallback          bool
	FeedURL               string
}

// TwitchConfig contains the Helix API settings.
type TwitchConfig struct {
	ClientID          string
	AccessToken       string
	BaseURL           string
	RequestsPerSecond float64
	Burst             int
}

// Load loads configuration from file and environment variables.
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Set defaults
	setDefaults()

	// Read environment variables, APP_SYNC_INTERVAL maps to sync.interval
	viper.SetEnvPrefix("APP")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Try to read config file
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found, use defaults and env vars
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the settings the service cannot start without.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Sync.Interval <= 0 {
		return fmt.Errorf("sync interval must be positive, got %s", c.Sync.Interval)
	}
	if c.Redis.URL == "" {
		return errors.New("redis url is required")
	}
	if c.YouTube.QuotaThresholdPercent < 1 || c.YouTube.QuotaThresholdPercent > 100 {
		return fmt.Errorf("youtube quota threshold must be within 1..100, got %d", c.YouTube.QuotaThresholdPercent)
	}

	accounts, err := c.Sync.ParseAccounts()
	if err != nil {
		return err
	}
	for _, acc := range accounts {
		switch {
		case acc.Platform == "youtube" && c.YouTube.APIKey == "":
			return fmt.Errorf("account %s:%s needs youtube.apikey", acc.Platform, acc.ID)
		case acc.Platform == "twitch" && (c.Twitch.ClientID == "" || c.Twitch.AccessToken == ""):
			return fmt.Errorf("account %s:%s needs twitch.clientid and twitch.accesstoken", acc.Platform, acc.ID)
		}
	}
	return nil
}

// Account is one parsed sync.accounts entry.
type Account struct {
	Platform string
	ID       string
}

// ParseAccounts splits the "platform:id" entries. Entries may also be given
// as one comma separated string, as environment variables are.
func (s SyncConfig) ParseAccounts() ([]Account, error) {
	var out []Account
	for _, raw := range s.Accounts {
		for _, entry := range strings.Split(raw, ",") {
			entry = strings.TrimSpace(entry)
			if entry == "" {
				continue
			}
			platform, id, ok := strings.Cut(entry, ":")
			if !ok || id == "" {
				return nil, fmt.Errorf("invalid account %q, expected platform:id", entry)
			}
			platform = strings.ToLower(platform)
			if err := validation.ValidateAccount(model.Platform(platform), id); err != nil {
				return nil, fmt.Errorf("invalid account %q: %w", entry, err)
			}
			out = append(out, Account{Platform: platform, ID: id})
		}
	}
	return out, nil
}

func setDefaults() {
	// Server
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.shutdowntimeout", 30*time.Second)
	viper.SetDefault("server.adminapikey", "")

	// Database
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.name", "timetable")
	viper.SetDefault("database.user", "postgres")
	viper.SetDefault("database.password", "postgres")
	viper.SetDefault("database.sslmode", "disable")
	viper.SetDefault("database.maxconnections", 10)
	viper.SetDefault("database.minconnections", 2)
	viper.SetDefault("database.maxidletime", 10*time.Minute)
	viper.SetDefault("database.maxlifetime", 1*time.Hour)

	// Redis
	viper.SetDefault("redis.url", "redis://localhost:6379/0")
	viper.SetDefault("redis.timetableprefix", "timetable")
	viper.SetDefault("redis.timetablettl", 7*24*time.Hour)
	viper.SetDefault("redis.lockkey", "timetable:gc:lock")
	viper.SetDefault("redis.lockttl", 5*time.Minute)

	// RabbitMQ
	viper.SetDefault("rabbitmq.enabled", true)
	viper.SetDefault("rabbitmq.host", "localhost")
	viper.SetDefault("rabbitmq.port", 5672)
	viper.SetDefault("rabbitmq.user", "guest")
	viper.SetDefault("rabbitmq.password", "guest")
	viper.SetDefault("rabbitmq.exchange", "timetable.events")
	viper.SetDefault("rabbitmq.thumbnailqueue", "timetable.thumbnails")
	viper.SetDefault("rabbitmq.thumbnailroutingkey", "thumbnail.refresh")
	viper.SetDefault("rabbitmq.gcroutingkey", "cache.gc.completed")

	// Logging
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.file", "")

	// Sync
	viper.SetDefault("sync.interval", 5*time.Minute)
	viper.SetDefault("sync.accounts", []string{})
	viper.SetDefault("sync.accounttimeout", 2*time.Minute)
	viper.SetDefault("sync.concurrency", 4)
	viper.SetDefault("sync.channelmaxage", 24*time.Hour)
	viper.SetDefault("sync.expiredvideolimit", 500)

	// Freshness
	viper.SetDefault("freshness.freechatduration", 24*time.Hour)
	viper.SetDefault("freshness.liveduration", 10*time.Minute)
	viper.SetDefault("freshness.defaultduration", 30*time.Minute)
	viper.SetDefault("freshness.soonlimit", 10*time.Minute)
	viper.SetDefault("freshness.maxagedefault", 5*time.Minute)
	viper.SetDefault("freshness.maxagemax", 24*time.Hour)
	viper.SetDefault("freshness.recentlyborder", 72*time.Hour)
	viper.SetDefault("freshness.upperlimitactive", 30*time.Minute)
	viper.SetDefault("freshness.upperlimitinactive", 24*time.Hour)
	viper.SetDefault("freshness.maxagebroadcaster", 12*time.Hour)

	// Heuristic
	viper.SetDefault("heuristic.keywords", []string{})

	// GC
	viper.SetDefault("gc.enabled", true)
	viper.SetDefault("gc.timeout", 2*time.Minute)

	// YouTube
	viper.SetDefault("youtube.apikey", "")
	viper.SetDefault("youtube.quotadailylimit", 10000)
	viper.SetDefault("youtube.quotathresholdpercent", 90)
	viper.SetDefault("youtube.feedfallback", true)
	viper.SetDefault("youtube.feedurl", "https://www.youtube.com/feeds/videos.xml")

	// Twitch
	viper.SetDefault("twitch.clientid", "")
	viper.SetDefault("twitch.accesstoken", "")
	viper.SetDefault("twitch.baseurl", "https://api.twitch.tv/helix")
	viper.SetDefault("twitch.requestspersecond", 12.0)
	viper.SetDefault("twitch.burst", 1)
}
