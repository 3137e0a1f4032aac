package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from a YAML string like "30s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	d.Duration = dur
	return nil
}

// TelegramConfig holds bot API settings.
type TelegramConfig struct {
	Token       string
	APIURL      string
	PollTimeout Duration
}

// MonitorConfig holds the monitor loop and escalation settings.
type MonitorConfig struct {
	Interval     Duration
	ProbeTimeout Duration
	RetryCount   int
	RetryDelay   Duration
	SelfPingURL  string
}

// NotifyConfig selects the operator notification channel.
type NotifyConfig struct {
	Type       string `yaml:"type"`
	WebhookURL string `yaml:"webhook_url"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Address string `yaml:"address"`
}

// StorageConfig holds storage settings.
type StorageConfig struct {
	Path string `yaml:"path"`
}

// RedisConfig enables the Redis-backed pause flag when Addr is set.
type RedisConfig struct {
	Addr           string
	Password       string
	DB             int
	Key            string
	ConnectTimeout Duration
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// Config is the root application configuration.
type Config struct {
	OwnerID  int64
	Telegram TelegramConfig
	Monitor  MonitorConfig
	Notify   NotifyConfig
	Server   ServerConfig
	Storage  StorageConfig
	Redis    RedisConfig
	Log      LogConfig
}

const (
	NotifyTelegram = "telegram"
	NotifyWebhook  = "webhook"
)

const (
	defaultInterval     = 120 * time.Second
	defaultProbeTimeout = 10 * time.Second
	defaultRetryCount   = 3
	defaultRetryDelay   = 10 * time.Second
)

// Load reads, parses, and validates the config file at path. A missing file
// is not an error: defaults and environment overrides still apply.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	// Durations are kept as strings so parse errors can name the field.
	type rawTelegram struct {
		Token       string `yaml:"token"`
		APIURL      string `yaml:"api_url"`
		PollTimeout string `yaml:"poll_timeout"`
	}
	type rawMonitor struct {
		Interval     string `yaml:"interval"`
		ProbeTimeout string `yaml:"probe_timeout"`
		RetryCount   *int   `yaml:"retry_count"`
		RetryDelay   string `yaml:"retry_delay"`
		SelfPingURL  string `yaml:"self_ping_url"`
	}
	type rawRedis struct {
		Addr           string `yaml:"addr"`
		Password       string `yaml:"password"`
		DB             int    `yaml:"db"`
		Key            string `yaml:"key"`
		ConnectTimeout string `yaml:"connect_timeout"`
	}
	type rawConfig struct {
		OwnerID  int64         `yaml:"owner_id"`
		Telegram rawTelegram   `yaml:"telegram"`
		Monitor  rawMonitor    `yaml:"monitor"`
		Notify   NotifyConfig  `yaml:"notify"`
		Server   *ServerConfig `yaml:"server"`
		Storage  StorageConfig `yaml:"storage"`
		Redis    rawRedis      `yaml:"redis"`
		Log      LogConfig     `yaml:"log"`
	}

	var raw rawConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := applyEnv(&raw.OwnerID, &raw.Telegram.Token, &raw.Monitor.SelfPingURL, &raw.Redis.Addr); err != nil {
		return nil, err
	}

	cfg := &Config{
		OwnerID: raw.OwnerID,
		Telegram: TelegramConfig{
			Token:  raw.Telegram.Token,
			APIURL: raw.Telegram.APIURL,
		},
		Monitor: MonitorConfig{
			RetryCount:  defaultRetryCount,
			SelfPingURL: raw.Monitor.SelfPingURL,
		},
		Notify:  raw.Notify,
		Storage: raw.Storage,
		Redis: RedisConfig{
			Addr:     raw.Redis.Addr,
			Password: raw.Redis.Password,
			DB:       raw.Redis.DB,
			Key:      raw.Redis.Key,
		},
		Log: raw.Log,
	}

	// Apply defaults.
	if cfg.Telegram.APIURL == "" {
		cfg.Telegram.APIURL = "https://api.telegram.org"
	}
	if cfg.Notify.Type == "" {
		cfg.Notify.Type = NotifyTelegram
	}
	// An explicit empty address disables the API; an absent section gets the default.
	if raw.Server == nil {
		cfg.Server.Address = ":8080"
	} else {
		cfg.Server = *raw.Server
	}
	if cfg.Storage.Path == "" {
		cfg.Storage.Path = "uptimebot.db"
	}
	if cfg.Redis.Key == "" {
		cfg.Redis.Key = "uptimebot:paused"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if raw.Monitor.RetryCount != nil {
		cfg.Monitor.RetryCount = *raw.Monitor.RetryCount
	}

	durations := []struct {
		field string
		raw   string
		def   time.Duration
		dst   *Duration
	}{
		{"telegram.poll_timeout", raw.Telegram.PollTimeout, 30 * time.Second, &cfg.Telegram.PollTimeout},
		{"monitor.interval", raw.Monitor.Interval, defaultInterval, &cfg.Monitor.Interval},
		{"monitor.probe_timeout", raw.Monitor.ProbeTimeout, defaultProbeTimeout, &cfg.Monitor.ProbeTimeout},
		{"monitor.retry_delay", raw.Monitor.RetryDelay, defaultRetryDelay, &cfg.Monitor.RetryDelay},
		{"redis.connect_timeout", raw.Redis.ConnectTimeout, 30 * time.Second, &cfg.Redis.ConnectTimeout},
	}
	for _, d := range durations {
		if d.raw == "" {
			d.dst.Duration = d.def
			continue
		}
		parsed, err := time.ParseDuration(d.raw)
		if err != nil {
			return nil, fmt.Errorf("%s: invalid duration %q: %w", d.field, d.raw, err)
		}
		if parsed <= 0 {
			return nil, fmt.Errorf("%s: must be positive, got %s", d.field, d.raw)
		}
		d.dst.Duration = parsed
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.OwnerID == 0 {
		return fmt.Errorf("owner_id is required (set it in the config file or OWNER_ID)")
	}
	if c.OwnerID < 0 {
		return fmt.Errorf("owner_id must be a positive user id, got %d", c.OwnerID)
	}
	if c.Monitor.RetryCount < 0 {
		return fmt.Errorf("monitor.retry_count must be >= 0, got %d", c.Monitor.RetryCount)
	}
	switch c.Notify.Type {
	case NotifyTelegram:
		if c.Telegram.Token == "" {
			return fmt.Errorf("notify type %q requires telegram.token (or BOT_TOKEN)", c.Notify.Type)
		}
	case NotifyWebhook:
		if c.Notify.WebhookURL == "" {
			return fmt.Errorf("notify type %q requires notify.webhook_url", c.Notify.Type)
		}
	default:
		return fmt.Errorf("invalid notify type %q (must be telegram or webhook)", c.Notify.Type)
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level %q", c.Log.Level)
	}
	return nil
}

// applyEnv overrides file values with the bot's environment variables.
func applyEnv(ownerID *int64, token, selfPing, redisAddr *string) error {
	if v := os.Getenv("OWNER_ID"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid OWNER_ID %q: %w", v, err)
		}
		*ownerID = id
	}
	if v := os.Getenv("BOT_TOKEN"); v != "" {
		*token = v
	}
	if v := os.Getenv("SELF_PING_URL"); v != "" {
		*selfPing = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		*redisAddr = v
	}
	return nil
}
