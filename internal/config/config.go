// Package config loads client settings from an optional YAML file and BAZAAR_* env vars.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type LogCfg struct {
	Level string `mapstructure:"level"`
}

type DatabaseCfg struct {
	DSN string `mapstructure:"dsn"`
}

type RedisCfg struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type RealtimeCfg struct {
	Transport string   `mapstructure:"transport"` // "ws" or "redis"
	URL       string   `mapstructure:"url"`
	Channel   string   `mapstructure:"channel"`
	Redis     RedisCfg `mapstructure:"redis"`
}

type StorageCfg struct {
	Bucket        string        `mapstructure:"bucket"`
	Region        string        `mapstructure:"region"`
	Endpoint      string        `mapstructure:"endpoint"`
	PublicBaseURL string        `mapstructure:"public_base_url"`
	KeyPrefix     string        `mapstructure:"key_prefix"`
	PresignTTL    time.Duration `mapstructure:"presign_ttl"`
	ThumbWidth    int           `mapstructure:"thumb_width"`
}

type AssistantCfg struct {
	Addr     string        `mapstructure:"addr"`
	CACert   string        `mapstructure:"ca_cert"`
	Insecure bool          `mapstructure:"insecure"`
	Timeout  time.Duration `mapstructure:"timeout"`
	BotID    string        `mapstructure:"bot_id"`
}

type GeoCfg struct {
	Enabled bool    `mapstructure:"enabled"`
	Lat     float64 `mapstructure:"lat"`
	Lng     float64 `mapstructure:"lng"`
}

type AuthCfg struct {
	SignKey  string        `mapstructure:"sign_key"`
	TokenTTL time.Duration `mapstructure:"token_ttl"`
}

type AudioCfg struct {
	Source string `mapstructure:"source"` // file or device to capture voice notes from; "-" is stdin
}

type TimingCfg struct {
	DisappearingTTL  time.Duration `mapstructure:"disappearing_ttl"`
	TypingDebounce   time.Duration `mapstructure:"typing_debounce"`
	CallConnectDelay time.Duration `mapstructure:"call_connect_delay"`
	SweepInterval    time.Duration `mapstructure:"sweep_interval"`
	ToastDelay       time.Duration `mapstructure:"toast_delay"`
}

// Config is the full client configuration.
type Config struct {
	Log       LogCfg       `mapstructure:"log"`
	Database  DatabaseCfg  `mapstructure:"database"`
	Realtime  RealtimeCfg  `mapstructure:"realtime"`
	Storage   StorageCfg   `mapstructure:"storage"`
	Assistant AssistantCfg `mapstructure:"assistant"`
	Geo       GeoCfg       `mapstructure:"geo"`
	Auth      AuthCfg      `mapstructure:"auth"`
	Audio     AudioCfg     `mapstructure:"audio"`
	Timing    TimingCfg    `mapstructure:"timing"`
	ConfigDir string       `mapstructure:"config_dir"`
}

var defaults = map[string]any{
	"log.level":                 "info",
	"database.dsn":              "",
	"realtime.transport":        "ws",
	"realtime.url":              "",
	"realtime.channel":          "chat_sync",
	"realtime.redis.addr":       "",
	"realtime.redis.password":   "",
	"realtime.redis.db":         0,
	"storage.bucket":            "",
	"storage.region":            "us-east-1",
	"storage.endpoint":          "",
	"storage.public_base_url":   "",
	"storage.key_prefix":        "media",
	"storage.presign_ttl":       "15m",
	"storage.thumb_width":       320,
	"assistant.addr":            "",
	"assistant.ca_cert":         "",
	"assistant.insecure":        false,
	"assistant.timeout":         "20s",
	"assistant.bot_id":          "assistant",
	"geo.enabled":               false,
	"geo.lat":                   0.0,
	"geo.lng":                   0.0,
	"auth.sign_key":             "",
	"auth.token_ttl":            "24h",
	"audio.source":              "",
	"timing.disappearing_ttl":   "24h",
	"timing.typing_debounce":    "2s",
	"timing.call_connect_delay": "3s",
	"timing.sweep_interval":     "1s",
	"timing.toast_delay":        "3s",
	"config_dir":                "",
}

// Load reads path (if non-empty) and applies BAZAAR_* overrides, e.g.
// BAZAAR_REALTIME_URL or BAZAAR_TIMING_DISAPPEARING_TTL.
func Load(path string) (*Config, error) {
	v := viper.New()
	for k, d := range defaults {
		v.SetDefault(k, d)
	}
	v.SetEnvPrefix("BAZAAR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Realtime.Transport {
	case "ws", "redis":
	default:
		return fmt.Errorf("config: realtime.transport must be ws or redis, got %q", c.Realtime.Transport)
	}
	t := c.Timing
	if t.DisappearingTTL <= 0 || t.TypingDebounce <= 0 || t.CallConnectDelay <= 0 ||
		t.SweepInterval <= 0 || t.ToastDelay <= 0 {
		return errors.New("config: timing values must be positive")
	}
	return nil
}
