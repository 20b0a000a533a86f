package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Config is the persistent parley configuration stored as config.toml in the
// .parley/ directory. Durations are kept as strings such as "90s".
type Config struct {
	Version    int              `toml:"version"`
	Storage    StorageConfig    `toml:"storage"`
	Chat       ChatConfig       `toml:"chat"`
	OAuth      OAuthConfig      `toml:"oauth"`
	Completion CompletionConfig `toml:"completion"`
	Engine     EngineConfig     `toml:"engine"`
	API        APIConfig        `toml:"api"`
	Events     EventsConfig     `toml:"events"`
	Progress   ProgressConfig   `toml:"progress"`
}

// StorageConfig selects the record store.
type StorageConfig struct {
	Driver      string `toml:"driver,omitempty"`
	SQLitePath  string `toml:"sqlite_path,omitempty"`
	PostgresDSN string `toml:"postgres_dsn,omitempty"`
}

// ChatConfig points at the digital proxy chat backend.
type ChatConfig struct {
	BaseURL           string  `toml:"base_url,omitempty"`
	Timeout           string  `toml:"timeout,omitempty"`
	RequestsPerSecond float64 `toml:"requests_per_second,omitempty"`
}

// OAuthConfig holds the client used to refresh proxy access tokens.
type OAuthConfig struct {
	BaseURL      string `toml:"base_url,omitempty"`
	ClientID     string `toml:"client_id,omitempty"`
	ClientSecret string `toml:"client_secret,omitempty"`
}

// CompletionConfig selects the general-purpose completion service used for
// conclusion detection, summaries and request analysis.
type CompletionConfig struct {
	Provider string `toml:"provider,omitempty"`
	BaseURL  string `toml:"base_url,omitempty"`
	Model    string `toml:"model,omitempty"`
	Timeout  string `toml:"timeout,omitempty"`
}

// EngineConfig bounds automatic negotiations.
type EngineConfig struct {
	MaxRounds   int    `toml:"max_rounds,omitempty"`
	PeerLimit   int    `toml:"peer_limit,omitempty"`
	CallTimeout string `toml:"call_timeout,omitempty"`
}

// APIConfig holds API server settings.
type APIConfig struct {
	Listen string `toml:"listen,omitempty"`
}

// EventsConfig configures domain event publishing.
type EventsConfig struct {
	Provider  string `toml:"provider,omitempty"`
	Brokers   string `toml:"brokers,omitempty"`
	Topic     string `toml:"topic,omitempty"`
	Workers   uint   `toml:"workers,omitempty"`
	QueueSize uint   `toml:"queue_size,omitempty"`
}

// BrokerList splits the comma separated broker addresses.
func (e EventsConfig) BrokerList() []string {
	var out []string
	for b := range strings.SplitSeq(e.Brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// ProgressConfig selects where live broadcast progress is kept.
type ProgressConfig struct {
	Provider  string `toml:"provider,omitempty"`
	RedisAddr string `toml:"redis_addr,omitempty"`
	TTL       string `toml:"ttl,omitempty"`
}

// Duration parses a config duration, falling back to def when s is empty or
// malformed.
func Duration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// configKeyInfo maps a dotted key to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

func stringKey(field func(c *Config) *string) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return *field(c) },
		set: func(c *Config, v string) error { *field(c) = v; return nil },
	}
}

func durationKey(name string, field func(c *Config) *string) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return *field(c) },
		set: func(c *Config, v string) error {
			if v != "" {
				if _, err := time.ParseDuration(v); err != nil {
					return fmt.Errorf("invalid value for %s: %w", name, err)
				}
			}
			*field(c) = v
			return nil
		},
	}
}

func intKey(name string, field func(c *Config) *int) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string {
			if *field(c) == 0 {
				return ""
			}
			return strconv.Itoa(*field(c))
		},
		set: func(c *Config, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				return fmt.Errorf("invalid value for %s: %q", name, v)
			}
			*field(c) = n
			return nil
		},
	}
}

func uintKey(name string, field func(c *Config) *uint) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string {
			if *field(c) == 0 {
				return ""
			}
			return strconv.FormatUint(uint64(*field(c)), 10)
		},
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			*field(c) = uint(n)
			return nil
		},
	}
}

// configKeys is the authoritative map of supported keys. Keys use dotted
// notation matching the TOML sections.
var configKeys = map[string]configKeyInfo{
	"storage.driver":       stringKey(func(c *Config) *string { return &c.Storage.Driver }),
	"storage.sqlite_path":  stringKey(func(c *Config) *string { return &c.Storage.SQLitePath }),
	"storage.postgres_dsn": stringKey(func(c *Config) *string { return &c.Storage.PostgresDSN }),

	"chat.base_url": stringKey(func(c *Config) *string { return &c.Chat.BaseURL }),
	"chat.timeout":  durationKey("chat.timeout", func(c *Config) *string { return &c.Chat.Timeout }),
	"chat.requests_per_second": {
		get: func(c *Config) string {
			if c.Chat.RequestsPerSecond == 0 {
				return ""
			}
			return strconv.FormatFloat(c.Chat.RequestsPerSecond, 'f', -1, 64)
		},
		set: func(c *Config, v string) error {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil || f < 0 {
				return fmt.Errorf("invalid value for chat.requests_per_second: %q", v)
			}
			c.Chat.RequestsPerSecond = f
			return nil
		},
	},

	"oauth.base_url":      stringKey(func(c *Config) *string { return &c.OAuth.BaseURL }),
	"oauth.client_id":     stringKey(func(c *Config) *string { return &c.OAuth.ClientID }),
	"oauth.client_secret": stringKey(func(c *Config) *string { return &c.OAuth.ClientSecret }),

	"completion.provider": stringKey(func(c *Config) *string { return &c.Completion.Provider }),
	"completion.base_url": stringKey(func(c *Config) *string { return &c.Completion.BaseURL }),
	"completion.model":    stringKey(func(c *Config) *string { return &c.Completion.Model }),
	"completion.timeout":  durationKey("completion.timeout", func(c *Config) *string { return &c.Completion.Timeout }),

	"engine.max_rounds":   intKey("engine.max_rounds", func(c *Config) *int { return &c.Engine.MaxRounds }),
	"engine.peer_limit":   intKey("engine.peer_limit", func(c *Config) *int { return &c.Engine.PeerLimit }),
	"engine.call_timeout": durationKey("engine.call_timeout", func(c *Config) *string { return &c.Engine.CallTimeout }),

	"api.listen": stringKey(func(c *Config) *string { return &c.API.Listen }),

	"events.provider":   stringKey(func(c *Config) *string { return &c.Events.Provider }),
	"events.brokers":    stringKey(func(c *Config) *string { return &c.Events.Brokers }),
	"events.topic":      stringKey(func(c *Config) *string { return &c.Events.Topic }),
	"events.workers":    uintKey("events.workers", func(c *Config) *uint { return &c.Events.Workers }),
	"events.queue_size": uintKey("events.queue_size", func(c *Config) *uint { return &c.Events.QueueSize }),

	"progress.provider":   stringKey(func(c *Config) *string { return &c.Progress.Provider }),
	"progress.redis_addr": stringKey(func(c *Config) *string { return &c.Progress.RedisAddr }),
	"progress.ttl":        durationKey("progress.ttl", func(c *Config) *string { return &c.Progress.TTL }),
}

// orderedKeys lists every key in TOML section order.
var orderedKeys = []string{
	"storage.driver",
	"storage.sqlite_path",
	"storage.postgres_dsn",
	"chat.base_url",
	"chat.timeout",
	"chat.requests_per_second",
	"oauth.base_url",
	"oauth.client_id",
	"oauth.client_secret",
	"completion.provider",
	"completion.base_url",
	"completion.model",
	"completion.timeout",
	"engine.max_rounds",
	"engine.peer_limit",
	"engine.call_timeout",
	"api.listen",
	"events.provider",
	"events.brokers",
	"events.topic",
	"events.workers",
	"events.queue_size",
	"progress.provider",
	"progress.redis_addr",
	"progress.ttl",
}
