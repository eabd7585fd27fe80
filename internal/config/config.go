package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const EnvPrefix = "KIWITU"

type Config struct {
	Addr              string        `mapstructure:"addr"`
	StaticDir         string        `mapstructure:"static_dir"`
	LogLevel          string        `mapstructure:"log_level"`
	LogFormat         string        `mapstructure:"log_format"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	ClientTimeout     time.Duration `mapstructure:"client_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
	ReadLimit         int64         `mapstructure:"read_limit"`
	OutboxSize        int           `mapstructure:"outbox_size"`
	InboxSize         int           `mapstructure:"inbox_size"`
	RoomLimit         int           `mapstructure:"room_limit"`
	OriginPatterns    []string      `mapstructure:"origin_patterns"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
}

// flagKeys maps command-line flag names to config keys.
var flagKeys = map[string]string{
	"addr":       "addr",
	"static-dir": "static_dir",
	"log-level":  "log_level",
	"log-format": "log_format",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("addr", "127.0.0.1:8080")
	v.SetDefault("static_dir", "static")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "console")
	v.SetDefault("heartbeat_interval", "5s")
	v.SetDefault("client_timeout", "10s")
	v.SetDefault("write_timeout", "5s")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("outbox_size", 64)
	v.SetDefault("inbox_size", 256)
	v.SetDefault("room_limit", 1000)
	v.SetDefault("origin_patterns", []string{})
	v.SetDefault("shutdown_timeout", "5s")
}

// Load layers, lowest first: defaults, the config file (if path is set),
// .env, the environment, and flags that were explicitly set.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var ErrInvalid = errors.New("invalid config")

func (c *Config) Validate() error {
	var problems []string
	if c.Addr == "" {
		problems = append(problems, "addr is empty")
	}
	if c.HeartbeatInterval <= 0 {
		problems = append(problems, "heartbeat_interval must be positive")
	}
	if c.ClientTimeout <= c.HeartbeatInterval {
		problems = append(problems, "client_timeout must be longer than heartbeat_interval")
	}
	if c.WriteTimeout <= 0 {
		problems = append(problems, "write_timeout must be positive")
	}
	if c.ReadLimit <= 0 {
		problems = append(problems, "read_limit must be positive")
	}
	if c.OutboxSize <= 0 || c.InboxSize <= 0 {
		problems = append(problems, "outbox_size and inbox_size must be positive")
	}
	if c.RoomLimit <= 0 {
		problems = append(problems, "room_limit must be positive")
	}
	if c.ShutdownTimeout <= 0 {
		problems = append(problems, "shutdown_timeout must be positive")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}
